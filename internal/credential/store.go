package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// ErrTokenNotFound 配置文件中找不到旧令牌
var ErrTokenNotFound = errors.New("old refresh token not found in config file")

// Store 基于 .env 文件的刷新令牌存储
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore 创建令牌存储
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path 配置文件路径
func (s *Store) Path() string {
	return s.path
}

// Rotate 将文件中的 oldToken 替换为 newToken
// oldToken 为空时（首次运行）不做任何修改
func (s *Store) Rotate(newToken, oldToken string) error {
	if oldToken == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 符号链接写到目标文件，链接本身保留
	path, err := filepath.EvalSymlinks(s.path)
	if err != nil {
		return fmt.Errorf("resolve config file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}

	current, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	content := string(current)
	if !strings.Contains(content, oldToken) {
		return ErrTokenNotFound
	}

	updated := strings.Replace(content, oldToken, newToken, 1)

	// 替换后必须仍然是合法的 dotenv 文件
	if _, err := godotenv.Unmarshal(updated); err != nil {
		return fmt.Errorf("parse updated config: %w", err)
	}

	return writeFileAtomic(path, []byte(updated), info.Mode().Perm())
}

// writeFileAtomic 先写临时文件再 rename，失败时原文件保持不变
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return syncDir(dir)
}

// syncDir 持久化目录项，rename 掉电后不丢失
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open config dir: %w", err)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync config dir: %w", err)
	}
	return nil
}
