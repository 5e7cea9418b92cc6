package storage

// KeyTable 摄像头名称到快照 key 的映射
type KeyTable struct {
	byCamera   map[string]string
	defaultKey string
}

// NewKeyTable 创建映射表，未列出的摄像头使用 defaultKey
func NewKeyTable(byCamera map[string]string, defaultKey string) *KeyTable {
	keys := make(map[string]string, len(byCamera))
	for name, key := range byCamera {
		keys[name] = key
	}
	return &KeyTable{byCamera: keys, defaultKey: defaultKey}
}

// KeyFor 返回摄像头对应的 key，fallback 表示使用了默认 key
func (t *KeyTable) KeyFor(cameraName string) (key string, fallback bool) {
	if key, ok := t.byCamera[cameraName]; ok {
		return key, false
	}
	return t.defaultKey, true
}

// DefaultKey 默认 key
func (t *KeyTable) DefaultKey() string {
	return t.defaultKey
}
