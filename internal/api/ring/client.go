package ring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	oauthClientID = "ring_official_android"
	userAgent     = "android:com.ringapp"
	apiVersion    = 11
)

// Token 认证令牌
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Scope        string    `json:"scope"`
	ExpiresIn    int       `json:"expires_in"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsExpired 检查 token 是否过期（提前 60 秒）
func (t *Token) IsExpired() bool {
	return time.Now().After(t.CreatedAt.Add(time.Duration(t.ExpiresIn-60) * time.Second))
}

// Options 客户端配置
type Options struct {
	RefreshToken string
	SystemID     string // 稳定的硬件标识，为空时由主机名派生
	Debug        bool

	AuthHost  string
	APIHost   string
	AppHost   string
	SnapsHost string

	HTTPTimeout time.Duration
	RateLimit   rate.Limit
	RateBurst   int
}

// DefaultOptions 默认配置
func DefaultOptions(refreshToken string) Options {
	return Options{
		RefreshToken: refreshToken,
		AuthHost:     "https://oauth.ring.com",
		APIHost:      "https://api.ring.com",
		AppHost:      "https://app.ring.com",
		SnapsHost:    "https://app-snaps.ring.com",
		HTTPTimeout:  30 * time.Second,
		RateLimit:    5,
		RateBurst:    10,
	}
}

// Client Ring API 客户端
type Client struct {
	logger     *zap.Logger
	httpClient *http.Client
	limiter    *rate.Limiter
	opts       Options
	systemID   string

	mu           sync.RWMutex
	refreshMu    sync.Mutex // 串行化令牌刷新
	token        *Token
	refreshToken string

	rotations chan TokenRotation
}

// NewClient 创建新的 Ring API 客户端
func NewClient(logger *zap.Logger, opts Options) *Client {
	if opts.HTTPTimeout == 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = rate.Inf
	}
	if opts.RateBurst == 0 {
		opts.RateBurst = 1
	}

	systemID := opts.SystemID
	if systemID == "" {
		systemID = DeriveSystemID()
	}

	return &Client{
		logger: logger,
		httpClient: &http.Client{
			Timeout: opts.HTTPTimeout,
		},
		limiter:      rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		opts:         opts,
		systemID:     systemID,
		refreshToken: opts.RefreshToken,
		rotations:    make(chan TokenRotation, 16),
	}
}

// DeriveSystemID 由主机名生成稳定的硬件标识
func DeriveSystemID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "ringgazer"
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(hostname)).String()
}

// SystemID 当前使用的硬件标识
func (c *Client) SystemID() string {
	return c.systemID
}

// TokenRotations 刷新令牌轮换事件
func (c *Client) TokenRotations() <-chan TokenRotation {
	return c.rotations
}

// GetToken 获取当前令牌
func (c *Client) GetToken() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Authenticate 用刷新令牌换取访问令牌并创建会话
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.RefreshToken(ctx); err != nil {
		return err
	}
	return c.createSession(ctx)
}

// RefreshToken 刷新访问令牌
func (c *Client) RefreshToken(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refresh(ctx)
}

// refreshIfStale 仅当 seen 仍是当前令牌（或已过期）时刷新
func (c *Client) refreshIfStale(ctx context.Context, seen *Token) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current := c.GetToken(); current != nil && current != seen && !current.IsExpired() {
		return nil
	}
	return c.refresh(ctx)
}

func (c *Client) refresh(ctx context.Context) error {
	c.mu.RLock()
	current := c.refreshToken
	c.mu.RUnlock()

	if current == "" {
		return fmt.Errorf("no refresh token available")
	}

	payload, err := json.Marshal(map[string]string{
		"client_id":     oauthClientID,
		"scope":         "client",
		"grant_type":    "refresh_token",
		"refresh_token": current,
	})
	if err != nil {
		return fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.AuthHost+"/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("hardware_id", c.systemID)
	req.Header.Set("2fa-support", "true")

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: refresh token rejected: status=%d body=%s", ErrUnauthorized, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("refresh token failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var tokenResp Token
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return fmt.Errorf("token response missing access_token")
	}

	tokenResp.CreatedAt = time.Now()
	if tokenResp.RefreshToken == "" {
		tokenResp.RefreshToken = current
	}

	c.mu.Lock()
	c.token = &tokenResp
	c.refreshToken = tokenResp.RefreshToken
	c.mu.Unlock()

	if c.opts.Debug {
		c.logger.Debug("Ring access token refreshed", zap.Int("expires_in", tokenResp.ExpiresIn))
	}

	if tokenResp.RefreshToken != current {
		rotation := TokenRotation{
			NewRefreshToken: tokenResp.RefreshToken,
			OldRefreshToken: current,
		}
		select {
		case c.rotations <- rotation:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// createSession 注册客户端会话
func (c *Client) createSession(ctx context.Context) error {
	body := map[string]interface{}{
		"device": map[string]interface{}{
			"hardware_id": c.systemID,
			"metadata": map[string]interface{}{
				"api_version":  apiVersion,
				"device_model": "ringgazer",
			},
			"os": "android",
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode session request: %w", err)
	}

	path := fmt.Sprintf("%s/clients_api/session?api_version=%d", c.opts.APIHost, apiVersion)
	resp, err := c.doRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp, "create session")
}

// doRequest 执行带认证的请求，401 时刷新令牌后重试一次
func (c *Client) doRequest(ctx context.Context, method, rawURL string, body []byte) (*http.Response, error) {
	token := c.GetToken()
	if token == nil || token.IsExpired() {
		if err := c.refreshIfStale(ctx, token); err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		token = c.GetToken()
	}

	resp, err := c.send(ctx, method, rawURL, body, token.AccessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if err := c.refreshIfStale(ctx, token); err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		return c.send(ctx, method, rawURL, body, c.GetToken().AccessToken)
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, method, rawURL string, body []byte, accessToken string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("hardware_id", c.systemID)

	if c.opts.Debug {
		c.logger.Debug("Ring API request", zap.String("method", method), zap.String("url", rawURL))
	}

	return c.httpClient.Do(req)
}

// getJSON GET 请求并解码 JSON
func (c *Client) getJSON(ctx context.Context, rawURL, op string, v interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, op); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// ListLocations 获取地点列表
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var resp locationsResponse
	if err := c.getJSON(ctx, c.opts.AppHost+"/rhq/v1/devices/v1/locations", "list locations", &resp); err != nil {
		return nil, err
	}
	return resp.UserLocations, nil
}

// ListCameras 获取所有摄像头（门铃、共享门铃、摄像头）
func (c *Client) ListCameras(ctx context.Context) ([]Camera, error) {
	var resp devicesResponse
	if err := c.getJSON(ctx, c.opts.APIHost+"/clients_api/ring_devices", "list devices", &resp); err != nil {
		return nil, err
	}

	cameras := make([]Camera, 0, len(resp.Doorbots)+len(resp.AuthorizedDoorbots)+len(resp.StickupCams))
	for _, d := range resp.Doorbots {
		d.IsDoorbell = true
		cameras = append(cameras, d)
	}
	for _, d := range resp.AuthorizedDoorbots {
		d.IsDoorbell = true
		cameras = append(cameras, d)
	}
	cameras = append(cameras, resp.StickupCams...)

	return cameras, nil
}

// ActiveDings 获取当前活跃的事件
func (c *Client) ActiveDings(ctx context.Context) ([]ActiveDing, error) {
	var dings []ActiveDing
	if err := c.getJSON(ctx, c.opts.APIHost+"/clients_api/dings/active", "active dings", &dings); err != nil {
		return nil, err
	}
	return dings, nil
}

// Snapshot 获取摄像头最新快照（JPEG）
func (c *Client) Snapshot(ctx context.Context, cameraID int64) ([]byte, error) {
	rawURL := fmt.Sprintf("%s/snapshots/next/%d", c.opts.SnapsHost, cameraID)
	resp, err := c.doRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, ErrSnapshotUnavailable
	}
	if err := checkStatus(resp, "snapshot"); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrSnapshotUnavailable
	}

	return data, nil
}

// LocationTicket 获取地点实时连接票据
func (c *Client) LocationTicket(ctx context.Context, locationID string) (*Ticket, error) {
	q := url.Values{}
	q.Set("locationID", locationID)
	q.Set("enableExtendedEmergencyCellUsage", "true")
	q.Set("requestedTransport", "ws")

	var ticket Ticket
	if err := c.getJSON(ctx, c.opts.AppHost+"/api/v1/clap/tickets?"+q.Encode(), "location ticket", &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// checkStatus 将非 2xx 状态码转换为错误
func checkStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed: status=%d body=%s", op, resp.StatusCode, string(body))
	}
}

// 错误定义
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	ErrNoHubs              = errors.New("location has no hubs")
)
