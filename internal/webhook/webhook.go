package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

// EventDoorbellPressed 门铃事件名
const EventDoorbellPressed = "doorbell_pressed"

// timestampLayout ISO-8601，UTC 毫秒精度
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Event webhook 请求体
type Event struct {
	Event     string `json:"event"`
	Camera    string `json:"camera"`
	Timestamp string `json:"timestamp"`
}

// NewDoorbellEvent 创建门铃事件
func NewDoorbellEvent(camera string, at time.Time) Event {
	return Event{
		Event:     EventDoorbellPressed,
		Camera:    camera,
		Timestamp: FormatTimestamp(at),
	}
}

// FormatTimestamp 格式化为 ISO-8601 UTC 时间
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// Sender webhook 发送器，单次尝试不重试
type Sender struct {
	url  string
	http *resty.Client
}

// NewSender 创建发送器
func NewSender(url string, timeout time.Duration) *Sender {
	r := resty.New()
	r.SetTimeout(timeout)
	r.SetHeader("Content-Type", "application/json")
	r.JSONMarshal = json.Marshal
	r.JSONUnmarshal = json.Unmarshal

	return &Sender{url: url, http: r}
}

// Send 发送事件
func (s *Sender) Send(ctx context.Context, event Event) error {
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(event).
		Post(s.url)

	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook failed: status=%d body=%s", resp.StatusCode(), resp.String())
	}

	return nil
}
