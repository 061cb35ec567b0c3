package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pixelpath/internal/config"
)

const userAgent = "pixelpath/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventDaemonStarted Event = "daemon_started"
	EventDaemonStopped Event = "daemon_stopped"
	EventItemFailed    Event = "item_failed"
	EventRetryReleased Event = "retry_released"
	EventTest          Event = "test"
)

// Payload carries event details. Keys are event specific.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Enabled() bool
}

// NewService builds an ntfy-backed service, or a no-op one when
// notifications.ntfy_topic is empty.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Enabled() bool { return true }

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventDaemonStarted:
		return message{
			title: "PixelPath - Started",
			body:  fmt.Sprintf("Watching %s", text(payload, "watchDir")),
			tags:  []string{"pixelpath", "daemon", "started"},
		}, true
	case EventDaemonStopped:
		body := fmt.Sprintf("Stopped after processing %d file(s)", number(payload, "processed"))
		if failed := number(payload, "failed"); failed > 0 {
			body = fmt.Sprintf("%s, %d failed", body, failed)
		}
		return message{
			title: "PixelPath - Stopped",
			body:  body,
			tags:  []string{"pixelpath", "daemon", "stopped"},
		}, true
	case EventItemFailed:
		body := fmt.Sprintf("Failed: %s", text(payload, "path"))
		if kind := text(payload, "kind"); kind != "" {
			body = fmt.Sprintf("%s (%s)", body, kind)
		}
		if errText := text(payload, "error"); errText != "" {
			body = body + "\n" + errText
		}
		return message{
			title:    "PixelPath - Processing Failed",
			body:     body,
			tags:     []string{"pixelpath", "error", text(payload, "mediaType")},
			priority: "high",
		}, true
	case EventRetryReleased:
		return message{
			title: "PixelPath - Retrying",
			body:  fmt.Sprintf("Retrying %d failed file(s)", number(payload, "count")),
			tags:  []string{"pixelpath", "retry"},
		}, true
	case EventTest:
		return message{
			title:    "PixelPath - Test",
			body:     "Notification system test",
			tags:     []string{"pixelpath", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func text(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func number(payload Payload, key string) int64 {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	tags := msg.tags[:0:0]
	for _, tag := range msg.tags {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
func (noopService) Enabled() bool                                  { return false }
