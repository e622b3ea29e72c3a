package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snapsync/internal/config"
)

const userAgent = "snapsync/0.1.0"

// Service defines the notification surface exposed to the scan pipeline.
type Service interface {
	NotifyCycleSummary(ctx context.Context, account string, uploaded, duplicates, failed int) error
	NotifyBundleFlagged(ctx context.Context, account, archive string, uncompressedBytes uint64) error
	NotifyScanError(ctx context.Context, account string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
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

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyCycleSummary(ctx context.Context, account string, uploaded, duplicates, failed int) error {
	account = strings.TrimSpace(account)
	message := fmt.Sprintf("Imported for %s: %d uploaded, %d duplicates", account, uploaded, duplicates)
	title := "Snapsync - Import Complete"
	priority := ""
	if failed > 0 {
		title = "Snapsync - Import Complete (with failures)"
		message = fmt.Sprintf("%s, %d failed", message, failed)
		priority = "high"
	}
	data := payload{
		title:    title,
		message:  message,
		tags:     []string{"snapsync", "import", "completed"},
		priority: priority,
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBundleFlagged(ctx context.Context, account, archive string, uncompressedBytes uint64) error {
	data := payload{
		title: "Snapsync - Suspicious Archive",
		message: fmt.Sprintf("Archive %s for %s announces %d uncompressed bytes; imported anyway, review recommended",
			strings.TrimSpace(archive), strings.TrimSpace(account), uncompressedBytes),
		tags:     []string{"snapsync", "archive", "flagged"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyScanError(ctx context.Context, account string, err error) error {
	var builder strings.Builder
	builder.WriteString("Scan failed")
	if account = strings.TrimSpace(account); account != "" {
		builder.WriteString(" for ")
		builder.WriteString(account)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Snapsync - Error",
		message:  builder.String(),
		tags:     []string{"snapsync", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Snapsync - Test",
		message:  "Notification system test",
		tags:     []string{"snapsync", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

func (noopService) NotifyCycleSummary(context.Context, string, int, int, int) error   { return nil }
func (noopService) NotifyBundleFlagged(context.Context, string, string, uint64) error { return nil }
func (noopService) NotifyScanError(context.Context, string, error) error              { return nil }
func (noopService) TestNotification(context.Context) error                            { return nil }
