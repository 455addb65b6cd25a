package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/media"
)

// Notifier posts new-entry and failure messages to a Discord webhook.
// An empty webhook URL yields a noop notifier.
type Notifier interface {
	NotifyEntry(ctx context.Context, entry media.Entry) error
	NotifyError(ctx context.Context, source media.Source, username string, err error)
}

// NewNotifier builds a Notifier for the given webhook.
func NewNotifier(webhookURL string, logger *zap.Logger) Notifier {
	if webhookURL == "" {
		return noopNotifier{}
	}
	return &discordNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type noopNotifier struct{}

func (noopNotifier) NotifyEntry(context.Context, media.Entry) error             { return nil }
func (noopNotifier) NotifyError(context.Context, media.Source, string, error)   {}

type discordNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

type webhookPayload struct {
	Content string `json:"content"`
}

func (n *discordNotifier) NotifyEntry(ctx context.Context, entry media.Entry) error {
	kind := "movie"
	if entry.Kind == media.KindTV {
		kind = "series"
	}
	msg := fmt.Sprintf("Added %s **%s (%d)** from %s/%s", kind, entry.Title, entry.Year, entry.Source, entry.Username)
	if entry.Year == 0 {
		msg = fmt.Sprintf("Added %s **%s** from %s/%s", kind, entry.Title, entry.Source, entry.Username)
	}
	return n.send(ctx, msg)
}

func (n *discordNotifier) NotifyError(ctx context.Context, source media.Source, username string, cause error) {
	msg := fmt.Sprintf("Scrape failed for %s/%s: %v", source, username, cause)
	if err := n.send(ctx, msg); err != nil {
		n.logger.Warn("discord error notification failed", zap.Error(err))
	}
}

func (n *discordNotifier) send(ctx context.Context, content string) error {
	body, err := json.Marshal(webhookPayload{Content: content})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}
	return nil
}
