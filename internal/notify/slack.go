package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// SlackNotifier posts a short human-readable message to a Slack
// incoming webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackNotifier) Name() string { return "slack" }

func (s *SlackNotifier) Notify(ctx context.Context, event Event) error {
	payload := map[string]string{"text": formatSlackText(event)}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func formatSlackText(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", event.Kind, event.ASIN)

	if snap := event.Snapshot; snap != nil {
		if snap.Title != "" {
			fmt.Fprintf(&b, " %s", snap.Title)
		}
		if snap.Price != nil {
			fmt.Fprintf(&b, " price=%s", snap.Price)
		}
		fmt.Fprintf(&b, " stock=%s", snap.Stock)
	}
	if attempt := event.Attempt; attempt != nil {
		fmt.Fprintf(&b, " outcome=%s reason=%s", attempt.Outcome, attempt.Reason)
		if attempt.Outcome == models.PurchaseSucceeded && attempt.Snapshot.Price != nil {
			fmt.Fprintf(&b, " price=%s", attempt.Snapshot.Price)
		}
	}
	return b.String()
}
