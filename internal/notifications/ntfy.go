package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const userAgent = "storyreel/0.1.0"

// ntfy posts plain-text messages to an ntfy topic URL, using the Title, Tags,
// and Priority headers.
type ntfy struct {
	topicURL string
	client   *http.Client
	allow    map[category]bool
}

func (n *ntfy) Publish(ctx context.Context, event Event, payload Payload) error {
	tpl, known := templates[event]
	if !known || !n.allow[tpl.category] {
		return nil
	}
	return n.post(ctx, render(event, tpl, payload))
}

func (n *ntfy) post(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	req.Header.Set("Tags", strings.Join(msg.tags, ","))
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
