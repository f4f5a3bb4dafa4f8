package delivery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"newsdigest/internal/digest"
)

const (
	ntfyUserAgent    = "newsdigest/0.1"
	ntfyTopTitles    = 3
	ntfyMessageLimit = 4096
)

// NtfyConfig holds push notification settings. TopicURL is the full topic
// endpoint, e.g. https://ntfy.sh/my-digest.
type NtfyConfig struct {
	TopicURL string
	Priority string
}

// Ntfy pushes a short plain-text digest summary to an ntfy topic.
type Ntfy struct {
	cfg    NtfyConfig
	client *http.Client
}

// NewNtfy constructs an ntfy deliverer.
func NewNtfy(cfg NtfyConfig, client *http.Client) *Ntfy {
	cfg.TopicURL = strings.TrimSpace(cfg.TopicURL)
	if client == nil {
		client = http.DefaultClient
	}
	return &Ntfy{cfg: cfg, client: client}
}

// Name identifies the deliverer.
func (n *Ntfy) Name() string { return "ntfy" }

// Deliver posts the summary of d.
func (n *Ntfy) Deliver(ctx context.Context, d digest.Digest) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.TopicURL, strings.NewReader(RenderNtfy(d)))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", ntfyUserAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", fmt.Sprintf("News digest %s (%d items)", d.Date(), d.ItemCount()))
	req.Header.Set("Tags", "newspaper,newsdigest")
	if n.cfg.Priority != "" && n.cfg.Priority != "default" {
		req.Header.Set("Priority", n.cfg.Priority)
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

// RenderNtfy lists each section with its item count and top titles.
func RenderNtfy(d digest.Digest) string {
	var b strings.Builder
	for i, section := range d.Sections {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %d\n", section.SectionTitle(), len(section.Entries))
		for j, entry := range section.Entries {
			if j == ntfyTopTitles {
				fmt.Fprintf(&b, "  +%d more\n", len(section.Entries)-ntfyTopTitles)
				break
			}
			fmt.Fprintf(&b, "  • %s\n", entry.Item.Title)
		}
	}
	chunks := splitMessage(strings.TrimRight(b.String(), "\n"), ntfyMessageLimit)
	if len(chunks) == 0 {
		return ""
	}
	return chunks[0]
}
