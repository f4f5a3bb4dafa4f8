package hackernews

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"newsdigest/internal/feed"
	"newsdigest/internal/logging"
)

const (
	// Origin labels items ingested from Hacker News.
	Origin = "hackernews"

	defaultBaseURL     = "https://hacker-news.firebaseio.com/v0"
	defaultLimit       = 30
	defaultConcurrency = 4
	userAgent          = "newsdigest/1.0"
)

// Config tunes the client.
type Config struct {
	BaseURL     string
	Limit       int
	Concurrency int
	Timeout     time.Duration
}

// Client reads top stories from the Hacker News Firebase API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New constructs a client. A nil logger discards output.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// Name identifies the source.
func (c *Client) Name() string {
	return Origin
}

type story struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Title       string `json:"title"`
	Text        string `json:"text"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
}

// Fetch returns up to Limit top stories in ranking order. Only live stories
// with an outbound URL are kept. A failing story is skipped; failing to list
// top stories, or losing every story, is an error.
func (c *Client) Fetch(ctx context.Context) ([]feed.Record, error) {
	var ids []int64
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("hackernews top stories: %w", err)
	}
	if len(ids) > c.cfg.Limit {
		ids = ids[:c.cfg.Limit]
	}

	slots := make([]*feed.Record, len(ids))
	failures := make([]error, len(ids))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.Concurrency)
	for i, id := range ids {
		group.Go(func() error {
			record, err := c.fetchStory(groupCtx, id)
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				failures[i] = err
				return nil
			}
			slots[i] = record
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("hackernews stories: %w", err)
	}

	records := make([]feed.Record, 0, len(ids))
	var failed []error
	for i, record := range slots {
		if failures[i] != nil {
			failed = append(failed, failures[i])
			c.logger.Warn("hackernews story fetch failed",
				logging.Int64("hn_id", ids[i]),
				logging.Error(failures[i]),
				logging.String(logging.FieldEventType, "hn_story_failed"),
			)
			continue
		}
		if record != nil {
			records = append(records, *record)
		}
	}
	if len(ids) > 0 && len(failed) == len(ids) {
		return nil, fmt.Errorf("hackernews stories: all %d fetches failed: %w", len(ids), errors.Join(failed...))
	}
	return records, nil
}

func (c *Client) fetchStory(ctx context.Context, id int64) (*feed.Record, error) {
	var s *story
	if err := c.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", c.cfg.BaseURL, id), &s); err != nil {
		return nil, err
	}
	if s == nil || s.Type != "story" || s.Dead || s.Deleted || strings.TrimSpace(s.URL) == "" {
		return nil, nil
	}
	published := time.Unix(s.Time, 0).UTC()
	return &feed.Record{
		SourceID:    "hn:" + strconv.FormatInt(s.ID, 10),
		Origin:      Origin,
		Title:       strings.TrimSpace(s.Title),
		Body:        HTMLToText(s.Text),
		URL:         strings.TrimSpace(s.URL),
		Score:       s.Score,
		Comments:    s.Descendants,
		PublishedAt: &published,
		Metadata: map[string]any{
			"hn_id":       s.ID,
			"type":        s.Type,
			"by":          s.By,
			"score":       s.Score,
			"descendants": s.Descendants,
		},
	}, nil
}

func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: http %d: %s", url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// HTMLToText flattens the HTML fragments HN uses in story text into plain
// text, keeping paragraph breaks.
func HTMLToText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + fragment + "</div>"))
	if err != nil {
		return fragment
	}
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		p.BeforeHtml("\n\n")
	})
	doc.Find("br").ReplaceWithHtml("\n")
	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
