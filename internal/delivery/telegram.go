package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"newsdigest/internal/digest"
)

const (
	telegramMessageLimit = 4096
	defaultTelegramURL   = "https://api.telegram.org"
)

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	BotToken  string
	ChatID    string
	ParseMode string
	BaseURL   string
}

// Telegram posts the combined digest message through the Bot API.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegram constructs a Telegram deliverer.
func NewTelegram(cfg TelegramConfig, client *http.Client) *Telegram {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramURL
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "MarkdownV2"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Telegram{cfg: cfg, client: client}
}

// Name identifies the deliverer.
func (t *Telegram) Name() string { return "telegram" }

// Deliver renders d and sends it, split into several messages when it exceeds
// the Bot API size limit.
func (t *Telegram) Deliver(ctx context.Context, d digest.Digest) error {
	text := RenderTelegram(d)
	for i, chunk := range splitMessage(text, telegramMessageLimit) {
		if err := t.send(ctx, chunk); err != nil {
			return fmt.Errorf("telegram message %d: %w", i+1, err)
		}
	}
	return nil
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (t *Telegram) send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                t.cfg.ChatID,
		Text:                  text,
		ParseMode:             t.cfg.ParseMode,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.BaseURL, t.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of the error.
		return fmt.Errorf("send message: %s", redactToken(err.Error(), t.cfg.BotToken))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		var apiErr struct {
			Description string `json:"description"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Description != "" {
			return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, apiErr.Description)
		}
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func redactToken(message, token string) string {
	if token == "" {
		return message
	}
	return strings.ReplaceAll(message, token, "<redacted>")
}

// splitMessage cuts text on line boundaries into chunks of at most limit
// bytes. A single oversized line is hard-cut.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimRight(current.String(), "\n"))
			current.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()
	return chunks
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
