package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"EthnoCards/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Publisher posts cards to Telegram channels via the bot API.
type Publisher struct {
	botToken string
	apiBase  string
	client   *http.Client
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher registers the bot token; apiBase may be empty.
func NewPublisher(botToken, apiBase string, client *http.Client) *Publisher {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Publisher{
		botToken: botToken,
		apiBase:  strings.TrimSuffix(apiBase, "/"),
		client:   client,
	}
}

// SendPhoto posts a photo by URL with a caption.
func (p *Publisher) SendPhoto(ctx context.Context, channel, imageURL, caption string) (int64, error) {
	form := url.Values{}
	form.Set("chat_id", channel)
	form.Set("photo", imageURL)
	form.Set("caption", caption)
	return p.call(ctx, "sendPhoto", form)
}

// SendText posts a plain message.
func (p *Publisher) SendText(ctx context.Context, channel, text string) (int64, error) {
	form := url.Values{}
	form.Set("chat_id", channel)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")
	return p.call(ctx, "sendMessage", form)
}

func (p *Publisher) call(ctx context.Context, method string, form url.Values) (int64, error) {
	if p.botToken == "" || form.Get("chat_id") == "" {
		return 0, fmt.Errorf("telegram publisher misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", p.apiBase, p.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, fmt.Errorf("%s: decode response (%s): %w", method, resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK || !decoded.OK {
		return 0, fmt.Errorf("telegram error %s: %s", resp.Status, decoded.Description)
	}
	return decoded.Result.MessageID, nil
}
