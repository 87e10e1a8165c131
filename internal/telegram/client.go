// Package telegram is a thin client for the Telegram Bot API methods the
// bot uses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ParseModeHTML selects HTML formatting for sendMessage.
const ParseModeHTML = "HTML"

// APIError is a non-OK Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client calls the Bot API for one bot token.
type Client struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// New creates a Bot API client. timeout bounds every request and must
// exceed the long-poll timeout.
func New(rawURL, token string, timeout time.Duration) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("base url must include scheme")
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return &Client{
		baseURL: parsed,
		token:   token,
		http: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration, allowed []string) ([]Update, error) {
	body := map[string]any{
		"offset":  offset,
		"timeout": int(timeout / time.Second),
	}
	if len(allowed) > 0 {
		body["allowed_updates"] = allowed
	}
	var out []Update
	if err := c.call(ctx, "getUpdates", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts msg.
func (c *Client) SendMessage(ctx context.Context, msg OutgoingMessage) (*Message, error) {
	var out Message
	if err := c.call(ctx, "sendMessage", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnswerCallbackQuery acknowledges a callback, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	body := map[string]any{"callback_query_id": id}
	if text != "" {
		body["text"] = text
	}
	var ok bool
	return c.call(ctx, "answerCallbackQuery", body, &ok)
}

// DeleteWebhook removes any registered webhook so getUpdates works.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	var ok bool
	return c.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false}, &ok)
}

// GetMe returns the bot's own account.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out User
	if err := c.call(ctx, "getMe", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(body))
	if err != nil {
		return c.scrub(method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return c.scrub(method, err)
	}
	defer resp.Body.Close()

	var payload Response[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Method: method, Code: resp.StatusCode, Description: resp.Status}
		}
		return fmt.Errorf("telegram %s: decode: %w", method, err)
	}
	if !payload.OK {
		apiErr := &APIError{Method: method, Code: payload.ErrorCode, Description: payload.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if payload.Parameters != nil {
			apiErr.RetryAfter = time.Duration(payload.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	if out == nil || len(payload.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/bot" + c.token + "/" + method
	return u.String()
}

// scrub keeps the bot token out of transport errors, which embed the URL.
func (c *Client) scrub(method string, err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, c.token, "<token>")
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}
