// Package telegram is a small client for the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gradewatch/internal/assert"
	"gradewatch/internal/telemetry"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://api.telegram.org"

// MaxMessageLength is the limit of a sendMessage text, counted in characters.
const MaxMessageLength = 4096

const maxPollTimeout = 50 * time.Second

const (
	report_send_message = "send-message"
	report_get_updates  = "get-updates"
)

// Error is an unsuccessful Bot API response.
type Error struct {
	Code        int
	Description string
}

func (e Error) Error() string {
	return fmt.Sprintf("telegram: %d %s", e.Code, e.Description)
}

type envelope[T any] struct {
	Ok          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Result      T      `json:"result"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Options struct {
	Token string
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
}

type Client struct {
	http *resty.Client
	tel  telemetry.API
}

func NewClient(opts Options, tel telemetry.API) Client {
	assert.NotEmptyStr(opts.Token, "token")
	assert.NotNil(tel, "tel")

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	tel = telemetry.NewScopedAPI("telegram", tel)

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/") + "/bot" + opts.Token)
	client.SetTimeout(maxPollTimeout + 15*time.Second)
	telemetry.InstrumentResty(client, tel)

	return Client{
		http: client,
		tel:  tel,
	}
}

func call[T any](ctx context.Context, req *resty.Request, method string) (T, error) {
	var out envelope[T]
	res, err := req.
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Post("/" + method)
	if err != nil {
		return out.Result, err
	}
	if !out.Ok {
		desc := out.Description
		if desc == "" {
			desc = res.Status()
		}
		return out.Result, Error{Code: res.StatusCode(), Description: desc}
	}
	return out.Result, nil
}

func isParseError(err error) bool {
	var tgErr Error
	return errors.As(err, &tgErr) && tgErr.Code == 400 &&
		strings.Contains(strings.ToLower(tgErr.Description), "can't parse entities")
}

// SendMessage sends text as Markdown, in several messages when it is longer
// than MaxMessageLength. A part Telegram cannot parse as Markdown is resent
// as plain text.
func (c Client) SendMessage(ctx context.Context, chatID, text string) error {
	for _, part := range Split(text, MaxMessageLength) {
		_, err := call[Message](ctx, c.http.R().SetBody(map[string]any{
			"chat_id":    chatID,
			"text":       part,
			"parse_mode": "Markdown",
		}), "sendMessage")
		if isParseError(err) {
			c.tel.ReportWarning(report_send_message, err, "resending as plain text")
			_, err = call[Message](ctx, c.http.R().SetBody(map[string]any{
				"chat_id": chatID,
				"text":    part,
			}), "sendMessage")
		}
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// GetUpdates long polls for updates after offset, timeout is capped at 50s.
func (c Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	if timeout > maxPollTimeout {
		timeout = maxPollTimeout
	}
	updates, err := call[[]Update](ctx, c.http.R().SetQueryParams(map[string]string{
		"offset":          strconv.FormatInt(offset, 10),
		"timeout":         strconv.Itoa(int(timeout / time.Second)),
		"allowed_updates": `["message"]`,
	}), "getUpdates")
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	return updates, nil
}

// Split cuts text into parts of at most limit characters, on line boundaries
// when possible.
func Split(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}

	var parts []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, strings.TrimRight(string(current), "\n"))
			current = current[:0]
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		runes := []rune(line)
		if len(current)+len(runes) <= limit {
			current = append(current, runes...)
			continue
		}
		flush()
		for len(runes) > limit {
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		current = append(current, runes...)
	}
	flush()
	return parts
}
