// Package notify delivers formatted messages to their destinations.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"regexp"
	"strings"

	"gradewatch/internal/assert"
	"gradewatch/internal/telegram"

	"github.com/jordan-wright/email"
)

// Sink sends a message body to the destination it was built for.
type Sink interface {
	Send(ctx context.Context, body string) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, body string) error

func (f SinkFunc) Send(ctx context.Context, body string) error {
	return f(ctx, body)
}

// MessageSender is the part of the Telegram client a TelegramSink needs.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

var _ MessageSender = telegram.Client{}

type TelegramSink struct {
	client MessageSender
	chatID string
}

func NewTelegramSink(client MessageSender, chatID string) TelegramSink {
	assert.NotNil(client, "client")
	assert.NotEmptyStr(chatID, "chat id")
	return TelegramSink{client: client, chatID: chatID}
}

func (s TelegramSink) Send(ctx context.Context, body string) error {
	return s.client.SendMessage(ctx, s.chatID, body)
}

type SmtpConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

func (c SmtpConfig) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

type EmailSink struct {
	config SmtpConfig
	send   func(mail *email.Email, addr string, auth smtp.Auth) error
}

func NewEmailSink(config SmtpConfig) EmailSink {
	assert.NotEmptyStr(config.Server, "smtp server")
	return EmailSink{
		config: config,
		send: func(mail *email.Email, addr string, auth smtp.Auth) error {
			return mail.Send(addr, auth)
		},
	}
}

var markdownEscape = regexp.MustCompile(`\\([_*\[` + "`" + `])`)

// plainText drops the legacy Markdown markup of a Telegram message.
func plainText(body string) string {
	body = strings.ReplaceAll(body, `\*`, "\x00")
	body = strings.ReplaceAll(body, "*", "")
	body = strings.ReplaceAll(body, "\x00", `\*`)
	return markdownEscape.ReplaceAllString(body, "$1")
}

func subjectLine(body string) string {
	first, _, _ := strings.Cut(plainText(body), "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return "gradewatch"
	}
	return first
}

func (s EmailSink) Send(ctx context.Context, body string) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("gradewatch <%s>", s.config.EmailAddress)
	mail.To = s.config.To
	mail.Subject = subjectLine(body)
	mail.Text = []byte(plainText(body))

	addr := fmt.Sprintf("%s:%d", s.config.Server, s.config.Port)
	err = s.send(mail, addr, smtp.PlainAuth("", s.config.EmailAddress, s.config.Password, s.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = s.send(mail, addr, nil)
	}
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Multi sends to every sink, a failing sink does not prevent delivery to the
// others.
type Multi []Sink

func (m Multi) Send(ctx context.Context, body string) error {
	var errs []error
	for _, sink := range m {
		err := sink.Send(ctx, body)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
