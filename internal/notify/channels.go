package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"restock-monitor/internal/config"
	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/telegram"
)

// TelegramNotifier sends notifications to a fixed chat through the bot.
type TelegramNotifier struct {
	client  *telegram.Client
	chatID  string
	enabled bool
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(client *telegram.Client, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		client:  client,
		chatID:  chatID,
		enabled: client != nil && chatID != "",
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string {
	return "telegram"
}

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool {
	return t.enabled
}

// Send sends a notification via Telegram. The receipt carries the message id.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) (Receipt, error) {
	chatID := t.chatID
	if n.Destination != "" {
		chatID = n.Destination
	}

	// Format message for Telegram (using HTML parse mode)
	text := fmt.Sprintf("<b>%s</b>\n\n%s", escapeHTML(n.Title), escapeHTML(n.Message))

	msg, err := t.client.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return Receipt{}, apperrors.NewDeliveryError(t.Name(), err)
	}

	return Receipt{Channel: t.Name(), Reference: strconv.FormatInt(msg.MessageID, 10)}, nil
}

// escapeHTML escapes HTML special characters for Telegram.
func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url     string
	enabled bool
	client  *http.Client
}

// NewWebhookNotifier creates a new WebhookNotifier.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		url:     cfg.URL,
		enabled: cfg.Enabled && cfg.URL != "",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the name of the notifier.
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// IsEnabled returns whether the notifier is enabled.
func (w *WebhookNotifier) IsEnabled() bool {
	return w.enabled
}

// Send posts the notification as JSON.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) (Receipt, error) {
	url := w.url
	if n.Destination != "" && strings.HasPrefix(n.Destination, "http") {
		url = n.Destination
	}

	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, apperrors.NewDeliveryError(w.Name(), fmt.Errorf("marshaling webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, apperrors.NewDeliveryError(w.Name(), fmt.Errorf("creating webhook request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "RestockMonitor/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return Receipt{}, apperrors.NewDeliveryError(w.Name(), fmt.Errorf("sending webhook: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Receipt{}, apperrors.NewDeliveryError(w.Name(), fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}

	return Receipt{Channel: w.Name(), Reference: resp.Header.Get("X-Request-Id")}, nil
}

// EmailNotifier sends notifications via email using SMTP.
type EmailNotifier struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       string
	enabled  bool
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       cfg.To,
		enabled:  cfg.Enabled && cfg.SMTPHost != "" && cfg.From != "" && cfg.To != "",
	}
}

// Name returns the name of the notifier.
func (e *EmailNotifier) Name() string {
	return "email"
}

// IsEnabled returns whether the notifier is enabled.
func (e *EmailNotifier) IsEnabled() bool {
	return e.enabled
}

// Send sends a notification via email.
func (e *EmailNotifier) Send(ctx context.Context, n Notification) (Receipt, error) {
	to := e.to
	if n.Destination != "" && strings.Contains(n.Destination, "@") {
		to = n.Destination
	}

	msg := buildEmail(e.from, to, n)
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}

	var err error
	if e.smtpPort == 465 {
		err = e.sendWithTLS(addr, auth, to, msg)
	} else {
		// STARTTLS for port 587 or plain for others
		err = smtp.SendMail(addr, auth, e.from, []string{to}, []byte(msg))
	}
	if err != nil {
		return Receipt{}, apperrors.NewDeliveryError(e.Name(), err)
	}
	return Receipt{Channel: e.Name()}, nil
}

func buildEmail(from, to string, n Notification) string {
	body := n.Message
	if len(n.Data) > 0 {
		dataJSON, _ := json.MarshalIndent(n.Data, "", "  ")
		body += "\n\n---\nData:\n" + string(dataJSON)
	}

	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		from, to, n.Title, body)
}

// sendWithTLS sends email using implicit TLS (port 465).
func (e *EmailNotifier) sendWithTLS(addr string, auth smtp.Auth, to, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: e.smtpHost})
	if err != nil {
		return fmt.Errorf("TLS dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth failed: %w", err)
		}
	}
	if err := client.Mail(e.from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT command failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}

	return client.Quit()
}
