// Package notify delivers restock alerts to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"restock-monitor/internal/config"
	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/models"
	"restock-monitor/internal/telegram"
)

// Notifier delivers a notification. Delivery is best effort: a failure is
// reported once and never retried.
type Notifier interface {
	Send(ctx context.Context, n Notification) (Receipt, error)
}

// NotificationChannel is one delivery transport.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) (Receipt, error)
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type NotificationType
	// Destination overrides the channel's configured destination when set.
	Destination string
	Title       string
	Message     string
	Data        map[string]interface{}
	Timestamp   time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationRestock NotificationType = "restock"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

// Receipt identifies a delivered notification on the transport that carried
// it, e.g. a Telegram message id.
type Receipt struct {
	Channel   string
	Reference string
}

// ErrNoChannels is returned when nothing is enabled to carry a notification.
var ErrNoChannels = errors.New("no notification channel enabled")

// FormatRestock builds the alert for a restock event.
func FormatRestock(item models.TrackedItem, event models.RestockEvent) Notification {
	title := fmt.Sprintf("🆕 Restock: %s", item.Label())

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Item: %s\n", item.Label()))
	if item.StoreLabel != "" {
		sb.WriteString(fmt.Sprintf("Store: %s\n", item.StoreLabel))
	}
	sb.WriteString(fmt.Sprintf("Quantity: %d → %d (+%d)\n", event.PreviousQuantity, event.NewQuantity, event.Delta))
	sb.WriteString(fmt.Sprintf("Detected at: %s UTC", event.DetectedAt.UTC().Format("2006-01-02 15:04")))

	return Notification{
		Type:      NotificationRestock,
		Title:     title,
		Message:   sb.String(),
		Timestamp: event.DetectedAt,
		Data: map[string]interface{}{
			"event_id":          event.ID,
			"item_id":           event.ItemID,
			"previous_quantity": event.PreviousQuantity,
			"new_quantity":      event.NewQuantity,
			"delta":             event.Delta,
		},
	}
}

// MultiNotifier sends notifications to multiple channels. A send succeeds
// when at least one channel accepted it; the receipt is the first channel's
// that returned a reference.
type MultiNotifier struct {
	channels []NotificationChannel
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewMultiNotifier creates a MultiNotifier with the channels enabled in cfg.
// tg may be nil when no bot token is configured.
func NewMultiNotifier(cfg *config.NotificationConfig, tg *telegram.Client, logger zerolog.Logger) *MultiNotifier {
	mn := &MultiNotifier{
		channels: make([]NotificationChannel, 0),
		logger:   logger.With().Str("component", "notify").Logger(),
	}

	if !cfg.Enabled {
		return mn
	}

	if cfg.Telegram.Enabled && tg != nil {
		mn.channels = append(mn.channels, NewTelegramNotifier(tg, cfg.Telegram.ChatID))
	}
	if cfg.Webhook.Enabled {
		mn.channels = append(mn.channels, NewWebhookNotifier(cfg.Webhook))
	}
	if cfg.Email.Enabled {
		mn.channels = append(mn.channels, NewEmailNotifier(cfg.Email))
	}
	if cfg.AMQP.Enabled {
		mn.channels = append(mn.channels, NewAMQPNotifier(cfg.AMQP))
	}

	return mn
}

// AddChannel adds a notification channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	defer mn.mu.Unlock()
	mn.channels = append(mn.channels, ch)
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	names := make([]string, 0, len(mn.channels))
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			names = append(names, ch.Name())
		}
	}
	return names
}

// Send sends a notification to all enabled channels.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) (Receipt, error) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	mn.mu.RLock()
	channels := mn.channels
	mn.mu.RUnlock()

	var (
		receipt   Receipt
		delivered bool
		errs      []string
	)
	for _, ch := range channels {
		if !ch.IsEnabled() {
			continue
		}
		r, err := ch.Send(ctx, n)
		if err != nil {
			mn.logger.Warn().Err(err).Str("channel", ch.Name()).Msg("Notification channel failed")
			errs = append(errs, fmt.Sprintf("%s: %v", ch.Name(), err))
			continue
		}
		if !delivered || (receipt.Reference == "" && r.Reference != "") {
			receipt = r
		}
		delivered = true
	}

	switch {
	case delivered:
		return receipt, nil
	case len(errs) == 0:
		return Receipt{}, apperrors.NewDeliveryError("multi", ErrNoChannels)
	default:
		return Receipt{}, apperrors.NewDeliveryError("multi", fmt.Errorf("all channels failed: %s", strings.Join(errs, "; ")))
	}
}

// Close releases channel resources.
func (mn *MultiNotifier) Close() error {
	mn.mu.RLock()
	defer mn.mu.RUnlock()

	var errs []error
	for _, ch := range mn.channels {
		if c, ok := ch.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NoOpNotifier is a notifier that does nothing (for testing or disabled notifications).
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// Send does nothing.
func (n *NoOpNotifier) Send(ctx context.Context, notif Notification) (Receipt, error) {
	return Receipt{Channel: "noop"}, nil
}
