package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"restock-monitor/internal/config"
	apperrors "restock-monitor/internal/errors"
)

const (
	DefaultExchange = "restock_events"
	exchangeType    = "topic"
)

// publisher is the subset of *amqp.Channel the notifier uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url, exchange string) (publisher, func() error, error)

// AMQPNotifier publishes notifications to a topic exchange with routing key
// "<type>.<item_id>", e.g. "restock.hw_265193".
type AMQPNotifier struct {
	url      string
	exchange string
	enabled  bool
	dial     dialFunc

	mu        sync.Mutex
	ch        publisher
	closeConn func() error
}

// NewAMQPNotifier creates a new AMQPNotifier. The connection is opened on
// first use and reopened after a failed publish.
func NewAMQPNotifier(cfg config.AMQPConfig) *AMQPNotifier {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPNotifier{
		url:      cfg.URL,
		exchange: exchange,
		enabled:  cfg.Enabled && cfg.URL != "",
		dial:     dialAMQP,
	}
}

func dialAMQP(url, exchange string) (publisher, func() error, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return ch, conn.Close, nil
}

// Name returns the name of the notifier.
func (a *AMQPNotifier) Name() string {
	return "amqp"
}

// IsEnabled returns whether the notifier is enabled.
func (a *AMQPNotifier) IsEnabled() bool {
	return a.enabled
}

// Send publishes the notification. The receipt carries the message id.
func (a *AMQPNotifier) Send(ctx context.Context, n Notification) (Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ch == nil {
		ch, closeConn, err := a.dial(a.url, a.exchange)
		if err != nil {
			return Receipt{}, apperrors.NewDeliveryError(a.Name(), err)
		}
		a.ch, a.closeConn = ch, closeConn
	}

	body, err := json.Marshal(map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Receipt{}, apperrors.NewDeliveryError(a.Name(), fmt.Errorf("could not marshal notification: %w", err))
	}

	messageID := uuid.NewString()
	err = a.ch.PublishWithContext(ctx,
		a.exchange,    // exchange
		routingKey(n), // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    n.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		a.reset()
		return Receipt{}, apperrors.NewDeliveryError(a.Name(), err)
	}

	return Receipt{Channel: a.Name(), Reference: messageID}, nil
}

func routingKey(n Notification) string {
	kind := string(n.Type)
	if kind == "" {
		kind = string(NotificationInfo)
	}
	if id, ok := n.Data["item_id"].(string); ok && id != "" {
		return kind + "." + id
	}
	return kind
}

func (a *AMQPNotifier) reset() {
	if a.ch != nil {
		a.ch.Close()
	}
	if a.closeConn != nil {
		a.closeConn()
	}
	a.ch, a.closeConn = nil, nil
}

// Close closes the broker connection.
func (a *AMQPNotifier) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
	return nil
}
