// Package notify delivers notifications and chat system messages produced by
// the booking lifecycle. Publisher hands them to RabbitMQ; LogSink writes them
// to the structured log when no broker is configured.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/carbnb/availability/internal/domain"
)

// Queue names. Both are durable and bound to the default exchange, so the
// routing key is the queue name.
const (
	NotificationsQueue = "notifications"
	ChatQueue          = "chat.system_messages"
)

// ChatMessage is the body published to ChatQueue.
type ChatMessage struct {
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sentAt"`
}

// Publisher publishes JSON messages to RabbitMQ over a single channel.
// It satisfies service.Notifier and service.ChatPoster. A channel or
// connection lost to a broker restart is reopened on the next publish.
type Publisher struct {
	mu     sync.Mutex
	url    string
	dial   func(url string) (*amqp.Connection, error)
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
	log    *slog.Logger
}

// Dial connects to the broker at url and declares both queues.
func Dial(url string, log *slog.Logger) (*Publisher, error) {
	p := &Publisher{url: url, dial: amqp.Dial, log: log}
	if err := p.connect(); err != nil {
		if p.conn != nil {
			_ = p.conn.Close()
		}
		return nil, fmt.Errorf("notify.Dial: %w", err)
	}
	return p, nil
}

// connect opens whatever is missing: the connection if it is gone, then a
// fresh channel with both queues declared. The caller holds mu.
func (p *Publisher) connect() error {
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := p.dial(p.url)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		p.conn = conn
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	for _, q := range []string{NotificationsQueue, ChatQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("declare %s: %w", q, err)
		}
	}
	p.ch = ch
	return nil
}

// Notify publishes n to NotificationsQueue.
func (p *Publisher) Notify(ctx context.Context, n domain.Notification) error {
	if err := p.publish(ctx, NotificationsQueue, n); err != nil {
		return fmt.Errorf("notify.Publisher.Notify: %w", err)
	}
	return nil
}

// PostSystemMessage publishes text for conversationID to ChatQueue.
func (p *Publisher) PostSystemMessage(ctx context.Context, conversationID, text string) error {
	msg := ChatMessage{ConversationID: conversationID, Text: text, SentAt: time.Now().UTC()}
	if err := p.publish(ctx, ChatQueue, msg); err != nil {
		return fmt.Errorf("notify.Publisher.PostSystemMessage: %w", err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publish to %s: publisher closed", queue)
	}
	if p.ch == nil || p.ch.IsClosed() {
		if err := p.connect(); err != nil {
			p.log.WarnContext(ctx, "amqp reconnect failed", "queue", queue, "error", err)
			return fmt.Errorf("publish to %s: reconnect: %w", queue, err)
		}
		p.log.InfoContext(ctx, "amqp channel reopened")
	}
	err = p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.log.WarnContext(ctx, "amqp publish failed", "queue", queue, "error", err)
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Close closes the channel and the connection. Publishing after Close
// fails instead of reconnecting.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	var chErr error
	if p.ch != nil {
		chErr = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}
	return chErr
}
