// Package events publishes ledger events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Fi44er/cashier_bot/utils"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is implemented by the RabbitMQ producer and by the fallback used
// when no broker is configured or reachable.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

type Producer struct {
	exchange string
	logger   *utils.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewProducer(amqpURL, exchange string, logger *utils.Logger) (*Producer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Producer{exchange: exchange, logger: logger, conn: conn, channel: ch}, nil
}

// New returns a broker-backed publisher, or the fallback when amqpURL is
// empty or the broker cannot be reached. Events are best effort; the bot
// never fails a money operation because an event was lost.
func New(amqpURL, exchange string, logger *utils.Logger) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		logger.Info("AMQP_URL is not set, events will only be logged")
		return &Fallback{logger: logger}
	}
	p, err := NewProducer(amqpURL, exchange, logger)
	if err != nil {
		logger.Warnf("RabbitMQ unavailable, events will only be logged: %v", err)
		return &Fallback{logger: logger}
	}
	logger.Infof("✅ Publishing events to exchange %s", exchange)
	return p
}

func (p *Producer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// The channel dies after any channel-level error; reopen it once.
	p.logger.Warnf("Publish %s failed, reopening channel: %v", routingKey, err)
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Fallback logs events instead of sending them.
type Fallback struct {
	logger *utils.Logger
}

func NewFallback(logger *utils.Logger) *Fallback {
	return &Fallback{logger: logger}
}

func (f *Fallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	f.logger.Debugf("Event %s not published (no broker): %+v", routingKey, body)
	return nil
}

func (f *Fallback) Close() {}
