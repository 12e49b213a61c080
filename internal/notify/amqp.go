package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

// AMQP publishes messages as JSON to a topic exchange.
// Routing key: sweeper.<kind>.<owner>.
type AMQP struct {
	exchange string
	logger   *log.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQP dials uri and declares a durable topic exchange.
func NewAMQP(uri, exchange string, logger *log.Logger) (*AMQP, error) {
	if logger == nil {
		logger = log.Default()
	}

	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	logger.Printf("connected to broker, exchange %s", exchange)
	return &AMQP{exchange: exchange, logger: logger, conn: conn, ch: ch}, nil
}

// RoutingKey returns the routing key of msg.
func RoutingKey(msg Message) string {
	return "sweeper." + string(msg.Kind) + "." + msg.Owner
}

// Notify implements Notifier.
func (a *AMQP) Notify(_ context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Reopen the channel after a channel-level error closed it.
	if a.ch == nil {
		if a.ch, err = a.conn.Channel(); err != nil {
			return fmt.Errorf("open amqp channel: %w", err)
		}
	}

	pub := amqp.Publishing{
		Headers:     amqp.Table{"x-owner": msg.Owner},
		ContentType: "application/json",
		Timestamp:   msg.Time,
		Body:        body,
	}
	if err := a.ch.Publish(a.exchange, RoutingKey(msg), false, false, pub); err != nil {
		a.ch = nil
		return fmt.Errorf("publish %s: %w", msg.Kind, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			a.logger.Printf("close amqp channel: %v", err)
		}
		a.ch = nil
	}
	return a.conn.Close()
}

var _ Notifier = (*AMQP)(nil)
