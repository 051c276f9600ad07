package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const appID = "focusquest"

// amqpChannel is the part of *amqp.Channel the sink uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes notices as persistent JSON messages to a durable queue,
// for a push gateway to deliver.
type AMQPSink struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     amqpChannel
	queue  string
	logger *zap.Logger
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string, logger *zap.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial amqp: %w", err)
	}
	sink, err := NewAMQPSink(conn, queue, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	sink.conn = conn
	return sink, nil
}

// NewAMQPSink opens a channel on conn and declares queue. The caller keeps
// ownership of conn.
func NewAMQPSink(conn *amqp.Connection, queue string, logger *zap.Logger) (*AMQPSink, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("notify: declare queue %q: %w", queue, err)
	}
	logger.Info("notification queue declared", zap.String("queue", queue))
	return newAMQPSink(ch, queue, logger), nil
}

func newAMQPSink(ch amqpChannel, queue string, logger *zap.Logger) *AMQPSink {
	return &AMQPSink{ch: ch, queue: queue, logger: logger}
}

// Send publishes n. Channels are not safe for concurrent publishing, so
// sends are serialized.
func (s *AMQPSink) Send(ctx context.Context, n Notice) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode notice: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		AppId:        appID,
		Type:         n.Kind,
	})
	if err != nil {
		return fmt.Errorf("notify: publish %s for %s: %w", n.Kind, n.HeroID, err)
	}
	return nil
}

// Close closes the channel and, when the sink dialed it, the connection.
func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
