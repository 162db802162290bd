package queue

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// eventsExchange is the single topic exchange all engine subjects flow
// through; the subject becomes the routing key.
const eventsExchange = "csms.events"

// RabbitMQQueue implements the MessageQueue interface on RabbitMQ for
// deployments whose billing pipeline already consumes from a broker.
// Unlike the NATS adapter, subscriptions are durable: each subject gets a
// named queue that survives restarts, so order and billing events are not
// lost while a worker is down.
type RabbitMQQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	mu      sync.RWMutex
	log     *zap.Logger

	subsMu sync.Mutex
	subs   map[string][]func(data []byte) error
}

// NewRabbitMQQueue creates a new RabbitMQ message queue adapter
func NewRabbitMQQueue(url string, log *zap.Logger) (MessageQueue, error) {
	q := &RabbitMQQueue{
		url:  url,
		log:  log,
		subs: make(map[string][]func(data []byte) error),
	}
	if err := q.dial(); err != nil {
		return nil, err
	}

	go q.monitorConnection()

	log.Info("Successfully connected to RabbitMQ", zap.String("url", url))
	return q, nil
}

func (q *RabbitMQQueue) dial() error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(eventsExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: declare exchange: %w", err)
	}

	// One event at a time per consumer keeps redelivery windows small.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: set qos: %w", err)
	}

	q.mu.Lock()
	q.conn = conn
	q.channel = ch
	q.mu.Unlock()
	return nil
}

func (q *RabbitMQQueue) Publish(subject string, data []byte) error {
	q.mu.RLock()
	ch := q.channel
	q.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("rabbitmq: channel not available")
	}

	err := ch.Publish(
		eventsExchange, subject, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         data,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", subject, err)
	}
	return nil
}

func (q *RabbitMQQueue) Subscribe(subject string, handler func(data []byte) error) error {
	q.subsMu.Lock()
	q.subs[subject] = append(q.subs[subject], handler)
	q.subsMu.Unlock()

	return q.consume(subject, handler)
}

func (q *RabbitMQQueue) consume(subject string, handler func(data []byte) error) error {
	q.mu.RLock()
	ch := q.channel
	q.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("rabbitmq: channel not available")
	}

	// A durable named queue per subject: events published while the
	// worker is away are delivered on reattach.
	queueName := "csms." + subject
	queue, err := ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", queueName, err)
	}

	if err := ch.QueueBind(queue.Name, subject, eventsExchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue %s: %w", queueName, err)
	}

	msgs, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %s: %w", queueName, err)
	}

	go func() {
		for msg := range msgs {
			if err := handler(msg.Body); err != nil {
				q.log.Error("Error processing RabbitMQ message",
					zap.String("subject", subject),
					zap.Error(err),
				)
				msg.Nack(false, true)
				continue
			}
			msg.Ack(false)
		}
	}()

	q.log.Info("Subscribed to RabbitMQ queue", zap.String("queue", queueName))
	return nil
}

func (q *RabbitMQQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func (q *RabbitMQQueue) monitorConnection() {
	for {
		q.mu.RLock()
		conn := q.conn
		q.mu.RUnlock()

		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error))
		if !ok {
			return
		}
		q.log.Warn("RabbitMQ connection lost, reconnecting...", zap.String("reason", reason.Reason))

		for attempt := 0; ; attempt++ {
			// Fixed 2-5s jittered delay between attempts (it does not grow)
			// so a fleet of workers does not stampede the broker on recovery.
			delay := 2*time.Second + time.Duration(rand.Int63n(int64(3*time.Second)))
			time.Sleep(delay)

			if err := q.dial(); err != nil {
				q.log.Error("Failed to reconnect to RabbitMQ",
					zap.Int("attempt", attempt+1),
					zap.Error(err),
				)
				continue
			}
			break
		}

		// Re-establish every consumer on the fresh channel.
		q.subsMu.Lock()
		subs := make(map[string][]func(data []byte) error, len(q.subs))
		for subject, handlers := range q.subs {
			subs[subject] = append([]func(data []byte) error(nil), handlers...)
		}
		q.subsMu.Unlock()
		for subject, handlers := range subs {
			for _, handler := range handlers {
				if err := q.consume(subject, handler); err != nil {
					q.log.Error("Failed to resubscribe after reconnect",
						zap.String("subject", subject),
						zap.Error(err),
					)
				}
			}
		}

		q.log.Info("Successfully reconnected to RabbitMQ")
	}
}
