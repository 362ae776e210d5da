package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"spotbook-backend/internal/logger"
)

const attemptHeader = "x-attempt"

// AMQP is a RabbitMQ-backed queue. Messages go through a durable topic exchange
// into a durable queue whose rejected messages land in "<exchange>.dlx".
type AMQP struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	subCh    *amqp.Channel
	pubMu    sync.Mutex
	exchange string
	queue    string
	opts     Options
}

// NewAMQP dials url and declares the exchange, the settlement queue bound to keys,
// and the dead-letter exchange and queue.
func NewAMQP(url, exchange, queueName string, keys []string, opts Options) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	q := &AMQP{conn: conn, exchange: exchange, queue: queueName, opts: opts.withDefaults()}

	if q.pubCh, err = conn.Channel(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if q.subCh, err = conn.Channel(); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := q.declare(keys); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQP) declare(keys []string) error {
	ch := q.subCh
	dlx := q.exchange + ".dlx"

	if err := ch.ExchangeDeclare(q.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	dead, err := ch.QueueDeclare(q.queue+".dead", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(dead.Name, "", dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	main, err := ch.QueueDeclare(q.queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": dlx,
	})
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, rk := range keys {
		if err := ch.QueueBind(main.Name, rk, q.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", rk, err)
		}
	}
	return ch.Qos(1, 0, false)
}

func (q *AMQP) PublishJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.publish(ctx, key, body, 1)
}

func (q *AMQP) publish(ctx context.Context, key string, body []byte, attempt int) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pubCh.PublishWithContext(ctx, q.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
		Body:         body,
	})
}

func (q *AMQP) Consume(ctx context.Context, h Handler) error {
	deliveries, err := q.subCh.ConsumeWithContext(ctx, q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("consume %s: delivery channel closed", q.queue)
			}
			q.handle(ctx, h, msg)
		}
	}
}

func (q *AMQP) handle(ctx context.Context, h Handler, msg amqp.Delivery) {
	d := Delivery{Key: msg.RoutingKey, Body: msg.Body, Attempt: attemptOf(msg.Headers)}
	err := h(ctx, d)
	if err == nil {
		_ = msg.Ack(false)
		return
	}

	if d.Attempt >= q.opts.MaxAttempts {
		logger.Error("Settlement message dead-lettered", "key", d.Key, "attempt", d.Attempt, "error", err)
		_ = msg.Nack(false, false)
		return
	}

	delay := backoffFor(q.opts.Backoff, d.Attempt)
	logger.Warn("Settlement message failed, retrying", "key", d.Key, "attempt", d.Attempt, "retry_in", delay, "error", err)
	select {
	case <-ctx.Done():
		_ = msg.Nack(false, true)
		return
	case <-time.After(delay):
	}
	if perr := q.publish(ctx, d.Key, d.Body, d.Attempt+1); perr != nil {
		logger.Error("Failed to republish settlement message", "key", d.Key, "error", perr)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

func (q *AMQP) Close() error {
	if q.subCh != nil {
		_ = q.subCh.Close()
	}
	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
