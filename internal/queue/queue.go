// Package queue carries payment events from the webhook to the settlement consumer.
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQueueFull   = errors.New("queue: full")
	ErrQueueClosed = errors.New("queue: closed")
)

// Delivery is one attempt at handling a published message.
type Delivery struct {
	Key     string
	Body    []byte
	Attempt int // 1 on first delivery
}

// Handler processes a delivery. A non-nil error schedules a retry until the
// attempt budget is spent, after which the message is dead-lettered.
type Handler func(ctx context.Context, d Delivery) error

type Queue interface {
	PublishJSON(ctx context.Context, key string, v any) error
	// Consume blocks, feeding deliveries to h until ctx is done.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// Options shared by both backends.
type Options struct {
	MaxAttempts int
	Backoff     time.Duration
	Capacity    int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.Backoff <= 0 {
		o.Backoff = 2 * time.Second
	}
	if o.Capacity <= 0 {
		o.Capacity = 1024
	}
	return o
}

// backoffFor doubles the base delay after each failed attempt, capped at one minute.
func backoffFor(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= time.Minute {
			return time.Minute
		}
	}
	return d
}
