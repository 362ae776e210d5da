package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"spotbook-backend/internal/logger"
)

// DeadLetter is a message that exhausted its attempts.
type DeadLetter struct {
	Delivery Delivery
	Err      string
	DeadAt   time.Time
}

type task struct {
	delivery  Delivery
	notBefore time.Time
}

// Memory is a bounded in-process queue with delayed retries and a dead-letter list.
type Memory struct {
	mu     sync.Mutex
	tasks  []task
	dead   []DeadLetter
	opts   Options
	wake   chan struct{}
	closed bool
	now    func() time.Time
}

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts: opts.withDefaults(),
		wake: make(chan struct{}, 1),
		now:  time.Now,
	}
}

func (q *Memory) PublishJSON(_ context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return q.push(task{delivery: Delivery{Key: key, Body: body, Attempt: 1}})
}

func (q *Memory) push(t task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if len(q.tasks) >= q.opts.Capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// next pops the first task that is due, or reports how long until one is.
func (q *Memory) next() (task, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	wait := time.Duration(-1)
	for i, t := range q.tasks {
		if !t.notBefore.After(now) {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return t, 0, true
		}
		if d := t.notBefore.Sub(now); wait < 0 || d < wait {
			wait = d
		}
	}
	return task{}, wait, false
}

func (q *Memory) Consume(ctx context.Context, h Handler) error {
	for {
		t, wait, ok := q.next()
		if !ok {
			var (
				tm    *time.Timer
				timer <-chan time.Time
			)
			if wait >= 0 {
				tm = time.NewTimer(wait)
				timer = tm.C
			}
			select {
			case <-ctx.Done():
				if tm != nil {
					tm.Stop()
				}
				return ctx.Err()
			case <-q.wake:
			case <-timer:
			}
			if tm != nil {
				tm.Stop()
			}
			continue
		}
		q.handle(ctx, h, t.delivery)
	}
}

func (q *Memory) handle(ctx context.Context, h Handler, d Delivery) {
	err := h(ctx, d)
	if err == nil {
		return
	}
	if d.Attempt >= q.opts.MaxAttempts {
		logger.Error("Settlement message dead-lettered", "key", d.Key, "attempt", d.Attempt, "error", err)
		q.mu.Lock()
		q.dead = append(q.dead, DeadLetter{Delivery: d, Err: err.Error(), DeadAt: q.now()})
		q.mu.Unlock()
		return
	}

	delay := backoffFor(q.opts.Backoff, d.Attempt)
	logger.Warn("Settlement message failed, retrying", "key", d.Key, "attempt", d.Attempt, "retry_in", delay, "error", err)
	d.Attempt++
	q.mu.Lock()
	q.tasks = append(q.tasks, task{delivery: d, notBefore: q.now().Add(delay)})
	q.mu.Unlock()
}

// Pending reports queued messages, including those waiting for a retry.
func (q *Memory) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// DeadLetters returns a copy of the dead-letter list.
func (q *Memory) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.dead...)
}

func (q *Memory) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
