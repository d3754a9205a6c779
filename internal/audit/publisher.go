package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrBufferFull is returned by Emit when the worker cannot keep up. The event
// is dropped; flows never block on auditing.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher queues events for the Worker.
type Publisher struct {
	inbox   chan Event
	hasher  *Hasher
	now     func() time.Time
	dropped atomic.Int64
}

func NewPublisher(capacity int, hasher *Hasher) *Publisher {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Publisher{
		inbox:  make(chan Event, capacity),
		hasher: hasher,
		now:    time.Now,
	}
}

func (p *Publisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if event.Category == "" {
		event.Category = event.Action.Category()
	}
	if event.UserID != "" && p.hasher != nil {
		event.UserHash = p.hasher.Hash(event.UserID)
	}
	event.UserID = ""

	select {
	case p.inbox <- event:
		return nil
	default:
		p.dropped.Add(1)
		return ErrBufferFull
	}
}

// Inbox is drained by the Worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Dropped counts events lost to a full buffer.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Worker consumes events and appends them to every sink. A failing sink is
// logged and does not stop delivery to the others.
type Worker struct {
	sinks  []Sink
	inbox  <-chan Event
	logger *slog.Logger
}

func NewWorker(inbox <-chan Event, logger *slog.Logger, sinks ...Sink) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sinks: sinks, inbox: inbox, logger: logger}
}

// Run delivers events until ctx is done, then flushes what is already queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.deliver(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) {
	for _, sink := range w.sinks {
		if err := sink.Append(ctx, event); err != nil {
			w.logger.ErrorContext(ctx, "failed to append audit event",
				"action", string(event.Action),
				"verification_id", event.VerificationID,
				"error", err.Error(),
			)
		}
	}
}
