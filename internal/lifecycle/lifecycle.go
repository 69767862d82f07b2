// Package lifecycle tells the desktop that a capture is running, the way a
// mobile recorder keeps a foreground notification up while it records.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// EventKind is a session lifecycle transition
type EventKind int

const (
	CaptureStarted EventKind = iota
	CaptureStopped
	CaptureFailed
)

func (k EventKind) String() string {
	switch k {
	case CaptureStarted:
		return "capture_started"
	case CaptureStopped:
		return "capture_stopped"
	case CaptureFailed:
		return "capture_failed"
	default:
		return "unknown"
	}
}

// Event is posted by the session controller
type Event struct {
	Kind      EventKind
	SessionID string
	Recording string
	Err       error
}

// Notifier delivers events to the user's desktop
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// NopNotifier drops every event
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

func (NopNotifier) Close() error { return nil }

const (
	queueSize       = 16
	deliveryTimeout = 5 * time.Second
)

// Dispatcher delivers events on its own goroutine so a slow or missing
// notification service never blocks the caller. Events are delivered in
// the order they were posted.
type Dispatcher struct {
	notifier Notifier
	events   chan Event
	done     chan struct{}
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(n Notifier) *Dispatcher {
	d := &Dispatcher{
		notifier: n,
		events:   make(chan Event, queueSize),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "lifecycle"),
	}
	go d.run()
	return d
}

// Post queues ev for delivery. It never blocks; when the queue is full the
// event is dropped and logged.
func (d *Dispatcher) Post(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	select {
	case d.events <- ev:
	default:
		d.logger.Warn("Notification queue full, dropping event", "event", ev.Kind, "session_id", ev.SessionID)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for ev := range d.events {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		if err := d.notifier.Notify(ctx, ev); err != nil {
			d.logger.Warn("Failed to deliver lifecycle notification", "event", ev.Kind, "session_id", ev.SessionID, "error", err)
		} else {
			d.logger.Debug("Lifecycle notification delivered", "event", ev.Kind, "session_id", ev.SessionID)
		}
		cancel()
	}
}

// Close delivers queued events, then closes the notifier
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	d.mu.Unlock()

	<-d.done

	if err := d.notifier.Close(); err != nil {
		return fmt.Errorf("failed to close notifier: %w", err)
	}
	return nil
}
