// Package notify dispatches post-publish events to in-process listeners.
//
// A Dispatcher is attached to a producermanager.Manager as its Notifier. Each
// successful fan-out produces one Event carrying the manager's origin tag,
// delivered synchronously to every listener in subscription order.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/kafka-fanout/pkg/metrics"
	"github.com/ava-labs/kafka-fanout/pkg/producermanager"
)

// Event is emitted once per successful fan-out.
type Event struct {
	Origin string
	Time   time.Time
}

// Listener handles dispatched events. Listeners run on the caller's goroutine
// and must not block.
type Listener interface {
	Handle(e Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(e Event)

func (f ListenerFunc) Handle(e Event) {
	f(e)
}

// Dispatcher fans events out to its listeners.
// It is safe for concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
	now       func() time.Time
}

var _ producermanager.Notifier = (*Dispatcher)(nil)

// NewDispatcher returns a Dispatcher with the given initial listeners.
func NewDispatcher(listeners ...Listener) *Dispatcher {
	return &Dispatcher{
		listeners: append([]Listener(nil), listeners...),
		now:       time.Now,
	}
}

// Subscribe appends l to the listener list.
func (d *Dispatcher) Subscribe(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Notify builds an Event for origin and hands it to every listener.
func (d *Dispatcher) Notify(origin string) {
	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()

	e := Event{Origin: origin, Time: d.now().UTC()}
	for _, l := range listeners {
		l.Handle(e)
	}
}

// LogListener logs every event at debug level.
func LogListener(log *zap.SugaredLogger) Listener {
	return ListenerFunc(func(e Event) {
		log.Debugw("produce notification", "origin", e.Origin, "time", e.Time)
	})
}

// MetricsListener counts events by origin.
func MetricsListener(m *metrics.Metrics) Listener {
	return ListenerFunc(func(e Event) {
		m.IncNotification(e.Origin)
	})
}
