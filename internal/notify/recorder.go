package notify

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cart_notifications_dropped_total",
	Help: "Notifications evicted from the poll buffer before a client drained them",
})

// Recorder buffers the most recent notifications for a UI to poll. When full
// the oldest notification is dropped.
type Recorder struct {
	mu  sync.Mutex
	buf []Notification
	max int
}

// NewRecorder creates a recorder holding at most capacity notifications.
func NewRecorder(capacity int) *Recorder {
	if capacity < 1 {
		capacity = 1
	}
	return &Recorder{buf: make([]Notification, 0, capacity), max: capacity}
}

// Notify appends n, evicting the oldest entry when the buffer is full.
func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) == r.max {
		copy(r.buf, r.buf[1:])
		r.buf = r.buf[:len(r.buf)-1]
		droppedTotal.Inc()
	}
	r.buf = append(r.buf, n)
}

// Drain returns buffered notifications oldest first and empties the buffer.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.buf))
	copy(out, r.buf)
	r.buf = r.buf[:0]
	return out
}
