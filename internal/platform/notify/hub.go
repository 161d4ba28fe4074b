package notify

import (
	"strconv"
	"sync"
)

// HistoryLimit bounds the in-memory notification history.
const HistoryLimit = 50

// Subscriber receives published notifications. Sends never block: a
// subscriber whose channel is full misses the event.
type Subscriber struct {
	ID string
	C  chan Notification
}

// Hub owns the notification history and the subscriber list. It is injected
// into whoever needs it rather than living as a package-level singleton, so
// lifecycles and tests stay explicit.
type Hub struct {
	mu      sync.RWMutex
	history []Notification // newest first
	subs    map[string]*Subscriber
	nextSub int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]*Subscriber)}
}

// Publish records n in the history (newest first, unread, trimmed to
// HistoryLimit) and fans it out to subscribers without blocking. Sends happen
// under the lock so Unsubscribe cannot close a channel mid-fanout; they are
// non-blocking selects, so the lock is never held on a full buffer.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append([]Notification{n}, h.history...)
	if len(h.history) > HistoryLimit {
		h.history = h.history[:HistoryLimit]
	}
	for _, s := range h.subs {
		select {
		case s.C <- n:
		default:
		}
	}
}

// Subscribe registers a buffered subscriber channel. The caller must
// Unsubscribe when done.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSub++
	s := &Subscriber{
		ID: subID(h.nextSub),
		C:  make(chan Notification, 16),
	}
	h.subs[s.ID] = s
	return s
}

// Unsubscribe removes the subscriber and closes its channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.ID]; !ok {
		return
	}
	delete(h.subs, s.ID)
	close(s.C)
}

// History returns a copy of the current history, newest first.
func (h *Hub) History() []Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Notification, len(h.history))
	copy(out, h.history)
	return out
}

// Unread returns the count of unread notifications.
func (h *Hub) Unread() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, item := range h.history {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead flags a notification as read. Returns false when the id is not in
// the history.
func (h *Hub) MarkRead(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.history {
		if h.history[i].ID == id {
			h.history[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every notification as read.
func (h *Hub) MarkAllRead() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.history {
		h.history[i].Read = true
	}
}

// Dismiss removes a notification from the history. Returns false when the id
// is not present.
func (h *Hub) Dismiss(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.history {
		if h.history[i].ID == id {
			h.history = append(h.history[:i], h.history[i+1:]...)
			return true
		}
	}
	return false
}

func subID(n int) string {
	return "sub-" + strconv.Itoa(n)
}
