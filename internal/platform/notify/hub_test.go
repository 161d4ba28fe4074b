package notify

import (
	"strconv"
	"sync"
	"testing"
)

func note(id string) Notification {
	return Notification{ID: id, Type: TypeNewReferral, Title: "New referral received"}
}

func TestHub_HistoryNewestFirstAndBounded(t *testing.T) {
	h := NewHub()
	for i := 0; i < HistoryLimit+10; i++ {
		h.Publish(note(strconv.Itoa(i)))
	}

	history := h.History()
	if len(history) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(history), HistoryLimit)
	}
	if history[0].ID != strconv.Itoa(HistoryLimit+9) {
		t.Errorf("newest entry = %s, want %d", history[0].ID, HistoryLimit+9)
	}
	if h.Unread() != HistoryLimit {
		t.Errorf("unread = %d, want %d", h.Unread(), HistoryLimit)
	}
}

func TestHub_MarkReadAndDismiss(t *testing.T) {
	h := NewHub()
	h.Publish(note("a"))
	h.Publish(note("b"))

	if !h.MarkRead("a") {
		t.Error("MarkRead(a) = false")
	}
	if h.Unread() != 1 {
		t.Errorf("unread = %d, want 1", h.Unread())
	}
	if h.MarkRead("missing") {
		t.Error("MarkRead(missing) = true")
	}

	if !h.Dismiss("b") {
		t.Error("Dismiss(b) = false")
	}
	if len(h.History()) != 1 {
		t.Errorf("history length = %d, want 1", len(h.History()))
	}
	if h.Dismiss("b") {
		t.Error("Dismiss(b) twice = true")
	}

	h.Publish(note("c"))
	h.MarkAllRead()
	if h.Unread() != 0 {
		t.Errorf("unread after MarkAllRead = %d, want 0", h.Unread())
	}
}

func TestHub_SubscribeReceivesPublished(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	h.Publish(note("x"))

	select {
	case n := <-sub.C:
		if n.ID != "x" {
			t.Errorf("received %s, want x", n.ID)
		}
	default:
		t.Fatal("expected buffered notification")
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	// Overflow the subscriber buffer; Publish must not block.
	for i := 0; i < 100; i++ {
		h.Publish(note(strconv.Itoa(i)))
	}
	if len(h.History()) != HistoryLimit {
		t.Errorf("history length = %d, want %d", len(h.History()), HistoryLimit)
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe()
	h.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	// Second unsubscribe is a no-op, not a panic.
	h.Unsubscribe(sub)
}

// Publishing while subscribers churn must never send on a closed channel.
func TestHub_ConcurrentPublishUnsubscribe(t *testing.T) {
	h := NewHub()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			h.Publish(note(strconv.Itoa(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			sub := h.Subscribe()
			h.Unsubscribe(sub)
		}
	}()
	wg.Wait()
}
