package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func countContaining(msgs []string, sub string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, sub) {
			n++
		}
	}
	return n
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("p1")
	other := b.Subscribe("p2")
	if b.ClientCount("") != 2 || b.ClientCount("p1") != 1 {
		t.Fatalf("unexpected counts: all=%d p1=%d", b.ClientCount(""), b.ClientCount("p1"))
	}
	b.Unsubscribe(ch)
	b.Unsubscribe(other)
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("p1")
	defer b.Unsubscribe(ch)

	b.Publish(Event{ProjectID: "p1", Type: BlockCreated, Data: map[string]string{"id": "b1"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: block.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"id":"b1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishScopedToProject(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	mine := b.Subscribe("p1")
	defer b.Unsubscribe(mine)
	theirs := b.Subscribe("p2")
	defer b.Unsubscribe(theirs)

	b.Publish(Event{ProjectID: "p1", Type: BlockUpdated, Data: map[string]string{"id": "b1"}})

	if got := drain(mine); countContaining(got, BlockUpdated) != 1 {
		t.Errorf("p1 subscriber got %v", got)
	}
	if got := drain(theirs); len(got) != 0 {
		t.Errorf("p2 subscriber should get nothing, got %v", got)
	}
}

func TestLayoutThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("p1")
	defer b.Unsubscribe(ch)
	other := b.Subscribe("p2")
	defer b.Unsubscribe(other)

	// First event triggers layout.updated; the second, immediately after, does not.
	b.Publish(Event{ProjectID: "p1", Type: BlockCreated, Data: map[string]string{"id": "a"}})
	b.Publish(Event{ProjectID: "p1", Type: BlockUpdated, Data: map[string]string{"id": "b"}})
	// Throttling is per project.
	b.Publish(Event{ProjectID: "p2", Type: BlockCreated, Data: map[string]string{"id": "c"}})

	msgs := drain(ch)
	if n := countContaining(msgs, LayoutUpdated); n != 1 {
		t.Errorf("layout events = %d, want 1 (throttled)", n)
	}
	if n := len(msgs) - countContaining(msgs, LayoutUpdated); n != 2 {
		t.Errorf("block events = %d, want 2", n)
	}
	if n := countContaining(drain(other), LayoutUpdated); n != 1 {
		t.Errorf("p2 layout events = %d, want 1", n)
	}
}

func TestProjectDeletedDoesNotTriggerLayout(t *testing.T) {
	b := NewBroker(time.Millisecond)
	defer b.Close()
	ch := b.Subscribe("p1")
	defer b.Unsubscribe(ch)

	b.Publish(Event{ProjectID: "p1", Type: ProjectDeleted, Data: map[string]string{"project_id": "p1"}})
	msgs := drain(ch)
	if countContaining(msgs, LayoutUpdated) != 0 || len(msgs) != 1 {
		t.Errorf("unexpected messages %v", msgs)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("projectID", "p1")
	req := httptest.NewRequest(http.MethodGet, "/api/projects/p1/events", nil)
	req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("p1") != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{ProjectID: "p1", Type: BlockUpdated, Data: map[string]string{"id": "x"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: block.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("") != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("p1")
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{ProjectID: "p1", Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("p1")
	if b.ClientCount("") != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{ProjectID: "p1", Type: BlockUpdated, Data: map[string]string{"id": "x"}})
}
