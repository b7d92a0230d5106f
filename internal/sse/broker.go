// Package sse implements a Server-Sent Events broker that fans project
// changes out to the browsers viewing that project.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/thinkblock/internal/metrics"
)

// Event types.
const (
	BlockCreated      = "block.created"
	BlockUpdated      = "block.updated"
	BlockDeleted      = "block.deleted"
	DependencyChanged = "dependency.changed"
	ProjectUpdated    = "project.updated"
	ProjectDeleted    = "project.deleted"
	MetadataUpdated   = "metadata.updated"
	LayoutUpdated     = "layout.updated"
)

// Event is one message for the subscribers of ProjectID.
type Event struct {
	ProjectID string `json:"-"`
	Type      string `json:"type"`
	Data      any    `json:"data"`
}

type subscription struct {
	projectID string
	ch        chan []byte
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + per-project layout throttle timestamps). Public methods talk to the
// loop through channels, so no mutexes are required.
type Broker struct {
	layoutMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan countReq

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type countReq struct {
	projectID string // "" counts every client
	resp      chan int
}

// NewBroker creates a broker whose layout.updated hint is emitted at most
// once per layoutThrottle for each project.
func NewBroker(layoutThrottle time.Duration) *Broker {
	if layoutThrottle <= 0 {
		layoutThrottle = 2 * time.Second
	}

	b := &Broker{
		layoutMin:     layoutThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan countReq),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) ([]byte, bool) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, false
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), true
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string) // channel -> project id
	lastLayout := make(map[string]time.Time)

	broadcast := func(event Event) {
		raw, ok := encode(event)
		if !ok {
			return
		}
		for ch, pid := range clients {
			if pid != event.ProjectID {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.projectID
			metrics.SSEClientConnected()

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
				metrics.SSEClientDisconnected()
			}

		case event := <-b.publishCh:
			broadcast(event)
			if event.Type == LayoutUpdated || event.Type == ProjectDeleted {
				continue
			}
			now := time.Now()
			if now.Sub(lastLayout[event.ProjectID]) >= b.layoutMin {
				lastLayout[event.ProjectID] = now
				broadcast(Event{ProjectID: event.ProjectID, Type: LayoutUpdated, Data: map[string]string{}})
			}

		case req := <-b.countReqCh:
			n := 0
			for _, pid := range clients {
				if req.projectID == "" || pid == req.projectID {
					n++
				}
			}
			req.resp <- n
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client for projectID and returns its channel.
func (b *Broker) Subscribe(projectID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{projectID: projectID, ch: ch}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of clients watching projectID, or every
// client when projectID is empty.
func (b *Broker) ClientCount(projectID string) int {
	if b.closed.Load() {
		return 0
	}

	req := countReq{projectID: projectID, resp: make(chan int, 1)}
	select {
	case b.countReqCh <- req:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-req.resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to the project's clients. Every event except
// layout.updated and project.deleted may trigger a throttled layout.updated.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/projects/{projectID}/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	projectID := chi.URLParam(r, "projectID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(projectID)
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
