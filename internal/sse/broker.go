// Package sse implements a Server-Sent Events broker for sync and vault updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/marginalia/internal/syncer"
)

// Event types published by the broker.
const (
	EventNotice   = "sync.notice"
	EventStatus   = "sync.status"
	EventProgress = "sync.progress"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type progressReq struct {
	done, total int
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, progress throttle timestamp, last status frame). Public methods
// communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	progressMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	progressCh    chan progressReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ syncer.Notifier = (*Broker)(nil)

// NewBroker creates a new SSE broker. Progress events closer together than
// progressThrottle are dropped, except the final one of a pass.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 250 * time.Millisecond
	}

	b := &Broker{
		progressMin:   progressThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		progressCh:    make(chan progressReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastProgress time.Time
	// Latest sync.status frame, replayed to clients that connect mid-pass.
	var lastStatus []byte

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
		if event.Type == EventStatus {
			lastStatus = raw
		}

		for ch := range clients {
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

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if lastStatus != nil {
				ch <- lastStatus
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.progressCh:
			now := time.Now()
			if req.done < req.total && now.Sub(lastProgress) < b.progressMin {
				continue
			}
			lastProgress = now
			broadcast(Event{Type: EventProgress, Data: syncer.Progress{Done: req.done, Total: req.total}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
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

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
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

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Notice publishes a transient user notice.
func (b *Broker) Notice(msg string) {
	b.Publish(Event{Type: EventNotice, Data: map[string]string{"message": msg}})
}

// Status publishes the persistent sync status.
func (b *Broker) Status(st syncer.Status) {
	b.Publish(Event{Type: EventStatus, Data: st.View()})
}

// Progress publishes a throttled write-phase progress update.
func (b *Broker) Progress(done, total int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.progressCh <- progressReq{done: done, total: total}:
	case <-b.stopped:
	}
}

// PublishFileEvent announces a vault change seen by the watcher.
func (b *Broker) PublishFileEvent(kind, path string) {
	b.Publish(Event{Type: "file." + kind, Data: map[string]string{"path": path}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
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
