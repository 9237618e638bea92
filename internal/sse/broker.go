// Package sse implements a per-user Server-Sent Events broker for tree changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/marknest/internal/filetree"
)

// TreeUpdated is sent, throttled per user, after any change to a user's tree.
const TreeUpdated = "tree.updated"

// ServerShutdown is broadcast to every client right before the broker closes.
const ServerShutdown = "server.shutdown"

// Event represents an SSE event. An empty UserID addresses every client.
type Event struct {
	UserID string `json:"-"`
	Type   string `json:"type"`
	Data   any    `json:"data"`
}

type subscription struct {
	userID string
	ch     chan []byte
}

type changeReq struct {
	userID string
	ev     filetree.Event
}

// Broker manages SSE client connections and routes events to the clients of
// the user they belong to.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + per-user throttle timestamps). Public methods communicate with this
// loop through channels, so no mutexes are required.
type Broker struct {
	treeMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan countReq

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type countReq struct {
	userID string // empty counts every client
	resp   chan int
}

// NewBroker creates a new SSE broker with the given tree.updated throttle interval.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}

	b := &Broker{
		treeMin:       treeThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan countReq),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	lastTree := make(map[string]time.Time)

	deliver := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch, owner := range clients {
			if event.UserID != "" && owner != event.UserID {
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
			// Events published before Close still reach their clients.
		drain:
			for {
				select {
				case event := <-b.publishCh:
					deliver(event)
				default:
					break drain
				}
			}
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.userID

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			deliver(event)

		case req := <-b.changeCh:
			deliver(Event{UserID: req.userID, Type: req.ev.Type, Data: req.ev})

			now := time.Now()
			if now.Sub(lastTree[req.userID]) >= b.treeMin {
				lastTree[req.userID] = now
				deliver(Event{UserID: req.userID, Type: TreeUpdated, Data: map[string]string{}})
			}

		case req := <-b.countReqCh:
			n := 0
			for _, owner := range clients {
				if req.userID == "" || owner == req.userID {
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

// Subscribe adds a client for userID and returns its channel.
func (b *Broker) Subscribe(userID string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{userID: userID, ch: ch}:
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

// ClientCount returns the number of clients connected for userID, or of all
// clients when userID is empty.
func (b *Broker) ClientCount(userID string) int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- countReq{userID: userID, resp: resp}:
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

// Publish sends an event to the clients it addresses.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// Notify publishes a tree change to userID's clients followed by a throttled
// tree.updated event. It satisfies filetree.Notifier.
func (b *Broker) Notify(userID string, ev filetree.Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- changeReq{userID: userID, ev: ev}:
	case <-b.stopped:
	}
}

// ServeUser streams userID's events to w until the request ends.
func (b *Broker) ServeUser(w http.ResponseWriter, r *http.Request, userID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(userID)
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
