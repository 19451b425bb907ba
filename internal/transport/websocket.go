// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	applog "sndsync/internal/log"
)

// EventStream serves loop events to WebSocket subscribers at /events.
// Each event is marshaled once and fanned out to per-client queues; a
// dedicated writer goroutine drains each queue, so a stalled client
// loses events instead of stalling the loop or its peers.
type EventStream struct {
	server *http.Server

	mu      sync.Mutex
	nextID  int
	clients map[int]chan []byte
	closed  bool
}

// Frames queued per subscriber before events are dropped for it.
const clientQueueDepth = 64

// NewEventStream starts an HTTP server on addr with the event stream
// mounted at /events.
func NewEventStream(addr string) *EventStream {
	es := &EventStream{clients: make(map[int]chan []byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", es.serve)
	es.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		applog.Infof("Event stream listening on ws://%s/events", addr)
		if err := es.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("Event stream server: %v", err)
		}
	}()
	return es
}

// Send marshals the event once and queues it for every subscriber.
// Subscribers whose queue is full miss this event.
func (es *EventStream) Send(e Event) error {
	frame, err := json.Marshal(e)
	if err != nil {
		return err
	}
	es.mu.Lock()
	for _, queue := range es.clients {
		select {
		case queue <- frame:
		default:
		}
	}
	es.mu.Unlock()
	return nil
}

// Close drops all subscribers and shuts the server down.
func (es *EventStream) Close() error {
	es.mu.Lock()
	es.closed = true
	for id, queue := range es.clients {
		close(queue)
		delete(es.clients, id)
	}
	es.mu.Unlock()

	return es.server.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (es *EventStream) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("Event stream upgrade: %v", err)
		return
	}

	id, queue, ok := es.subscribe()
	if !ok {
		conn.Close()
		return
	}
	applog.Infof("Event stream subscriber %d connected", id)

	// Writer: drain the queue until unsubscribed or the peer goes away.
	go func() {
		for frame := range queue {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				es.unsubscribe(id)
				break
			}
		}
		conn.Close()
	}()

	// Reader: discard inbound data, detect the peer closing.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				es.unsubscribe(id)
				applog.Infof("Event stream subscriber %d disconnected", id)
				return
			}
		}
	}()
}

func (es *EventStream) subscribe() (id int, queue chan []byte, ok bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.closed {
		return 0, nil, false
	}
	es.nextID++
	queue = make(chan []byte, clientQueueDepth)
	es.clients[es.nextID] = queue
	return es.nextID, queue, true
}

func (es *EventStream) unsubscribe(id int) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if queue, live := es.clients[id]; live {
		close(queue)
		delete(es.clients, id)
	}
}

var _ Transport = (*EventStream)(nil)
