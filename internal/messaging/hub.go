package messaging

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/brightkind/clinic-platform/pkg/logging"
)

// Hub fans new messages out to the websocket subscribers of each thread.
// Delivery is fire and forget; a subscriber that cannot keep up is dropped
// and can reconnect to catch up from the message list endpoint.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*subscriber]struct{} // thread id -> subscribers
	logger  *logging.Logger
	bufSize int
}

type subscriber struct {
	ch     chan Message
	closed bool
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		subs:    make(map[string]map[*subscriber]struct{}),
		logger:  logger,
		bufSize: 16,
	}
}

// Subscribe registers a listener for one thread and returns the message
// channel plus an unsubscribe func.
func (h *Hub) Subscribe(threadID string) (<-chan Message, func()) {
	sub := &subscriber{ch: make(chan Message, h.bufSize)}
	h.mu.Lock()
	if h.subs[threadID] == nil {
		h.subs[threadID] = make(map[*subscriber]struct{})
	}
	h.subs[threadID][sub] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.drop(threadID, sub)
	}
	return sub.ch, unsubscribe
}

// Publish delivers a message to every live subscriber of its thread.
func (h *Hub) Publish(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[m.ThreadID] {
		select {
		case sub.ch <- m:
		default:
			// Slow consumer. Drop it rather than block the sender.
			h.logger.Warn("dropping slow message subscriber", "thread_id", m.ThreadID)
			h.drop(m.ThreadID, sub)
		}
	}
}

// SubscriberCount reports the live subscribers for a thread.
func (h *Hub) SubscriberCount(threadID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[threadID])
}

// drop must be called with h.mu held.
func (h *Hub) drop(threadID string, sub *subscriber) {
	set := h.subs[threadID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, threadID)
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// serveSubscriber pumps hub messages to one websocket until either side goes
// away.
func serveSubscriber(conn *websocket.Conn, ch <-chan Message, unsubscribe func(), logger *logging.Logger) {
	defer unsubscribe()
	defer conn.Close()

	// Reads are discarded; the socket exists to push messages out. A read
	// error is the signal that the client hung up.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				logger.Debug("websocket write failed", "thread_id", m.ThreadID, "error", err)
				return
			}
		case <-done:
			return
		}
	}
}
