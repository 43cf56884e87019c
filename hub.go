package main

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Hub owns all live connections and routes session broadcasts to the
// subscribers watching each session.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64
	writeWait   time.Duration
	telemetry   *telemetryCounters
}

type subscriber struct {
	id         uint64
	conn       *websocket.Conn
	mu         sync.Mutex
	userUID    string
	sessionUID string
}

func newHub(writeWait time.Duration, telemetry *telemetryCounters) *Hub {
	return &Hub{
		subscribers: make(map[uint64]*subscriber),
		writeWait:   writeWait,
		telemetry:   telemetry,
	}
}

// Register adds an authenticated connection and returns its subscriber.
func (h *Hub) Register(conn *websocket.Conn, userUID, sessionUID string) *subscriber {
	sub := &subscriber{
		id:         h.nextID.Add(1),
		conn:       conn,
		userUID:    userUID,
		sessionUID: sessionUID,
	}
	h.mu.Lock()
	h.subscribers[sub.id] = sub
	h.mu.Unlock()
	h.telemetry.IncrementConnections()
	return sub
}

// Unregister removes a connection. Closing the socket is the caller's job.
func (h *Hub) Unregister(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub.id]
	if ok {
		delete(h.subscribers, sub.id)
	}
	h.mu.Unlock()
	if ok {
		h.telemetry.DecrementConnections()
	}
}

// SwitchSession moves a subscriber onto another session feed.
func (h *Hub) SwitchSession(sub *subscriber, sessionUID string) {
	h.mu.Lock()
	sub.sessionUID = sessionUID
	h.mu.Unlock()
}

// send writes one marshaled frame under the per-connection write lock.
func (s *subscriber) send(data []byte, writeWait time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Broadcast sends a marshaled frame to every subscriber of a session, except
// the one identified by skipID (0 skips nobody). Failed connections are
// dropped from the hub and closed.
func (h *Hub) Broadcast(sessionUID string, data []byte, skipID uint64) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		if sub.sessionUID != sessionUID || sub.id == skipID {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if err := sub.send(data, h.writeWait); err != nil {
			logger.Warn().Uint64("conn", sub.id).Err(err).Msg("dropping slow subscriber")
			h.Unregister(sub)
			sub.conn.Close()
			continue
		}
		h.telemetry.RecordBroadcast(len(data))
	}
}

// SubscriberCount reports how many connections watch a session.
func (h *Hub) SubscriberCount(sessionUID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := 0
	for _, sub := range h.subscribers {
		if sub.sessionUID == sessionUID {
			count++
		}
	}
	return count
}
