package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/cdpbridge/pkg/events"
	"github.com/odvcencio/cdpbridge/pkg/logging"
)

// SubscribeMessage represents a subscription request from a client
type SubscribeMessage struct {
	Action  string   `json:"action"` // "subscribe" or "unsubscribe"
	Domains []string `json:"domains,omitempty"`
}

// EventStream pushes aggregated protocol events to websocket subscribers.
type EventStream struct {
	hub    *events.Hub
	logger *logging.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]bool
	upgrader    websocket.Upgrader
}

type subscriber struct {
	conn       *websocket.Conn
	domains    map[string]bool // Filter for specific domains
	subscribed bool            // Whether actively subscribed
	send       chan events.Record
	mu         sync.RWMutex
	writeMu    sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewEventStream creates a new event stream fed by the hub.
func NewEventStream(hub *events.Hub, logger *logging.Logger) *EventStream {
	stream := &EventStream{
		hub:         hub,
		logger:      logger,
		subscribers: make(map[*subscriber]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Loopback ops surface; origin checks happen upstream
			},
		},
	}

	// Start event broadcaster
	go stream.broadcastEvents()

	return stream
}

// HandleWebSocket handles WebSocket connections
func (s *EventStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade WebSocket connection", slog.String("error", err.Error()))
		return
	}

	// Use background context instead of request context (which gets cancelled after upgrade)
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		conn:    conn,
		domains: make(map[string]bool),
		send:    make(chan events.Record, 100), // Buffer for backpressure
		ctx:     ctx,
		cancel:  cancel,
	}

	s.mu.Lock()
	s.subscribers[sub] = true
	s.mu.Unlock()

	s.logger.Info("WebSocket connection established",
		slog.String("remote_addr", r.RemoteAddr),
	)

	// Start goroutines for reading and writing
	go sub.writePump()
	go s.readPump(sub)
}

// readPump handles incoming messages from the client
func (s *EventStream) readPump(sub *subscriber) {
	defer func() {
		s.removeSubscriber(sub)
		sub.writeMu.Lock()
		sub.conn.Close()
		sub.writeMu.Unlock()
	}()

	sub.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg SubscribeMessage
		err := sub.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket read error", slog.String("error", err.Error()))
			}
			return
		}
		switch msg.Action {
		case "subscribe":
			sub.mu.Lock()
			sub.subscribed = true
			for _, domain := range msg.Domains {
				sub.domains[domain] = true
			}
			sub.mu.Unlock()
			s.logger.Debug("Client subscribed to events",
				slog.Any("domains", msg.Domains),
			)

		case "unsubscribe":
			sub.mu.Lock()
			sub.subscribed = false
			sub.domains = make(map[string]bool)
			sub.mu.Unlock()
			s.logger.Debug("Client unsubscribed from all events")

		default:
			s.logger.Warn("Unknown action", slog.String("action", msg.Action))
		}
	}
}

// writePump sends events to the client
func (sub *subscriber) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		sub.cancel()
	}()

	for {
		select {
		case rec, ok := <-sub.send:
			if !ok {
				sub.writeMu.Lock()
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				sub.writeMu.Unlock()
				return
			}

			sub.writeMu.Lock()
			sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := sub.conn.WriteJSON(rec)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-ticker.C:
			sub.writeMu.Lock()
			sub.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := sub.conn.WriteMessage(websocket.PingMessage, nil)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-sub.ctx.Done():
			return
		}
	}
}

// broadcastEvents drains the hub and fans records out to all subscribers
func (s *EventStream) broadcastEvents() {
	ch, cancel := s.hub.Subscribe()
	defer cancel()

	for rec := range ch {
		s.mu.RLock()
		for sub := range s.subscribers {
			sub.mu.RLock()
			subscribed := sub.subscribed
			// Interested if subscribed AND (subscribed to all OR subscribed to this domain)
			interested := subscribed && (len(sub.domains) == 0 || sub.domains[rec.Domain])
			sub.mu.RUnlock()

			if interested {
				select {
				case sub.send <- rec:
					// Event sent successfully
				default:
					// Channel full, skip (backpressure)
					s.logger.Warn("Event stream backpressure, dropping event",
						slog.String("method", rec.Method),
					)
				}
			}
		}
		s.mu.RUnlock()
	}
}

// removeSubscriber removes a subscriber from the list
func (s *EventStream) removeSubscriber(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers[sub] {
		delete(s.subscribers, sub)
		close(sub.send)
		s.logger.Info("WebSocket connection closed")
	}
}

// ActiveConnections returns the number of active WebSocket connections
func (s *EventStream) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Shutdown gracefully closes all connections
func (s *EventStream) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subscribers {
		sub.cancel()
		sub.conn.Close()
		close(sub.send)
	}
	s.subscribers = make(map[*subscriber]bool)
}
