package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Subscriber subscribes to course channels and invokes handler for incoming events.
type Subscriber interface {
	SubscribeCourse(courseID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains course_id -> set of dashboard connections. Events arrive
// from Redis so every instance sees writes made by the API and the worker.
type Hub struct {
	// courseID -> map[clientID]*Client
	courses map[uuid.UUID]map[string]*Client
	subs    map[uuid.UUID]func()
	mu      sync.RWMutex
	sub     Subscriber
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub. sub may be nil (local broadcast only).
func NewHub(logger *zap.Logger, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		courses: make(map[uuid.UUID]map[string]*Client),
		subs:    make(map[uuid.UUID]func()),
		sub:     sub,
		logger:  logger,
	}
}

// Register adds a client to a course room. Starts the Redis subscription for the course on its first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.courses[c.CourseID] == nil {
		h.courses[c.CourseID] = make(map[string]*Client)
		if h.sub != nil {
			courseID := c.CourseID
			cancel, err := h.sub.SubscribeCourse(courseID, func(event string, payload []byte) {
				h.Broadcast(courseID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("course subscription failed", zap.String("course_id", courseID.String()), zap.Error(err))
			} else {
				h.subs[courseID] = cancel
			}
		}
	}
	h.courses[c.CourseID][c.ID] = c
	h.logger.Debug("client joined course", zap.String("client_id", c.ID), zap.String("course_id", c.CourseID.String()))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.courses[c.CourseID]
	if !ok {
		return
	}
	if _, ok := m[c.ID]; !ok {
		return
	}
	delete(m, c.ID)
	close(c.send)
	if len(m) == 0 {
		delete(h.courses, c.CourseID)
		if cancel, ok := h.subs[c.CourseID]; ok {
			cancel()
			delete(h.subs, c.CourseID)
		}
	}
	h.logger.Debug("client left course", zap.String("client_id", c.ID), zap.String("course_id", c.CourseID.String()))
}

// Broadcast sends a message to all local clients of a course.
func (h *Hub) Broadcast(courseID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.courses[courseID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ClientCount returns the number of connected clients watching a course.
func (h *Hub) ClientCount(courseID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.courses[courseID])
}
