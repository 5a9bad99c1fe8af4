package broadcaster

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MessageType tags the broadcast frames subscribers receive
type MessageType string

const (
	// TypeEvent carries a pipeline result (e.g. a risk assessment)
	TypeEvent MessageType = "event"
	// TypeStatus carries operational status for dashboards
	TypeStatus MessageType = "status"
	// TypeDegraded announces that real-time distribution is suspended
	TypeDegraded MessageType = "degraded"
	// TypeRecovered announces that real-time distribution resumed
	TypeRecovered MessageType = "recovered"
)

// Message is the frame fanned out to every live subscriber
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a broadcast message, serializing data as its payload
func NewMessage(messageType MessageType, data interface{}) *Message {
	message := &Message{Type: messageType, Timestamp: time.Now()}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Error().Err(err).Str("type", string(messageType)).Msg("could not serialize broadcast payload")
		} else {
			message.Data = payload
		}
	}
	return message
}

func encodeMessage(message *Message) ([]byte, error) {
	return json.Marshal(message)
}

// Session is one live subscriber connection. Send must not block indefinitely; a slow or
// failing session is evicted from the hub rather than stalling the fan-out.
type Session interface {
	ID() string
	Send(message *Message) error
	Close() error
}

// Hub exclusively owns the subscriber set. Publish iterates a snapshot of the set so
// connect/disconnect can proceed concurrently.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]Session)}
}

// Connect registers a subscriber; it replaces any previous session with the same id
func (hub *Hub) Connect(session Session) {
	hub.mu.Lock()
	previous := hub.sessions[session.ID()]
	hub.sessions[session.ID()] = session
	hub.mu.Unlock()
	if previous != nil {
		previous.Close()
	}
	log.Debug().Str("sessionId", session.ID()).Msg("subscriber connected")
}

// Disconnect removes a subscriber and closes its transport
func (hub *Hub) Disconnect(sessionID string) {
	hub.mu.Lock()
	session := hub.sessions[sessionID]
	delete(hub.sessions, sessionID)
	hub.mu.Unlock()
	if session != nil {
		session.Close()
		log.Debug().Str("sessionId", sessionID).Msg("subscriber disconnected")
	}
}

// SubscriberCount reports the current number of live subscribers
func (hub *Hub) SubscriberCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.sessions)
}

// Publish fans the message out to every current subscriber. A send failure evicts only
// the failing subscriber and never aborts delivery to the rest.
func (hub *Hub) Publish(message *Message) {
	hub.mu.RLock()
	snapshot := make([]Session, 0, len(hub.sessions))
	for _, session := range hub.sessions {
		snapshot = append(snapshot, session)
	}
	hub.mu.RUnlock()
	for _, session := range snapshot {
		if err := session.Send(message); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID()).Msg("evicting subscriber after send failure")
			hub.Disconnect(session.ID())
		}
	}
}

// Close disconnects every subscriber
func (hub *Hub) Close() {
	hub.mu.Lock()
	sessions := hub.sessions
	hub.sessions = make(map[string]Session)
	hub.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}
