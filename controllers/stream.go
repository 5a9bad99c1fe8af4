package controllers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/xid"
	"github.com/rs/zerolog/hlog"

	"github.com/perimetric/sentinel-pipeline/broadcaster"
	"github.com/perimetric/sentinel-pipeline/config"
)

const (
	streamPath = "/stream"

	sessionWriteTimeout = 10 * time.Second
	sessionPingInterval = 30 * time.Second
)

var errSendBufferFull = errors.New("subscriber send buffer full")

// wsSession adapts one websocket connection to the hub's Session contract. Send never
// blocks; once the buffered channel is full the hub evicts this subscriber.
type wsSession struct {
	id        string
	conn      *websocket.Conn
	sendChan  chan *broadcaster.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSession(conn *websocket.Conn, sendBufferSize uint) *wsSession {
	return &wsSession{
		id:       xid.New().String(),
		conn:     conn,
		sendChan: make(chan *broadcaster.Message, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// ID returns the session identifier
func (session *wsSession) ID() string {
	return session.id
}

// Send queues the message for the write pump without blocking the hub fan-out
func (session *wsSession) Send(message *broadcaster.Message) error {
	select {
	case <-session.done:
		return errors.New("session closed")
	case session.sendChan <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close shuts the transport down; safe to call more than once
func (session *wsSession) Close() error {
	session.closeOnce.Do(func() {
		close(session.done)
		session.conn.Close()
	})
	return nil
}

// writePump serializes queued messages onto the connection with bounded write deadlines
func (session *wsSession) writePump() {
	ticker := time.NewTicker(sessionPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-session.done:
			return
		case message := <-session.sendChan:
			session.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
			if err := session.conn.WriteJSON(message); err != nil {
				session.Close()
				return
			}
		case <-ticker.C:
			session.conn.SetWriteDeadline(time.Now().Add(sessionWriteTimeout))
			if err := session.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				session.Close()
				return
			}
		}
	}
}

// readPump consumes inbound frames only to notice the peer going away
func (session *wsSession) readPump(hub *broadcaster.Hub) {
	defer hub.Disconnect(session.id)
	for {
		if _, _, err := session.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// StreamController upgrades GET /stream to a websocket and joins it to the hub
type StreamController struct {
	hub            *broadcaster.Hub
	upgrader       websocket.Upgrader
	sendBufferSize uint
}

// NewStreamController Factory for new StreamController
func NewStreamController(hub *broadcaster.Hub, broadcastConfig config.BroadcastConfig) *StreamController {
	return &StreamController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// dashboards are served from their own origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sendBufferSize: broadcastConfig.GetSessionSendBufferSize(),
	}
}

// GetPath returns the endpoint path
func (cont *StreamController) GetPath() string {
	return streamPath
}

// FormatAsRelativeLink Format as relative URL of this resource based on the params
func (cont *StreamController) FormatAsRelativeLink(params ...httprouter.Param) string {
	return streamPath
}

// Get is the GET /stream endpoint controller
func (cont *StreamController) Get(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := cont.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	session := newWSSession(conn, cont.sendBufferSize)
	cont.hub.Connect(session)
	go session.writePump()
	go session.readPump(cont.hub)
}
