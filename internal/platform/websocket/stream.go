// Package websocket pushes JSON frames to WebSocket clients. Each connection
// is a Stream with its own write queue; the Hub tracks live streams so they
// can be counted and closed on shutdown.
package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var (
	ErrStreamClosed = errors.New("stream closed")
	ErrSlowConsumer = errors.New("client is not reading fast enough")
)

const sendBuffer = 16

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = defaultPongWait * 9 / 10
)

// Frame is a server-to-client message.
type Frame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Stream is one client connection subscribed to a topic.
type Stream struct {
	ID    string
	Topic string

	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	hub  *Hub
}

// Send queues a frame without blocking. A client whose queue is full is
// disconnected.
func (s *Stream) Send(frameType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(Frame{Type: frameType, Topic: s.Topic, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	select {
	case s.send <- msg:
		return nil
	case <-s.done:
		return ErrStreamClosed
	default:
		s.Close()
		return ErrSlowConsumer
	}
}

// Done is closed when the client goes away or Close is called.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close is safe to call more than once.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
		_ = s.conn.Close()
	})
}

// readPump discards client messages and notices disconnects. A client that
// stops answering pings is dropped after pongWait.
func (s *Stream) readPump() {
	defer s.Close()
	pongWait := s.hub.pongWait
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Stream) writePump() {
	ticker := time.NewTicker(s.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			if err := s.write(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.write(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Stream) write(messageType int, data []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// Hub tracks the open streams. All operations are thread-safe.
type Hub struct {
	mu      sync.RWMutex
	streams map[*Stream]struct{}

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewHub() *Hub {
	return &Hub{
		streams:    make(map[*Stream]struct{}),
		writeWait:  defaultWriteWait,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPingPeriod,
	}
}

// Attach registers conn under topic and starts its read and write pumps.
func (h *Hub) Attach(conn Conn, topic string) *Stream {
	s := &Stream{
		ID:    uuid.NewString(),
		Topic: topic,
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		hub:   h,
	}

	h.mu.Lock()
	h.streams[s] = struct{}{}
	h.mu.Unlock()

	go s.writePump()
	go s.readPump()
	return s
}

func (h *Hub) remove(s *Stream) {
	h.mu.Lock()
	delete(h.streams, s)
	h.mu.Unlock()
}

// Count returns the number of open streams.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}

// TopicCount returns the number of open streams on topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for s := range h.streams {
		if s.Topic == topic {
			n++
		}
	}
	return n
}

// CloseAll disconnects every stream.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	streams := make([]*Stream, 0, len(h.streams))
	for s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.RUnlock()

	for _, s := range streams {
		s.Close()
	}
}

// Upgrader turns HTTP requests into WebSocket connections.
type Upgrader struct {
	up gorillawebsocket.Upgrader
}

// NewUpgrader accepts browser origins in allowed ("*" allows any). Requests
// without an Origin header, such as CLI clients, are always accepted.
func NewUpgrader(allowed []string) *Upgrader {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return &Upgrader{up: gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || set["*"] || set[origin]
		},
	}}
}

// Upgrade writes the handshake response. On failure the response has already
// been written.
func (u *Upgrader) Upgrade(c echo.Context) (Conn, error) {
	ws, err := u.up.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}
