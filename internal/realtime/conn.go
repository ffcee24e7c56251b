package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Close codes for rejected websocket subscriptions.
const (
	CloseProjectNotReady = 4000
	CloseAccessDenied    = 4003
	CloseProjectNotFound = 4004
)

// WSSubscriber adapts a websocket connection to the Subscriber interface.
// All writes go through a mutex since gorilla connections allow only one
// concurrent writer.
type WSSubscriber struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSSubscriber wraps an upgraded connection and starts its keepalive and
// read loops. onClose fires once when the peer goes away.
func NewWSSubscriber(conn *websocket.Conn, onClose func(*WSSubscriber)) *WSSubscriber {
	s := &WSSubscriber{
		conn: conn,
		done: make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readLoop(onClose)
	go s.pingLoop()
	return s
}

// Send writes the event as a JSON text message.
func (s *WSSubscriber) Send(event Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(event)
}

// Close terminates the connection. Safe to call more than once.
func (s *WSSubscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// readLoop drains inbound frames so pong handlers run and close frames are
// noticed. Clients do not send application messages.
func (s *WSSubscriber) readLoop(onClose func(*WSSubscriber)) {
	defer func() {
		if onClose != nil {
			onClose(s)
		}
	}()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *WSSubscriber) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
