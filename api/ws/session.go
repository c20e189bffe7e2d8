package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kasuganosora/gamecaps/rpc"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Session is one websocket connection. It carries RPC frames for the
// capability connection served over it and implements rpc.Transport.
type Session struct {
	ID         string
	RemoteAddr string
	Conn       *websocket.Conn

	sendChan  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewSession wraps conn and starts its write pump.
func NewSession(id string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		ID:         id,
		RemoteAddr: conn.RemoteAddr().String(),
		Conn:       conn,
		sendChan:   make(chan []byte, sendChanBuf),
		done:       make(chan struct{}),
		logger:     logger,
	}
	s.setReadDeadline()
	conn.SetPongHandler(func(string) error {
		s.setReadDeadline()
		return nil
	})
	go s.writePump()
	return s
}

// writePump drains sendChan and writes to the websocket connection.
// It also sends periodic pings so dead peers are noticed by the read side.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	defer s.Close()
	for {
		select {
		case data := <-s.sendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.String("session", s.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			s.flush()
			_ = s.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeDeadline))
			return
		}
	}
}

// flush writes frames that were queued before Close.
func (s *Session) flush() {
	for {
		select {
		case data := <-s.sendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ReadMessage returns the next data frame from the peer.
func (s *Session) ReadMessage() ([]byte, error) {
	for {
		typ, data, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				s.logger.Warn("ws unexpected close", zap.String("session", s.ID), zap.Error(err))
			}
			return nil, err
		}
		s.setReadDeadline()
		if typ == websocket.TextMessage || typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

// WriteMessage queues data for the write pump. It blocks while the queue is
// full and fails with rpc.ErrClosed once the session is closed.
func (s *Session) WriteMessage(data []byte) error {
	if s.IsClosed() {
		return rpc.ErrClosed
	}
	select {
	case s.sendChan <- data:
		return nil
	case <-s.done:
		return rpc.ErrClosed
	}
}

// Close signals the write pump to send a close frame and shut the socket.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) setReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
