package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"driftrace/internal/net/proto"
)

// session is one websocket connection after a successful handshake. Frames
// queued with Send are written by a dedicated goroutine so the room loop
// never waits on a socket.
type session struct {
	conn   *websocket.Conn
	codec  proto.Codec
	logger zerolog.Logger

	writeTimeout time.Duration
	pingInterval time.Duration

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	writerWG  sync.WaitGroup

	// Set once before closed is closed.
	final     []byte
	closeCode int
	closeText string
}

func newSession(conn *websocket.Conn, codec proto.Codec, queue int, writeTimeout, pingInterval time.Duration, logger zerolog.Logger) *session {
	return &session{
		conn:         conn,
		codec:        codec,
		logger:       logger,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		send:         make(chan []byte, queue),
		closed:       make(chan struct{}),
	}
}

func (s *session) Codec() proto.Codec { return s.codec }

// Send queues frame without blocking. A full queue drops the frame.
func (s *session) Send(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the writer. Frames still queued are flushed first.
func (s *session) Close() {
	s.closeOnce.Do(func() {
		s.closeCode = websocket.CloseNormalClosure
		close(s.closed)
	})
}

// Reject ends the session like Close, then writes final as a text frame and
// closes with code. It has no effect on a session that is already closing.
func (s *session) Reject(final []byte, code int, text string) {
	s.closeOnce.Do(func() {
		s.final, s.closeCode, s.closeText = final, code, text
		close(s.closed)
	})
}

func (s *session) messageType() int {
	if s.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (s *session) startWriter() {
	s.writerWG.Add(1)
	go s.writeLoop()
}

// wait blocks until the writer has exited.
func (s *session) wait() {
	s.writerWG.Wait()
}

func (s *session) writeLoop() {
	defer s.writerWG.Done()
	defer s.conn.Close()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-s.send:
			if err := s.write(s.messageType(), frame); err != nil {
				s.logger.Debug().Err(err).Msg("write failed")
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			s.flush()
			if s.final != nil {
				_ = s.write(websocket.TextMessage, s.final)
			}
			deadline := time.Now().Add(s.writeTimeout)
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(s.closeCode, s.closeText), deadline)
			return
		}
	}
}

func (s *session) flush() {
	for {
		select {
		case frame := <-s.send:
			if err := s.write(s.messageType(), frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}
