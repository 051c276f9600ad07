package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 64
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second
)

// Packet is the WS message envelope in both directions.
type Packet struct {
	Seq     uint64          `json:"seq,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one hero's WebSocket connection.
type Session struct {
	HeroID  string
	Conn    *websocket.Conn
	LastSeq uint64
	TraceID string

	SendChan chan []byte
	Done     chan struct{}

	logger *zap.Logger
}

// NewSession creates a Session and starts its write goroutine. A nil conn
// leaves the writer off, which tests use to read SendChan directly.
func NewSession(heroID string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		HeroID:   heroID,
		Conn:     conn,
		SendChan: make(chan []byte, sendChanBuf),
		Done:     make(chan struct{}),
		logger:   logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data := <-s.SendChan:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error", zap.String("hero_id", s.HeroID), zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes a packet of type typ carrying payload. Drops when the buffer
// is full or the session is closed.
func (s *Session) Send(typ string, seq uint64, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			s.logger.Error("ws encode failed", zap.String("type", typ), zap.Error(err))
			return
		}
		raw = b
	}
	data, err := json.Marshal(Packet{Seq: seq, Type: typ, Payload: raw})
	if err != nil {
		return
	}
	s.SendRaw(typ, data)
}

// SendRaw queues already encoded bytes.
func (s *Session) SendRaw(typ string, data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		s.logger.Warn("send channel full, dropping packet",
			zap.String("hero_id", s.HeroID), zap.String("type", typ))
	}
}

// Close signals the writer to shut down. Safe to call more than once.
func (s *Session) Close() {
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed reports whether Close has been called.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

func (s *Session) setReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadline))
}
