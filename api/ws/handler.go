package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/config"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/quest"
	mw "github.com/kasuganosora/focusquest/middleware"
	"github.com/kasuganosora/focusquest/notify"
	"go.uber.org/zap"
)

// Client-to-server packet types.
const (
	TypeStart      = "quest_start"
	TypeGiveUp     = "quest_give_up"
	TypeComplete   = "quest_complete"
	TypeRefresh    = "quest_refresh"
	TypeClearError = "quest_clear_error"
	TypeGetState   = "quest_state"
	TypePing       = "ping"
)

// Server-to-client packet types.
const (
	TypeConnected = "connected"
	TypeAck       = "ack"
	TypePong      = "pong"
	TypeError     = "error"
	TypeState     = "state"
	TypeEffect    = "effect"
	TypeNotice    = "notice"
	TypeAnnounce  = "announce"
)

const announceChannel = "announce"

type startPayload struct {
	Minutes int    `json:"minutes"`
	Class   string `json:"class"`
}

// ackPayload answers an intent. Error is a *quest.Error or a plain message.
type ackPayload struct {
	State quest.State `json:"state"`
	Error interface{} `json:"error,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Handler is the Gin handler for GET /ws. Each connection carries quest
// intents in and the hero's state, effects and notices out.
type Handler struct {
	mgr      *quest.Manager
	pubsub   cache.PubSub
	cache    cache.Cache
	sec      config.SecurityConfig
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler with the quest packet types registered.
// sec.AllowedOrigins controls which origins may connect.
func NewHandler(mgr *quest.Manager, ps cache.PubSub, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	h := &Handler{
		mgr:    mgr,
		pubsub: ps,
		cache:  c,
		sec:    sec,
		router: NewRouter(logger),
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	h.registerQuest()
	return h
}

func (h *Handler) registerQuest() {
	h.router.On(TypeStart, func(ctx context.Context, s *Session, pkt Packet) error {
		var p startPayload
		if len(pkt.Payload) > 0 {
			if err := json.Unmarshal(pkt.Payload, &p); err != nil {
				s.Send(TypeError, pkt.Seq, errorPayload{Message: "invalid payload"})
				return nil
			}
		}
		return h.process(ctx, s, pkt.Seq, quest.StartQuest{Minutes: p.Minutes, Class: hero.Class(p.Class)})
	})
	intents := map[string]quest.Intent{
		TypeGiveUp:     quest.GiveUp{},
		TypeComplete:   quest.Complete{},
		TypeRefresh:    quest.Refresh{},
		TypeClearError: quest.ClearError{},
	}
	for typ, in := range intents {
		in := in
		h.router.On(typ, func(ctx context.Context, s *Session, pkt Packet) error {
			return h.process(ctx, s, pkt.Seq, in)
		})
	}
	h.router.On(TypeGetState, func(ctx context.Context, s *Session, pkt Packet) error {
		st, err := h.mgr.Store(ctx, s.HeroID)
		if err != nil {
			return h.ack(s, pkt.Seq, quest.State{}, err)
		}
		s.Send(TypeAck, pkt.Seq, ackPayload{State: st.State()})
		return nil
	})
	h.router.On(TypePing, func(_ context.Context, s *Session, pkt Packet) error {
		s.Send(TypePong, pkt.Seq, map[string]int64{"server_time": time.Now().UnixMilli()})
		return nil
	})
}

func (h *Handler) process(ctx context.Context, s *Session, seq uint64, in quest.Intent) error {
	st, err := h.mgr.Process(ctx, s.HeroID, in)
	return h.ack(s, seq, st, err)
}

// ack replies to an intent. Lifecycle errors belong to the client; anything
// else is returned for the router to log.
func (h *Handler) ack(s *Session, seq uint64, st quest.State, err error) error {
	if err == nil {
		s.Send(TypeAck, seq, ackPayload{State: st})
		return nil
	}
	var qe *quest.Error
	if errors.As(err, &qe) {
		s.Send(TypeAck, seq, ackPayload{State: st, Error: qe})
		return nil
	}
	msg := "internal error"
	if errors.Is(err, quest.ErrManagerClosed) {
		msg = "shutting down"
	}
	s.Send(TypeAck, seq, ackPayload{State: st, Error: errorPayload{Message: msg}})
	return err
}

// ServeWS handles GET /ws?token=<jwt>.
func (h *Handler) ServeWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	checkCtx, cancelCheck := context.WithTimeout(c.Request.Context(), 2*time.Second)
	exists, err := h.cache.Exists(checkCtx, mw.SessionKey(tokenStr))
	cancelCheck()
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	s := NewSession(claims.HeroID, conn, h.logger)
	defer s.Close()

	events := map[string]string{
		quest.StateChannel(s.HeroID):   TypeState,
		quest.EffectsChannel(s.HeroID): TypeEffect,
		notify.Channel(s.HeroID):       TypeNotice,
		announceChannel:                TypeAnnounce,
	}
	channels := make([]string, 0, len(events))
	for ch := range events {
		channels = append(channels, ch)
	}
	msgs, unsubscribe, err := h.pubsub.Subscribe(ctx, channels...)
	if err != nil {
		h.logger.Error("ws subscribe failed", zap.String("hero_id", s.HeroID), zap.Error(err))
		return
	}
	defer unsubscribe()
	go h.forward(ctx, s, msgs, events)

	h.logger.Info("hero connected", zap.String("hero_id", s.HeroID))
	s.Send(TypeConnected, 0, map[string]string{"hero_id": s.HeroID})
	h.readPump(ctx, s)
	h.logger.Info("hero disconnected", zap.String("hero_id", s.HeroID))
}

// forward relays pubsub messages to the session, named after their channel.
func (h *Handler) forward(ctx context.Context, s *Session, msgs <-chan *cache.Message, events map[string]string) {
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			typ, known := events[msg.Channel]
			if !known {
				continue
			}
			payload := json.RawMessage(msg.Payload)
			if !json.Valid(payload) {
				b, _ := json.Marshal(msg.Payload)
				payload = b
			}
			data, err := json.Marshal(Packet{Type: typ, Payload: payload})
			if err != nil {
				continue
			}
			s.SendRaw(typ, data)
		case <-s.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) readPump(ctx context.Context, s *Session) {
	s.setReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.setReadDeadline()
		return nil
	})
	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close", zap.String("hero_id", s.HeroID), zap.Error(err))
			}
			return
		}
		s.setReadDeadline()
		h.router.Dispatch(ctx, s, raw)
	}
}
