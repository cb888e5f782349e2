package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"chatcall/internal/auth"
	"chatcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// TokenVerifier checks access tokens presented on the upgrade request.
type TokenVerifier interface {
	Verify(token string, expected auth.TokenType, now time.Time) (auth.Claims, error)
}

// Server is the websocket transport in front of a Gateway.
type Server struct {
	hub      *Hub
	gateway  *Gateway
	tokens   TokenVerifier
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewServer(hub *Hub, gateway *Gateway, tokens TokenVerifier, log *slog.Logger) *Server {
	return &Server{
		hub:     hub,
		gateway: gateway,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},
		log: logger.Component(log, "signaling"),
	}
}

// Handle is the gin route for the websocket endpoint.
func (s *Server) Handle(c *gin.Context) {
	s.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request and serves it until the peer goes away.
// A missing or invalid token does not close the connection; its events are
// simply ignored.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := s.authenticate(r)
	cl := newClient(uuid.NewString(), userID)
	log := s.log.With("conn_id", cl.id, "user_id", userID)

	// Registered before the handshake completes so events sent right after
	// the client sees the upgrade are not lost.
	if userID > 0 {
		s.hub.register(cl)
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if userID > 0 {
			s.hub.unregister(cl)
		}
		log.Warn("websocket upgrade failed", "err", err)
		return
	}

	ctx := logger.With(context.WithoutCancel(r.Context()), log)
	log.Debug("connection opened", "user_connections", s.hub.online(userID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeLoop(conn, cl)
	}()

	s.readLoop(ctx, conn, cl, log)

	if userID > 0 && s.hub.unregister(cl) {
		if err := s.gateway.Disconnect(ctx, userID); err != nil {
			log.Warn("disconnect cleanup failed", "err", err)
		}
	}
	close(cl.send)
	<-done
	log.Debug("connection closed")
}

func (s *Server) authenticate(r *http.Request) int64 {
	tok := auth.TokenFromRequest(r)
	if tok == "" || s.tokens == nil {
		return 0
	}
	claims, err := s.tokens.Verify(tok, auth.TokenTypeAccess, time.Now())
	if err != nil {
		s.log.Debug("websocket token rejected", "err", err)
		return 0
	}
	return claims.UserID
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, cl *client, log *slog.Logger) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				log.Debug("malformed frame ignored", "err", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("unexpected close", "err", err)
			}
			return
		}
		if err := s.gateway.Handle(ctx, cl.userID, env); err != nil {
			if errors.Is(err, ErrUnknownEvent) || errors.Is(err, ErrBadPayload) || errors.Is(err, ErrInvalidSDP) {
				log.Debug("event ignored", "event", env.Event, "err", err)
				continue
			}
			log.Warn("event failed", "event", env.Event, "err", err)
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				conn.Close()
				drain(cl.send)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				drain(cl.send)
				return
			}
		}
	}
}

// drain consumes sends until the channel is closed so close(cl.send) and the
// final wait never race a stuck writer.
func drain(ch <-chan Event) {
	for range ch {
	}
}
