package ws

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/application/registry"
	"github.com/arena-hub/arena-hub/internal/domain/event"
)

// Close codes mirror the connection policy: 4001 authentication failed,
// 4003 channel access denied.
const (
	closeAuthFailed   = 4001
	closeAccessDenied = 4003
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades connections and binds them to the session registry.
type Handler struct {
	registry *registry.Service
	combat   CombatGateway
	buffer   int
	logger   zerolog.Logger
}

func NewHandler(reg *registry.Service, gw CombatGateway, buffer int, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: reg,
		combat:   gw,
		buffer:   buffer,
		logger:   logger.With().Str("service", "ws").Logger(),
	}
}

type welcomePayload struct {
	Channel       string `json:"channel"`
	Authenticated bool   `json:"authenticated"`
	SessionID     string `json:"sessionId"`
}

// ServeWS handles GET /ws/{channel}. The credential is optional; anonymous
// connections are limited to public channels.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel")
	credential := extractCredential(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := &pendingClient{conn: conn}
	sess, err := h.registry.Register(r.Context(), client, credential)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeAuthFailed, "authentication failed"), deadline())
		_ = conn.Close()
		return
	}

	c := NewClient(sess, conn, h.registry, h.combat, h.buffer, h.logger)
	client.bind(c)

	if channelID != "" && channelID != registry.GlobalChannel {
		if err := h.registry.Subscribe(sess.SessionID, channelID); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(closeAccessDenied, errorCode(err)), deadline())
			h.registry.Deregister(sess.SessionID)
			_ = conn.Close()
			return
		}
	}

	if env, err := event.New(event.TypeWelcome, channelID, 0, welcomePayload{
		Channel:       channelID,
		Authenticated: sess.Authenticated(),
		SessionID:     sess.SessionID.String(),
	}); err == nil {
		c.Send(env)
	}

	if actorID := sess.ActorID(); actorID != nil {
		h.combat.MarkConnected(*actorID, true)
	}

	h.logger.Info().
		Str("session_id", sess.SessionID.String()).
		Str("channel", channelID).
		Msg("websocket connected")
	c.Run(r.Context())
}

// pendingClient drops deliveries attempted between Register (which
// attaches the sender) and the real client being constructed. Broker
// fan-out may race bind, so the pointer is atomic.
type pendingClient struct {
	conn   *websocket.Conn
	client atomic.Pointer[Client]
}

func (p *pendingClient) bind(c *Client) {
	p.client.Store(c)
}

func (p *pendingClient) Send(env *event.Envelope) bool {
	c := p.client.Load()
	if c == nil {
		return false
	}
	return c.Send(env)
}

func (p *pendingClient) Close() error {
	if c := p.client.Load(); c != nil {
		return c.Close()
	}
	return p.conn.Close()
}

func deadline() time.Time {
	return time.Now().Add(writeWait)
}

func extractCredential(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	}
	return ""
}
