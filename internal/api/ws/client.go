package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arena-hub/arena-hub/internal/application/registry"
	"github.com/arena-hub/arena-hub/internal/domain/channel"
	"github.com/arena-hub/arena-hub/internal/domain/combat"
	"github.com/arena-hub/arena-hub/internal/domain/event"
	"github.com/arena-hub/arena-hub/internal/domain/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
)

// inboundMessage is the client-to-server envelope.
type inboundMessage struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type chatInbound struct {
	Text string `json:"text"`
}

type chatOutbound struct {
	From string `json:"from"`
	Text string `json:"text"`
}

type actionInbound struct {
	InstanceID uuid.UUID         `json:"instanceId"`
	Kind       combat.ActionKind `json:"kind"`
	TargetID   *uuid.UUID        `json:"targetId,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client is one live websocket connection: a buffered outbound queue
// drained by the write pump, and a read pump dispatching inbound frames.
// It implements the broker's Sender.
type Client struct {
	sess     *session.Session
	conn     *websocket.Conn
	send     chan *event.Envelope
	done     chan struct{}
	registry *registry.Service
	combat   CombatGateway
	logger   zerolog.Logger

	closeOnce sync.Once
}

// CombatGateway is the engine surface reachable from a connection.
type CombatGateway interface {
	SubmitAction(ctx context.Context, instanceID, actorID uuid.UUID, action *combat.Action) error
	Surrender(instanceID, actorID uuid.UUID) error
	MarkConnected(actorID uuid.UUID, connected bool)
}

// NewClient wraps an upgraded connection. The send buffer bounds how far a
// slow consumer can fall behind before deliveries are dropped for it.
func NewClient(sess *session.Session, conn *websocket.Conn, reg *registry.Service, gw CombatGateway, buffer int, logger zerolog.Logger) *Client {
	return &Client{
		sess:     sess,
		conn:     conn,
		send:     make(chan *event.Envelope, buffer),
		done:     make(chan struct{}),
		registry: reg,
		combat:   gw,
		logger:   logger.With().Str("session_id", sess.SessionID.String()).Logger(),
	}
}

// Send queues an envelope without blocking. A full buffer drops the
// delivery for this client only.
func (c *Client) Send(env *event.Envelope) bool {
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// Run starts the pumps and blocks until the connection dies.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// Close tears the connection down. Invoked by the broker when the session
// is deregistered (revalidation failure, staleness reap); idempotent, so
// racing a transport-triggered teardown is fine.
func (c *Client) Close() error {
	c.teardown()
	return nil
}

func (c *Client) readPump(ctx context.Context) {
	defer c.teardown()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		_ = c.registry.Heartbeat(c.sess.SessionID)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("unexpected close")
			}
			return
		}
		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("BAD_MESSAGE", "invalid JSON envelope")
			continue
		}
		c.dispatch(ctx, &msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg *inboundMessage) {
	switch msg.Type {
	case "heartbeat":
		if err := c.registry.Heartbeat(c.sess.SessionID); err != nil {
			c.sendError("EXPIRED", err.Error())
		}
	case "subscribe":
		if err := c.registry.Subscribe(c.sess.SessionID, msg.Channel); err != nil {
			c.sendError(errorCode(err), err.Error())
		}
	case "unsubscribe":
		c.registry.Unsubscribe(c.sess.SessionID, msg.Channel)
	case "chat":
		c.handleChat(msg)
	case "action":
		c.handleAction(ctx, msg)
	case "surrender":
		c.handleSurrender(msg)
	default:
		c.sendError("BAD_MESSAGE", "unknown message type")
	}
}

func (c *Client) handleChat(msg *inboundMessage) {
	var in chatInbound
	if err := json.Unmarshal(msg.Payload, &in); err != nil || in.Text == "" {
		c.sendError("BAD_MESSAGE", "invalid chat payload")
		return
	}
	if !c.registry.Broker().Subscribed(c.sess.SessionID, msg.Channel) {
		c.sendError("FORBIDDEN", "not subscribed to channel")
		return
	}
	from := "anonymous"
	if c.sess.Identity != nil {
		from = c.sess.Identity.Name
	}
	env, err := event.New(event.TypeChat, msg.Channel, 0, chatOutbound{From: from, Text: in.Text})
	if err != nil {
		return
	}
	c.registry.Broker().Publish(msg.Channel, env)
}

func (c *Client) handleAction(ctx context.Context, msg *inboundMessage) {
	actorID := c.sess.ActorID()
	if actorID == nil {
		c.sendError("UNAUTHORIZED", "combat requires authentication")
		return
	}
	var in actionInbound
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		c.sendError("BAD_MESSAGE", "invalid action payload")
		return
	}
	action := &combat.Action{
		ActorID:    *actorID,
		InstanceID: in.InstanceID,
		Kind:       in.Kind,
		TargetID:   in.TargetID,
		Payload:    in.Payload,
	}
	if err := c.combat.SubmitAction(ctx, in.InstanceID, *actorID, action); err != nil {
		// Rejections go to the submitter only; they are never broadcast.
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *Client) handleSurrender(msg *inboundMessage) {
	actorID := c.sess.ActorID()
	if actorID == nil {
		c.sendError("UNAUTHORIZED", "combat requires authentication")
		return
	}
	var in actionInbound
	if err := json.Unmarshal(msg.Payload, &in); err != nil {
		c.sendError("BAD_MESSAGE", "invalid payload")
		return
	}
	if err := c.combat.Surrender(in.InstanceID, *actorID); err != nil {
		c.sendError(errorCode(err), err.Error())
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(code, message string) {
	env, err := event.New(event.TypeError, "", 0, errorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.Send(env)
}

func (c *Client) teardown() {
	// Deregister runs outside the Once body: it cascades back into Close
	// through the broker detach, and Once.Do must never re-enter itself.
	first := false
	c.closeOnce.Do(func() {
		first = true
		if actorID := c.sess.ActorID(); actorID != nil {
			// Disconnection never cancels an instance; the participant
			// becomes eligible for timeout and auto-pass resolution.
			c.combat.MarkConnected(*actorID, false)
		}
		close(c.done)
		_ = c.conn.Close()
	})
	if first {
		c.registry.Deregister(c.sess.SessionID)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, channel.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, channel.ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, channel.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, combat.ErrNotYourTurn):
		return "NOT_YOUR_TURN"
	case errors.Is(err, combat.ErrIllegalAction):
		return "ILLEGAL_ACTION"
	case errors.Is(err, combat.ErrInstanceFull):
		return "INSTANCE_FULL"
	case errors.Is(err, combat.ErrInstanceNotActive):
		return "INSTANCE_NOT_ACTIVE"
	case errors.Is(err, combat.ErrInstanceAborted):
		return "INSTANCE_ABORTED"
	case errors.Is(err, registry.ErrSessionExpired):
		return "EXPIRED"
	default:
		return "INTERNAL"
	}
}
