package server

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CynnixSinn/CyneticsIDE/internal/collab"
	"github.com/CynnixSinn/CyneticsIDE/internal/debug"
	"github.com/CynnixSinn/CyneticsIDE/internal/fsops"
)

type connState int

const (
	stateConnecting connState = iota
	stateAttached
	stateDetached
)

// client is one websocket connection bound to exactly one room for its
// lifetime; moving rooms means reconnecting.
type client struct {
	id   uuid.UUID
	srv  *Server
	conn *websocket.Conn
	part collab.Participant
	room *collab.Room
	log  *slog.Logger

	mu    sync.Mutex // protects conn writes and state
	state connState
}

func newClient(srv *Server, conn *websocket.Conn, part collab.Participant) *client {
	id := uuid.New()
	return &client{
		id:   id,
		srv:  srv,
		conn: conn,
		part: part,
		log:  srv.log.With("conn", id.String(), "participant", part.ID),
	}
}

// Send implements collab.Sender. Writes are serialized on the client
// mutex; a failed write marks the connection detached so the room's
// drop path and the read loop's close stay idempotent.
func (c *client) Send(ev collab.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateDetached {
		return websocket.ErrCloseSent
	}
	if err := c.conn.WriteJSON(ev); err != nil {
		c.state = stateDetached
		return err
	}
	return nil
}

// attach moves Connecting -> Attached and joins the room.
func (c *client) attach(roomID string) {
	c.mu.Lock()
	c.state = stateAttached
	c.mu.Unlock()
	c.room = c.srv.reg.Join(roomID, c.part, c)
}

// detach is terminal; double-detach is a no-op thanks to the
// idempotent Leave.
func (c *client) detach() {
	c.mu.Lock()
	was := c.state
	c.state = stateDetached
	c.mu.Unlock()

	c.conn.Close()
	if was == stateAttached {
		c.srv.reg.Leave(c.room.ID, c.part.ID)
	}
}

// interact reads events until the transport closes, routing each to
// the room this connection is attached to.
func (c *client) interact() {
	defer c.detach()

	for {
		var ev collab.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("connection closed", "err", err)
			}
			return
		}
		c.route(ev)
	}
}

func (c *client) route(ev collab.Event) {
	switch {
	case ev.Type == collab.EventCursor:
		var cur collab.CursorPayload
		if err := json.Unmarshal(ev.Payload, &cur); err != nil {
			c.reject("malformed cursor payload")
			return
		}
		if err := c.room.UpdateCursor(c.part.ID, cur); err != nil {
			c.reject(err.Error())
		}

	case ev.Type == collab.EventChange:
		var ch collab.Change
		if err := json.Unmarshal(ev.Payload, &ch); err != nil {
			c.reject("malformed change payload")
			return
		}
		c.room.SubmitChange(c.part.ID, ch)

	case ev.Type == collab.EventFileOp:
		var op fsops.Operation
		if err := json.Unmarshal(ev.Payload, &op); err != nil {
			c.reject("malformed file operation payload")
			return
		}
		c.srv.files.Submit(c.room.ID, c.part.ID, op)

	case strings.HasPrefix(ev.Type, collab.DebugEventPrefix):
		c.routeDebug(ev)

	default:
		c.log.Warn("dropping unknown event", "type", ev.Type)
		c.reject("unknown event type " + ev.Type)
	}
}

func (c *client) routeDebug(ev collab.Event) {
	switch ev.Type {
	case debug.EventSessionCreated:
		c.srv.debugger.Create(c.room.ID, c.part.ID)

	case debug.EventSessionEnded:
		var p struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			c.reject("malformed debug payload")
			return
		}
		if err := c.srv.debugger.End(p.SessionID); err != nil {
			c.reject(err.Error())
		}

	case debug.EventBreakpointHit:
		var hit debug.HitReport
		if err := json.Unmarshal(ev.Payload, &hit); err != nil {
			c.reject("malformed breakpoint hit payload")
			return
		}
		if err := c.srv.debugger.HandleHit(hit); err != nil {
			c.reject(err.Error())
		}

	case debug.EventError:
		var p struct {
			SessionID string `json:"sessionId"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			c.reject("malformed debug payload")
			return
		}
		if err := c.srv.debugger.HandleError(p.SessionID, p.Message); err != nil {
			c.reject(err.Error())
		}

	default:
		var cmd debug.Command
		if err := json.Unmarshal(ev.Payload, &cmd); err != nil {
			c.reject("malformed debug payload")
			return
		}
		cmd.Type = strings.TrimPrefix(ev.Type, collab.DebugEventPrefix)
		cmd.RoomID = c.room.ID
		cmd.Origin = c.part.ID
		c.srv.debugger.Submit(cmd)
	}
}

// reject tells only this sender its message was dropped; malformed
// payloads are never relayed to the room.
func (c *client) reject(message string) {
	if err := c.Send(collab.NewEvent(collab.EventError, c.room.ID, "", collab.ErrorPayload{
		Message: message,
	})); err != nil {
		c.log.Warn("could not deliver rejection", "err", err)
	}
}
