// Package debug tracks collaborative debug sessions: breakpoints,
// last-known program state and the running/paused/stopped status.
// Control commands for one session drain FIFO through a per-session
// queue; sessions never change status on their own.
package debug

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CynnixSinn/CyneticsIDE/internal/collab"
	"github.com/CynnixSinn/CyneticsIDE/internal/opqueue"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Command types accepted from clients.
const (
	CmdBreakpointSet   = "breakpoint_set"
	CmdBreakpointClear = "breakpoint_clear"
	CmdStep            = "step"
	CmdContinue        = "continue"
	CmdEvaluate        = "evaluate"
)

// Event types emitted to the room (all carry the "debug_" prefix).
const (
	EventSessionCreated = "debug_session_created"
	EventSessionEnded   = "debug_session_ended"
	EventBreakpointHit  = "debug_breakpoint_hit"
	EventState          = "debug_state"
	EventError          = "debug_error"
)

type StackFrame struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

// Session is the shared debug state all room participants observe.
type Session struct {
	ID           string            `json:"id"`
	RoomID       string            `json:"roomId"`
	Participants []string          `json:"participants"`
	Breakpoints  map[string][]int  `json:"breakpoints"` // file -> sorted lines
	Variables    map[string]string `json:"variables"`
	CallStack    []StackFrame      `json:"callStack"`
	Status       Status            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Command is one control operation against a session. RoomID is
// stamped by the connection layer so failures can still reach the
// origin when the session itself is gone.
type Command struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	RoomID     string `json:"roomId,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Expression string `json:"expression,omitempty"`
	Origin     string `json:"origin,omitempty"`
	At         time.Time
}

// HitReport is the inbound payload of a breakpoint-hit event from the
// external debug adapter.
type HitReport struct {
	SessionID string            `json:"sessionId"`
	File      string            `json:"file"`
	Line      int               `json:"line"`
	Variables map[string]string `json:"variables,omitempty"`
	CallStack []StackFrame      `json:"callStack,omitempty"`
}

// Manager owns every live debug session.
type Manager struct {
	reg *collab.Registry
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	queue *opqueue.Queue[Command]
}

func NewManager(reg *collab.Registry, log *slog.Logger) *Manager {
	m := &Manager{
		reg:      reg,
		log:      log.With("component", "debug"),
		sessions: make(map[string]*Session),
	}
	m.queue = opqueue.New(m.applyCommand)
	return m
}

// Create starts a session for the room and announces it.
func (m *Manager) Create(roomID, origin string) *Session {
	s := &Session{
		ID:           uuid.NewString(),
		RoomID:       roomID,
		Participants: []string{origin},
		Breakpoints:  make(map[string][]int),
		Variables:    make(map[string]string),
		Status:       StatusRunning,
		CreatedAt:    time.Now(),
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	snap := cloneSession(s)
	m.mu.Unlock()

	m.log.Info("debug session created", "session", s.ID, "room", roomID, "by", origin)
	m.announce(roomID, EventSessionCreated, snap)
	return s
}

// Attach adds a participant to the session's participant set.
func (m *Manager) Attach(sessionID, participantID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: debug session %s", collab.ErrEntityNotFound, sessionID)
	}
	for _, p := range s.Participants {
		if p == participantID {
			m.mu.Unlock()
			return nil
		}
	}
	s.Participants = append(s.Participants, participantID)
	m.mu.Unlock()
	return nil
}

// End stops and removes a session. Commands still queued for it will
// fail with a not-found result.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: debug session %s", collab.ErrEntityNotFound, sessionID)
	}
	s.Status = StatusStopped
	snap := *s
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	m.log.Info("debug session ended", "session", sessionID)
	m.announce(snap.RoomID, EventSessionEnded, snap)
	return nil
}

// Submit queues a control command for its session and returns
// immediately. Unknown session ids surface as a debug_error event to
// the origin once the command is drained.
func (m *Manager) Submit(cmd Command) {
	if cmd.At.IsZero() {
		cmd.At = time.Now()
	}
	m.queue.Enqueue(cmd.SessionID, cmd)
}

// Wait blocks until every queued command has applied.
func (m *Manager) Wait() { m.queue.Wait() }

func (m *Manager) applyCommand(_ string, cmd Command) {
	m.mu.Lock()
	s, ok := m.sessions[cmd.SessionID]
	if !ok {
		m.mu.Unlock()
		m.notifyOrigin(cmd, fmt.Sprintf("debug session %s not found", cmd.SessionID))
		return
	}

	switch cmd.Type {
	case CmdBreakpointSet:
		s.Breakpoints[cmd.File] = addLine(s.Breakpoints[cmd.File], cmd.Line)
	case CmdBreakpointClear:
		s.Breakpoints[cmd.File] = removeLine(s.Breakpoints[cmd.File], cmd.Line)
		if len(s.Breakpoints[cmd.File]) == 0 {
			delete(s.Breakpoints, cmd.File)
		}
	case CmdStep:
		s.Status = StatusPaused
	case CmdContinue:
		s.Status = StatusRunning
	case CmdEvaluate:
		// evaluation runs in the external adapter; state is untouched
	default:
		m.mu.Unlock()
		m.notifyOrigin(cmd, fmt.Sprintf("unknown debug command %q", cmd.Type))
		return
	}
	snap := cloneSession(s)
	roomID := s.RoomID
	m.mu.Unlock()

	m.announce(roomID, EventState, snap)
}

// HandleHit records an inbound breakpoint hit from the adapter: the
// session pauses and its last-known program state is replaced.
func (m *Manager) HandleHit(hit HitReport) error {
	m.mu.Lock()
	s, ok := m.sessions[hit.SessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: debug session %s", collab.ErrEntityNotFound, hit.SessionID)
	}
	s.Status = StatusPaused
	if hit.Variables != nil {
		s.Variables = hit.Variables
	}
	if hit.CallStack != nil {
		s.CallStack = hit.CallStack
	}
	snap := cloneSession(s)
	roomID := s.RoomID
	m.mu.Unlock()

	m.announce(roomID, EventBreakpointHit, struct {
		Hit     HitReport `json:"hit"`
		Session Session   `json:"session"`
	}{Hit: hit, Session: snap})
	return nil
}

// HandleError marks the session stopped after an adapter error.
func (m *Manager) HandleError(sessionID, message string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: debug session %s", collab.ErrEntityNotFound, sessionID)
	}
	s.Status = StatusStopped
	snap := cloneSession(s)
	roomID := s.RoomID
	m.mu.Unlock()

	m.log.Warn("debug session error", "session", sessionID, "err", message)
	m.announce(roomID, EventError, struct {
		Message string  `json:"message"`
		Session Session `json:"session"`
	}{Message: message, Session: snap})
	return nil
}

// Session returns a copy of the session state.
func (m *Manager) Session(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: debug session %s", collab.ErrEntityNotFound, id)
	}
	return cloneSession(s), nil
}

func (m *Manager) announce(roomID, eventType string, payload any) {
	room, ok := m.reg.Room(roomID)
	if !ok {
		m.log.Warn("debug event for gone room", "room", roomID, "type", eventType)
		return
	}
	room.Broadcast(collab.NewEvent(eventType, roomID, "", payload), "")
}

func (m *Manager) notifyOrigin(cmd Command, message string) {
	m.log.Warn("debug command failed", "session", cmd.SessionID, "type", cmd.Type, "err", message)
	room, ok := m.reg.Room(cmd.RoomID)
	if !ok {
		return
	}
	payload, _ := json.Marshal(collab.ErrorPayload{Message: message})
	room.NotifyParticipant(cmd.Origin, collab.Event{
		Type:    EventError,
		Room:    room.ID,
		Payload: payload,
	})
}

func cloneSession(s *Session) Session {
	out := *s
	out.Participants = append([]string(nil), s.Participants...)
	out.Breakpoints = make(map[string][]int, len(s.Breakpoints))
	for f, lines := range s.Breakpoints {
		out.Breakpoints[f] = append([]int(nil), lines...)
	}
	out.Variables = make(map[string]string, len(s.Variables))
	for k, v := range s.Variables {
		out.Variables[k] = v
	}
	out.CallStack = append([]StackFrame(nil), s.CallStack...)
	return out
}

func addLine(lines []int, line int) []int {
	for i, l := range lines {
		if l == line {
			return lines
		}
		if l > line {
			lines = append(lines, 0)
			copy(lines[i+1:], lines[i:])
			lines[i] = line
			return lines
		}
	}
	return append(lines, line)
}

func removeLine(lines []int, line int) []int {
	for i, l := range lines {
		if l == line {
			return append(lines[:i], lines[i+1:]...)
		}
	}
	return lines
}
