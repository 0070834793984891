package collab

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CynnixSinn/CyneticsIDE/internal/opqueue"
)

// Sender is the outbound half of a participant's connection. Send must
// be safe for concurrent use; a returned error is treated as a dead
// transport and drops the participant from the room.
type Sender interface {
	Send(Event) error
}

type member struct {
	sender   Sender
	presence Presence
}

// queuedChange wraps an edit on the room's apply queue. Remote changes
// arrived through the relay and are not published back to it.
type queuedChange struct {
	change Change
	remote bool
}

// Room holds one collaboration unit: the authoritative buffer, the
// connected members and their presence. Rooms are created and destroyed
// only by the Registry.
type Room struct {
	ID string

	reg *Registry
	log *slog.Logger

	mu      sync.Mutex // members, buffer, presence, nextSeq
	members map[string]*member
	buffer  *Buffer
	nextSeq int

	edits *opqueue.Queue[queuedChange]

	unsubscribe func()
}

func newRoom(id string, reg *Registry, log *slog.Logger) *Room {
	r := &Room{
		ID:      id,
		reg:     reg,
		log:     log.With("room", id),
		members: make(map[string]*member),
		buffer:  NewBuffer(),
	}
	r.edits = opqueue.New(r.applyQueued)
	return r
}

// attach registers a member. Called with the registry lock held.
func (r *Room) attach(p Participant, s Sender) {
	r.mu.Lock()
	r.members[p.ID] = &member{
		sender: s,
		presence: Presence{
			Participant: p,
			Cursor:      Position{Row: 1, Column: 1},
			LastActive:  time.Now(),
		},
	}
	r.mu.Unlock()
}

// detach removes a member. Called with the registry lock held. Returns
// whether the member was present and whether the room is now empty.
func (r *Room) detach(participantID string) (removed, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[participantID]; !ok {
		return false, len(r.members) == 0
	}
	delete(r.members, participantID)
	return true, len(r.members) == 0
}

// Snapshot returns the buffer contents and version through the
// applier's lock, never concurrently with an in-flight apply.
func (r *Room) Snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buffer.Snapshot(), r.buffer.Version()
}

// Presences returns the full presence set of the room.
func (r *Room) Presences() []Presence {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Presence, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m.presence)
	}
	return out
}

// SubmitChange tags the edit with its arrival sequence number and
// queues it for application. It never blocks on the apply itself.
func (r *Room) SubmitChange(from string, ch Change) {
	ch.From = from
	r.mu.Lock()
	ch.Seq = r.nextSeq
	r.nextSeq++
	r.edits.Enqueue(r.ID, queuedChange{change: ch})
	r.mu.Unlock()
}

// submitRemote queues a change that arrived over the relay; it applies
// like a local edit but is not published back.
func (r *Room) submitRemote(ch Change) {
	r.mu.Lock()
	ch.Seq = r.nextSeq
	r.nextSeq++
	r.edits.Enqueue(r.ID, queuedChange{change: ch, remote: true})
	r.mu.Unlock()
}

// applyQueued is the edit queue worker body: apply to the buffer, then
// relay to everyone but the origin. An out-of-range edit is dropped
// whole and only the sender hears about it.
func (r *Room) applyQueued(_ string, qc queuedChange) {
	ch := qc.change

	r.mu.Lock()
	err := r.buffer.Apply(ch)
	r.mu.Unlock()

	if err != nil {
		r.log.Warn("edit rejected", "from", ch.From, "seq", ch.Seq, "err", err)
		if !qc.remote && errors.Is(err, ErrInvalidRange) {
			r.NotifyParticipant(ch.From, NewEvent(EventError, r.ID, "", ErrorPayload{
				Message: err.Error(),
			}))
		}
		return
	}

	ev := NewEvent(EventChange, r.ID, ch.From, ch)
	r.broadcastLocal(ev, ch.From)
	if !qc.remote {
		r.publish(ev)
	}
}

// UpdateCursor stores the participant's new presence and rebroadcasts
// the room's complete presence set to every member, origin included.
func (r *Room) UpdateCursor(participantID string, cur CursorPayload) error {
	r.mu.Lock()
	m, ok := r.members[participantID]
	if !ok {
		r.mu.Unlock()
		return ErrEntityNotFound
	}
	m.presence.Cursor = cur.Position
	m.presence.Selection = cur.Selection
	m.presence.LastActive = time.Now()
	r.mu.Unlock()

	r.broadcastPresence()
	return nil
}

func (r *Room) broadcastPresence() {
	ev := NewEvent(EventPresence, r.ID, "", PresencePayload{Participants: r.Presences()})
	r.broadcastLocal(ev, "")
}

// Broadcast fans an event out to every member except excludeID and
// publishes it to the cross-node relay. Used by the file and debug
// services for their result events.
func (r *Room) Broadcast(ev Event, excludeID string) {
	r.broadcastLocal(ev, excludeID)
	r.publish(ev)
}

// broadcastLocal snapshots the member set under the lock, then writes
// without it. A failed write drops that one recipient through the
// registry's leave path; the room carries on.
func (r *Room) broadcastLocal(ev Event, excludeID string) {
	type target struct {
		id     string
		sender Sender
	}

	r.mu.Lock()
	targets := make([]target, 0, len(r.members))
	for id, m := range r.members {
		if id == excludeID {
			continue
		}
		targets = append(targets, target{id: id, sender: m.sender})
	}
	r.mu.Unlock()

	for _, t := range targets {
		if err := t.sender.Send(ev); err != nil {
			r.log.Warn("dropping participant after failed write", "participant", t.id, "err", err)
			r.reg.Leave(r.ID, t.id)
		}
	}
}

// NotifyParticipant sends an event to a single member only.
func (r *Room) NotifyParticipant(participantID string, ev Event) {
	r.mu.Lock()
	m, ok := r.members[participantID]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := m.sender.Send(ev); err != nil {
		r.log.Warn("dropping participant after failed write", "participant", participantID, "err", err)
		r.reg.Leave(r.ID, participantID)
	}
}

// sendSnapshot rehydrates one member with the full buffer.
func (r *Room) sendSnapshot(participantID string) {
	lines, version := r.Snapshot()
	r.NotifyParticipant(participantID, NewEvent(EventDoc, r.ID, "", DocPayload{
		Lines:   lines,
		Version: version,
	}))
}

func (r *Room) publish(ev Event) {
	if r.reg.relay == nil {
		return
	}
	if err := r.reg.relay.Publish(r.ID, ev); err != nil {
		r.log.Warn("relay publish failed", "type", ev.Type, "err", err)
	}
}

// deliverRemote handles an event published by another server instance.
// Changes are applied through the local queue so both instances'
// buffers converge; service events are fanned out verbatim.
func (r *Room) deliverRemote(ev Event) {
	switch {
	case ev.Type == EventChange:
		var ch Change
		if err := json.Unmarshal(ev.Payload, &ch); err != nil {
			r.log.Warn("dropping malformed relayed change", "err", err)
			return
		}
		r.submitRemote(ch)
	case ev.Type == EventFileOp || strings.HasPrefix(ev.Type, DebugEventPrefix):
		r.broadcastLocal(ev, "")
	}
}
