package collab

import (
	"log/slog"
	"sync"
)

// Relay mirrors room events between server instances. A nil Relay
// keeps everything in-process.
type Relay interface {
	Publish(roomID string, ev Event) error
	// Subscribe delivers events published for roomID by other
	// instances. The returned func cancels the subscription.
	Subscribe(roomID string, deliver func(Event)) (cancel func(), err error)
}

// Registry owns every live room. It is the only creator and destroyer
// of RoomState: creation is gated by the registry lock so concurrent
// joins to a new id construct exactly one room.
type Registry struct {
	log   *slog.Logger
	relay Relay

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(relay Relay, log *slog.Logger) *Registry {
	return &Registry{
		log:   log,
		relay: relay,
		rooms: make(map[string]*Room),
	}
}

// Join attaches a participant to roomID, creating the room on first
// reference. The joiner is rehydrated with the current buffer and the
// whole room receives a fresh presence snapshot.
func (g *Registry) Join(roomID string, p Participant, s Sender) *Room {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	if !ok {
		room = newRoom(roomID, g, g.log)
		g.rooms[roomID] = room
		if g.relay != nil {
			cancel, err := g.relay.Subscribe(roomID, room.deliverRemote)
			if err != nil {
				g.log.Warn("relay subscribe failed, room is local-only", "room", roomID, "err", err)
			} else {
				room.unsubscribe = cancel
			}
		}
		g.log.Info("room created", "room", roomID)
	}
	room.attach(p, s)
	g.mu.Unlock()

	room.sendSnapshot(p.ID)
	room.broadcastPresence()
	g.log.Info("participant joined", "room", roomID, "participant", p.ID)
	return room
}

// Leave detaches a participant. It is idempotent: unknown rooms and
// already-removed participants are no-ops. The last leave destroys the
// room immediately; its buffer does not outlive it.
func (g *Registry) Leave(roomID, participantID string) {
	g.mu.Lock()
	room, ok := g.rooms[roomID]
	if !ok {
		g.mu.Unlock()
		return
	}
	removed, empty := room.detach(participantID)
	if empty {
		delete(g.rooms, roomID)
		if room.unsubscribe != nil {
			room.unsubscribe()
		}
	}
	g.mu.Unlock()

	if !removed {
		return
	}
	g.log.Info("participant left", "room", roomID, "participant", participantID)
	if empty {
		g.log.Info("room destroyed", "room", roomID)
		return
	}
	room.broadcastPresence()
}

// Room returns the live room for id, if any.
func (g *Registry) Room(id string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	return r, ok
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Shutdown waits for every live room's edit queue to drain. Callers
// must have stopped accepting connections first.
func (g *Registry) Shutdown() {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.Unlock()

	for _, r := range rooms {
		r.edits.Wait()
	}
}
