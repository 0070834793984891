package collab

import "encoding/json"

// Event types carried over a room connection. Debug events share the
// "debug_" prefix and are routed as a family.
const (
	EventDoc      = "doc"
	EventPresence = "presence"
	EventCursor   = "cursor"
	EventChange   = "change"
	EventFileOp   = "file_operation"
	EventError    = "error"

	DebugEventPrefix = "debug_"
)

// Event is the tagged envelope exchanged with clients. Payload stays
// raw until the handler for Type decodes it.
type Event struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an envelope. Marshal errors cannot
// occur for the payload types used here, so they are swallowed into an
// empty payload.
func NewEvent(typ, room, from string, payload any) Event {
	raw, _ := json.Marshal(payload)
	return Event{Type: typ, Room: room, From: from, Payload: raw}
}

// Position is a 1-based row/column buffer coordinate.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type Selection struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Range addresses the replaced region of a change, 1-based.
type Range struct {
	StartLine int `json:"startLine"`
	StartCol  int `json:"startCol"`
	EndLine   int `json:"endLine"`
	EndCol    int `json:"endCol"`
}

// Change is a single range-replace edit. Seq is assigned on arrival and
// reflects apply order within the room.
type Change struct {
	Range Range  `json:"range"`
	Text  string `json:"text"`
	From  string `json:"from,omitempty"`
	Seq   int    `json:"seq,omitempty"`
}

type CursorPayload struct {
	Position  Position   `json:"position"`
	Selection *Selection `json:"selection,omitempty"`
}

// DocPayload rehydrates a joiner with the full authoritative buffer.
type DocPayload struct {
	Lines   []string `json:"lines"`
	Version int      `json:"version"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
