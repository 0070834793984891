package collab

import (
	"encoding/json"
	"time"
)

// Participant identifies one connected user. Profile is an opaque blob
// passed through to other clients unvalidated.
type Participant struct {
	ID      string          `json:"id"`
	Profile json.RawMessage `json:"profile,omitempty"`
}

// Presence is a participant's live cursor state within a room. It is
// mutated only by its owner's messages and rebroadcast in full to the
// whole room on every update.
type Presence struct {
	Participant Participant `json:"participant"`
	Cursor      Position    `json:"cursor"`
	Selection   *Selection  `json:"selection,omitempty"`
	LastActive  time.Time   `json:"lastActive"`
}

// PresencePayload carries the complete presence set of a room; clients
// replace their local view wholesale, never reconciling diffs.
type PresencePayload struct {
	Participants []Presence `json:"participants"`
}
