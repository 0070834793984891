package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeSender records every event it is asked to deliver.
type fakeSender struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (f *fakeSender) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSender) byType(typ string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeSender) waitFor(t *testing.T, typ string, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evs := f.byType(typ); len(evs) >= n {
			return evs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q events, have %d", n, typ, len(f.byType(typ)))
	return nil
}

func testRegistry() *Registry {
	return NewRegistry(nil, slog.Default())
}

func part(id string) Participant {
	return Participant{ID: id, Profile: json.RawMessage(`{"name":"` + id + `"}`)}
}

func TestConcurrentJoinsCreateOneRoom(t *testing.T) {
	reg := testRegistry()

	var wg sync.WaitGroup
	rooms := make([]*Room, 16)
	for i := range rooms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i] = reg.Join("proj-1", part(fmt.Sprintf("u%d", i)), &fakeSender{})
		}(i)
	}
	wg.Wait()

	if reg.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", reg.Len())
	}
	for i := 1; i < len(rooms); i++ {
		if rooms[i] != rooms[0] {
			t.Fatalf("join %d returned a different room instance", i)
		}
	}
	if got := len(rooms[0].Presences()); got != 16 {
		t.Fatalf("expected 16 presences, got %d", got)
	}
}

func TestJoinRehydratesWithSnapshot(t *testing.T) {
	reg := testRegistry()

	first := &fakeSender{}
	room := reg.Join("proj", part("alice"), first)
	room.SubmitChange("alice", change(1, 1, 1, 1, "hello"))
	room.edits.Wait()

	late := &fakeSender{}
	reg.Join("proj", part("bob"), late)

	docs := late.waitFor(t, EventDoc, 1)
	var doc DocPayload
	if err := json.Unmarshal(docs[0].Payload, &doc); err != nil {
		t.Fatalf("bad doc payload: %v", err)
	}
	if !reflect.DeepEqual(doc.Lines, []string{"hello"}) {
		t.Fatalf("late joiner saw %q, want [hello]", doc.Lines)
	}
	if doc.Version != 1 {
		t.Fatalf("late joiner saw version %d, want 1", doc.Version)
	}
}

func TestLastLeaveDestroysRoom(t *testing.T) {
	reg := testRegistry()

	room := reg.Join("proj", part("alice"), &fakeSender{})
	room.SubmitChange("alice", change(1, 1, 1, 1, "state"))
	room.edits.Wait()

	reg.Leave("proj", "alice")
	if reg.Len() != 0 {
		t.Fatalf("expected 0 rooms after last leave, got %d", reg.Len())
	}

	// double-detach is a no-op
	reg.Leave("proj", "alice")

	// a rejoin gets a fresh, empty buffer
	fresh := reg.Join("proj", part("alice"), &fakeSender{})
	lines, version := fresh.Snapshot()
	if !reflect.DeepEqual(lines, []string{""}) || version != 0 {
		t.Fatalf("rejoined room leaked state: lines=%q version=%d", lines, version)
	}
}

func TestPresenceBroadcastIsComplete(t *testing.T) {
	reg := testRegistry()

	alice := &fakeSender{}
	bob := &fakeSender{}
	room := reg.Join("proj", part("alice"), alice)
	reg.Join("proj", part("bob"), bob)

	if err := room.UpdateCursor("alice", CursorPayload{Position: Position{Row: 3, Column: 7}}); err != nil {
		t.Fatalf("update cursor: %v", err)
	}

	// the origin also receives the snapshot
	for _, s := range []*fakeSender{alice, bob} {
		evs := s.byType(EventPresence)
		if len(evs) == 0 {
			t.Fatal("no presence events delivered")
		}
		var p PresencePayload
		if err := json.Unmarshal(evs[len(evs)-1].Payload, &p); err != nil {
			t.Fatalf("bad presence payload: %v", err)
		}
		if len(p.Participants) != 2 {
			t.Fatalf("partial presence snapshot: %d participants", len(p.Participants))
		}
		seen := map[string]Position{}
		for _, pr := range p.Participants {
			seen[pr.Participant.ID] = pr.Cursor
		}
		if seen["alice"] != (Position{Row: 3, Column: 7}) {
			t.Fatalf("alice cursor not reflected: %+v", seen["alice"])
		}
		if _, ok := seen["bob"]; !ok {
			t.Fatal("bob missing from snapshot")
		}
	}
}

func TestCursorForUnknownParticipant(t *testing.T) {
	reg := testRegistry()
	room := reg.Join("proj", part("alice"), &fakeSender{})

	err := room.UpdateCursor("ghost", CursorPayload{Position: Position{Row: 1, Column: 1}})
	if !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestChangeBroadcastExcludesOrigin(t *testing.T) {
	reg := testRegistry()

	alice := &fakeSender{}
	bob := &fakeSender{}
	room := reg.Join("proj", part("alice"), alice)
	reg.Join("proj", part("bob"), bob)

	room.SubmitChange("alice", change(1, 1, 1, 1, "x"))
	room.edits.Wait()

	evs := bob.waitFor(t, EventChange, 1)
	var ch Change
	if err := json.Unmarshal(evs[0].Payload, &ch); err != nil {
		t.Fatalf("bad change payload: %v", err)
	}
	if ch.From != "alice" || ch.Text != "x" {
		t.Fatalf("unexpected relayed change: %+v", ch)
	}
	if got := alice.byType(EventChange); len(got) != 0 {
		t.Fatalf("origin received its own change back: %d events", len(got))
	}
}

func TestInvalidEditRejectedToSenderOnly(t *testing.T) {
	reg := testRegistry()

	alice := &fakeSender{}
	bob := &fakeSender{}
	room := reg.Join("proj", part("alice"), alice)
	reg.Join("proj", part("bob"), bob)

	room.SubmitChange("alice", change(99, 1, 99, 1, "nope"))
	room.edits.Wait()

	alice.waitFor(t, EventError, 1)
	if got := bob.byType(EventError); len(got) != 0 {
		t.Fatalf("error event was broadcast: %d events", len(got))
	}
	if lines, _ := room.Snapshot(); !reflect.DeepEqual(lines, []string{""}) {
		t.Fatalf("rejected edit mutated buffer: %q", lines)
	}
}

func TestConcurrentEditsApplyInArrivalOrder(t *testing.T) {
	reg := testRegistry()

	room := reg.Join("proj", part("alice"), &fakeSender{})

	// appends observed in seq order must reproduce sequential apply
	var seq sync.Mutex
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				seq.Lock()
				room.SubmitChange("alice", change(1, 1, 1, 1, "a"))
				seq.Unlock()
			}
		}(w)
	}
	wg.Wait()
	room.edits.Wait()

	lines, version := room.Snapshot()
	if version != 100 {
		t.Fatalf("version = %d, want 100", version)
	}
	if len(lines) != 1 || len(lines[0]) != 100 {
		t.Fatalf("buffer = %q, want one line of 100 a's", lines)
	}
}

func TestBrokenTransportDropsParticipant(t *testing.T) {
	reg := testRegistry()

	alice := &fakeSender{}
	bob := &fakeSender{fail: true}
	room := reg.Join("proj", part("alice"), alice)
	reg.Join("proj", part("bob"), bob)

	room.SubmitChange("alice", change(1, 1, 1, 1, "x"))
	room.edits.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(room.Presences()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	pres := room.Presences()
	if len(pres) != 1 || pres[0].Participant.ID != "alice" {
		t.Fatalf("broken participant not dropped: %+v", pres)
	}
}
