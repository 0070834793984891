// Package fsops applies shared-file-system mutations for a project
// room. Operations on the same path are serialized through a per-path
// queue; distinct paths proceed concurrently. File documents persist to
// the key-value store under "file:<project>/<path>".
package fsops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CynnixSinn/CyneticsIDE/internal/collab"
	"github.com/CynnixSinn/CyneticsIDE/internal/opqueue"
	"github.com/CynnixSinn/CyneticsIDE/internal/store"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpRename = "rename"
)

// Operation is one file-system mutation submitted by a participant.
type Operation struct {
	Type         string    `json:"type"`
	File         string    `json:"file"`
	PreviousPath string    `json:"previousPath,omitempty"`
	Content      []byte    `json:"content,omitempty"`
	Origin       string    `json:"origin,omitempty"`
	At           time.Time `json:"at,omitempty"`
}

// Result is broadcast to the room after an operation applies (or
// fails); Error is empty on success.
type Result struct {
	Operation Operation `json:"operation"`
	Error     string    `json:"error,omitempty"`
}

// Service owns the per-project file trees.
type Service struct {
	store store.Store
	reg   *collab.Registry
	log   *slog.Logger
	queue *opqueue.Queue[submission]
}

type submission struct {
	roomID string
	op     Operation
}

func NewService(st store.Store, reg *collab.Registry, log *slog.Logger) *Service {
	s := &Service{store: st, reg: reg, log: log.With("component", "fsops")}
	s.queue = opqueue.New(s.apply)
	return s
}

// Submit queues op for the addressed path and returns immediately. The
// result reaches the room as a file_operation event once applied.
func (s *Service) Submit(roomID, origin string, op Operation) {
	op.Origin = origin
	if op.At.IsZero() {
		op.At = time.Now()
	}
	s.queue.Enqueue(s.entityID(roomID, op), submission{roomID: roomID, op: op})
}

// Wait blocks until all queued operations have applied.
func (s *Service) Wait() { s.queue.Wait() }

// entityID keys the queue. Renames serialize on the source path so a
// rename and a concurrent write to the old name cannot cross.
func (s *Service) entityID(roomID string, op Operation) string {
	path := op.File
	if op.Type == OpRename && op.PreviousPath != "" {
		path = op.PreviousPath
	}
	return roomID + "/" + path
}

func (s *Service) key(roomID, path string) string {
	return "file:" + roomID + "/" + path
}

func (s *Service) apply(_ string, sub submission) {
	ctx := context.Background()
	op := sub.op

	err := s.applyOne(ctx, sub.roomID, op)
	res := Result{Operation: op}
	if err != nil {
		s.log.Warn("file operation failed", "room", sub.roomID, "type", op.Type, "file", op.File, "err", err)
		res.Error = err.Error()
	}

	room, ok := s.reg.Room(sub.roomID)
	if !ok {
		// room emptied while the op was queued; the mutation still
		// applied, there is just no one left to tell
		return
	}
	if err != nil {
		room.NotifyParticipant(op.Origin, collab.NewEvent(collab.EventFileOp, sub.roomID, "", res))
		return
	}
	room.Broadcast(collab.NewEvent(collab.EventFileOp, sub.roomID, op.Origin, res), op.Origin)
}

func (s *Service) applyOne(ctx context.Context, roomID string, op Operation) error {
	switch op.Type {
	case OpCreate:
		return s.store.Put(ctx, s.key(roomID, op.File), op.Content)

	case OpUpdate:
		if _, err := s.store.Get(ctx, s.key(roomID, op.File)); err != nil {
			return s.mapErr(op.File, err)
		}
		return s.store.Put(ctx, s.key(roomID, op.File), op.Content)

	case OpDelete:
		return s.mapErr(op.File, s.store.Delete(ctx, s.key(roomID, op.File)))

	case OpRename:
		if op.PreviousPath == "" {
			return fmt.Errorf("rename of %q: missing previous path", op.File)
		}
		doc, err := s.store.Get(ctx, s.key(roomID, op.PreviousPath))
		if err != nil {
			return s.mapErr(op.PreviousPath, err)
		}
		if err := s.store.Put(ctx, s.key(roomID, op.File), doc.Value); err != nil {
			return err
		}
		return s.store.Delete(ctx, s.key(roomID, op.PreviousPath))

	default:
		return fmt.Errorf("unknown file operation %q", op.Type)
	}
}

func (s *Service) mapErr(path string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", collab.ErrEntityNotFound, path)
	}
	return err
}

// Tree lists the project's files from the store, rehydrating clients
// that join after the tree was mutated.
func (s *Service) Tree(ctx context.Context, roomID string) ([]string, error) {
	docs, err := s.store.QueryByPrefix(ctx, "file:"+roomID+"/")
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		paths = append(paths, d.Key[len("file:"+roomID+"/"):])
	}
	return paths, nil
}
