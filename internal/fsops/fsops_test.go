package fsops

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/CynnixSinn/CyneticsIDE/internal/collab"
	"github.com/CynnixSinn/CyneticsIDE/internal/store/memory"
)

func testService() (*Service, *memory.Store, *collab.Registry) {
	st := memory.New()
	reg := collab.NewRegistry(nil, slog.Default())
	return NewService(st, reg, slog.Default()), st, reg
}

func TestCreateUpdateDelete(t *testing.T) {
	svc, st, _ := testService()
	ctx := context.Background()

	svc.Submit("proj", "alice", Operation{Type: OpCreate, File: "main.go", Content: []byte("v1")})
	svc.Submit("proj", "alice", Operation{Type: OpUpdate, File: "main.go", Content: []byte("v2")})
	svc.Wait()

	doc, err := st.Get(ctx, "file:proj/main.go")
	if err != nil {
		t.Fatalf("get after create+update: %v", err)
	}
	if string(doc.Value) != "v2" {
		t.Fatalf("content = %q, want v2", doc.Value)
	}

	svc.Submit("proj", "alice", Operation{Type: OpDelete, File: "main.go"})
	svc.Wait()

	if _, err := st.Get(ctx, "file:proj/main.go"); err == nil {
		t.Fatal("file still present after delete")
	}
}

func TestSamePathOpsApplyInOrder(t *testing.T) {
	svc, st, _ := testService()
	ctx := context.Background()

	svc.Submit("proj", "alice", Operation{Type: OpCreate, File: "a.txt", Content: []byte("0")})
	for i := 0; i < 50; i++ {
		svc.Submit("proj", "bob", Operation{Type: OpUpdate, File: "a.txt", Content: []byte(strings.Repeat("x", i+1))})
	}
	svc.Wait()

	doc, err := st.Get(ctx, "file:proj/a.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(doc.Value) != 50 {
		t.Fatalf("last write was not last submitted: len=%d", len(doc.Value))
	}
}

func TestRenameMovesContent(t *testing.T) {
	svc, st, _ := testService()
	ctx := context.Background()

	svc.Submit("proj", "alice", Operation{Type: OpCreate, File: "old.go", Content: []byte("body")})
	svc.Wait()
	svc.Submit("proj", "alice", Operation{Type: OpRename, File: "new.go", PreviousPath: "old.go"})
	svc.Wait()

	if _, err := st.Get(ctx, "file:proj/old.go"); err == nil {
		t.Fatal("old path still present after rename")
	}
	doc, err := st.Get(ctx, "file:proj/new.go")
	if err != nil {
		t.Fatalf("new path missing after rename: %v", err)
	}
	if string(doc.Value) != "body" {
		t.Fatalf("content = %q, want body", doc.Value)
	}
}

func TestMissingTargetsFailWithoutRetry(t *testing.T) {
	svc, _, reg := testService()

	sender := &recordingSender{}
	reg.Join("proj", collab.Participant{ID: "alice"}, sender)

	svc.Submit("proj", "alice", Operation{Type: OpDelete, File: "ghost.go"})
	svc.Submit("proj", "alice", Operation{Type: OpUpdate, File: "ghost.go", Content: []byte("x")})
	svc.Submit("proj", "alice", Operation{Type: OpRename, File: "new.go", PreviousPath: "ghost.go"})
	svc.Wait()

	failures := 0
	for _, ev := range sender.Events() {
		if ev.Type != collab.EventFileOp {
			continue
		}
		if strings.Contains(string(ev.Payload), "not found") {
			failures++
		}
	}
	if failures != 3 {
		t.Fatalf("expected 3 failed operation results, got %d", failures)
	}
}

func TestTreeListsProjectFiles(t *testing.T) {
	svc, _, _ := testService()

	svc.Submit("proj", "alice", Operation{Type: OpCreate, File: "a.go"})
	svc.Submit("proj", "alice", Operation{Type: OpCreate, File: "pkg/b.go"})
	svc.Submit("other", "alice", Operation{Type: OpCreate, File: "c.go"})
	svc.Wait()

	paths, err := svc.Tree(context.Background(), "proj")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	sort.Strings(paths)
	if len(paths) != 2 || paths[0] != "a.go" || paths[1] != "pkg/b.go" {
		t.Fatalf("tree = %v, want [a.go pkg/b.go]", paths)
	}
}

type recordingSender struct {
	mu     sync.Mutex
	events []collab.Event
}

func (r *recordingSender) Send(ev collab.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSender) Events() []collab.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]collab.Event(nil), r.events...)
}
