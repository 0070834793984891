package collab

import (
	"fmt"
	"strings"
)

// Buffer is a room's authoritative document, a sequence of lines
// addressed by 1-based row/column coordinates. It is not safe for
// concurrent use; the owning room serializes access through its edit
// queue and snapshot lock.
type Buffer struct {
	lines   []string
	version int
}

func NewBuffer() *Buffer {
	return &Buffer{lines: []string{""}}
}

// NewBufferFrom seeds a buffer with existing content, used by tests and
// by rehydration from a relayed document.
func NewBufferFrom(lines []string) *Buffer {
	if len(lines) == 0 {
		lines = []string{""}
	}
	return &Buffer{lines: append([]string(nil), lines...)}
}

func (b *Buffer) Version() int { return b.version }

// Snapshot returns a copy of the buffer lines.
func (b *Buffer) Snapshot() []string {
	return append([]string(nil), b.lines...)
}

// Apply performs the range replacement described by c. The addressed
// region is validated against current bounds first; an out-of-range
// edit returns ErrInvalidRange and leaves the buffer untouched. A
// single-line range splices within the line; a multi-line range keeps
// the start line's prefix and the end line's suffix around the
// replacement text.
func (b *Buffer) Apply(c Change) error {
	r := c.Range
	if err := b.validate(r); err != nil {
		return err
	}

	head := b.lines[r.StartLine-1][:r.StartCol-1]
	var tail string
	if r.StartLine == r.EndLine {
		tail = b.lines[r.EndLine-1][r.EndCol-1:]
	} else {
		tail = b.lines[r.EndLine-1][r.EndCol:]
	}

	repl := strings.Split(c.Text, "\n")
	repl[0] = head + repl[0]
	repl[len(repl)-1] += tail

	next := make([]string, 0, len(b.lines)-(r.EndLine-r.StartLine+1)+len(repl))
	next = append(next, b.lines[:r.StartLine-1]...)
	next = append(next, repl...)
	next = append(next, b.lines[r.EndLine:]...)

	b.lines = next
	b.version++
	return nil
}

func (b *Buffer) validate(r Range) error {
	if r.StartLine < 1 || r.EndLine > len(b.lines) || r.StartLine > r.EndLine {
		return fmt.Errorf("%w: lines %d-%d of %d", ErrInvalidRange, r.StartLine, r.EndLine, len(b.lines))
	}
	if r.StartCol < 1 || r.EndCol < 1 {
		return fmt.Errorf("%w: columns %d-%d", ErrInvalidRange, r.StartCol, r.EndCol)
	}
	start := b.lines[r.StartLine-1]
	end := b.lines[r.EndLine-1]
	if r.StartCol-1 > len(start) {
		return fmt.Errorf("%w: start column %d on line of length %d", ErrInvalidRange, r.StartCol, len(start))
	}
	if r.StartLine == r.EndLine {
		if r.EndCol < r.StartCol || r.EndCol-1 > len(end) {
			return fmt.Errorf("%w: end column %d on line of length %d", ErrInvalidRange, r.EndCol, len(end))
		}
	} else if r.EndCol > len(end) {
		return fmt.Errorf("%w: end column %d on line of length %d", ErrInvalidRange, r.EndCol, len(end))
	}
	return nil
}
