package domain

import (
	"fmt"

	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
)

// DeltaKind tells whether an element was added, changed or removed.
type DeltaKind int

const (
	Added DeltaKind = iota + 1
	Changed
	Removed
)

func (k DeltaKind) String() string {
	switch k {
	case Added:
		return "ADDED"
	case Changed:
		return "CHANGED"
	case Removed:
		return "REMOVED"
	default:
		return "UNKNOWN"
	}
}

// Delta is a change notification about one element.
type Delta struct {
	Element Element
	Kind    DeltaKind
	Flags   flags.Flags
}

// NewDelta creates a delta. Flags are only meaningful for CHANGED deltas but
// are carried for every kind.
func NewDelta(e Element, kind DeltaKind, f flags.Flags) Delta {
	return Delta{Element: e, Kind: kind, Flags: f}
}

func (d Delta) String() string {
	if d.Element == nil {
		return fmt.Sprintf("%s <nil>", d.Kind)
	}
	return fmt.Sprintf("%s %s %s [%s]", d.Kind, d.Element.Kind(), d.Element.Handle(), d.Flags)
}

// ChangeSet collects the deltas produced by an entity mutation along with
// the means to undo it.
type ChangeSet struct {
	Deltas []Delta
	undo   []func()
}

func (c *ChangeSet) add(e Element, kind DeltaKind, f flags.Flags) {
	c.Deltas = append(c.Deltas, NewDelta(e, kind, f))
}

func (c *ChangeSet) onRollback(fn func()) {
	c.undo = append(c.undo, fn)
}

// Merge appends the deltas and undo steps of other.
func (c *ChangeSet) Merge(other ChangeSet) {
	c.Deltas = append(c.Deltas, other.Deltas...)
	c.undo = append(c.undo, other.undo...)
}

// Empty reports whether the mutation produced no delta.
func (c ChangeSet) Empty() bool {
	return len(c.Deltas) == 0
}

// Rollback reverts the recorded mutations, last first. Deltas are dropped.
func (c *ChangeSet) Rollback() {
	for i := len(c.undo) - 1; i >= 0; i-- {
		c.undo[i]()
	}
	c.undo = nil
	c.Deltas = nil
}
