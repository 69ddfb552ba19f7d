package history

import (
	"slices"

	"github.com/menta2k/image-annotator/pkg/types"
)

// DefaultCapacity is the number of snapshots kept on each stack
const DefaultCapacity = 100

// Manager keeps bounded undo and redo stacks of annotation set snapshots.
// It is not safe for concurrent use; the owning session serializes access.
type Manager struct {
	capacity int
	undo     [][]types.BoundingBox
	redo     [][]types.BoundingBox
}

// New creates a history manager with the default capacity
func New() *Manager {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a history manager keeping at most capacity snapshots per stack
func NewWithCapacity(capacity int) *Manager {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Manager{capacity: capacity}
}

// Record snapshots current before a mutation and invalidates the redo stack
func (m *Manager) Record(current []types.BoundingBox) {
	m.undo = push(m.undo, current, m.capacity)
	m.redo = nil
}

// Undo returns the previous snapshot and stores current for redo.
// It reports false and leaves both stacks alone when there is nothing to undo.
func (m *Manager) Undo(current []types.BoundingBox) ([]types.BoundingBox, bool) {
	if len(m.undo) == 0 {
		return nil, false
	}
	m.redo = push(m.redo, current, m.capacity)
	prev := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	return slices.Clone(prev), true
}

// Redo is the mirror of Undo
func (m *Manager) Redo(current []types.BoundingBox) ([]types.BoundingBox, bool) {
	if len(m.redo) == 0 {
		return nil, false
	}
	m.undo = push(m.undo, current, m.capacity)
	next := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	return slices.Clone(next), true
}

// Clear drops both stacks
func (m *Manager) Clear() {
	m.undo = nil
	m.redo = nil
}

// UndoDepth returns the number of snapshots available to undo
func (m *Manager) UndoDepth() int { return len(m.undo) }

// RedoDepth returns the number of snapshots available to redo
func (m *Manager) RedoDepth() int { return len(m.redo) }

// push appends a copy of set, dropping the oldest entries beyond capacity
func push(stack [][]types.BoundingBox, set []types.BoundingBox, capacity int) [][]types.BoundingBox {
	snap := slices.Clone(set)
	if snap == nil {
		snap = []types.BoundingBox{}
	}
	stack = append(stack, snap)
	if over := len(stack) - capacity; over > 0 {
		stack = slices.Delete(stack, 0, over)
	}
	return stack
}
