package revisions

import (
	"context"
	"sync"

	"github.com/hupe1980/segstore/model"
)

// Memory keeps the head in memory. Useful for tests and throwaway stores.
type Memory struct {
	mu      sync.Mutex
	head    model.RecordID
	set     bool
	history []model.RecordID
	closed  bool
}

// NewMemory creates empty in-memory revisions.
func NewMemory() *Memory {
	return &Memory{}
}

// Head implements Revisions.
func (m *Memory) Head(_ context.Context) (model.RecordID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return model.RecordID{}, false, ErrClosed
	}
	return m.head, m.set, nil
}

// SetHead implements Revisions.
func (m *Memory) SetHead(_ context.Context, expected, head model.RecordID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if m.head != expected {
		return false, nil
	}
	m.head = head
	m.set = true
	m.history = append(m.history, head)
	return true, nil
}

// History returns every head set so far, oldest first.
func (m *Memory) History() []model.RecordID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.RecordID(nil), m.history...)
}

// Close implements Revisions.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
