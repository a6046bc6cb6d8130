package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spigell/excel-interviewer/internal/session"
)

// Memory is an in-process store, used for tests and single-shot CLI runs.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*session.Session)}
}

func (m *Memory) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("session %q already exists", s.ID)
	}

	s.Version = 1
	clone, err := cloneSession(s)
	if err != nil {
		return err
	}
	m.sessions[s.ID] = clone
	return nil
}

func (m *Memory) Load(_ context.Context, id string) (*session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return cloneSession(stored)
}

func (m *Memory) Save(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, s.ID)
	}
	if stored.Version != s.Version {
		return fmt.Errorf("%w: have %d, stored %d", ErrConflict, s.Version, stored.Version)
	}

	s.Version++
	clone, err := cloneSession(s)
	if err != nil {
		s.Version--
		return err
	}
	m.sessions[s.ID] = clone
	return nil
}

func (m *Memory) Close() error { return nil }

// cloneSession isolates stored state from caller mutations.
func cloneSession(s *session.Session) (*session.Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	var clone session.Session
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("clone session: %w", err)
	}
	return &clone, nil
}
