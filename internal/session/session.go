package session

import (
	"context"
	"errors"
	"sync"

	"github.com/ItachiCrypto/appforge-sub001/internal/files"
	"github.com/ItachiCrypto/appforge-sub001/internal/storage"
)

// ErrNoTarget is returned while no project or app is bound.
var ErrNoTarget = errors.New("no active project. Use switch_project to select one")

// Session holds the project or app an MCP session operates on, on behalf of
// one owner.
type Session struct {
	owner string

	mu     sync.Mutex
	target files.Target
	name   string
	bound  bool
}

// New creates a session for ownerID with no active target.
func New(ownerID string) *Session {
	return &Session{owner: ownerID}
}

// Owner returns the owner the session acts for.
func (s *Session) Owner() string {
	return s.owner
}

// Switch binds t after checking that it exists and belongs to the session owner.
func (s *Session) Switch(ctx context.Context, meta *storage.MetaStore, t files.Target) (string, error) {
	name, err := files.Authorize(ctx, meta, s.owner, t)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.target, s.name, s.bound = t, name, true
	return name, nil
}

// Clear unbinds t if it is the active target.
func (s *Session) Clear(t files.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound && s.target == t {
		s.target, s.name, s.bound = files.Target{}, "", false
	}
}

// Current returns the bound target and its display name.
func (s *Session) Current() (t files.Target, name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.name, s.bound
}

// Target returns the bound target or ErrNoTarget.
func (s *Session) Target() (files.Target, error) {
	t, _, ok := s.Current()
	if !ok {
		return files.Target{}, ErrNoTarget
	}
	return t, nil
}
