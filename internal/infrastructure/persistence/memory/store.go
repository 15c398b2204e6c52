// Package memory provides a process-local session.LocalStore for tests and
// ephemeral runs.
package memory

import (
	"context"
	"sync"

	"github.com/jkcollege/school-portal/internal/domain/session"
)

// Store keeps the session slots in memory. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	snap session.Snapshot
}

var _ session.LocalStore = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// NewStoreWith returns a store pre-filled with snap.
func NewStoreWith(snap session.Snapshot) *Store {
	return &Store{snap: snap}
}

func (s *Store) Load(ctx context.Context) (session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

func (s *Store) SaveSignedIn(ctx context.Context, role session.Role, tokens session.Tokens) error {
	return s.write(ctx, func(snap *session.Snapshot) {
		snap.Role = role
		snap.OnboardingSeen = true
		snap.Tokens = tokens
	})
}

func (s *Store) SaveRole(ctx context.Context, role session.Role) error {
	return s.write(ctx, func(snap *session.Snapshot) { snap.Role = role })
}

func (s *Store) SaveTokens(ctx context.Context, tokens session.Tokens) error {
	return s.write(ctx, func(snap *session.Snapshot) { snap.Tokens = tokens })
}

func (s *Store) MarkOnboardingSeen(ctx context.Context) error {
	return s.write(ctx, func(snap *session.Snapshot) { snap.OnboardingSeen = true })
}

func (s *Store) ClearSession(ctx context.Context) error {
	return s.write(ctx, func(snap *session.Snapshot) {
		snap.Role = session.RoleNone
		snap.Tokens = session.Tokens{}
	})
}

func (s *Store) write(ctx context.Context, fn func(*session.Snapshot)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	return nil
}
