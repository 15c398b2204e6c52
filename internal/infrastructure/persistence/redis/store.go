package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/pkg/sealer"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store implements session.LocalStore with one key per slot. Multi-slot
// writes go through MULTI/EXEC.
type Store struct {
	client redis.UniversalClient

	keyOnboarding string
	keyRole       string
	keyTokens     string

	// sealer is nil when no secret was configured; tokens are then
	// stored as plain JSON.
	sealer *sealer.Sealer
}

var _ session.LocalStore = (*Store)(nil)

// NewStore builds a store under prefix+"session:". s may be nil.
func NewStore(client redis.UniversalClient, prefix string, s *sealer.Sealer) *Store {
	base := prefix + PrefixSession
	return &Store{
		client:        client,
		keyOnboarding: base + session.KeyOnboardingSeen,
		keyRole:       base + session.KeyUserRole,
		keyTokens:     base + session.KeyTokens,
		sealer:        s,
	}
}

// Load reads all slots with one MGET. Tokens that fail to decode read as
// empty, as in the badger store.
func (s *Store) Load(ctx context.Context) (session.Snapshot, error) {
	values, err := s.client.MGet(ctx, s.keyOnboarding, s.keyRole, s.keyTokens).Result()
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("redis store: load: %w", err)
	}

	var snap session.Snapshot
	snap.OnboardingSeen = stringAt(values, 0) == "true"
	snap.Role = session.ParseRole(stringAt(values, 1))

	if raw := stringAt(values, 2); raw != "" {
		if tokens, err := s.decodeTokens([]byte(raw)); err == nil {
			snap.Tokens = tokens
		}
	}
	return snap, nil
}

func stringAt(values []any, i int) string {
	if i >= len(values) {
		return ""
	}
	str, _ := values[i].(string)
	return str
}

// SaveSignedIn writes role, onboarding flag and tokens in one transaction.
func (s *Store) SaveSignedIn(ctx context.Context, role session.Role, tokens session.Tokens) error {
	encoded, err := s.encodeTokens(tokens)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		setOrDel(ctx, pipe, s.keyRole, role.String())
		pipe.Set(ctx, s.keyOnboarding, "true", 0)
		setOrDel(ctx, pipe, s.keyTokens, string(encoded))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: save signed in: %w", err)
	}
	return nil
}

// SaveRole writes the requested role. RoleNone removes it.
func (s *Store) SaveRole(ctx context.Context, role session.Role) error {
	if role == session.RoleNone {
		return s.wrap("save role", s.client.Del(ctx, s.keyRole).Err())
	}
	return s.wrap("save role", s.client.Set(ctx, s.keyRole, role.String(), 0).Err())
}

// SaveTokens replaces the tokens. Zero tokens remove the slot.
func (s *Store) SaveTokens(ctx context.Context, tokens session.Tokens) error {
	encoded, err := s.encodeTokens(tokens)
	if err != nil {
		return err
	}
	if encoded == nil {
		return s.wrap("save tokens", s.client.Del(ctx, s.keyTokens).Err())
	}
	return s.wrap("save tokens", s.client.Set(ctx, s.keyTokens, encoded, 0).Err())
}

// MarkOnboardingSeen sets has_seen_onboarding=true.
func (s *Store) MarkOnboardingSeen(ctx context.Context) error {
	return s.wrap("mark onboarding", s.client.Set(ctx, s.keyOnboarding, "true", 0).Err())
}

// ClearSession removes role and tokens in one DEL.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.wrap("clear session", s.client.Del(ctx, s.keyRole, s.keyTokens).Err())
}

func (s *Store) wrap(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("redis store: %s: %w", op, err)
}

func setOrDel(ctx context.Context, pipe redis.Pipeliner, key, value string) {
	if value == "" {
		pipe.Del(ctx, key)
		return
	}
	pipe.Set(ctx, key, value, 0)
}

// ─────────────────────────────────────────────────────────────────────────────
// Token encoding
// ─────────────────────────────────────────────────────────────────────────────

// encodeTokens returns nil for zero tokens.
func (s *Store) encodeTokens(tokens session.Tokens) ([]byte, error) {
	if tokens.IsZero() {
		return nil, nil
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	if s.sealer == nil {
		return data, nil
	}
	return s.sealer.Seal(data, []byte(s.keyTokens))
}

func (s *Store) decodeTokens(raw []byte) (session.Tokens, error) {
	if s.sealer != nil {
		plain, err := s.sealer.Open(raw, []byte(s.keyTokens))
		if err != nil {
			return session.Tokens{}, err
		}
		raw = plain
	}

	var tokens session.Tokens
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return session.Tokens{}, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return tokens, nil
}
