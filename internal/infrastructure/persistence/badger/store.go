// Package badger keeps the device's session slots in an embedded Badger
// database. Tokens are sealed before they touch disk.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/pkg/sealer"
)

const sealInfo = "school-portal/session-tokens/v1"

var (
	keyOnboarding = []byte(session.KeyOnboardingSeen)
	keyRole       = []byte(session.KeyUserRole)
	keyTokens     = []byte(session.KeyTokens)
)

// Options configures Open.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM (tests, ephemeral runs).
	InMemory bool

	// SecretKey derives the token sealing key.
	SecretKey string

	Logger *slog.Logger
}

// Store implements session.LocalStore on Badger.
type Store struct {
	db     *badgerdb.DB
	sealer *sealer.Sealer
	logger *slog.Logger
}

var _ session.LocalStore = (*Store)(nil)

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	s, err := sealer.New([]byte(opts.SecretKey), sealInfo)
	if err != nil {
		return nil, fmt.Errorf("badger store: %w", err)
	}

	bo := badgerdb.DefaultOptions(opts.Path)
	if opts.InMemory {
		bo = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	bo = bo.WithLogger(nil)

	db, err := badgerdb.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("badger store: open %q: %w", opts.Path, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:     db,
		sealer: s,
		logger: logger.With("component", "badger_store"),
	}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// Load reads all slots. A tokens slot that no longer opens (secret rotated,
// corrupted file) reads as empty so the user signs in again.
func (s *Store) Load(ctx context.Context) (session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, err
	}

	var (
		snap   session.Snapshot
		sealed []byte
	)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		onboarding, err := getValue(txn, keyOnboarding)
		if err != nil {
			return err
		}
		snap.OnboardingSeen = string(onboarding) == "true"

		role, err := getValue(txn, keyRole)
		if err != nil {
			return err
		}
		snap.Role = session.ParseRole(string(role))

		sealed, err = getValue(txn, keyTokens)
		return err
	})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("badger store: load: %w", err)
	}

	if len(sealed) > 0 {
		tokens, err := s.openTokens(sealed)
		if err != nil {
			s.logger.Warn("discarding unreadable session tokens", "error", err)
		} else {
			snap.Tokens = tokens
		}
	}
	return snap, nil
}

// getValue returns nil for a missing key.
func getValue(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITES
// ══════════════════════════════════════════════════════════════════════════════

// SaveSignedIn writes role, onboarding flag and tokens in one transaction.
func (s *Store) SaveSignedIn(ctx context.Context, role session.Role, tokens session.Tokens) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sealed, err := s.sealTokens(tokens)
	if err != nil {
		return err
	}

	return s.update("save signed in", func(txn *badgerdb.Txn) error {
		if err := setOrDelete(txn, keyRole, []byte(role.String())); err != nil {
			return err
		}
		if err := txn.Set(keyOnboarding, []byte("true")); err != nil {
			return err
		}
		return setOrDelete(txn, keyTokens, sealed)
	})
}

// SaveRole writes the requested role. RoleNone removes it.
func (s *Store) SaveRole(ctx context.Context, role session.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update("save role", func(txn *badgerdb.Txn) error {
		return setOrDelete(txn, keyRole, []byte(role.String()))
	})
}

// SaveTokens replaces the tokens. Zero tokens remove the slot.
func (s *Store) SaveTokens(ctx context.Context, tokens session.Tokens) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sealed, err := s.sealTokens(tokens)
	if err != nil {
		return err
	}
	return s.update("save tokens", func(txn *badgerdb.Txn) error {
		return setOrDelete(txn, keyTokens, sealed)
	})
}

// MarkOnboardingSeen sets has_seen_onboarding=true.
func (s *Store) MarkOnboardingSeen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update("mark onboarding", func(txn *badgerdb.Txn) error {
		return txn.Set(keyOnboarding, []byte("true"))
	})
}

// ClearSession removes role and tokens, keeping the onboarding flag.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update("clear session", func(txn *badgerdb.Txn) error {
		if err := txn.Delete(keyRole); err != nil {
			return err
		}
		return txn.Delete(keyTokens)
	})
}

func (s *Store) update(op string, fn func(txn *badgerdb.Txn) error) error {
	if err := s.db.Update(fn); err != nil {
		return fmt.Errorf("badger store: %s: %w", op, err)
	}
	return nil
}

func setOrDelete(txn *badgerdb.Txn, key, value []byte) error {
	if len(value) == 0 {
		return txn.Delete(key)
	}
	return txn.Set(key, value)
}

// ─────────────────────────────────────────────────────────────────────────────
// Token sealing
// ─────────────────────────────────────────────────────────────────────────────

// sealTokens returns nil for zero tokens.
func (s *Store) sealTokens(tokens session.Tokens) ([]byte, error) {
	if tokens.IsZero() {
		return nil, nil
	}
	plain, err := json.Marshal(tokens)
	if err != nil {
		return nil, fmt.Errorf("badger store: encode tokens: %w", err)
	}
	return s.sealer.Seal(plain, keyTokens)
}

func (s *Store) openTokens(sealed []byte) (session.Tokens, error) {
	plain, err := s.sealer.Open(sealed, keyTokens)
	if err != nil {
		return session.Tokens{}, err
	}
	var tokens session.Tokens
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return session.Tokens{}, fmt.Errorf("decode tokens: %w", err)
	}
	return tokens, nil
}
