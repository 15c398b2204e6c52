package postgres

import (
	"context"
	"time"

	"github.com/jkcollege/school-portal/internal/domain/session"
	"github.com/jkcollege/school-portal/internal/domain/shared"
	"github.com/jkcollege/school-portal/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements session.ProfileRepository for PostgreSQL.
type ProfileRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

var _ session.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn, retrier: retry.DatabaseRetrier()}
}

// GetByID returns the profile row for userID.
func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*session.Profile, error) {
	const query = `
		SELECT id::text, COALESCE(role, ''), COALESCE(first_name, ''), COALESCE(last_name, ''), created_at
		FROM profiles
		WHERE id = $1
	`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*session.Profile, error) {
		var (
			p         session.Profile
			role      string
			createdAt *time.Time
		)
		err := r.conn.QueryRow(ctx, query, userID).Scan(&p.ID, &role, &p.FirstName, &p.LastName, &createdAt)
		if err != nil {
			return nil, mapError("GetProfile", err)
		}
		p.Role = session.ParseRole(role)
		if createdAt != nil {
			p.CreatedAt = *createdAt
		}
		return &p, nil
	})
}

// Create inserts a profile row.
func (r *ProfileRepository) Create(ctx context.Context, p *session.Profile) error {
	if p == nil || p.ID == "" {
		return shared.NewValidationError("CreateProfile", "profile id is required")
	}

	const query = `
		INSERT INTO profiles (id, role, first_name, last_name)
		VALUES ($1, $2, $3, $4)
	`

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	// Only errors raised before the statement was sent are retried.
	return r.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := r.conn.Exec(ctx, query, p.ID, p.Role.String(), p.FirstName, p.LastName)
		return mapError("CreateProfile", err)
	})
}
