package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Awaisee01/fund-sub001/internal/models"
)

const visitorSessionColumns = `
	id, visitor_id, started_at, last_activity_at, ended_at, pages_visited, landing_page,
	referrer, utm_source, utm_medium, utm_campaign, utm_content, utm_term, user_agent, converted
`

type VisitorSessionRepository struct {
	pool *pgxpool.Pool
}

func NewVisitorSessionRepository(pool *pgxpool.Pool) *VisitorSessionRepository {
	return &VisitorSessionRepository{pool: pool}
}

func (r *VisitorSessionRepository) Create(ctx context.Context, session *models.VisitorSession) error {
	const query = `
		INSERT INTO visitor_sessions (
			id, visitor_id, started_at, last_activity_at, pages_visited, landing_page,
			referrer, utm_source, utm_medium, utm_campaign, utm_content, utm_term, user_agent, converted
		) VALUES (
			$1, $2, $3, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, FALSE
		)
	`
	_, err := r.pool.Exec(ctx, query,
		session.ID,
		session.VisitorID,
		session.StartedAt,
		session.PagesVisited,
		session.LandingPage,
		session.Attribution.Referrer,
		session.Attribution.UTMSource,
		session.Attribution.UTMMedium,
		session.Attribution.UTMCampaign,
		session.Attribution.UTMContent,
		session.Attribution.UTMTerm,
		session.Attribution.UserAgent,
	)
	return wrapErr("insert visitor session", err)
}

func (r *VisitorSessionRepository) GetByID(ctx context.Context, id string) (models.VisitorSession, error) {
	query := `SELECT ` + visitorSessionColumns + ` FROM visitor_sessions WHERE id = $1`
	session, err := scanVisitorSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VisitorSession{}, ErrSessionNotFound
		}
		return models.VisitorSession{}, wrapErr("get visitor session", err)
	}
	return session, nil
}

// FindOpenByVisitor returns the visitor's session that has not been ended, if any.
func (r *VisitorSessionRepository) FindOpenByVisitor(ctx context.Context, visitorID string) (models.VisitorSession, error) {
	query := `SELECT ` + visitorSessionColumns + `
		FROM visitor_sessions
		WHERE visitor_id = $1 AND ended_at IS NULL
		ORDER BY last_activity_at DESC
		LIMIT 1`
	session, err := scanVisitorSession(r.pool.QueryRow(ctx, query, visitorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.VisitorSession{}, ErrSessionNotFound
		}
		return models.VisitorSession{}, wrapErr("find open visitor session", err)
	}
	return session, nil
}

func (r *VisitorSessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE visitor_sessions SET last_activity_at = $2
		WHERE id = $1 AND ended_at IS NULL
	`
	return r.execOne(ctx, "touch visitor session", query, id, at)
}

func (r *VisitorSessionRepository) IncrementPages(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE visitor_sessions
		SET pages_visited = pages_visited + 1, last_activity_at = $2
		WHERE id = $1 AND ended_at IS NULL
	`
	return r.execOne(ctx, "count page view", query, id, at)
}

func (r *VisitorSessionRepository) End(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE visitor_sessions SET ended_at = $2
		WHERE id = $1 AND ended_at IS NULL
	`
	_, err := r.pool.Exec(ctx, query, id, at)
	return wrapErr("end visitor session", err)
}

func (r *VisitorSessionRepository) MarkConverted(ctx context.Context, id string) error {
	const query = `UPDATE visitor_sessions SET converted = TRUE WHERE id = $1`
	return r.execOne(ctx, "mark session converted", query, id)
}

// EndIdle closes every open session whose last activity is older than cutoff.
// The session end time is its last activity, not the sweep time.
func (r *VisitorSessionRepository) EndIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `
		UPDATE visitor_sessions SET ended_at = last_activity_at
		WHERE ended_at IS NULL AND last_activity_at < $1
	`
	cmd, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, wrapErr("end idle visitor sessions", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *VisitorSessionRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func scanVisitorSession(row rowScanner) (models.VisitorSession, error) {
	var s models.VisitorSession
	err := row.Scan(
		&s.ID,
		&s.VisitorID,
		&s.StartedAt,
		&s.LastActivityAt,
		&s.EndedAt,
		&s.PagesVisited,
		&s.LandingPage,
		&s.Attribution.Referrer,
		&s.Attribution.UTMSource,
		&s.Attribution.UTMMedium,
		&s.Attribution.UTMCampaign,
		&s.Attribution.UTMContent,
		&s.Attribution.UTMTerm,
		&s.Attribution.UserAgent,
		&s.Converted,
	)
	return s, err
}
