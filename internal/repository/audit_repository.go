package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Awaisee01/fund-sub001/internal/models"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Append(ctx context.Context, entry models.AuditEntry) error {
	const query = `
		INSERT INTO admin_audit_log (id, admin_id, email, action, metadata, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.AdminID,
		entry.Email,
		entry.Action,
		metadata,
		entry.IPAddress,
	)
	return wrapErr("append audit entry", err)
}

func (r *AuditRepository) ListByAdmin(ctx context.Context, adminID string, limit int) ([]models.AuditEntry, error) {
	const query = `
		SELECT id, admin_id, email, action, metadata, ip_address, created_at
		FROM admin_audit_log
		WHERE admin_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, query, adminID, limit)
	if err != nil {
		return nil, wrapErr("list audit entries", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.AdminID, &e.Email, &e.Action, &e.Metadata, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, wrapErr("scan audit entry", err)
		}
		entries = append(entries, e)
	}
	return entries, wrapErr("list audit entries", rows.Err())
}
