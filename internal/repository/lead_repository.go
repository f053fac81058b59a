package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Awaisee01/fund-sub001/internal/models"
)

const leadColumns = `
	id, name, email, phone, postcode, address, service_type, form_data,
	referrer, utm_source, utm_medium, utm_campaign, utm_content, utm_term, user_agent, page_path,
	visitor_id, session_id, tracking_event_id, status, admin_notes,
	created_at, contacted_at, converted_at, updated_at
`

type LeadRepository struct {
	pool *pgxpool.Pool
}

func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

// Create inserts lead and fills CreatedAt/UpdatedAt from the database clock.
func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	const query = `
		INSERT INTO leads (
			id, name, email, phone, postcode, address, service_type, form_data,
			referrer, utm_source, utm_medium, utm_campaign, utm_content, utm_term, user_agent, page_path,
			visitor_id, session_id, tracking_event_id, status, admin_notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, NOW(), NOW()
		)
		RETURNING created_at, updated_at
	`

	formData := lead.FormData
	if formData == nil {
		formData = map[string]any{}
	}

	err := r.pool.QueryRow(ctx, query,
		lead.ID,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.Postcode,
		lead.Address,
		lead.ServiceType,
		formData,
		lead.Attribution.Referrer,
		lead.Attribution.UTMSource,
		lead.Attribution.UTMMedium,
		lead.Attribution.UTMCampaign,
		lead.Attribution.UTMContent,
		lead.Attribution.UTMTerm,
		lead.Attribution.UserAgent,
		lead.Attribution.PagePath,
		lead.VisitorID,
		lead.SessionID,
		lead.TrackingEventID,
		lead.Status,
		lead.AdminNotes,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt)
	return wrapErr("insert lead", err)
}

func (r *LeadRepository) GetByID(ctx context.Context, id string) (models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Lead{}, ErrLeadNotFound
		}
		return models.Lead{}, wrapErr("get lead", err)
	}
	return lead, nil
}

// Update writes the admin-mutable fields. Concurrent updates are last-write-wins.
func (r *LeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	const query = `
		UPDATE leads
		SET status = $2,
		    admin_notes = $3,
		    contacted_at = $4,
		    converted_at = $5,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		lead.ID,
		lead.Status,
		lead.AdminNotes,
		lead.ContactedAt,
		lead.ConvertedAt,
	).Scan(&lead.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLeadNotFound
	}
	return wrapErr("update lead", err)
}

func (r *LeadRepository) List(ctx context.Context, filter models.LeadFilter) ([]models.Lead, error) {
	where, args := leadWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := `SELECT ` + leadColumns + ` FROM leads` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) +
		` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list leads", err)
	}
	defer rows.Close()

	var leads []models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, wrapErr("scan lead", err)
		}
		leads = append(leads, lead)
	}
	return leads, wrapErr("list leads", rows.Err())
}

func (r *LeadRepository) Count(ctx context.Context, filter models.LeadFilter) (int64, error) {
	where, args := leadWhere(filter)
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads`+where, args...).Scan(&count)
	return count, wrapErr("count leads", err)
}

func (r *LeadRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM leads WHERE id = ANY($1)`
	cmd, err := r.pool.Exec(ctx, query, ids)
	if err != nil {
		return 0, wrapErr("delete leads", err)
	}
	return cmd.RowsAffected(), nil
}

func (r *LeadRepository) Stats(ctx context.Context) (models.LeadStats, error) {
	const query = `
		SELECT status, service_type, COUNT(*)
		FROM leads
		GROUP BY status, service_type
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return models.LeadStats{}, wrapErr("lead stats", err)
	}
	defer rows.Close()

	stats := models.LeadStats{
		ByStatus:      make(map[models.LeadStatus]int64),
		ByServiceType: make(map[models.ServiceType]int64),
	}
	for rows.Next() {
		var (
			status      models.LeadStatus
			serviceType models.ServiceType
			count       int64
		)
		if err := rows.Scan(&status, &serviceType, &count); err != nil {
			return models.LeadStats{}, wrapErr("scan lead stats", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByServiceType[serviceType] += count
	}
	return stats, wrapErr("lead stats", rows.Err())
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func leadWhere(filter models.LeadFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, strings.ReplaceAll(cond, "?", "$"+strconv.Itoa(len(args))))
	}

	if filter.Status != "" {
		add("status = ?", filter.Status)
	}
	if filter.ServiceType != "" {
		add("service_type = ?", filter.ServiceType)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		add(`(name ILIKE ? ESCAPE '\' OR email ILIKE ? ESCAPE '\' OR phone ILIKE ? ESCAPE '\' OR postcode ILIKE ? ESCAPE '\')`, "%"+likeEscaper.Replace(search)+"%")
	}
	if filter.From != nil {
		add("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		add("created_at < ?", *filter.To)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (models.Lead, error) {
	var lead models.Lead
	err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.Postcode,
		&lead.Address,
		&lead.ServiceType,
		&lead.FormData,
		&lead.Attribution.Referrer,
		&lead.Attribution.UTMSource,
		&lead.Attribution.UTMMedium,
		&lead.Attribution.UTMCampaign,
		&lead.Attribution.UTMContent,
		&lead.Attribution.UTMTerm,
		&lead.Attribution.UserAgent,
		&lead.Attribution.PagePath,
		&lead.VisitorID,
		&lead.SessionID,
		&lead.TrackingEventID,
		&lead.Status,
		&lead.AdminNotes,
		&lead.CreatedAt,
		&lead.ContactedAt,
		&lead.ConvertedAt,
		&lead.UpdatedAt,
	)
	return lead, err
}
