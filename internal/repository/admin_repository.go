package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Awaisee01/fund-sub001/internal/models"
)

type AdminRepository struct {
	pool *pgxpool.Pool
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{pool: pool}
}

func (r *AdminRepository) Create(ctx context.Context, admin models.AdminUser) error {
	const query = `
		INSERT INTO admin_users (
			id, email, password_hash, totp_secret, totp_verified, active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		admin.ID,
		admin.Email,
		admin.PasswordHash,
		admin.TOTPSecret,
		admin.TOTPVerified,
		admin.Active,
	)
	return wrapErr("insert admin", err)
}

func (r *AdminRepository) FindByEmail(ctx context.Context, email string) (models.AdminUser, error) {
	const query = `
		SELECT id, email, password_hash, totp_secret, totp_verified, active, last_login_at, created_at, updated_at
		FROM admin_users WHERE email = $1
	`
	return r.scanOne(ctx, "find admin by email", query, email)
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (models.AdminUser, error) {
	const query = `
		SELECT id, email, password_hash, totp_secret, totp_verified, active, last_login_at, created_at, updated_at
		FROM admin_users WHERE id = $1
	`
	return r.scanOne(ctx, "get admin", query, id)
}

func (r *AdminRepository) SetTOTPSecret(ctx context.Context, id string, secret string) error {
	const query = `
		UPDATE admin_users SET totp_secret = $2, totp_verified = FALSE, updated_at = NOW() WHERE id = $1
	`
	return r.execOne(ctx, "set totp secret", query, id, secret)
}

func (r *AdminRepository) MarkTOTPVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE admin_users SET totp_verified = TRUE, updated_at = NOW() WHERE id = $1
	`
	return r.execOne(ctx, "mark totp verified", query, id)
}

func (r *AdminRepository) RecordLogin(ctx context.Context, id string) error {
	const query = `
		UPDATE admin_users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1
	`
	return r.execOne(ctx, "record admin login", query, id)
}

// UpdatePassword also drops the TOTP enrolment.
func (r *AdminRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	const query = `
		UPDATE admin_users
		SET password_hash = $2, totp_secret = NULL, totp_verified = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, "update admin password", query, id, passwordHash)
}

func (r *AdminRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `
		UPDATE admin_users SET active = $2, updated_at = NOW() WHERE id = $1
	`
	return r.execOne(ctx, "set admin active", query, id, active)
}

func (r *AdminRepository) scanOne(ctx context.Context, op, query string, arg any) (models.AdminUser, error) {
	row := r.pool.QueryRow(ctx, query, arg)
	var admin models.AdminUser
	if err := row.Scan(
		&admin.ID,
		&admin.Email,
		&admin.PasswordHash,
		&admin.TOTPSecret,
		&admin.TOTPVerified,
		&admin.Active,
		&admin.LastLoginAt,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.AdminUser{}, ErrAdminNotFound
		}
		return models.AdminUser{}, wrapErr(op, err)
	}
	return admin, nil
}

func (r *AdminRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return wrapErr(op, err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAdminNotFound
	}
	return nil
}
