package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) LockEmail(ctx context.Context, email string) error {
	if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, email); err != nil {
		return fmt.Errorf("lock email: %w", err)
	}
	return nil
}

func (r *repoPG) PurgeExpired(ctx context.Context, cutoff time.Time) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM temp_registrations WHERE created_at <= $1`, cutoff); err != nil {
		return fmt.Errorf("purge staging: %w", err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM verification_tokens WHERE NOT is_verified AND created_at <= $1`, cutoff); err != nil {
		return fmt.Errorf("purge tokens: %w", err)
	}
	return nil
}

func (r *repoPG) LockToken(ctx context.Context, email string) (*Token, error) {
	var t Token
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT email, code, is_verified, created_at, verified_at
		FROM verification_tokens WHERE email = $1
		FOR UPDATE`, email,
	).Scan(&t.Email, &t.Code, &t.IsVerified, &t.CreatedAt, &t.VerifiedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) UpsertToken(ctx context.Context, email, code string, now time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO verification_tokens (email, code, is_verified, created_at, verified_at)
		VALUES ($1, $2, FALSE, $3, NULL)
		ON CONFLICT (email) DO UPDATE SET
			code = EXCLUDED.code,
			is_verified = FALSE,
			created_at = EXCLUDED.created_at,
			verified_at = NULL`, email, code, now)
	return err
}

func (r *repoPG) MarkVerified(ctx context.Context, email string, now time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE verification_tokens SET is_verified = TRUE, verified_at = $2 WHERE email = $1`, email, now)
	return err
}

func (r *repoPG) DeleteToken(ctx context.Context, email string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM verification_tokens WHERE email = $1`, email)
	return err
}

func (r *repoPG) LockStaging(ctx context.Context, email string) (*Staging, error) {
	var s Staging
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT email, password_hash, first_name, last_name, role, hospital_name, created_at
		FROM temp_registrations WHERE email = $1
		FOR UPDATE`, email,
	).Scan(&s.Email, &s.PasswordHash, &s.FirstName, &s.LastName, &s.Role, &s.HospitalName, &s.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) UpsertStaging(ctx context.Context, s *Staging) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO temp_registrations (email, password_hash, first_name, last_name, role, hospital_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			role = EXCLUDED.role,
			hospital_name = EXCLUDED.hospital_name,
			created_at = EXCLUDED.created_at`,
		s.Email, s.PasswordHash, s.FirstName, s.LastName, s.Role, s.HospitalName, s.CreatedAt)
	return err
}

func (r *repoPG) DeleteStaging(ctx context.Context, email string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM temp_registrations WHERE email = $1`, email)
	return err
}
