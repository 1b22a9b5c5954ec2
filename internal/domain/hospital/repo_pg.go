package hospital

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
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

const hospitalCols = `hospital_id, hospital_name, slug, created_at`

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	if err := row.Scan(&h.ID, &h.Name, &h.Slug, &h.CreatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

// Upsert keeps the first spelling of the name; the no-op update makes
// RETURNING yield the existing row on conflict.
func (r *repoPG) Upsert(ctx context.Context, name, slug string) (*Hospital, error) {
	h, err := scanHospital(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO hospitals (hospital_name, slug) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING `+hospitalCols, name, slug))
	if err != nil {
		return nil, fmt.Errorf("upsert hospital %q: %w", slug, err)
	}
	return h, nil
}
