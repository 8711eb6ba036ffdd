package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ofsync/internal/domain/institution"
)

type InstitutionRepository struct {
	db *DB
}

var _ institution.Repository = (*InstitutionRepository)(nil)

func NewInstitutionRepository(db *DB) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

func (r *InstitutionRepository) Upsert(ctx context.Context, inst institution.Institution) (*institution.Institution, error) {
	query := `
		INSERT INTO institutions (code, name)
		VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE
			SET name = EXCLUDED.name, updated_at = NOW()
		RETURNING code, name, created_at, updated_at
	`

	var out institution.Institution
	if err := r.db.QueryRowContext(ctx, query, inst.Code, inst.Name).Scan(
		&out.Code, &out.Name, &out.CreatedAt, &out.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert institution: %w", err)
	}
	return &out, nil
}

func (r *InstitutionRepository) GetByCode(ctx context.Context, code string) (*institution.Institution, error) {
	var out institution.Institution
	err := r.db.QueryRowContext(ctx,
		`SELECT code, name, created_at, updated_at FROM institutions WHERE code = $1`, code,
	).Scan(&out.Code, &out.Name, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return &out, nil
}

func (r *InstitutionRepository) List(ctx context.Context) ([]*institution.Institution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, name, created_at, updated_at FROM institutions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var out []*institution.Institution
	for rows.Next() {
		var inst institution.Institution
		if err := rows.Scan(&inst.Code, &inst.Name, &inst.CreatedAt, &inst.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		out = append(out, &inst)
	}
	return out, rows.Err()
}
