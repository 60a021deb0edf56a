package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/klirineu/offertrack-web/internal/domain"
)

const siteColumns = `id, original_domain, countermeasure_type, countermeasure_data, created_at, updated_at`

func scanSite(row pgx.Row) (domain.ProtectedSite, error) {
	var s domain.ProtectedSite
	var cmType string
	err := row.Scan(&s.ID, &s.OriginalDomain, &cmType, &s.Countermeasure.Target, &s.CreatedAt, &s.UpdatedAt)
	s.Countermeasure.Type = domain.ParseActionType(cmType)
	return s, err
}

func collectSites(rows pgx.Rows) ([]domain.ProtectedSite, error) {
	defer rows.Close()
	var out []domain.ProtectedSite
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FindByIDPrefix uses the hex prefix index; prefix is always 8 hex chars.
func (db *DB) FindByIDPrefix(ctx context.Context, prefix string) ([]domain.ProtectedSite, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT `+siteColumns+`
        FROM protected_sites
        WHERE left(replace(id::text, '-', ''), 8) = $1
        ORDER BY id
    `, strings.ToLower(prefix))
	if err != nil {
		return nil, fmt.Errorf("query sites by prefix: %w", err)
	}
	return collectSites(rows)
}

func (db *DB) GetSite(ctx context.Context, id uuid.UUID) (domain.ProtectedSite, error) {
	s, err := scanSite(db.Pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM protected_sites WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

func (db *DB) ListSites(ctx context.Context) ([]domain.ProtectedSite, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+siteColumns+` FROM protected_sites ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return collectSites(rows)
}

func (db *DB) CreateSite(ctx context.Context, site domain.ProtectedSite) (domain.ProtectedSite, error) {
	return scanSite(db.Pool.QueryRow(ctx, `
        INSERT INTO protected_sites (id, original_domain, countermeasure_type, countermeasure_data)
        VALUES ($1, $2, $3, $4)
        RETURNING `+siteColumns,
		site.ID, site.OriginalDomain, string(domain.ParseActionType(string(site.Countermeasure.Type))), site.Countermeasure.Target))
}

var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }
