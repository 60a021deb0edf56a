package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
)

const siteColumns = `id, original_domain, countermeasure_type, countermeasure_data, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSite(row rowScanner) (domain.ProtectedSite, error) {
	var s domain.ProtectedSite
	var cmType string
	err := row.Scan(&s.ID, &s.OriginalDomain, &cmType, &s.Countermeasure.Target, scanTime(&s.CreatedAt), scanTime(&s.UpdatedAt))
	s.Countermeasure.Type = domain.ParseActionType(cmType)
	return s, err
}

func (db *DB) querySites(ctx context.Context, query string, args ...interface{}) ([]domain.ProtectedSite, error) {
	rows, err := db.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
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

func (db *DB) FindByIDPrefix(ctx context.Context, prefix string) ([]domain.ProtectedSite, error) {
	out, err := db.querySites(ctx, `
        SELECT `+siteColumns+` FROM protected_sites
        WHERE substr(replace(id, '-', ''), 1, 8) = ?
        ORDER BY id`, strings.ToLower(prefix))
	if err != nil {
		return nil, fmt.Errorf("query sites by prefix: %w", err)
	}
	return out, nil
}

func (db *DB) GetSite(ctx context.Context, id uuid.UUID) (domain.ProtectedSite, error) {
	s, err := scanSite(db.SQL.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM protected_sites WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

func (db *DB) ListSites(ctx context.Context) ([]domain.ProtectedSite, error) {
	out, err := db.querySites(ctx, `SELECT `+siteColumns+` FROM protected_sites ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return out, nil
}

func (db *DB) CreateSite(ctx context.Context, site domain.ProtectedSite) (domain.ProtectedSite, error) {
	now := time.Now().UTC()
	if site.CreatedAt.IsZero() {
		site.CreatedAt = now
	}
	if site.UpdatedAt.IsZero() {
		site.UpdatedAt = now
	}
	return scanSite(db.SQL.QueryRowContext(ctx, `
        INSERT INTO protected_sites (id, original_domain, countermeasure_type, countermeasure_data, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        RETURNING `+siteColumns,
		site.ID.String(), site.OriginalDomain, string(domain.ParseActionType(string(site.Countermeasure.Type))), site.Countermeasure.Target, site.CreatedAt, site.UpdatedAt))
}

// RecordDetection is a single insert-or-increment statement.
func (db *DB) RecordDetection(ctx context.Context, siteID uuid.UUID, cloneURL, cloneDomain string, at time.Time) (domain.CloneDetection, error) {
	d := domain.CloneDetection{ProtectedSiteID: siteID, CloneURL: cloneURL}
	err := db.SQL.QueryRowContext(ctx, `
        INSERT INTO clone_detections (protected_site_id, clone_url, clone_domain, access_count, first_seen_at, last_access)
        VALUES (?, ?, ?, 1, ?, ?)
        ON CONFLICT (protected_site_id, clone_url) DO UPDATE
            SET access_count = clone_detections.access_count + 1,
                last_access  = max(clone_detections.last_access, excluded.last_access)
        RETURNING id, clone_domain, access_count, first_seen_at, last_access
    `, siteID.String(), cloneURL, cloneDomain, at.UTC(), at.UTC()).Scan(&d.ID, &d.CloneDomain, &d.AccessCount, scanTime(&d.FirstSeenAt), scanTime(&d.LastAccessAt))
	if err != nil {
		return d, fmt.Errorf("upsert clone detection: %w", err)
	}
	return d, nil
}

func (db *DB) ListDetections(ctx context.Context, siteID uuid.UUID) ([]domain.CloneDetection, error) {
	rows, err := db.SQL.QueryContext(ctx, `
        SELECT id, protected_site_id, clone_url, clone_domain, access_count, first_seen_at, last_access
        FROM clone_detections
        WHERE protected_site_id = ?
        ORDER BY last_access DESC`, siteID.String())
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()
	var out []domain.CloneDetection
	for rows.Next() {
		var d domain.CloneDetection
		if err := rows.Scan(&d.ID, &d.ProtectedSiteID, &d.CloneURL, &d.CloneDomain, &d.AccessCount, scanTime(&d.FirstSeenAt), scanTime(&d.LastAccessAt)); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) AppendAccessLog(ctx context.Context, e domain.AccessLogEntry) error {
	var detID sql.NullInt64
	if e.CloneDetectionID != nil {
		detID = sql.NullInt64{Int64: *e.CloneDetectionID, Valid: true}
	}
	_, err := db.SQL.ExecContext(ctx, `
        INSERT INTO clone_access_logs
            (protected_site_id, clone_detection_id, clone_url, ip, user_agent, referrer, country, region, city, accessed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ProtectedSiteID.String(), detID, e.CloneURL, e.Meta.IP, e.Meta.UserAgent, e.Meta.Referrer,
		e.Meta.Country, e.Meta.Region, e.Meta.City, e.AccessedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (db *DB) ListAccessLogs(ctx context.Context, siteID uuid.UUID, limit int) ([]domain.AccessLogEntry, error) {
	rows, err := db.SQL.QueryContext(ctx, `
        SELECT id, protected_site_id, clone_detection_id, clone_url, ip, user_agent, referrer, country, region, city, accessed_at
        FROM clone_access_logs
        WHERE protected_site_id = ?
        ORDER BY accessed_at DESC, id DESC
        LIMIT ?`, siteID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	defer rows.Close()
	var out []domain.AccessLogEntry
	for rows.Next() {
		var e domain.AccessLogEntry
		var detID sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ProtectedSiteID, &detID, &e.CloneURL, &e.Meta.IP, &e.Meta.UserAgent,
			&e.Meta.Referrer, &e.Meta.Country, &e.Meta.Region, &e.Meta.City, scanTime(&e.AccessedAt)); err != nil {
			return nil, err
		}
		if detID.Valid {
			id := detID.Int64
			e.CloneDetectionID = &id
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
