package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/klirineu/offertrack-web/internal/domain"
)

// RecordDetection inserts the (site, url) row or bumps its counter in one
// statement, so racing detections cannot lose increments.
func (db *DB) RecordDetection(ctx context.Context, siteID uuid.UUID, cloneURL, cloneDomain string, at time.Time) (domain.CloneDetection, error) {
	d := domain.CloneDetection{ProtectedSiteID: siteID, CloneURL: cloneURL}
	err := db.Pool.QueryRow(ctx, `
        INSERT INTO clone_detections (protected_site_id, clone_url, clone_domain, access_count, first_seen_at, last_access)
        VALUES ($1, $2, $3, 1, $4, $4)
        ON CONFLICT (protected_site_id, clone_url) DO UPDATE
            SET access_count = clone_detections.access_count + 1,
                last_access  = GREATEST(clone_detections.last_access, EXCLUDED.last_access)
        RETURNING id, clone_domain, access_count, first_seen_at, last_access
    `, siteID, cloneURL, cloneDomain, at).Scan(&d.ID, &d.CloneDomain, &d.AccessCount, &d.FirstSeenAt, &d.LastAccessAt)
	if err != nil {
		return d, fmt.Errorf("upsert clone detection: %w", err)
	}
	return d, nil
}

func (db *DB) ListDetections(ctx context.Context, siteID uuid.UUID) ([]domain.CloneDetection, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, protected_site_id, clone_url, clone_domain, access_count, first_seen_at, last_access
        FROM clone_detections
        WHERE protected_site_id = $1
        ORDER BY last_access DESC
    `, siteID)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()
	var out []domain.CloneDetection
	for rows.Next() {
		var d domain.CloneDetection
		if err := rows.Scan(&d.ID, &d.ProtectedSiteID, &d.CloneURL, &d.CloneDomain, &d.AccessCount, &d.FirstSeenAt, &d.LastAccessAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) AppendAccessLog(ctx context.Context, e domain.AccessLogEntry) error {
	_, err := db.Pool.Exec(ctx, `
        INSERT INTO clone_access_logs
            (protected_site_id, clone_detection_id, clone_url, ip, user_agent, referrer, country, region, city, accessed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, e.ProtectedSiteID, e.CloneDetectionID, e.CloneURL, e.Meta.IP, e.Meta.UserAgent, e.Meta.Referrer,
		e.Meta.Country, e.Meta.Region, e.Meta.City, e.AccessedAt)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (db *DB) ListAccessLogs(ctx context.Context, siteID uuid.UUID, limit int) ([]domain.AccessLogEntry, error) {
	rows, err := db.Pool.Query(ctx, `
        SELECT id, protected_site_id, clone_detection_id, clone_url, ip, user_agent, referrer, country, region, city, accessed_at
        FROM clone_access_logs
        WHERE protected_site_id = $1
        ORDER BY accessed_at DESC
        LIMIT $2
    `, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	defer rows.Close()
	var out []domain.AccessLogEntry
	for rows.Next() {
		var e domain.AccessLogEntry
		if err := rows.Scan(&e.ID, &e.ProtectedSiteID, &e.CloneDetectionID, &e.CloneURL, &e.Meta.IP, &e.Meta.UserAgent,
			&e.Meta.Referrer, &e.Meta.Country, &e.Meta.Region, &e.Meta.City, &e.AccessedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
