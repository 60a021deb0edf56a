package reports

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/klirineu/offertrack-web/internal/domain"
	"github.com/klirineu/offertrack-web/internal/ports"
)

const (
	SheetDetections = "Clones"
	SheetAccessLog  = "Access log"
)

// DefaultAccessLogLimit caps the access log sheet.
const DefaultAccessLogLimit = 10000

type Service struct {
	ledger ports.CloneLedger
	logs   ports.AccessLogRepository
}

func New(ledger ports.CloneLedger, logs ports.AccessLogRepository) *Service {
	return &Service{ledger: ledger, logs: logs}
}

// Detections lists the ledger rows of a site, most recently accessed first.
func (s *Service) Detections(ctx context.Context, siteID uuid.UUID) ([]domain.CloneDetection, error) {
	rows, err := s.ledger.ListDetections(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].LastAccessAt.After(rows[j].LastAccessAt)
	})
	return rows, nil
}

// ExportXLSX writes a workbook with the site's detections and recent access log.
func (s *Service) ExportXLSX(ctx context.Context, site domain.ProtectedSite, w io.Writer) error {
	detections, err := s.Detections(ctx, site.ID)
	if err != nil {
		return err
	}
	entries, err := s.logs.ListAccessLogs(ctx, site.ID, DefaultAccessLogLimit)
	if err != nil {
		return fmt.Errorf("list access logs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetDetections); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRows(f, SheetDetections, detectionRows(site, detections)); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetAccessLog); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := writeRows(f, SheetAccessLog, accessLogRows(entries)); err != nil {
		return err
	}

	if err := f.SetColWidth(SheetDetections, "A", "B", 48); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func detectionRows(site domain.ProtectedSite, rows []domain.CloneDetection) [][]interface{} {
	out := [][]interface{}{
		{"Original domain", site.OriginalDomain},
		{},
		{"Clone URL", "Clone domain", "Accesses", "First seen", "Last access"},
	}
	for _, d := range rows {
		out = append(out, []interface{}{d.CloneURL, d.CloneDomain, d.AccessCount, stamp(d.FirstSeenAt), stamp(d.LastAccessAt)})
	}
	return out
}

func accessLogRows(entries []domain.AccessLogEntry) [][]interface{} {
	out := [][]interface{}{{"Accessed at", "Clone URL", "IP", "User agent", "Referrer", "Country", "Region", "City"}}
	for _, e := range entries {
		out = append(out, []interface{}{stamp(e.AccessedAt), e.CloneURL, e.Meta.IP, e.Meta.UserAgent, e.Meta.Referrer, e.Meta.Country, e.Meta.Region, e.Meta.City})
	}
	return out
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
