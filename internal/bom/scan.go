package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ScanReport is the outcome of validating every root assembly.
type ScanReport struct {
	ScanID     string    `json:"scan_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Checked    int       `json:"checked"`
	// Detached counts assemblies no root reaches, typically closed cycles.
	Detached int                `json:"detached"`
	Invalid  int                `json:"invalid"`
	Results  []ValidationResult `json:"results"`
	Failures []ScanFailure      `json:"failures,omitempty"`
}

// ScanFailure records a root that could not be validated.
type ScanFailure struct {
	RootItemID int64  `json:"root_item_id"`
	Error      string `json:"error"`
}

// Scan validates every root assembly, then every assembly none of the
// roots reached. A failing item is recorded and the scan moves on; only
// context cancellation or a failure to list items aborts it. Results keep
// only invalid items.
func (s *Service) Scan(ctx context.Context) (ScanReport, error) {
	report := ScanReport{
		ScanID:    uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Results:   []ValidationResult{},
	}
	roots, err := s.repo.RootItems(ctx)
	if err != nil {
		return ScanReport{}, fmt.Errorf("%w: list root items: %w", ErrRepository, err)
	}
	assemblies, err := s.repo.AssemblyItems(ctx)
	if err != nil {
		return ScanReport{}, fmt.Errorf("%w: list assembly items: %w", ErrRepository, err)
	}

	logger := s.logger.With(slog.String("scan_id", report.ScanID))
	visited := make(map[int64]struct{})
	for _, id := range roots {
		if err := s.scanItem(ctx, logger, id, &report, visited); err != nil {
			return ScanReport{}, err
		}
	}
	for _, id := range assemblies {
		if _, seen := visited[id]; seen {
			continue
		}
		report.Detached++
		if err := s.scanItem(ctx, logger, id, &report, visited); err != nil {
			return ScanReport{}, err
		}
	}

	report.FinishedAt = time.Now().UTC()
	logger.Info("bom scan completed",
		slog.Int("roots", len(roots)),
		slog.Int("detached", report.Detached),
		slog.Int("checked", report.Checked),
		slog.Int("invalid", report.Invalid),
		slog.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// scanItem validates id into report and marks everything it reached. Only
// context errors are returned.
func (s *Service) scanItem(ctx context.Context, logger *slog.Logger, id int64, report *ScanReport, visited map[int64]struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	visited[id] = struct{}{}
	result, reached, err := s.validate(ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		logger.Warn("bom scan item failed", slog.Int64("root_item_id", id), slog.Any("error", err))
		report.Failures = append(report.Failures, ScanFailure{RootItemID: id, Error: err.Error()})
		return nil
	}
	for _, itemID := range reached {
		visited[itemID] = struct{}{}
	}
	report.Checked++
	if !result.IsValid {
		report.Invalid++
		report.Results = append(report.Results, result)
	}
	return nil
}
