package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/singleflight"

	"github.com/daesung-metal/erp/internal/bom"
	jobmetrics "github.com/daesung-metal/erp/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BOMScanner validates every root assembly.
type BOMScanner interface {
	Scan(ctx context.Context) (bom.ScanReport, error)
}

// ScanSaver persists the latest scan report.
type ScanSaver interface {
	Save(ctx context.Context, report bom.ScanReport) error
}

// BOMIntegrityJob runs the BOM integrity scan. Overlapping runs inside one
// worker share a single scan.
type BOMIntegrityJob struct {
	Scanner BOMScanner
	Store   ScanSaver
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	group   singleflight.Group
}

// NewBOMIntegrityJob wires dependencies for the scan handler.
func NewBOMIntegrityJob(scanner BOMScanner, store ScanSaver, logger *slog.Logger, metrics *jobmetrics.Metrics) *BOMIntegrityJob {
	return &BOMIntegrityJob{Scanner: scanner, Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBOMIntegrityScan tasks.
func (j *BOMIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Scanner == nil {
		return errors.New("bom integrity: handler not configured")
	}
	var payload BOMIntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskBOMIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	logger.Info("starting bom integrity scan")
	start := time.Now()

	report, shared, err := j.run(ctx)
	if err != nil {
		resultErr = err
		logger.Error("bom integrity scan failed", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed bom integrity scan",
		slog.String("scan_id", report.ScanID),
		slog.Int("checked", report.Checked),
		slog.Int("invalid", report.Invalid),
		slog.Int("failures", len(report.Failures)),
		slog.Bool("shared", shared),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *BOMIntegrityJob) run(ctx context.Context) (bom.ScanReport, bool, error) {
	ch := j.group.DoChan(TaskBOMIntegrityScan, func() (interface{}, error) {
		report, err := j.Scanner.Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if j.Store != nil {
			if err := j.Store.Save(ctx, report); err != nil {
				return nil, fmt.Errorf("store report: %w", err)
			}
		}
		issues := 0
		for _, result := range report.Results {
			issues += len(result.Issues)
		}
		j.metrics().ObserveBOMScan(report.Invalid, issues)
		return report, nil
	})
	select {
	case <-ctx.Done():
		return bom.ScanReport{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return bom.ScanReport{}, res.Shared, res.Err
		}
		return res.Val.(bom.ScanReport), res.Shared, nil
	}
}

func (j *BOMIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBOMIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskBOMIntegrityScan))
}

func (j *BOMIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
