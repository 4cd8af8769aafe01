package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/daesung-metal/erp/internal/bom"
	jobmetrics "github.com/daesung-metal/erp/internal/jobs"
)

type stubScanner struct {
	report bom.ScanReport
	err    error
	calls  int
}

func (s *stubScanner) Scan(context.Context) (bom.ScanReport, error) {
	s.calls++
	return s.report, s.err
}

type memoryScanStore struct {
	saved []bom.ScanReport
	err   error
}

func (m *memoryScanStore) Save(_ context.Context, report bom.ScanReport) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, report)
	return nil
}

func scanTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewBOMIntegrityScanTask(BOMIntegrityScanPayload{Trigger: TriggerCron})
	require.NoError(t, err)
	return task
}

func TestBOMIntegrityJobStoresReport(t *testing.T) {
	scanner := &stubScanner{report: bom.ScanReport{
		ScanID:  "scan-1",
		Checked: 2,
		Invalid: 1,
		Results: []bom.ValidationResult{{RootItemID: 7, Issues: []string{"a", "b"}}},
	}}
	store := &memoryScanStore{}
	job := NewBOMIntegrityJob(scanner, store, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), scanTask(t)))
	require.Equal(t, 1, scanner.calls)
	require.Len(t, store.saved, 1)
	require.Equal(t, "scan-1", store.saved[0].ScanID)
}

func TestBOMIntegrityJobPropagatesFailures(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())

	scanner := &stubScanner{err: bom.ErrRepository}
	store := &memoryScanStore{}
	job := NewBOMIntegrityJob(scanner, store, nil, metrics)
	err := job.Handle(context.Background(), scanTask(t))
	require.ErrorIs(t, err, bom.ErrRepository)
	require.Empty(t, store.saved)

	job = NewBOMIntegrityJob(&stubScanner{}, &memoryScanStore{err: errors.New("redis down")}, nil, metrics)
	err = job.Handle(context.Background(), scanTask(t))
	require.ErrorContains(t, err, "store report: redis down")
}

func TestBOMIntegrityJobRejectsBadPayload(t *testing.T) {
	job := NewBOMIntegrityJob(&stubScanner{}, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), asynq.NewTask(TaskBOMIntegrityScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *BOMIntegrityJob
	require.Error(t, unconfigured.Handle(context.Background(), scanTask(t)))
}

func TestNewBOMIntegrityScanTaskDefaultsTrigger(t *testing.T) {
	task, err := NewBOMIntegrityScanTask(BOMIntegrityScanPayload{})
	require.NoError(t, err)
	require.Equal(t, TaskBOMIntegrityScan, task.Type())

	var payload BOMIntegrityScanPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, TriggerManual, payload.Trigger)
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}
