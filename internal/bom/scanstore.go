package bom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scanLatestKey  = "bom:scan:latest"
	defaultScanTTL = 7 * 24 * time.Hour
)

// ErrNoScan indicates no integrity scan has been stored yet.
var ErrNoScan = errors.New("bom: no scan report")

// ScanStore keeps the latest integrity scan report in Redis.
type ScanStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewScanStore instantiates the store. A non-positive ttl keeps reports for
// a week.
func NewScanStore(client *redis.Client, ttl time.Duration) *ScanStore {
	if ttl <= 0 {
		ttl = defaultScanTTL
	}
	return &ScanStore{client: client, ttl: ttl}
}

// Save stores report as the latest scan.
func (s *ScanStore) Save(ctx context.Context, report ScanReport) error {
	if s == nil || s.client == nil {
		return errors.New("bom: scan store not configured")
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, scanLatestKey, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("bom: save scan: %w", err)
	}
	return nil
}

// Latest loads the most recent scan report.
func (s *ScanStore) Latest(ctx context.Context) (ScanReport, error) {
	if s == nil || s.client == nil {
		return ScanReport{}, ErrNoScan
	}
	raw, err := s.client.Get(ctx, scanLatestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return ScanReport{}, ErrNoScan
	}
	if err != nil {
		return ScanReport{}, fmt.Errorf("bom: load scan: %w", err)
	}
	var report ScanReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return ScanReport{}, fmt.Errorf("bom: decode scan: %w", err)
	}
	return report, nil
}
