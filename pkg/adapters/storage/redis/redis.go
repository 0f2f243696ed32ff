package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const reportKeyPrefix = "dagent:report:"

// ReportStorage implements ports.ReportStorage using Redis
type ReportStorage struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewReportStorage creates a new Redis report storage. A zero ttl keeps
// reports until they are deleted.
func NewReportStorage(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReportStorage {
	return &ReportStorage{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveReport stores report as JSON with the configured TTL
func (s *ReportStorage) SaveReport(ctx context.Context, report *domain.ExecutionReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("report must have a run id")
	}

	// Serialize report
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// Save to Redis with TTL
	if err := s.client.Set(ctx, getReportKey(report.RunID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	s.logger.Debug("report saved",
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.Status)))

	return nil
}

// GetReport retrieves a report from Redis
func (s *ReportStorage) GetReport(ctx context.Context, runID string) (*domain.ExecutionReport, error) {
	data, err := s.client.Get(ctx, getReportKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, runID)
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	// Deserialize report
	var report domain.ExecutionReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &report, nil
}

// DeleteReport deletes a report from Redis
func (s *ReportStorage) DeleteReport(ctx context.Context, runID string) error {
	if err := s.client.Del(ctx, getReportKey(runID)).Err(); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	s.logger.Debug("report deleted",
		zap.String("run_id", runID))

	return nil
}

// ListRuns returns the ids of all stored reports, sorted
func (s *ReportStorage) ListRuns(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, reportKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	// Extract run IDs from keys
	runIDs := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(key) > len(reportKeyPrefix) {
			runIDs = append(runIDs, key[len(reportKeyPrefix):])
		}
	}
	sort.Strings(runIDs)

	return runIDs, nil
}

// getReportKey returns the Redis key for a run report
func getReportKey(runID string) string {
	return reportKeyPrefix + runID
}
