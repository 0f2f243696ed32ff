package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/dagent/pkg/domain"
)

// ReportStorage implements ports.ReportStorage using an in-memory map.
// Reports do not survive a restart.
type ReportStorage struct {
	reports map[string]*domain.ExecutionReport
	mu      sync.RWMutex
}

// NewReportStorage creates a new in-memory report storage
func NewReportStorage() *ReportStorage {
	return &ReportStorage{
		reports: make(map[string]*domain.ExecutionReport),
	}
}

// SaveReport stores a copy of report, replacing any earlier one for the run
func (s *ReportStorage) SaveReport(ctx context.Context, report *domain.ExecutionReport) error {
	if report == nil || report.RunID == "" {
		return fmt.Errorf("report must have a run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Deep copy to avoid mutations
	s.reports[report.RunID] = report.Clone()
	return nil
}

// GetReport returns a copy of the stored report
func (s *ReportStorage) GetReport(ctx context.Context, runID string) (*domain.ExecutionReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.reports[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrReportNotFound, runID)
	}
	return report.Clone(), nil
}

// DeleteReport removes a stored report
func (s *ReportStorage) DeleteReport(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reports, runID)
	return nil
}

// ListRuns returns the ids of all stored reports, sorted
func (s *ReportStorage) ListRuns(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runIDs := make([]string, 0, len(s.reports))
	for id := range s.reports {
		runIDs = append(runIDs, id)
	}
	sort.Strings(runIDs)

	return runIDs, nil
}
