package ports

import (
	"context"

	"github.com/aescanero/dagent/pkg/domain"
)

// ReportStorage keeps finished execution reports. GetReport returns an error
// wrapping domain.ErrReportNotFound for unknown runs.
type ReportStorage interface {
	SaveReport(ctx context.Context, report *domain.ExecutionReport) error
	GetReport(ctx context.Context, runID string) (*domain.ExecutionReport, error)
	DeleteReport(ctx context.Context, runID string) error
	ListRuns(ctx context.Context) ([]string, error)
}
