package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/AngelCh415/dealpipe/internal/metrics"
	"github.com/AngelCh415/dealpipe/internal/models"
)

// HomeBuilder builds the combined dashboard.
type HomeBuilder interface {
	Today() models.Date
	Home(ctx context.Context, today models.Date) (models.HomeReport, error)
}

// SnapshotJob refreshes the pipeline gauges from the home dashboard.
type SnapshotJob struct {
	dash HomeBuilder
	m    *metrics.Metrics
	log  *slog.Logger
	now  func() time.Time
}

func NewSnapshotJob(dash HomeBuilder, m *metrics.Metrics, log *slog.Logger) *SnapshotJob {
	if log == nil {
		log = slog.Default()
	}
	return &SnapshotJob{dash: dash, m: m, log: log, now: time.Now}
}

func (j *SnapshotJob) Name() string { return "pipeline_snapshot" }

func (j *SnapshotJob) Run(ctx context.Context) error {
	rep, err := j.dash.Home(ctx, j.dash.Today())
	if err != nil {
		return err
	}
	j.m.SetSnapshot(rep, j.now())
	j.log.Info("pipeline snapshot",
		slog.Int("open_deals", rep.Executive.OpenDeals),
		slog.Int("action_required", rep.Sales.NeedsAction),
		slog.Int("overdue_payments", len(rep.CashFlow.Overdue)),
	)
	return nil
}
