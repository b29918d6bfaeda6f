// Package automation runs the daily CRM housekeeping: it stamps stage entry
// dates, keeps days_in_procurement current, raises tasks for stalled deals,
// renewals, lost deals and spec requests, and opens follow-on deals for won
// and churned clients. Every step is a plain search + write over the CRM.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AngelCh415/dealpipe/internal/catalog"
	"github.com/AngelCh415/dealpipe/internal/crm"
	"github.com/AngelCh415/dealpipe/internal/metrics"
	"github.com/AngelCh415/dealpipe/internal/models"
)

type CRM interface {
	SearchRecords(ctx context.Context, q crm.Search) ([]crm.Record, error)
	CreateTask(ctx context.Context, p models.TaskProperties) (string, error)
	CreateDeal(ctx context.Context, p models.NewDealProperties) (string, error)
	UpdateDeal(ctx context.Context, id string, props map[string]string) error
}

// Step names, also used as metric labels.
const (
	StepStampDates      = "stamp_stage_dates"
	StepStalledDeals    = "stalled_deals"
	StepRenewals        = "renewal_reminders"
	StepProcurementDays = "procurement_days"
	StepClosedWon       = "closed_won"
	StepClosedLost      = "closed_lost"
	StepSpecRequests    = "spec_requests"
	StepChurned         = "churned_clients"
	StepDigest          = "daily_digest"
)

type Sync struct {
	crm    CRM
	cat    *catalog.Catalog
	log    *slog.Logger
	m      *metrics.Metrics
	loc    *time.Location
	now    func() time.Time
	dryRun bool
}

func NewSync(c CRM, cat *catalog.Catalog, log *slog.Logger, m *metrics.Metrics, loc *time.Location) *Sync {
	if cat == nil {
		cat = catalog.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Sync{crm: c, cat: cat, log: log.With(slog.String("component", "sync")), m: m, loc: loc, now: time.Now}
}

func (s *Sync) WithClock(now func() time.Time) *Sync {
	s.now = now
	return s
}

// DryRun makes the sync search and log without writing to the CRM.
func (s *Sync) DryRun(on bool) *Sync {
	s.dryRun = on
	return s
}

func (s *Sync) Name() string { return "daily_crm_sync" }

// Timeout bounds a whole sync run; it is many CRM calls, not one.
func (s *Sync) Timeout() time.Duration { return 10 * time.Minute }

func (s *Sync) today() models.Date { return models.DateOf(s.now().In(s.loc)) }

// Run executes every step in order. A failing step is logged and does not
// stop the ones after it; the joined errors are returned.
func (s *Sync) Run(ctx context.Context) error {
	today := s.today()
	steps := []struct {
		name string
		fn   func(context.Context, models.Date) (int, error)
	}{
		{StepStampDates, s.StampStageDates},
		{StepStalledDeals, s.StalledDeals},
		{StepRenewals, s.RenewalReminders},
		{StepProcurementDays, s.ProcurementDays},
		{StepClosedWon, s.ClosedWon},
		{StepClosedLost, s.ClosedLost},
		{StepSpecRequests, s.SpecRequests},
		{StepChurned, s.ChurnedClients},
		{StepDigest, s.Digest},
	}
	var errs []error
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := st.fn(ctx, today)
		if err != nil {
			s.log.Error("sync step failed", slog.String("step", st.name), slog.String("err", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		s.log.Info("sync step done", slog.String("step", st.name), slog.Int("count", n), slog.Bool("dry_run", s.dryRun))
	}
	return errors.Join(errs...)
}

// write runs fn unless in dry-run mode and records the outcome under step.
func (s *Sync) write(step, what string, fn func() error) error {
	if s.dryRun {
		s.log.Info("dry run", slog.String("step", step), slog.String("would", what))
		s.m.ObserveSync(step, "dry_run", 1)
		return nil
	}
	if err := fn(); err != nil {
		s.m.ObserveSync(step, "error", 1)
		return fmt.Errorf("%s: %w", what, err)
	}
	s.m.ObserveSync(step, "ok", 1)
	return nil
}

func (s *Sync) task(ctx context.Context, step string, p models.TaskProperties) error {
	if p.OwnerID == "" {
		p.OwnerID = s.cat.Sync().DefaultOwner
	}
	if p.Status == "" {
		p.Status = models.TaskNotStarted
	}
	if p.Priority == "" {
		p.Priority = models.PriorityHigh
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = s.now()
	}
	return s.write(step, "create task "+p.Subject, func() error {
		_, err := s.crm.CreateTask(ctx, p)
		return err
	})
}

func (s *Sync) update(ctx context.Context, step, id string, props map[string]string) error {
	return s.write(step, fmt.Sprintf("update deal %s %v", id, props), func() error {
		return s.crm.UpdateDeal(ctx, id, props)
	})
}

func (s *Sync) createDeal(ctx context.Context, step string, p models.NewDealProperties) error {
	if p.OwnerID == "" {
		p.OwnerID = s.cat.Sync().DefaultOwner
	}
	return s.write(step, "create deal "+p.Name, func() error {
		_, err := s.crm.CreateDeal(ctx, p)
		return err
	})
}

// salesPipelineIDs resolves the configured sales pipeline names; unknown names are skipped.
func (s *Sync) salesPipelineIDs() []string {
	var ids []string
	for _, name := range s.cat.Sync().SalesPipelines {
		if id, ok := s.cat.PipelineID(name); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func nameOf(r crm.Record) string {
	if n := r.Get(crm.PropName); n != "" {
		return n
	}
	return "Unknown"
}
