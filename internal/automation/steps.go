package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/AngelCh415/dealpipe/internal/catalog"
	"github.com/AngelCh415/dealpipe/internal/crm"
	"github.com/AngelCh415/dealpipe/internal/models"
)

// StampStageDates sets procurement_start_date on procurement deals and
// sow_signed_date on won deals that do not have one yet.
func (s *Sync) StampStageDates(ctx context.Context, today models.Date) (int, error) {
	stamps := []struct {
		prop   string
		stages []string
	}{
		{crm.PropProcurementStart, []string{s.cat.Sales().ProcurementStage}},
		{crm.PropSOWSigned, s.cat.StagesWith(catalog.Won)},
	}
	n := 0
	var errs []error
	for _, st := range stamps {
		recs, err := s.crm.SearchRecords(ctx, crm.Where([]string{crm.PropName},
			crm.Filter{PropertyName: crm.PropStage, Operator: crm.OpIn, Values: st.stages},
			crm.Filter{PropertyName: st.prop, Operator: crm.OpNotHasProperty},
		))
		if err != nil {
			return n, err
		}
		for _, r := range recs {
			if err := s.update(ctx, StepStampDates, r.ID, map[string]string{st.prop: today.String()}); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
	}
	return n, errors.Join(errs...)
}

// StalledDeals raises a task for every open sales deal that entered its
// current stage at least StalledDays ago.
func (s *Sync) StalledDeals(ctx context.Context, today models.Date) (int, error) {
	rules := s.cat.Sync()
	props := []string{crm.PropName, crm.PropStage, crm.PropOwner, crm.PropAmount}
	for _, st := range s.cat.StageCodes() {
		props = append(props, crm.StageEnteredProp(st))
	}
	recs, err := s.crm.SearchRecords(ctx, crm.Where(props,
		crm.Filter{PropertyName: crm.PropPipeline, Operator: crm.OpIn, Values: s.salesPipelineIDs()},
		crm.Filter{PropertyName: crm.PropStage, Operator: crm.OpNotIn, Values: s.cat.ClosedStages()},
	))
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, r := range recs {
		entered := models.ParseDate(r.Get(crm.StageEnteredProp(r.Get(crm.PropStage))))
		if entered.IsZero() {
			continue
		}
		days := models.DaysBetween(entered, today)
		if days < rules.StalledDays {
			continue
		}
		s.log.Info("stalled deal", slog.String("deal", nameOf(r)), slog.Int("days_in_stage", days))
		err := s.task(ctx, StepStalledDeals, models.TaskProperties{
			Subject: "Follow up on stalled deal: " + nameOf(r),
			Body:    fmt.Sprintf("This deal has been in the same stage for %d days. Time to push it forward or update the status.", days),
			OwnerID: r.Get(crm.PropOwner),
			DealID:  r.ID,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// RenewalReminders raises a task on the exact days listed in RenewalAlerts
// before a deal's contract end date.
func (s *Sync) RenewalReminders(ctx context.Context, today models.Date) (int, error) {
	alerts := map[int]bool{}
	for _, d := range s.cat.Sync().RenewalAlerts {
		alerts[d] = true
	}
	recs, err := s.crm.SearchRecords(ctx, crm.Where(
		[]string{crm.PropName, crm.PropContractEnd, crm.PropOwner, crm.PropAmount},
		crm.Filter{PropertyName: crm.PropContractEnd, Operator: crm.OpHasProperty},
	))
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, r := range recs {
		end := models.ParseDate(r.Get(crm.PropContractEnd))
		if end.IsZero() {
			continue
		}
		days := models.DaysBetween(today, end)
		if !alerts[days] {
			continue
		}
		subject, body := renewalText(nameOf(r), days, end)
		if err := s.task(ctx, StepRenewals, models.TaskProperties{Subject: subject, Body: body, OwnerID: r.Get(crm.PropOwner), DealID: r.ID}); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func renewalText(name string, days int, end models.Date) (string, string) {
	switch days {
	case 90:
		return "Identify expansion path: " + name,
			fmt.Sprintf("Contract ends in 90 days (%s). Start planning renewal/expansion strategy.", end)
	case 15:
		return "Finalize renewal strategy: " + name,
			fmt.Sprintf("Contract ends in 15 days (%s). Renewal proposal should be ready.", end)
	case 7:
		return "URGENT - Final renewal push: " + name,
			fmt.Sprintf("Contract ends in 7 days (%s). Close this renewal NOW.", end)
	}
	return "Renewal reminder: " + name, fmt.Sprintf("Contract ends in %d days (%s).", days, end)
}

// ProcurementDays recomputes days_in_procurement from procurement_start_date
// for deals sitting in the procurement stage.
func (s *Sync) ProcurementDays(ctx context.Context, today models.Date) (int, error) {
	recs, err := s.crm.SearchRecords(ctx, crm.Where(
		[]string{crm.PropName, crm.PropProcurementStart, crm.PropDaysInProcurement},
		crm.Filter{PropertyName: crm.PropStage, Operator: crm.OpEQ, Value: s.cat.Sales().ProcurementStage},
	))
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, r := range recs {
		start := models.ParseDate(r.Get(crm.PropProcurementStart))
		if start.IsZero() {
			continue
		}
		days := strconv.Itoa(models.DaysBetween(start, today))
		if r.Get(crm.PropDaysInProcurement) == days {
			continue
		}
		if err := s.update(ctx, StepProcurementDays, r.ID, map[string]string{crm.PropDaysInProcurement: days}); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// ClosedWon opens a delivery deal for every sales deal closed won today.
func (s *Sync) ClosedWon(ctx context.Context, today models.Date) (int, error) {
	deliveryID, ok := s.cat.PipelineID(s.cat.Operations().DeliveryPipeline)
	stage := s.cat.Sync().DeliveryStartStage
	if !ok || stage == "" {
		s.log.Warn("delivery pipeline or start stage not configured, skipping", slog.String("step", StepClosedWon))
		return 0, nil
	}
	recs, err := s.closedToday(ctx, catalog.Won, today)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, r := range recs {
		s.log.Info("closed won", slog.String("deal", nameOf(r)))
		err := s.createDeal(ctx, StepClosedWon, models.NewDealProperties{
			Name:     nameOf(r) + " - Delivery",
			Amount:   r.Amount(),
			Pipeline: deliveryID,
			Stage:    stage,
			OwnerID:  r.Get(crm.PropOwner),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// ClosedLost leaves a re-engagement task, due in 90 days, for every sales
// deal closed lost today.
func (s *Sync) ClosedLost(ctx context.Context, today models.Date) (int, error) {
	recs, err := s.closedToday(ctx, catalog.Lost, today)
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, r := range recs {
		err := s.task(ctx, StepClosedLost, models.TaskProperties{
			Subject:   "Re-engagement opportunity: " + nameOf(r),
			Body:      "This deal was marked lost today. Set a reminder to revisit in 90 days.",
			OwnerID:   r.Get(crm.PropOwner),
			DealID:    r.ID,
			Timestamp: s.now().AddDate(0, 0, 90),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *Sync) closedToday(ctx context.Context, o catalog.Outcome, today models.Date) ([]crm.Record, error) {
	return s.crm.SearchRecords(ctx, crm.Where(
		[]string{crm.PropName, crm.PropAmount, crm.PropOwner},
		crm.Filter{PropertyName: crm.PropPipeline, Operator: crm.OpIn, Values: s.salesPipelineIDs()},
		crm.Filter{PropertyName: crm.PropStage, Operator: crm.OpIn, Values: s.cat.StagesWith(o)},
		crm.Filter{PropertyName: crm.PropCloseDate, Operator: crm.OpGTE, Value: today.String()},
	))
}

// SpecRequests hands every spec_required=yes deal to the spec owner and
// moves it to in_progress so the request is raised once.
func (s *Sync) SpecRequests(ctx context.Context, today models.Date) (int, error) {
	recs, err := s.crm.SearchRecords(ctx, crm.Where(
		[]string{crm.PropName, crm.PropOwner, crm.PropAmount},
		crm.Filter{PropertyName: crm.PropSpecRequired, Operator: crm.OpEQ, Value: string(models.SpecYes)},
	))
	if err != nil {
		return 0, err
	}
	rules := s.cat.Sync()
	n := 0
	var errs []error
	for _, r := range recs {
		name := nameOf(r)
		err := s.task(ctx, StepSpecRequests, models.TaskProperties{
			Subject: "Spec request: " + name,
			Body:    fmt.Sprintf("A spec has been requested for %s. Please coordinate with sales on requirements.", name),
			OwnerID: rules.SpecOwner,
			DealID:  r.ID,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		// sin marcar, mañana se repetiría la tarea
		if err := s.update(ctx, StepSpecRequests, r.ID, map[string]string{crm.PropSpecRequired: string(models.SpecInProgress)}); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// ChurnedClients opens a re-engagement deal for delivery deals that moved
// to the churned stage today.
func (s *Sync) ChurnedClients(ctx context.Context, today models.Date) (int, error) {
	ops := s.cat.Operations()
	rules := s.cat.Sync()
	deliveryID, okD := s.cat.PipelineID(ops.DeliveryPipeline)
	reengageID, okR := s.cat.PipelineID(ops.ReengagementPipeline)
	if !okD || !okR || rules.ChurnedStage == "" || rules.ReengagementStartStage == "" {
		s.log.Warn("churn pipelines or stages not configured, skipping", slog.String("step", StepChurned))
		return 0, nil
	}
	recs, err := s.crm.SearchRecords(ctx, crm.Where(
		[]string{crm.PropName, crm.PropAmount, crm.PropOwner},
		crm.Filter{PropertyName: crm.PropPipeline, Operator: crm.OpEQ, Value: deliveryID},
		crm.Filter{PropertyName: crm.PropStage, Operator: crm.OpEQ, Value: rules.ChurnedStage},
		crm.Filter{PropertyName: crm.PropLastModified, Operator: crm.OpGTE, Value: today.String()},
	))
	if err != nil {
		return 0, err
	}
	n := 0
	var errs []error
	for _, r := range recs {
		s.log.Info("churned client", slog.String("deal", nameOf(r)))
		err := s.createDeal(ctx, StepChurned, models.NewDealProperties{
			Name:     nameOf(r) + " - Re-engagement",
			Amount:   r.Amount(),
			Pipeline: reengageID,
			Stage:    rules.ReengagementStartStage,
			OwnerID:  r.Get(crm.PropOwner),
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Digest logs the count of open sales deals.
func (s *Sync) Digest(ctx context.Context, today models.Date) (int, error) {
	recs, err := s.crm.SearchRecords(ctx, crm.Where([]string{crm.PropName},
		crm.Filter{PropertyName: crm.PropPipeline, Operator: crm.OpIn, Values: s.salesPipelineIDs()},
		crm.Filter{PropertyName: crm.PropStage, Operator: crm.OpNotIn, Values: s.cat.ClosedStages()},
	))
	if err != nil {
		return 0, err
	}
	s.log.Info("daily digest", slog.String("today", today.String()), slog.Int("open_sales_deals", len(recs)))
	return len(recs), nil
}
