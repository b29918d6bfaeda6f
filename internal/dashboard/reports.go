package dashboard

import (
	"github.com/AngelCh415/dealpipe/internal/engine"
	"github.com/AngelCh415/dealpipe/internal/models"
)

// SalesTableLimit caps the active deals table of the sales view.
const SalesTableLimit = 15

// RenewalSoonDays marks renewals that need a conversation now.
const RenewalSoonDays = 30

func BuildExecutive(eng *engine.Engine, deals []models.Deal, today models.Date) models.ExecutiveReport {
	p := eng.Partition(deals)
	sum := eng.Summarize(deals)
	return models.ExecutiveReport{
		Today:         today,
		TotalPipeline: sum.TotalPipeline,
		OpenDeals:     sum.OpenCount,
		TotalWon:      sum.TotalWon,
		WinRate:       sum.WinRate,
		ByTier:        engine.ByTier(p.Open),
		ByPipeline:    eng.ByPipeline(p.Open),
		TopDeals:      rows(eng, engine.TopN(p.Open, engine.TopDealsLimit)),
	}
}

func BuildSales(eng *engine.Engine, deals []models.Deal, today models.Date) models.SalesReport {
	open := eng.Open(deals)
	actions := eng.ActionRequired(open)
	table := open
	if len(table) > SalesTableLimit {
		table = table[:SalesTableLimit]
	}
	return models.SalesReport{
		Today:          today,
		ActiveDeals:    len(open),
		ActiveTotal:    engine.Sum(open),
		NeedsAction:    len(actions),
		ActionRequired: actions,
		Deals:          rows(eng, table),
		ByStage:        eng.ByStage(open),
		SpecStatus:     engine.SpecCounts(open),
	}
}

func BuildCashFlow(deals []models.Deal, today models.Date) models.CashFlowReport {
	expected := engine.ExpectedPayments(deals)
	overdue := engine.Overdue(expected, today)
	due30 := engine.DueWithin(expected, engine.PaymentExpected, today, engine.Window30)
	due90 := engine.DueWithin(expected, engine.PaymentExpected, today, engine.Window90)
	return models.CashFlowReport{
		Today:            today,
		TotalOutstanding: engine.Sum(expected),
		TotalOverdue:     engine.Sum(engine.DealsOf(overdue)),
		Due30Total:       engine.Sum(engine.DealsOf(due30)),
		Forecast90Total:  engine.Sum(engine.DealsOf(due90)),
		Overdue:          overdue,
		Due30:            due30,
		ForecastByMonth:  engine.ForecastByMonth(due90),
	}
}

func BuildOperations(eng *engine.Engine, deals []models.Deal, today models.Date) models.OperationsReport {
	ops := eng.Operations(deals)
	cat := eng.Catalog()
	phase3 := engine.DueWithin(deals, engine.Phase3Start, today, engine.Window60)
	renewals := engine.DueWithin(deals, engine.Renewal, today, engine.Window90)
	for i := range renewals {
		renewals[i].Soon = renewals[i].Days < RenewalSoonDays
	}
	return models.OperationsReport{
		Today:              today,
		ActiveClients:      len(ops.ActiveClients),
		InDelivery:         len(ops.Delivery),
		Reengagement:       len(ops.Reengagement),
		Renewals90:         len(renewals),
		DeliveryStages:     engine.StageCounts(ops.Delivery, cat.DeliveryStageLabel),
		ReengagementStages: engine.StageCounts(ops.Reengagement, cat.ReengagementStageLabel),
		Phase3Upcoming:     phase3,
		RenewalsUpcoming:   renewals,
	}
}

func rows(eng *engine.Engine, deals []models.Deal) []models.DealRow {
	out := make([]models.DealRow, 0, len(deals))
	for _, d := range deals {
		out = append(out, models.DealRow{
			ID:     d.ID,
			Name:   d.Name,
			Amount: d.Amount,
			Stage:  eng.Catalog().StageLabel(d.Stage),
			Tier:   dash(d.Tier),
			Spec:   dash(string(d.SpecRequired)),
		})
	}
	return out
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
