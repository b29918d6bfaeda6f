package engine

import (
	"sort"

	"github.com/AngelCh415/dealpipe/internal/models"
)

// Forecast windows, in days from today inclusive.
const (
	Window30 = 30
	Window60 = 60
	Window90 = 90
)

// DateField picks the date a window is evaluated on.
type DateField func(models.Deal) models.Date

var (
	PaymentExpected DateField = func(d models.Deal) models.Date { return d.PaymentExpectedDate }
	Phase3Start     DateField = func(d models.Deal) models.Date { return d.Phase3StartDate }
	Renewal         DateField = func(d models.Deal) models.Date { return d.RenewalDate }
)

// ExpectedPayments keeps deals with an expected payment date and no received
// payment, sorted ascending by expected date (stable).
func ExpectedPayments(deals []models.Deal) []models.Deal {
	out := make([]models.Deal, 0, len(deals))
	for _, d := range deals {
		if !d.PaymentExpectedDate.IsZero() && !d.Paid() {
			out = append(out, d)
		}
	}
	sortBy(out, PaymentExpected)
	return out
}

// Overdue returns expected payments due strictly before today with the days overdue.
func Overdue(expected []models.Deal, today models.Date) []models.DatedDeal {
	out := []models.DatedDeal{}
	for _, d := range expected {
		due := d.PaymentExpectedDate
		if due.IsZero() || !due.Before(today) {
			continue
		}
		out = append(out, models.DatedDeal{Deal: d, Date: due, Days: DaysOverdue(due, today)})
	}
	return out
}

// DueWithin returns deals whose field date lies in [today, today+days],
// sorted ascending by that date, each with the days until it.
func DueWithin(deals []models.Deal, field DateField, today models.Date, days int) []models.DatedDeal {
	end := today.AddDays(days)
	sel := make([]models.Deal, 0, len(deals))
	for _, d := range deals {
		at := field(d)
		if at.IsZero() || at.Before(today) || at.After(end) {
			continue
		}
		sel = append(sel, d)
	}
	sortBy(sel, field)
	out := make([]models.DatedDeal, 0, len(sel))
	for _, d := range sel {
		out = append(out, models.DatedDeal{Deal: d, Date: field(d), Days: DaysUntil(field(d), today)})
	}
	return out
}

// DaysOverdue counts whole days from due to today.
func DaysOverdue(due, today models.Date) int {
	return models.DaysBetween(due, today)
}

// DaysUntil counts whole days from today to target.
func DaysUntil(target, today models.Date) int {
	return models.DaysBetween(today, target)
}

// ForecastByMonth sums amounts per YYYY-MM of the expected payment date.
// Rows without a month are skipped.
func ForecastByMonth(rows []models.DatedDeal) []models.MonthAmount {
	g := newOrdered[models.MonthAmount]()
	for _, r := range rows {
		m := r.Deal.PaymentExpectedDate.Month()
		if m == "" {
			continue
		}
		v := g.at(m)
		v.Month = m
		v.Amount = v.Amount.Add(r.Deal.Amount)
	}
	out := make([]models.MonthAmount, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, *g.vals[k])
	}
	return out
}

func DealsOf(rows []models.DatedDeal) []models.Deal {
	out := make([]models.Deal, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Deal)
	}
	return out
}

func sortBy(deals []models.Deal, field DateField) {
	sort.SliceStable(deals, func(i, j int) bool { return field(deals[i]) < field(deals[j]) })
}
