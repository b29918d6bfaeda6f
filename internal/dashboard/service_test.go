package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/dealpipe/internal/catalog"
	"github.com/AngelCh415/dealpipe/internal/crm"
	"github.com/AngelCh415/dealpipe/internal/engine"
	"github.com/AngelCh415/dealpipe/internal/models"
)

const today = models.Date("2024-06-01")

func intp(i int) *int { return &i }

func fixture() *crm.Memory {
	m := crm.NewMemory()
	add := func(d models.Deal, amount int64) {
		d.Amount = decimal.NewFromInt(amount)
		m.UpsertDeal(d)
	}
	add(models.Deal{ID: "won", Name: "Won deal", Stage: "2978915064", Pipeline: "1880222397",
		PaymentExpectedDate: "2024-05-20"}, 1000)
	add(models.Deal{ID: "lost", Name: "Lost deal", Stage: "2978915065", Pipeline: "1880222398"}, 500)
	add(models.Deal{ID: "proc", Name: "Stuck", Stage: "2978915063", Pipeline: "1880222397", Tier: "Tier 1",
		DaysInProcurement: intp(45), PaymentExpectedDate: "2024-06-20"}, 4000)
	add(models.Deal{ID: "gonogo", Name: "Spec ready", Stage: "2978915060", Pipeline: "1880222398",
		SpecRequired: models.SpecDelivered, PaymentExpectedDate: "2024-08-15"}, 2000)
	add(models.Deal{ID: "paid", Name: "Paid", Stage: "2978915064",
		PaymentExpectedDate: "2024-05-01", PaymentReceivedDate: "2024-05-02"}, 300)
	add(models.Deal{ID: "deliv", Name: "Client A", Stage: "phase_3_active", Pipeline: "1880222399",
		Phase3StartDate: "2024-06-11", RenewalDate: "2024-06-21"}, 700)
	add(models.Deal{ID: "deliv2", Name: "Client B", Stage: "phase_1_scoping", Pipeline: "1880222399",
		RenewalDate: "2024-08-10"}, 100)
	add(models.Deal{ID: "re", Name: "Come back", Stage: "outreach", Pipeline: "1880222400"}, 50)
	return m
}

func newService(src DealSource) *Service {
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return NewService(src, engine.New(catalog.Default()), nil, nil, time.UTC).WithClock(func() time.Time { return fixed })
}

func TestTodayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	s := NewService(crm.NewMemory(), engine.New(nil), nil, nil, loc).
		WithClock(func() time.Time { return time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC) })
	assert.Equal(t, models.Date("2024-05-31"), s.Today())
	assert.Equal(t, today, newService(crm.NewMemory()).Today())
}

func TestExecutive(t *testing.T) {
	r, err := newService(fixture()).Executive(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, 67, r.WinRate)
	assert.Equal(t, "1300", r.TotalWon.String())
	assert.Equal(t, "6850", r.TotalPipeline.String())
	assert.Equal(t, 5, r.OpenDeals)
	require.Len(t, r.TopDeals, 5)
	assert.Equal(t, "proc", r.TopDeals[0].ID)
	assert.Equal(t, "Procurement", r.TopDeals[0].Stage)
	assert.Equal(t, "Tier 1", r.TopDeals[0].Tier)
	assert.Equal(t, "-", r.TopDeals[1].Tier)

	pipes := map[string]int{}
	for _, b := range r.ByPipeline {
		pipes[b.Key] = b.Count
	}
	assert.Equal(t, map[string]int{"enterprise": 1, "smb": 1, "client_delivery": 2, "reengagement": 1}, pipes)
}

func TestSales(t *testing.T) {
	r, err := newService(fixture()).Sales(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, 5, r.ActiveDeals)
	assert.Equal(t, 2, r.NeedsAction)
	msgs := map[string]string{}
	for _, a := range r.ActionRequired {
		msgs[a.Deal.ID] = a.Message
	}
	assert.Contains(t, msgs["proc"], "45")
	assert.Contains(t, msgs["gonogo"], "GO/NO-GO")

	spec := map[string]int{}
	for _, b := range r.SpecStatus {
		spec[b.Key] = b.Count
	}
	assert.Equal(t, map[string]int{"yes": 0, "no": 0, "in_progress": 0, "delivered": 1, "none": 4}, spec)
	assert.Len(t, r.Deals, 5)
}

func TestCashFlow(t *testing.T) {
	r, err := newService(fixture()).CashFlow(context.Background(), today)
	require.NoError(t, err)

	require.Len(t, r.Overdue, 1)
	assert.Equal(t, "won", r.Overdue[0].Deal.ID)
	assert.Equal(t, 12, r.Overdue[0].Days)
	assert.Equal(t, "7000", r.TotalOutstanding.String())
	assert.Equal(t, "1000", r.TotalOverdue.String())
	assert.Equal(t, "4000", r.Due30Total.String())
	assert.Equal(t, "6000", r.Forecast90Total.String())

	months := map[string]string{}
	for _, m := range r.ForecastByMonth {
		months[m.Month] = m.Amount.String()
	}
	assert.Equal(t, map[string]string{"2024-06": "4000", "2024-08": "2000"}, months)
}

func TestOperations(t *testing.T) {
	r, err := newService(fixture()).Operations(context.Background(), today)
	require.NoError(t, err)

	assert.Equal(t, 1, r.ActiveClients)
	assert.Equal(t, 2, r.InDelivery)
	assert.Equal(t, 1, r.Reengagement)
	assert.Equal(t, 2, r.Renewals90)
	require.Len(t, r.Phase3Upcoming, 1)
	assert.Equal(t, 10, r.Phase3Upcoming[0].Days)
	require.Len(t, r.RenewalsUpcoming, 2)
	assert.True(t, r.RenewalsUpcoming[0].Soon)
	assert.False(t, r.RenewalsUpcoming[1].Soon)

	labels := map[string]string{}
	for _, b := range r.DeliveryStages {
		labels[b.Key] = b.Label
	}
	assert.Equal(t, "Phase 3: Active", labels["phase_3_active"])
	require.Len(t, r.ReengagementStages, 1)
	assert.Equal(t, "Outreach", r.ReengagementStages[0].Label)
}

func TestHomeMatchesSingleViews(t *testing.T) {
	s := newService(fixture())
	ctx := context.Background()
	home, err := s.Home(ctx, today)
	require.NoError(t, err)
	exec, err := s.Executive(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, exec.WinRate, home.Executive.WinRate)
	assert.True(t, exec.TotalPipeline.Equal(home.Executive.TotalPipeline))
	assert.Equal(t, 12, home.CashFlow.Overdue[0].Days)

	for _, v := range Views {
		_, err := s.Build(ctx, v, today)
		assert.NoError(t, err, v)
	}
	_, err = s.Build(ctx, "nope", today)
	assert.Error(t, err)
}

func TestFetchErrors(t *testing.T) {
	m := fixture()
	s := newService(m)

	m.SetError(crm.OpSearch, &crm.APIError{StatusCode: 502, Body: "bad gateway"})
	_, err := s.Sales(context.Background(), today)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Failed to fetch deals", fe.Message)
	assert.Equal(t, Sales, fe.View)

	m.SetError(crm.OpSearch, errors.New("dial tcp: connection refused"))
	_, err = s.Home(context.Background(), today)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "dial tcp: connection refused", fe.Message)
}

func TestParseView(t *testing.T) {
	v, ok := ParseView("cashflow")
	assert.True(t, ok)
	assert.Equal(t, CashFlow, v)
	_, ok = ParseView("CashFlow")
	assert.False(t, ok)
}
