package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AngelCh415/dealpipe/internal/crm"
	"github.com/AngelCh415/dealpipe/internal/engine"
	"github.com/AngelCh415/dealpipe/internal/metrics"
	"github.com/AngelCh415/dealpipe/internal/models"
)

// DealSource returns one page of deals for a search.
type DealSource interface {
	SearchDeals(ctx context.Context, q crm.Search) ([]models.Deal, error)
}

type View string

const (
	Executive  View = "executive"
	Sales      View = "sales"
	CashFlow   View = "cashflow"
	Operations View = "operations"
	Home       View = "home"
)

var Views = []View{Executive, Sales, CashFlow, Operations, Home}

func ParseView(s string) (View, bool) {
	for _, v := range Views {
		if string(v) == s {
			return v, true
		}
	}
	return "", false
}

// properties each view asks the CRM for
var viewProperties = map[View][]string{
	Executive:  {crm.PropName, crm.PropAmount, crm.PropStage, crm.PropPipeline, crm.PropCloseDate, crm.PropOwner, crm.PropTier},
	Sales:      {crm.PropName, crm.PropAmount, crm.PropStage, crm.PropPipeline, crm.PropTier, crm.PropSpecRequired, crm.PropDaysInProcurement},
	CashFlow:   {crm.PropName, crm.PropAmount, crm.PropPaymentExpected, crm.PropPaymentReceived},
	Operations: {crm.PropName, crm.PropAmount, crm.PropStage, crm.PropPipeline, crm.PropPhase3Start, crm.PropRenewal},
	Home:       crm.AllDealProperties,
}

const fetchFailedMessage = "Failed to fetch deals"

// FetchError is a failed deal fetch. Message is what the dashboard shows:
// a generic text for CRM status errors, the cause otherwise.
type FetchError struct {
	View    View
	Message string
	Err     error
}

func (e *FetchError) Error() string { return fmt.Sprintf("%s: %s", e.View, e.Message) }
func (e *FetchError) Unwrap() error { return e.Err }

type Service struct {
	src DealSource
	eng *engine.Engine
	log *slog.Logger
	m   *metrics.Metrics
	loc *time.Location
	now func() time.Time
}

func NewService(src DealSource, eng *engine.Engine, log *slog.Logger, m *metrics.Metrics, loc *time.Location) *Service {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{src: src, eng: eng, log: log, m: m, loc: loc, now: time.Now}
}

// WithClock replaces the clock used for Today.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Today is the current calendar date in the dashboard location.
func (s *Service) Today() models.Date {
	return models.DateOf(s.now().In(s.loc))
}

func (s *Service) fetch(ctx context.Context, v View) ([]models.Deal, error) {
	deals, err := s.src.SearchDeals(ctx, crm.DealsByAmount(viewProperties[v]...))
	s.m.ObserveFetch(string(v), err)
	if err != nil {
		msg := err.Error()
		if crm.IsAPIError(err) {
			msg = fetchFailedMessage
		}
		s.log.Error("deal fetch failed", slog.String("view", string(v)), slog.String("err", err.Error()))
		return nil, &FetchError{View: v, Message: msg, Err: err}
	}
	s.log.Debug("deals fetched", slog.String("view", string(v)), slog.Int("count", len(deals)))
	return deals, nil
}

func (s *Service) Executive(ctx context.Context, today models.Date) (models.ExecutiveReport, error) {
	deals, err := s.fetch(ctx, Executive)
	if err != nil {
		return models.ExecutiveReport{}, err
	}
	return BuildExecutive(s.eng, deals, today), nil
}

func (s *Service) Sales(ctx context.Context, today models.Date) (models.SalesReport, error) {
	deals, err := s.fetch(ctx, Sales)
	if err != nil {
		return models.SalesReport{}, err
	}
	return BuildSales(s.eng, deals, today), nil
}

func (s *Service) CashFlow(ctx context.Context, today models.Date) (models.CashFlowReport, error) {
	deals, err := s.fetch(ctx, CashFlow)
	if err != nil {
		return models.CashFlowReport{}, err
	}
	return BuildCashFlow(deals, today), nil
}

func (s *Service) Operations(ctx context.Context, today models.Date) (models.OperationsReport, error) {
	deals, err := s.fetch(ctx, Operations)
	if err != nil {
		return models.OperationsReport{}, err
	}
	return BuildOperations(s.eng, deals, today), nil
}

// Home fetches once with every property and derives all four views from it.
func (s *Service) Home(ctx context.Context, today models.Date) (models.HomeReport, error) {
	deals, err := s.fetch(ctx, Home)
	if err != nil {
		return models.HomeReport{}, err
	}
	return models.HomeReport{
		Executive:  BuildExecutive(s.eng, deals, today),
		Sales:      BuildSales(s.eng, deals, today),
		CashFlow:   BuildCashFlow(deals, today),
		Operations: BuildOperations(s.eng, deals, today),
	}, nil
}

// Build runs the report of view v.
func (s *Service) Build(ctx context.Context, v View, today models.Date) (any, error) {
	switch v {
	case Executive:
		return s.Executive(ctx, today)
	case Sales:
		return s.Sales(ctx, today)
	case CashFlow:
		return s.CashFlow(ctx, today)
	case Operations:
		return s.Operations(ctx, today)
	case Home:
		return s.Home(ctx, today)
	}
	return nil, fmt.Errorf("unknown view %q", v)
}
