package models

import "github.com/shopspring/decimal"

type AmountBucket struct {
	Key    string          `json:"key"`
	Amount decimal.Decimal `json:"amount"`
}

type CountBucket struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
	Count int    `json:"count"`
}

type StageBucket struct {
	Label  string          `json:"label"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type MonthAmount struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

type ActionReason string

const (
	ReasonGoNoGo           ActionReason = "go_no_go"
	ReasonProcurementStall ActionReason = "procurement_follow_up"
)

type ActionItem struct {
	Deal    Deal         `json:"deal"`
	Reason  ActionReason `json:"reason"`
	Message string       `json:"message"`
}

// DatedDeal pairs a deal with the date that placed it in a window and the
// whole-day distance from today (days overdue or days until).
type DatedDeal struct {
	Deal Deal `json:"deal"`
	Date Date `json:"date"`
	Days int  `json:"days"`
	Soon bool `json:"soon,omitempty"`
}

type DealRow struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Stage  string          `json:"stage"`
	Tier   string          `json:"tier"`
	Spec   string          `json:"spec"`
}

type ExecutiveReport struct {
	Today         Date            `json:"today"`
	TotalPipeline decimal.Decimal `json:"total_pipeline"`
	OpenDeals     int             `json:"open_deals"`
	TotalWon      decimal.Decimal `json:"total_won"`
	WinRate       int             `json:"win_rate"`
	ByTier        []AmountBucket  `json:"by_tier"`
	ByPipeline    []CountBucket   `json:"by_pipeline"`
	TopDeals      []DealRow       `json:"top_deals"`
}

type SalesReport struct {
	Today          Date            `json:"today"`
	ActiveDeals    int             `json:"active_deals"`
	ActiveTotal    decimal.Decimal `json:"active_total"`
	NeedsAction    int             `json:"needs_action"`
	ActionRequired []ActionItem    `json:"action_required"`
	Deals          []DealRow       `json:"deals"`
	ByStage        []StageBucket   `json:"by_stage"`
	SpecStatus     []CountBucket   `json:"spec_status"`
}

type CashFlowReport struct {
	Today            Date            `json:"today"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	TotalOverdue     decimal.Decimal `json:"total_overdue"`
	Due30Total       decimal.Decimal `json:"due_30_total"`
	Forecast90Total  decimal.Decimal `json:"forecast_90_total"`
	Overdue          []DatedDeal     `json:"overdue"`
	Due30            []DatedDeal     `json:"due_30"`
	ForecastByMonth  []MonthAmount   `json:"forecast_by_month"`
}

type OperationsReport struct {
	Today              Date          `json:"today"`
	ActiveClients      int           `json:"active_clients"`
	InDelivery         int           `json:"in_delivery"`
	Reengagement       int           `json:"reengagement"`
	Renewals90         int           `json:"renewals_90"`
	DeliveryStages     []CountBucket `json:"delivery_stages"`
	ReengagementStages []CountBucket `json:"reengagement_stages"`
	Phase3Upcoming     []DatedDeal   `json:"phase_3_upcoming"`
	RenewalsUpcoming   []DatedDeal   `json:"renewals_upcoming"`
}

type HomeReport struct {
	Executive  ExecutiveReport  `json:"executive"`
	Sales      SalesReport      `json:"sales"`
	CashFlow   CashFlowReport   `json:"cashflow"`
	Operations OperationsReport `json:"operations"`
}
