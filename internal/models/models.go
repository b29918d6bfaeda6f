package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SpecStatus string

const (
	SpecYes        SpecStatus = "yes"
	SpecNo         SpecStatus = "no"
	SpecInProgress SpecStatus = "in_progress"
	SpecDelivered  SpecStatus = "delivered"
	SpecNone       SpecStatus = "none"
)

// SpecStatuses lists the recognized spec_required categories in display order.
var SpecStatuses = []SpecStatus{SpecYes, SpecNo, SpecInProgress, SpecDelivered, SpecNone}

const UnassignedTier = "Unassigned"

// Deal is a CRM deal already defaulted at the source boundary:
// Amount is zero when absent or non-numeric, dates are zero when absent,
// DaysInProcurement is nil when the property was not present.
// PaymentReceived is set whenever payment_received_date has any value,
// even one that does not parse as a date.
type Deal struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Amount              decimal.Decimal `json:"amount"`
	Stage               string          `json:"stage"`
	Pipeline            string          `json:"pipeline"`
	Tier                string          `json:"tier,omitempty"`
	OwnerID             string          `json:"owner_id,omitempty"`
	CloseDate           Date            `json:"close_date,omitempty"`
	PaymentExpectedDate Date            `json:"payment_expected_date,omitempty"`
	PaymentReceivedDate Date            `json:"payment_received_date,omitempty"`
	PaymentReceived     bool            `json:"payment_received,omitempty"`
	Phase3StartDate     Date            `json:"phase_3_start_date,omitempty"`
	RenewalDate         Date            `json:"renewal_date,omitempty"`
	SpecRequired        SpecStatus      `json:"spec_required,omitempty"`
	DaysInProcurement   *int            `json:"days_in_procurement,omitempty"`
}

func (d Deal) TierOrDefault() string {
	if d.Tier == "" {
		return UnassignedTier
	}
	return d.Tier
}

func (d Deal) Spec() SpecStatus {
	if d.SpecRequired == "" {
		return SpecNone
	}
	return d.SpecRequired
}

// Paid reports whether a payment was recorded for the deal.
func (d Deal) Paid() bool {
	return d.PaymentReceived || !d.PaymentReceivedDate.IsZero()
}

// ProcurementDays devuelve 0 si la propiedad no vino.
func (d Deal) ProcurementDays() int {
	if d.DaysInProcurement == nil {
		return 0
	}
	return *d.DaysInProcurement
}

type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DealDetail is a single deal read together with its company associations.
type DealDetail struct {
	ID         string
	Name       string
	OwnerID    string
	CompanyIDs []string
}

type TaskStatus string

const TaskNotStarted TaskStatus = "NOT_STARTED"

type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

// TaskProperties describes a CRM task. DealID, when set, links the task to that deal.
type TaskProperties struct {
	Subject   string
	Body      string
	Status    TaskStatus
	Priority  TaskPriority
	OwnerID   string
	DealID    string
	Timestamp time.Time
}

type NewDealProperties struct {
	Name               string
	Amount             decimal.Decimal
	Pipeline           string
	Stage              string
	OwnerID            string
	LossReasonOriginal string
}
