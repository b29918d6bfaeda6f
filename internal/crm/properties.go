package crm

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/dealpipe/internal/models"
)

// Deal property names as stored in the CRM.
const (
	PropName               = "dealname"
	PropAmount             = "amount"
	PropStage              = "dealstage"
	PropPipeline           = "pipeline"
	PropTier               = "deal_tier"
	PropOwner              = "hubspot_owner_id"
	PropCloseDate          = "closedate"
	PropPaymentExpected    = "payment_expected_date"
	PropPaymentReceived    = "payment_received_date"
	PropPhase3Start        = "phase_3_start_date"
	PropRenewal            = "renewal_date"
	PropSpecRequired       = "spec_required"
	PropDaysInProcurement  = "days_in_procurement"
	PropLossReasonOriginal = "loss_reason_original"
	PropCompanyName        = "name"

	PropContractEnd      = "contract_end_date"
	PropProcurementStart = "procurement_start_date"
	PropSOWSigned        = "sow_signed_date"
	PropLastModified     = "hs_lastmodifieddate"
)

// StageEnteredProp is the property holding when a deal entered stage.
func StageEnteredProp(stage string) string { return "hs_date_entered_" + stage }

// AllDealProperties is the union of every property a dashboard reads.
var AllDealProperties = []string{
	PropName, PropAmount, PropStage, PropPipeline, PropCloseDate, PropOwner, PropTier,
	PropSpecRequired, PropDaysInProcurement, PropPaymentExpected, PropPaymentReceived,
	PropPhase3Start, PropRenewal,
}

// DecodeDeal builds a Deal from a raw property bag. Every default lives here:
// non-numeric amount → 0, unparsable dates → absent, days_in_procurement
// without leading digits → absent. Any non-empty payment_received_date
// marks the deal as paid, parsable or not.
func DecodeDeal(id string, props map[string]string) models.Deal {
	get := func(k string) string { return strings.TrimSpace(props[k]) }
	d := models.Deal{
		ID:                  id,
		Name:                get(PropName),
		Amount:              parseAmount(get(PropAmount)),
		Stage:               get(PropStage),
		Pipeline:            get(PropPipeline),
		Tier:                get(PropTier),
		OwnerID:             get(PropOwner),
		CloseDate:           models.ParseDate(get(PropCloseDate)),
		PaymentExpectedDate: models.ParseDate(get(PropPaymentExpected)),
		PaymentReceivedDate: models.ParseDate(get(PropPaymentReceived)),
		PaymentReceived:     get(PropPaymentReceived) != "",
		Phase3StartDate:     models.ParseDate(get(PropPhase3Start)),
		RenewalDate:         models.ParseDate(get(PropRenewal)),
		SpecRequired:        models.SpecStatus(get(PropSpecRequired)),
		DaysInProcurement:   parseDays(get(PropDaysInProcurement)),
	}
	return d
}

// EncodeDeal is the inverse of DecodeDeal; absent fields are left out.
func EncodeDeal(d models.Deal) map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(PropName, d.Name)
	if !d.Amount.IsZero() {
		out[PropAmount] = d.Amount.String()
	}
	set(PropStage, d.Stage)
	set(PropPipeline, d.Pipeline)
	set(PropTier, d.Tier)
	set(PropOwner, d.OwnerID)
	set(PropCloseDate, d.CloseDate.String())
	set(PropPaymentExpected, d.PaymentExpectedDate.String())
	set(PropPaymentReceived, d.PaymentReceivedDate.String())
	if d.PaymentReceived && d.PaymentReceivedDate.IsZero() {
		out[PropPaymentReceived] = receivedUndated
	}
	set(PropPhase3Start, d.Phase3StartDate.String())
	set(PropRenewal, d.RenewalDate.String())
	set(PropSpecRequired, string(d.SpecRequired))
	if d.DaysInProcurement != nil {
		out[PropDaysInProcurement] = strconv.Itoa(*d.DaysInProcurement)
	}
	return out
}

// receivedUndated stands in for a received date that could not be parsed.
const receivedUndated = "received"

func parseAmount(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

func parseDays(s string) *int {
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		n := int(f)
		return &n
	}
	// "45 days" → 45
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return nil
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return nil
	}
	return &n
}

// stringProps flattens a JSON property bag; null and missing become "".
func stringProps(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			out[k] = t
		case float64:
			out[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(t)
		}
	}
	return out
}
