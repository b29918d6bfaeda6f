package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AngelCh415/dealpipe/internal/models"
)

const goNoGoMessage = "GO/NO-GO: Spec delivered, in Budget Scope. Move to Proposal or close."

// ActionRequired flags open deals that need a sales follow-up: spec delivered
// while in Budget Scope, or stuck in Procurement past the threshold.
func (e *Engine) ActionRequired(open []models.Deal) []models.ActionItem {
	rules := e.cat.Sales()
	out := []models.ActionItem{}
	for _, d := range open {
		switch {
		case d.Stage == rules.BudgetScopeStage && d.Spec() == models.SpecDelivered:
			out = append(out, models.ActionItem{Deal: d, Reason: models.ReasonGoNoGo, Message: goNoGoMessage})
		case d.Stage == rules.ProcurementStage && d.ProcurementDays() > rules.ProcurementDays:
			out = append(out, models.ActionItem{
				Deal:    d,
				Reason:  models.ReasonProcurementStall,
				Message: fmt.Sprintf("In Procurement %s days. Follow up on signature.", procurementDays(d, rules.ProcurementDays)),
			})
		}
	}
	return out
}

func procurementDays(d models.Deal, threshold int) string {
	if d.DaysInProcurement == nil {
		return strconv.Itoa(threshold) + "+"
	}
	return strconv.Itoa(*d.DaysInProcurement)
}

type Operations struct {
	Delivery      []models.Deal
	Reengagement  []models.Deal
	ActiveClients []models.Deal
}

// Operations splits deals by exact pipeline id into delivery and re-engagement.
// A delivery deal is an active client when its stage is the active stage or
// merely contains the active substring.
func (e *Engine) Operations(deals []models.Deal) Operations {
	rules := e.cat.Operations()
	deliveryID, _ := e.cat.PipelineID(rules.DeliveryPipeline)
	reengageID, _ := e.cat.PipelineID(rules.ReengagementPipeline)

	var ops Operations
	for _, d := range deals {
		switch {
		case deliveryID != "" && d.Pipeline == deliveryID:
			ops.Delivery = append(ops.Delivery, d)
			if isActive(d.Stage, rules.ActiveStage, rules.ActiveSubstring) {
				ops.ActiveClients = append(ops.ActiveClients, d)
			}
		case reengageID != "" && d.Pipeline == reengageID:
			ops.Reengagement = append(ops.Reengagement, d)
		}
	}
	return ops
}

func isActive(stage, exact, sub string) bool {
	if exact != "" && stage == exact {
		return true
	}
	return sub != "" && strings.Contains(stage, sub)
}
