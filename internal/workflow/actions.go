// Package workflow implements the CRM automation actions triggered from
// deal workflows. Each action is a short sequence of CRM calls run once:
// any failing step ends the action with an error result, nothing is retried
// and nothing already created is rolled back.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AngelCh415/dealpipe/internal/catalog"
	"github.com/AngelCh415/dealpipe/internal/metrics"
	"github.com/AngelCh415/dealpipe/internal/models"
)

type CRM interface {
	GetDeal(ctx context.Context, id string) (models.DealDetail, error)
	GetCompany(ctx context.Context, id string) (models.Company, error)
	CreateTask(ctx context.Context, p models.TaskProperties) (string, error)
	CreateDeal(ctx context.Context, p models.NewDealProperties) (string, error)
	AssociateDealCompany(ctx context.Context, dealID, companyID string, typeID int) error
}

const (
	StatusSuccess = "success"
	StatusError   = "error"

	ActionFollowUpTask     = "follow_up_task"
	ActionReengagementDeal = "reengagement_deal"

	unknownCompany = "Unknown Company"
)

var (
	ErrNoCompany   = errors.New("No company associated with this deal")
	ErrMissingDeal = errors.New("hs_object_id is required")
)

// Input mirrors the properties a workflow sends to the action.
type Input struct {
	DealID     string `json:"hs_object_id"`
	OwnerID    string `json:"hubspot_owner_id"`
	LossReason string `json:"loss_reason"`
}

// Result is what the action hands back to the workflow as output fields.
type Result struct {
	Status             string `json:"status"`
	Message            string `json:"message,omitempty"`
	CompanyName        string `json:"company_name,omitempty"`
	ReengagementDealID string `json:"reengagement_deal_id,omitempty"`
}

type Actions struct {
	crm CRM
	cat *catalog.Catalog
	log *slog.Logger
	m   *metrics.Metrics
	now func() time.Time
}

func NewActions(crm CRM, cat *catalog.Catalog, log *slog.Logger, m *metrics.Metrics) *Actions {
	if cat == nil {
		cat = catalog.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Actions{crm: crm, cat: cat, log: log, m: m, now: time.Now}
}

func (a *Actions) WithClock(now func() time.Time) *Actions {
	a.now = now
	return a
}

// FollowUpTask creates a low-priority "final follow-up" task for the deal's
// first associated company.
func (a *Actions) FollowUpTask(ctx context.Context, in Input) Result {
	r, err := a.followUpTask(ctx, in)
	return a.finish(ActionFollowUpTask, in, r, err)
}

func (a *Actions) followUpTask(ctx context.Context, in Input) (Result, error) {
	if in.DealID == "" {
		return Result{}, ErrMissingDeal
	}
	deal, err := a.crm.GetDeal(ctx, in.DealID)
	if err != nil {
		return Result{}, err
	}
	companyName := unknownCompany
	if len(deal.CompanyIDs) > 0 {
		c, err := a.crm.GetCompany(ctx, deal.CompanyIDs[0])
		if err != nil {
			return Result{}, err
		}
		companyName = nameOr(c)
	}
	_, err = a.crm.CreateTask(ctx, models.TaskProperties{
		Subject:   fmt.Sprintf("Final follow-up: %s - no response, one more try", companyName),
		Body:      fmt.Sprintf("Original deal: %s\n\nThis contact went dark. One final attempt before moving on.", deal.Name),
		Status:    models.TaskNotStarted,
		Priority:  models.PriorityLow,
		OwnerID:   in.OwnerID,
		Timestamp: a.now(),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, CompanyName: companyName}, nil
}

// ReengagementDeal opens a new deal in the re-engagement pipeline for the
// lost deal's company, links it to that company and leaves a task for the owner.
func (a *Actions) ReengagementDeal(ctx context.Context, in Input) Result {
	r, err := a.reengagementDeal(ctx, in)
	return a.finish(ActionReengagementDeal, in, r, err)
}

func (a *Actions) reengagementDeal(ctx context.Context, in Input) (Result, error) {
	if in.DealID == "" {
		return Result{}, ErrMissingDeal
	}
	orig, err := a.crm.GetDeal(ctx, in.DealID)
	if err != nil {
		return Result{}, err
	}
	if len(orig.CompanyIDs) == 0 {
		return Result{}, ErrNoCompany
	}
	companyID := orig.CompanyIDs[0]
	c, err := a.crm.GetCompany(ctx, companyID)
	if err != nil {
		return Result{}, err
	}
	companyName := nameOr(c)

	owner := in.OwnerID
	if owner == "" {
		owner = orig.OwnerID
	}
	target := a.cat.ReengagementTarget()
	newID, err := a.crm.CreateDeal(ctx, models.NewDealProperties{
		Name:               "Re-engage: " + companyName,
		Pipeline:           target.Pipeline,
		Stage:              target.Stage,
		OwnerID:            owner,
		LossReasonOriginal: in.LossReason,
	})
	if err != nil {
		return Result{}, err
	}
	// sin rollback: si falla lo que sigue, el deal nuevo queda creado
	if err := a.crm.AssociateDealCompany(ctx, newID, companyID, target.AssociationTypeID); err != nil {
		return Result{}, err
	}
	_, err = a.crm.CreateTask(ctx, models.TaskProperties{
		Subject:   fmt.Sprintf("Re-engage %s - %s", companyName, a.cat.LossReasonText(in.LossReason)),
		Body:      fmt.Sprintf("Original deal: %s\nReason for loss: %s", orig.Name, in.LossReason),
		Status:    models.TaskNotStarted,
		Priority:  models.PriorityMedium,
		OwnerID:   owner,
		Timestamp: a.now(),
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, ReengagementDealID: newID, CompanyName: companyName}, nil
}

func (a *Actions) finish(action string, in Input, r Result, err error) Result {
	if err != nil {
		r = Result{Status: StatusError, Message: err.Error()}
		a.log.Error("workflow action failed",
			slog.String("action", action), slog.String("deal_id", in.DealID), slog.String("err", err.Error()))
	} else {
		a.log.Info("workflow action done",
			slog.String("action", action), slog.String("deal_id", in.DealID), slog.String("company", r.CompanyName))
	}
	a.m.ObserveWorkflow(action, r.Status)
	return r
}

func nameOr(c models.Company) string {
	if c.Name == "" {
		return unknownCompany
	}
	return c.Name
}
