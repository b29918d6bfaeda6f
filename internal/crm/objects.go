package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/AngelCh415/dealpipe/internal/models"
)

type objectResp struct {
	ID           string         `json:"id"`
	Properties   map[string]any `json:"properties"`
	Associations map[string]struct {
		Results []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"results"`
	} `json:"associations"`
}

type createReq struct {
	Properties   map[string]string `json:"properties"`
	Associations []createAssoc     `json:"associations,omitempty"`
}

type createAssoc struct {
	To struct {
		ID string `json:"id"`
	} `json:"to"`
	Types []associationSpec `json:"types"`
}

type associationSpec struct {
	AssociationCategory string `json:"associationCategory"`
	AssociationTypeID   int    `json:"associationTypeId"`
}

// TaskToDealAssociation is the HUBSPOT_DEFINED task → deal association type.
const TaskToDealAssociation = 216

// GetDeal reads a deal's name and owner together with its company associations.
func (cl *Client) GetDeal(ctx context.Context, id string) (models.DealDetail, error) {
	q := url.Values{}
	q.Set("properties", PropName+","+PropOwner)
	q.Set("associations", "companies")
	var resp objectResp
	path := "/crm/v3/objects/deals/" + url.PathEscape(id) + "?" + q.Encode()
	if err := cl.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return models.DealDetail{}, fmt.Errorf("get deal %s: %w", id, err)
	}
	props := stringProps(resp.Properties)
	d := models.DealDetail{ID: resp.ID, Name: props[PropName], OwnerID: props[PropOwner]}
	for _, a := range resp.Associations["companies"].Results {
		d.CompanyIDs = append(d.CompanyIDs, a.ID)
	}
	return d, nil
}

func (cl *Client) GetCompany(ctx context.Context, id string) (models.Company, error) {
	var resp objectResp
	path := "/crm/v3/objects/companies/" + url.PathEscape(id) + "?properties=" + PropCompanyName
	if err := cl.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return models.Company{}, fmt.Errorf("get company %s: %w", id, err)
	}
	return models.Company{ID: resp.ID, Name: stringProps(resp.Properties)[PropCompanyName]}, nil
}

func (cl *Client) CreateTask(ctx context.Context, p models.TaskProperties) (string, error) {
	props := map[string]string{
		"hs_task_subject":  p.Subject,
		"hs_task_body":     p.Body,
		"hs_task_status":   string(p.Status),
		"hs_task_priority": string(p.Priority),
		"hs_timestamp":     strconv.FormatInt(p.Timestamp.UnixMilli(), 10),
	}
	if p.OwnerID != "" {
		props[PropOwner] = p.OwnerID
	}
	req := createReq{Properties: props}
	if p.DealID != "" {
		a := createAssoc{Types: []associationSpec{{AssociationCategory: "HUBSPOT_DEFINED", AssociationTypeID: TaskToDealAssociation}}}
		a.To.ID = p.DealID
		req.Associations = []createAssoc{a}
	}
	var resp objectResp
	if err := cl.doJSON(ctx, http.MethodPost, "/crm/v3/objects/tasks", req, &resp); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return resp.ID, nil
}

func (cl *Client) CreateDeal(ctx context.Context, p models.NewDealProperties) (string, error) {
	var resp objectResp
	if err := cl.doJSON(ctx, http.MethodPost, "/crm/v3/objects/deals", createReq{Properties: newDealProps(p)}, &resp); err != nil {
		return "", fmt.Errorf("create deal: %w", err)
	}
	return resp.ID, nil
}

func newDealProps(p models.NewDealProperties) map[string]string {
	props := map[string]string{
		PropName:     p.Name,
		PropPipeline: p.Pipeline,
		PropStage:    p.Stage,
	}
	if !p.Amount.IsZero() {
		props[PropAmount] = p.Amount.String()
	}
	if p.OwnerID != "" {
		props[PropOwner] = p.OwnerID
	}
	if p.LossReasonOriginal != "" {
		props[PropLossReasonOriginal] = p.LossReasonOriginal
	}
	return props
}

// UpdateDeal patches the given properties of a deal.
func (cl *Client) UpdateDeal(ctx context.Context, id string, props map[string]string) error {
	path := "/crm/v3/objects/deals/" + url.PathEscape(id)
	if err := cl.doJSON(ctx, http.MethodPatch, path, createReq{Properties: props}, nil); err != nil {
		return fmt.Errorf("update deal %s: %w", id, err)
	}
	return nil
}

// AssociateDealCompany links a deal to a company with a HUBSPOT_DEFINED association type.
func (cl *Client) AssociateDealCompany(ctx context.Context, dealID, companyID string, typeID int) error {
	path := fmt.Sprintf("/crm/v4/objects/deals/%s/associations/companies/%s", url.PathEscape(dealID), url.PathEscape(companyID))
	body := []associationSpec{{AssociationCategory: "HUBSPOT_DEFINED", AssociationTypeID: typeID}}
	if err := cl.doJSON(ctx, http.MethodPut, path, body, nil); err != nil {
		return fmt.Errorf("associate deal %s to company %s: %w", dealID, companyID, err)
	}
	return nil
}
