package crm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/dealpipe/internal/models"
)

// MaxSearchLimit is the page size cap of the CRM search endpoint.
const MaxSearchLimit = 100

// Filter operators understood by the search endpoint.
const (
	OpEQ             = "EQ"
	OpNEQ            = "NEQ"
	OpGTE            = "GTE"
	OpLTE            = "LTE"
	OpIn             = "IN"
	OpNotIn          = "NOT_IN"
	OpHasProperty    = "HAS_PROPERTY"
	OpNotHasProperty = "NOT_HAS_PROPERTY"
)

type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// FilterGroup matches when all of its filters match; groups are ORed.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

type Sort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

type Search struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Limit        int           `json:"limit"`
	Properties   []string      `json:"properties"`
	Sorts        []Sort        `json:"sorts,omitempty"`
}

// DealsByAmount is the search every dashboard runs: one page of the largest deals.
func DealsByAmount(props ...string) Search {
	return Search{
		Limit:      MaxSearchLimit,
		Properties: props,
		Sorts:      []Sort{{PropertyName: PropAmount, Direction: "DESCENDING"}},
	}
}

// Where builds a single-group search over filters returning props.
func Where(props []string, filters ...Filter) Search {
	q := Search{Limit: MaxSearchLimit, Properties: props}
	if len(filters) > 0 {
		q.FilterGroups = []FilterGroup{{Filters: filters}}
	}
	return q
}

// Record is a deal as the CRM returns it: id plus flat string properties.
type Record struct {
	ID         string
	Properties map[string]string
}

func (r Record) Get(k string) string { return r.Properties[k] }

// Amount decodes the amount property, 0 when absent or non-numeric.
func (r Record) Amount() decimal.Decimal { return parseAmount(r.Get(PropAmount)) }

type searchResp struct {
	Total   int `json:"total"`
	Results []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
	} `json:"results"`
}

// SearchRecords fetches one page of raw deal records.
func (cl *Client) SearchRecords(ctx context.Context, q Search) ([]Record, error) {
	if q.Limit <= 0 || q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	var resp searchResp
	if err := cl.doJSONWithRetry(ctx, http.MethodPost, "/crm/v3/objects/deals/search", q, &resp); err != nil {
		return nil, fmt.Errorf("search deals: %w", err)
	}
	out := make([]Record, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, Record{ID: r.ID, Properties: stringProps(r.Properties)})
	}
	return out, nil
}

// SearchDeals fetches one page of deals and decodes them at the boundary.
func (cl *Client) SearchDeals(ctx context.Context, q Search) ([]models.Deal, error) {
	recs, err := cl.SearchRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeAll(recs), nil
}

func decodeAll(recs []Record) []models.Deal {
	out := make([]models.Deal, 0, len(recs))
	for _, r := range recs {
		out = append(out, DecodeDeal(r.ID, r.Properties))
	}
	return out
}
