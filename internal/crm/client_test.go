package crm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/dealpipe/internal/models"
)

func newTestClient(url string, retries int, timeout time.Duration) *Client {
	return NewClient(NewHTTPClient(timeout), Options{BaseURL: url, Token: "tok", Retries: retries, Backoff: time.Millisecond}, nil)
}

func TestSearchHandles500(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2, 2*time.Second).SearchDeals(context.Background(), DealsByAmount(PropName))
	require.Error(t, err)
	assert.True(t, IsAPIError(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSearchHandles404WithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 2, 2*time.Second).SearchDeals(context.Background(), DealsByAmount(PropName))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchHandlesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0, 100*time.Millisecond).SearchDeals(context.Background(), DealsByAmount(PropName))
	require.Error(t, err)
	assert.False(t, IsAPIError(err))
}

func TestSearchDecodesDeals(t *testing.T) {
	var got Search
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/crm/v3/objects/deals/search", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"total":2,"results":[
			{"id":"1","properties":{"dealname":"Big","amount":"1500.25","dealstage":"2978915064","deal_tier":null,"days_in_procurement":"12"}},
			{"id":"2","properties":{"dealname":"Bad","amount":"n/a","payment_expected_date":"2024-05-20T00:00:00Z","renewal_date":"garbage"}}
		]}`)
	}))
	defer srv.Close()

	q := DealsByAmount(PropName, PropAmount)
	q.Limit = 500
	deals, err := newTestClient(srv.URL, 0, time.Second).SearchDeals(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Limit)
	assert.Equal(t, []string{PropName, PropAmount}, got.Properties)
	assert.Equal(t, []Sort{{PropertyName: "amount", Direction: "DESCENDING"}}, got.Sorts)

	require.Len(t, deals, 2)
	assert.Equal(t, "1500.25", deals[0].Amount.String())
	assert.Equal(t, "", deals[0].Tier)
	require.NotNil(t, deals[0].DaysInProcurement)
	assert.Equal(t, 12, *deals[0].DaysInProcurement)
	assert.True(t, deals[1].Amount.IsZero())
	assert.Equal(t, models.Date("2024-05-20"), deals[1].PaymentExpectedDate)
	assert.True(t, deals[1].RenewalDate.IsZero())
}

func TestEmptyBaseURL(t *testing.T) {
	_, err := NewClient(NewHTTPClient(time.Second), Options{}, nil).GetCompany(context.Background(), "1")
	assert.ErrorContains(t, err, "empty base url")
}

func TestObjectCalls(t *testing.T) {
	type call struct {
		method, path string
		body         string
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, call{r.Method, r.URL.RequestURI(), string(b)})
		switch {
		case r.URL.Path == "/crm/v3/objects/deals/55" && r.Method == http.MethodGet:
			io.WriteString(w, `{"id":"55","properties":{"dealname":"Old deal","hubspot_owner_id":"9"},
				"associations":{"companies":{"results":[{"id":"c1","type":"deal_to_company"},{"id":"c2","type":"deal_to_company"}]}}}`)
		case r.URL.Path == "/crm/v3/objects/companies/c1":
			io.WriteString(w, `{"id":"c1","properties":{"name":"Acme"}}`)
		case r.URL.Path == "/crm/v3/objects/tasks":
			io.WriteString(w, `{"id":"t-1"}`)
		case r.URL.Path == "/crm/v3/objects/deals":
			io.WriteString(w, `{"id":"d-2"}`)
		case r.Method == http.MethodPut:
			w.WriteHeader(http.StatusOK)
			io.WriteString(w, `{}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	cl := newTestClient(srv.URL, 0, time.Second)
	ctx := context.Background()

	d, err := cl.GetDeal(ctx, "55")
	require.NoError(t, err)
	assert.Equal(t, models.DealDetail{ID: "55", Name: "Old deal", OwnerID: "9", CompanyIDs: []string{"c1", "c2"}}, d)
	assert.Equal(t, "/crm/v3/objects/deals/55?associations=companies&properties=dealname%2Chubspot_owner_id", calls[0].path)

	c, err := cl.GetCompany(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name)

	ts := time.UnixMilli(1717200000000)
	id, err := cl.CreateTask(ctx, models.TaskProperties{Subject: "s", Status: models.TaskNotStarted, Priority: models.PriorityLow, Timestamp: ts})
	require.NoError(t, err)
	assert.Equal(t, "t-1", id)
	assert.JSONEq(t, `{"properties":{"hs_task_subject":"s","hs_task_body":"","hs_task_status":"NOT_STARTED","hs_task_priority":"LOW","hs_timestamp":"1717200000000"}}`, calls[2].body)

	id, err = cl.CreateDeal(ctx, models.NewDealProperties{Name: "Re-engage: Acme", Pipeline: "p", Stage: "s", OwnerID: "9", LossReasonOriginal: "competitor"})
	require.NoError(t, err)
	assert.Equal(t, "d-2", id)
	assert.JSONEq(t, `{"properties":{"dealname":"Re-engage: Acme","pipeline":"p","dealstage":"s","hubspot_owner_id":"9","loss_reason_original":"competitor"}}`, calls[3].body)

	require.NoError(t, cl.AssociateDealCompany(ctx, "d-2", "c1", 342))
	assert.Equal(t, http.MethodPut, calls[4].method)
	assert.Equal(t, "/crm/v4/objects/deals/d-2/associations/companies/c1", calls[4].path)
	assert.JSONEq(t, `[{"associationCategory":"HUBSPOT_DEFINED","associationTypeId":342}]`, calls[4].body)

	_, err = cl.GetCompany(ctx, "missing")
	assert.True(t, IsAPIError(err))
}

func TestFilteredSearchUpdateAndLinkedTask(t *testing.T) {
	type call struct {
		method, path, body string
	}
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, call{r.Method, r.URL.Path, string(b)})
		switch r.URL.Path {
		case "/crm/v3/objects/deals/search":
			io.WriteString(w, `{"results":[{"id":"7","properties":{"dealname":"Renewal","contract_end_date":"2024-08-30","hs_date_entered_2978915061":"2024-05-01T09:00:00Z"}}]}`)
		case "/crm/v3/objects/tasks":
			io.WriteString(w, `{"id":"t-9"}`)
		case "/crm/v3/objects/deals":
			io.WriteString(w, `{"id":"d-3"}`)
		default:
			io.WriteString(w, `{"id":"7"}`)
		}
	}))
	defer srv.Close()
	cl := newTestClient(srv.URL, 0, time.Second)
	ctx := context.Background()

	recs, err := cl.SearchRecords(ctx, Where([]string{PropName, PropContractEnd}, Filter{PropertyName: PropContractEnd, Operator: OpHasProperty}))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "2024-08-30", recs[0].Get(PropContractEnd))
	assert.Equal(t, "2024-05-01T09:00:00Z", recs[0].Get(StageEnteredProp("2978915061")))
	assert.JSONEq(t, `{"filterGroups":[{"filters":[{"propertyName":"contract_end_date","operator":"HAS_PROPERTY"}]}],
		"limit":100,"properties":["dealname","contract_end_date"]}`, calls[0].body)

	require.NoError(t, cl.UpdateDeal(ctx, "7", map[string]string{PropDaysInProcurement: "12"}))
	assert.Equal(t, http.MethodPatch, calls[1].method)
	assert.Equal(t, "/crm/v3/objects/deals/7", calls[1].path)
	assert.JSONEq(t, `{"properties":{"days_in_procurement":"12"}}`, calls[1].body)

	_, err = cl.CreateTask(ctx, models.TaskProperties{Subject: "s", Status: models.TaskNotStarted, Priority: models.PriorityHigh,
		DealID: "7", Timestamp: time.UnixMilli(1717200000000)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"properties":{"hs_task_subject":"s","hs_task_body":"","hs_task_status":"NOT_STARTED","hs_task_priority":"HIGH","hs_timestamp":"1717200000000"},
		"associations":[{"to":{"id":"7"},"types":[{"associationCategory":"HUBSPOT_DEFINED","associationTypeId":216}]}]}`, calls[2].body)

	_, err = cl.CreateDeal(ctx, models.NewDealProperties{Name: "Renewal - Delivery", Amount: decimal.NewFromInt(900), Pipeline: "p", Stage: "s"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"properties":{"dealname":"Renewal - Delivery","amount":"900","pipeline":"p","dealstage":"s"}}`, calls[3].body)
}
