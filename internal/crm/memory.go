package crm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/dealpipe/internal/models"
)

// Op names a Memory operation for error injection.
type Op string

const (
	OpSearch     Op = "search"
	OpGetDeal    Op = "get_deal"
	OpGetCompany Op = "get_company"
	OpCreateTask Op = "create_task"
	OpCreateDeal Op = "create_deal"
	OpUpdateDeal Op = "update_deal"
	OpAssociate  Op = "associate"
)

// Memory is an in-process CRM with the same surface as Client. It backs the
// local "memory" mode and the tests. Deals are kept as raw property bags, the
// way the CRM stores them.
type Memory struct {
	mu        sync.RWMutex
	deals     map[string]map[string]string
	order     []string
	companies map[string]models.Company
	assoc     map[string][]string
	tasks     []models.TaskProperties
	fail      map[Op]error
}

func NewMemory() *Memory {
	return &Memory{
		deals:     make(map[string]map[string]string),
		companies: make(map[string]models.Company),
		assoc:     make(map[string][]string),
		fail:      make(map[Op]error),
	}
}

// UpsertDeal replaces the stored properties of d.ID with the encoding of d.
func (m *Memory) UpsertDeal(d models.Deal) {
	m.PutDeal(d.ID, EncodeDeal(d))
}

// PutDeal replaces the raw properties of a deal.
func (m *Memory) PutDeal(id string, props map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putDeal(id, props)
}

func (m *Memory) putDeal(id string, props map[string]string) {
	if _, ok := m.deals[id]; !ok {
		m.order = append(m.order, id)
	}
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	m.deals[id] = cp
}

func (m *Memory) UpsertCompany(c models.Company) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = c
}

// Associate links a deal to a company; duplicate links are ignored.
func (m *Memory) Associate(dealID, companyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.associate(dealID, companyID)
}

func (m *Memory) associate(dealID, companyID string) {
	for _, c := range m.assoc[dealID] {
		if c == companyID {
			return
		}
	}
	m.assoc[dealID] = append(m.assoc[dealID], companyID)
}

// SetError makes every later call of op fail with err; nil clears it.
func (m *Memory) SetError(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

func (m *Memory) Deal(id string) (models.Deal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.deals[id]
	if !ok {
		return models.Deal{}, false
	}
	return DecodeDeal(id, p), true
}

// DealProperties returns a copy of the raw properties of a deal.
func (m *Memory) DealProperties(id string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.deals[id]))
	for k, v := range m.deals[id] {
		out[k] = v
	}
	return out
}

func (m *Memory) Deals() []models.Deal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Deal, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, DecodeDeal(id, m.deals[id]))
	}
	return out
}

func (m *Memory) CompaniesOf(dealID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.assoc[dealID]...)
}

func (m *Memory) Tasks() []models.TaskProperties {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.TaskProperties(nil), m.tasks...)
}

// SearchRecords applies the filter groups, sorts (amount descending when no
// sort is given, ties in insertion order), truncates to the limit and keeps
// only the requested properties.
func (m *Memory) SearchRecords(ctx context.Context, q Search) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(ctx, OpSearch); err != nil {
		return nil, err
	}
	all := make([]Record, 0, len(m.order))
	for _, id := range m.order {
		if matches(m.deals[id], q.FilterGroups) {
			all = append(all, Record{ID: id, Properties: m.deals[id]})
		}
	}
	s := Sort{PropertyName: PropAmount, Direction: "DESCENDING"}
	if len(q.Sorts) > 0 {
		s = q.Sorts[0]
	}
	sort.SliceStable(all, func(i, j int) bool {
		c := compare(all[i].Get(s.PropertyName), all[j].Get(s.PropertyName))
		if s.Direction == "DESCENDING" {
			return c > 0
		}
		return c < 0
	})
	limit := q.Limit
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]Record, 0, len(all))
	for _, r := range all {
		out = append(out, Record{ID: r.ID, Properties: project(r.Properties, q.Properties)})
	}
	return out, nil
}

func (m *Memory) SearchDeals(ctx context.Context, q Search) ([]models.Deal, error) {
	recs, err := m.SearchRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	return decodeAll(recs), nil
}

func project(props map[string]string, keep []string) map[string]string {
	out := make(map[string]string, len(keep))
	if len(keep) == 0 {
		for k, v := range props {
			out[k] = v
		}
		return out
	}
	for _, p := range keep {
		if v, ok := props[p]; ok {
			out[p] = v
		}
	}
	return out
}

func matches(props map[string]string, groups []FilterGroup) bool {
	if len(groups) == 0 {
		return true
	}
	for _, g := range groups {
		ok := true
		for _, f := range g.Filters {
			if !match(props, f) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func match(props map[string]string, f Filter) bool {
	v, has := props[f.PropertyName]
	has = has && v != ""
	switch f.Operator {
	case OpHasProperty:
		return has
	case OpNotHasProperty:
		return !has
	case OpEQ:
		return has && v == f.Value
	case OpNEQ:
		return v != f.Value
	case OpIn:
		return has && contains(f.Values, v)
	case OpNotIn:
		return !contains(f.Values, v)
	case OpGTE:
		return has && compare(v, f.Value) >= 0
	case OpLTE:
		return has && compare(v, f.Value) <= 0
	}
	return false
}

func contains(vs []string, v string) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

// compare orders numbers numerically and everything else as strings;
// ISO dates and timestamps sort correctly as strings.
func compare(a, b string) int {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA == nil && errB == nil {
		return da.Cmp(db)
	}
	if errA == nil && b == "" {
		return da.Cmp(decimal.Zero)
	}
	if errB == nil && a == "" {
		return decimal.Zero.Cmp(db)
	}
	return strings.Compare(a, b)
}

func (m *Memory) GetDeal(ctx context.Context, id string) (models.DealDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(ctx, OpGetDeal); err != nil {
		return models.DealDetail{}, err
	}
	p, ok := m.deals[id]
	if !ok {
		return models.DealDetail{}, notFound("deal", id)
	}
	return models.DealDetail{
		ID:         id,
		Name:       p[PropName],
		OwnerID:    p[PropOwner],
		CompanyIDs: append([]string(nil), m.assoc[id]...),
	}, nil
}

func (m *Memory) GetCompany(ctx context.Context, id string) (models.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure(ctx, OpGetCompany); err != nil {
		return models.Company{}, err
	}
	c, ok := m.companies[id]
	if !ok {
		return models.Company{}, notFound("company", id)
	}
	return c, nil
}

func (m *Memory) CreateTask(ctx context.Context, p models.TaskProperties) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx, OpCreateTask); err != nil {
		return "", err
	}
	if p.DealID != "" {
		if _, ok := m.deals[p.DealID]; !ok {
			return "", notFound("deal", p.DealID)
		}
	}
	m.tasks = append(m.tasks, p)
	return uuid.NewString(), nil
}

func (m *Memory) CreateDeal(ctx context.Context, p models.NewDealProperties) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx, OpCreateDeal); err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.putDeal(id, newDealProps(p))
	return id, nil
}

// UpdateDeal merges props into the deal; an empty value clears the property.
func (m *Memory) UpdateDeal(ctx context.Context, id string, props map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx, OpUpdateDeal); err != nil {
		return err
	}
	cur, ok := m.deals[id]
	if !ok {
		return notFound("deal", id)
	}
	for k, v := range props {
		if v == "" {
			delete(cur, k)
			continue
		}
		cur[k] = v
	}
	return nil
}

func (m *Memory) AssociateDealCompany(ctx context.Context, dealID, companyID string, typeID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx, OpAssociate); err != nil {
		return err
	}
	if _, ok := m.deals[dealID]; !ok {
		return notFound("deal", dealID)
	}
	if _, ok := m.companies[companyID]; !ok {
		return notFound("company", companyID)
	}
	m.associate(dealID, companyID)
	return nil
}

func (m *Memory) failure(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.fail[op]
}

func notFound(kind, id string) error {
	return &APIError{StatusCode: http.StatusNotFound, Body: fmt.Sprintf("%s %s not found", kind, id)}
}
