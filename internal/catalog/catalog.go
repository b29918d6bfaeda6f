// Package catalog holds the static lookup tables of the CRM portal: stage
// labels, pipeline ids, closed-stage aliases and workflow texts. A Catalog
// is built once at startup and never mutated afterwards.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Outcome int

const (
	Open Outcome = iota
	Won
	Lost
)

func (o Outcome) String() string {
	switch o {
	case Won:
		return "won"
	case Lost:
		return "lost"
	default:
		return "open"
	}
}

type Pipeline struct {
	Name string `yaml:"name" json:"name"`
	ID   string `yaml:"id" json:"id"`
}

type SalesRules struct {
	BudgetScopeStage string `yaml:"budget_scope_stage" json:"budget_scope_stage"`
	ProcurementStage string `yaml:"procurement_stage" json:"procurement_stage"`
	ProcurementDays  int    `yaml:"procurement_days" json:"procurement_days"`
}

type OperationsRules struct {
	DeliveryPipeline     string `yaml:"delivery_pipeline" json:"delivery_pipeline"`
	ReengagementPipeline string `yaml:"reengagement_pipeline" json:"reengagement_pipeline"`
	ActiveStage          string `yaml:"active_stage" json:"active_stage"`
	ActiveSubstring      string `yaml:"active_substring" json:"active_substring"`
}

// SyncRules drive the daily CRM sync jobs.
type SyncRules struct {
	SalesPipelines         []string `yaml:"sales_pipelines" json:"sales_pipelines"`
	StalledDays            int      `yaml:"stalled_days" json:"stalled_days"`
	RenewalAlerts          []int    `yaml:"renewal_alerts" json:"renewal_alerts"`
	DeliveryStartStage     string   `yaml:"delivery_start_stage" json:"delivery_start_stage"`
	ChurnedStage           string   `yaml:"churned_stage" json:"churned_stage"`
	ReengagementStartStage string   `yaml:"reengagement_start_stage" json:"reengagement_start_stage"`
	DefaultOwner           string   `yaml:"default_owner" json:"default_owner"`
	SpecOwner              string   `yaml:"spec_owner" json:"spec_owner"`
}

type Target struct {
	Pipeline          string `yaml:"pipeline" json:"pipeline"`
	Stage             string `yaml:"stage" json:"stage"`
	AssociationTypeID int    `yaml:"association_type_id" json:"association_type_id"`
}

// Tables is the serialized form of a catalog (YAML on disk, JSON on /catalog).
type Tables struct {
	Stages             map[string]string `yaml:"stages" json:"stages"`
	Pipelines          []Pipeline        `yaml:"pipelines" json:"pipelines"`
	WonStages          []string          `yaml:"won_stages" json:"won_stages"`
	LostStages         []string          `yaml:"lost_stages" json:"lost_stages"`
	Sales              SalesRules        `yaml:"sales" json:"sales"`
	Operations         OperationsRules   `yaml:"operations" json:"operations"`
	DeliveryStages     map[string]string `yaml:"delivery_stages" json:"delivery_stages"`
	ReengagementStages map[string]string `yaml:"reengagement_stages" json:"reengagement_stages"`
	LossReasons        map[string]string `yaml:"loss_reasons" json:"loss_reasons"`
	LossReasonFallback string            `yaml:"loss_reason_fallback" json:"loss_reason_fallback"`
	ReengagementTarget Target            `yaml:"reengagement_target" json:"reengagement_target"`
	Sync               SyncRules         `yaml:"sync" json:"sync"`
}

type Catalog struct {
	t        Tables
	outcomes map[string]Outcome
	byID     map[string]string
	byName   map[string]string
}

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	c, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded defaults: %v", err))
	}
	return c
}

// Load reads a YAML override from path. An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(b)
}

// Parse overlays override on top of the embedded defaults: maps are merged
// key by key, lists and scalars present in override replace the default.
func Parse(override []byte) (*Catalog, error) {
	var t Tables
	if err := yaml.Unmarshal(defaultYAML, &t); err != nil {
		return nil, err
	}
	if len(override) > 0 {
		if err := yaml.Unmarshal(override, &t); err != nil {
			return nil, fmt.Errorf("parse catalog: %w", err)
		}
	}
	return build(t)
}

func build(t Tables) (*Catalog, error) {
	c := &Catalog{
		t:        t,
		outcomes: make(map[string]Outcome, len(t.WonStages)+len(t.LostStages)),
		byID:     make(map[string]string, len(t.Pipelines)),
		byName:   make(map[string]string, len(t.Pipelines)),
	}
	if len(t.WonStages) == 0 || len(t.LostStages) == 0 {
		return nil, errors.New("catalog: won_stages and lost_stages are required")
	}
	for _, s := range t.WonStages {
		c.outcomes[s] = Won
	}
	for _, s := range t.LostStages {
		if c.outcomes[s] == Won {
			return nil, fmt.Errorf("catalog: stage %q is both won and lost", s)
		}
		c.outcomes[s] = Lost
	}
	if t.Sync.StalledDays <= 0 {
		return nil, errors.New("catalog: sync.stalled_days must be positive")
	}
	for _, d := range t.Sync.RenewalAlerts {
		if d <= 0 {
			return nil, fmt.Errorf("catalog: sync.renewal_alerts: %d is not a positive day count", d)
		}
	}
	for _, p := range t.Pipelines {
		if p.Name == "" || p.ID == "" {
			return nil, fmt.Errorf("catalog: pipeline %+v needs name and id", p)
		}
		// el primero gana, igual que el find() del dashboard
		if _, ok := c.byID[p.ID]; !ok {
			c.byID[p.ID] = p.Name
		}
		c.byName[p.Name] = p.ID
	}
	return c, nil
}

// Classify maps a stage code to Open, Won or Lost using every closed alias.
func (c *Catalog) Classify(stage string) Outcome {
	return c.outcomes[stage]
}

// StageLabel returns the display label, or the code itself when unknown.
func (c *Catalog) StageLabel(stage string) string {
	if l, ok := c.t.Stages[stage]; ok {
		return l
	}
	return stage
}

// PipelineName resolves a pipeline id to its name, "other" when unmapped.
func (c *Catalog) PipelineName(id string) string {
	if n, ok := c.byID[id]; ok {
		return n
	}
	return "other"
}

func (c *Catalog) PipelineID(name string) (string, bool) {
	id, ok := c.byName[name]
	return id, ok
}

func (c *Catalog) Pipelines() []Pipeline {
	return append([]Pipeline(nil), c.t.Pipelines...)
}

func (c *Catalog) Sales() SalesRules { return c.t.Sales }

func (c *Catalog) Operations() OperationsRules { return c.t.Operations }

func (c *Catalog) DeliveryStageLabel(stage string) string {
	return labelOr(c.t.DeliveryStages, stage)
}

func (c *Catalog) ReengagementStageLabel(stage string) string {
	return labelOr(c.t.ReengagementStages, stage)
}

// LossReasonText picks the task wording for a loss reason code.
func (c *Catalog) LossReasonText(code string) string {
	if s, ok := c.t.LossReasons[code]; ok {
		return s
	}
	return c.t.LossReasonFallback
}

func (c *Catalog) ReengagementTarget() Target { return c.t.ReengagementTarget }

func (c *Catalog) Sync() SyncRules {
	r := c.t.Sync
	r.SalesPipelines = append([]string(nil), r.SalesPipelines...)
	r.RenewalAlerts = append([]int(nil), r.RenewalAlerts...)
	return r
}

// StageCodes lists every stage code with a label, sorted.
func (c *Catalog) StageCodes() []string {
	out := make([]string, 0, len(c.t.Stages))
	for s := range c.t.Stages {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// StagesWith lists the stage codes classified as o, sorted.
func (c *Catalog) StagesWith(o Outcome) []string {
	var out []string
	for s, got := range c.outcomes {
		if got == o {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Tables returns a deep copy of the tables backing the catalog.
func (c *Catalog) Tables() Tables {
	t := c.t
	t.Stages = copyMap(c.t.Stages)
	t.Pipelines = c.Pipelines()
	t.WonStages = append([]string(nil), c.t.WonStages...)
	t.LostStages = append([]string(nil), c.t.LostStages...)
	t.DeliveryStages = copyMap(c.t.DeliveryStages)
	t.ReengagementStages = copyMap(c.t.ReengagementStages)
	t.LossReasons = copyMap(c.t.LossReasons)
	t.Sync = c.Sync()
	return t
}

// ClosedStages lists every code Classify treats as closed, sorted.
func (c *Catalog) ClosedStages() []string {
	out := make([]string, 0, len(c.outcomes))
	for s := range c.outcomes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func labelOr(m map[string]string, k string) string {
	if l, ok := m[k]; ok {
		return l
	}
	return k
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
