package engine

import (
	"github.com/shopspring/decimal"

	"github.com/AngelCh415/dealpipe/internal/models"
)

// ordered keeps first-seen key order for display.
type ordered[V any] struct {
	keys []string
	vals map[string]*V
}

func newOrdered[V any]() *ordered[V] {
	return &ordered[V]{vals: make(map[string]*V)}
}

func (o *ordered[V]) at(k string) *V {
	v, ok := o.vals[k]
	if !ok {
		v = new(V)
		o.vals[k] = v
		o.keys = append(o.keys, k)
	}
	return v
}

// ByTier sums amounts per tier; deals without a tier land in "Unassigned".
func ByTier(deals []models.Deal) []models.AmountBucket {
	g := newOrdered[decimal.Decimal]()
	for _, d := range deals {
		v := g.at(d.TierOrDefault())
		*v = v.Add(d.Amount)
	}
	out := make([]models.AmountBucket, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, models.AmountBucket{Key: k, Amount: *g.vals[k]})
	}
	return out
}

// ByPipeline counts deals per resolved pipeline name ("other" when unmapped).
func (e *Engine) ByPipeline(deals []models.Deal) []models.CountBucket {
	g := newOrdered[int]()
	for _, d := range deals {
		*g.at(e.cat.PipelineName(d.Pipeline))++
	}
	return counts(g, nil)
}

// ByStage counts and sums deals per stage label.
func (e *Engine) ByStage(deals []models.Deal) []models.StageBucket {
	type acc struct {
		n   int
		sum decimal.Decimal
	}
	g := newOrdered[acc]()
	for _, d := range deals {
		a := g.at(e.cat.StageLabel(d.Stage))
		a.n++
		a.sum = a.sum.Add(d.Amount)
	}
	out := make([]models.StageBucket, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, models.StageBucket{Label: k, Count: g.vals[k].n, Amount: g.vals[k].sum})
	}
	return out
}

// SpecCounts counts spec_required values. The five recognized categories are
// always present, zero included; unrecognized values follow in first-seen order.
func SpecCounts(deals []models.Deal) []models.CountBucket {
	g := newOrdered[int]()
	for _, s := range models.SpecStatuses {
		g.at(string(s))
	}
	for _, d := range deals {
		*g.at(string(d.Spec()))++
	}
	return counts(g, nil)
}

// StageCounts counts raw stage codes ("unknown" when empty) and attaches a label.
func StageCounts(deals []models.Deal, label func(string) string) []models.CountBucket {
	g := newOrdered[int]()
	for _, d := range deals {
		stage := d.Stage
		if stage == "" {
			stage = "unknown"
		}
		*g.at(stage)++
	}
	return counts(g, label)
}

func counts(g *ordered[int], label func(string) string) []models.CountBucket {
	out := make([]models.CountBucket, 0, len(g.keys))
	for _, k := range g.keys {
		b := models.CountBucket{Key: k, Count: *g.vals[k]}
		if label != nil {
			b.Label = label(k)
		}
		out = append(out, b)
	}
	return out
}
