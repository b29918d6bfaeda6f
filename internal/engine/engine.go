// Package engine derives every dashboard aggregate from a flat list of deals.
//
// All functions are pure: they never mutate the input slice or its deals and
// hold no state between calls, so the same input always yields the same
// output. Missing or malformed fields were already defaulted by the deal
// source; here they only decide bucket membership.
package engine

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/AngelCh415/dealpipe/internal/catalog"
	"github.com/AngelCh415/dealpipe/internal/models"
)

const TopDealsLimit = 5

type Engine struct {
	cat *catalog.Catalog
}

func New(cat *catalog.Catalog) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Engine{cat: cat}
}

func (e *Engine) Catalog() *catalog.Catalog { return e.cat }

// Partition splits deals into open, won and lost, keeping input order.
type Partition struct {
	Open []models.Deal
	Won  []models.Deal
	Lost []models.Deal
}

func (e *Engine) Partition(deals []models.Deal) Partition {
	var p Partition
	for _, d := range deals {
		switch e.cat.Classify(d.Stage) {
		case catalog.Won:
			p.Won = append(p.Won, d)
		case catalog.Lost:
			p.Lost = append(p.Lost, d)
		default:
			p.Open = append(p.Open, d)
		}
	}
	return p
}

// Open is a shortcut for Partition(deals).Open.
func (e *Engine) Open(deals []models.Deal) []models.Deal {
	return e.Partition(deals).Open
}

type Summary struct {
	TotalPipeline decimal.Decimal
	TotalWon      decimal.Decimal
	OpenCount     int
	WonCount      int
	LostCount     int
	WinRate       int
}

func (e *Engine) Summarize(deals []models.Deal) Summary {
	p := e.Partition(deals)
	return Summary{
		TotalPipeline: Sum(p.Open),
		TotalWon:      Sum(p.Won),
		OpenCount:     len(p.Open),
		WonCount:      len(p.Won),
		LostCount:     len(p.Lost),
		WinRate:       WinRate(len(p.Won), len(p.Lost)),
	}
}

func Sum(deals []models.Deal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range deals {
		total = total.Add(d.Amount)
	}
	return total
}

// WinRate is won/(won+lost) as a whole percent, rounded half up; 0 with no closed deals.
func WinRate(won, lost int) int {
	if won < 0 || lost < 0 || won+lost == 0 {
		return 0
	}
	return int(math.Floor(float64(won)*100/float64(won+lost) + 0.5))
}

// TopN returns the n highest-amount deals. The sort is explicit and stable,
// so ties keep their relative input order.
func TopN(deals []models.Deal, n int) []models.Deal {
	if n <= 0 || len(deals) == 0 {
		return []models.Deal{}
	}
	sorted := append([]models.Deal(nil), deals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.GreaterThan(sorted[j].Amount)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// TopOpen selects the TopDealsLimit largest open deals.
func (e *Engine) TopOpen(deals []models.Deal) []models.Deal {
	return TopN(e.Open(deals), TopDealsLimit)
}
