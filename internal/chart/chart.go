// Package chart turns a list of expenses into per-category totals for the
// pie chart and its legend.
package chart

import (
	"sort"

	"github.com/shopspring/decimal"

	"traty/internal/core"
)

// Palette is the fixed slice color sequence. A category takes the color at
// its first-appearance index modulo the palette size.
var Palette = []string{
	"#E91E63",
	"#2196F3",
	"#4CAF50",
	"#FFC107",
	"#9C27B0",
	"#00BCD4",
	"#FF5722",
	"#795548",
	"#607D8B",
	"#CDDC39",
}

// StartAngle is where the first slice begins, in degrees (12 o'clock).
const StartAngle = -90.0

var hundred = decimal.NewFromInt(100)

// Slice is one category's share of the chart.
type Slice struct {
	Category   string
	Total      decimal.Decimal
	Count      int
	Percentage decimal.Decimal // 0..100
	ColorIndex int
	Color      string
	StartAngle float64
	Sweep      float64
}

// Breakdown is the chart model: slices in first-appearance order plus the
// grand total they share.
type Breakdown struct {
	Slices     []Slice
	GrandTotal decimal.Decimal
}

// Aggregate groups expenses by category in the order categories first appear,
// sums amounts ignoring currency and computes each share. A zero grand total
// gives zero percentages and zero sweeps.
func Aggregate(expenses []core.Expense) Breakdown {
	index := make(map[string]int)
	slices := make([]Slice, 0)
	grand := decimal.Zero

	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(slices)
			index[e.Category] = i
			slices = append(slices, Slice{
				Category:   e.Category,
				Total:      decimal.Zero,
				ColorIndex: i % len(Palette),
				Color:      Palette[i%len(Palette)],
			})
		}
		slices[i].Total = slices[i].Total.Add(e.Amount)
		slices[i].Count++
		grand = grand.Add(e.Amount)
	}

	angle := StartAngle
	for i := range slices {
		s := &slices[i]
		s.StartAngle = angle
		if grand.IsZero() {
			s.Percentage = decimal.Zero
			continue
		}
		proportion := s.Total.Div(grand)
		s.Percentage = proportion.Mul(hundred)
		s.Sweep = proportion.InexactFloat64() * 360
		angle += s.Sweep
	}

	return Breakdown{Slices: slices, GrandTotal: grand}
}

// Len returns the number of categories.
func (b Breakdown) Len() int {
	return len(b.Slices)
}

// Empty reports whether there is nothing to draw.
func (b Breakdown) Empty() bool {
	return len(b.Slices) == 0
}

// ByTotalDesc returns the slices ordered for the legend: largest total first,
// first-appearance order among equal totals.
func (b Breakdown) ByTotalDesc() []Slice {
	out := append([]Slice(nil), b.Slices...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

// Top returns at most n slices from ByTotalDesc.
func (b Breakdown) Top(n int) []Slice {
	sorted := b.ByTotalDesc()
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Find returns the slice for category.
func (b Breakdown) Find(category string) (Slice, bool) {
	for _, s := range b.Slices {
		if s.Category == category {
			return s, true
		}
	}
	return Slice{}, false
}

// PercentLabel formats a percentage with one decimal, e.g. "68.0%".
func (s Slice) PercentLabel() string {
	return s.Percentage.StringFixed(1) + "%"
}
