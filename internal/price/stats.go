package price

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
)

// averagePrecision is the number of decimal places kept when dividing the
// series sum by its length. Presentation rounds to 2 places later.
const averagePrecision = 16

// Stats holds the statistics derived from one item's price history.
type Stats struct {
	Current decimal.Decimal
	Lowest  decimal.Decimal
	Highest decimal.Decimal
	Average decimal.Decimal

	// SecondLowest is the second smallest distinct historical value, nil
	// when the history holds fewer than two distinct values.
	SecondLowest *decimal.Decimal

	// Series is the normalized history in upstream order.
	Series []decimal.Decimal
}

// Compute normalizes the raw history and the current price and derives
// Stats. It reports false when the history is empty, meaning there is not
// enough data to judge the item this cycle.
func Compute(series []any, current any, logger *slog.Logger) (*Stats, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(series) == 0 {
		return nil, false
	}

	values := make([]decimal.Decimal, len(series))
	for i, raw := range series {
		values[i] = Normalize(raw, logger)
	}

	lowest, highest := values[0], values[0]
	sum := decimal.Zero
	for _, v := range values {
		if v.LessThan(lowest) {
			lowest = v
		}
		if v.GreaterThan(highest) {
			highest = v
		}
		sum = sum.Add(v)
	}

	return &Stats{
		Current:      Normalize(current, logger),
		Lowest:       lowest,
		Highest:      highest,
		Average:      sum.DivRound(decimal.NewFromInt(int64(len(values))), averagePrecision),
		SecondLowest: secondLowestDistinct(values),
		Series:       values,
	}, true
}

// Distinct returns the distinct values of the series in ascending order.
// Values that compare equal (1.0 and 1.00) collapse into one.
func Distinct(values []decimal.Decimal) []decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	out := sorted[:0]
	for i, v := range sorted {
		if i > 0 && v.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func secondLowestDistinct(values []decimal.Decimal) *decimal.Decimal {
	distinct := Distinct(values)
	if len(distinct) < 2 {
		return nil
	}
	v := distinct[1]
	return &v
}
