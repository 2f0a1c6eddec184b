package eligibility

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/albapepper/pricewatch/internal/price"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func stats(lowest, highest string) *price.Stats {
	return &price.Stats{Lowest: d(lowest), Highest: d(highest)}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name    string
		current string
		lowest  string
		highest string
		inStock bool
		want    Branch
	}{
		// 40 < 50 passes the gate; 40 == ATL and in stock; 40 > 36 so (b) does not hold
		{"atl restock only", "40", "40", "100", true, BranchATLRestock},
		// 36 < 50 passes; not in stock so (a) fails; 36 <= 40*0.9 = 36
		{"below atl only", "36", "40", "100", false, BranchBelowATL},
		{"below atl while in stock", "30", "40", "100", true, BranchBelowATL},
		{"neither sub-condition", "45", "40", "100", true, BranchNone},
		{"at atl but out of stock", "40", "40", "100", false, BranchNone},
		{"just above 90 percent of atl", "36.01", "40", "100", false, BranchNone},
		{"stage one fails at exactly half", "36", "36", "72", true, BranchNone},
		{"stage one fails above half", "60", "60", "100", true, BranchNone},
		{"zero highest needs negative price", "0", "0", "0", true, BranchNone},
		{"zero highest negative price below zero low", "-1", "0", "0", false, BranchBelowATL},
		{"zero lowest positive current", "10", "0", "100", false, BranchNone},
		{"zero lowest at atl in stock", "0", "0", "100", true, BranchATLRestock},
		{"cents precision", "19.99", "19.99", "39.99", true, BranchATLRestock},
		{"trailing zeros compare equal", "19.90", "19.9", "49.00", true, BranchATLRestock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(d(tt.current), stats(tt.lowest, tt.highest), tt.inStock)
			assert.Equal(t, tt.want, got.Branch)
			assert.Equal(t, tt.want != BranchNone, got.Notify)
			if got.Notify {
				assert.NotEmpty(t, got.Reason)
			} else {
				assert.Empty(t, got.Reason)
			}
		})
	}
}

func TestDecide_Reasons(t *testing.T) {
	got := Decide(d("40"), stats("40", "100"), true)
	assert.Equal(t, "Price at 50% below highest (100), matches all-time-low (40), and now in stock.", got.Reason)

	got = Decide(d("36"), stats("40", "100.5"), false)
	assert.Equal(t, "Price at 50% below highest (100.5) AND >=10% below all-time-low (40).", got.Reason)
}

// With the current price equal to the low, (b) can never also hold, so the
// precedence of (a) shows up as: every in-stock price at the low reports
// the restock branch, across positive, zero and negative lows.
func TestDecide_RestockTakesPrecedence(t *testing.T) {
	for _, low := range []string{"-5", "0", "0.01", "10", "49.99"} {
		got := Decide(d(low), stats(low, "100"), true)
		assert.Equal(t, BranchATLRestock, got.Branch, "low %s", low)
	}
}

func TestDecide_NilStats(t *testing.T) {
	assert.Equal(t, Decision{}, Decide(d("1"), nil, true))
}

func TestExplain(t *testing.T) {
	assert.Contains(t, Explain(d("60"), stats("40", "100"), true), "base 50% rule not met")
	assert.Contains(t, Explain(d("45"), stats("40", "100"), true), "sub-conditions not met")
	assert.Equal(t, "no statistics", Explain(d("1"), nil, false))
}
