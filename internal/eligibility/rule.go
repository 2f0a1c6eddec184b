// Package eligibility decides whether a price drop is worth an alert.
//
// The rule has two stages. The base gate requires the current price to be
// under half of the historical high. Past that, an alert fires when the item
// is back in stock at its all-time low, or when the price sets a new floor at
// least 10% under the all-time low.
package eligibility

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/albapepper/pricewatch/internal/price"
)

var (
	half       = decimal.RequireFromString("0.5")
	ninetyPcnt = decimal.RequireFromString("0.9")
)

// Branch identifies which sub-condition produced a notify decision.
type Branch string

const (
	BranchNone       Branch = ""
	BranchATLRestock Branch = "atl_restock"
	BranchBelowATL   Branch = "below_atl"
)

// Decision is the outcome of Decide.
type Decision struct {
	Notify bool
	Branch Branch
	Reason string
}

// Decide applies the two-stage rule. It is pure: callers log the outcome.
func Decide(current decimal.Decimal, stats *price.Stats, inStock bool) Decision {
	if stats == nil || !passesBaseGate(current, stats.Highest) {
		return Decision{}
	}

	if current.Equal(stats.Lowest) && inStock {
		return Decision{
			Notify: true,
			Branch: BranchATLRestock,
			Reason: fmt.Sprintf("Price at 50%% below highest (%s), matches all-time-low (%s), and now in stock.",
				stats.Highest, stats.Lowest),
		}
	}

	if belowATL(current, stats.Lowest) {
		return Decision{
			Notify: true,
			Branch: BranchBelowATL,
			Reason: fmt.Sprintf("Price at 50%% below highest (%s) AND >=10%% below all-time-low (%s).",
				stats.Highest, stats.Lowest),
		}
	}

	return Decision{}
}

func passesBaseGate(current, highest decimal.Decimal) bool {
	if highest.IsPositive() {
		return current.LessThan(half.Mul(highest))
	}
	return current.IsNegative()
}

func belowATL(current, lowest decimal.Decimal) bool {
	if lowest.IsPositive() {
		return current.LessThanOrEqual(lowest.Mul(ninetyPcnt))
	}
	return current.LessThan(lowest)
}

// Explain renders a short log-friendly description of a negative decision.
func Explain(current decimal.Decimal, stats *price.Stats, inStock bool) string {
	if stats == nil {
		return "no statistics"
	}
	if !passesBaseGate(current, stats.Highest) {
		return fmt.Sprintf("base 50%% rule not met (current %s, highest %s)", current, stats.Highest)
	}
	return fmt.Sprintf("base 50%% met, sub-conditions not met (current %s, ATL %s, in stock %t)",
		current, stats.Lowest, inStock)
}
