// Package price turns raw upstream price values into exact decimals and
// derives the per-item statistics the eligibility rule works from.
//
// All arithmetic is done with shopspring/decimal. Prices are compared for
// equality against historical lows, so binary floating point is never used.
package price

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize converts a raw price value into an exact decimal.
//
// Accepted inputs are nil, strings, json.Number, Go numeric types and
// decimal.Decimal; anything else is rendered with fmt.Sprint first. Text is
// filtered left to right keeping ASCII digits, the first '.', and a '-' only
// when it is the first character. Currency symbols, thousands separators and
// other noise are dropped. Missing or unusable input yields zero.
//
// Normalize never fails. A nil logger falls back to slog.Default().
func Normalize(raw any, logger *slog.Logger) decimal.Decimal {
	if logger == nil {
		logger = slog.Default()
	}

	switch v := raw.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero
		}
		return *v
	case int:
		return decimal.NewFromInt(int64(v))
	case int32:
		return decimal.NewFromInt32(v)
	case int64:
		return decimal.NewFromInt(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			logger.Warn("Price is not a finite number, treating as 0", "raw", v)
			return decimal.Zero
		}
		return decimal.NewFromFloat(v)
	case float32:
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			logger.Warn("Price is not a finite number, treating as 0", "raw", v)
			return decimal.Zero
		}
		return decimal.NewFromFloat32(v)
	case json.Number:
		if d, err := decimal.NewFromString(v.String()); err == nil {
			return d
		}
		return normalizeText(v.String(), logger)
	case string:
		return normalizeText(v, logger)
	default:
		return normalizeText(fmt.Sprint(v), logger)
	}
}

func normalizeText(raw string, logger *slog.Logger) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}

	cleaned := clean(s)
	if cleaned == "" || cleaned == "-" {
		logger.Debug("Price value cleaned to nothing, treating as 0", "raw", raw)
		return decimal.Zero
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		logger.Warn("Could not convert price to decimal, treating as 0",
			"raw", raw, "cleaned", cleaned, "error", err)
		return decimal.Zero
	}
	return d
}

// clean applies the character filter. s must already be trimmed.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	seenDot := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '.' && !seenDot:
			b.WriteByte(c)
			seenDot = true
		case c == '-' && i == 0:
			b.WriteByte(c)
		}
	}
	return b.String()
}
