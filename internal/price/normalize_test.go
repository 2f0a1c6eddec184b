package price

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want string
	}{
		{"nil", nil, "0"},
		{"empty", "", "0"},
		{"blank", "   ", "0"},
		{"plain", "19.99", "19.99"},
		{"currency and thousands", "$1,234.56", "1234.56"},
		{"surrounding whitespace", "  $5.00 ", "5"},
		{"negative", "-3.50", "-3.5"},
		{"minus not first is dropped", "4-2", "42"},
		// leading '-' kept, second '-' dropped, "12.3" kept, second '.' dropped, "4" kept
		{"adversarial double minus double dot", "--12.3.4", "-12.34"},
		{"only minus", "-", "0"},
		{"only dot", ".", "0"},
		{"minus dot", "-.", "0"},
		{"garbage", "abc", "0"},
		{"trailing dot", "12.", "12"},
		{"leading dot", ".75", "0.75"},
		{"CAD suffix", "279.99 CAD", "279.99"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float64", 19.99, "19.99"},
		{"json number", json.Number("1299.00"), "1299"},
		{"decimal passthrough", decimal.RequireFromString("3.14"), "3.14"},
		{"bool rendered as text", true, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw, quiet)
			want := decimal.RequireFromString(tt.want)
			assert.Truef(t, want.Equal(got), "Normalize(%#v) = %s, want %s", tt.raw, got, want)
		})
	}
}

func TestNormalize_NilLogger(t *testing.T) {
	got := Normalize("$-oops", nil)
	assert.True(t, got.IsZero())
}

func TestNormalize_NeverPanics(t *testing.T) {
	inputs := []any{
		"", "-", ".", "-.", "..", "--", "€", "1e10", "NaN", "Infinity",
		"\x00\xff", "٣٤٥", "1,2,3.4.5", struct{ X int }{1}, []int{1, 2}, map[string]int{"a": 1},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Normalize(in, quiet) }, "input %#v", in)
	}

	nonFinite := []any{
		math.NaN(), math.Inf(1), math.Inf(-1),
		float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1)),
	}
	for _, in := range nonFinite {
		var got decimal.Decimal
		require.NotPanics(t, func() { got = Normalize(in, quiet) }, "input %v", in)
		assert.True(t, got.IsZero(), "input %v", in)
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "-12.34", clean("--12.3.4"))
	assert.Equal(t, "1234.56", clean("$1,234.56"))
	assert.Equal(t, "", clean("abc"))
	assert.Equal(t, "-", clean("-abc"))
}
