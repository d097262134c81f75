package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
)

func TestCheckPositive(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"1", true},
		{"0.01", true},
		{"74.25", true},
		{"2.500", true},
		{"0", false},
		{"-1", false},
		{"0.004", false},
		{"1.001", false},
	}
	for _, tc := range cases {
		err := CheckPositive("quantity", decimal.RequireFromString(tc.in))
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.in, err)
		}
		if !tc.ok && !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.in, err)
		}
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	if got := Round(decimal.RequireFromString("0.125")); !got.Equal(decimal.RequireFromString("0.13")) {
		t.Fatalf("expected 0.13, got %s", got)
	}
	if !Exact(decimal.RequireFromString("10.10")) || Exact(decimal.RequireFromString("10.105")) {
		t.Fatalf("unexpected Exact result")
	}
}
