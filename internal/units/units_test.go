package units

import (
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"1":      "1000000000000000000",
		"0.5":    "500000000000000000",
		"15":     "15000000000000000000",
		"0.008":  "8000000000000000",
		" 1.82 ": "1820000000000000000",
		"0":      "0",
	}
	for input, want := range cases {
		got, err := ParseAmount(input, 18)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got.String() != want {
			t.Fatalf("parse %q: got %s want %s", input, got, want)
		}
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, input := range []string{"", "abc", "-1", "0.0000001"} {
		if _, err := ParseAmount(input, 6); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	value, _ := new(big.Int).SetString("1820000000000000000", 10)
	if got := FormatAmount(value, 18); got != "1.82" {
		t.Fatalf("format mismatch: %s", got)
	}
	if got := FormatAmount(nil, 18); got != "0" {
		t.Fatalf("nil format mismatch: %s", got)
	}
	if got := FormatAmount(big.NewInt(42), 0); got != "42" {
		t.Fatalf("zero decimals mismatch: %s", got)
	}
}

func TestParsePercent(t *testing.T) {
	got, err := ParsePercent("20%")
	if err != nil || got != 20 {
		t.Fatalf("percent mismatch: %d %v", got, err)
	}
	for _, input := range []string{"12.5", "-1", "101"} {
		if _, err := ParsePercent(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}
