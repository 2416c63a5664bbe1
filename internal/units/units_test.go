package units

import (
	"math/big"
	"testing"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{100, "100000000"},
		{20.99999999999999, "21000000"},
		{-6.000000000000004, "6000000"},
		{0.1, "100000"},
		{0.0000004, "0"},
	}
	for _, tc := range cases {
		if got := ToBaseUnits(tc.in, 6).String(); got != tc.want {
			t.Fatalf("ToBaseUnits(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseBaseUnits(t *testing.T) {
	got, err := ParseBaseUnits("12.5", 6)
	if err != nil || got.String() != "12500000" {
		t.Fatalf("unexpected result %v err=%v", got, err)
	}
	if _, err := ParseBaseUnits("1.0000001", 6); err == nil {
		t.Fatal("expected precision error")
	}
	if _, err := ParseBaseUnits("-1", 6); err == nil {
		t.Fatal("expected negative amount error")
	}
	if _, err := ParseBaseUnits("abc", 6); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFormatAndFloat(t *testing.T) {
	if got := Format(big.NewInt(30_000_000), 6); got != "30" {
		t.Fatalf("Format = %s", got)
	}
	if got := Format(big.NewInt(1_500_000), 6); got != "1.5" {
		t.Fatalf("Format = %s", got)
	}
	if got := Format(nil, 6); got != "0" {
		t.Fatalf("Format(nil) = %s", got)
	}
	if got := ToFloat(big.NewInt(2_500), 6); got != 0.0025 {
		t.Fatalf("ToFloat = %v", got)
	}
}

func TestPortionAndBasisPoints(t *testing.T) {
	total := big.NewInt(100_000_000)
	if got := Portion(total, 40).String(); got != "40000000" {
		t.Fatalf("Portion(40) = %s", got)
	}
	if got := Portion(big.NewInt(333), 33.3).String(); got != "110" {
		t.Fatalf("Portion truncation = %s", got)
	}
	if got := Portion(total, 0).Sign(); got != 0 {
		t.Fatal("expected zero portion")
	}
	if got := BasisPoints(big.NewInt(10_001), 200).String(); got != "200" {
		t.Fatalf("BasisPoints = %s", got)
	}
	if got := Round(0.123456, 4); got != 0.1235 {
		t.Fatalf("Round = %v", got)
	}
}
