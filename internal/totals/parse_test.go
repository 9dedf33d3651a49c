package totals

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"   ", "0"},
		{"abc", "0"},
		{"12", "12"},
		{"  3.5", "3.5"},
		{"\t\n7", "7"},
		{"+4", "4"},
		{"-2.25", "-2.25"},
		{".5", "0.5"},
		{"-.5", "-0.5"},
		{"5.", "5"},
		{".", "0"},
		{"-", "0"},
		{"+.", "0"},
		{"12abc", "12"},
		{"1,000", "1"},
		{"1e2", "100"},
		{"1E-2", "0.01"},
		{"2.5e+1x", "25"},
		{"1e", "1"},
		{"1e+", "1"},
		{"1ex", "1"},
		{"0x10", "0"},
		{"Infinity", "0"},
		{"NaN", "0"},
		{"1e400", "0"},
		{"1e-500", "0"},
		{"1e9999999", "0"},
		{"0.1000", "0.1"},
		{"-0", "0"},
		{"\uFEFF9", "9"},
	}
	for _, tc := range cases {
		got := ParseNumber(tc.in)
		want, err := decimal.NewFromString(tc.want)
		if err != nil {
			t.Fatalf("bad fixture %q: %v", tc.want, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseNumber(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNumberField(t *testing.T) {
	if got := Number(2).Decimal(); !got.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("unexpected %s", got)
	}
	if got := Number(0.1).Decimal(); got.String() != "0.1" {
		t.Fatalf("expected exact 0.1, got %s", got)
	}
	if got := Number(math.NaN()); got != "" {
		t.Fatalf("expected NaN to become empty, got %q", got)
	}
	if got := Number(math.Inf(1)).Decimal(); !got.IsZero() {
		t.Fatalf("expected infinity to parse as zero, got %s", got)
	}
}

func TestFieldUnmarshalJSON(t *testing.T) {
	cases := map[string]Field{
		`"12.5"`:  "12.5",
		`12.5`:    "12.5",
		`-3`:      "-3",
		`null`:    "",
		`true`:    "",
		`{"a":1}`: "",
		`[1]`:     "",
	}
	for in, want := range cases {
		var f Field
		if err := f.UnmarshalJSON([]byte(in)); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if f != want {
			t.Fatalf("unmarshal %s = %q, want %q", in, f, want)
		}
	}
}
