package domain

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int64
	}{
		{"plain digits", "12345", int64Ptr(12345)},
		{"thousands separators", "12,345", int64Ptr(12345)},
		{"won suffix", "12,345원", int64Ptr(12345)},
		{"won sign prefix", "₩12,345", int64Ptr(12345)},
		{"surrounding whitespace", "  9,900원 ", int64Ptr(9900)},
		{"decimal input truncates", "12345.9", int64Ptr(12345)},
		{"zero", "0", int64Ptr(0)},
		{"empty", "", nil},
		{"whitespace only", "   ", nil},
		{"currency only", "원", nil},
		{"garbage", "품절", nil},
		{"negative", "-100", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePrice(tt.raw)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("ParsePrice(%q) = %d, want nil", tt.raw, *got)
			case tt.want != nil && got == nil:
				t.Errorf("ParsePrice(%q) = nil, want %d", tt.raw, *tt.want)
			case tt.want != nil && got != nil && *got != *tt.want:
				t.Errorf("ParsePrice(%q) = %d, want %d", tt.raw, *got, *tt.want)
			}
		})
	}
}

// Whatever decoration a crawler applies (separators, currency marks),
// the parsed value must equal the underlying number.
func TestProperty_ParsePriceNormalizesDecoration(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("decorated prices parse to the raw value", prop.ForAll(
		func(price int64) bool {
			decorated := []string{
				fmt.Sprintf("%d", price),
				fmt.Sprintf("%d원", price),
				fmt.Sprintf("₩%d", price),
				withSeparators(price),
				withSeparators(price) + "원",
			}

			for _, raw := range decorated {
				got := ParsePrice(raw)
				if got == nil || *got != price {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 100_000_000),
	))

	properties.Property("unparseable input yields nil, never a zero price", prop.ForAll(
		func(junk string) bool {
			got := ParsePrice(junk + "abc")
			return got == nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func withSeparators(v int64) string {
	s := fmt.Sprintf("%d", v)
	out := ""
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out += ","
		}
		out += string(r)
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }
