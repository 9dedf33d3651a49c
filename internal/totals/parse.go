package totals

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// maxExponent bounds the decimal exponent accepted from user text. Anything
// beyond it would not be a finite float64 either and parses as zero.
const maxExponent = 400

var maxFinite = decimal.NewFromFloat(math.MaxFloat64)

// Field is the source representation of one numeric line-item field: text as
// typed by a user, the literal of a JSON number, or empty when absent.
type Field string

// Text wraps user supplied text.
func Text(s string) Field { return Field(s) }

// Number wraps an already numeric value.
func Number(v float64) Field {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return Field(strconv.FormatFloat(v, 'f', -1, 64))
}

// Dec wraps an exact decimal value.
func Dec(d decimal.Decimal) Field { return Field(d.String()) }

// Decimal parses the field. Absent, empty, or malformed input yields zero.
func (f Field) Decimal() decimal.Decimal { return ParseNumber(string(f)) }

// IsEmpty reports whether the field carries no text at all.
func (f Field) IsEmpty() bool { return strings.TrimSpace(string(f)) == "" }

// UnmarshalJSON accepts strings, numbers and null. Any other JSON value
// decodes to an empty field so it contributes zero.
func (f *Field) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		*f = ""
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = Field(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*f = Field(trimmed)
	default:
		*f = ""
	}
	return nil
}

// ParseNumber reads the longest leading decimal literal of s, the way a
// permissive form field would: "12abc" is 12, " 3.5" is 3.5, ".5" is 0.5 and
// "1e2x" is 100. Text without such a prefix, and values outside the finite
// float64 range, are zero.
func ParseNumber(s string) decimal.Decimal {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsSpace(r) || r == '\uFEFF' })
	if s == "" {
		return decimal.Zero
	}

	i := 0
	neg := false
	if s[i] == '+' || s[i] == '-' {
		neg = s[i] == '-'
		i++
	}
	intStart := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intPart := s[intStart:i]
	fracPart := ""
	if i < len(s) && s[i] == '.' {
		fracStart := i + 1
		j := fracStart
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		fracPart = s[fracStart:j]
		if intPart != "" || fracPart != "" {
			i = j
		}
	}
	if intPart == "" && fracPart == "" {
		return decimal.Zero
	}

	exp := 0
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		expNeg := false
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			expNeg = s[j] == '-'
			j++
		}
		digitsStart := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > digitsStart {
			digits := strings.TrimLeft(s[digitsStart:j], "0")
			if len(digits) > 6 {
				return decimal.Zero
			}
			if digits != "" {
				n, err := strconv.Atoi(digits)
				if err != nil {
					return decimal.Zero
				}
				exp = n
			}
			if expNeg {
				exp = -exp
			}
		}
	}
	if exp > maxExponent || exp < -maxExponent {
		return decimal.Zero
	}

	if intPart == "" {
		intPart = "0"
	}
	literal := intPart
	if fracPart != "" {
		literal += "." + fracPart
	}
	if neg {
		literal = "-" + literal
	}
	d, err := decimal.NewFromString(literal)
	if err != nil {
		return decimal.Zero
	}
	if exp != 0 {
		d = d.Shift(int32(exp))
	}
	if d.Abs().GreaterThan(maxFinite) {
		return decimal.Zero
	}
	if d.IsZero() {
		return decimal.Zero
	}
	return d
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
