// Package money converts between decimal-string amounts and minor-unit
// integers. All arithmetic in the rest of the codebase happens on int64
// minor units; decimal strings only appear at the API and storage
// boundaries. The minor-unit scale is fixed per deployment by the
// configured currency.
package money

import (
	"math"
	"strings"
)

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// ToMinor parses a decimal string into minor units at the given scale.
// Thousands separators (commas and spaces) are stripped, a single
// leading minus is honored, and blank input parses to zero. Fractional
// digits beyond the scale are rounded half-up on the first dropped
// digit. Malformed input parses to zero rather than erroring; callers
// validate shape before trusting the value.
func ToMinor(s string, decimals int) int64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0
	}

	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	} else if s[0] == '+' {
		s = s[1:]
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		fracPart = s[i+1:]
	}
	if intPart == "" && fracPart == "" {
		return 0
	}

	var whole int64
	for i := 0; i < len(intPart); i++ {
		c := intPart[i]
		if c < '0' || c > '9' {
			return 0
		}
		whole = whole*10 + int64(c-'0')
	}
	for i := 0; i < len(fracPart); i++ {
		if fracPart[i] < '0' || fracPart[i] > '9' {
			return 0
		}
	}

	var frac int64
	roundUp := false
	if len(fracPart) >= decimals {
		for i := 0; i < decimals; i++ {
			frac = frac*10 + int64(fracPart[i]-'0')
		}
		if len(fracPart) > decimals && fracPart[decimals] >= '5' {
			roundUp = true
		}
	} else {
		for i := 0; i < len(fracPart); i++ {
			frac = frac*10 + int64(fracPart[i]-'0')
		}
		frac *= pow10(decimals - len(fracPart))
	}

	minor := whole*pow10(decimals) + frac
	if roundUp {
		minor++
	}
	if neg {
		minor = -minor
	}
	return minor
}

// FloatToMinor converts a float amount to minor units, rounding half
// away from zero. Non-finite inputs map to zero.
func FloatToMinor(f float64, decimals int) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f * float64(pow10(decimals))))
}

// MinorToDecimal renders minor units as a decimal string at the given
// scale. Zero decimals yields a plain integer string.
func MinorToDecimal(minor int64, decimals int) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	scale := pow10(decimals)
	whole := minor / scale
	frac := minor % scale

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	writeInt(&b, whole)
	if decimals > 0 {
		b.WriteByte('.')
		digits := make([]byte, decimals)
		for i := decimals - 1; i >= 0; i-- {
			digits[i] = byte('0' + frac%10)
			frac /= 10
		}
		b.Write(digits)
	}
	return b.String()
}

func writeInt(b *strings.Builder, v int64) {
	if v >= 10 {
		writeInt(b, v/10)
	}
	b.WriteByte(byte('0' + v%10))
}

// ClampNonNegative floors negative amounts to zero.
func ClampNonNegative(minor int64) int64 {
	if minor < 0 {
		return 0
	}
	return minor
}
