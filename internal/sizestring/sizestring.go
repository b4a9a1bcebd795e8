// Package sizestring parses and formats human-readable byte-size strings
// ("1.4 GiB", "1000 MB") the way the acquisition tools' -S/-B/-o switches
// accept them. It is implemented over the standard library: this is pure
// fixed-point arithmetic over a locale decimal point with no natural
// third-party library to reach for — see DESIGN.md.
package sizestring

import (
	"fmt"
)

// Base is the divisor family used by Format/Parse: decimal (1000-based, the
// "MB" family) or binary (1024-based, the "MiB" family).
type Base uint64

const (
	BaseDecimal Base = 1000
	BaseBinary  Base = 1024
)

var factorPrefixes = [...]string{"", "K", "M", "G", "T", "P", "E", "Z", "Y"}

// Format renders size as "<integer>[<decimal><tenth>] <prefix><unit>",
// dividing repeatedly by base and keeping one fractional digit only for
// the final division whose quotient drops below 10. Overflow (a factor
// greater than 8, i.e. values beyond the Yotta range) is reported as an
// error rather than silently truncated.
func Format(size uint64, base Base) (string, error) {
	if base != BaseDecimal && base != BaseBinary {
		return "", fmt.Errorf("sizestring: invalid base %d", base)
	}

	b := uint64(base)
	factor := 0
	f := size
	last := size

	for f >= b {
		last = f
		f /= b
		factor++
	}
	if factor > 8 {
		return "", fmt.Errorf("sizestring: factor size greater than 8 unsupported")
	}

	tenths := -1
	if factor > 0 && f < 10 {
		rem := last % b
		t := int(roundDiv(rem*10, b))
		if t >= 10 {
			f++
			t = 0
			if f >= 10 {
				t = -1
			}
		}
		if t > 0 {
			tenths = t
		}
	}

	unit := "B"
	if base == BaseBinary && factor > 0 {
		unit = "iB"
	}

	if tenths >= 0 {
		return fmt.Sprintf("%d.%d %s%s", f, tenths, factorPrefixes[factor], unit), nil
	}
	return fmt.Sprintf("%d %s%s", f, factorPrefixes[factor], unit), nil
}

// roundDiv computes round(a/b) for non-negative a, b using integer
// arithmetic (banker's rounding is not required here; half rounds up).
func roundDiv(a, b uint64) uint64 {
	return (a + b/2) / b
}

// Parse converts a human-readable byte-size string back into a byte count.
// Grammar: optional integer digits, optional "<decimalPoint><d><d>",
// optional space, a mandatory unit letter in {k,m,g,t,p,e,z,y}
// (case-insensitive), an optional "i", and a mandatory "B". The unit base
// is binary (1024) when "i" is present, decimal (1000) otherwise. A
// two-digit fractional part is weighed against the chosen base (so
// "1.4 GiB" == 1*1024^3 + 40*1024^3/100). Anything after the mandatory "B"
// is ignored — the grammar treats it as a non-fatal trailing token, not a
// parse failure.
func Parse(s string, decimalPoint byte) (uint64, error) {
	if decimalPoint == 0 {
		decimalPoint = '.'
	}

	i, n := 0, len(s)

	var integerPart uint64
	for i < n && isDigit(s[i]) {
		integerPart = integerPart*10 + uint64(s[i]-'0')
		i++
	}

	fracTenths := -1
	if i < n && s[i] == decimalPoint {
		i++
		d1, d2 := 0, 0
		if i < n && isDigit(s[i]) {
			d1 = int(s[i] - '0')
			i++
		}
		if i < n && isDigit(s[i]) {
			d2 = int(s[i] - '0')
			i++
		}
		fracTenths = d1*10 + d2
		for i < n && isDigit(s[i]) {
			i++
		}
	}

	for i < n && s[i] == ' ' {
		i++
	}

	if i >= n {
		return 0, fmt.Errorf("sizestring: invalid units in %q", s)
	}

	factor := 0
	base := BaseDecimal
	if s[i] != 'B' {
		f, ok := factorFromLetter(s[i])
		if !ok {
			return 0, fmt.Errorf("sizestring: invalid units in %q", s)
		}
		factor = f
		i++

		if i < n && s[i] == 'i' {
			base = BaseBinary
			i++
		}
	}

	if i >= n || s[i] != 'B' {
		return 0, fmt.Errorf("sizestring: invalid units in %q", s)
	}

	pow := uint64(1)
	for k := 0; k < factor; k++ {
		pow *= uint64(base)
	}

	value := integerPart * pow
	if fracTenths > 0 {
		value += uint64(fracTenths) * pow / 100
	}
	return value, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func factorFromLetter(c byte) (int, bool) {
	switch c {
	case 'k', 'K':
		return 1, true
	case 'm', 'M':
		return 2, true
	case 'g', 'G':
		return 3, true
	case 't', 'T':
		return 4, true
	case 'p', 'P':
		return 5, true
	case 'e', 'E':
		return 6, true
	case 'z', 'Z':
		return 7, true
	case 'y', 'Y':
		return 8, true
	default:
		return 0, false
	}
}
