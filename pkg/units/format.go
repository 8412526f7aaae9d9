package units

import (
	"math"
	"strconv"
	"strings"
)

// UnknownUnit is displayed for base units created without a name.
const UnknownUnit = "UNKNOWN_UNIT"

// String renders u. Named units render as their name. Otherwise the positive
// factors come first, then a "/" and the negative factors by absolute power,
// e.g. "kg m ^ 2 / s ^ 3". Without positive factors the negative powers are
// written out ("s ^ -2"). A scale other than 1 is prefixed.
func (u *Unit) String() string {
	if u == nil {
		return "<nil>"
	}
	if u.name != "" {
		return u.name
	}
	if u.IsBase() {
		return UnknownUnit
	}
	if len(u.factors) == 0 {
		return formatScalar(u.scale)
	}

	var num, den []string
	for _, f := range u.factors {
		if f.Power > 0 {
			num = append(num, term(f.Base, f.Power))
		}
	}
	for _, f := range u.factors {
		if f.Power >= 0 {
			continue
		}
		if len(num) > 0 {
			den = append(den, term(f.Base, -f.Power))
		} else {
			// nothing to put over, keep the sign
			den = append(den, f.Base.String()+" ^ "+strconv.Itoa(f.Power))
		}
	}

	var b strings.Builder
	if u.scale != 1 {
		b.WriteString(formatScalar(u.scale))
		b.WriteByte(' ')
	}
	b.WriteString(strings.Join(num, " "))
	if len(num) > 0 && len(den) > 0 {
		b.WriteString(" / ")
	}
	b.WriteString(strings.Join(den, " "))
	return b.String()
}

// String renders m as "<quantity> <unit>".
func (m Measure) String() string {
	return formatScalar(m.quantity) + " " + m.unit.String()
}

func term(base *Unit, power int) string {
	if power == 1 {
		return base.String()
	}
	return base.String() + " ^ " + strconv.Itoa(power)
}

// formatScalar always shows a fractional part ("12.0") and switches to
// exponent notation outside [1e-4, 1e16).
func formatScalar(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	if abs := math.Abs(f); abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
		if !strings.Contains(mantissa, ".") {
			mantissa += ".0"
		}
		return mantissa + "e" + exp
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
