package units

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// Epsilon is the float64 machine epsilon, the tolerance used when comparing
// unit scales.
const Epsilon = 2.220446049250313e-16

// Factor is one base unit raised to a non-zero integer power.
type Factor struct {
	Base  *Unit
	Power int
}

// Unit is a product of base-unit powers with a positive scale factor.
//
// Units are immutable: every operation returns a new Unit (or an existing
// base unit) and never modifies its operands. A *Unit is safe for concurrent
// use.
type Unit struct {
	name string

	// factors keeps insertion order; display relies on it.
	factors []Factor
	scale   float64
}

// NewBase creates a new base unit. Every call returns a distinct unit, even
// when the name repeats.
func NewBase(name string) *Unit {
	u := &Unit{name: name, scale: 1.0}
	u.factors = []Factor{{Base: u, Power: 1}}
	return u
}

// NewAnonymousBase creates a base unit without a display name.
func NewAnonymousBase() *Unit {
	return NewBase("")
}

// Dimensionless returns a unit with no factors and a scale of 1.
func Dimensionless() *Unit {
	return &Unit{scale: 1.0}
}

// Must returns u, panicking if err is non-nil. It is intended for declaring
// scaled units:
//
//	yd := units.Must(ft.MulScalar(3)).Named("yd")
func Must(u *Unit, err error) *Unit {
	if err != nil {
		panic(err)
	}
	return u
}

// Name returns the display name, or "" for unnamed units.
func (u *Unit) Name() string { return u.name }

// HasName reports whether the unit carries a display name.
func (u *Unit) HasName() bool { return u.name != "" }

// Scale returns the multiplier relative to the plain product of the factors.
func (u *Unit) Scale() float64 { return u.scale }

// Factors returns a copy of the unit's factors in insertion order.
func (u *Unit) Factors() []Factor {
	out := make([]Factor, len(u.factors))
	copy(out, u.factors)
	return out
}

// Parts returns a copy of the unit's factors keyed by base unit.
func (u *Unit) Parts() map[*Unit]int {
	parts := make(map[*Unit]int, len(u.factors))
	for _, f := range u.factors {
		parts[f.Base] = f.Power
	}
	return parts
}

// IsBase reports whether u is a base unit created by NewBase or
// NewAnonymousBase.
func (u *Unit) IsBase() bool {
	return u.isScalingOf(u) && u.scale == 1
}

// IsDimensionless reports whether u has no factors left.
func (u *Unit) IsDimensionless() bool {
	return len(u.factors) == 0
}

// Named returns a copy of u carrying the given display name.
func (u *Unit) Named(name string) *Unit {
	named := u.derive()
	named.name = name
	return named
}

// Compatible reports whether quantities in u and other can be converted into
// each other by a scale ratio: the same unit, equal parts, or one a pure
// scaling of the other. Partial overlap of factors is not enough.
func (u *Unit) Compatible(other *Unit) bool {
	if u == nil || other == nil {
		return false
	}
	if u == other {
		return true
	}
	if partsEqual(u.factors, other.factors) {
		return true
	}
	return other.isScalingOf(u) || u.isScalingOf(other)
}

// Ratio returns how many of other fit in one u. The units must be compatible.
func (u *Unit) Ratio(other *Unit) (float64, error) {
	if !u.Compatible(other) {
		return 0, mismatch("ratio", u, other)
	}
	return u.scale / other.scale, nil
}

// Mul returns the product of u and other. A product that reduces to a single
// base unit with power 1 and scale 1 is that base unit itself.
func (u *Unit) Mul(other *Unit) *Unit {
	product := u.derive()
	for _, f := range other.factors {
		product.factors = accumulate(product.factors, f.Base, f.Power)
	}
	product.scale *= other.scale
	return product.boildown()
}

// Div returns u divided by other.
func (u *Unit) Div(other *Unit) *Unit {
	return u.Mul(other.Invert())
}

// MulScalar returns u scaled up by k. k must be positive and finite.
func (u *Unit) MulScalar(k float64) (*Unit, error) {
	return u.scaleBy(k, "multiplication")
}

// DivScalar returns u scaled down by k. k must be positive and finite.
func (u *Unit) DivScalar(k float64) (*Unit, error) {
	if !validFactor(k) {
		return nil, &OperandError{Op: "division", Operand: k}
	}
	return u.scaleBy(1.0/k, "division")
}

// Times multiplies u by operand, which must be a *Unit or a Go numeric value.
func (u *Unit) Times(operand any) (*Unit, error) {
	if other, ok := operand.(*Unit); ok {
		if other == nil {
			return nil, &OperandError{Op: "multiplication", Operand: operand}
		}
		return u.Mul(other), nil
	}
	k, ok := toFloat(operand)
	if !ok {
		return nil, &OperandError{Op: "multiplication", Operand: operand}
	}
	return u.scaleBy(k, "multiplication")
}

// Per divides u by operand, which must be a *Unit or a Go numeric value.
func (u *Unit) Per(operand any) (*Unit, error) {
	if other, ok := operand.(*Unit); ok {
		if other == nil {
			return nil, &OperandError{Op: "division", Operand: operand}
		}
		return u.Div(other), nil
	}
	k, ok := toFloat(operand)
	if !ok || !validFactor(k) {
		return nil, &OperandError{Op: "division", Operand: operand}
	}
	return u.scaleBy(1.0/k, "division")
}

// Invert returns the reciprocal of u: every power negated and the scale
// inverted. The result is unnamed.
func (u *Unit) Invert() *Unit {
	inverse := u.derive()
	for i := range inverse.factors {
		inverse.factors[i].Power = -inverse.factors[i].Power
	}
	inverse.scale = 1.0 / inverse.scale
	return inverse
}

// Equal reports whether u and other have equal parts and scales within
// Epsilon of each other. Names are ignored.
func (u *Unit) Equal(other *Unit) bool {
	if u == nil || other == nil {
		return u == other
	}
	return partsEqual(u.factors, other.factors) &&
		scalar.EqualWithinAbs(u.scale, other.scale, Epsilon)
}

// derive returns an unnamed copy of u that owns its factor slice.
func (u *Unit) derive() *Unit {
	factors := make([]Factor, len(u.factors), len(u.factors)+1)
	copy(factors, u.factors)
	return &Unit{factors: factors, scale: u.scale}
}

func (u *Unit) scaleBy(k float64, op string) (*Unit, error) {
	if !validFactor(k) {
		return nil, &OperandError{Op: op, Operand: k}
	}
	scaled := u.derive()
	scaled.scale *= k
	if !validFactor(scaled.scale) {
		return nil, &OperandError{Op: op, Operand: k}
	}
	return scaled.boildown(), nil
}

// boildown collapses a single base with power 1 and scale 1 back to the base.
func (u *Unit) boildown() *Unit {
	if len(u.factors) != 1 || u.scale != 1 {
		return u
	}
	if f := u.factors[0]; f.Power == 1 {
		return f.Base
	}
	return u
}

// isScalingOf reports whether u's parts are exactly {base: 1}.
func (u *Unit) isScalingOf(base *Unit) bool {
	return len(u.factors) == 1 && u.factors[0].Base == base && u.factors[0].Power == 1
}

func accumulate(factors []Factor, base *Unit, power int) []Factor {
	for i := range factors {
		if factors[i].Base != base {
			continue
		}
		if sum := factors[i].Power + power; sum != 0 {
			factors[i].Power = sum
			return factors
		}
		return append(factors[:i], factors[i+1:]...)
	}
	return append(factors, Factor{Base: base, Power: power})
}

func partsEqual(a, b []Factor) bool {
	if len(a) != len(b) {
		return false
	}
	for _, fa := range a {
		found := false
		for _, fb := range b {
			if fa.Base == fb.Base {
				found = fa.Power == fb.Power
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func validFactor(k float64) bool {
	return k > 0 && !math.IsInf(k, 0)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
