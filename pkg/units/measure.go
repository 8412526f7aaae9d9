package units

import "math"

// Measure is a quantity tagged with the unit it is expressed in.
type Measure struct {
	quantity float64
	unit     *Unit
}

// New returns a measure of quantity in unit.
func New(quantity float64, unit *Unit) Measure {
	return Measure{quantity: quantity, unit: unit}
}

func (m Measure) Quantity() float64 { return m.quantity }
func (m Measure) Unit() *Unit       { return m.unit }

// Compatible reports whether m and other have compatible units.
func (m Measure) Compatible(other Measure) bool {
	return m.unit.Compatible(other.unit)
}

// Convert expresses m in target, which must be compatible with m's unit.
func (m Measure) Convert(target *Unit) (Measure, error) {
	ratio, err := m.unit.Ratio(target)
	if err != nil {
		return Measure{}, err
	}
	return Measure{quantity: m.quantity * ratio, unit: target}, nil
}

// Invert returns the reciprocal measure.
func (m Measure) Invert() Measure {
	return Measure{quantity: 1.0 / m.quantity, unit: m.unit.Invert()}
}

// Add returns m + other in m's unit.
func (m Measure) Add(other Measure) (Measure, error) {
	if !m.Compatible(other) {
		return Measure{}, mismatch("measurement addition", m.unit, other.unit)
	}
	return m.plus(other), nil
}

// Sub returns m - other in m's unit.
func (m Measure) Sub(other Measure) (Measure, error) {
	if !m.Compatible(other) {
		return Measure{}, mismatch("measurement subtraction", m.unit, other.unit)
	}
	return m.plus(other.Neg()), nil
}

// Mul multiplies quantities and units. Units need not be compatible.
func (m Measure) Mul(other Measure) Measure {
	return Measure{quantity: m.quantity * other.quantity, unit: m.unit.Mul(other.unit)}
}

// Div divides quantities and units. Units need not be compatible.
func (m Measure) Div(other Measure) Measure {
	return Measure{quantity: m.quantity / other.quantity, unit: m.unit.Div(other.unit)}
}

// Neg returns m with its quantity negated.
func (m Measure) Neg() Measure {
	return Measure{quantity: -m.quantity, unit: m.unit}
}

// Equal reports whether m and other denote the same amount, within twice
// Epsilon once other is converted to m's unit.
func (m Measure) Equal(other Measure) (bool, error) {
	if !m.Compatible(other) {
		return false, mismatch("measurement comparison", m.unit, other.unit)
	}
	ratio, _ := m.unit.Ratio(other.unit)
	return math.Abs(m.quantity-other.quantity/ratio) <= 2*Epsilon, nil
}

// plus assumes compatible units.
func (m Measure) plus(other Measure) Measure {
	ratio, _ := m.unit.Ratio(other.unit)
	return Measure{quantity: m.quantity + other.quantity/ratio, unit: m.unit}
}
