package units

import "testing"

func TestUnitString(t *testing.T) {
	kg := NewBase("kg")
	m := NewBase("m")
	s := NewBase("s")
	inch := NewBase("inch")
	whatever := NewBase("whatever")

	n := kg.Mul(m).Div(s.Mul(s))
	j := n.Named("n").Mul(m)
	w := j.Named("j").Div(s)
	kw := Must(w.MulScalar(1000))
	h := Must(s.MulScalar(3600))

	testCases := []struct {
		name     string
		unit     *Unit
		expected string
	}{
		{"named base", whatever, "whatever"},
		{"unnamed base", NewAnonymousBase(), UnknownUnit},
		{"positive powered base", whatever.Mul(whatever).Mul(whatever), "whatever ^ 3"},
		{"negative powered base", whatever.Div(whatever.Mul(whatever).Mul(whatever)), "whatever ^ -2"},
		{"lone reciprocal", s.Invert(), "s ^ -1"},
		{"named scaled unit", Must(inch.MulScalar(12)).Named("foot"), "foot"},
		{"unnamed scaled unit", Must(inch.MulScalar(12)), "12.0 inch"},
		{"named complex unit", w.Named("w"), "w"},
		{"unnamed complex unit", w, "kg m ^ 2 / s ^ 3"},
		{"named scaled complex unit", kw.Mul(h).Named("kwh"), "kwh"},
		{"unnamed scaled complex unit", kw.Mul(h), "3600000.0 kg m ^ 2 / s ^ 2"},
		{"insertion order", m.Mul(kg), "m kg"},
		{"several denominators", m.Div(s).Div(kg), "m / s kg"},
		{"fractional scale", Must(inch.DivScalar(4)), "0.25 inch"},
		{"dimensionless", w.Div(w), "1.0"},
		{"unnamed terms", NewAnonymousBase().Div(s), "UNKNOWN_UNIT / s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.unit.String(); got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}

	var nilUnit *Unit
	if nilUnit.String() != "<nil>" {
		t.Errorf("Expected <nil> for a nil unit, got %q", nilUnit.String())
	}
}

func TestMeasureString(t *testing.T) {
	blah := NewBase("blah")
	testCases := []struct {
		measure  Measure
		expected string
	}{
		{New(1.5, blah), "1.5 blah"},
		{New(3, blah), "3.0 blah"},
		{New(-2, blah), "-2.0 blah"},
		{New(10, NewBase("ft").Div(NewBase("s"))), "10.0 ft / s"},
	}
	for _, tc := range testCases {
		if got := tc.measure.String(); got != tc.expected {
			t.Errorf("Expected %q, got %q", tc.expected, got)
		}
	}
}

func TestFormatScalar(t *testing.T) {
	testCases := []struct {
		in       float64
		expected string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{12, "12.0"},
		{3600000, "3600000.0"},
		{1.5, "1.5"},
		{0.0001, "0.0001"},
		{0.000025, "2.5e-05"},
		{1e16, "1.0e+16"},
		{1.25e20, "1.25e+20"},
		{-42, "-42.0"},
	}
	for _, tc := range testCases {
		if got := formatScalar(tc.in); got != tc.expected {
			t.Errorf("formatScalar(%v): expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}
