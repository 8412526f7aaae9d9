// Package units provides dimensional-analysis arithmetic: composable physical
// units and quantities expressed in them, with unit-checked arithmetic and
// automatic conversion between compatible units.
//
// # Overview
//
// A Unit is a product of base-unit powers with a scale factor. Base units are
// created by the caller and are identified by identity, not by name: two
// bases both called "m" are different, incompatible units. Everything else is
// derived by multiplying, dividing and scaling existing units.
//
// A Measure is a quantity tagged with the Unit it is expressed in. Adding,
// subtracting and comparing measures requires compatible units and converts
// transparently by the ratio of their scales; multiplying and dividing
// composes the units instead.
//
// # Quick Start
//
//	ft := units.NewBase("ft")
//	sec := units.NewBase("s")
//	yd := units.Must(ft.MulScalar(3)).Named("yd")
//	minute := units.Must(sec.MulScalar(60)).Named("min")
//
//	speed := units.New(10, ft.Div(sec))
//	converted, err := speed.Convert(yd.Div(minute).Named("yd/min"))
//	if err != nil {
//		return err
//	}
//	fmt.Println(converted) // 200.0 yd/min
//
// Derived units are stored in terms of base units, so an unnamed yd.Div(minute)
// displays as "0.05 ft / s".
//
// # Compatibility
//
// Two units are compatible when they are the same unit, have the same
// base-exponent parts, or one is a pure scaling of the other. Units that only
// share some of their factors are never compatible: m/s and m are not, and
// neither are kg*m/s^2 and m/s.
//
// # Errors
//
// Operations that can fail return an error. Unit mismatches wrap
// ErrUnitMismatch and invalid multiplication or division operands wrap
// ErrInvalidOperand, so callers can test with errors.Is and recover details
// with errors.As on *MismatchError and *OperandError.
//
// # Concurrency
//
// Units and measures are immutable once constructed and may be shared freely
// between goroutines.
package units
