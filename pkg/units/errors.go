package units

import (
	"errors"
	"fmt"
)

var (
	// ErrUnitMismatch is returned when an operation needs compatible units
	// and gets incompatible ones.
	ErrUnitMismatch = errors.New("unit mismatch")

	// ErrInvalidOperand is returned when a unit is multiplied or divided by
	// something that is neither a unit nor a positive finite number.
	ErrInvalidOperand = errors.New("invalid operand")
)

// MismatchError reports the operation and the two units that could not be
// reconciled.
type MismatchError struct {
	Op    string
	Left  *Unit
	Right *Unit
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s error: unit mismatch (%s vs %s)", e.Op, e.Left, e.Right)
}

func (e *MismatchError) Unwrap() error { return ErrUnitMismatch }

// OperandError reports a rejected multiplication or division operand.
type OperandError struct {
	Op      string
	Operand any
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("unit %s error: second operand must be a unit or a positive finite number, got %#v", e.Op, e.Operand)
}

func (e *OperandError) Unwrap() error { return ErrInvalidOperand }

func mismatch(op string, left, right *Unit) error {
	return &MismatchError{Op: op, Left: left, Right: right}
}
