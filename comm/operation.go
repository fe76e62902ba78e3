package comm

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// An Operation combines buffers during a reduction.
//
// Operations must be associative. They need not be
// commutative: reductions always combine values in rank
// order.
type Operation interface {
	// Apply computes b = a op b element-wise.
	// Both buffers hold elements of type typ and have the
	// same length.
	Apply(a, b []byte, typ DataType) error

	Commutative() bool
}

// StandardOp is one of the built-in reduction operations.
type StandardOp int

const (
	Max StandardOp = iota
	Min
	Sum
	Product
	LogicalAnd
	BitwiseAnd
	LogicalOr
	BitwiseOr
	LogicalXor
	BitwiseXor
)

func (o StandardOp) String() string {
	switch o {
	case Max:
		return "max"
	case Min:
		return "min"
	case Sum:
		return "sum"
	case Product:
		return "product"
	case LogicalAnd:
		return "logical-and"
	case BitwiseAnd:
		return "bitwise-and"
	case LogicalOr:
		return "logical-or"
	case BitwiseOr:
		return "bitwise-or"
	case LogicalXor:
		return "logical-xor"
	case BitwiseXor:
		return "bitwise-xor"
	}
	return fmt.Sprintf("StandardOp(%d)", int(o))
}

// Commutative returns true; every standard operation is
// commutative.
func (o StandardOp) Commutative() bool {
	return true
}

// Apply computes b = a op b.
//
// Bitwise operations are not defined on floating-point
// types and return an error.
func (o StandardOp) Apply(a, b []byte, typ DataType) error {
	if len(a) != len(b) {
		return fmt.Errorf("%s: mismatched buffer lengths %d and %d", o, len(a), len(b))
	}
	switch typ {
	case Int8:
		return applyInteger(o, Slice[int8](a), Slice[int8](b))
	case Uint8:
		return applyInteger(o, Slice[uint8](a), Slice[uint8](b))
	case Int16:
		return applyInteger(o, Slice[int16](a), Slice[int16](b))
	case Uint16:
		return applyInteger(o, Slice[uint16](a), Slice[uint16](b))
	case Int32:
		return applyInteger(o, Slice[int32](a), Slice[int32](b))
	case Uint32:
		return applyInteger(o, Slice[uint32](a), Slice[uint32](b))
	case Int64, IDType:
		return applyInteger(o, Slice[int64](a), Slice[int64](b))
	case Uint64:
		return applyInteger(o, Slice[uint64](a), Slice[uint64](b))
	case Float32:
		return applyFloat(o, Slice[float32](a), Slice[float32](b))
	case Float64:
		return applyFloat(o, Slice[float64](a), Slice[float64](b))
	}
	return fmt.Errorf("%s: unknown data type %s", o, typ)
}

func applyInteger[T constraints.Integer](o StandardOp, a, b []T) error {
	switch o {
	case BitwiseAnd:
		for i, x := range a {
			b[i] &= x
		}
	case BitwiseOr:
		for i, x := range a {
			b[i] |= x
		}
	case BitwiseXor:
		for i, x := range a {
			b[i] ^= x
		}
	default:
		return applyCommon(o, a, b)
	}
	return nil
}

func applyFloat[T constraints.Float](o StandardOp, a, b []T) error {
	switch o {
	case BitwiseAnd, BitwiseOr, BitwiseXor:
		return fmt.Errorf("%s is not defined for floating-point data", o)
	}
	return applyCommon(o, a, b)
}

func applyCommon[T Scalar](o StandardOp, a, b []T) error {
	switch o {
	case Max:
		for i, x := range a {
			if x > b[i] {
				b[i] = x
			}
		}
	case Min:
		for i, x := range a {
			if x < b[i] {
				b[i] = x
			}
		}
	case Sum:
		for i, x := range a {
			b[i] += x
		}
	case Product:
		for i, x := range a {
			b[i] *= x
		}
	case LogicalAnd:
		for i, x := range a {
			b[i] = truth[T](x != 0 && b[i] != 0)
		}
	case LogicalOr:
		for i, x := range a {
			b[i] = truth[T](x != 0 || b[i] != 0)
		}
	case LogicalXor:
		for i, x := range a {
			b[i] = truth[T]((x != 0) != (b[i] != 0))
		}
	default:
		return fmt.Errorf("unknown operation: %s", o)
	}
	return nil
}

func truth[T Scalar](b bool) T {
	if b {
		return 1
	}
	return 0
}

// OperationFunc creates an Operation from a function on
// single elements of type T.
//
// The function receives (a, b) and its result replaces b.
// The resulting Operation fails on buffers of any other
// data type.
func OperationFunc[T Scalar](fn func(a, b T) T, commutative bool) Operation {
	return &funcOperation[T]{fn: fn, commutative: commutative}
}

type funcOperation[T Scalar] struct {
	fn          func(a, b T) T
	commutative bool
}

func (f *funcOperation[T]) Apply(a, b []byte, typ DataType) error {
	if typ != DataTypeOf[T]() {
		return ErrTypeMismatch
	}
	if len(a) != len(b) {
		return fmt.Errorf("mismatched buffer lengths %d and %d", len(a), len(b))
	}
	bs := Slice[T](b)
	for i, x := range Slice[T](a) {
		bs[i] = f.fn(x, bs[i])
	}
	return nil
}

func (f *funcOperation[T]) Commutative() bool {
	return f.commutative
}
