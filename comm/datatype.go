package comm

import (
	"fmt"
	"reflect"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// A DataType identifies the element type of a buffer
// passed to a Communicator.
//
// Transports use the DataType to determine the element
// width, e.g. when byte-swapping data that came from a
// machine with a different byte order.
type DataType int

const (
	Int8 DataType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64

	// IDType is used for arrays of 64-bit indices.
	// It is distinct from Int64 so that transports can
	// narrow index arrays for peers without 64-bit IDs.
	IDType
)

// Size returns the number of bytes in one element.
func (d DataType) Size() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, IDType:
		return 8
	}
	panic(fmt.Sprintf("unknown data type: %d", int(d)))
}

// IsFloat returns true for floating-point types.
func (d DataType) IsFloat() bool {
	return d == Float32 || d == Float64
}

func (d DataType) String() string {
	switch d {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case IDType:
		return "id"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// Scalar is the set of element types that can be sent
// through a Communicator.
type Scalar interface {
	constraints.Integer | constraints.Float
}

// ID is a 64-bit index. Slices of IDs are sent with the
// IDType data type.
type ID int64

// DataTypeOf returns the DataType used for elements of
// type T.
func DataTypeOf[T Scalar]() DataType {
	var zero T
	if _, ok := any(zero).(ID); ok {
		return IDType
	}
	switch reflect.TypeOf(zero).Kind() {
	case reflect.Int8:
		return Int8
	case reflect.Uint8:
		return Uint8
	case reflect.Int16:
		return Int16
	case reflect.Uint16:
		return Uint16
	case reflect.Int32:
		return Int32
	case reflect.Uint32:
		return Uint32
	case reflect.Int64:
		return Int64
	case reflect.Uint64:
		return Uint64
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.Int:
		if unsafe.Sizeof(zero) == 4 {
			return Int32
		}
		return Int64
	case reflect.Uint, reflect.Uintptr:
		if unsafe.Sizeof(zero) == 4 {
			return Uint32
		}
		return Uint64
	}
	panic("unreachable")
}

// Bytes returns the memory of a slice as a byte slice,
// without copying.
func Bytes[T Scalar](data []T) []byte {
	if len(data) == 0 {
		return []byte{}
	}
	size := int(unsafe.Sizeof(data[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*size)
}

// Slice reinterprets a byte slice as a slice of T without
// copying.
// Trailing bytes that do not fill a whole element are
// ignored.
func Slice[T Scalar](data []byte) []T {
	var zero T
	n := len(data) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}

// SwapBytes reverses the byte order of every word in
// data, where each word is wordSize bytes long.
//
// Words of 1 byte are left alone.
func SwapBytes(data []byte, wordSize int) {
	if wordSize <= 1 {
		return
	}
	for i := 0; i+wordSize <= len(data); i += wordSize {
		word := data[i : i+wordSize]
		for j, k := 0, wordSize-1; j < k; j, k = j+1, k-1 {
			word[j], word[k] = word[k], word[j]
		}
	}
}

// CheckLength returns an error if data does not hold a
// whole number of elements of type typ.
func CheckLength(data []byte, typ DataType) error {
	if len(data)%typ.Size() != 0 {
		return fmt.Errorf("buffer of %d bytes is not a whole number of %s elements",
			len(data), typ)
	}
	return nil
}
