// Package comm defines a transport-agnostic interface for
// exchanging typed buffers between a fixed set of ranks,
// along with collective operations built on top of it.
//
// A transport only has to implement two primitives,
// SendVoidArray and ReceiveVoidArray.
// Every collective in this package has a default that is
// built from those two calls, so any transport supports the
// full API automatically.
// A transport may replace any collective with a native
// version by implementing the matching optional interface
// (Broadcaster, Gatherer, Reducer, etc.).
//
// All calls block until their protocol completes or fails.
// A Communicator is not safe for overlapping operations
// from multiple Goroutines.
package comm

import (
	"errors"
)

// AnySource may be passed as the remote rank of a receive
// to accept a message from any rank.
const AnySource = -1

// Tags reserved for the default collectives.
// User code should use tags of 100 or more.
const (
	BroadcastTag = 10 + iota
	GatherTag
	GatherVTag
	ScatterTag
	ScatterVTag
	ReduceTag
	BarrierTag
)

var (
	ErrNoPeer       = errors.New("no peer process to communicate with")
	ErrUnsupported  = errors.New("operation not supported by this communicator")
	ErrOverflow     = errors.New("received message is larger than the receive buffer")
	ErrTypeMismatch = errors.New("received message has a different data type")
	ErrInvalidRank  = errors.New("invalid process id")
)

// A Communicator moves data between ranks.
//
// Ranks are numbered 0 through NumberOfProcesses()-1.
type Communicator interface {
	NumberOfProcesses() int
	LocalProcessID() int

	// SendVoidArray sends the elements in data to a remote
	// rank. The length of data must be a multiple of
	// typ.Size().
	SendVoidArray(data []byte, typ DataType, remote, tag int) error

	// ReceiveVoidArray receives a message into data and
	// returns the number of elements that arrived.
	//
	// The remote rank may be AnySource.
	// A message larger than data is an error, and no part
	// of it is written into data.
	ReceiveVoidArray(data []byte, typ DataType, remote, tag int) (int, error)
}

// Send sends a typed slice to a remote rank.
func Send[T Scalar](c Communicator, data []T, remote, tag int) error {
	return c.SendVoidArray(Bytes(data), DataTypeOf[T](), remote, tag)
}

// Receive receives a typed slice from a remote rank and
// returns the number of elements received.
func Receive[T Scalar](c Communicator, data []T, remote, tag int) (int, error) {
	return c.ReceiveVoidArray(Bytes(data), DataTypeOf[T](), remote, tag)
}

// CheckRank returns an ErrInvalidRank error if rank is
// not a rank of c.
func CheckRank(c Communicator, rank int) error {
	if rank < 0 || rank >= c.NumberOfProcesses() {
		return ErrInvalidRank
	}
	return nil
}

// Broadcaster is implemented by transports with a native
// broadcast.
type Broadcaster interface {
	BroadcastVoidArray(data []byte, typ DataType, root int) error
}

// Gatherer is implemented by transports with a native
// gather.
type Gatherer interface {
	GatherVoidArray(send, recv []byte, typ DataType, dest int) error
}

// GathererV is implemented by transports with a native
// variable-length gather.
// Lengths and offsets are counted in elements.
type GathererV interface {
	GatherVVoidArray(send, recv []byte, recvLengths, offsets []int, typ DataType, dest int) error
}

// Scatterer is implemented by transports with a native
// scatter.
type Scatterer interface {
	ScatterVoidArray(send, recv []byte, typ DataType, src int) error
}

// ScattererV is implemented by transports with a native
// variable-length scatter.
type ScattererV interface {
	ScatterVVoidArray(send, recv []byte, sendLengths, offsets []int, typ DataType, src int) error
}

// AllGatherer is implemented by transports with a native
// all-gather.
type AllGatherer interface {
	AllGatherVoidArray(send, recv []byte, typ DataType) error
}

// AllGathererV is implemented by transports with a native
// variable-length all-gather.
type AllGathererV interface {
	AllGatherVVoidArray(send, recv []byte, recvLengths, offsets []int, typ DataType) error
}

// Reducer is implemented by transports with a native
// reduction.
type Reducer interface {
	ReduceVoidArray(send, recv []byte, typ DataType, op Operation, dest int) error
}

// AllReducer is implemented by transports with a native
// all-reduce.
type AllReducer interface {
	AllReduceVoidArray(send, recv []byte, typ DataType, op Operation) error
}

// Barrierer is implemented by transports with a native
// barrier.
type Barrierer interface {
	Barrier() error
}
