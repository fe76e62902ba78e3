package comm

import "github.com/unixpickle/essentials"

// Broadcast sends data from root to every other rank.
func Broadcast[T Scalar](c Communicator, data []T, root int) error {
	return BroadcastVoidArray(c, Bytes(data), DataTypeOf[T](), root)
}

// Gather collects equal-sized slices at dest.
// See GatherVoidArray.
func Gather[T Scalar](c Communicator, send, recv []T, dest int) error {
	return GatherVoidArray(c, Bytes(send), Bytes(recv), DataTypeOf[T](), dest)
}

// GatherV collects variable-sized slices at dest.
// See GatherVVoidArray.
func GatherV[T Scalar](c Communicator, send, recv []T, recvLengths, offsets []int, dest int) error {
	return GatherVVoidArray(c, Bytes(send), Bytes(recv), recvLengths, offsets, DataTypeOf[T](), dest)
}

// Scatter distributes equal pieces of send from src.
// See ScatterVoidArray.
func Scatter[T Scalar](c Communicator, send, recv []T, src int) error {
	return ScatterVoidArray(c, Bytes(send), Bytes(recv), DataTypeOf[T](), src)
}

// ScatterV distributes variable-sized pieces of send from
// src.
// See ScatterVVoidArray.
func ScatterV[T Scalar](c Communicator, send, recv []T, sendLengths, offsets []int, src int) error {
	return ScatterVVoidArray(c, Bytes(send), Bytes(recv), sendLengths, offsets, DataTypeOf[T](), src)
}

// AllGather collects equal-sized slices on every rank.
func AllGather[T Scalar](c Communicator, send, recv []T) error {
	return AllGatherVoidArray(c, Bytes(send), Bytes(recv), DataTypeOf[T]())
}

// AllGatherV collects variable-sized slices on every rank.
func AllGatherV[T Scalar](c Communicator, send, recv []T, recvLengths, offsets []int) error {
	return AllGatherVVoidArray(c, Bytes(send), Bytes(recv), recvLengths, offsets, DataTypeOf[T]())
}

// Reduce combines every rank's send slice into recv on
// dest.
func Reduce[T Scalar](c Communicator, send, recv []T, op Operation, dest int) error {
	return ReduceVoidArray(c, Bytes(send), Bytes(recv), DataTypeOf[T](), op, dest)
}

// AllReduce combines every rank's send slice into recv on
// every rank.
func AllReduce[T Scalar](c Communicator, send, recv []T, op Operation) error {
	return AllReduceVoidArray(c, Bytes(send), Bytes(recv), DataTypeOf[T](), op)
}

// GatherVArray gathers slices of unknown and possibly
// different lengths at dest.
//
// The lengths are discovered with an AllGather, then the
// data is packed tightly in rank order.
// On dest, the gathered data, the per-rank lengths, and
// the per-rank offsets are returned.
// Other ranks receive the lengths and offsets only.
func GatherVArray[T Scalar](c Communicator, send []T, dest int) (recv []T, lengths,
	offsets []int, err error) {
	lengths, offsets, err = exchangeLengths(c, len(send))
	if err != nil {
		return nil, nil, nil, essentials.AddCtx("gatherv array", err)
	}
	if c.LocalProcessID() == dest {
		recv = make([]T, packedSize(lengths))
	}
	if err := GatherV(c, send, recv, lengths, offsets, dest); err != nil {
		return nil, nil, nil, essentials.AddCtx("gatherv array", err)
	}
	return recv, lengths, offsets, nil
}

// AllGatherVArray is like GatherVArray, except that every
// rank receives the gathered data.
func AllGatherVArray[T Scalar](c Communicator, send []T) (recv []T, lengths,
	offsets []int, err error) {
	lengths, offsets, err = exchangeLengths(c, len(send))
	if err != nil {
		return nil, nil, nil, essentials.AddCtx("allgatherv array", err)
	}
	recv = make([]T, packedSize(lengths))
	if err := AllGatherV(c, send, recv, lengths, offsets); err != nil {
		return nil, nil, nil, essentials.AddCtx("allgatherv array", err)
	}
	return recv, lengths, offsets, nil
}

func exchangeLengths(c Communicator, length int) (lengths, offsets []int, err error) {
	all := make([]int64, c.NumberOfProcesses())
	if err := AllGather(c, []int64{int64(length)}, all); err != nil {
		return nil, nil, err
	}
	lengths = make([]int, len(all))
	offsets = make([]int, len(all))
	var offset int
	for i, l := range all {
		lengths[i] = int(l)
		offsets[i] = offset
		offset += int(l)
	}
	return lengths, offsets, nil
}

func packedSize(lengths []int) int {
	var total int
	for _, l := range lengths {
		total += l
	}
	return total
}
