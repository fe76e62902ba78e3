package comm

import (
	"fmt"

	"github.com/unixpickle/essentials"
)

// BroadcastVoidArray sends data from the root to every
// other rank. On non-root ranks, data is overwritten.
//
// The default sends from the root to each rank in turn.
func BroadcastVoidArray(c Communicator, data []byte, typ DataType, root int) error {
	if b, ok := c.(Broadcaster); ok {
		return b.BroadcastVoidArray(data, typ, root)
	}
	if err := CheckRank(c, root); err != nil {
		return essentials.AddCtx("broadcast", err)
	}
	if c.LocalProcessID() == root {
		for i := 0; i < c.NumberOfProcesses(); i++ {
			if i == root {
				continue
			}
			if err := c.SendVoidArray(data, typ, i, BroadcastTag); err != nil {
				return essentials.AddCtx("broadcast", err)
			}
		}
		return nil
	}
	if err := receiveExactly(c, data, typ, root, BroadcastTag); err != nil {
		return essentials.AddCtx("broadcast", err)
	}
	return nil
}

// GatherVoidArray collects equal-sized buffers from every
// rank at dest.
//
// On dest, recv must hold NumberOfProcesses() times as
// many bytes as send, and rank i's data is placed at
// offset i*len(send).
// On other ranks, recv is ignored.
func GatherVoidArray(c Communicator, send, recv []byte, typ DataType, dest int) error {
	if g, ok := c.(Gatherer); ok {
		return g.GatherVoidArray(send, recv, typ, dest)
	}
	if err := CheckRank(c, dest); err != nil {
		return essentials.AddCtx("gather", err)
	}
	me := c.LocalProcessID()
	if me != dest {
		if err := c.SendVoidArray(send, typ, dest, GatherTag); err != nil {
			return essentials.AddCtx("gather", err)
		}
		return nil
	}
	n := c.NumberOfProcesses()
	l := len(send)
	if len(recv) < l*n {
		return essentials.AddCtx("gather", ErrOverflow)
	}
	for i := 0; i < n; i++ {
		chunk := recv[i*l : (i+1)*l]
		if i == me {
			copy(chunk, send)
			continue
		}
		if err := receiveExactly(c, chunk, typ, i, GatherTag); err != nil {
			return essentials.AddCtx("gather", err)
		}
	}
	return nil
}

// GatherVVoidArray collects variable-sized buffers from
// every rank at dest.
//
// On dest, rank i's data is placed at element offset
// offsets[i] and must contain exactly recvLengths[i]
// elements.
func GatherVVoidArray(c Communicator, send, recv []byte, recvLengths, offsets []int,
	typ DataType, dest int) error {
	if g, ok := c.(GathererV); ok {
		return g.GatherVVoidArray(send, recv, recvLengths, offsets, typ, dest)
	}
	if err := CheckRank(c, dest); err != nil {
		return essentials.AddCtx("gatherv", err)
	}
	me := c.LocalProcessID()
	if me != dest {
		if err := c.SendVoidArray(send, typ, dest, GatherVTag); err != nil {
			return essentials.AddCtx("gatherv", err)
		}
		return nil
	}
	n := c.NumberOfProcesses()
	if len(recvLengths) < n || len(offsets) < n {
		return essentials.AddCtx("gatherv", fmt.Errorf("need %d lengths and offsets", n))
	}
	size := typ.Size()
	for i := 0; i < n; i++ {
		start, end := offsets[i]*size, (offsets[i]+recvLengths[i])*size
		if start < 0 || end > len(recv) {
			return essentials.AddCtx("gatherv", ErrOverflow)
		}
		chunk := recv[start:end]
		if i == me {
			if len(send) != len(chunk) {
				return essentials.AddCtx("gatherv", fmt.Errorf("local send has %d bytes but %d were expected",
					len(send), len(chunk)))
			}
			copy(chunk, send)
			continue
		}
		if err := receiveExactly(c, chunk, typ, i, GatherVTag); err != nil {
			return essentials.AddCtx("gatherv", err)
		}
	}
	return nil
}

// ScatterVoidArray splits send on src into equal pieces
// of len(recv) bytes and delivers piece i to rank i.
func ScatterVoidArray(c Communicator, send, recv []byte, typ DataType, src int) error {
	if s, ok := c.(Scatterer); ok {
		return s.ScatterVoidArray(send, recv, typ, src)
	}
	if err := CheckRank(c, src); err != nil {
		return essentials.AddCtx("scatter", err)
	}
	me := c.LocalProcessID()
	if me != src {
		if err := receiveExactly(c, recv, typ, src, ScatterTag); err != nil {
			return essentials.AddCtx("scatter", err)
		}
		return nil
	}
	n := c.NumberOfProcesses()
	l := len(recv)
	if len(send) < l*n {
		return essentials.AddCtx("scatter", fmt.Errorf("send buffer holds %d bytes, need %d",
			len(send), l*n))
	}
	for i := 0; i < n; i++ {
		chunk := send[i*l : (i+1)*l]
		if i == me {
			copy(recv, chunk)
			continue
		}
		if err := c.SendVoidArray(chunk, typ, i, ScatterTag); err != nil {
			return essentials.AddCtx("scatter", err)
		}
	}
	return nil
}

// ScatterVVoidArray delivers sendLengths[i] elements
// starting at element offsets[i] of send to rank i.
func ScatterVVoidArray(c Communicator, send, recv []byte, sendLengths, offsets []int,
	typ DataType, src int) error {
	if s, ok := c.(ScattererV); ok {
		return s.ScatterVVoidArray(send, recv, sendLengths, offsets, typ, src)
	}
	if err := CheckRank(c, src); err != nil {
		return essentials.AddCtx("scatterv", err)
	}
	me := c.LocalProcessID()
	if me != src {
		if _, err := c.ReceiveVoidArray(recv, typ, src, ScatterVTag); err != nil {
			return essentials.AddCtx("scatterv", err)
		}
		return nil
	}
	n := c.NumberOfProcesses()
	if len(sendLengths) < n || len(offsets) < n {
		return essentials.AddCtx("scatterv", fmt.Errorf("need %d lengths and offsets", n))
	}
	size := typ.Size()
	for i := 0; i < n; i++ {
		start, end := offsets[i]*size, (offsets[i]+sendLengths[i])*size
		if start < 0 || end > len(send) {
			return essentials.AddCtx("scatterv", ErrOverflow)
		}
		chunk := send[start:end]
		if i == me {
			if len(chunk) > len(recv) {
				return essentials.AddCtx("scatterv", ErrOverflow)
			}
			copy(recv, chunk)
			continue
		}
		if err := c.SendVoidArray(chunk, typ, i, ScatterVTag); err != nil {
			return essentials.AddCtx("scatterv", err)
		}
	}
	return nil
}

// AllGatherVoidArray is like GatherVoidArray, except that
// every rank receives the gathered data.
//
// The default gathers to rank 0 and broadcasts from there.
func AllGatherVoidArray(c Communicator, send, recv []byte, typ DataType) error {
	if g, ok := c.(AllGatherer); ok {
		return g.AllGatherVoidArray(send, recv, typ)
	}
	n := c.NumberOfProcesses()
	if len(recv) < len(send)*n {
		return essentials.AddCtx("allgather", ErrOverflow)
	}
	if err := GatherVoidArray(c, send, recv, typ, 0); err != nil {
		return essentials.AddCtx("allgather", err)
	}
	if err := BroadcastVoidArray(c, recv[:len(send)*n], typ, 0); err != nil {
		return essentials.AddCtx("allgather", err)
	}
	return nil
}

// AllGatherVVoidArray is like GatherVVoidArray, except
// that every rank receives the gathered data.
// Every rank must pass the same lengths and offsets.
func AllGatherVVoidArray(c Communicator, send, recv []byte, recvLengths, offsets []int,
	typ DataType) error {
	if g, ok := c.(AllGathererV); ok {
		return g.AllGatherVVoidArray(send, recv, recvLengths, offsets, typ)
	}
	if err := GatherVVoidArray(c, send, recv, recvLengths, offsets, typ, 0); err != nil {
		return essentials.AddCtx("allgatherv", err)
	}
	var total int
	for i := 0; i < c.NumberOfProcesses() && i < len(offsets); i++ {
		total = essentials.MaxInt(total, offsets[i]+recvLengths[i])
	}
	if total*typ.Size() > len(recv) {
		return essentials.AddCtx("allgatherv", ErrOverflow)
	}
	if err := BroadcastVoidArray(c, recv[:total*typ.Size()], typ, 0); err != nil {
		return essentials.AddCtx("allgatherv", err)
	}
	return nil
}

// ReduceVoidArray combines the send buffers of every rank
// with op and stores the result in recv on dest.
//
// The default gathers all buffers at dest and folds them in
// rank order, computing v0 op (v1 op (... op vN-1)).
// For floating-point data the result is deterministic but
// may differ from other association orders.
func ReduceVoidArray(c Communicator, send, recv []byte, typ DataType, op Operation, dest int) error {
	if r, ok := c.(Reducer); ok {
		return r.ReduceVoidArray(send, recv, typ, op, dest)
	}
	n := c.NumberOfProcesses()
	l := len(send)
	var all []byte
	isDest := c.LocalProcessID() == dest
	if isDest {
		if len(recv) < l {
			return essentials.AddCtx("reduce", ErrOverflow)
		}
		all = make([]byte, l*n)
	}
	if err := GatherVoidArray(c, send, all, typ, dest); err != nil {
		return essentials.AddCtx("reduce", err)
	}
	if !isDest {
		return nil
	}
	result := recv[:l]
	copy(result, all[(n-1)*l:])
	for i := n - 2; i >= 0; i-- {
		if err := op.Apply(all[i*l:(i+1)*l], result, typ); err != nil {
			return essentials.AddCtx("reduce", err)
		}
	}
	return nil
}

// AllReduceVoidArray is like ReduceVoidArray, except that
// every rank receives the result.
//
// The default reduces to rank 0 and broadcasts from there.
func AllReduceVoidArray(c Communicator, send, recv []byte, typ DataType, op Operation) error {
	if r, ok := c.(AllReducer); ok {
		return r.AllReduceVoidArray(send, recv, typ, op)
	}
	if len(recv) < len(send) {
		return essentials.AddCtx("allreduce", ErrOverflow)
	}
	if err := ReduceVoidArray(c, send, recv, typ, op, 0); err != nil {
		return essentials.AddCtx("allreduce", err)
	}
	if err := BroadcastVoidArray(c, recv[:len(send)], typ, 0); err != nil {
		return essentials.AddCtx("allreduce", err)
	}
	return nil
}

// Barrier blocks until every rank has called Barrier.
//
// The default has every rank report to rank 0, which then
// releases them all.
func Barrier(c Communicator) error {
	if b, ok := c.(Barrierer); ok {
		return b.Barrier()
	}
	token := []int32{0}
	if c.LocalProcessID() == 0 {
		for i := 1; i < c.NumberOfProcesses(); i++ {
			if _, err := Receive(c, token, i, BarrierTag); err != nil {
				return essentials.AddCtx("barrier", err)
			}
		}
		for i := 1; i < c.NumberOfProcesses(); i++ {
			if err := Send(c, token, i, BarrierTag); err != nil {
				return essentials.AddCtx("barrier", err)
			}
		}
		return nil
	}
	if err := Send(c, token, 0, BarrierTag); err != nil {
		return essentials.AddCtx("barrier", err)
	}
	if _, err := Receive(c, token, 0, BarrierTag); err != nil {
		return essentials.AddCtx("barrier", err)
	}
	return nil
}

func receiveExactly(c Communicator, data []byte, typ DataType, remote, tag int) error {
	n, err := c.ReceiveVoidArray(data, typ, remote, tag)
	if err != nil {
		return err
	}
	if expected := len(data) / typ.Size(); n != expected {
		return fmt.Errorf("rank %d sent %d elements but %d were expected", remote, n, expected)
	}
	return nil
}
