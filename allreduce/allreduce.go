// Package allreduce implements algorithms for reducing
// vectors across every rank of a Communicator.
//
// Each algorithm can be used on its own, or installed as
// the AllReduce of a communicator with Wrap.
package allreduce

import (
	"errors"

	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// DefaultTag is the tag used by wrapped communicators.
const DefaultTag = 20

// Allreducer is an algorithm that can apply an Operation
// to vectors that are distributed across ranks.
//
// Every rank must call Allreduce with the same Operation
// and the same vector length.
// Algorithms return an error wrapping comm.ErrUnsupported,
// before sending anything, if they cannot apply an
// Operation.
type Allreducer interface {
	Allreduce(h *Host, data []byte, op comm.Operation) ([]byte, error)
}

// A Communicator overrides the AllReduce collective of
// another Communicator with an Allreducer.
type Communicator struct {
	comm.Communicator

	Reducer Allreducer
	Tag     int
}

// Wrap creates a Communicator that runs AllReduce with r.
func Wrap(c comm.Communicator, r Allreducer) *Communicator {
	return &Communicator{Communicator: c, Reducer: r, Tag: DefaultTag}
}

// AllReduceVoidArray runs the Allreducer.
//
// Operations the Allreducer does not support are passed
// to the default algorithm of the wrapped communicator.
func (c *Communicator) AllReduceVoidArray(send, recv []byte, typ comm.DataType,
	op comm.Operation) error {
	if len(recv) < len(send) {
		return essentials.AddCtx("allreduce", comm.ErrOverflow)
	}
	h := &Host{Comm: c.Communicator, Tag: c.Tag, Type: typ}
	res, err := c.Reducer.Allreduce(h, send, op)
	if errors.Is(err, comm.ErrUnsupported) {
		return comm.AllReduceVoidArray(c.Communicator, send, recv, typ, op)
	} else if err != nil {
		return essentials.AddCtx("allreduce", err)
	}
	copy(recv, res)
	return nil
}

// BroadcastVoidArray broadcasts on the wrapped
// communicator.
func (c *Communicator) BroadcastVoidArray(data []byte, typ comm.DataType, root int) error {
	return comm.BroadcastVoidArray(c.Communicator, data, typ, root)
}

// GatherVoidArray gathers on the wrapped communicator.
func (c *Communicator) GatherVoidArray(send, recv []byte, typ comm.DataType, dest int) error {
	return comm.GatherVoidArray(c.Communicator, send, recv, typ, dest)
}

// GatherVVoidArray gathers on the wrapped communicator.
func (c *Communicator) GatherVVoidArray(send, recv []byte, recvLengths, offsets []int,
	typ comm.DataType, dest int) error {
	return comm.GatherVVoidArray(c.Communicator, send, recv, recvLengths, offsets, typ, dest)
}

// ScatterVoidArray scatters on the wrapped communicator.
func (c *Communicator) ScatterVoidArray(send, recv []byte, typ comm.DataType, src int) error {
	return comm.ScatterVoidArray(c.Communicator, send, recv, typ, src)
}

// ScatterVVoidArray scatters on the wrapped communicator.
func (c *Communicator) ScatterVVoidArray(send, recv []byte, sendLengths, offsets []int,
	typ comm.DataType, src int) error {
	return comm.ScatterVVoidArray(c.Communicator, send, recv, sendLengths, offsets, typ, src)
}

// AllGatherVoidArray gathers on the wrapped
// communicator.
func (c *Communicator) AllGatherVoidArray(send, recv []byte, typ comm.DataType) error {
	return comm.AllGatherVoidArray(c.Communicator, send, recv, typ)
}

// AllGatherVVoidArray gathers on the wrapped
// communicator.
func (c *Communicator) AllGatherVVoidArray(send, recv []byte, recvLengths, offsets []int,
	typ comm.DataType) error {
	return comm.AllGatherVVoidArray(c.Communicator, send, recv, recvLengths, offsets, typ)
}

// ReduceVoidArray reduces on the wrapped communicator.
func (c *Communicator) ReduceVoidArray(send, recv []byte, typ comm.DataType, op comm.Operation,
	dest int) error {
	return comm.ReduceVoidArray(c.Communicator, send, recv, typ, op, dest)
}

// Barrier synchronizes on the wrapped communicator.
func (c *Communicator) Barrier() error {
	return comm.Barrier(c.Communicator)
}
