package inproc

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// A Communicator is one rank's view of a World.
//
// Messages are copied when they are sent, so the sender
// may reuse its buffer as soon as SendVoidArray returns.
// Sends never block.
type Communicator struct {
	world   *World
	rank    int
	context int

	numDuplicates int
}

// World returns the world the communicator belongs to.
func (c *Communicator) World() *World {
	return c.world
}

// NumberOfProcesses returns the size of the world.
func (c *Communicator) NumberOfProcesses() int {
	return c.world.size
}

// LocalProcessID returns the rank of the communicator.
func (c *Communicator) LocalProcessID() int {
	return c.rank
}

// Duplicate creates a communicator for the same rank whose
// messages never match messages of c.
//
// Every rank must duplicate a communicator the same number
// of times, in the same order, for the duplicates to talk
// to each other.
func (c *Communicator) Duplicate() *Communicator {
	ctx := c.world.duplicateContext(c.context, c.numDuplicates)
	c.numDuplicates++
	return &Communicator{world: c.world, rank: c.rank, context: ctx}
}

// SendVoidArray copies data into the mailbox of a remote
// rank.
func (c *Communicator) SendVoidArray(data []byte, typ comm.DataType, remote, tag int) error {
	if err := comm.CheckRank(c, remote); err != nil {
		return essentials.AddCtx("inproc send", err)
	}
	if err := comm.CheckLength(data, typ); err != nil {
		return essentials.AddCtx("inproc send", err)
	}
	if glog.V(3) {
		glog.Infof("world %s: %d -> %d tag=%d %d bytes", c.world.id, c.rank, remote, tag, len(data))
	}
	msg := &message{
		context: c.context,
		source:  c.rank,
		tag:     tag,
		typ:     typ,
		data:    append([]byte{}, data...),
	}
	if err := c.world.deliver(remote, msg); err != nil {
		return essentials.AddCtx("inproc send", err)
	}
	return nil
}

// ReceiveVoidArray blocks until a matching message arrives.
//
// Messages from one sender with one tag are received in
// the order they were sent.
// A message that does not fit in data, or that has a
// different data type, is consumed and reported as an
// error.
func (c *Communicator) ReceiveVoidArray(data []byte, typ comm.DataType, remote,
	tag int) (int, error) {
	if remote != comm.AnySource {
		if err := comm.CheckRank(c, remote); err != nil {
			return 0, essentials.AddCtx("inproc receive", err)
		}
	}
	msg, err := c.world.receive(c.rank, c.context, remote, tag)
	if err != nil {
		return 0, essentials.AddCtx("inproc receive", err)
	}
	if msg.typ != typ {
		return 0, fmt.Errorf("inproc receive: %w: got %s but expected %s",
			comm.ErrTypeMismatch, msg.typ, typ)
	}
	if len(msg.data) > len(data) {
		return 0, fmt.Errorf("inproc receive: %w: %d bytes into %d", comm.ErrOverflow,
			len(msg.data), len(data))
	}
	copy(data, msg.data)
	return len(msg.data) / typ.Size(), nil
}
