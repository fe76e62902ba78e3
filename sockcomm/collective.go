package sockcomm

import (
	"fmt"

	"github.com/Kitware/VTK-sub105/comm"
)

// BroadcastVoidArray sends data to the peer if root is the
// local rank, or receives it otherwise.
func (c *Communicator) BroadcastVoidArray(data []byte, typ comm.DataType, root int) error {
	switch root {
	case 0:
		return c.SendVoidArray(data, typ, 1, comm.BroadcastTag)
	case 1:
		_, err := c.ReceiveVoidArray(data, typ, 1, comm.BroadcastTag)
		return err
	}
	return c.fail("broadcast", fmt.Errorf("%w: root %d", comm.ErrInvalidRank, root))
}

// Barrier exchanges a token with the peer.
func (c *Communicator) Barrier() error {
	token := []int32{0}
	if err := comm.Send(c, token, 1, comm.BarrierTag); err != nil {
		return err
	}
	_, err := comm.Receive(c, token, 1, comm.BarrierTag)
	return err
}

// GatherVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) GatherVoidArray(send, recv []byte, typ comm.DataType, dest int) error {
	return c.fail("gather", comm.ErrUnsupported)
}

// GatherVVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) GatherVVoidArray(send, recv []byte, recvLengths, offsets []int,
	typ comm.DataType, dest int) error {
	return c.fail("gatherv", comm.ErrUnsupported)
}

// ScatterVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) ScatterVoidArray(send, recv []byte, typ comm.DataType, src int) error {
	return c.fail("scatter", comm.ErrUnsupported)
}

// ScatterVVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) ScatterVVoidArray(send, recv []byte, sendLengths, offsets []int,
	typ comm.DataType, src int) error {
	return c.fail("scatterv", comm.ErrUnsupported)
}

// AllGatherVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) AllGatherVoidArray(send, recv []byte, typ comm.DataType) error {
	return c.fail("all-gather", comm.ErrUnsupported)
}

// AllGatherVVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) AllGatherVVoidArray(send, recv []byte, recvLengths, offsets []int,
	typ comm.DataType) error {
	return c.fail("all-gatherv", comm.ErrUnsupported)
}

// ReduceVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) ReduceVoidArray(send, recv []byte, typ comm.DataType, op comm.Operation,
	dest int) error {
	return c.fail("reduce", comm.ErrUnsupported)
}

// AllReduceVoidArray fails with comm.ErrUnsupported.
func (c *Communicator) AllReduceVoidArray(send, recv []byte, typ comm.DataType,
	op comm.Operation) error {
	return c.fail("all-reduce", comm.ErrUnsupported)
}

// A CompliantCommunicator is a view of a Communicator in
// which the server is rank 0 and the client is rank 1, so
// both ends agree on every rank.
//
// Collectives other than Broadcast and Barrier use the
// defaults from package comm.
type CompliantCommunicator struct {
	c *Communicator
}

// Compliant returns a rank-consistent view of c.
func (c *Communicator) Compliant() *CompliantCommunicator {
	return &CompliantCommunicator{c: c}
}

// Socket returns the underlying communicator.
func (v *CompliantCommunicator) Socket() *Communicator {
	return v.c
}

// NumberOfProcesses always returns 2.
func (v *CompliantCommunicator) NumberOfProcesses() int {
	return 2
}

// LocalProcessID returns 0 on the server and 1 on the
// client.
func (v *CompliantCommunicator) LocalProcessID() int {
	if v.c.IsServer() {
		return 0
	}
	return 1
}

func (v *CompliantCommunicator) toSocketRank(rank int) (int, error) {
	if rank == v.LocalProcessID() {
		return 0, nil
	} else if rank == 1-v.LocalProcessID() {
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %d", comm.ErrInvalidRank, rank)
}

// SendVoidArray sends to the peer's rank.
func (v *CompliantCommunicator) SendVoidArray(data []byte, typ comm.DataType, remote, tag int) error {
	r, err := v.toSocketRank(remote)
	if err != nil {
		return v.c.fail("send", err)
	} else if r == 0 {
		return v.c.fail("send", fmt.Errorf("%w: cannot send to self", comm.ErrInvalidRank))
	}
	return v.c.SendVoidArray(data, typ, 1, tag)
}

// ReceiveVoidArray receives from the peer's rank or
// comm.AnySource.
func (v *CompliantCommunicator) ReceiveVoidArray(data []byte, typ comm.DataType, remote,
	tag int) (int, error) {
	if remote == comm.AnySource {
		return v.c.ReceiveVoidArray(data, typ, remote, tag)
	}
	r, err := v.toSocketRank(remote)
	if err != nil {
		return 0, v.c.fail("receive", err)
	} else if r == 0 {
		return 0, v.c.fail("receive", fmt.Errorf("%w: cannot receive from self", comm.ErrInvalidRank))
	}
	return v.c.ReceiveVoidArray(data, typ, 1, tag)
}

// BroadcastVoidArray broadcasts from a server or client
// rank.
func (v *CompliantCommunicator) BroadcastVoidArray(data []byte, typ comm.DataType, root int) error {
	r, err := v.toSocketRank(root)
	if err != nil {
		return v.c.fail("broadcast", err)
	}
	return v.c.BroadcastVoidArray(data, typ, r)
}

// Barrier uses the socket's two-party barrier.
func (v *CompliantCommunicator) Barrier() error {
	return v.c.Barrier()
}
