package allreduce

import (
	"fmt"

	"github.com/Kitware/VTK-sub105/comm"
)

// Host stores information about the entire world from a
// single rank's perspective.
type Host struct {
	// Comm connects the ranks.
	Comm comm.Communicator

	// Tag is used for every message of the algorithm.
	Tag int

	// Type is the element type of the vectors.
	Type comm.DataType
}

// Index returns the current rank.
func (h *Host) Index() int {
	return h.Comm.LocalProcessID()
}

// Size returns the number of ranks.
func (h *Host) Size() int {
	return h.Comm.NumberOfProcesses()
}

// Send sends a vector to the destination.
func (h *Host) Send(dst int, vec []byte) error {
	return h.Comm.SendVoidArray(vec, h.Type, dst, h.Tag)
}

// Recv receives a vector of exactly len(vec) bytes from
// the source.
func (h *Host) Recv(src int, vec []byte) error {
	n, err := h.Comm.ReceiveVoidArray(vec, h.Type, src, h.Tag)
	if err != nil {
		return err
	} else if n*h.Type.Size() != len(vec) {
		return fmt.Errorf("expected %d bytes from %d but got %d", len(vec), src, n*h.Type.Size())
	}
	return nil
}
