package allreduce

import (
	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// A NaiveAllreducer sends every vector from every rank to
// every other rank.
//
// Vectors are combined in rank order, so any Operation is
// supported.
type NaiveAllreducer struct{}

// Allreduce runs op on all of the ranks' vectors on every
// rank.
func (n NaiveAllreducer) Allreduce(h *Host, data []byte, op comm.Operation) ([]byte, error) {
	gatheredVecs := make([][]byte, h.Size())

	for i := range gatheredVecs {
		if i != h.Index() {
			if err := h.Send(i, data); err != nil {
				return nil, essentials.AddCtx("naive allreduce", err)
			}
		} else {
			gatheredVecs[i] = data
		}
	}

	for i := range gatheredVecs {
		if i == h.Index() {
			continue
		}
		gatheredVecs[i] = make([]byte, len(data))
		if err := h.Recv(i, gatheredVecs[i]); err != nil {
			return nil, essentials.AddCtx("naive allreduce", err)
		}
	}

	return reduceVectors(h.Type, op, gatheredVecs...)
}
