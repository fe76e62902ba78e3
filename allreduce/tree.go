package allreduce

import (
	"fmt"

	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// A TreeAllreducer arranges the ranks in a binary tree
// and performs a reduction by going up the tree to a
// root rank, and then back down the tree to the leaves.
//
// Subtrees are not contiguous ranges of ranks, so only
// commutative Operations are supported.
type TreeAllreducer struct{}

// Allreduce calls op on vectors along a tree and returns
// the resulting reduced vector.
func (t TreeAllreducer) Allreduce(h *Host, data []byte, op comm.Operation) ([]byte, error) {
	if !op.Commutative() {
		return nil, fmt.Errorf("tree allreduce: %w: non-commutative operation",
			comm.ErrUnsupported)
	}
	parent, children := positionInTree(h)

	messages := [][]byte{data}
	for _, child := range children {
		msg := make([]byte, len(data))
		if err := h.Recv(child, msg); err != nil {
			return nil, essentials.AddCtx("tree allreduce", err)
		}
		messages = append(messages, msg)
	}

	finalVector, err := reduceVectors(h.Type, op, messages...)
	if err != nil {
		return nil, essentials.AddCtx("tree allreduce", err)
	}
	if parent >= 0 {
		if err := h.Send(parent, finalVector); err != nil {
			return nil, essentials.AddCtx("tree allreduce", err)
		}
		if err := h.Recv(parent, finalVector); err != nil {
			return nil, essentials.AddCtx("tree allreduce", err)
		}
	}

	for _, child := range children {
		if err := h.Send(child, finalVector); err != nil {
			return nil, essentials.AddCtx("tree allreduce", err)
		}
	}

	return finalVector, nil
}

// positionInTree returns the child ranks and parent rank
// for a host in the reduction tree.
//
// There may be no children.
// The parent is -1 for the root.
func positionInTree(h *Host) (parent int, children []int) {
	idx := h.Index()
	parent = -1
	for depth := uint(0); true; depth++ {
		rowSize := 1 << depth
		rowStart := rowSize - 1
		if idx >= rowStart+rowSize {
			continue
		}
		rowIdx := idx - rowStart
		if depth > 0 {
			parent = rowIdx/2 + (rowSize/2 - 1)
		}
		firstChild := rowIdx*2 + (rowSize*2 - 1)
		for i := 0; i < 2; i++ {
			if firstChild+i < h.Size() {
				children = append(children, firstChild+i)
			}
		}
		return
	}
	panic("unreachable")
}
