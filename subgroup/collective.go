package subgroup

import (
	"fmt"

	"github.com/unixpickle/essentials"
	"golang.org/x/exp/slices"

	"github.com/Kitware/VTK-sub105/comm"
)

// ReduceSum adds up data element-wise across the group.
// The result is written to result on the root.
func ReduceSum[T comm.Scalar](g *SubGroup, data, result []T, root int) error {
	return reduce(g, data, result, root, func(a, b T) T { return a + b })
}

// ReduceMin computes the element-wise minimum across the
// group.
func ReduceMin[T comm.Scalar](g *SubGroup, data, result []T, root int) error {
	return reduce(g, data, result, root, func(a, b T) T {
		if b < a {
			return b
		}
		return a
	})
}

// ReduceMax computes the element-wise maximum across the
// group.
func ReduceMax[T comm.Scalar](g *SubGroup, data, result []T, root int) error {
	return reduce(g, data, result, root, func(a, b T) T {
		if b > a {
			return b
		}
		return a
	})
}

func reduce[T comm.Scalar](g *SubGroup, data, result []T, root int, op func(a, b T) T) error {
	if err := g.checkRoot(root); err != nil {
		return essentials.AddCtx("subgroup reduce", err)
	}
	g.setUpRoot(root)
	defer g.restoreRoot(root)

	if g.myLocalRank == 0 && len(result) < len(data) {
		return essentials.AddCtx("subgroup reduce", comm.ErrOverflow)
	}

	acc := append([]T{}, data...)
	buf := make([]T, len(data))
	for _, from := range g.fanInFrom {
		if _, err := comm.Receive(g.comm, buf, g.members[from], g.tag); err != nil {
			return essentials.AddCtx("subgroup reduce", err)
		}
		for i, x := range buf {
			acc[i] = op(acc[i], x)
		}
	}
	if g.fanInTo >= 0 {
		if err := comm.Send(g.comm, acc, g.members[g.fanInTo], g.tag); err != nil {
			return essentials.AddCtx("subgroup reduce", err)
		}
	} else {
		copy(result, acc)
	}
	return nil
}

// Broadcast sends data from the root to every member,
// moving down the fan-in tree.
func Broadcast[T comm.Scalar](g *SubGroup, data []T, root int) error {
	if err := g.checkRoot(root); err != nil {
		return essentials.AddCtx("subgroup broadcast", err)
	}
	g.setUpRoot(root)
	defer g.restoreRoot(root)

	if g.fanInTo >= 0 {
		if _, err := comm.Receive(g.comm, data, g.members[g.fanInTo], g.tag); err != nil {
			return essentials.AddCtx("subgroup broadcast", err)
		}
	}
	for i := len(g.fanInFrom) - 1; i >= 0; i-- {
		if err := comm.Send(g.comm, data, g.members[g.fanInFrom[i]], g.tag); err != nil {
			return essentials.AddCtx("subgroup broadcast", err)
		}
	}
	return nil
}

// Gather collects len(data) elements from every member
// into recv on the root, ordered by local rank.
//
// Members forward partially assembled slices, so the root
// receives O(log N) messages.
func Gather[T comm.Scalar](g *SubGroup, data, recv []T, root int) error {
	if err := g.checkRoot(root); err != nil {
		return essentials.AddCtx("subgroup gather", err)
	}
	length := len(data)
	total := length * len(g.members)
	if g.myLocalRank == root && len(recv) < total {
		return essentials.AddCtx("subgroup gather", comm.ErrOverflow)
	}
	if len(g.members) == 1 {
		copy(recv, data)
		return nil
	}
	g.setGatherPattern(root, length)
	p := &g.gather

	buf := recv
	if p.hasSend {
		buf = make([]T, total)
	}
	for i := len(p.recvIDs) - 1; i >= 0; i-- {
		chunk := buf[p.recvOffsets[i] : p.recvOffsets[i]+p.recvLengths[i]]
		n, err := comm.Receive(g.comm, chunk, p.recvIDs[i], g.tag)
		if err != nil {
			return essentials.AddCtx("subgroup gather", err)
		} else if n != len(chunk) {
			return fmt.Errorf("subgroup gather: expected %d elements from %d but got %d",
				len(chunk), p.recvIDs[i], n)
		}
	}
	copy(buf[length*g.myLocalRank:], data)
	if p.hasSend {
		chunk := buf[p.sendOffset : p.sendOffset+p.sendLength]
		if err := comm.Send(g.comm, chunk, p.sendID, g.tag); err != nil {
			return essentials.AddCtx("subgroup gather", err)
		}
	}
	return nil
}

// AllReduceUniqueList computes the sorted union of every
// member's list, without duplicates, on every member.
func AllReduceUniqueList[T comm.Scalar](g *SubGroup, list []T) ([]T, error) {
	myList := MakeSortedUnique(list)
	for _, from := range g.fanInFrom {
		length := []int64{0}
		if _, err := comm.Receive(g.comm, length, g.members[from], g.tag); err != nil {
			return nil, essentials.AddCtx("subgroup unique list", err)
		}
		transfer := make([]T, length[0])
		if _, err := comm.Receive(g.comm, transfer, g.members[from], g.tag); err != nil {
			return nil, essentials.AddCtx("subgroup unique list", err)
		}
		myList = MergeSortedUnique(myList, transfer)
	}
	if g.fanInTo >= 0 {
		length := []int64{int64(len(myList))}
		if err := comm.Send(g.comm, length, g.members[g.fanInTo], g.tag); err != nil {
			return nil, essentials.AddCtx("subgroup unique list", err)
		}
		if err := comm.Send(g.comm, myList, g.members[g.fanInTo], g.tag); err != nil {
			return nil, essentials.AddCtx("subgroup unique list", err)
		}
	}

	length := []int64{int64(len(myList))}
	if err := Broadcast(g, length, 0); err != nil {
		return nil, essentials.AddCtx("subgroup unique list", err)
	}
	if g.myLocalRank != 0 {
		myList = make([]T, length[0])
	}
	if err := Broadcast(g, myList, 0); err != nil {
		return nil, essentials.AddCtx("subgroup unique list", err)
	}
	return myList, nil
}

// MakeSortedUnique returns a sorted copy of list with
// duplicates removed.
func MakeSortedUnique[T comm.Scalar](list []T) []T {
	res := append([]T{}, list...)
	slices.Sort(res)
	return slices.Compact(res)
}

// MergeSortedUnique merges two sorted lists without
// duplicates into a sorted list without duplicates.
func MergeSortedUnique[T comm.Scalar](a, b []T) []T {
	res := make([]T, 0, len(a)+len(b))
	var i, j int
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			res = append(res, a[i])
			i++
		case b[j] < a[i]:
			res = append(res, b[j])
			j++
		default:
			res = append(res, a[i])
			i++
			j++
		}
	}
	res = append(res, a[i:]...)
	return append(res, b[j:]...)
}
