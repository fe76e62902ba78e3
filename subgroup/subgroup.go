// Package subgroup implements O(log N) collectives over a
// contiguous range of ranks, using only point-to-point
// messages.
//
// Reductions and broadcasts move along a fan-in tree that
// is rooted at local rank 0. Gathers use a separate
// bisection pattern.
//
// A SubGroup is not safe for concurrent use. Collectives
// with a non-zero root temporarily rearrange the tree.
package subgroup

import (
	"fmt"
	"strings"

	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// A SubGroup is a contiguous range of ranks of a
// Communicator that take part in collectives together.
type SubGroup struct {
	comm comm.Communicator
	tag  int

	members     []int
	myLocalRank int

	// fanInTo is the local rank this rank sends partial
	// results to, or -1 at the root of the tree.
	fanInTo   int
	fanInFrom []int

	gather gatherPattern
}

type gatherPattern struct {
	valid  bool
	root   int
	length int

	recvIDs     []int
	recvOffsets []int
	recvLengths []int

	sendID     int
	sendOffset int
	sendLength int
	hasSend    bool
}

// New creates a SubGroup of ranks p0 through p1 of c,
// inclusive. The local rank me must be in the range.
//
// Every message of the group uses the given tag.
func New(p0, p1, me, tag int, c comm.Communicator) (*SubGroup, error) {
	if p0 < 0 || p1 < p0 || p1 >= c.NumberOfProcesses() {
		return nil, fmt.Errorf("subgroup: bad range [%d, %d] for %d processes", p0, p1,
			c.NumberOfProcesses())
	}
	if me < p0 || me > p1 {
		return nil, fmt.Errorf("subgroup: rank %d is outside [%d, %d]", me, p0, p1)
	}
	g := &SubGroup{
		comm:        c,
		tag:         tag,
		members:     make([]int, p1-p0+1),
		myLocalRank: me - p0,
	}
	for i := range g.members {
		g.members[i] = p0 + i
	}
	g.computeFanInTargets()
	return g, nil
}

// NumberOfMembers returns the size of the group.
func (g *SubGroup) NumberOfMembers() int {
	return len(g.members)
}

// LocalRank returns the local process's position in the
// group.
func (g *SubGroup) LocalRank() int {
	return g.myLocalRank
}

// LocalRankOf returns the position of a communicator rank
// in the group, or -1 if it is not a member.
func (g *SubGroup) LocalRankOf(processID int) int {
	for i, id := range g.members {
		if id == processID {
			return i
		}
	}
	return -1
}

// computeFanInTargets finds the neighbors of the local
// rank in the fan-in tree.
//
// Each power of two i pairs the local rank with rank^i.
// The first partner below the local rank is the target,
// and every partner above it before that is a source.
func (g *SubGroup) computeFanInTargets() {
	g.fanInTo = -1
	g.fanInFrom = g.fanInFrom[:0]
	for i := 1; i < len(g.members); i <<= 1 {
		other := g.myLocalRank ^ i
		if other >= len(g.members) {
			continue
		}
		if other < g.myLocalRank {
			g.fanInTo = other
			break
		}
		g.fanInFrom = append(g.fanInFrom, other)
	}
}

// setUpRoot moves the local rank root to the top of the
// fan-in tree by swapping it with local rank 0.
func (g *SubGroup) setUpRoot(root int) {
	if root == 0 {
		return
	}
	g.swapRoot(root)
}

// restoreRoot undoes setUpRoot.
func (g *SubGroup) restoreRoot(root int) {
	if root == 0 {
		return
	}
	g.swapRoot(root)
}

func (g *SubGroup) swapRoot(root int) {
	g.members[0], g.members[root] = g.members[root], g.members[0]
	if g.myLocalRank == root {
		g.myLocalRank = 0
	} else if g.myLocalRank == 0 {
		g.myLocalRank = root
	}
	g.computeFanInTargets()
}

func (g *SubGroup) checkRoot(root int) error {
	if root < 0 || root >= len(g.members) {
		return fmt.Errorf("%w: root %d of a group of %d", comm.ErrInvalidRank, root,
			len(g.members))
	}
	return nil
}

// setGatherPattern computes who sends which slice of the
// gathered buffer to whom, by repeatedly bisecting the
// range of local ranks.
func (g *SubGroup) setGatherPattern(root, length int) {
	p := &g.gather
	if p.valid && p.root == root && p.length == length {
		return
	}
	*p = gatherPattern{valid: true, root: root, length: length}

	var clogn int
	for 1<<clogn < len(g.members) {
		clogn++
	}
	left, right := 0, len(g.members)-1
	iroot := root
	for i := 0; i < clogn; i++ {
		mid := (left + right) / 2
		var src int
		if iroot <= mid {
			if iroot == left {
				src = mid + 1
			} else {
				src = right
			}
		} else {
			if iroot == right {
				src = mid
			} else {
				src = left
			}
		}
		var offset, count int
		if src <= mid {
			offset, count = left, mid-left+1
		} else {
			offset, count = mid+1, right-mid
		}
		if g.myLocalRank == iroot {
			p.recvIDs = append(p.recvIDs, g.members[src])
			p.recvOffsets = append(p.recvOffsets, offset*length)
			p.recvLengths = append(p.recvLengths, count*length)
		} else if g.myLocalRank == src {
			p.sendID = g.members[iroot]
			p.sendOffset = offset * length
			p.sendLength = count * length
			p.hasSend = true
		}
		if g.myLocalRank <= mid {
			if iroot > mid {
				iroot = src
			}
			right = mid
		} else {
			if iroot <= mid {
				iroot = src
			}
			left = mid + 1
		}
		if left == right {
			break
		}
	}
}

// Barrier blocks until every member has called Barrier.
func (g *SubGroup) Barrier() error {
	junk := []float32{0}
	result := []float32{0}
	if err := ReduceMin(g, junk, result, 0); err != nil {
		return essentials.AddCtx("subgroup barrier", err)
	}
	if err := Broadcast(g, junk, 0); err != nil {
		return essentials.AddCtx("subgroup barrier", err)
	}
	return nil
}

// String describes the group and the local rank's place in
// the fan-in tree.
func (g *SubGroup) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SubGroup(tag=%d, members=%v, localRank=%d)\n", g.tag, g.members,
		g.myLocalRank)
	if g.fanInTo >= 0 {
		fmt.Fprintf(&b, "  fan in to: %d\n", g.fanInTo)
	}
	if len(g.fanInFrom) > 0 {
		fmt.Fprintf(&b, "  fan in from: %v\n", g.fanInFrom)
	}
	if g.gather.valid {
		p := &g.gather
		fmt.Fprintf(&b, "  gather (root=%d, length=%d): recv from %v at %v lengths %v",
			p.root, p.length, p.recvIDs, p.recvOffsets, p.recvLengths)
		if p.hasSend {
			fmt.Fprintf(&b, ", send %d at %d to %d", p.sendLength, p.sendOffset, p.sendID)
		}
		b.WriteString("\n")
	}
	return b.String()
}
