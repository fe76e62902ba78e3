package comm

import (
	"github.com/unixpickle/essentials"
)

// A ProcessGroup is an ordered subset of the ranks of a
// parent Communicator.
//
// The position of a rank within the group is its rank in
// any SubCommunicator built from the group.
// Every rank in the group is a valid rank of the parent,
// and no rank appears twice.
type ProcessGroup struct {
	comm Communicator
	ids  []int
}

// NewProcessGroup creates a group containing every rank
// of c, in order.
func NewProcessGroup(c Communicator) *ProcessGroup {
	g := &ProcessGroup{}
	g.Initialize(c)
	return g
}

// Initialize binds the group to c and resets its
// membership to every rank of c.
func (p *ProcessGroup) Initialize(c Communicator) {
	p.comm = c
	p.ids = make([]int, c.NumberOfProcesses())
	for i := range p.ids {
		p.ids[i] = i
	}
}

// Copy makes p an independent copy of other.
func (p *ProcessGroup) Copy(other *ProcessGroup) {
	p.comm = other.comm
	p.ids = append([]int{}, other.ids...)
}

// Communicator returns the parent communicator.
func (p *ProcessGroup) Communicator() Communicator {
	return p.comm
}

// NumberOfProcessIDs returns the size of the group.
func (p *ProcessGroup) NumberOfProcessIDs() int {
	return len(p.ids)
}

// ProcessID returns the parent rank at a position in the
// group.
func (p *ProcessGroup) ProcessID(pos int) int {
	return p.ids[pos]
}

// ProcessIDs returns a copy of the parent ranks, in group
// order.
func (p *ProcessGroup) ProcessIDs() []int {
	return append([]int{}, p.ids...)
}

// FindProcessID returns the position of a parent rank in
// the group, or -1 if it is not a member.
func (p *ProcessGroup) FindProcessID(id int) int {
	for i, x := range p.ids {
		if x == id {
			return i
		}
	}
	return -1
}

// LocalProcessID returns the position of the parent's
// local rank in the group, or -1 if the local process is
// not a member.
func (p *ProcessGroup) LocalProcessID() int {
	return p.FindProcessID(p.comm.LocalProcessID())
}

// AddProcessID appends a parent rank to the group and
// returns its position.
//
// If the rank is already a member, its existing position
// is returned.
func (p *ProcessGroup) AddProcessID(id int) (int, error) {
	if err := CheckRank(p.comm, id); err != nil {
		return -1, essentials.AddCtx("add process id", err)
	}
	if essentials.Contains(p.ids, id) {
		return p.FindProcessID(id), nil
	}
	p.ids = append(p.ids, id)
	return len(p.ids) - 1, nil
}

// RemoveProcessID removes a parent rank from the group.
// Later members shift down by one position.
//
// Returns false if the rank was not a member.
func (p *ProcessGroup) RemoveProcessID(id int) bool {
	pos := p.FindProcessID(id)
	if pos < 0 {
		return false
	}
	essentials.OrderedDelete(&p.ids, pos)
	return true
}

// RemoveAllProcessIDs empties the group.
func (p *ProcessGroup) RemoveAllProcessIDs() {
	p.ids = p.ids[:0]
}
