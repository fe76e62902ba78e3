package comm

import (
	"fmt"

	"github.com/unixpickle/essentials"
)

// A SubCommunicator is a Communicator restricted to the
// ranks of a ProcessGroup.
//
// Rank i of the SubCommunicator is the parent rank at
// position i of the group.
// Messages travel through the parent with the same tags,
// so traffic on the parent and on sub-communicators built
// from it can collide if they share tags.
type SubCommunicator struct {
	group ProcessGroup
}

// NewSubCommunicator creates a SubCommunicator for a
// snapshot of the group. Later changes to the group do
// not affect the SubCommunicator.
func NewSubCommunicator(group *ProcessGroup) *SubCommunicator {
	s := &SubCommunicator{}
	s.group.Copy(group)
	return s
}

// Group returns a copy of the group.
func (s *SubCommunicator) Group() *ProcessGroup {
	g := &ProcessGroup{}
	g.Copy(&s.group)
	return g
}

// Parent returns the communicator the group is bound to.
func (s *SubCommunicator) Parent() Communicator {
	return s.group.Communicator()
}

// NumberOfProcesses returns the size of the group.
func (s *SubCommunicator) NumberOfProcesses() int {
	return s.group.NumberOfProcessIDs()
}

// LocalProcessID returns the local process's position in
// the group, or -1 if the local process is not a member.
func (s *SubCommunicator) LocalProcessID() int {
	return s.group.LocalProcessID()
}

// SendVoidArray sends to the parent rank at position
// remote of the group.
func (s *SubCommunicator) SendVoidArray(data []byte, typ DataType, remote, tag int) error {
	parentRank, err := s.translate(remote)
	if err != nil {
		return essentials.AddCtx("sub-communicator send", err)
	}
	return s.Parent().SendVoidArray(data, typ, parentRank, tag)
}

// ReceiveVoidArray receives from the parent rank at
// position remote of the group.
//
// An AnySource receive is passed to the parent unchanged,
// so it may match a message from outside the group.
func (s *SubCommunicator) ReceiveVoidArray(data []byte, typ DataType, remote, tag int) (int, error) {
	parentRank := AnySource
	if remote != AnySource {
		var err error
		parentRank, err = s.translate(remote)
		if err != nil {
			return 0, essentials.AddCtx("sub-communicator receive", err)
		}
	}
	return s.Parent().ReceiveVoidArray(data, typ, parentRank, tag)
}

func (s *SubCommunicator) translate(rank int) (int, error) {
	if rank < 0 || rank >= s.group.NumberOfProcessIDs() {
		return 0, fmt.Errorf("%w: %d is outside a group of %d", ErrInvalidRank, rank,
			s.group.NumberOfProcessIDs())
	}
	return s.group.ProcessID(rank), nil
}
