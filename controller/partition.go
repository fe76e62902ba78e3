package controller

import (
	"fmt"

	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/comm"
)

// CreateSubController creates a controller for the ranks
// of a group. Rank i of the new controller is the rank at
// position i of the group.
//
// Every rank of the parent must call it with the same
// group. Ranks outside the group get a nil controller.
// The group must be bound to the controller's main
// communicator.
func (c *Controller) CreateSubController(group *comm.ProcessGroup) (*Controller, error) {
	if group.Communicator() != c.comm {
		return nil, essentials.AddCtx("create sub-controller", ErrForeignGroup)
	}
	if group.LocalProcessID() < 0 {
		return nil, nil
	}
	rmiGroup := comm.NewProcessGroup(c.rmiComm)
	rmiGroup.RemoveAllProcessIDs()
	for _, id := range group.ProcessIDs() {
		if _, err := rmiGroup.AddProcessID(id); err != nil {
			return nil, essentials.AddCtx("create sub-controller", err)
		}
	}
	return New(
		comm.NewSubCommunicator(group),
		WithDispatchMode(c.mode),
		WithRMICommunicator(comm.NewSubCommunicator(rmiGroup)),
	), nil
}

// PartitionController splits the ranks by color, like
// MPI_Comm_split.
//
// Ranks with the same color join a sub-controller, ordered
// by key and then by their rank in c. The sub-controller
// for the local rank's color is returned.
// Every rank must call PartitionController.
func (c *Controller) PartitionController(color, key int) (*Controller, error) {
	n := c.NumberOfProcesses()
	all := make([]int64, 2*n)
	if err := comm.AllGather(c.comm, []int64{int64(color), int64(key)}, all); err != nil {
		return nil, essentials.AddCtx("partition controller", err)
	}

	type member struct {
		rank int
		key  int64
	}
	var result *Controller
	inPartition := make([]bool, n)
	for i := 0; i < n; i++ {
		if inPartition[i] {
			continue
		}
		targetColor := all[2*i]
		var members []member
		for j := i; j < n; j++ {
			if all[2*j] == targetColor {
				inPartition[j] = true
				members = append(members, member{rank: j, key: all[2*j+1]})
			}
		}
		essentials.VoodooSort(members, func(a, b int) bool {
			if members[a].key != members[b].key {
				return members[a].key < members[b].key
			}
			return members[a].rank < members[b].rank
		})

		group := comm.NewProcessGroup(c.comm)
		group.RemoveAllProcessIDs()
		for _, m := range members {
			if _, err := group.AddProcessID(m.rank); err != nil {
				return nil, essentials.AddCtx("partition controller", err)
			}
		}
		sub, err := c.CreateSubController(group)
		if err != nil {
			return nil, essentials.AddCtx("partition controller", err)
		}
		if sub != nil {
			if result != nil {
				return nil, fmt.Errorf("partition controller: rank %d is in more than one partition",
					c.LocalProcessID())
			}
			result = sub
		}
	}
	return result, nil
}
