package controller

import (
	"testing"

	"github.com/Kitware/VTK-sub105/comm"
)

func TestPartitionController(t *testing.T) {
	err := Spawn(6, func(c *Controller) {
		rank := c.LocalProcessID()
		sub, err := c.PartitionController(rank%2, -rank)
		if err != nil {
			t.Error(err)
			return
		} else if sub == nil {
			t.Errorf("rank %d: no sub-controller", rank)
			return
		}
		if sub.NumberOfProcesses() != 3 {
			t.Errorf("rank %d: expected 3 ranks but got %d", rank, sub.NumberOfProcesses())
		}
		if sub.LocalProcessID() != 2-rank/2 {
			t.Errorf("rank %d: unexpected local rank %d", rank, sub.LocalProcessID())
		}

		members := make([]int32, 3)
		if err := comm.AllGather(sub.Communicator(), []int32{int32(rank)}, members); err != nil {
			t.Error(err)
			return
		}
		expected := []int32{4, 2, 0}
		if rank%2 == 1 {
			expected = []int32{5, 3, 1}
		}
		for i, x := range expected {
			if members[i] != x {
				t.Errorf("rank %d: expected members %v but got %v", rank, expected, members)
				break
			}
		}

		// RMIs inside a partition stay inside it.
		if sub.LocalProcessID() == 0 {
			for i := 1; i < sub.NumberOfProcesses(); i++ {
				if err := sub.TriggerRMI(i, []byte{byte(rank)}, 100); err != nil {
					t.Error(err)
				}
			}
			if err := sub.TriggerBreakRMIs(); err != nil {
				t.Error(err)
			}
			return
		}
		var got []byte
		sub.AddRMI(100, func(arg []byte, remoteProcessID int) {
			if remoteProcessID != 0 {
				t.Errorf("rank %d: unexpected sender %d", rank, remoteProcessID)
			}
			got = append(got, arg...)
		})
		if err := sub.ProcessRMIs(true, false); err != nil {
			t.Error(err)
		}
		if len(got) != 1 || int(got[0]) != 4+rank%2 {
			t.Errorf("rank %d: unexpected RMI arguments %v", rank, got)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPartitionSingleton(t *testing.T) {
	err := Spawn(3, func(c *Controller) {
		sub, err := c.PartitionController(c.LocalProcessID(), 0)
		if err != nil {
			t.Error(err)
			return
		}
		if sub.NumberOfProcesses() != 1 || sub.LocalProcessID() != 0 {
			t.Errorf("rank %d: expected a single-rank partition", c.LocalProcessID())
		}
		if err := sub.Barrier(); err != nil {
			t.Error(err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateSubController(t *testing.T) {
	err := Spawn(4, func(c *Controller) {
		rank := c.LocalProcessID()
		group := comm.NewProcessGroup(c.Communicator())
		group.RemoveAllProcessIDs()
		for _, id := range []int{3, 1} {
			if _, err := group.AddProcessID(id); err != nil {
				t.Error(err)
				return
			}
		}
		sub, err := c.CreateSubController(group)
		if err != nil {
			t.Error(err)
			return
		}
		if rank%2 == 0 {
			if sub != nil {
				t.Errorf("rank %d: should not be in the group", rank)
			}
			return
		}
		if sub.DispatchMode() != c.DispatchMode() {
			t.Error("dispatch mode was not inherited")
		}

		value := []float64{0}
		if rank == 3 {
			value[0] = 2.5
		}
		if err := comm.Broadcast(sub.Communicator(), value, 0); err != nil {
			t.Error(err)
		} else if value[0] != 2.5 {
			t.Errorf("rank %d: broadcast gave %f", rank, value[0])
		}

		if rank == 3 {
			if err := sub.TriggerRMI(1, nil, 100); err != nil {
				t.Error(err)
			}
			return
		}
		var called bool
		sub.AddRMI(100, func(arg []byte, remoteProcessID int) {
			called = remoteProcessID == 0
		})
		if err := sub.ProcessRMIs(true, true); err != nil {
			t.Error(err)
		}
		if !called {
			t.Error("RMI was not called from sub-rank 0")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCreateSubControllerForeignGroup(t *testing.T) {
	err := Spawn(2, func(c *Controller) {
		group := comm.NewProcessGroup(c.RMICommunicator())
		if _, err := c.CreateSubController(group); err == nil {
			t.Error("expected an error for a foreign group")
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}
