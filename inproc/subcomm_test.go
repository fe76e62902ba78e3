package inproc

import (
	"testing"

	"github.com/Kitware/VTK-sub105/comm"
)

func TestSubCommunicatorCollectives(t *testing.T) {
	err := Spawn(5, func(c *Communicator) {
		g := comm.NewProcessGroup(c)
		g.RemoveAllProcessIDs()
		for _, id := range []int{4, 2, 0} {
			g.AddProcessID(id)
		}
		sub := comm.NewSubCommunicator(g)
		if sub.LocalProcessID() == -1 {
			if c.LocalProcessID() != 1 && c.LocalProcessID() != 3 {
				t.Errorf("rank %d should be in the group", c.LocalProcessID())
			}
			return
		}
		if sub.NumberOfProcesses() != 3 {
			t.Errorf("expected 3 processes but got %d", sub.NumberOfProcesses())
		}

		data := []int32{0}
		if sub.LocalProcessID() == 0 {
			data[0] = 77
		}
		if err := comm.Broadcast[int32](sub, data, 0); err != nil {
			t.Error(err)
			return
		}
		if data[0] != 77 {
			t.Errorf("parent rank %d: broadcast gave %d", c.LocalProcessID(), data[0])
		}

		sum := []int64{0}
		send := []int64{int64(c.LocalProcessID())}
		if err := comm.AllReduce[int64](sub, send, sum, comm.Sum); err != nil {
			t.Error(err)
			return
		}
		if sum[0] != 6 {
			t.Errorf("parent rank %d: sum gave %d", c.LocalProcessID(), sum[0])
		}

		// Sub-rank 0 is parent rank 4.
		first := comm.OperationFunc(func(a, b int64) int64 { return a }, false)
		if err := comm.AllReduce[int64](sub, send, sum, first); err != nil {
			t.Error(err)
			return
		}
		if sum[0] != 4 {
			t.Errorf("parent rank %d: first gave %d", c.LocalProcessID(), sum[0])
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}
