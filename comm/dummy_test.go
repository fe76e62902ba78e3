package comm

import "testing"

func TestDummyCommunicator(t *testing.T) {
	var c DummyCommunicator
	if err := Send(c, []int32{1}, 0, 100); err == nil {
		t.Error("send should fail")
	}
	if _, err := Receive(c, []int32{1}, 0, 100); err == nil {
		t.Error("receive should fail")
	}

	// Collectives on a single rank never touch the network.
	data := []float64{1, 2}
	if err := Broadcast(c, data, 0); err != nil {
		t.Error(err)
	}
	recv := make([]float64, 2)
	if err := AllReduce(c, data, recv, Sum); err != nil {
		t.Error(err)
	} else if recv[0] != 1 || recv[1] != 2 {
		t.Errorf("unexpected reduction: %v", recv)
	}
	if err := Gather(c, data, recv, 0); err != nil {
		t.Error(err)
	}
	if err := Barrier(c); err != nil {
		t.Error(err)
	}
}

func TestGatherVLocalLength(t *testing.T) {
	var c DummyCommunicator
	recv := make([]int32, 4)
	if err := GatherV(c, []int32{1, 2, 3}, recv, []int{2}, []int{0}, 0); err == nil {
		t.Error("a longer local send should fail")
	}
	if err := GatherV(c, []int32{1}, recv, []int{2}, []int{0}, 0); err == nil {
		t.Error("a shorter local send should fail")
	}
	if err := GatherV(c, []int32{5, 6}, recv, []int{2}, []int{1}, 0); err != nil {
		t.Error(err)
	} else if recv[1] != 5 || recv[2] != 6 {
		t.Errorf("unexpected gather: %v", recv)
	}
}
