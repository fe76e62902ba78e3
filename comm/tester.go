package comm

import (
	"fmt"
	"testing"
)

// A Spawner runs f once per rank on a fresh set of
// numProcs connected communicators and waits for every
// call to return.
type Spawner func(numProcs int, f func(c Communicator)) error

// RunCollectiveTests runs a battery of collective tests
// on the communicators produced by spawn.
//
// The communicators only need to implement the two
// point-to-point primitives; any collective overrides they
// provide are tested as well.
func RunCollectiveTests(t *testing.T, spawn Spawner) {
	for _, numProcs := range []int{1, 2, 5, 15, 16, 17} {
		for _, size := range []int{0, 13} {
			testName := fmt.Sprintf("Procs=%d,Size=%d", numProcs, size)
			t.Run(testName, func(t *testing.T) {
				tests := []struct {
					name string
					fn   func(t *testing.T, c Communicator, size int)
				}{
					{"Broadcast", testBroadcast},
					{"Gather", testGather},
					{"GatherV", testGatherV},
					{"Scatter", testScatter},
					{"ScatterV", testScatterV},
					{"AllGather", testAllGather},
					{"AllGatherVArray", testAllGatherVArray},
					{"Reduce", testReduce},
					{"AllReduce", testAllReduce},
					{"RankOrder", testRankOrder},
					{"Barrier", testBarrier},
					{"Stream", testBroadcastStream},
				}
				for _, test := range tests {
					fn := test.fn
					t.Run(test.name, func(t *testing.T) {
						err := spawn(numProcs, func(c Communicator) {
							fn(t, c, size)
						})
						if err != nil {
							t.Fatal(err)
						}
					})
				}
			})
		}
	}
}

func rankVector(rank, size int) []float64 {
	res := make([]float64, size)
	for i := range res {
		res[i] = float64(rank*1000 + i)
	}
	return res
}

func testBroadcast(t *testing.T, c Communicator, size int) {
	root := c.NumberOfProcesses() - 1
	data := make([]float64, size)
	if c.LocalProcessID() == root {
		copy(data, rankVector(root, size))
	}
	if err := Broadcast(c, data, root); err != nil {
		t.Error(err)
		return
	}
	expectEqual(t, c, "broadcast", data, rankVector(root, size))
}

func testGather(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	dest := n / 2
	var recv []float64
	if c.LocalProcessID() == dest {
		recv = make([]float64, size*n)
	}
	if err := Gather(c, rankVector(c.LocalProcessID(), size), recv, dest); err != nil {
		t.Error(err)
		return
	}
	if c.LocalProcessID() == dest {
		for i := 0; i < n; i++ {
			expectEqual(t, c, "gather", recv[i*size:(i+1)*size], rankVector(i, size))
		}
	}
}

func testGatherV(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	me := c.LocalProcessID()
	send := rankVector(me, (me+size)%3)
	recv, lengths, offsets, err := GatherVArray(c, send, 0)
	if err != nil {
		t.Error(err)
		return
	}
	if me != 0 {
		return
	}
	for i := 0; i < n; i++ {
		if lengths[i] != (i+size)%3 {
			t.Errorf("rank %d: bad length %d for rank %d", me, lengths[i], i)
			return
		}
		expectEqual(t, c, "gatherv", recv[offsets[i]:offsets[i]+lengths[i]], rankVector(i, lengths[i]))
	}
}

func testScatter(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	var send []float64
	if c.LocalProcessID() == 0 {
		for i := 0; i < n; i++ {
			send = append(send, rankVector(i, size)...)
		}
	}
	recv := make([]float64, size)
	if err := Scatter(c, send, recv, 0); err != nil {
		t.Error(err)
		return
	}
	expectEqual(t, c, "scatter", recv, rankVector(c.LocalProcessID(), size))
}

func testScatterV(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	src := n - 1
	lengths := make([]int, n)
	offsets := make([]int, n)
	var send []float64
	for i := 0; i < n; i++ {
		lengths[i] = (i + size) % 4
		offsets[i] = len(send)
		send = append(send, rankVector(i, lengths[i])...)
	}
	me := c.LocalProcessID()
	recv := make([]float64, lengths[me])
	if err := ScatterV(c, send, recv, lengths, offsets, src); err != nil {
		t.Error(err)
		return
	}
	expectEqual(t, c, "scatterv", recv, rankVector(me, lengths[me]))
}

func testAllGather(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	recv := make([]float64, size*n)
	if err := AllGather(c, rankVector(c.LocalProcessID(), size), recv); err != nil {
		t.Error(err)
		return
	}
	for i := 0; i < n; i++ {
		expectEqual(t, c, "allgather", recv[i*size:(i+1)*size], rankVector(i, size))
	}
}

func testAllGatherVArray(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	me := c.LocalProcessID()
	recv, lengths, offsets, err := AllGatherVArray(c, rankVector(me, (me*size)%5))
	if err != nil {
		t.Error(err)
		return
	}
	for i := 0; i < n; i++ {
		expectEqual(t, c, "allgatherv", recv[offsets[i]:offsets[i]+lengths[i]],
			rankVector(i, (i*size)%5))
	}
}

func testReduce(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	dest := n - 1
	send := make([]int32, size)
	for i := range send {
		send[i] = int32(c.LocalProcessID() + i)
	}
	recv := make([]int32, size)
	if err := Reduce(c, send, recv, Max, dest); err != nil {
		t.Error(err)
		return
	}
	if c.LocalProcessID() == dest {
		expected := make([]int32, size)
		for i := range expected {
			expected[i] = int32(n - 1 + i)
		}
		expectEqual(t, c, "reduce", recv, expected)
	}
}

func testAllReduce(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	send := make([]int64, size)
	for i := range send {
		send[i] = int64(c.LocalProcessID() + i)
	}
	recv := make([]int64, size)
	if err := AllReduce(c, send, recv, Sum); err != nil {
		t.Error(err)
		return
	}
	expected := make([]int64, size)
	for i := range expected {
		expected[i] = int64(n*(n-1)/2 + n*i)
	}
	expectEqual(t, c, "allreduce", recv, expected)
}

// testRankOrder uses non-commutative projections to make
// sure reductions combine values in rank order.
func testRankOrder(t *testing.T, c Communicator, size int) {
	n := c.NumberOfProcesses()
	send := rankVector(c.LocalProcessID(), size)
	first := OperationFunc(func(a, b float64) float64 { return a }, false)
	last := OperationFunc(func(a, b float64) float64 { return b }, false)
	for _, op := range []struct {
		op       Operation
		expected []float64
	}{
		{first, rankVector(0, size)},
		{last, rankVector(n-1, size)},
	} {
		recv := make([]float64, size)
		if err := AllReduce(c, send, recv, op.op); err != nil {
			t.Error(err)
			return
		}
		expectEqual(t, c, "rank order", recv, op.expected)
	}
}

func testBarrier(t *testing.T, c Communicator, size int) {
	for i := 0; i < 3; i++ {
		if err := Barrier(c); err != nil {
			t.Error(err)
			return
		}
	}
}

func testBroadcastStream(t *testing.T, c Communicator, size int) {
	s := &Stream{}
	if c.LocalProcessID() == 0 {
		s.WriteInt(int64(size))
		s.WriteString("payload")
		s.WriteFloat(0.5)
	}
	if err := BroadcastStream(c, s, 0); err != nil {
		t.Error(err)
		return
	}
	if v, err := s.ReadInt(); err != nil || v != int64(size) {
		t.Errorf("rank %d: bad int %d (%v)", c.LocalProcessID(), v, err)
	}
	if v, err := s.ReadString(); err != nil || v != "payload" {
		t.Errorf("rank %d: bad string %q (%v)", c.LocalProcessID(), v, err)
	}
	if v, err := s.ReadFloat(); err != nil || v != 0.5 {
		t.Errorf("rank %d: bad float %f (%v)", c.LocalProcessID(), v, err)
	}
}

func expectEqual[T Scalar](t *testing.T, c Communicator, context string, actual, expected []T) {
	if len(actual) != len(expected) {
		t.Errorf("%s: rank %d got %d elements but expected %d", context, c.LocalProcessID(),
			len(actual), len(expected))
		return
	}
	for i, x := range expected {
		if actual[i] != x {
			t.Errorf("%s: rank %d got %v at %d but expected %v", context, c.LocalProcessID(),
				actual[i], i, x)
			return
		}
	}
}
