package subgroup

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/Kitware/VTK-sub105/comm"
	"github.com/Kitware/VTK-sub105/inproc"
)

var groupSizes = []int{1, 2, 3, 4, 5, 8, 16}

type fakeComm struct {
	comm.DummyCommunicator
	size int
}

func (f fakeComm) NumberOfProcesses() int {
	return f.size
}

func topology(t *testing.T, n int) []*SubGroup {
	groups := make([]*SubGroup, n)
	for me := 0; me < n; me++ {
		g, err := New(0, n-1, me, 200, fakeComm{size: n})
		if err != nil {
			t.Fatal(err)
		}
		groups[me] = g
	}
	return groups
}

func TestFanInTopology(t *testing.T) {
	for _, n := range groupSizes {
		t.Run(fmt.Sprintf("N=%d", n), func(t *testing.T) {
			groups := topology(t, n)
			var maxDepth int
			for 1<<maxDepth < n {
				maxDepth++
			}
			for me, g := range groups {
				if me == 0 {
					if g.fanInTo != -1 {
						t.Errorf("root fans in to %d", g.fanInTo)
					}
				} else if g.fanInTo < 0 || g.fanInTo >= me {
					t.Errorf("rank %d: bad fan-in target %d", me, g.fanInTo)
					continue
				}
				for _, from := range g.fanInFrom {
					if groups[from].fanInTo != me {
						t.Errorf("rank %d receives from %d, which sends to %d", me, from,
							groups[from].fanInTo)
					}
				}
				depth := 0
				for r := me; r != 0; r = groups[r].fanInTo {
					depth++
					if depth > maxDepth {
						t.Fatalf("rank %d: path to root is longer than %d", me, maxDepth)
					}
				}
			}
			var edges int
			for _, g := range groups {
				edges += len(g.fanInFrom)
			}
			if edges != n-1 {
				t.Errorf("expected %d edges but got %d", n-1, edges)
			}
		})
	}
}

func TestRootRelocation(t *testing.T) {
	for _, n := range groupSizes {
		for _, g := range topology(t, n) {
			for root := 0; root < n; root++ {
				members := append([]int{}, g.members...)
				localRank := g.myLocalRank
				fanInTo := g.fanInTo
				fanInFrom := append([]int{}, g.fanInFrom...)

				g.setUpRoot(root)
				if g.myLocalRank == 0 && localRank != root {
					t.Errorf("n=%d root=%d: rank %d became the root", n, root, localRank)
				}
				g.restoreRoot(root)

				if g.myLocalRank != localRank || g.fanInTo != fanInTo ||
					!reflect.DeepEqual(g.members, members) ||
					!reflect.DeepEqual(append([]int{}, g.fanInFrom...), fanInFrom) {
					t.Errorf("n=%d root=%d: rank %d was not restored", n, root, localRank)
				}
			}
		}
	}
}

func TestNewErrors(t *testing.T) {
	c := fakeComm{size: 4}
	if _, err := New(0, 4, 0, 200, c); err == nil {
		t.Error("range past the communicator should fail")
	}
	if _, err := New(1, 2, 0, 200, c); err == nil {
		t.Error("rank outside the range should fail")
	}
	g, err := New(1, 3, 2, 200, c)
	if err != nil {
		t.Fatal(err)
	}
	if g.LocalRank() != 1 || g.NumberOfMembers() != 3 || g.LocalRankOf(3) != 2 ||
		g.LocalRankOf(0) != -1 {
		t.Errorf("unexpected group: %s", g)
	}
}

// runGroup runs f on ranks p0 through p1 of a world with
// worldSize ranks. Ranks outside the range stay idle.
func runGroup(t *testing.T, worldSize, p0, p1 int, f func(g *SubGroup)) {
	err := inproc.Spawn(worldSize, func(c *inproc.Communicator) {
		me := c.LocalProcessID()
		if me < p0 || me > p1 {
			return
		}
		g, err := New(p0, p1, me, 200, c)
		if err != nil {
			t.Error(err)
			return
		}
		f(g)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReduceSum(t *testing.T) {
	for _, n := range groupSizes {
		for root := 0; root < n; root += 2 {
			runGroup(t, n+2, 1, n, func(g *SubGroup) {
				ones := []int32{1, 2}
				result := make([]int32, 2)
				if err := ReduceSum(g, ones, result, root); err != nil {
					t.Error(err)
					return
				}
				if g.LocalRank() == root && (result[0] != int32(n) || result[1] != int32(2*n)) {
					t.Errorf("n=%d root=%d: got %v", n, root, result)
				}
			})
		}
	}
}

func TestReduceMinMax(t *testing.T) {
	runGroup(t, 7, 0, 6, func(g *SubGroup) {
		data := []float64{float64(g.LocalRank()), -float64(g.LocalRank())}
		result := make([]float64, 2)
		if err := ReduceMax(g, data, result, 3); err != nil {
			t.Error(err)
			return
		}
		if g.LocalRank() == 3 && (result[0] != 6 || result[1] != 0) {
			t.Errorf("max: got %v", result)
		}
		if err := ReduceMin(g, data, result, 0); err != nil {
			t.Error(err)
			return
		}
		if g.LocalRank() == 0 && (result[0] != 0 || result[1] != -6) {
			t.Errorf("min: got %v", result)
		}
	})
}

func TestBroadcast(t *testing.T) {
	for _, n := range groupSizes {
		for root := 0; root < n; root++ {
			runGroup(t, n, 0, n-1, func(g *SubGroup) {
				data := []int64{0, 0, 0}
				if g.LocalRank() == root {
					data = []int64{int64(root), 7, -1}
				}
				if err := Broadcast(g, data, root); err != nil {
					t.Error(err)
					return
				}
				if !reflect.DeepEqual(data, []int64{int64(root), 7, -1}) {
					t.Errorf("n=%d root=%d rank=%d: got %v", n, root, g.LocalRank(), data)
				}
			})
		}
	}
}

func TestGather(t *testing.T) {
	for _, n := range groupSizes {
		for root := 0; root < n; root++ {
			runGroup(t, n+1, 1, n, func(g *SubGroup) {
				me := g.LocalRank()
				data := []float32{float32(me * 10), float32(me*10 + 1)}
				var recv []float32
				if me == root {
					recv = make([]float32, 2*n)
				}
				// Gather twice to exercise the cached pattern.
				for i := 0; i < 2; i++ {
					if err := Gather(g, data, recv, root); err != nil {
						t.Error(err)
						return
					}
				}
				if me != root {
					return
				}
				for r := 0; r < n; r++ {
					if recv[2*r] != float32(r*10) || recv[2*r+1] != float32(r*10+1) {
						t.Errorf("n=%d root=%d: bad data %v", n, root, recv)
						return
					}
				}
			})
		}
	}
}

func TestBarrier(t *testing.T) {
	runGroup(t, 9, 2, 8, func(g *SubGroup) {
		for i := 0; i < 3; i++ {
			if err := g.Barrier(); err != nil {
				t.Error(err)
				return
			}
		}
	})
}

func TestAllReduceUniqueList(t *testing.T) {
	for _, n := range groupSizes {
		runGroup(t, n, 0, n-1, func(g *SubGroup) {
			me := g.LocalRank()
			list := []int{me, me + 1, me, 100}
			res, err := AllReduceUniqueList(g, list)
			if err != nil {
				t.Error(err)
				return
			}
			var expected []int
			for i := 0; i <= n; i++ {
				expected = append(expected, i)
			}
			if n < 100 {
				expected = append(expected, 100)
			}
			if !reflect.DeepEqual(res, expected) {
				t.Errorf("n=%d rank=%d: got %v", n, me, res)
			}
		})
	}
}

func TestMergeSortedUnique(t *testing.T) {
	res := MergeSortedUnique([]int32{1, 3, 5, 9}, []int32{2, 3, 9, 10, 11})
	if !reflect.DeepEqual(res, []int32{1, 2, 3, 5, 9, 10, 11}) {
		t.Errorf("unexpected merge: %v", res)
	}
	res = MakeSortedUnique([]int32{5, 1, 5, 3, 1})
	if !reflect.DeepEqual(res, []int32{1, 3, 5}) {
		t.Errorf("unexpected unique list: %v", res)
	}
}
