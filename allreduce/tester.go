package allreduce

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/Kitware/VTK-sub105/comm"
	"github.com/Kitware/VTK-sub105/inproc"
)

// RunAllreducerTests runs a battery of tests on an
// Allreducer.
func RunAllreducerTests(t *testing.T, reducer Allreducer) {
	for _, numNodes := range []int{1, 2, 5, 15, 16, 17} {
		for _, size := range []int{0, 1337} {
			testName := fmt.Sprintf("Nodes=%d,Size=%d", numNodes, size)
			t.Run(testName, func(t *testing.T) {
				vectors := make([][]float64, numNodes)
				sum := make([]float64, size)
				for i := range vectors {
					vectors[i] = make([]float64, size)
					for j := range vectors[i] {
						vectors[i][j] = rand.NormFloat64()
						sum[j] += vectors[i][j]
					}
				}

				results := make([][]float64, numNodes)
				err := inproc.Spawn(numNodes, func(c *inproc.Communicator) {
					idx := c.LocalProcessID()
					h := &Host{Comm: c, Tag: DefaultTag, Type: comm.Float64}
					res, err := reducer.Allreduce(h, comm.Bytes(vectors[idx]), comm.Sum)
					if err != nil {
						t.Error(err)
						return
					}
					results[idx] = comm.Slice[float64](res)
				})
				if err != nil {
					t.Fatal(err)
				}
				if t.Failed() {
					return
				}

				for i, res := range results[1:] {
					if len(res) != size {
						t.Errorf("result %d has length %d but expected %d", i, len(res), size)
						continue
					}
					for j, actual := range res {
						if actual != results[0][j] {
							t.Errorf("result %d is not identical to result 0", i)
							break
						}
					}
				}

				for i, x := range sum {
					if math.Abs(x-results[0][i]) > 1e-5 {
						t.Errorf("sum is incorrect (expected %f but got %f at component %d)",
							x, results[0][i], i)
						break
					}
				}
			})
		}
	}
}
