package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/unixpickle/essentials"

	"github.com/Kitware/VTK-sub105/allreduce"
	"github.com/Kitware/VTK-sub105/comm"
	"github.com/Kitware/VTK-sub105/inproc"
	"github.com/Kitware/VTK-sub105/subgroup"
)

// RunInfo describes a specific world configuration.
type RunInfo struct {
	NumNodes int
	Size     int
}

// An AllreduceFn sums a vector across every rank.
type AllreduceFn func(c comm.Communicator, vec []float64) error

// Run creates a world and runs fn on every rank, returning
// the wall-clock time it took.
func (r *RunInfo) Run(fn AllreduceFn) time.Duration {
	start := time.Now()
	essentials.Must(inproc.Spawn(r.NumNodes, func(c *inproc.Communicator) {
		vec := make([]float64, r.Size)
		essentials.Must(fn(c, vec))
	}))
	return time.Since(start)
}

func wrapped(r allreduce.Allreducer) AllreduceFn {
	return func(c comm.Communicator, vec []float64) error {
		return comm.AllReduce(allreduce.Wrap(c, r), vec, vec, comm.Sum)
	}
}

func main() {
	var repeat int
	flag.IntVar(&repeat, "repeat", 3, "number of runs to average for each entry")
	flag.Parse()

	reducers := []AllreduceFn{
		func(c comm.Communicator, vec []float64) error {
			return comm.AllReduce(c, vec, vec, comm.Sum)
		},
		wrapped(allreduce.NaiveAllreducer{}),
		wrapped(allreduce.TreeAllreducer{}),
		wrapped(allreduce.StreamAllreducer{}),
		func(c comm.Communicator, vec []float64) error {
			g, err := subgroup.New(0, c.NumberOfProcesses()-1, c.LocalProcessID(), 200, c)
			if err != nil {
				return err
			}
			if err := subgroup.ReduceSum(g, vec, vec, 0); err != nil {
				return err
			}
			return subgroup.Broadcast(g, vec, 0)
		},
	}
	reducerNames := []string{"Default", "Naive", "Tree", "Stream", "SubGroup"}
	var runs []RunInfo
	for _, numNodes := range []int{2, 16, 32} {
		for _, size := range []int{10, 10000, 1000000} {
			runs = append(runs, RunInfo{NumNodes: numNodes, Size: size})
		}
	}

	// Markdown table header.
	fmt.Print("| Nodes | Size ")
	for _, reducerName := range reducerNames {
		fmt.Printf("| %s ", reducerName)
	}
	fmt.Println("|")
	for i := 0; i < 2+len(reducers); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for _, runInfo := range runs {
		fmt.Printf("| %d | %d ", runInfo.NumNodes, runInfo.Size)
		for _, reducer := range reducers {
			var total time.Duration
			for i := 0; i < repeat; i++ {
				total += runInfo.Run(reducer)
			}
			fmt.Printf("| %s ", total/time.Duration(repeat))
		}
		fmt.Println("|")
	}
}
