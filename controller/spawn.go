package controller

import (
	"github.com/Kitware/VTK-sub105/inproc"
)

// Spawn runs f on n in-process controllers, one Goroutine
// per rank, and waits for all of them to return.
//
// Each controller sends RMIs on a duplicate of its
// communicator, so RMI and user messages never collide.
//
// If every rank blocks in a receive at once, the pending
// receives fail and Spawn returns inproc.ErrDeadlock.
func Spawn(n int, f func(c *Controller), opts ...Option) error {
	world := inproc.NewWorld(n)
	for i := 0; i < n; i++ {
		world.Go(i, func(c *inproc.Communicator) {
			rmi := c.Duplicate()
			ctrlOpts := append([]Option{WithRMICommunicator(rmi)}, opts...)
			ctrl := New(c, ctrlOpts...)
			defer ctrl.Finalize()
			f(ctrl)
		})
	}
	return world.Run()
}
