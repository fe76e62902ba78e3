// Package controller runs code on every rank of a
// Communicator and lets ranks invoke registered callbacks
// on each other (remote method invocation, or RMI).
//
// RMI messages travel on a separate RMI communicator so
// they do not collide with user messages, unless both
// communicators are the same, as for sockets.
package controller

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/Kitware/VTK-sub105/comm"
)

var (
	ErrRMITag       = errors.New("failed to receive RMI trigger")
	ErrRMIArg       = errors.New("failed to receive RMI argument")
	ErrNoRMI        = errors.New("no RMI registered for tag")
	ErrDispatchMode = errors.New("operation is not available in this dispatch mode")
	ErrNotRoot      = errors.New("operation is only allowed on rank 0")
	ErrForeignGroup = errors.New("process group belongs to a different communicator")
	ErrNoMethod     = errors.New("no method or process to execute")
)

// DispatchMode determines how RMIs reach other ranks.
// It is fixed when a Controller is created.
type DispatchMode int

const (
	// TreeDispatch sends RMIs point-to-point. Triggers on
	// all children are relayed down a binary tree.
	TreeDispatch DispatchMode = iota

	// BroadcastDispatch sends every RMI from rank 0 to all
	// ranks with a broadcast.
	BroadcastDispatch
)

func (d DispatchMode) String() string {
	switch d {
	case TreeDispatch:
		return "tree"
	case BroadcastDispatch:
		return "broadcast"
	}
	return fmt.Sprintf("DispatchMode(%d)", int(d))
}

// A Process is an object that a Controller can run.
type Process interface {
	// SetController is called before Execute.
	SetController(c *Controller)
	Execute()

	// ReturnValue is read after Execute returns.
	ReturnValue() int
}

// A Method is a function that a Controller can run.
type Method func(c *Controller)

// An Option configures a new Controller.
type Option func(c *Controller)

// WithDispatchMode sets the RMI dispatch mode.
func WithDispatchMode(mode DispatchMode) Option {
	return func(c *Controller) {
		c.mode = mode
	}
}

// WithRMICommunicator sets the communicator used for RMI
// messages. It must have the same ranks as the main
// communicator.
func WithRMICommunicator(rmi comm.Communicator) Option {
	return func(c *Controller) {
		c.rmiComm = rmi
	}
}

// A Controller coordinates the ranks of a Communicator.
//
// A Controller is not safe for concurrent use.
type Controller struct {
	comm    comm.Communicator
	rmiComm comm.Communicator
	mode    DispatchMode

	rmis      map[int][]rmiCallback
	nextRMIID int
	breakFlag bool

	singleMethod      Method
	singleProcess     Process
	multipleMethods   map[int]Method
	multipleProcesses map[int]Process
	returnValue       int

	finalizer func() error
	finalized bool

	// peerRank maps the sender field of an RMI header to a
	// rank of the RMI communicator.
	peerRank func(sender int) int
}

// New creates a Controller for a communicator.
//
// Without WithRMICommunicator, RMI messages share the main
// communicator and use tags 1 through 4.
func New(c comm.Communicator, opts ...Option) *Controller {
	res := &Controller{
		comm:              c,
		rmis:              map[int][]rmiCallback{},
		multipleMethods:   map[int]Method{},
		multipleProcesses: map[int]Process{},
	}
	for _, opt := range opts {
		opt(res)
	}
	if res.rmiComm == nil {
		res.rmiComm = c
	}
	res.AddRMICallback(BreakRMITag, func(arg []byte, remoteProcessID int) {
		res.breakFlag = true
	})
	return res
}

// Communicator returns the communicator for user
// messages.
func (c *Controller) Communicator() comm.Communicator {
	return c.comm
}

// RMICommunicator returns the communicator used for RMI
// messages.
func (c *Controller) RMICommunicator() comm.Communicator {
	return c.rmiComm
}

// DispatchMode returns the RMI dispatch mode.
func (c *Controller) DispatchMode() DispatchMode {
	return c.mode
}

// NumberOfProcesses returns the number of ranks.
func (c *Controller) NumberOfProcesses() int {
	return c.comm.NumberOfProcesses()
}

// LocalProcessID returns the local rank.
func (c *Controller) LocalProcessID() int {
	return c.comm.LocalProcessID()
}

// Barrier blocks until every rank reaches the barrier.
func (c *Controller) Barrier() error {
	return comm.Barrier(c.comm)
}

// SetSingleMethod sets the method run by
// SingleMethodExecute, replacing any single process.
func (c *Controller) SetSingleMethod(m Method) {
	c.singleMethod = m
	c.singleProcess = nil
}

// SetSingleProcess sets the process run by
// SingleMethodExecute, replacing any single method.
func (c *Controller) SetSingleProcess(p Process) {
	c.singleProcess = p
	c.singleMethod = nil
}

// SetMultipleMethod sets the method that
// MultipleMethodExecute runs on a rank.
func (c *Controller) SetMultipleMethod(rank int, m Method) {
	c.multipleMethods[rank] = m
	delete(c.multipleProcesses, rank)
}

// SetMultipleProcess sets the process that
// MultipleMethodExecute runs on a rank.
func (c *Controller) SetMultipleProcess(rank int, p Process) {
	c.multipleProcesses[rank] = p
	delete(c.multipleMethods, rank)
}

// SingleMethodExecute runs the single method or process
// on the local rank.
// Every rank is expected to call it.
func (c *Controller) SingleMethodExecute() error {
	return c.execute(c.singleMethod, c.singleProcess)
}

// MultipleMethodExecute runs the method or process that
// was registered for the local rank.
func (c *Controller) MultipleMethodExecute() error {
	rank := c.LocalProcessID()
	return c.execute(c.multipleMethods[rank], c.multipleProcesses[rank])
}

func (c *Controller) execute(m Method, p Process) error {
	if p != nil {
		p.SetController(c)
		p.Execute()
		c.returnValue = p.ReturnValue()
		return nil
	} else if m != nil {
		m(c)
		c.returnValue = 0
		return nil
	}
	return fmt.Errorf("%w on rank %d", ErrNoMethod, c.LocalProcessID())
}

// ReturnValue returns the return value of the last
// process that was executed, or 0 after a method.
func (c *Controller) ReturnValue() int {
	return c.returnValue
}

// Finalize releases the resources of the controller.
// Registered RMIs are removed, and the controller stops
// being the global controller.
func (c *Controller) Finalize() error {
	if c.finalized {
		return nil
	}
	c.finalized = true
	c.rmis = map[int][]rmiCallback{}
	if Global() == c {
		SetGlobal(nil)
	}
	if c.finalizer != nil {
		if err := c.finalizer(); err != nil {
			glog.Errorf("finalize: %v", err)
			return err
		}
	}
	return nil
}
