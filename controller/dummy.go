package controller

import "github.com/Kitware/VTK-sub105/comm"

// NewDummy creates a controller for a single process.
//
// RMIs can only be triggered on the local rank, where they
// run immediately.
func NewDummy(opts ...Option) *Controller {
	opts = append([]Option{WithRMICommunicator(comm.DummyCommunicator{})}, opts...)
	return New(comm.DummyCommunicator{}, opts...)
}
