package controller

import (
	"time"

	"github.com/Kitware/VTK-sub105/sockcomm"
)

// A SocketController is a two-rank controller over a
// socket connection.
//
// User messages and RMIs share the socket. Messages that
// arrive while a different tag is expected are buffered,
// so the two kinds of traffic can interleave.
type SocketController struct {
	*Controller

	socket *sockcomm.Communicator
	opts   []Option
}

// NewSocket creates a controller for an unconnected or
// connected socket communicator.
func NewSocket(s *sockcomm.Communicator, opts ...Option) *SocketController {
	s.AddMismatchHandler(sockcomm.BufferAll)
	res := &SocketController{
		Controller: New(s, opts...),
		socket:     s,
		opts:       opts,
	}
	res.Controller.finalizer = s.CloseConnection

	// Both ends are rank 0 locally, so triggers always come
	// from the peer.
	res.Controller.peerRank = func(int) int { return 1 }
	return res
}

// Socket returns the underlying communicator.
func (s *SocketController) Socket() *sockcomm.Communicator {
	return s.socket
}

// WaitForConnection listens on addr for the peer.
func (s *SocketController) WaitForConnection(addr string, timeout time.Duration) error {
	return s.socket.WaitForConnection(addr, timeout)
}

// ConnectTo connects to a peer that is waiting on addr.
func (s *SocketController) ConnectTo(addr string) error {
	return s.socket.ConnectTo(addr)
}

// CloseConnection closes the socket.
func (s *SocketController) CloseConnection() error {
	return s.socket.CloseConnection()
}

// CompliantController creates a controller on the same
// socket in which the server is rank 0 and the client is
// rank 1 on both ends.
//
// The connection must be established first, since the
// ranks depend on which end accepted it.
func (s *SocketController) CompliantController() *Controller {
	return New(s.socket.Compliant(), s.opts...)
}
