// Package sockcomm implements a two-rank comm.Communicator
// over a single stream connection, usually TCP.
//
// Both ends of a connection see themselves as rank 0 and
// the peer as rank 1.
// Use Compliant for a view where the server is rank 0 and
// the client is rank 1 on both ends.
package sockcomm

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/unixpickle/essentials"
)

const (
	// ProtocolVersion is exchanged during the handshake and
	// must match on both ends.
	ProtocolVersion = 100

	// ProtocolHash identifies the wire format. It must match
	// byte-for-byte on both ends.
	ProtocolHash = "a5f8d1f0c6e2b9734e1d0cb7f2a46e18"
)

var (
	ErrHandshake       = errors.New("socket handshake failed")
	ErrVersionMismatch = errors.New("socket protocol version mismatch")
	ErrHashMismatch    = errors.New("socket protocol hash mismatch")
	ErrTagMismatch     = errors.New("received message with unexpected tag")
	ErrNotConnected    = errors.New("socket is not connected")
	ErrIDOverflow      = errors.New("id does not fit in 32 bits")
)

// State is the lifecycle state of a connection.
type State int

const (
	Unconnected State = iota
	Handshaking
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// NarrowingPolicy determines what happens when an IDType
// value does not fit in the 32-bit ids of a peer.
type NarrowingPolicy int

const (
	// NarrowTruncate silently keeps the low 32 bits.
	NarrowTruncate NarrowingPolicy = iota

	// NarrowReject fails the send with ErrIDOverflow before
	// any data is written.
	NarrowReject
)

// A Communicator is one end of a socket connection.
//
// Exported fields configure the protocol and must be set
// before the connection is established.
type Communicator struct {
	Version int32
	Hash    string

	// Use64BitIDs determines whether IDType arrays travel
	// as 64-bit words. If either end disables it, ids are
	// narrowed to 32 bits on the wire.
	Use64BitIDs bool

	// MaxFrameBytes is the largest payload of one frame.
	// Larger messages are split into several frames.
	MaxFrameBytes int

	Narrowing NarrowingPolicy

	// ConnectTimeout limits ConnectTo. Zero means no limit.
	ConnectTimeout time.Duration

	// ReportErrors enables logging of errors as they are
	// returned.
	ReportErrors bool

	id       uuid.UUID
	state    State
	conn     net.Conn
	reader   *bufio.Reader
	isServer bool

	swap     bool
	remote64 bool

	buffer   *MessageBuffer
	handlers []registeredHandler
	nextID   int

	count            int
	tagMessageLength int
}

// New creates an unconnected Communicator with the default
// protocol settings.
func New() *Communicator {
	return &Communicator{
		Version:       ProtocolVersion,
		Hash:          ProtocolHash,
		Use64BitIDs:   true,
		MaxFrameBytes: 1<<31 - 1,
		Narrowing:     NarrowTruncate,
		ReportErrors:  true,
		id:            uuid.New(),
		buffer:        NewMessageBuffer(),
	}
}

// ID returns an identifier used in log messages.
func (c *Communicator) ID() uuid.UUID {
	return c.id
}

// State returns the connection state.
func (c *Communicator) State() State {
	return c.state
}

// IsConnected checks if the handshake completed and the
// connection is open.
func (c *Communicator) IsConnected() bool {
	return c.state == Connected
}

// IsServer returns true if the local end accepted the
// connection.
func (c *Communicator) IsServer() bool {
	return c.isServer
}

// SwapBytesInReceivedData returns true if the peer has the
// opposite byte order.
func (c *Communicator) SwapBytesInReceivedData() bool {
	return c.swap
}

// RemoteHas64BitIDs returns true if the peer sends IDType
// arrays as 64-bit words.
func (c *Communicator) RemoteHas64BitIDs() bool {
	return c.remote64
}

// Buffer returns the buffer of messages that arrived while
// a different tag was expected.
func (c *Communicator) Buffer() *MessageBuffer {
	return c.buffer
}

// Count returns the number of elements delivered by the
// last successful receive.
func (c *Communicator) Count() int {
	return c.count
}

// TagMessageLength returns the payload size in bytes of
// the last frame read for the expected tag.
func (c *Communicator) TagMessageLength() int {
	return c.tagMessageLength
}

// NumberOfProcesses always returns 2.
func (c *Communicator) NumberOfProcesses() int {
	return 2
}

// LocalProcessID always returns 0.
func (c *Communicator) LocalProcessID() int {
	return 0
}

// WaitForConnection listens on addr and accepts a single
// connection, then performs the server side of the
// handshake.
//
// A zero timeout waits forever.
func (c *Communicator) WaitForConnection(addr string, timeout time.Duration) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return c.fail("wait for connection", err)
	}
	defer listener.Close()
	return c.WaitForConnectionOn(listener, timeout)
}

// WaitForConnectionOn accepts a single connection from an
// existing listener and performs the server side of the
// handshake. The listener is left open.
func (c *Communicator) WaitForConnectionOn(listener net.Listener, timeout time.Duration) error {
	if c.state != Unconnected {
		return c.fail("wait for connection", fmt.Errorf("already %s", c.state))
	}
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := listener.Accept()
		acceptCh <- acceptResult{conn, err}
	}()

	var result acceptResult
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case result = <-acceptCh:
		case <-timer.C:
			go func() {
				if late := <-acceptCh; late.conn != nil {
					late.conn.Close()
				}
			}()
			return c.fail("wait for connection", errors.New("accept timed out"))
		}
	} else {
		result = <-acceptCh
	}
	if result.err != nil {
		return c.fail("wait for connection", result.err)
	}
	if glog.V(1) {
		glog.Infof("socket %s: accepted connection from %s", c.id, result.conn.RemoteAddr())
	}
	c.SetConn(result.conn, true)
	return c.Handshake()
}

// ConnectTo dials addr and performs the client side of the
// handshake.
func (c *Communicator) ConnectTo(addr string) error {
	if c.state != Unconnected {
		return c.fail("connect", fmt.Errorf("already %s", c.state))
	}
	var conn net.Conn
	var err error
	if c.ConnectTimeout > 0 {
		conn, err = net.DialTimeout("tcp", addr, c.ConnectTimeout)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return c.fail("connect", err)
	}
	if glog.V(1) {
		glog.Infof("socket %s: connected to %s", c.id, addr)
	}
	c.SetConn(conn, false)
	return c.Handshake()
}

// SetConn attaches an established connection.
// Handshake must be called before any data is exchanged.
func (c *Communicator) SetConn(conn net.Conn, isServer bool) {
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.isServer = isServer
	c.state = Handshaking
}

// CloseConnection closes the connection. Buffered messages
// are discarded.
func (c *Communicator) CloseConnection() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	c.state = Closed
	c.buffer.Clear()
	if err != nil {
		return essentials.AddCtx("close connection", err)
	}
	return nil
}

func (c *Communicator) checkConnected(op string) error {
	if c.state != Connected {
		return c.fail(op, ErrNotConnected)
	}
	return nil
}

func (c *Communicator) fail(op string, err error) error {
	err = essentials.AddCtx(op, err)
	if c.ReportErrors {
		glog.Errorf("socket %s: %v", c.id, err)
	}
	return err
}
