package comm

import "github.com/unixpickle/essentials"

// DummyCommunicator is a Communicator for a single
// process.
//
// It has one rank, so the default collectives work
// without moving any data.
// Any attempt at point-to-point communication fails with
// ErrNoPeer.
type DummyCommunicator struct{}

// NumberOfProcesses always returns 1.
func (d DummyCommunicator) NumberOfProcesses() int {
	return 1
}

// LocalProcessID always returns 0.
func (d DummyCommunicator) LocalProcessID() int {
	return 0
}

// SendVoidArray always fails with ErrNoPeer.
func (d DummyCommunicator) SendVoidArray(data []byte, typ DataType, remote, tag int) error {
	return essentials.AddCtx("dummy send", ErrNoPeer)
}

// ReceiveVoidArray always fails with ErrNoPeer.
func (d DummyCommunicator) ReceiveVoidArray(data []byte, typ DataType, remote, tag int) (int, error) {
	return 0, essentials.AddCtx("dummy receive", ErrNoPeer)
}
