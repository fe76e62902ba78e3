package sockcomm

import "github.com/unixpickle/essentials"

// A TagMismatch describes a frame that arrived while the
// receiver was waiting for a different tag.
type TagMismatch struct {
	Tag         int
	ExpectedTag int

	// Payload is the raw frame payload, in the sender's
	// byte order.
	Payload []byte
}

// MismatchAction is a handler's decision about a
// mismatched frame.
type MismatchAction int

const (
	// Reject leaves the frame to the next handler. If every
	// handler rejects it, the receive fails.
	Reject MismatchAction = iota

	// Handled means the handler consumed the frame, and
	// the receive should keep reading.
	Handled

	// Buffer stores the frame for a later receive on its
	// own tag, and the receive keeps reading.
	Buffer
)

// A MismatchHandler is consulted, in registration order,
// for each frame with an unexpected tag.
type MismatchHandler func(m *TagMismatch) MismatchAction

// BufferAll is a MismatchHandler that buffers every frame.
func BufferAll(m *TagMismatch) MismatchAction {
	return Buffer
}

type registeredHandler struct {
	id      int
	handler MismatchHandler
}

// AddMismatchHandler registers a handler and returns an id
// that can be passed to RemoveMismatchHandler.
func (c *Communicator) AddMismatchHandler(h MismatchHandler) int {
	c.nextID++
	c.handlers = append(c.handlers, registeredHandler{id: c.nextID, handler: h})
	return c.nextID
}

// RemoveMismatchHandler removes a handler by id, returning
// false if no handler has the id.
func (c *Communicator) RemoveMismatchHandler(id int) bool {
	for i, h := range c.handlers {
		if h.id == id {
			essentials.OrderedDelete(&c.handlers, i)
			return true
		}
	}
	return false
}

func (c *Communicator) handleMismatch(m *TagMismatch) MismatchAction {
	handlers := append([]registeredHandler{}, c.handlers...)
	for _, h := range handlers {
		if action := h.handler(m); action != Reject {
			return action
		}
	}
	return Reject
}
