package sockcomm

import "github.com/unixpickle/essentials"

// A MessageBuffer holds frames that arrived while a
// different tag was expected, in arrival order per tag.
type MessageBuffer struct {
	frames map[int][][]byte
}

// NewMessageBuffer creates an empty buffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{frames: map[int][][]byte{}}
}

// Push appends a frame payload to the queue for a tag.
func (m *MessageBuffer) Push(tag int, payload []byte) {
	m.frames[tag] = append(m.frames[tag], payload)
}

// HasMessage checks if a frame is waiting for the tag.
func (m *MessageBuffer) HasMessage(tag int) bool {
	return len(m.frames[tag]) > 0
}

// Head returns the oldest frame for the tag without
// removing it, or nil if there is none.
func (m *MessageBuffer) Head(tag int) []byte {
	if !m.HasMessage(tag) {
		return nil
	}
	return m.frames[tag][0]
}

// Pop removes and returns the oldest frame for the tag.
func (m *MessageBuffer) Pop(tag int) ([]byte, bool) {
	queue := m.frames[tag]
	if len(queue) == 0 {
		return nil, false
	}
	payload := queue[0]
	essentials.OrderedDelete(&queue, 0)
	if len(queue) == 0 {
		delete(m.frames, tag)
	} else {
		m.frames[tag] = queue
	}
	return payload, true
}

// Len returns the total number of buffered frames.
func (m *MessageBuffer) Len() int {
	var n int
	for _, q := range m.frames {
		n += len(q)
	}
	return n
}

// Clear drops every buffered frame.
func (m *MessageBuffer) Clear() {
	m.frames = map[int][][]byte{}
}
