package sockcomm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Kitware/VTK-sub105/comm"
)

// narrowIDs checks if IDType arrays travel as 32-bit words
// on this connection.
func (c *Communicator) narrowIDs(typ comm.DataType) bool {
	return typ == comm.IDType && !(c.Use64BitIDs && c.remote64)
}

func (c *Communicator) wireWordSize(typ comm.DataType) int {
	if c.narrowIDs(typ) {
		return 4
	}
	return typ.Size()
}

// chunkSize returns the payload size of a full frame,
// rounded down to a whole number of words.
//
// Both ends must use the same MaxFrameBytes, since a full
// frame signals that another frame follows.
func (c *Communicator) chunkSize(wordSize int) int {
	words := c.MaxFrameBytes / wordSize
	if words < 1 {
		words = 1
	}
	return words * wordSize
}

func (c *Communicator) checkRemote(remote int, allowAny bool) error {
	if remote == 1 || (allowAny && remote == comm.AnySource) {
		return nil
	}
	return fmt.Errorf("%w: %d (the peer is always rank 1)", comm.ErrInvalidRank, remote)
}

// SendVoidArray sends data to the peer.
//
// Messages larger than MaxFrameBytes are split into
// several frames. A message whose last frame is full is
// terminated by an empty frame.
func (c *Communicator) SendVoidArray(data []byte, typ comm.DataType, remote, tag int) error {
	if err := c.checkConnected("send"); err != nil {
		return err
	}
	if err := c.checkRemote(remote, false); err != nil {
		return c.fail("send", err)
	}
	if err := comm.CheckLength(data, typ); err != nil {
		return c.fail("send", err)
	}
	wordSize := typ.Size()
	if c.narrowIDs(typ) {
		narrowed, err := c.narrow(data)
		if err != nil {
			return c.fail("send", err)
		}
		data = narrowed
		wordSize = 4
	}

	chunk := c.chunkSize(wordSize)
	for offset := 0; ; offset += chunk {
		end := offset + chunk
		if end > len(data) {
			end = len(data)
		}
		if err := c.writeFrame(int32(tag), data[offset:end]); err != nil {
			c.CloseConnection()
			return c.fail("send", err)
		}
		if end-offset < chunk {
			break
		}
	}
	return nil
}

// ReceiveVoidArray receives a message from the peer with
// the given tag.
//
// Frames with other tags are passed to the mismatch
// handlers. A frame for the tag that was buffered by an
// earlier receive is delivered before anything is read
// from the connection.
func (c *Communicator) ReceiveVoidArray(data []byte, typ comm.DataType, remote,
	tag int) (int, error) {
	if err := c.checkConnected("receive"); err != nil {
		return 0, err
	}
	if err := c.checkRemote(remote, true); err != nil {
		return 0, c.fail("receive", err)
	}
	wordSize := c.wireWordSize(typ)
	capacity := len(data) / typ.Size() * wordSize
	chunk := c.chunkSize(wordSize)

	var message []byte
	for {
		frame, err := c.receiveFrame(tag)
		if err != nil {
			return 0, c.fail("receive", err)
		}
		c.tagMessageLength = len(frame)
		if message == nil && len(frame) < chunk {
			// Common case of a single frame.
			message = frame
			break
		}
		message = append(message, frame...)
		if len(message) > capacity {
			total, err := c.discardMessage(tag, len(message), len(frame), chunk)
			if err != nil {
				return 0, c.fail("receive", err)
			}
			return 0, c.fail("receive", fmt.Errorf("%w: %d bytes into %d",
				comm.ErrOverflow, total, capacity))
		}
		if len(frame) < chunk {
			break
		}
	}
	if len(message) > capacity {
		return 0, c.fail("receive", fmt.Errorf("%w: %d bytes into %d", comm.ErrOverflow,
			len(message), capacity))
	}
	if len(message)%wordSize != 0 {
		return 0, c.fail("receive", fmt.Errorf("message of %d bytes is not a whole number of %s",
			len(message), typ))
	}
	if c.swap {
		comm.SwapBytes(message, wordSize)
	}
	if c.narrowIDs(typ) {
		widen(message, data)
	} else {
		copy(data, message)
	}
	c.count = len(message) / wordSize
	return c.count, nil
}

// discardMessage reads and drops the remaining frames of a
// message whose last frame so far had lastFrame bytes.
// It returns the total size of the message.
func (c *Communicator) discardMessage(tag, size, lastFrame, chunk int) (int, error) {
	for lastFrame == chunk {
		frame, err := c.receiveFrame(tag)
		if err != nil {
			return size, err
		}
		size += len(frame)
		lastFrame = len(frame)
	}
	return size, nil
}

func (c *Communicator) receiveFrame(tag int) ([]byte, error) {
	if payload, ok := c.buffer.Pop(tag); ok {
		return payload, nil
	}
	for {
		frameTag, payload, err := c.readFrame()
		if err != nil {
			c.CloseConnection()
			return nil, err
		}
		if int(frameTag) == tag {
			return payload, nil
		}
		mismatch := &TagMismatch{Tag: int(frameTag), ExpectedTag: tag, Payload: payload}
		switch c.handleMismatch(mismatch) {
		case Buffer:
			c.buffer.Push(int(frameTag), payload)
		case Handled:
		default:
			return nil, fmt.Errorf("%w: expected %d but got %d", ErrTagMismatch, tag, frameTag)
		}
	}
}

func (c *Communicator) narrow(data []byte) ([]byte, error) {
	ids := comm.Slice[int64](data)
	res := make([]byte, 4*len(ids))
	for i, id := range ids {
		if c.Narrowing == NarrowReject && (id > math.MaxInt32 || id < math.MinInt32) {
			return nil, fmt.Errorf("%w: %d at index %d", ErrIDOverflow, id, i)
		}
		binary.NativeEndian.PutUint32(res[i*4:], uint32(int32(id)))
	}
	return res, nil
}

func widen(narrow, dst []byte) {
	ids := comm.Slice[int64](dst)
	for i := 0; i < len(narrow)/4; i++ {
		ids[i] = int64(int32(binary.NativeEndian.Uint32(narrow[i*4:])))
	}
}
