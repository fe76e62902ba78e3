package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/unixpickle/essentials"
)

type streamKind byte

const (
	streamInt streamKind = iota + 1
	streamUint
	streamFloat
	streamBool
	streamString
	streamBytes
)

func (s streamKind) String() string {
	switch s {
	case streamInt:
		return "int"
	case streamUint:
		return "uint"
	case streamFloat:
		return "float"
	case streamBool:
		return "bool"
	case streamString:
		return "string"
	case streamBytes:
		return "bytes"
	}
	return fmt.Sprintf("kind(%d)", byte(s))
}

// ErrStreamEnd is returned when reading past the end of a
// Stream.
var ErrStreamEnd = errors.New("read past end of stream")

// A Stream is a buffer of typed values.
//
// Values are stored little-endian with a one-byte kind
// marker, so a Stream can be exchanged between machines
// with different byte orders.
// Values must be read in the order they were written.
type Stream struct {
	data []byte
	pos  int
}

// NewStream creates a Stream that reads from data.
func NewStream(data []byte) *Stream {
	return &Stream{data: data}
}

// Bytes returns the encoded contents of the stream.
func (s *Stream) Bytes() []byte {
	return s.data
}

// Len returns the number of encoded bytes.
func (s *Stream) Len() int {
	return len(s.data)
}

// Remaining returns the number of bytes that have not yet
// been read.
func (s *Stream) Remaining() int {
	return len(s.data) - s.pos
}

// Reset empties the stream.
func (s *Stream) Reset() {
	s.data = s.data[:0]
	s.pos = 0
}

// WriteInt appends a signed integer.
func (s *Stream) WriteInt(v int64) {
	s.data = append(s.data, byte(streamInt))
	s.data = binary.LittleEndian.AppendUint64(s.data, uint64(v))
}

// WriteUint appends an unsigned integer.
func (s *Stream) WriteUint(v uint64) {
	s.data = append(s.data, byte(streamUint))
	s.data = binary.LittleEndian.AppendUint64(s.data, v)
}

// WriteFloat appends a floating-point number.
func (s *Stream) WriteFloat(v float64) {
	s.data = append(s.data, byte(streamFloat))
	s.data = binary.LittleEndian.AppendUint64(s.data, math.Float64bits(v))
}

// WriteBool appends a boolean.
func (s *Stream) WriteBool(v bool) {
	s.data = append(s.data, byte(streamBool))
	if v {
		s.data = append(s.data, 1)
	} else {
		s.data = append(s.data, 0)
	}
}

// WriteString appends a length-prefixed string.
func (s *Stream) WriteString(v string) {
	s.data = append(s.data, byte(streamString))
	s.data = binary.LittleEndian.AppendUint64(s.data, uint64(len(v)))
	s.data = append(s.data, v...)
}

// WriteBytes appends a length-prefixed byte slice.
func (s *Stream) WriteBytes(v []byte) {
	s.data = append(s.data, byte(streamBytes))
	s.data = binary.LittleEndian.AppendUint64(s.data, uint64(len(v)))
	s.data = append(s.data, v...)
}

// ReadInt reads a value written by WriteInt.
func (s *Stream) ReadInt() (int64, error) {
	v, err := s.readWord(streamInt)
	return int64(v), err
}

// ReadUint reads a value written by WriteUint.
func (s *Stream) ReadUint() (uint64, error) {
	return s.readWord(streamUint)
}

// ReadFloat reads a value written by WriteFloat.
func (s *Stream) ReadFloat() (float64, error) {
	v, err := s.readWord(streamFloat)
	return math.Float64frombits(v), err
}

// ReadBool reads a value written by WriteBool.
func (s *Stream) ReadBool() (bool, error) {
	if err := s.readKind(streamBool); err != nil {
		return false, err
	}
	if s.Remaining() < 1 {
		return false, ErrStreamEnd
	}
	v := s.data[s.pos] != 0
	s.pos++
	return v, nil
}

// ReadString reads a value written by WriteString.
func (s *Stream) ReadString() (string, error) {
	b, err := s.readBlob(streamString)
	return string(b), err
}

// ReadBytes returns a copy of the next byte slice.
func (s *Stream) ReadBytes() ([]byte, error) {
	b, err := s.readBlob(streamBytes)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, b...), nil
}

func (s *Stream) readKind(kind streamKind) error {
	if s.Remaining() < 1 {
		return ErrStreamEnd
	}
	if actual := streamKind(s.data[s.pos]); actual != kind {
		return fmt.Errorf("stream: expected %s but found %s", kind, actual)
	}
	s.pos++
	return nil
}

func (s *Stream) readWord(kind streamKind) (uint64, error) {
	if err := s.readKind(kind); err != nil {
		return 0, err
	}
	if s.Remaining() < 8 {
		return 0, ErrStreamEnd
	}
	v := binary.LittleEndian.Uint64(s.data[s.pos:])
	s.pos += 8
	return v, nil
}

func (s *Stream) readBlob(kind streamKind) ([]byte, error) {
	n, err := s.readWord(kind)
	if err != nil {
		return nil, err
	}
	if uint64(s.Remaining()) < n {
		return nil, ErrStreamEnd
	}
	b := s.data[s.pos : s.pos+int(n)]
	s.pos += int(n)
	return b, nil
}

// SendStream sends the contents of a Stream to a remote
// rank, first its size and then its bytes.
func SendStream(c Communicator, s *Stream, remote, tag int) error {
	if err := Send(c, []int64{int64(s.Len())}, remote, tag); err != nil {
		return essentials.AddCtx("send stream", err)
	}
	if err := Send(c, s.Bytes(), remote, tag); err != nil {
		return essentials.AddCtx("send stream", err)
	}
	return nil
}

// ReceiveStream receives a Stream sent with SendStream.
//
// The remote rank may not be AnySource, since both parts
// of the message must come from the same sender.
func ReceiveStream(c Communicator, remote, tag int) (*Stream, error) {
	if remote == AnySource {
		return nil, essentials.AddCtx("receive stream", ErrInvalidRank)
	}
	size := []int64{0}
	if _, err := Receive(c, size, remote, tag); err != nil {
		return nil, essentials.AddCtx("receive stream", err)
	}
	if size[0] < 0 {
		return nil, essentials.AddCtx("receive stream", fmt.Errorf("negative stream size %d", size[0]))
	}
	data := make([]byte, size[0])
	if _, err := Receive(c, data, remote, tag); err != nil {
		return nil, essentials.AddCtx("receive stream", err)
	}
	return NewStream(data), nil
}

// BroadcastStream broadcasts a Stream from root.
// On other ranks, the contents of s are replaced.
func BroadcastStream(c Communicator, s *Stream, root int) error {
	size := []int64{int64(s.Len())}
	if err := Broadcast(c, size, root); err != nil {
		return essentials.AddCtx("broadcast stream", err)
	}
	if c.LocalProcessID() != root {
		if size[0] < 0 {
			return essentials.AddCtx("broadcast stream", fmt.Errorf("negative stream size %d", size[0]))
		}
		s.data = make([]byte, size[0])
		s.pos = 0
	}
	if err := Broadcast(c, s.data, root); err != nil {
		return essentials.AddCtx("broadcast stream", err)
	}
	return nil
}
