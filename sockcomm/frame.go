package sockcomm

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/golang/glog"

	"github.com/Kitware/VTK-sub105/comm"
)

// Tags of the handshake frames.
const (
	EndianTag     = 0x3c3c3c3c
	IDTypeSizeTag = 0x3d3d3d3d
	VersionTag    = 0x3e3e3e3e
	HashTag       = 0x3f3f3f3f
)

const frameHeaderSize = 8

const (
	bigEndianMarker    byte = 0
	littleEndianMarker byte = 1
)

func nativeMarker() byte {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return littleEndianMarker
	}
	return bigEndianMarker
}

// writeFrame writes one frame. The header is written in
// the local byte order.
func (c *Communicator) writeFrame(tag int32, payload []byte) error {
	header := make([]byte, frameHeaderSize)
	binary.NativeEndian.PutUint32(header, uint32(tag))
	binary.NativeEndian.PutUint32(header[4:], uint32(len(payload)))
	bufs := net.Buffers{header, payload}
	if _, err := bufs.WriteTo(c.conn); err != nil {
		return err
	}
	if glog.V(2) {
		glog.Infof("socket %s: sent frame tag=%d length=%d", c.id, tag, len(payload))
	}
	return nil
}

// readFrame reads the next frame from the connection,
// correcting the header for the peer's byte order.
func (c *Communicator) readFrame() (int32, []byte, error) {
	tag, length, err := c.readHeader()
	if err != nil {
		return 0, nil, err
	}
	if length < 0 {
		return 0, nil, fmt.Errorf("negative frame length %d", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.reader, payload); err != nil {
		return 0, nil, err
	}
	if glog.V(2) {
		glog.Infof("socket %s: read frame tag=%d length=%d", c.id, tag, length)
	}
	return tag, payload, nil
}

func (c *Communicator) readHeader() (int32, int32, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(c.reader, header); err != nil {
		return 0, 0, err
	}
	if c.swap {
		comm.SwapBytes(header, 4)
	}
	tag := int32(binary.NativeEndian.Uint32(header))
	length := int32(binary.NativeEndian.Uint32(header[4:]))
	return tag, length, nil
}

// Handshake negotiates byte order, protocol version, hash,
// and id width with the peer.
//
// The server receives first in every phase and the client
// sends first. On a mismatch the connection is closed.
func (c *Communicator) Handshake() error {
	if c.state != Handshaking {
		return c.fail("handshake", fmt.Errorf("%w: connection is %s", ErrHandshake, c.state))
	}
	for _, phase := range []func() error{
		c.exchangeEndian,
		c.exchangeVersion,
		c.exchangeHash,
		c.exchangeIDTypeSize,
	} {
		if err := phase(); err != nil {
			c.CloseConnection()
			return c.fail("handshake", err)
		}
	}
	c.state = Connected
	if glog.V(1) {
		glog.Infof("socket %s: handshake complete (server=%v swap=%v remote64=%v)", c.id,
			c.isServer, c.swap, c.remote64)
	}
	return nil
}

// exchange sends a handshake frame and reads the peer's
// frame for the same phase, in an order that depends on
// the role.
func (c *Communicator) exchange(tag int32, payload []byte, read func() ([]byte, error)) ([]byte, error) {
	if c.isServer {
		remote, err := read()
		if err != nil {
			return nil, err
		}
		if err := c.writeFrame(tag, payload); err != nil {
			return nil, err
		}
		return remote, nil
	}
	if err := c.writeFrame(tag, payload); err != nil {
		return nil, err
	}
	return read()
}

func (c *Communicator) readHandshakeFrame(tag int32) ([]byte, error) {
	actual, payload, err := c.readFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if actual != tag {
		return nil, fmt.Errorf("%w: expected tag %#x but got %#x", ErrHandshake, tag, actual)
	}
	return payload, nil
}

func (c *Communicator) exchangeEndian() error {
	local := nativeMarker()
	remote, err := c.exchange(EndianTag, []byte{local}, func() ([]byte, error) {
		header := make([]byte, frameHeaderSize)
		if _, err := io.ReadFull(c.reader, header); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		// The byte order is not known yet, so accept the
		// length in either order.
		tag := binary.NativeEndian.Uint32(header)
		length := binary.NativeEndian.Uint32(header[4:])
		if tag != EndianTag || (length != 1 && length != 1<<24) {
			return nil, fmt.Errorf("%w: bad endian frame", ErrHandshake)
		}
		payload := []byte{0}
		if _, err := io.ReadFull(c.reader, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		return payload, nil
	})
	if err != nil {
		return err
	}
	if remote[0] != bigEndianMarker && remote[0] != littleEndianMarker {
		return fmt.Errorf("%w: undetermined byte order %d", ErrHandshake, remote[0])
	}
	c.swap = remote[0] != local
	return nil
}

func (c *Communicator) exchangeInt32(tag int32, value int32) (int32, error) {
	payload := binary.NativeEndian.AppendUint32(nil, uint32(value))
	remote, err := c.exchange(tag, payload, func() ([]byte, error) {
		return c.readHandshakeFrame(tag)
	})
	if err != nil {
		return 0, err
	}
	if len(remote) != 4 {
		return 0, fmt.Errorf("%w: expected 4 bytes but got %d", ErrHandshake, len(remote))
	}
	if c.swap {
		comm.SwapBytes(remote, 4)
	}
	return int32(binary.NativeEndian.Uint32(remote)), nil
}

func (c *Communicator) exchangeVersion() error {
	remote, err := c.exchangeInt32(VersionTag, c.Version)
	if err != nil {
		return err
	}
	if remote != c.Version {
		return fmt.Errorf("%w: local %d, remote %d", ErrVersionMismatch, c.Version, remote)
	}
	return nil
}

func (c *Communicator) exchangeHash() error {
	remote, err := c.exchange(HashTag, []byte(c.Hash), func() ([]byte, error) {
		return c.readHandshakeFrame(HashTag)
	})
	if err != nil {
		return err
	}
	if string(remote) != c.Hash {
		return fmt.Errorf("%w: local %q, remote %q", ErrHashMismatch, c.Hash, remote)
	}
	return nil
}

func (c *Communicator) exchangeIDTypeSize() error {
	size := int32(4)
	if c.Use64BitIDs {
		size = 8
	}
	remote, err := c.exchangeInt32(IDTypeSizeTag, size)
	if err != nil {
		return err
	}
	if remote != 4 && remote != 8 {
		return fmt.Errorf("%w: unsupported id size %d", ErrHandshake, remote)
	}
	c.remote64 = remote == 8
	return nil
}
