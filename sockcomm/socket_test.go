package sockcomm

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kitware/VTK-sub105/comm"
)

func dialPair(t *testing.T, configure func(server, client *Communicator)) (server, client *Communicator,
	serverErr, clientErr error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	server, client = New(), New()
	server.ReportErrors = false
	client.ReportErrors = false
	if configure != nil {
		configure(server, client)
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.WaitForConnectionOn(listener, 10*time.Second)
	}()
	clientErr = client.ConnectTo(listener.Addr().String())
	serverErr = <-errCh
	t.Cleanup(func() {
		server.CloseConnection()
		client.CloseConnection()
	})
	return
}

func connectPair(t *testing.T, configure func(server, client *Communicator)) (*Communicator, *Communicator) {
	server, client, serverErr, clientErr := dialPair(t, configure)
	require.NoError(t, serverErr)
	require.NoError(t, clientErr)
	require.True(t, server.IsServer())
	require.False(t, client.IsServer())
	require.Equal(t, Connected, server.State())
	require.Equal(t, Connected, client.State())
	return server, client
}

func roundTrip[T comm.Scalar](t *testing.T, sender, receiver *Communicator, data []T) {
	require.NoError(t, comm.Send(sender, data, 1, 100))
	recv := make([]T, len(data))
	n, err := comm.Receive(receiver, recv, 1, 100)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, len(data), receiver.Count())
	require.Equal(t, data, recv)
}

func TestRoundTrip(t *testing.T) {
	server, client := connectPair(t, nil)
	for _, size := range []int{0, 1, 100} {
		ints := make([]int32, size)
		floats := make([]float64, size)
		shorts := make([]uint16, size)
		bytes := make([]int8, size)
		ids := make([]comm.ID, size)
		for i := 0; i < size; i++ {
			ints[i] = int32(i*7 - 50)
			floats[i] = float64(i) / 3
			shorts[i] = uint16(i * 300)
			bytes[i] = int8(i)
			ids[i] = comm.ID(i) << 35
		}
		roundTrip(t, client, server, ints)
		roundTrip(t, server, client, floats)
		roundTrip(t, client, server, shorts)
		roundTrip(t, server, client, bytes)
		roundTrip(t, client, server, ids)
	}
}

func TestMistagBuffering(t *testing.T) {
	server, client := connectPair(t, nil)
	server.AddMismatchHandler(BufferAll)

	require.NoError(t, comm.Send(client, []int32{1}, 1, 101))
	require.NoError(t, comm.Send(client, []int32{2}, 1, 101))
	require.NoError(t, comm.Send(client, []int32{3}, 1, 100))

	buf := []int32{0}
	_, err := comm.Receive(server, buf, 1, 100)
	require.NoError(t, err)
	require.Equal(t, int32(3), buf[0])
	require.Equal(t, 2, server.Buffer().Len())
	require.True(t, server.Buffer().HasMessage(101))

	for _, expected := range []int32{1, 2} {
		_, err := comm.Receive(server, buf, 1, 101)
		require.NoError(t, err)
		require.Equal(t, expected, buf[0])
	}
	require.Equal(t, 0, server.Buffer().Len())
}

func TestMistagReject(t *testing.T) {
	server, client := connectPair(t, nil)
	require.NoError(t, comm.Send(client, []int32{1}, 1, 101))
	_, err := comm.Receive(server, []int32{0}, 1, 100)
	require.ErrorContains(t, err, ErrTagMismatch.Error())
}

func TestMistagHandled(t *testing.T) {
	server, client := connectPair(t, nil)
	var seen []int
	id := server.AddMismatchHandler(func(m *TagMismatch) MismatchAction {
		if m.Tag != 101 {
			return Reject
		}
		seen = append(seen, m.ExpectedTag)
		return Handled
	})
	server.AddMismatchHandler(BufferAll)

	require.NoError(t, comm.Send(client, []int32{1}, 1, 101))
	require.NoError(t, comm.Send(client, []int32{2}, 1, 102))
	require.NoError(t, comm.Send(client, []int32{3}, 1, 100))

	buf := []int32{0}
	_, err := comm.Receive(server, buf, 1, 100)
	require.NoError(t, err)
	require.Equal(t, int32(3), buf[0])
	require.Equal(t, []int{100}, seen)
	require.False(t, server.Buffer().HasMessage(101))
	require.True(t, server.Buffer().HasMessage(102))

	require.True(t, server.RemoveMismatchHandler(id))
	require.False(t, server.RemoveMismatchHandler(id))
}

func TestHandshakeVersionMismatch(t *testing.T) {
	server, client, serverErr, clientErr := dialPair(t, func(server, client *Communicator) {
		client.Version = ProtocolVersion + 1
	})
	require.ErrorContains(t, serverErr, ErrVersionMismatch.Error())
	require.ErrorContains(t, clientErr, ErrVersionMismatch.Error())
	require.Equal(t, Closed, server.State())
	require.Equal(t, Closed, client.State())
	require.Error(t, comm.Send(client, []int32{1}, 1, 100))
}

func TestHandshakeHashMismatch(t *testing.T) {
	_, _, serverErr, clientErr := dialPair(t, func(server, client *Communicator) {
		server.Hash = "something else"
	})
	require.ErrorContains(t, serverErr, ErrHashMismatch.Error())
	require.ErrorContains(t, clientErr, ErrHashMismatch.Error())
}

func TestFragmentation(t *testing.T) {
	server, client := connectPair(t, func(server, client *Communicator) {
		server.MaxFrameBytes = 16
		client.MaxFrameBytes = 16
	})

	// Four int32 values fit in a frame.
	for _, size := range []int{2*4 + 1, 8, 4, 3} {
		data := make([]int32, size)
		for i := range data {
			data[i] = int32(i + 1)
		}
		require.NoError(t, comm.Send(client, data, 1, 100))
		recv := make([]int32, 20)
		n, err := comm.Receive(server, recv, 1, 100)
		require.NoError(t, err)
		require.Equal(t, size, n)
		require.Equal(t, data, recv[:n])
	}

	floats := []float64{1, 2, 3, 4, 5}
	require.NoError(t, comm.Send(server, floats, 1, 100))
	recv := make([]float64, 5)
	n, err := comm.Receive(client, recv, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, floats, recv)
}

func TestFragmentOverflow(t *testing.T) {
	server, client := connectPair(t, func(server, client *Communicator) {
		server.MaxFrameBytes = 16
		client.MaxFrameBytes = 16
	})
	require.NoError(t, comm.Send(client, make([]int32, 9), 1, 100))
	recv := make([]int32, 5)
	_, err := comm.Receive(server, recv, 1, 100)
	require.ErrorContains(t, err, comm.ErrOverflow.Error())
	require.Equal(t, make([]int32, 5), recv)
}

func TestFragmentOverflowKeepsNextMessage(t *testing.T) {
	server, client := connectPair(t, func(server, client *Communicator) {
		server.MaxFrameBytes = 16
		client.MaxFrameBytes = 16
	})
	for _, size := range []int{9, 8} {
		data := make([]int32, size)
		for i := range data {
			data[i] = int32(i + 1)
		}
		require.NoError(t, comm.Send(client, data, 1, 100))
		require.NoError(t, comm.Send(client, []int32{42}, 1, 100))

		recv := make([]int32, 5)
		_, err := comm.Receive(server, recv, 1, 100)
		require.ErrorContains(t, err, comm.ErrOverflow.Error())

		n, err := comm.Receive(server, recv, 1, 100)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, int32(42), recv[0])
	}
}

func TestIDNarrowing(t *testing.T) {
	server, client := connectPair(t, func(server, client *Communicator) {
		server.Use64BitIDs = false
	})
	require.False(t, client.RemoteHas64BitIDs())
	require.True(t, server.RemoteHas64BitIDs())

	require.NoError(t, comm.Send(client, []comm.ID{1, -2, 1<<40 + 5}, 1, 100))
	recv := make([]comm.ID, 3)
	n, err := comm.Receive(server, recv, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []comm.ID{1, -2, 5}, recv)

	// Plain 64-bit integers are never narrowed.
	roundTrip(t, server, client, []int64{1 << 40})

	client.Narrowing = NarrowReject
	err = comm.Send(client, []comm.ID{1 << 40}, 1, 100)
	require.ErrorContains(t, err, ErrIDOverflow.Error())
	roundTrip(t, client, server, []comm.ID{7, -7})
}

func TestBroadcastAndBarrier(t *testing.T) {
	server, client := connectPair(t, nil)
	errCh := make(chan error, 1)
	go func() {
		data := []float32{1.5, 2.5}
		if err := comm.Broadcast(server, data, 0); err != nil {
			errCh <- err
			return
		}
		errCh <- comm.Barrier(server)
	}()
	data := make([]float32, 2)
	require.NoError(t, comm.Broadcast(client, data, 1))
	require.Equal(t, []float32{1.5, 2.5}, data)
	require.NoError(t, comm.Barrier(client))
	require.NoError(t, <-errCh)
}

func TestUnsupportedCollectives(t *testing.T) {
	server, _ := connectPair(t, nil)
	err := comm.Gather(server, []int32{1}, make([]int32, 2), 0)
	require.ErrorContains(t, err, comm.ErrUnsupported.Error())
	err = comm.AllReduce(server, []int32{1}, make([]int32, 1), comm.Sum)
	require.ErrorContains(t, err, comm.ErrUnsupported.Error())
	err = comm.Scatter(server, []int32{1, 2}, make([]int32, 1), 0)
	require.ErrorContains(t, err, comm.ErrUnsupported.Error())
}

func TestCompliant(t *testing.T) {
	server, client := connectPair(t, nil)
	views := []*CompliantCommunicator{server.Compliant(), client.Compliant()}
	require.Equal(t, 0, views[0].LocalProcessID())
	require.Equal(t, 1, views[1].LocalProcessID())

	results := make(chan []int64, 2)
	errCh := make(chan error, 2)
	for _, v := range views {
		go func(v *CompliantCommunicator) {
			send := []int64{int64(v.LocalProcessID() + 1), 10}
			recv := make([]int64, 2)
			if err := comm.AllReduce(v, send, recv, comm.Sum); err != nil {
				errCh <- err
				return
			}
			root := []int64{0}
			if v.LocalProcessID() == 1 {
				root[0] = 99
			}
			if err := comm.Broadcast(v, root, 1); err != nil {
				errCh <- err
				return
			}
			errCh <- nil
			results <- append(recv, root[0])
		}(v)
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-errCh)
		require.Equal(t, []int64{3, 20, 99}, <-results)
	}
	require.Error(t, views[0].SendVoidArray(nil, comm.Int32, 0, 100))
}

func TestNotConnected(t *testing.T) {
	c := New()
	c.ReportErrors = false
	require.Equal(t, Unconnected, c.State())
	err := comm.Send(c, []int32{1}, 1, 100)
	require.ErrorContains(t, err, ErrNotConnected.Error())
}

func TestSwappedPeer(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	server := New()
	server.ReportErrors = false
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.WaitForConnectionOn(listener, 10*time.Second)
	}()

	raw, err := net.Dial("tcp", listener.Addr().String())
	require.NoError(t, err)
	defer raw.Close()

	var foreign interface {
		binary.ByteOrder
		binary.AppendByteOrder
	} = binary.BigEndian
	foreignMarker := bigEndianMarker
	if nativeMarker() == bigEndianMarker {
		foreign = binary.LittleEndian
		foreignMarker = littleEndianMarker
	}
	writeForeign := func(tag int32, payload []byte) {
		header := make([]byte, 8)
		foreign.PutUint32(header, uint32(tag))
		foreign.PutUint32(header[4:], uint32(len(payload)))
		_, err := raw.Write(append(header, payload...))
		require.NoError(t, err)
	}
	readNative := func(payloadSize int) {
		_, err := io.ReadFull(raw, make([]byte, 8+payloadSize))
		require.NoError(t, err)
	}

	writeForeign(EndianTag, []byte{foreignMarker})
	readNative(1)
	writeForeign(VersionTag, foreign.AppendUint32(nil, ProtocolVersion))
	readNative(4)
	writeForeign(HashTag, []byte(ProtocolHash))
	readNative(len(ProtocolHash))
	writeForeign(IDTypeSizeTag, foreign.AppendUint32(nil, 8))
	readNative(4)
	require.NoError(t, <-errCh)
	require.True(t, server.SwapBytesInReceivedData())

	payload := foreign.AppendUint32(nil, 1)
	payload = foreign.AppendUint32(payload, 0xdeadbeef)
	writeForeign(100, payload)
	recv := make([]uint32, 2)
	n, err := comm.Receive(server, recv, 1, 100)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []uint32{1, 0xdeadbeef}, recv)

	writeForeign(101, foreign.AppendUint64(nil, 1<<50))
	ids := make([]int64, 1)
	_, err = comm.Receive(server, ids, 1, 101)
	require.NoError(t, err)
	require.Equal(t, int64(1<<50), ids[0])
}
