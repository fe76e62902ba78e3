package controller

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kitware/VTK-sub105/comm"
	"github.com/Kitware/VTK-sub105/sockcomm"
)

func socketPair(t *testing.T) (server, client *SocketController) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	server = NewSocket(sockcomm.New())
	client = NewSocket(sockcomm.New())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Socket().WaitForConnectionOn(listener, 10*time.Second)
	}()
	require.NoError(t, client.ConnectTo(listener.Addr().String()))
	require.NoError(t, <-errCh)
	t.Cleanup(func() {
		server.Finalize()
		client.Finalize()
	})
	return server, client
}

func TestSocketControllerRMI(t *testing.T) {
	server, client := socketPair(t)
	require.Equal(t, 2, server.NumberOfProcesses())
	require.Equal(t, 0, client.LocalProcessID())

	large := bytes.Repeat([]byte{3}, 2000)
	require.NoError(t, comm.Send(server.Communicator(), []int32{7}, 1, 100))
	require.NoError(t, server.TriggerRMI(1, []byte("small"), 100))
	require.NoError(t, comm.Send(server.Communicator(), []int32{8}, 1, 100))
	require.NoError(t, server.TriggerRMI(1, large, 101))
	require.NoError(t, server.TriggerBreakRMIs())

	var got [][]byte
	for _, tag := range []int{100, 101} {
		client.AddRMI(tag, func(arg []byte, remoteProcessID int) {
			require.Equal(t, 1, remoteProcessID)
			got = append(got, append([]byte{}, arg...))
		})
	}
	require.NoError(t, client.ProcessRMIs(true, false))
	require.Equal(t, [][]byte{[]byte("small"), large}, got)

	// User messages that arrived between RMIs were kept.
	require.Equal(t, 2, client.Socket().Buffer().Len())
	for _, expected := range []int32{7, 8} {
		buf := []int32{0}
		_, err := comm.Receive(client.Communicator(), buf, 1, 100)
		require.NoError(t, err)
		require.Equal(t, expected, buf[0])
	}
}

func TestSocketControllerCompliant(t *testing.T) {
	server, client := socketPair(t)
	serverCompliant := server.CompliantController()
	clientCompliant := client.CompliantController()
	require.Equal(t, 0, serverCompliant.LocalProcessID())
	require.Equal(t, 1, clientCompliant.LocalProcessID())

	errCh := make(chan error, 1)
	go func() {
		errCh <- serverCompliant.Barrier()
	}()
	require.NoError(t, clientCompliant.Barrier())
	require.NoError(t, <-errCh)

	require.NoError(t, clientCompliant.TriggerRMI(0, []byte("up"), 100))
	sender := -1
	serverCompliant.AddRMI(100, func(arg []byte, remoteProcessID int) {
		require.Equal(t, "up", string(arg))
		sender = remoteProcessID
	})
	require.NoError(t, serverCompliant.ProcessRMIs(true, true))
	require.Equal(t, 1, sender)

	require.Error(t, clientCompliant.TriggerBreakRMIs())
}

func TestSocketControllerFinalize(t *testing.T) {
	server, client := socketPair(t)
	require.NoError(t, server.Finalize())
	require.Equal(t, sockcomm.Closed, server.Socket().State())
	require.False(t, server.Socket().IsConnected())

	client.Socket().ReportErrors = false
	require.Error(t, client.ProcessRMIs(false, true))
}
