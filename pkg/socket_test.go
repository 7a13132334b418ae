package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUDPChannelLocksOntoFirstPeer(t *testing.T) {
	server, err := ListenUDP(0)
	require.NoError(t, err)
	defer server.Close()
	port := uint16(server.LocalAddr().(*net.UDPAddr).Port)

	require.ErrorIs(t, server.Send([]byte("early")), ErrNoPeer)

	client, err := DialUDP("127.0.0.1", port)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send([]byte("hello")))
	got, ok := receiveWithin(server, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), got)
	require.True(t, server.Peer().IsValid())

	other, err := DialUDP("127.0.0.1", port)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.Send([]byte("intruder")))
	require.NoError(t, client.Send([]byte("again")))
	got, ok = receiveWithin(server, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, []byte("again"), got)

	require.NoError(t, server.Send([]byte("reply")))
	got, ok = receiveWithin(client, 2*time.Second)
	require.True(t, ok)
	require.Equal(t, []byte("reply"), got)
}
