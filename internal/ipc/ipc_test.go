package ipc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostEndpointHandshake(t *testing.T) {
	host, err := NewHostEndpoint(false)
	require.NoError(t, err)
	defer host.Close()

	info := host.ConnectionInfo()
	assert.Equal(t, "127.0.0.1", info.Host)
	assert.NotZero(t, info.Control)
	assert.Zero(t, info.Win32Interrupt)

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- host.Accept() }()

	control, setUI, completion, input, stream, win32, err := DialKernel(info)
	require.NoError(t, err)
	require.Nil(t, win32)
	defer control.Close()
	defer setUI.Close()
	defer completion.Close()
	defer input.Close()
	defer stream.Close()

	require.NoError(t, <-acceptErr)
	assert.NotNil(t, host.ControlConn())
	assert.NotNil(t, host.StreamConn())
}

func TestHostEndpointWin32Interrupt(t *testing.T) {
	host, err := NewHostEndpoint(true)
	require.NoError(t, err)
	defer host.Close()

	info := host.ConnectionInfo()
	assert.NotZero(t, info.Win32Interrupt)

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- host.Accept() }()

	control, setUI, completion, input, stream, win32, err := DialKernel(info)
	require.NoError(t, err)
	require.NotNil(t, win32)
	for _, c := range []net.Conn{control, setUI, completion, input, stream, win32} {
		defer c.Close()
	}
	require.NoError(t, <-acceptErr)
}

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	serverConn := make(chan net.Conn, 1)
	go func() {
		c, _ := l.Accept()
		serverConn <- c
	}()
	client, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	server := <-serverConn
	require.NotNil(t, server)
	return client, server
}

func TestPushPullQueueRoundTrip(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	type msg struct {
		Kind string `json:"kind"`
	}

	push := NewPushQueue[msg](client)
	pull := NewPullQueue[msg](server, 4)
	defer pull.Close()

	require.NoError(t, push.Put(msg{Kind: "run"}))
	got, err := pull.Get(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "run", got.Kind)
}

func TestPullQueueGetTimesOutWhenEmpty(t *testing.T) {
	_, server := pipePair(t)
	defer server.Close()

	pull := NewPullQueue[map[string]any](server, 1)
	defer pull.Close()

	assert.True(t, pull.Empty())
	_, err := pull.Get(50 * time.Millisecond)
	require.NoError(t, err)
}

func TestPushQueueCloseIsIdempotent(t *testing.T) {
	client, server := pipePair(t)
	defer server.Close()

	push := NewPushQueue[map[string]any](client)
	require.NoError(t, push.Close())
	require.NoError(t, push.Close())
	assert.ErrorIs(t, push.Put(map[string]any{"a": 1}), ErrClosed)
}

func TestStreamPumpForwardsInArrivalOrder(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()

	push := NewPushQueue[OperationMessage](client)
	pull := NewPullQueue[OperationMessage](server, 8)

	pump := NewStreamPump(pull, nil, 8)
	received := make(chan OperationMessage, 8)
	pump.Start(func(msg OperationMessage) { received <- msg })
	defer pump.Stop()
	defer pull.Close()

	require.NoError(t, push.Put(OperationMessage{"seq": float64(1)}))
	require.NoError(t, push.Put(OperationMessage{"seq": float64(2)}))

	first := <-received
	second := <-received
	assert.Equal(t, float64(1), first["seq"])
	assert.Equal(t, float64(2), second["seq"])
}
