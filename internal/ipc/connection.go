// Package ipc implements the multi-channel transport between the server
// process and a kernel subprocess.
//
// Grounded in the original marimo-lsp's zeromq/queue_manager.py channel
// topology (one PUSH/PULL socket pair per logical channel) but carried over
// plain loopback TCP with newline-delimited JSON frames: no ZeroMQ or
// nanomsg binding appears anywhere in the retrieval pack, so the wire layer
// here is net.Listener/net.Conn rather than a third-party messaging
// library (see DESIGN.md).
package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// ConnectionInfo is the bind address set for every logical channel, written
// to the kernel's stdin as the first of two JSON lines.
type ConnectionInfo struct {
	Host           string `json:"host"`
	Control        int    `json:"control"`
	SetUIElement   int    `json:"set_ui_element"`
	Completion     int    `json:"completion"`
	Input          int    `json:"input"`
	Stream         int    `json:"stream"`
	Win32Interrupt int    `json:"win32_interrupt,omitempty"`
}

// channelListener owns one bound TCP listener plus whatever connection has
// been accepted on it. Channels are independently closeable.
type channelListener struct {
	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
}

func newChannelListener() (*channelListener, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("bind channel: %w", err)
	}
	return &channelListener{listener: l}, nil
}

func (c *channelListener) port() int {
	return c.listener.Addr().(*net.TCPAddr).Port
}

// accept blocks until the kernel connects to this channel. Safe to call
// once per listener.
func (c *channelListener) accept() (net.Conn, error) {
	conn, err := c.listener.Accept()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *channelListener) close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	if lerr := c.listener.Close(); lerr != nil && err == nil {
		err = lerr
	}
	return err
}

// HostEndpoint is the parent-process side of the transport: one listener
// per logical channel, plus the resulting ConnectionInfo to hand to the
// kernel. Each channel is independently closeable; close() tears down all
// sockets, never blocking on the peer's acknowledgement.
type HostEndpoint struct {
	control        *channelListener
	setUIElement   *channelListener
	completion     *channelListener
	input          *channelListener
	stream         *channelListener
	win32Interrupt *channelListener // nil except on windows

	mu     sync.Mutex
	closed bool
}

// NewHostEndpoint binds one OS-chosen loopback port per channel.
func NewHostEndpoint(enableWin32Interrupt bool) (*HostEndpoint, error) {
	h := &HostEndpoint{}
	var err error
	for _, pair := range []struct {
		dst **channelListener
	}{
		{&h.control}, {&h.setUIElement}, {&h.completion}, {&h.input}, {&h.stream},
	} {
		*pair.dst, err = newChannelListener()
		if err != nil {
			h.Close()
			return nil, err
		}
	}
	if enableWin32Interrupt {
		h.win32Interrupt, err = newChannelListener()
		if err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

// ConnectionInfo returns the JSON-serializable bind addresses for every
// channel this endpoint owns.
func (h *HostEndpoint) ConnectionInfo() ConnectionInfo {
	info := ConnectionInfo{
		Host:         "127.0.0.1",
		Control:      h.control.port(),
		SetUIElement: h.setUIElement.port(),
		Completion:   h.completion.port(),
		Input:        h.input.port(),
		Stream:       h.stream.port(),
	}
	if h.win32Interrupt != nil {
		info.Win32Interrupt = h.win32Interrupt.port()
	}
	return info
}

// Accept blocks until the kernel has connected every channel it knows
// about. Must be called after the kernel subprocess has been started.
func (h *HostEndpoint) Accept() error {
	listeners := []*channelListener{h.control, h.setUIElement, h.completion, h.input, h.stream}
	if h.win32Interrupt != nil {
		listeners = append(listeners, h.win32Interrupt)
	}
	for _, l := range listeners {
		if _, err := l.accept(); err != nil {
			return fmt.Errorf("accept channel: %w", err)
		}
	}
	return nil
}

// Close closes every socket. Idempotent.
func (h *HostEndpoint) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	var firstErr error
	for _, l := range []*channelListener{h.control, h.setUIElement, h.completion, h.input, h.stream, h.win32Interrupt} {
		if l == nil {
			continue
		}
		if err := l.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// conn returns the underlying net.Conn for a channel; nil until Accept has
// run.
func (c *channelListener) peer() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (h *HostEndpoint) ControlConn() net.Conn      { return h.control.peer() }
func (h *HostEndpoint) SetUIElementConn() net.Conn { return h.setUIElement.peer() }
func (h *HostEndpoint) CompletionConn() net.Conn   { return h.completion.peer() }
func (h *HostEndpoint) InputConn() net.Conn        { return h.input.peer() }
func (h *HostEndpoint) StreamConn() net.Conn       { return h.stream.peer() }

// EncodeConnectionInfo serializes ConnectionInfo as a single JSON line,
// matching the two-JSON-lines-on-stdin handshake in spec.md §6.
func EncodeConnectionInfo(info ConnectionInfo) ([]byte, error) {
	return json.Marshal(info)
}

// DialKernel connects the kernel side of every channel described by info.
// Returns the five required connections in (control, setUIElement,
// completion, input, stream) order, plus win32Interrupt if info carries
// one.
func DialKernel(info ConnectionInfo) (control, setUIElement, completion, input, stream, win32Interrupt net.Conn, err error) {
	dial := func(port int) (net.Conn, error) {
		return net.Dial("tcp", fmt.Sprintf("%s:%d", info.Host, port))
	}
	if control, err = dial(info.Control); err != nil {
		return
	}
	if setUIElement, err = dial(info.SetUIElement); err != nil {
		return
	}
	if completion, err = dial(info.Completion); err != nil {
		return
	}
	if input, err = dial(info.Input); err != nil {
		return
	}
	if stream, err = dial(info.Stream); err != nil {
		return
	}
	if info.Win32Interrupt != 0 {
		win32Interrupt, err = dial(info.Win32Interrupt)
	}
	return
}
