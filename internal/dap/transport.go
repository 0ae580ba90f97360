// Package dap drives a debug adapter over the Debug Adapter Protocol.
//
// This package provides:
//   - Transport: framed message sending/receiving over TCP or any stream
//   - Client: the requests dap-viewer issues (initialize, launch, attach,
//     breakpoints, continue, threads, stack traces and evaluate)
//   - Session / SessionManager: debug session bookkeeping with an end hook
//
// Session satisfies bridge.DebugSession, so the evaluation bridge can issue
// viewable queries through it.
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
)

// Transport handles communication with a DAP server
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// NewTCPTransport creates a transport connected to a TCP address
func NewTCPTransport(ctx context.Context, address string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return NewConnTransport(conn), nil
}

// NewConnTransport creates a transport over an established stream.
func NewConnTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

// NextSeq returns the next sequence number
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send sends a DAP message
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	return nil
}

// Receive blocks until the next DAP message arrives
func (t *Transport) Receive() (dap.Message, error) {
	msg, err := dap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	return msg, nil
}

// Close closes the transport
func (t *Transport) Close() error {
	return t.conn.Close()
}
