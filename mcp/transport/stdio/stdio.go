// Package stdio implements the line-oriented MCP transport: one JSON-RPC
// message per newline-terminated line on stdin/stdout, the framing Claude
// Desktop and other MCP hosts speak.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/techspheredynamics/bcmcp/mcp/transport"
)

var logger = xlog.NewPackageLogger("github.com/techspheredynamics/bcmcp/mcp/transport", "stdio")

// maxLineSize bounds a single inbound message.
const maxLineSize = 4 * 1024 * 1024

// Transport reads newline-delimited JSON-RPC messages from in and writes
// responses to out. Writes are serialized; reads happen on the Start
// goroutine.
type Transport struct {
	in  io.Reader
	out io.Writer

	mu             sync.RWMutex
	writeMu        sync.Mutex
	messageHandler func(ctx context.Context, msg *transport.Message)
	errorHandler   func(error)
	closeHandler   func()
	closed         bool
}

// New returns a transport bound to os.Stdin/os.Stdout.
func New() *Transport {
	return NewWithIO(os.Stdin, os.Stdout)
}

// NewWithIO returns a transport over arbitrary streams, used by tests.
func NewWithIO(in io.Reader, out io.Writer) *Transport {
	return &Transport{
		in:  in,
		out: out,
	}
}

// Start implements transport.Transport. It blocks, reading one message per
// line until EOF or context cancellation.
func (t *Transport) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := transport.Decode(line)
		if err != nil {
			logger.KV(xlog.WARNING, "reason", "undecodable_message", "err", err.Error())
			t.handleError(err)
			continue
		}

		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(ctx, msg)
		}
	}

	if err := scanner.Err(); err != nil {
		t.handleError(err)
		return errors.Wrap(err, "stdin read failed")
	}
	// EOF: the host closed our stdin, shut down.
	return t.Close()
}

// Send implements transport.Transport.
func (t *Transport) Send(ctx context.Context, msg *transport.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Close implements transport.Transport. It is idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	handler := t.closeHandler
	t.mu.Unlock()

	if handler != nil {
		handler()
	}
	return nil
}

// SetMessageHandler implements transport.Transport.
func (t *Transport) SetMessageHandler(handler func(ctx context.Context, msg *transport.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (t *Transport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements transport.Transport.
func (t *Transport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

func (t *Transport) handleError(err error) {
	t.mu.RLock()
	handler := t.errorHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(err)
	}
}

var _ transport.Transport = (*Transport)(nil)
