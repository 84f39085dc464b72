package localtransport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/techspheredynamics/bcmcp/mcp/transport"
)

// ClientTransport is the client side of the local pair. Send feeds the
// message straight into the server transport and delivers the reply to the
// client's message handler.
type ClientTransport struct {
	mu             sync.RWMutex
	messageHandler func(ctx context.Context, msg *transport.Message)
	closeHandler   func()
	server         *Transport
}

// NewClientTransport creates a client transport connected to a server-side
// local transport.
func NewClientTransport(server *Transport) *ClientTransport {
	return &ClientTransport{server: server}
}

// Start implements transport.Transport. There is no connection to
// establish.
func (t *ClientTransport) Start(_ context.Context) error { return nil }

// Send implements transport.Transport.
func (t *ClientTransport) Send(ctx context.Context, msg *transport.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	reply, err := t.server.HandleMessage(ctx, body)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler != nil {
		handler(ctx, reply)
	}
	return nil
}

// Close implements transport.Transport.
func (t *ClientTransport) Close() error {
	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetMessageHandler implements transport.Transport.
func (t *ClientTransport) SetMessageHandler(handler func(ctx context.Context, msg *transport.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (t *ClientTransport) SetErrorHandler(func(error)) {}

// SetCloseHandler implements transport.Transport.
func (t *ClientTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

var _ transport.Transport = (*ClientTransport)(nil)
