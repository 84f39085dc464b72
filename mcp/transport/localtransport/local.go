// Package localtransport implements an in-process MCP transport pair: a
// server side fed by HandleMessage and a client side connected to it
// directly, with no wire in between. It serves embedded use and tests.
package localtransport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/techspheredynamics/bcmcp/mcp/transport"
)

// Transport is the server side. Each HandleMessage call remaps the request
// id to a process-unique key, dispatches the message, and blocks until the
// matching reply is sent back.
type Transport struct {
	mu             sync.RWMutex
	messageHandler func(ctx context.Context, msg *transport.Message)
	closeHandler   func()
	pending        map[transport.RequestID]chan *transport.Message
	nextKey        int64
}

// New creates a server-side local transport.
func New() *Transport {
	return &Transport{
		pending: make(map[transport.RequestID]chan *transport.Message),
	}
}

// Start implements transport.Transport. The local transport has no
// connection to establish.
func (s *Transport) Start(_ context.Context) error { return nil }

// Close implements transport.Transport.
func (s *Transport) Close() error {
	s.mu.RLock()
	handler := s.closeHandler
	s.mu.RUnlock()
	if handler != nil {
		handler()
	}
	return nil
}

// SetMessageHandler implements transport.Transport.
func (s *Transport) SetMessageHandler(handler func(ctx context.Context, msg *transport.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageHandler = handler
}

// SetErrorHandler implements transport.Transport.
func (s *Transport) SetErrorHandler(func(error)) {}

// SetCloseHandler implements transport.Transport.
func (s *Transport) SetCloseHandler(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeHandler = handler
}

// Send implements transport.Transport. It routes a reply back to the
// HandleMessage call waiting on its id; notifications are dropped, the
// local pair has no standing connection to carry them.
func (s *Transport) Send(_ context.Context, msg *transport.Message) error {
	if msg.Kind == transport.KindNotification {
		return nil
	}

	key := msg.MessageID()
	s.mu.RLock()
	ch := s.pending[key]
	s.mu.RUnlock()
	if ch == nil {
		return errors.Errorf("no pending request for id: %d", key)
	}
	ch <- msg
	return nil
}

// HandleMessage feeds one raw JSON-RPC message into the server and returns
// the reply. Notifications return nil.
func (s *Transport) HandleMessage(ctx context.Context, body []byte) (*transport.Message, error) {
	msg, err := transport.Decode(body)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	handler := s.messageHandler
	s.mu.RUnlock()
	if handler == nil {
		return nil, errors.New("no message handler set")
	}

	if msg.Kind != transport.KindRequest {
		handler(ctx, msg)
		return nil, nil
	}

	origID := msg.MessageID()
	key := transport.RequestID(atomic.AddInt64(&s.nextKey, 1))
	msg.SetMessageID(key)

	ch := make(chan *transport.Message, 1)
	s.mu.Lock()
	s.pending[key] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, key)
		s.mu.Unlock()
	}()

	handler(ctx, msg)

	select {
	case reply := <-ch:
		reply.SetMessageID(origID)
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ transport.Transport = (*Transport)(nil)
