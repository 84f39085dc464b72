// Package httptransport implements a stateless HTTP MCP transport: each
// POST carries one JSON-RPC message and the HTTP response carries the reply.
// The stdio transport is the primary one for desktop hosts; this one serves
// hosts that prefer plain HTTP.
package httptransport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/techspheredynamics/bcmcp/mcp/transport"
)

var logger = xlog.NewPackageLogger("github.com/techspheredynamics/bcmcp/mcp/transport", "httptransport")

const maxBodySize = 4 * 1024 * 1024

// Transport serves MCP over HTTP POST. Inbound request ids are remapped to
// server-unique keys so concurrent posts never collide; the original id is
// restored on the way out.
type Transport struct {
	server   *http.Server
	endpoint string
	addr     string

	mu             sync.RWMutex
	messageHandler func(ctx context.Context, msg *transport.Message)
	errorHandler   func(error)
	closeHandler   func()
	pending        map[transport.RequestID]chan *transport.Message
	nextKey        int64
}

// New creates a transport serving the given URL path.
func New(endpoint string) *Transport {
	return &Transport{
		endpoint: endpoint,
		addr:     ":8080",
		pending:  make(map[transport.RequestID]chan *transport.Message),
	}
}

// WithAddr sets the listen address.
func (t *Transport) WithAddr(addr string) *Transport {
	t.addr = addr
	return t
}

// Start implements transport.Transport. It blocks serving HTTP until the
// context is cancelled or the server is closed.
func (t *Transport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(t.endpoint, t.handlePost)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = t.server.Close()
	}()

	err := t.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Send implements transport.Transport. Responses are routed back to the
// waiting POST handler; notifications have no peer connection to land on and
// are dropped.
func (t *Transport) Send(ctx context.Context, msg *transport.Message) error {
	if msg.Kind == transport.KindNotification {
		return nil
	}

	key := msg.MessageID()
	t.mu.RLock()
	ch := t.pending[key]
	t.mu.RUnlock()
	if ch == nil {
		return errors.Errorf("no pending request for id: %d", key)
	}

	select {
	case ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	if t.server != nil {
		if err := t.server.Close(); err != nil {
			return err
		}
	}

	t.mu.RLock()
	handler := t.closeHandler
	t.mu.RUnlock()
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

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST is supported", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		t.handleError(errors.Wrap(err, "failed to read request body"))
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	msg, err := transport.Decode(body)
	if err != nil {
		t.handleError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t.mu.RLock()
	handler := t.messageHandler
	t.mu.RUnlock()
	if handler == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()

	if msg.Kind != transport.KindRequest {
		// One-way traffic: dispatch and acknowledge.
		handler(ctx, msg)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	origID := msg.MessageID()
	key := transport.RequestID(atomic.AddInt64(&t.nextKey, 1))
	msg.SetMessageID(key)

	ch := make(chan *transport.Message, 1)
	t.mu.Lock()
	t.pending[key] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}()

	logger.ContextKV(ctx, xlog.DEBUG, "method", msg.Request.Method, "id", origID, "key", key)

	handler(ctx, msg)

	select {
	case reply := <-ch:
		reply.SetMessageID(origID)
		data, err := reply.MarshalJSON()
		if err != nil {
			t.handleError(errors.Wrap(err, "failed to marshal response"))
			http.Error(w, "failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)

	case <-ctx.Done():
		// Client went away before the reply.
	}
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
