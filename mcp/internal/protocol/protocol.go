// Package protocol implements the JSON-RPC layer beneath the MCP server:
// request/response correlation, per-request cancellation, progress
// notifications and error propagation on top of a pluggable transport.
package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/tidwall/sjson"

	"github.com/techspheredynamics/bcmcp/mcp/transport"
)

var logger = xlog.NewPackageLogger("github.com/techspheredynamics/bcmcp/mcp/internal", "protocol")

// DefaultRequestTimeout bounds outgoing requests that carry no explicit
// timeout.
const DefaultRequestTimeout = 60 * time.Second

// Progress is a progress update for a long-running request.
type Progress struct {
	Progress int64 `json:"progress"`
	Total    int64 `json:"total"`
}

// ProgressFunc receives progress notifications for an outgoing request.
type ProgressFunc func(p Progress)

// RequestHandler serves one inbound method. The returned value is marshalled
// into the response result.
type RequestHandler func(ctx context.Context, req *transport.Request) (any, error)

// NotificationHandler serves one inbound notification method.
type NotificationHandler func(n *transport.Notification) error

// RequestOptions tune one outgoing request.
type RequestOptions struct {
	OnProgress ProgressFunc
	Timeout    time.Duration
}

// Protocol correlates JSON-RPC traffic on one transport. All public methods
// are safe for concurrent use.
type Protocol struct {
	mu        sync.RWMutex
	transport transport.Transport
	nextID    transport.RequestID

	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	cancellers           map[transport.RequestID]context.CancelFunc
	pending              map[transport.RequestID]chan *envelope
	progress             map[transport.RequestID]ProgressFunc

	// OnClose fires when the connection goes away for any reason.
	OnClose func()
	// OnError receives out-of-band failures (undecodable messages, send
	// errors); they are reported, not fatal.
	OnError func(error)
}

type envelope struct {
	result json.RawMessage
	err    error
}

// New creates a Protocol with the default notification handlers installed.
func New() *Protocol {
	p := &Protocol{
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		cancellers:           make(map[transport.RequestID]context.CancelFunc),
		pending:              make(map[transport.RequestID]chan *envelope),
		progress:             make(map[transport.RequestID]ProgressFunc),
	}

	p.SetNotificationHandler("notifications/initialized", p.handleInitialized)
	p.SetNotificationHandler("notifications/cancelled", p.handleCancelled)
	p.SetNotificationHandler("$/progress", p.handleProgress)

	return p
}

// Connect attaches to the transport and starts it. For blocking transports
// (stdio) this blocks until the peer disconnects; install handlers before
// calling it.
func (p *Protocol) Connect(ctx context.Context, tr transport.Transport) error {
	p.mu.Lock()
	p.transport = tr
	p.mu.Unlock()

	tr.SetCloseHandler(p.handleClose)
	tr.SetErrorHandler(p.handleError)
	tr.SetMessageHandler(func(ctx context.Context, msg *transport.Message) {
		switch msg.Kind {
		case transport.KindRequest:
			p.handleRequest(ctx, msg.Request)
		case transport.KindNotification:
			p.handleNotification(msg.Notification)
		case transport.KindResponse:
			p.handleResponse(msg.Response, nil)
		case transport.KindError:
			p.handleResponse(nil, msg.Error)
		}
	})

	return tr.Start(ctx)
}

// Close shuts the transport down.
func (p *Protocol) Close() error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr != nil {
		return tr.Close()
	}
	return nil
}

// SetRequestHandler installs the handler for an inbound method.
func (p *Protocol) SetRequestHandler(method string, handler RequestHandler) {
	p.mu.Lock()
	p.requestHandlers[method] = handler
	p.mu.Unlock()
}

// SetNotificationHandler installs the handler for an inbound notification
// method.
func (p *Protocol) SetNotificationHandler(method string, handler NotificationHandler) {
	p.mu.Lock()
	p.notificationHandlers[method] = handler
	p.mu.Unlock()
}

// Notification emits a one-way message.
func (p *Protocol) Notification(method string, params any) error {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return errors.New("not connected")
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification params")
	}

	return tr.Send(context.Background(), transport.NewNotificationMessage(&transport.Notification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  raw,
	}))
}

// Request sends a request to the peer and waits for the response.
func (p *Protocol) Request(ctx context.Context, method string, params any, opts *RequestOptions) (json.RawMessage, error) {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return nil, errors.New("not connected")
	}

	if opts == nil {
		opts = &RequestOptions{}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultRequestTimeout
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	ch := make(chan *envelope, 1)
	p.pending[id] = ch
	if opts.OnProgress != nil {
		p.progress[id] = opts.OnProgress
	}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		delete(p.progress, id)
		p.mu.Unlock()
	}()

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request params")
	}
	if opts.OnProgress != nil {
		raw, err = sjson.SetBytes(raw, "_meta.progressToken", int64(id))
		if err != nil {
			return nil, errors.Wrap(err, "failed to set progress token")
		}
	}

	err = tr.Send(ctx, transport.NewRequestMessage(&transport.Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  raw,
	}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}

	select {
	case env := <-ch:
		if env.err != nil {
			return nil, env.err
		}
		return env.result, nil
	case <-ctx.Done():
		p.notifyCancelled(id, ctx.Err().Error())
		return nil, ctx.Err()
	case <-time.After(opts.Timeout):
		p.notifyCancelled(id, "request timeout")
		return nil, errors.Errorf("request timeout after %v", opts.Timeout)
	}
}

func (p *Protocol) handleRequest(ctx context.Context, req *transport.Request) {
	logger.KV(xlog.DEBUG, "method", req.Method, "id", req.ID)

	p.mu.RLock()
	handler := p.requestHandlers[req.Method]
	p.mu.RUnlock()

	if handler == nil {
		p.sendError(req.ID, codeMethodNotFound, errors.Errorf("method not found: %s", req.Method))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancellers[req.ID] = cancel
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			delete(p.cancellers, req.ID)
			p.mu.Unlock()
			cancel()
		}()

		result, err := handler(ctx, req)
		if err != nil {
			logger.KV(xlog.DEBUG, "method", req.Method, "id", req.ID, "err", err.Error())
			p.sendError(req.ID, codeInternalError, err)
			return
		}

		raw, err := json.Marshal(result)
		if err != nil {
			p.sendError(req.ID, codeInternalError, errors.Wrap(err, "failed to marshal result"))
			return
		}

		p.mu.RLock()
		tr := p.transport
		p.mu.RUnlock()
		err = tr.Send(ctx, transport.NewResponseMessage(&transport.Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  raw,
		}))
		if err != nil {
			p.handleError(errors.Wrap(err, "failed to send response"))
		}
	}()
}

func (p *Protocol) handleNotification(n *transport.Notification) {
	logger.KV(xlog.DEBUG, "method", n.Method)

	p.mu.RLock()
	handler := p.notificationHandlers[n.Method]
	p.mu.RUnlock()
	if handler == nil {
		return
	}

	go func() {
		if err := handler(n); err != nil {
			p.handleError(errors.Wrap(err, "notification handler failed"))
		}
	}()
}

func (p *Protocol) handleResponse(resp *transport.Response, errResp *transport.ErrorResponse) {
	var id transport.RequestID
	env := &envelope{}

	if errResp != nil {
		id = errResp.ID
		env.err = errors.Errorf("RPC error %d: %s", errResp.Error.Code, errResp.Error.Message)
	} else {
		id = resp.ID
		env.result = resp.Result
	}

	p.mu.RLock()
	ch := p.pending[id]
	p.mu.RUnlock()
	if ch != nil {
		ch <- env
	}
}

func (p *Protocol) handleInitialized(n *transport.Notification) error {
	logger.KV(xlog.DEBUG, "method", n.Method)
	return nil
}

func (p *Protocol) handleCancelled(n *transport.Notification) error {
	var params struct {
		RequestID transport.RequestID `json:"requestId"`
		Reason    string              `json:"reason"`
	}
	if err := json.Unmarshal(n.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal cancelled params")
	}

	p.mu.RLock()
	cancel := p.cancellers[params.RequestID]
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (p *Protocol) handleProgress(n *transport.Notification) error {
	var params struct {
		Progress      int64               `json:"progress"`
		Total         int64               `json:"total"`
		ProgressToken transport.RequestID `json:"progressToken"`
	}
	if err := json.Unmarshal(n.Params, &params); err != nil {
		return errors.Wrap(err, "failed to unmarshal progress params")
	}

	p.mu.RLock()
	handler := p.progress[params.ProgressToken]
	p.mu.RUnlock()
	if handler != nil {
		handler(Progress{Progress: params.Progress, Total: params.Total})
	}
	return nil
}

func (p *Protocol) handleClose() {
	p.mu.Lock()
	for _, cancel := range p.cancellers {
		cancel()
	}
	p.cancellers = make(map[transport.RequestID]context.CancelFunc)

	for id, ch := range p.pending {
		ch <- &envelope{err: errors.New("connection closed")}
		close(ch)
		delete(p.pending, id)
	}
	onClose := p.OnClose
	p.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}

func (p *Protocol) handleError(err error) {
	if p.OnError != nil {
		p.OnError(err)
	}
}

func (p *Protocol) notifyCancelled(id transport.RequestID, reason string) {
	_ = p.Notification("notifications/cancelled", map[string]any{
		"requestId": id,
		"reason":    reason,
	})
}

// JSON-RPC error codes.
const (
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

func (p *Protocol) sendError(id transport.RequestID, code int, err error) {
	p.mu.RLock()
	tr := p.transport
	p.mu.RUnlock()
	if tr == nil {
		return
	}

	serr := tr.Send(context.Background(), transport.NewErrorMessage(&transport.ErrorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: transport.ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	}))
	if serr != nil {
		p.handleError(errors.Wrap(serr, "failed to send error response"))
	}
}
