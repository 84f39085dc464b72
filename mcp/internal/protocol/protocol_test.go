package protocol

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/techspheredynamics/bcmcp/mcp/transport"
)

type fakeTransport struct {
	mu             sync.Mutex
	messageHandler func(ctx context.Context, msg *transport.Message)
	closeHandler   func()
	sent           chan *transport.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan *transport.Message, 16)}
}

func (t *fakeTransport) Start(_ context.Context) error { return nil }

func (t *fakeTransport) Send(_ context.Context, msg *transport.Message) error {
	t.sent <- msg
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	handler := t.closeHandler
	t.mu.Unlock()
	if handler != nil {
		handler()
	}
	return nil
}

func (t *fakeTransport) SetMessageHandler(handler func(ctx context.Context, msg *transport.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

func (t *fakeTransport) SetErrorHandler(func(error)) {}

func (t *fakeTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

func (t *fakeTransport) deliver(msg *transport.Message) {
	t.mu.Lock()
	handler := t.messageHandler
	t.mu.Unlock()
	handler(context.Background(), msg)
}

func (t *fakeTransport) waitSent(test *testing.T) *transport.Message {
	test.Helper()
	select {
	case msg := <-t.sent:
		return msg
	case <-time.After(2 * time.Second):
		test.Fatal("no message sent")
		return nil
	}
}

func connect(t *testing.T) (*Protocol, *fakeTransport) {
	t.Helper()
	p := New()
	tr := newFakeTransport()
	require.NoError(t, p.Connect(context.Background(), tr))
	return p, tr
}

func Test_Protocol_RequestHandler(t *testing.T) {
	p, tr := connect(t)

	p.SetRequestHandler("test/method", func(_ context.Context, req *transport.Request) (any, error) {
		var params struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.Unmarshal(req.Params, &params))
		return map[string]any{"greeting": "hello " + params.Name}, nil
	})

	raw, _ := json.Marshal(map[string]any{"name": "world"})
	tr.deliver(transport.NewRequestMessage(&transport.Request{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "test/method",
		Params:  raw,
	}))

	msg := tr.waitSent(t)
	require.Equal(t, transport.KindResponse, msg.Kind)
	assert.EqualValues(t, 1, msg.Response.ID)
	assert.Equal(t, "hello world", gjson.GetBytes(msg.Response.Result, "greeting").Str)
}

func Test_Protocol_HandlerError(t *testing.T) {
	p, tr := connect(t)

	p.SetRequestHandler("test/fail", func(_ context.Context, _ *transport.Request) (any, error) {
		return nil, errors.New("boom")
	})

	tr.deliver(transport.NewRequestMessage(&transport.Request{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "test/fail",
	}))

	msg := tr.waitSent(t)
	require.Equal(t, transport.KindError, msg.Kind)
	assert.EqualValues(t, 2, msg.Error.ID)
	assert.Equal(t, -32603, msg.Error.Error.Code)
	assert.Contains(t, msg.Error.Error.Message, "boom")
}

func Test_Protocol_MethodNotFound(t *testing.T) {
	_, tr := connect(t)

	tr.deliver(transport.NewRequestMessage(&transport.Request{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "no/such/method",
	}))

	msg := tr.waitSent(t)
	require.Equal(t, transport.KindError, msg.Kind)
	assert.Equal(t, -32601, msg.Error.Error.Code)
}

func Test_Protocol_OutgoingRequest(t *testing.T) {
	p, tr := connect(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err := p.Request(context.Background(), "peer/method", map[string]any{"a": 1}, nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(42), gjson.GetBytes(result, "answer").Int())
	}()

	msg := tr.waitSent(t)
	require.Equal(t, transport.KindRequest, msg.Kind)
	assert.Equal(t, "peer/method", msg.Request.Method)

	tr.deliver(transport.NewResponseMessage(&transport.Response{
		JSONRPC: "2.0",
		ID:      msg.Request.ID,
		Result:  []byte(`{"answer":42}`),
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}
}

func Test_Protocol_OutgoingRequest_PeerError(t *testing.T) {
	p, tr := connect(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := p.Request(context.Background(), "peer/method", nil, nil)
		assert.ErrorContains(t, err, "not allowed")
	}()

	msg := tr.waitSent(t)
	tr.deliver(transport.NewErrorMessage(&transport.ErrorResponse{
		JSONRPC: "2.0",
		ID:      msg.Request.ID,
		Error:   transport.ErrorDetail{Code: -32600, Message: "not allowed"},
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}
}

func Test_Protocol_OutgoingRequest_Timeout(t *testing.T) {
	p, tr := connect(t)

	_, err := p.Request(context.Background(), "peer/slow", nil, &RequestOptions{
		Timeout: 50 * time.Millisecond,
	})
	assert.ErrorContains(t, err, "timeout")

	// The request went out, then a cancellation notification followed.
	msg := tr.waitSent(t)
	assert.Equal(t, transport.KindRequest, msg.Kind)
	msg = tr.waitSent(t)
	require.Equal(t, transport.KindNotification, msg.Kind)
	assert.Equal(t, "notifications/cancelled", msg.Notification.Method)
}

func Test_Protocol_ProgressTokenInjection(t *testing.T) {
	p, tr := connect(t)

	go func() {
		_, _ = p.Request(context.Background(), "peer/long", map[string]any{"x": 1}, &RequestOptions{
			Timeout:    time.Second,
			OnProgress: func(Progress) {},
		})
	}()

	msg := tr.waitSent(t)
	require.Equal(t, transport.KindRequest, msg.Kind)
	assert.True(t, gjson.GetBytes(msg.Request.Params, "_meta.progressToken").Exists())
	assert.EqualValues(t, 1, gjson.GetBytes(msg.Request.Params, "x").Int())
}

func Test_Protocol_CancelledNotificationStopsHandler(t *testing.T) {
	p, tr := connect(t)

	started := make(chan struct{})
	stopped := make(chan struct{})
	p.SetRequestHandler("test/slow", func(ctx context.Context, _ *transport.Request) (any, error) {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil, ctx.Err()
	})

	tr.deliver(transport.NewRequestMessage(&transport.Request{
		JSONRPC: "2.0",
		ID:      5,
		Method:  "test/slow",
	}))
	<-started

	raw, _ := json.Marshal(map[string]any{"requestId": 5, "reason": "user"})
	tr.deliver(transport.NewNotificationMessage(&transport.Notification{
		JSONRPC: "2.0",
		Method:  "notifications/cancelled",
		Params:  raw,
	}))

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not cancelled")
	}
}
