package stdio_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/techspheredynamics/bcmcp/mcp/transport"
	"github.com/techspheredynamics/bcmcp/mcp/transport/stdio"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func Test_Transport_ReadsOneMessagePerLine(t *testing.T) {
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}` + "\n" +
			"\n" + // blank lines are skipped
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n")
	out := &safeBuffer{}

	tr := stdio.NewWithIO(in, out)

	var (
		mu       sync.Mutex
		received []*transport.Message
	)
	tr.SetMessageHandler(func(_ context.Context, msg *transport.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	closed := make(chan struct{})
	tr.SetCloseHandler(func() { close(closed) })

	// EOF after the last line shuts the transport down.
	require.NoError(t, tr.Start(context.Background()))

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close handler not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, transport.KindRequest, received[0].Kind)
	assert.Equal(t, "initialize", received[0].Request.Method)
	assert.Equal(t, transport.KindNotification, received[1].Kind)
}

func Test_Transport_SendWritesNewlineDelimited(t *testing.T) {
	out := &safeBuffer{}
	tr := stdio.NewWithIO(strings.NewReader(""), out)

	err := tr.Send(context.Background(), transport.NewResponseMessage(&transport.Response{
		JSONRPC: "2.0",
		ID:      1,
		Result:  []byte(`{"ok":true}`),
	}))
	require.NoError(t, err)

	err = tr.Send(context.Background(), transport.NewNotificationMessage(&transport.Notification{
		JSONRPC: "2.0",
		Method:  "notifications/tools/list_changed",
	}))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.EqualValues(t, 1, gjson.Get(lines[0], "id").Int())
	assert.True(t, gjson.Get(lines[0], "result.ok").Bool())
	assert.Equal(t, "notifications/tools/list_changed", gjson.Get(lines[1], "method").Str)
}

func Test_Transport_UndecodableLineReportsError(t *testing.T) {
	in := strings.NewReader(
		"this is not json\n" +
			`{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n")
	tr := stdio.NewWithIO(in, &safeBuffer{})

	var (
		mu       sync.Mutex
		errs     []error
		received []*transport.Message
	)
	tr.SetErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	tr.SetMessageHandler(func(_ context.Context, msg *transport.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	require.NoError(t, tr.Start(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	// The bad line is reported, the stream keeps going.
	assert.Len(t, errs, 1)
	require.Len(t, received, 1)
	assert.Equal(t, "ping", received[0].Request.Method)
}

func Test_Transport_CloseIsIdempotent(t *testing.T) {
	tr := stdio.NewWithIO(strings.NewReader(""), io.Discard)

	var calls int
	tr.SetCloseHandler(func() { calls++ })

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, calls)
}
