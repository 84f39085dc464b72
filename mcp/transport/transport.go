// Package transport defines the JSON-RPC 2.0 message framing shared by the
// MCP transports and the protocol layer.
package transport

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RequestID identifies a request/response pair on one connection.
type RequestID int64

// Request is an incoming or outgoing JSON-RPC request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Notification is a one-way message without an id.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response carries the result of a request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      RequestID       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// ErrorDetail is the error member of an error response.
type ErrorDetail struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      RequestID   `json:"id"`
	Error   ErrorDetail `json:"error"`
}

// MessageKind tags the active member of a Message.
type MessageKind string

const (
	KindRequest      MessageKind = "request"
	KindNotification MessageKind = "notification"
	KindResponse     MessageKind = "response"
	KindError        MessageKind = "error"
)

// Message is the union of the four JSON-RPC message shapes. Exactly one
// member matching Kind is set.
type Message struct {
	Kind         MessageKind
	Request      *Request
	Notification *Notification
	Response     *Response
	Error        *ErrorResponse
}

// NewRequestMessage wraps a request.
func NewRequestMessage(req *Request) *Message {
	return &Message{Kind: KindRequest, Request: req}
}

// NewNotificationMessage wraps a notification.
func NewNotificationMessage(n *Notification) *Message {
	return &Message{Kind: KindNotification, Notification: n}
}

// NewResponseMessage wraps a response.
func NewResponseMessage(resp *Response) *Message {
	return &Message{Kind: KindResponse, Response: resp}
}

// NewErrorMessage wraps an error response.
func NewErrorMessage(e *ErrorResponse) *Message {
	return &Message{Kind: KindError, Error: e}
}

// MessageID returns the correlation id of the active member, or 0 for
// notifications.
func (m *Message) MessageID() RequestID {
	switch m.Kind {
	case KindRequest:
		return m.Request.ID
	case KindResponse:
		return m.Response.ID
	case KindError:
		return m.Error.ID
	default:
		return 0
	}
}

// SetMessageID rewrites the correlation id of the active member.
func (m *Message) SetMessageID(id RequestID) {
	switch m.Kind {
	case KindRequest:
		m.Request.ID = id
	case KindResponse:
		m.Response.ID = id
	case KindError:
		m.Error.ID = id
	}
}

// MarshalJSON renders the active member.
func (m *Message) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case KindRequest:
		return json.Marshal(m.Request)
	case KindNotification:
		return json.Marshal(m.Notification)
	case KindResponse:
		return json.Marshal(m.Response)
	case KindError:
		return json.Marshal(m.Error)
	default:
		return nil, errors.Errorf("unknown message kind: %s", m.Kind)
	}
}

// probe pulls out just enough of a raw message to classify it.
type probe struct {
	ID     *RequestID      `json:"id"`
	Method *string         `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

// Decode classifies a raw JSON-RPC message by its fields: method+id is a
// request, method alone a notification, error+id an error response,
// anything else with an id a response.
func Decode(body []byte) (*Message, error) {
	var p probe
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.Wrap(err, "invalid JSON-RPC message")
	}

	switch {
	case p.Method != nil && p.ID != nil:
		var req Request
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, errors.Wrap(err, "invalid request")
		}
		return NewRequestMessage(&req), nil

	case p.Method != nil:
		var n Notification
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, errors.Wrap(err, "invalid notification")
		}
		return NewNotificationMessage(&n), nil

	case p.Error != nil && p.ID != nil:
		var e ErrorResponse
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, errors.Wrap(err, "invalid error response")
		}
		return NewErrorMessage(&e), nil

	case p.ID != nil:
		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrap(err, "invalid response")
		}
		return NewResponseMessage(&resp), nil

	default:
		return nil, errors.New("message is neither request, notification, response nor error")
	}
}

// Transport moves JSON-RPC messages over some wire. Implementations invoke
// the message handler for every inbound message and are safe for concurrent
// Send calls.
type Transport interface {
	// Start begins reading messages. Blocking or not is up to the
	// implementation; stdio blocks until EOF.
	Start(ctx context.Context) error
	// Send writes one message.
	Send(ctx context.Context, msg *Message) error
	// Close shuts the transport down and fires the close handler.
	Close() error

	SetMessageHandler(handler func(ctx context.Context, msg *Message))
	SetErrorHandler(handler func(err error))
	SetCloseHandler(handler func())
}
