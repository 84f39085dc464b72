// Package mcp implements a Model Context Protocol server: typed tool,
// prompt and resource registration on top of the JSON-RPC protocol layer.
package mcp

import (
	"context"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/techspheredynamics/bcmcp/mcp/internal/protocol"
	"github.com/techspheredynamics/bcmcp/mcp/transport"
	"github.com/techspheredynamics/bcmcp/schema"
)

var logger = xlog.NewPackageLogger("github.com/techspheredynamics/bcmcp", "mcp")

type serverTool struct {
	info    *ToolInfo
	handler func(ctx context.Context, args json.RawMessage) (*ToolResponse, error)
}

type serverPrompt struct {
	info    *PromptInfo
	handler func(ctx context.Context, args json.RawMessage) (*PromptResponse, error)
}

type serverResource struct {
	info    *ResourceInfo
	handler func(ctx context.Context) (*ResourceResponse, error)
}

// Server exposes registered tools, prompts and resources over one MCP
// transport. Registration is safe at any time; list_changed notifications
// are emitted once the server is connected.
type Server struct {
	mu        sync.RWMutex
	protocol  *protocol.Protocol
	transport transport.Transport
	info      Implementation

	tools     *orderedmap.OrderedMap[string, *serverTool]
	prompts   *orderedmap.OrderedMap[string, *serverPrompt]
	resources *orderedmap.OrderedMap[string, *serverResource]

	connected bool
}

// NewServer creates a server bound to the transport.
func NewServer(tr transport.Transport) *Server {
	return &Server{
		protocol:  protocol.New(),
		transport: tr,
		info:      Implementation{Name: "bcmcp", Version: "0.1.0"},
		tools:     orderedmap.New[string, *serverTool](),
		prompts:   orderedmap.New[string, *serverPrompt](),
		resources: orderedmap.New[string, *serverResource](),
	}
}

// WithInfo sets the server identity reported in the initialize result.
func (s *Server) WithInfo(name, version string) *Server {
	s.info = Implementation{Name: name, Version: version}
	return s
}

var (
	ctxType          = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType          = reflect.TypeOf((*error)(nil)).Elem()
	toolRespType     = reflect.TypeOf((*ToolResponse)(nil))
	promptRespType   = reflect.TypeOf((*PromptResponse)(nil))
	resourceRespType = reflect.TypeOf((*ResourceResponse)(nil))
)

// RegisterTool adds a tool. The handler must be
// func(ctx context.Context, args *T) (*ToolResponse, error) for a struct T;
// the input schema is derived from T.
func (s *Server) RegisterTool(name, description string, handler any) error {
	argsType, call, err := wrapHandler(handler, toolRespType)
	if err != nil {
		return errors.WithMessagef(err, "tool %q", name)
	}

	sc, err := schema.New(argsType)
	if err != nil {
		return errors.WithMessagef(err, "tool %q", name)
	}

	st := &serverTool{
		info: &ToolInfo{
			Name:        name,
			Description: description,
			InputSchema: sc.Parameters,
		},
		handler: func(ctx context.Context, args json.RawMessage) (*ToolResponse, error) {
			out, err := call(ctx, args)
			if err != nil {
				return nil, err
			}
			return out.(*ToolResponse), nil
		},
	}

	s.mu.Lock()
	s.tools.Set(name, st)
	s.mu.Unlock()

	s.notifyListChanged("notifications/tools/list_changed")
	return nil
}

// RegisterPrompt adds a prompt. The handler must be
// func(ctx context.Context, args *T) (*PromptResponse, error); the prompt
// arguments are derived from T.
func (s *Server) RegisterPrompt(name, description string, handler any) error {
	argsType, call, err := wrapHandler(handler, promptRespType)
	if err != nil {
		return errors.WithMessagef(err, "prompt %q", name)
	}

	sc, err := schema.New(argsType)
	if err != nil {
		return errors.WithMessagef(err, "prompt %q", name)
	}

	sp := &serverPrompt{
		info: &PromptInfo{
			Name:        name,
			Description: description,
			Arguments:   promptArguments(sc),
		},
		handler: func(ctx context.Context, args json.RawMessage) (*PromptResponse, error) {
			out, err := call(ctx, args)
			if err != nil {
				return nil, err
			}
			return out.(*PromptResponse), nil
		},
	}

	s.mu.Lock()
	s.prompts.Set(name, sp)
	s.mu.Unlock()

	s.notifyListChanged("notifications/prompts/list_changed")
	return nil
}

// RegisterResource adds a readable resource.
func (s *Server) RegisterResource(uri, name, description, mimeType string, handler func(ctx context.Context) (*ResourceResponse, error)) error {
	if handler == nil {
		return errors.Errorf("resource %q: nil handler", uri)
	}

	sr := &serverResource{
		info: &ResourceInfo{
			URI:         uri,
			Name:        name,
			Description: description,
			MimeType:    mimeType,
		},
		handler: handler,
	}

	s.mu.Lock()
	s.resources.Set(uri, sr)
	s.mu.Unlock()

	s.notifyListChanged("notifications/resources/list_changed")
	return nil
}

// Serve installs the method handlers and runs the transport. For stdio this
// blocks until the host closes the connection.
func (s *Server) Serve(ctx context.Context) error {
	s.protocol.SetRequestHandler("initialize", s.handleInitialize)
	s.protocol.SetRequestHandler("ping", s.handlePing)
	s.protocol.SetRequestHandler("tools/list", s.handleToolsList)
	s.protocol.SetRequestHandler("tools/call", s.handleToolsCall)
	s.protocol.SetRequestHandler("prompts/list", s.handlePromptsList)
	s.protocol.SetRequestHandler("prompts/get", s.handlePromptsGet)
	s.protocol.SetRequestHandler("resources/list", s.handleResourcesList)
	s.protocol.SetRequestHandler("resources/read", s.handleResourcesRead)

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()

	return s.protocol.Connect(ctx, s.transport)
}

// Close shuts the server down.
func (s *Server) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return s.protocol.Close()
}

func (s *Server) handleInitialize(_ context.Context, req *transport.Request) (any, error) {
	var params initializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, errors.Wrap(err, "invalid initialize params")
		}
	}

	logger.KV(xlog.INFO,
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", params.ProtocolVersion)

	return &initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: serverCapabilities{
			Tools:     &listChangedCapability{ListChanged: true},
			Prompts:   &listChangedCapability{ListChanged: true},
			Resources: &listChangedCapability{ListChanged: true},
		},
		ServerInfo: s.info,
	}, nil
}

func (s *Server) handlePing(_ context.Context, _ *transport.Request) (any, error) {
	return map[string]any{}, nil
}

func (s *Server) handleToolsList(_ context.Context, _ *transport.Request) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := &toolsListResult{Tools: []*ToolInfo{}}
	for pair := s.tools.Oldest(); pair != nil; pair = pair.Next() {
		res.Tools = append(res.Tools, pair.Value.info)
	}
	return res, nil
}

func (s *Server) handleToolsCall(ctx context.Context, req *transport.Request) (any, error) {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "invalid tools/call params")
	}

	s.mu.RLock()
	st, ok := s.tools.Get(params.Name)
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown tool: %s", params.Name)
	}

	logger.ContextKV(ctx, xlog.DEBUG, "tool", params.Name)

	res, err := st.handler(ctx, params.Arguments)
	if err != nil {
		// Tool failures travel as results, not protocol errors, so the
		// model can read them.
		logger.ContextKV(ctx, xlog.WARNING, "tool", params.Name, "err", err.Error())
		return NewToolErrorResponse(err.Error()), nil
	}
	return res, nil
}

func (s *Server) handlePromptsList(_ context.Context, _ *transport.Request) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := &promptsListResult{Prompts: []*PromptInfo{}}
	for pair := s.prompts.Oldest(); pair != nil; pair = pair.Next() {
		res.Prompts = append(res.Prompts, pair.Value.info)
	}
	return res, nil
}

func (s *Server) handlePromptsGet(ctx context.Context, req *transport.Request) (any, error) {
	var params promptGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "invalid prompts/get params")
	}

	s.mu.RLock()
	sp, ok := s.prompts.Get(params.Name)
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown prompt: %s", params.Name)
	}

	return sp.handler(ctx, params.Arguments)
}

func (s *Server) handleResourcesList(_ context.Context, _ *transport.Request) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := &resourcesListResult{Resources: []*ResourceInfo{}}
	for pair := s.resources.Oldest(); pair != nil; pair = pair.Next() {
		res.Resources = append(res.Resources, pair.Value.info)
	}
	return res, nil
}

func (s *Server) handleResourcesRead(ctx context.Context, req *transport.Request) (any, error) {
	var params resourceReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, errors.Wrap(err, "invalid resources/read params")
	}

	s.mu.RLock()
	sr, ok := s.resources.Get(params.URI)
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown resource: %s", params.URI)
	}

	return sr.handler(ctx)
}

func (s *Server) notifyListChanged(method string) {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	if !connected {
		return
	}

	if err := s.protocol.Notification(method, map[string]any{}); err != nil {
		logger.KV(xlog.WARNING, "method", method, "err", err.Error())
	}
}

// wrapHandler validates a typed handler and returns the argument struct type
// plus an untyped caller that unmarshals raw JSON arguments.
func wrapHandler(handler any, respType reflect.Type) (reflect.Type, func(ctx context.Context, args json.RawMessage) (any, error), error) {
	if handler == nil {
		return nil, nil, errors.New("nil handler")
	}

	hv := reflect.ValueOf(handler)
	ht := hv.Type()
	if ht.Kind() != reflect.Func {
		return nil, nil, errors.Errorf("handler must be a function, got %s", ht.Kind())
	}
	if ht.NumIn() != 2 || ht.In(0) != ctxType {
		return nil, nil, errors.New("handler must take (context.Context, *T)")
	}
	if ht.NumOut() != 2 || ht.Out(0) != respType || ht.Out(1) != errType {
		return nil, nil, errors.Errorf("handler must return (%s, error)", respType)
	}

	argType := ht.In(1)
	byPointer := argType.Kind() == reflect.Pointer
	structType := argType
	if byPointer {
		structType = argType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return nil, nil, errors.Errorf("handler argument must be a struct, got %s", structType.Kind())
	}

	call := func(ctx context.Context, args json.RawMessage) (any, error) {
		argPtr := reflect.New(structType)
		if len(args) > 0 {
			if err := json.Unmarshal(args, argPtr.Interface()); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal arguments")
			}
		}

		argVal := argPtr
		if !byPointer {
			argVal = argPtr.Elem()
		}

		out := hv.Call([]reflect.Value{reflect.ValueOf(ctx), argVal})
		if !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}

	return structType, call, nil
}

// promptArguments converts a flattened schema's properties into prompt
// argument declarations.
func promptArguments(sc *schema.Schema) []PromptArgument {
	required := make(map[string]bool, len(sc.Parameters.Required))
	for _, name := range sc.Parameters.Required {
		required[name] = true
	}

	var args []PromptArgument
	for pair := sc.Parameters.Properties.Oldest(); pair != nil; pair = pair.Next() {
		args = append(args, PromptArgument{
			Name:        pair.Key,
			Description: pair.Value.Description,
			Required:    required[pair.Key],
		})
	}
	return args
}
