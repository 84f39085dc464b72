package mcp

import "encoding/json"

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Content is one item of a tool or prompt result. Only text content is
// produced by this server.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent wraps text in a content item.
func NewTextContent(text string) *Content {
	return &Content{Type: "text", Text: text}
}

// ToolResponse is the result of a tools/call request.
type ToolResponse struct {
	Content []*Content `json:"content"`
	IsError bool       `json:"isError,omitempty"`
}

// NewToolResponse builds a successful tool result.
func NewToolResponse(content ...*Content) *ToolResponse {
	return &ToolResponse{Content: content}
}

// NewToolErrorResponse builds a failed tool result carrying the error text.
func NewToolErrorResponse(text string) *ToolResponse {
	return &ToolResponse{
		Content: []*Content{NewTextContent(text)},
		IsError: true,
	}
}

// PromptMessage is one message of a prompt result.
type PromptMessage struct {
	Role    string   `json:"role"`
	Content *Content `json:"content"`
}

// NewPromptMessage builds a prompt message.
func NewPromptMessage(role string, content *Content) *PromptMessage {
	return &PromptMessage{Role: role, Content: content}
}

// PromptResponse is the result of a prompts/get request.
type PromptResponse struct {
	Description string           `json:"description,omitempty"`
	Messages    []*PromptMessage `json:"messages"`
}

// NewPromptResponse builds a prompt result.
func NewPromptResponse(description string, messages ...*PromptMessage) *PromptResponse {
	return &PromptResponse{Description: description, Messages: messages}
}

// ResourceContent is one document of a resources/read result.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

// ResourceResponse is the result of a resources/read request.
type ResourceResponse struct {
	Contents []*ResourceContent `json:"contents"`
}

// NewTextResourceResponse builds a single-document text resource result.
func NewTextResourceResponse(uri, mimeType, text string) *ResourceResponse {
	return &ResourceResponse{
		Contents: []*ResourceContent{{URI: uri, MimeType: mimeType, Text: text}},
	}
}

// ToolInfo describes one tool in a tools/list result.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema"`
}

// PromptArgument describes one argument of a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptInfo describes one prompt in a prompts/list result.
type PromptInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ResourceInfo describes one resource in a resources/list result.
type ResourceInfo struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Implementation identifies a client or server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type listChangedCapability struct {
	ListChanged bool `json:"listChanged"`
}

type serverCapabilities struct {
	Tools     *listChangedCapability `json:"tools,omitempty"`
	Prompts   *listChangedCapability `json:"prompts,omitempty"`
	Resources *listChangedCapability `json:"resources,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ClientInfo      Implementation  `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

type toolsListResult struct {
	Tools []*ToolInfo `json:"tools"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type promptsListResult struct {
	Prompts []*PromptInfo `json:"prompts"`
}

type promptGetParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type resourcesListResult struct {
	Resources []*ResourceInfo `json:"resources"`
}

type resourceReadParams struct {
	URI string `json:"uri"`
}
