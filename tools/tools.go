// Package tools defines the tool contract shared by the Business Central
// toolset: name, description, parameter schema, and both string and typed
// invocation, plus registration with an MCP server.
package tools

import (
	"context"

	"github.com/techspheredynamics/bcmcp/mcp"
	"github.com/techspheredynamics/bcmcp/utils"
)

// McpServerRegistrator registers tools with an MCP server.
type McpServerRegistrator interface {
	RegisterTool(name string, description string, handler any) error
}

// ITool is a callable tool.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() any

	// Call executes the tool with the given JSON input and returns the result.
	Call(context.Context, string) (string, error)
}

type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// IMCPTool is a tool that can also attach itself to an MCP server.
type IMCPTool interface {
	ITool
	RegisterMCP(registrator McpServerRegistrator) error
}

type MCPTool[I any] interface {
	IMCPTool
	RunMCP(context.Context, *I) (*mcp.ToolResponse, error)
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions renders the names and descriptions of the tools as a
// fenced JSON block.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return utils.BackticksJSON(utils.ToJSONIndent(d))
}
