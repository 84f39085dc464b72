// Package bc exposes Business Central operations as MCP tools: customer,
// item and sales order lookups on the standard API, plus the delivery
// extension (deliveries, routes, inventory). Results are rendered as
// human-readable text for the model.
package bc

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/techspheredynamics/bcmcp/bcapi"
	"github.com/techspheredynamics/bcmcp/mcp"
	"github.com/techspheredynamics/bcmcp/schema"
	"github.com/techspheredynamics/bcmcp/tools"
)

var logger = xlog.NewPackageLogger("github.com/techspheredynamics/bcmcp/tools", "bc")

// New returns the full Business Central toolset.
func New(client *bcapi.Client) []tools.IMCPTool {
	return []tools.IMCPTool{
		NewCustomersTool(client),
		NewCustomerDetailsTool(client),
		NewCreateCustomerTool(client),
		NewItemsTool(client),
		NewItemDetailsTool(client),
		NewSalesOrdersTool(client),
		NewCurrencyRatesTool(client),
		NewDeliveriesTool(client),
		NewDeliveryDetailsTool(client),
		NewUpdateDeliveryStatusTool(client),
		NewDeliveryRoutesTool(client),
		NewOptimizeRouteTool(client),
		NewInventoryStatusTool(client),
	}
}

// RegisterAll attaches the full toolset to an MCP server.
func RegisterAll(registrator tools.McpServerRegistrator, client *bcapi.Client) error {
	for _, tool := range New(client) {
		if err := tool.RegisterMCP(registrator); err != nil {
			return errors.WithMessagef(err, "failed to register %s", tool.Name())
		}
	}
	return nil
}

// paramsFor reflects the parameter schema of a request type.
func paramsFor[T any]() any {
	sc, _ := schema.New(reflect.TypeOf(*new(T)))
	return sc.Parameters
}

// callText runs a typed tool against a raw JSON input string.
func callText[I any, O interface{ String() string }](ctx context.Context, run func(context.Context, *I) (O, error), input string) (string, error) {
	var req I
	if input != "" {
		if err := json.Unmarshal([]byte(input), &req); err != nil {
			return "", errors.Wrap(err, "failed to unmarshal input")
		}
	}
	out, err := run(ctx, &req)
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// textResponse wraps a result's text rendering in a tool response.
func textResponse[O interface{ String() string }](out O, err error) (*mcp.ToolResponse, error) {
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResponse(mcp.NewTextContent(out.String())), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
