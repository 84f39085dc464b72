package bc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/techspheredynamics/bcmcp/bcapi"
	"github.com/techspheredynamics/bcmcp/mcp"
	"github.com/techspheredynamics/bcmcp/tools"
	"github.com/techspheredynamics/bcmcp/utils"
)

const (
	DeliveryRoutesToolName  = "get_delivery_routes"
	OptimizeRouteToolName   = "optimize_route"
	InventoryStatusToolName = "get_inventory_status"
)

// DeliveryRoutesRequest represents the get_delivery_routes input.
type DeliveryRoutesRequest struct {
	DateFrom string `json:"date_from" jsonschema:"title=Date From,description=Earliest route date (YYYY-MM-DD)"`
	DateTo   string `json:"date_to" jsonschema:"title=Date To,description=Latest route date (YYYY-MM-DD)"`
	DriverID string `json:"driver_id,omitempty" jsonschema:"title=Driver ID,description=Restrict results to one driver"`
}

// DeliveryRoutesResult holds the listed routes.
type DeliveryRoutesResult struct {
	Routes []bcapi.DeliveryRoute `json:"routes"`
}

func (r *DeliveryRoutesResult) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "**Delivery Routes** (Showing %d results)\n\n", len(r.Routes))
	for _, rt := range r.Routes {
		fmt.Fprintf(&buf, "• **%s** - %s\n", orNA(rt.No), orNA(rt.DriverName))
		fmt.Fprintf(&buf, "  Date: %s\n", orNA(rt.RouteDate))
		fmt.Fprintf(&buf, "  Status: %s\n", orNA(rt.Status))
		fmt.Fprintf(&buf, "  Deliveries: %d\n", rt.DeliveryCount)
		fmt.Fprintf(&buf, "  Distance: %s km\n\n", num(rt.TotalDistanceKm))
	}
	return buf.String()
}

// DeliveryRoutesTool lists planned routes in a date range.
type DeliveryRoutesTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[DeliveryRoutesRequest] = (*DeliveryRoutesTool)(nil)

func NewDeliveryRoutesTool(client *bcapi.Client) *DeliveryRoutesTool {
	return &DeliveryRoutesTool{
		name:        DeliveryRoutesToolName,
		description: "Get delivery routes from Business Central for a date range",
		client:      client,
	}
}

func (t *DeliveryRoutesTool) Name() string        { return t.name }
func (t *DeliveryRoutesTool) Description() string { return t.description }
func (t *DeliveryRoutesTool) Parameters() any     { return paramsFor[DeliveryRoutesRequest]() }

func (t *DeliveryRoutesTool) Run(ctx context.Context, req *DeliveryRoutesRequest) (*DeliveryRoutesResult, error) {
	if req.DateFrom == "" || req.DateTo == "" {
		return nil, errors.New("invalid request: date_from and date_to are required")
	}
	routes, err := t.client.GetDeliveryRoutes(ctx, req.DateFrom, req.DateTo, req.DriverID)
	if err != nil {
		return nil, err
	}
	return &DeliveryRoutesResult{Routes: routes}, nil
}

func (t *DeliveryRoutesTool) RunMCP(ctx context.Context, req *DeliveryRoutesRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *DeliveryRoutesTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *DeliveryRoutesTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// OptimizeRouteRequest represents the optimize_route input. The payload is
// passed to the optimization endpoint unchanged.
type OptimizeRouteRequest struct {
	RouteData map[string]any `json:"route_data" jsonschema:"title=Route Data,description=Route definition to optimize"`
}

// OptimizeRouteResult holds the raw optimization result, nil when the
// service declined or is unreachable.
type OptimizeRouteResult struct {
	Result map[string]any `json:"result,omitempty"`
}

func (r *OptimizeRouteResult) String() string {
	if r.Result == nil {
		return "Route optimization unavailable: Business Central rejected the request or is unreachable."
	}
	return "**Route Optimization Result**\n" + utils.BackticksJSON(utils.ToJSONIndent(r.Result))
}

// OptimizeRouteTool submits a route for optimization.
type OptimizeRouteTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[OptimizeRouteRequest] = (*OptimizeRouteTool)(nil)

func NewOptimizeRouteTool(client *bcapi.Client) *OptimizeRouteTool {
	return &OptimizeRouteTool{
		name:        OptimizeRouteToolName,
		description: "Optimize a delivery route using the Business Central route optimizer",
		client:      client,
	}
}

func (t *OptimizeRouteTool) Name() string        { return t.name }
func (t *OptimizeRouteTool) Description() string { return t.description }
func (t *OptimizeRouteTool) Parameters() any     { return paramsFor[OptimizeRouteRequest]() }

func (t *OptimizeRouteTool) Run(ctx context.Context, req *OptimizeRouteRequest) (*OptimizeRouteResult, error) {
	if len(req.RouteData) == 0 {
		return nil, errors.New("invalid request: empty route_data")
	}
	result, err := t.client.OptimizeRoute(ctx, req.RouteData)
	if err != nil {
		return nil, err
	}
	return &OptimizeRouteResult{Result: result}, nil
}

func (t *OptimizeRouteTool) RunMCP(ctx context.Context, req *OptimizeRouteRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *OptimizeRouteTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *OptimizeRouteTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// InventoryStatusRequest represents the get_inventory_status input.
type InventoryStatusRequest struct {
	WarehouseID string `json:"warehouse_id,omitempty" jsonschema:"title=Warehouse ID,description=Restrict results to one warehouse"`
}

// InventoryStatusResult holds the listed inventory rows.
type InventoryStatusResult struct {
	Inventory []bcapi.InventoryStatus `json:"inventory"`
}

func (r *InventoryStatusResult) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "**Inventory Status** (Showing %d results)\n\n", len(r.Inventory))
	for _, row := range r.Inventory {
		fmt.Fprintf(&buf, "• **%s** %s\n", orNA(row.ItemNumber), orNA(row.ItemName))
		fmt.Fprintf(&buf, "  Warehouse: %s\n", orNA(row.WarehouseID))
		fmt.Fprintf(&buf, "  On hand: %s, Reserved: %s, Available: %s\n\n",
			num(row.QuantityOnHand), num(row.QuantityReserved), num(row.QuantityAvailable))
	}
	return buf.String()
}

// InventoryStatusTool lists warehouse inventory of the delivery extension.
type InventoryStatusTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[InventoryStatusRequest] = (*InventoryStatusTool)(nil)

func NewInventoryStatusTool(client *bcapi.Client) *InventoryStatusTool {
	return &InventoryStatusTool{
		name:        InventoryStatusToolName,
		description: "Get warehouse inventory status from Business Central",
		client:      client,
	}
}

func (t *InventoryStatusTool) Name() string        { return t.name }
func (t *InventoryStatusTool) Description() string { return t.description }
func (t *InventoryStatusTool) Parameters() any     { return paramsFor[InventoryStatusRequest]() }

func (t *InventoryStatusTool) Run(ctx context.Context, req *InventoryStatusRequest) (*InventoryStatusResult, error) {
	inventory, err := t.client.GetInventoryStatus(ctx, req.WarehouseID)
	if err != nil {
		return nil, err
	}
	return &InventoryStatusResult{Inventory: inventory}, nil
}

func (t *InventoryStatusTool) RunMCP(ctx context.Context, req *InventoryStatusRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *InventoryStatusTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *InventoryStatusTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}
