package bc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/techspheredynamics/bcmcp/bcapi"
	"github.com/techspheredynamics/bcmcp/mcp"
	"github.com/techspheredynamics/bcmcp/tools"
)

const (
	ItemsToolName       = "get_items"
	ItemDetailsToolName = "get_item_details"
)

// ItemsRequest represents the get_items input.
type ItemsRequest struct {
	Top int `json:"top,omitempty" jsonschema:"title=Top,description=Maximum number of items to return (default: 20)"`
}

// ItemsResult holds the listed items.
type ItemsResult struct {
	Items []bcapi.Item `json:"items"`
}

func (r *ItemsResult) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "**Business Central Items** (Showing %d results)\n\n", len(r.Items))
	for _, it := range r.Items {
		fmt.Fprintf(&buf, "• **%s** (No: %s)\n", orNA(it.DisplayName), orNA(it.Number))
		fmt.Fprintf(&buf, "  Price: %s\n", num(it.UnitPrice))
		fmt.Fprintf(&buf, "  Stock: %s\n\n", num(it.Inventory))
	}
	return buf.String()
}

// ItemsTool lists item cards.
type ItemsTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[ItemsRequest] = (*ItemsTool)(nil)

func NewItemsTool(client *bcapi.Client) *ItemsTool {
	return &ItemsTool{
		name:        ItemsToolName,
		description: "Get items list from Business Central",
		client:      client,
	}
}

func (t *ItemsTool) Name() string        { return t.name }
func (t *ItemsTool) Description() string { return t.description }
func (t *ItemsTool) Parameters() any     { return paramsFor[ItemsRequest]() }

func (t *ItemsTool) Run(ctx context.Context, req *ItemsRequest) (*ItemsResult, error) {
	items, err := t.client.GetItems(ctx, req.Top)
	if err != nil {
		return nil, err
	}
	return &ItemsResult{Items: items}, nil
}

func (t *ItemsTool) RunMCP(ctx context.Context, req *ItemsRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *ItemsTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *ItemsTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// ItemDetailsRequest represents the get_item_details input.
type ItemDetailsRequest struct {
	ItemNo string `json:"item_no" jsonschema:"title=Item Number,description=Item number"`
}

// ItemDetailsResult holds one item card, nil when not found.
type ItemDetailsResult struct {
	ItemNo string      `json:"item_no"`
	Item   *bcapi.Item `json:"item,omitempty"`
}

func (r *ItemDetailsResult) String() string {
	if r.Item == nil {
		return fmt.Sprintf("Item not found: %s", r.ItemNo)
	}
	it := r.Item
	var buf bytes.Buffer
	buf.WriteString("**Item Details**\n\n")
	fmt.Fprintf(&buf, "**Name:** %s\n", orNA(it.DisplayName))
	fmt.Fprintf(&buf, "**Number:** %s\n", orNA(it.Number))
	fmt.Fprintf(&buf, "**Price:** %s\n", num(it.UnitPrice))
	fmt.Fprintf(&buf, "**Stock:** %s\n", num(it.Inventory))
	fmt.Fprintf(&buf, "**Category:** %s\n", orNA(it.ItemCategoryCode))
	fmt.Fprintf(&buf, "**Unit of measure:** %s\n", orNA(it.BaseUnitOfMeasure))
	return buf.String()
}

// ItemDetailsTool fetches one item card by number.
type ItemDetailsTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[ItemDetailsRequest] = (*ItemDetailsTool)(nil)

func NewItemDetailsTool(client *bcapi.Client) *ItemDetailsTool {
	return &ItemDetailsTool{
		name:        ItemDetailsToolName,
		description: "Get detailed information about a specific item",
		client:      client,
	}
}

func (t *ItemDetailsTool) Name() string        { return t.name }
func (t *ItemDetailsTool) Description() string { return t.description }
func (t *ItemDetailsTool) Parameters() any     { return paramsFor[ItemDetailsRequest]() }

func (t *ItemDetailsTool) Run(ctx context.Context, req *ItemDetailsRequest) (*ItemDetailsResult, error) {
	if req.ItemNo == "" {
		return nil, errors.New("invalid request: empty item_no")
	}
	item, err := t.client.GetItemByNumber(ctx, req.ItemNo)
	if err != nil {
		return nil, err
	}
	return &ItemDetailsResult{ItemNo: req.ItemNo, Item: item}, nil
}

func (t *ItemDetailsTool) RunMCP(ctx context.Context, req *ItemDetailsRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *ItemDetailsTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *ItemDetailsTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}
