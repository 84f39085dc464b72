package bc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/techspheredynamics/bcmcp/bcapi"
	"github.com/techspheredynamics/bcmcp/mcp"
	"github.com/techspheredynamics/bcmcp/tools"
)

const (
	DeliveriesToolName           = "get_deliveries"
	DeliveryDetailsToolName      = "get_delivery_details"
	UpdateDeliveryStatusToolName = "update_delivery_status"
)

// DeliveriesRequest represents the get_deliveries input. All criteria are
// optional; dates are YYYY-MM-DD.
type DeliveriesRequest struct {
	CustomerID string `json:"customer_id,omitempty" jsonschema:"title=Customer ID,description=Filter deliveries by customer"`
	Status     string `json:"status,omitempty" jsonschema:"title=Status,description=Filter deliveries by status"`
	DateFrom   string `json:"date_from,omitempty" jsonschema:"title=Date From,description=Earliest delivery date (YYYY-MM-DD)"`
	DateTo     string `json:"date_to,omitempty" jsonschema:"title=Date To,description=Latest delivery date (YYYY-MM-DD)"`
	Top        int    `json:"top,omitempty" jsonschema:"title=Top,description=Maximum number of deliveries to return (default: 20)"`
}

// DeliveriesResult holds the listed deliveries.
type DeliveriesResult struct {
	Deliveries []bcapi.Delivery `json:"deliveries"`
}

func (r *DeliveriesResult) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "**Deliveries** (Showing %d results)\n\n", len(r.Deliveries))
	for _, d := range r.Deliveries {
		fmt.Fprintf(&buf, "• **%s** - %s\n", orNA(d.No), orNA(d.CustomerName))
		fmt.Fprintf(&buf, "  Status: %s\n", orNA(d.Status))
		fmt.Fprintf(&buf, "  Date: %s\n", orNA(d.DeliveryDate))
		fmt.Fprintf(&buf, "  Driver: %s\n\n", orNA(d.DriverID))
	}
	return buf.String()
}

// DeliveriesTool lists deliveries of the delivery extension.
type DeliveriesTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[DeliveriesRequest] = (*DeliveriesTool)(nil)

func NewDeliveriesTool(client *bcapi.Client) *DeliveriesTool {
	return &DeliveriesTool{
		name:        DeliveriesToolName,
		description: "Get deliveries from Business Central, optionally filtered by customer, status and date range",
		client:      client,
	}
}

func (t *DeliveriesTool) Name() string        { return t.name }
func (t *DeliveriesTool) Description() string { return t.description }
func (t *DeliveriesTool) Parameters() any     { return paramsFor[DeliveriesRequest]() }

func (t *DeliveriesTool) Run(ctx context.Context, req *DeliveriesRequest) (*DeliveriesResult, error) {
	deliveries, err := t.client.GetDeliveries(ctx, bcapi.DeliveryFilter{
		CustomerID: req.CustomerID,
		Status:     req.Status,
		DateFrom:   req.DateFrom,
		DateTo:     req.DateTo,
	}, req.Top)
	if err != nil {
		return nil, err
	}
	return &DeliveriesResult{Deliveries: deliveries}, nil
}

func (t *DeliveriesTool) RunMCP(ctx context.Context, req *DeliveriesRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *DeliveriesTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *DeliveriesTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// DeliveryDetailsRequest represents the get_delivery_details input. The id
// may be either the GUID or the human-readable delivery number.
type DeliveryDetailsRequest struct {
	DeliveryID string `json:"delivery_id" jsonschema:"title=Delivery ID,description=Delivery GUID or delivery number"`
}

// DeliveryDetailsResult holds one delivery, nil when not found.
type DeliveryDetailsResult struct {
	DeliveryID string          `json:"delivery_id"`
	Delivery   *bcapi.Delivery `json:"delivery,omitempty"`
}

func (r *DeliveryDetailsResult) String() string {
	if r.Delivery == nil {
		return fmt.Sprintf("Delivery not found: %s", r.DeliveryID)
	}
	d := r.Delivery
	var buf bytes.Buffer
	buf.WriteString("**Delivery Details**\n\n")
	fmt.Fprintf(&buf, "**Number:** %s\n", orNA(d.No))
	fmt.Fprintf(&buf, "**ID:** %s\n", orNA(d.ID))
	fmt.Fprintf(&buf, "**Customer:** %s\n", orNA(d.CustomerName))
	fmt.Fprintf(&buf, "**Status:** %s\n", orNA(d.Status))
	fmt.Fprintf(&buf, "**Date:** %s\n", orNA(d.DeliveryDate))
	fmt.Fprintf(&buf, "**Address:** %s, %s\n", orNA(d.DeliveryStreet), orNA(d.DeliveryCity))
	fmt.Fprintf(&buf, "**Driver:** %s\n", orNA(d.DriverID))
	fmt.Fprintf(&buf, "**Notes:** %s\n", orNA(d.Notes))
	fmt.Fprintf(&buf, "**Last update:** %s\n", orNA(d.LastUpdateDate))
	return buf.String()
}

// DeliveryDetailsTool fetches one delivery.
type DeliveryDetailsTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[DeliveryDetailsRequest] = (*DeliveryDetailsTool)(nil)

func NewDeliveryDetailsTool(client *bcapi.Client) *DeliveryDetailsTool {
	return &DeliveryDetailsTool{
		name:        DeliveryDetailsToolName,
		description: "Get detailed information about a specific delivery",
		client:      client,
	}
}

func (t *DeliveryDetailsTool) Name() string        { return t.name }
func (t *DeliveryDetailsTool) Description() string { return t.description }
func (t *DeliveryDetailsTool) Parameters() any     { return paramsFor[DeliveryDetailsRequest]() }

func (t *DeliveryDetailsTool) Run(ctx context.Context, req *DeliveryDetailsRequest) (*DeliveryDetailsResult, error) {
	if req.DeliveryID == "" {
		return nil, errors.New("invalid request: empty delivery_id")
	}
	delivery, err := t.client.GetDelivery(ctx, req.DeliveryID)
	if err != nil {
		return nil, err
	}
	return &DeliveryDetailsResult{DeliveryID: req.DeliveryID, Delivery: delivery}, nil
}

func (t *DeliveryDetailsTool) RunMCP(ctx context.Context, req *DeliveryDetailsRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *DeliveryDetailsTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *DeliveryDetailsTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// UpdateDeliveryStatusRequest represents the update_delivery_status input.
type UpdateDeliveryStatusRequest struct {
	DeliveryID string `json:"delivery_id" jsonschema:"title=Delivery ID,description=Delivery number to update"`
	Status     string `json:"status" jsonschema:"title=Status,description=New delivery status"`
	Notes      string `json:"notes,omitempty" jsonschema:"title=Notes,description=Optional status notes"`
}

// UpdateDeliveryStatusResult holds the updated delivery, nil when the update
// did not go through.
type UpdateDeliveryStatusResult struct {
	DeliveryID string          `json:"delivery_id"`
	Delivery   *bcapi.Delivery `json:"delivery,omitempty"`
}

func (r *UpdateDeliveryStatusResult) String() string {
	if r.Delivery == nil {
		return fmt.Sprintf("Delivery not updated: %s", r.DeliveryID)
	}
	d := r.Delivery
	var buf bytes.Buffer
	buf.WriteString("**Delivery Updated**\n\n")
	fmt.Fprintf(&buf, "**Number:** %s\n", orNA(d.No))
	fmt.Fprintf(&buf, "**Status:** %s\n", orNA(d.Status))
	fmt.Fprintf(&buf, "**Last update:** %s\n", orNA(d.LastUpdateDate))
	return buf.String()
}

// UpdateDeliveryStatusTool patches a delivery's status.
type UpdateDeliveryStatusTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[UpdateDeliveryStatusRequest] = (*UpdateDeliveryStatusTool)(nil)

func NewUpdateDeliveryStatusTool(client *bcapi.Client) *UpdateDeliveryStatusTool {
	return &UpdateDeliveryStatusTool{
		name:        UpdateDeliveryStatusToolName,
		description: "Update the status of a delivery in Business Central",
		client:      client,
	}
}

func (t *UpdateDeliveryStatusTool) Name() string        { return t.name }
func (t *UpdateDeliveryStatusTool) Description() string { return t.description }
func (t *UpdateDeliveryStatusTool) Parameters() any {
	return paramsFor[UpdateDeliveryStatusRequest]()
}

func (t *UpdateDeliveryStatusTool) Run(ctx context.Context, req *UpdateDeliveryStatusRequest) (*UpdateDeliveryStatusResult, error) {
	if req.DeliveryID == "" {
		return nil, errors.New("invalid request: empty delivery_id")
	}
	if req.Status == "" {
		return nil, errors.New("invalid request: empty status")
	}

	logger.ContextKV(ctx, xlog.INFO,
		"op", "update_delivery_status",
		"delivery", req.DeliveryID,
		"status", req.Status)

	delivery, err := t.client.UpdateDeliveryStatus(ctx, req.DeliveryID, req.Status, req.Notes)
	if err != nil {
		return nil, err
	}
	return &UpdateDeliveryStatusResult{DeliveryID: req.DeliveryID, Delivery: delivery}, nil
}

func (t *UpdateDeliveryStatusTool) RunMCP(ctx context.Context, req *UpdateDeliveryStatusRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *UpdateDeliveryStatusTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *UpdateDeliveryStatusTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}
