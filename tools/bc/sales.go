package bc

import (
	"bytes"
	"context"
	"fmt"

	"github.com/techspheredynamics/bcmcp/bcapi"
	"github.com/techspheredynamics/bcmcp/mcp"
	"github.com/techspheredynamics/bcmcp/tools"
)

const (
	SalesOrdersToolName   = "get_sales_orders"
	CurrencyRatesToolName = "get_currency_exchange_rates"
)

// SalesOrdersRequest represents the get_sales_orders input.
type SalesOrdersRequest struct {
	Top    int    `json:"top,omitempty" jsonschema:"title=Top,description=Maximum number of orders to return (default: 10)"`
	Filter string `json:"filter,omitempty" jsonschema:"title=Filter,description=Raw OData filter expression applied to the order list"`
}

// SalesOrdersResult holds the listed orders.
type SalesOrdersResult struct {
	Orders []bcapi.SalesOrder `json:"orders"`
}

func (r *SalesOrdersResult) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "**Sales Orders** (Showing %d results)\n\n", len(r.Orders))
	for _, o := range r.Orders {
		fmt.Fprintf(&buf, "• **Order %s** - Customer: %s\n", orNA(o.Number), orNA(o.CustomerName))
		fmt.Fprintf(&buf, "  Total: %s\n", num(o.TotalAmountIncludingTax))
		fmt.Fprintf(&buf, "  Date: %s\n\n", orNA(o.OrderDate))
	}
	return buf.String()
}

// SalesOrdersTool lists sales order headers.
type SalesOrdersTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[SalesOrdersRequest] = (*SalesOrdersTool)(nil)

func NewSalesOrdersTool(client *bcapi.Client) *SalesOrdersTool {
	return &SalesOrdersTool{
		name:        SalesOrdersToolName,
		description: "Get sales orders from Business Central",
		client:      client,
	}
}

func (t *SalesOrdersTool) Name() string        { return t.name }
func (t *SalesOrdersTool) Description() string { return t.description }
func (t *SalesOrdersTool) Parameters() any     { return paramsFor[SalesOrdersRequest]() }

func (t *SalesOrdersTool) Run(ctx context.Context, req *SalesOrdersRequest) (*SalesOrdersResult, error) {
	var (
		orders []bcapi.SalesOrder
		err    error
	)
	if req.Filter != "" {
		orders, err = t.client.GetSalesOrders(ctx, req.Filter, req.Top)
	} else {
		orders, err = t.client.GetOrders(ctx, req.Top)
	}
	if err != nil {
		return nil, err
	}
	return &SalesOrdersResult{Orders: orders}, nil
}

func (t *SalesOrdersTool) RunMCP(ctx context.Context, req *SalesOrdersRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *SalesOrdersTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *SalesOrdersTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// CurrencyRatesRequest represents the get_currency_exchange_rates input.
type CurrencyRatesRequest struct {
	CurrencyCode string `json:"currency_code,omitempty" jsonschema:"title=Currency Code,description=Restrict results to one currency code"`
	Top          int    `json:"top,omitempty" jsonschema:"title=Top,description=Maximum number of rates to return (default: 20)"`
}

// CurrencyRatesResult holds the listed exchange rates.
type CurrencyRatesResult struct {
	Rates []bcapi.CurrencyExchangeRate `json:"rates"`
}

func (r *CurrencyRatesResult) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "**Currency Exchange Rates** (Showing %d results)\n\n", len(r.Rates))
	for _, rate := range r.Rates {
		amount := rate.RelationalExchangeRateAmount
		if amount == 0 {
			amount = rate.ExchangeRateAmount
		}
		fmt.Fprintf(&buf, "• **%s** - Rate: %s\n", orNA(rate.CurrencyCode), num(amount))
		fmt.Fprintf(&buf, "  Start date: %s\n\n", orNA(rate.StartingDate))
	}
	return buf.String()
}

// CurrencyRatesTool lists currency exchange rates.
type CurrencyRatesTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[CurrencyRatesRequest] = (*CurrencyRatesTool)(nil)

func NewCurrencyRatesTool(client *bcapi.Client) *CurrencyRatesTool {
	return &CurrencyRatesTool{
		name:        CurrencyRatesToolName,
		description: "Get currency exchange rates from Business Central",
		client:      client,
	}
}

func (t *CurrencyRatesTool) Name() string        { return t.name }
func (t *CurrencyRatesTool) Description() string { return t.description }
func (t *CurrencyRatesTool) Parameters() any     { return paramsFor[CurrencyRatesRequest]() }

func (t *CurrencyRatesTool) Run(ctx context.Context, req *CurrencyRatesRequest) (*CurrencyRatesResult, error) {
	rates, err := t.client.GetCurrencyExchangeRates(ctx, req.CurrencyCode, req.Top)
	if err != nil {
		return nil, err
	}
	return &CurrencyRatesResult{Rates: rates}, nil
}

func (t *CurrencyRatesTool) RunMCP(ctx context.Context, req *CurrencyRatesRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *CurrencyRatesTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *CurrencyRatesTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}
