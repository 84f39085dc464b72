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
	CustomersToolName       = "get_customers"
	CustomerDetailsToolName = "get_customer_details"
	CreateCustomerToolName  = "create_customer"
)

// CustomersRequest represents the get_customers input.
type CustomersRequest struct {
	Top int `json:"top,omitempty" jsonschema:"title=Top,description=Maximum number of customers to return (default: 20)"`
}

// CustomersResult holds the listed customers.
type CustomersResult struct {
	Customers []bcapi.Customer `json:"customers"`
}

func (r *CustomersResult) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "**Business Central Customers** (Showing %d results)\n\n", len(r.Customers))
	for _, c := range r.Customers {
		fmt.Fprintf(&buf, "• **%s** (ID: %s)\n", orNA(c.DisplayName), orNA(c.ID))
		fmt.Fprintf(&buf, "  %s\n", orNA(c.Address.City))
		fmt.Fprintf(&buf, "  %s\n\n", orNA(c.PhoneNumber))
	}
	return buf.String()
}

// CustomersTool lists customer cards.
type CustomersTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[CustomersRequest] = (*CustomersTool)(nil)

func NewCustomersTool(client *bcapi.Client) *CustomersTool {
	return &CustomersTool{
		name:        CustomersToolName,
		description: "Get customer list from Business Central",
		client:      client,
	}
}

func (t *CustomersTool) Name() string        { return t.name }
func (t *CustomersTool) Description() string { return t.description }
func (t *CustomersTool) Parameters() any     { return paramsFor[CustomersRequest]() }

func (t *CustomersTool) Run(ctx context.Context, req *CustomersRequest) (*CustomersResult, error) {
	customers, err := t.client.GetCustomers(ctx, req.Top)
	if err != nil {
		return nil, err
	}
	return &CustomersResult{Customers: customers}, nil
}

func (t *CustomersTool) RunMCP(ctx context.Context, req *CustomersRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *CustomersTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *CustomersTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// CustomerDetailsRequest represents the get_customer_details input.
type CustomerDetailsRequest struct {
	CustomerID string `json:"customer_id" jsonschema:"title=Customer ID,description=Customer unique ID"`
}

// CustomerDetailsResult holds one customer card, nil when not found.
type CustomerDetailsResult struct {
	CustomerID string          `json:"customer_id"`
	Customer   *bcapi.Customer `json:"customer,omitempty"`
}

func (r *CustomerDetailsResult) String() string {
	if r.Customer == nil {
		return fmt.Sprintf("Customer not found: %s", r.CustomerID)
	}
	c := r.Customer
	var buf bytes.Buffer
	buf.WriteString("**Customer Details**\n\n")
	fmt.Fprintf(&buf, "**Name:** %s\n", orNA(c.DisplayName))
	fmt.Fprintf(&buf, "**ID:** %s\n", orNA(c.ID))
	fmt.Fprintf(&buf, "**Phone:** %s\n", orNA(c.PhoneNumber))
	fmt.Fprintf(&buf, "**Email:** %s\n", orNA(c.Email))
	fmt.Fprintf(&buf, "**Address:** %s, %s\n", orNA(c.Address.Street), orNA(c.Address.City))
	fmt.Fprintf(&buf, "**Country:** %s\n", orNA(c.Address.CountryLetterCode))
	return buf.String()
}

// CustomerDetailsTool fetches one customer card by id.
type CustomerDetailsTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[CustomerDetailsRequest] = (*CustomerDetailsTool)(nil)

func NewCustomerDetailsTool(client *bcapi.Client) *CustomerDetailsTool {
	return &CustomerDetailsTool{
		name:        CustomerDetailsToolName,
		description: "Get detailed information about a specific customer",
		client:      client,
	}
}

func (t *CustomerDetailsTool) Name() string        { return t.name }
func (t *CustomerDetailsTool) Description() string { return t.description }
func (t *CustomerDetailsTool) Parameters() any     { return paramsFor[CustomerDetailsRequest]() }

func (t *CustomerDetailsTool) Run(ctx context.Context, req *CustomerDetailsRequest) (*CustomerDetailsResult, error) {
	if req.CustomerID == "" {
		return nil, errors.New("invalid request: empty customer_id")
	}
	customer, err := t.client.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	return &CustomerDetailsResult{CustomerID: req.CustomerID, Customer: customer}, nil
}

func (t *CustomerDetailsTool) RunMCP(ctx context.Context, req *CustomerDetailsRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *CustomerDetailsTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *CustomerDetailsTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}

// CreateCustomerRequest represents the create_customer input.
type CreateCustomerRequest struct {
	DisplayName string `json:"display_name" jsonschema:"title=Display Name,description=Customer display name"`
	PhoneNumber string `json:"phone_number,omitempty" jsonschema:"title=Phone,description=Customer phone number"`
	Email       string `json:"email,omitempty" jsonschema:"title=Email,description=Customer email address"`
	Street      string `json:"street,omitempty" jsonschema:"title=Street,description=Street address"`
	City        string `json:"city,omitempty" jsonschema:"title=City,description=City"`
	PostalCode  string `json:"postal_code,omitempty" jsonschema:"title=Postal Code,description=Postal code"`
	CountryCode string `json:"country_code,omitempty" jsonschema:"title=Country Code,description=Two-letter country code"`
}

// CreateCustomerResult holds the stored customer card, nil when the create
// did not go through.
type CreateCustomerResult struct {
	Customer *bcapi.Customer `json:"customer,omitempty"`
}

func (r *CreateCustomerResult) String() string {
	if r.Customer == nil {
		return "Customer was not created: Business Central rejected the request or is unreachable."
	}
	c := r.Customer
	var buf bytes.Buffer
	buf.WriteString("**Customer Created**\n\n")
	fmt.Fprintf(&buf, "**Name:** %s\n", orNA(c.DisplayName))
	fmt.Fprintf(&buf, "**ID:** %s\n", orNA(c.ID))
	fmt.Fprintf(&buf, "**Number:** %s\n", orNA(c.Number))
	return buf.String()
}

// CreateCustomerTool creates a customer card.
type CreateCustomerTool struct {
	name        string
	description string
	client      *bcapi.Client
}

var _ tools.MCPTool[CreateCustomerRequest] = (*CreateCustomerTool)(nil)

func NewCreateCustomerTool(client *bcapi.Client) *CreateCustomerTool {
	return &CreateCustomerTool{
		name:        CreateCustomerToolName,
		description: "Create a new customer in Business Central",
		client:      client,
	}
}

func (t *CreateCustomerTool) Name() string        { return t.name }
func (t *CreateCustomerTool) Description() string { return t.description }
func (t *CreateCustomerTool) Parameters() any     { return paramsFor[CreateCustomerRequest]() }

func (t *CreateCustomerTool) Run(ctx context.Context, req *CreateCustomerRequest) (*CreateCustomerResult, error) {
	if req.DisplayName == "" {
		return nil, errors.New("invalid request: empty display_name")
	}

	logger.ContextKV(ctx, xlog.INFO, "op", "create_customer", "name", req.DisplayName)

	customer, err := t.client.CreateCustomer(ctx, &bcapi.Customer{
		DisplayName: req.DisplayName,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Address: bcapi.Address{
			Street:            req.Street,
			City:              req.City,
			PostalCode:        req.PostalCode,
			CountryLetterCode: req.CountryCode,
		},
	})
	if err != nil {
		return nil, err
	}
	return &CreateCustomerResult{Customer: customer}, nil
}

func (t *CreateCustomerTool) RunMCP(ctx context.Context, req *CreateCustomerRequest) (*mcp.ToolResponse, error) {
	return textResponse(t.Run(ctx, req))
}

func (t *CreateCustomerTool) Call(ctx context.Context, input string) (string, error) {
	return callText(ctx, t.Run, input)
}

func (t *CreateCustomerTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	return registrator.RegisterTool(t.name, t.description, t.RunMCP)
}
