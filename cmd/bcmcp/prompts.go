package main

import (
	"context"
	"fmt"

	"github.com/techspheredynamics/bcmcp/mcp"
)

// CustomerAnalysisRequest is the customer_analysis prompt input.
type CustomerAnalysisRequest struct {
	CustomerID string `json:"customer_id" jsonschema:"title=Customer ID,description=Customer ID to analyze"`
}

// VendorAnalysisRequest is the vendor_analysis prompt input.
type VendorAnalysisRequest struct {
	VendorID string `json:"vendor_id" jsonschema:"title=Vendor ID,description=Vendor ID to analyze"`
}

func registerPrompts(server *mcp.Server) error {
	err := server.RegisterPrompt("customer_analysis",
		"Detailed customer analysis with Business Central insights",
		func(_ context.Context, req *CustomerAnalysisRequest) (*mcp.PromptResponse, error) {
			text := fmt.Sprintf(`Analyze customer %s from Business Central:

1. Use the get_customer_details tool to retrieve customer information
2. Analyze the customer's purchase history and patterns
3. Identify trends and opportunities
4. Provide actionable insights for account management

Focus on data-driven insights and specific recommendations.`, req.CustomerID)

			return mcp.NewPromptResponse("Prompt for customer_analysis",
				mcp.NewPromptMessage("user", mcp.NewTextContent(text))), nil
		})
	if err != nil {
		return err
	}

	return server.RegisterPrompt("vendor_analysis",
		"Detailed vendor analysis",
		func(_ context.Context, req *VendorAnalysisRequest) (*mcp.PromptResponse, error) {
			text := fmt.Sprintf(`Analyze vendor %s from Business Central:

1. Use the get_vendor_details tool to retrieve vendor information
2. Analyze the vendor's performance and reliability
3. Identify trends in purchasing and delivery
4. Provide actionable insights for procurement optimization

Focus on data-driven insights and specific recommendations.`, req.VendorID)

			return mcp.NewPromptResponse("Prompt for vendor_analysis",
				mcp.NewPromptMessage("user", mcp.NewTextContent(text))), nil
		})
}
