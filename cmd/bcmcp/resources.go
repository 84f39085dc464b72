package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/effective-security/xlog"

	"github.com/techspheredynamics/bcmcp/mcp"
)

// catalogFiles is the static CSV catalog served as MCP resources.
var catalogFiles = []struct {
	file        string
	name        string
	description string
}{
	{"customers.csv", "Customer Data", "Customer data in CSV format"},
	{"items.csv", "Item Data", "Item/product data in CSV format"},
	{"prices.csv", "Item Prices", "Item price data in CSV format"},
	{"vendors.csv", "Vendor Data", "Vendor data in CSV format"},
}

func registerResources(server *mcp.Server, dataDir string) error {
	for _, entry := range catalogFiles {
		path := filepath.Join(dataDir, entry.file)
		uri := "file://" + filepath.ToSlash(path)

		err := server.RegisterResource(uri, entry.name, entry.description, "text/csv",
			func(_ context.Context) (*mcp.ResourceResponse, error) {
				content, err := os.ReadFile(path)
				if err != nil {
					// Missing files degrade to a readable notice, not a
					// protocol error.
					logger.KV(xlog.WARNING, "resource", path, "err", err.Error())
					return mcp.NewTextResourceResponse(uri, "text/plain",
						"Resource not found: "+path), nil
				}
				return mcp.NewTextResourceResponse(uri, "text/csv", string(content)), nil
			})
		if err != nil {
			return err
		}
	}
	return nil
}
