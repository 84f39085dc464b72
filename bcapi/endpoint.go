package bcapi

import (
	"fmt"
	"strings"
)

// standardAPIVersionSegment is the path segment shared by all standard
// (non-publisher) API URLs. Custom API URLs are rooted at the portion of the
// base URL before its first occurrence.
const standardAPIVersionSegment = "/api/v2.0"

// EndpointBuilder maps logical resource names to fully qualified request
// URLs for both the standard versioned API and per-publisher custom API
// extensions. It is pure string assembly: identifiers are interpolated as
// given and never escaped, so callers must pre-format keys per the target
// API's OData conventions (string keys quoted, GUID keys bare).
type EndpointBuilder struct {
	baseURL   string
	companyID string
}

// NewEndpointBuilder returns a builder rooted at the company-scoped base URL,
// e.g. https://api.businesscentral.dynamics.com/v2.0/{tenant}/{env}/api/v2.0.
func NewEndpointBuilder(baseURL, companyID string) *EndpointBuilder {
	return &EndpointBuilder{
		baseURL:   baseURL,
		companyID: companyID,
	}
}

// StandardURL builds {base}/companies({company})/{resource}.
func (b *EndpointBuilder) StandardURL(resource string) string {
	return fmt.Sprintf("%s/companies(%s)/%s", b.baseURL, b.companyID, resource)
}

// CustomURL builds the URL of a custom API endpoint published as
// /api/{publisher}/{appGroup}/{version}. The base is the configured base URL
// truncated at the first standard API version segment; when companyScoped is
// set, the company segment is inserted before the endpoint path.
func (b *EndpointBuilder) CustomURL(publisher, appGroup, version, endpoint string, companyScoped bool) string {
	base, _, _ := strings.Cut(b.baseURL, standardAPIVersionSegment)
	root := fmt.Sprintf("%s/api/%s/%s/%s", base, publisher, appGroup, version)
	if companyScoped {
		return fmt.Sprintf("%s/companies(%s)/%s", root, b.companyID, endpoint)
	}
	return root + "/" + endpoint
}
