package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/techspheredynamics/bcmcp/schema"
)

type DeliveryStatus string

const (
	Pending   DeliveryStatus = "Pending"
	InTransit DeliveryStatus = "InTransit"
	Delivered DeliveryStatus = "Delivered"
)

type DeliveryQuery struct {
	CustomerID string         `json:"customer_id,omitempty" jsonschema:"title=Customer ID,description=Filter deliveries by customer"`
	Status     DeliveryStatus `json:"status" jsonschema:"title=Status,description=Delivery status,enum=Pending,enum=InTransit,enum=Delivered"`
	DateFrom   string         `json:"date_from,omitempty" jsonschema:"title=Date From,description=Start date in YYYY-MM-DD format"`
}

func TestSchema(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(DeliveryQuery{}))
	require.NoError(t, err)
	require.NotNil(t, s.Parameters)

	js, err := json.Marshal(s.Parameters)
	require.NoError(t, err)

	doc := string(js)
	assert.Equal(t, "object", gjson.Get(doc, "type").Str)
	assert.Equal(t, "string", gjson.Get(doc, "properties.customer_id.type").Str)
	assert.Equal(t, "Customer ID", gjson.Get(doc, "properties.customer_id.title").Str)
	assert.Equal(t, "Delivery status", gjson.Get(doc, "properties.status.description").Str)
	assert.Len(t, gjson.Get(doc, "properties.status.enum").Array(), 3)
	assert.Equal(t, `["status"]`, gjson.Get(doc, "required").Raw)

	// No $defs or $ref survive flattening.
	assert.False(t, gjson.Get(doc, `\$defs`).Exists())
	assert.False(t, gjson.Get(doc, `properties.status.\$ref`).Exists())

	// Property order follows field order.
	var order []string
	gjson.Get(doc, "properties").ForEach(func(k, _ gjson.Result) bool {
		order = append(order, k.Str)
		return true
	})
	assert.Equal(t, []string{"customer_id", "status", "date_from"}, order)
}

func TestSchema_Cached(t *testing.T) {
	s1, err := schema.New(reflect.TypeOf(DeliveryQuery{}))
	require.NoError(t, err)
	s2, err := schema.New(reflect.TypeOf(DeliveryQuery{}))
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}

type nestedAddress struct {
	City string `json:"city"`
}

type nestedCustomer struct {
	Name    string        `json:"name"`
	Address nestedAddress `json:"address"`
}

func TestSchema_NestedRefsInlined(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(nestedCustomer{}))
	require.NoError(t, err)

	js, err := json.Marshal(s.Parameters)
	require.NoError(t, err)

	doc := string(js)
	assert.Equal(t, "string", gjson.Get(doc, "properties.address.properties.city.type").Str)
	assert.False(t, gjson.Get(doc, `properties.address.\$ref`).Exists())
}
