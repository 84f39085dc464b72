package bcapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/techspheredynamics/bcmcp/bcapi"
)

func Test_Filter_Compose(t *testing.T) {
	f := bcapi.NewFilter().
		Eq("customerId", "C-100").
		Eq("status", "InTransit")
	assert.Equal(t, "customerId eq 'C-100' and status eq 'InTransit'", f.String())

	// Clause order follows call order.
	f = bcapi.NewFilter().
		Eq("status", "InTransit").
		Eq("customerId", "C-100")
	assert.Equal(t, "status eq 'InTransit' and customerId eq 'C-100'", f.String())
}

func Test_Filter_Comparisons(t *testing.T) {
	f := bcapi.NewFilter().
		Ge("routeDate", "2024-01-01").
		Le("routeDate", "2024-01-31").
		Eq("driverId", "D7")
	assert.Equal(t, "routeDate ge 2024-01-01 and routeDate le 2024-01-31 and driverId eq 'D7'", f.String())
}

func Test_Filter_SkipsEmptyValues(t *testing.T) {
	f := bcapi.NewFilter().
		Eq("customerId", "").
		Eq("status", "Delivered").
		Ge("deliveryDate", "")
	assert.Equal(t, "status eq 'Delivered'", f.String())

	assert.True(t, bcapi.NewFilter().Eq("x", "").Empty())
}

func Test_Filter_Group(t *testing.T) {
	// A single grouped clause merges bare.
	f := bcapi.NewFilter().
		Eq("status", "Delivered").
		Group(bcapi.NewFilter().Ge("deliveryDate", "2024-01-01"))
	assert.Equal(t, "status eq 'Delivered' and deliveryDate ge 2024-01-01", f.String())

	// Two grouped clauses bind together inside parentheses.
	f = bcapi.NewFilter().
		Eq("status", "Delivered").
		Group(bcapi.NewFilter().
			Ge("deliveryDate", "2024-01-01").
			Le("deliveryDate", "2024-02-01"))
	assert.Equal(t, "status eq 'Delivered' and (deliveryDate ge 2024-01-01 and deliveryDate le 2024-02-01)", f.String())

	// An empty group leaves the outer filter untouched.
	f = bcapi.NewFilter().
		Eq("status", "Delivered").
		Group(bcapi.NewFilter())
	assert.Equal(t, "status eq 'Delivered'", f.String())
}

func Test_Query_Order(t *testing.T) {
	q := bcapi.NewQuery().
		Set("$filter", "number eq 'ABC'").
		Top(1)
	assert.Equal(t, "%24filter=number+eq+%27ABC%27&%24top=1", q.Encode())

	// Overwriting keeps the original position.
	q = bcapi.NewQuery().Top(5).Set("$filter", "x eq 'y'").Top(10)
	assert.Equal(t, "%24top=10&%24filter=x+eq+%27y%27", q.Encode())

	v, ok := q.Get("$top")
	assert.True(t, ok)
	assert.Equal(t, "10", v)
}
