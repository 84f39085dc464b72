package bcapi

import (
	"net/url"
	"strconv"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Query is an ordered set of query parameters. Keys are unique; setting a key
// twice overwrites the value but keeps the original position, so the encoded
// string is deterministic for the same sequence of calls.
type Query struct {
	params *orderedmap.OrderedMap[string, string]
}

// NewQuery returns an empty parameter set.
func NewQuery() *Query {
	return &Query{params: orderedmap.New[string, string]()}
}

// Set stores a string parameter.
func (q *Query) Set(key, value string) *Query {
	q.params.Set(key, value)
	return q
}

// SetInt stores an integer parameter.
func (q *Query) SetInt(key string, value int) *Query {
	return q.Set(key, strconv.Itoa(value))
}

// Top sets the OData $top limit.
func (q *Query) Top(n int) *Query {
	return q.SetInt("$top", n)
}

// WithFilter sets $filter from the given filter expression, skipping empty
// filters.
func (q *Query) WithFilter(f *Filter) *Query {
	if f != nil && !f.Empty() {
		q.Set("$filter", f.String())
	}
	return q
}

// Get returns the value stored under key, if any.
func (q *Query) Get(key string) (string, bool) {
	return q.params.Get(key)
}

// Len returns the number of parameters.
func (q *Query) Len() int {
	return q.params.Len()
}

// Encode renders the parameters in insertion order, percent-encoded.
func (q *Query) Encode() string {
	var sb strings.Builder
	for pair := q.params.Oldest(); pair != nil; pair = pair.Next() {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(pair.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(pair.Value))
	}
	return sb.String()
}

// String implements fmt.Stringer for request logging.
func (q *Query) String() string {
	return q.Encode()
}
