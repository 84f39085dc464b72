package bcapi

import (
	"fmt"
	"strings"
)

// Filter builds an OData $filter expression as an ordered conjunction of
// comparison clauses. Clauses are joined with " and " in the order they were
// added, so the rendered expression is deterministic for the same inputs.
type Filter struct {
	clauses []string
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Eq appends "field eq 'value'". The value is single-quoted per OData string
// literal rules. Empty values are skipped.
func (f *Filter) Eq(field, value string) *Filter {
	if value != "" {
		f.clauses = append(f.clauses, fmt.Sprintf("%s eq '%s'", field, value))
	}
	return f
}

// Ge appends "field ge value" with the value unquoted (dates, numbers).
// Empty values are skipped.
func (f *Filter) Ge(field, value string) *Filter {
	if value != "" {
		f.clauses = append(f.clauses, fmt.Sprintf("%s ge %s", field, value))
	}
	return f
}

// Le appends "field le value" with the value unquoted. Empty values are
// skipped.
func (f *Filter) Le(field, value string) *Filter {
	if value != "" {
		f.clauses = append(f.clauses, fmt.Sprintf("%s le %s", field, value))
	}
	return f
}

// Group merges the inner filter as one clause. A single inner clause is
// appended bare; two or more are parenthesized so their conjunction binds
// before the outer one. Empty inner filters are skipped.
func (f *Filter) Group(inner *Filter) *Filter {
	switch len(inner.clauses) {
	case 0:
	case 1:
		f.clauses = append(f.clauses, inner.clauses[0])
	default:
		f.clauses = append(f.clauses, "("+inner.String()+")")
	}
	return f
}

// Empty reports whether no clauses have been added.
func (f *Filter) Empty() bool {
	return len(f.clauses) == 0
}

// String renders the conjunction.
func (f *Filter) String() string {
	return strings.Join(f.clauses, " and ")
}
