package storage

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Op is a filter operator.
type Op string

// Supported filter operators.
const (
	OpEqual Op = "=="
	OpIn    Op = "in"
)

// OrderByCreateTime orders results by the store-assigned creation time.
const OrderByCreateTime = ""

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Filter restricts a query to documents whose field matches a value.
// For OpIn, Value must be a slice of values.
//
// With Aliases the compared value is the first non-empty one among Field
// and its aliases, trimmed, the way Fields.String resolves it. FoldCase
// compares case-insensitively.
type Filter struct {
	Field    string
	Aliases  []string
	Op       Op
	Value    any
	FoldCase bool
}

// Query describes a filtered, ordered, limited view of a collection.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// From starts a query on collection, ordered by creation time ascending.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with an additional filter.
func (q Query) Where(field string, op Op, value any) Query {
	return q.Match(Filter{Field: field, Op: op, Value: value})
}

// WhereAny returns a copy of q filtering on the first non-empty field
// among fields, in order.
func (q Query) WhereAny(fields []string, op Op, value any) Query {
	if len(fields) == 0 {
		return q.Match(Filter{Op: op, Value: value})
	}
	return q.Match(Filter{Field: fields[0], Aliases: fields[1:], Op: op, Value: value})
}

// Match returns a copy of q with the additional filter f.
func (q Query) Match(f Filter) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, f)
	return q
}

// Order returns a copy of q ordered by field (OrderByCreateTime for the
// document creation time).
func (q Query) Order(field string, descending bool) Query {
	q.OrderBy = field
	q.Descending = descending
	return q
}

// Take returns a copy of q limited to n results. n <= 0 means no limit.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Validate checks the query for unsupported fields or operators.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query: collection is required")
	}
	for _, f := range q.Filters {
		for _, name := range append([]string{f.Field}, f.Aliases...) {
			if !fieldPattern.MatchString(name) {
				return fmt.Errorf("query: invalid field name %q", name)
			}
		}
		switch f.Op {
		case OpEqual, OpIn:
		default:
			return fmt.Errorf("query: unsupported operator %q", f.Op)
		}
	}
	if q.OrderBy != OrderByCreateTime && !fieldPattern.MatchString(q.OrderBy) {
		return fmt.Errorf("query: invalid order field %q", q.OrderBy)
	}
	return nil
}

// toSQL renders the query as a SELECT over the documents table.
// Field names are validated before being inlined as JSON paths; all values
// are bound parameters.
func (q Query) toSQL() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	args := []any{q.Collection}
	b.WriteString("SELECT id, collection, data, created_at, updated_at, version FROM documents WHERE collection = ?")

	for _, f := range q.Filters {
		expr, param := f.expr(), "?"
		if f.FoldCase {
			param = "lower(trim(?))"
		}
		switch f.Op {
		case OpEqual:
			b.WriteString(" AND " + expr + " = " + param)
			args = append(args, bindValue(f.Value))
		case OpIn:
			values, err := inValues(f.Value)
			if err != nil {
				return "", nil, fmt.Errorf("query: field %q: %w", f.Field, err)
			}
			if len(values) == 0 {
				b.WriteString(" AND 0")
				continue
			}
			b.WriteString(" AND " + expr + " IN (" + strings.TrimSuffix(strings.Repeat(param+",", len(values)), ",") + ")")
			args = append(args, values...)
		}
	}

	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	if q.OrderBy == OrderByCreateTime {
		b.WriteString(" ORDER BY created_at " + dir + ", seq " + dir)
	} else {
		b.WriteString(" ORDER BY " + jsonPath(q.OrderBy) + " " + dir + ", seq " + dir)
	}

	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

// expr is the SQL expression compared by f.
func (f Filter) expr() string {
	e := jsonPath(f.Field)
	if len(f.Aliases) > 0 {
		parts := make([]string, 0, len(f.Aliases)+1)
		for _, name := range append([]string{f.Field}, f.Aliases...) {
			parts = append(parts, "NULLIF(trim("+jsonPath(name)+"), '')")
		}
		e = "COALESCE(" + strings.Join(parts, ", ") + ")"
	}
	if f.FoldCase {
		e = "lower(trim(" + e + "))"
	}
	return e
}

func jsonPath(field string) string {
	return "json_extract(data, '$." + field + "')"
}

// bindValue converts Go values to the representation json_extract yields
// for the same JSON value.
func bindValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	// Named string types (statuses, kinds) are stored as plain JSON strings.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

func inValues(v any) ([]any, error) {
	switch x := v.(type) {
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = bindValue(e)
		}
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("in filter requires a slice, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = bindValue(rv.Index(i).Interface())
	}
	return out, nil
}
