// Package query implements the structured search request: the
// OData-subset filter parser, the query planner/executor that fuses
// text and vector legs, the facet engine, the highlighter, and
// suggest/autocomplete.
package query

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/aisearch-core/internal/schema"
)

// FilterOp is one comparison operator recognized by the filter subset.
type FilterOp string

const (
	FilterEq FilterOp = "eq"
	FilterNe FilterOp = "ne"
	FilterGt FilterOp = "gt"
	FilterGe FilterOp = "ge"
	FilterLt FilterOp = "lt"
	FilterLe FilterOp = "le"
	FilterIn FilterOp = "in"
)

// FilterClause is one compiled predicate: `field op value`, or a
// search.in(field, 'v1,v2') membership test.
type FilterClause struct {
	Field  string
	Op     FilterOp
	Value  string
	Values []string // populated for FilterIn
}

// ParseFilter parses the `and`-conjoined subset of OData described in
// §4.6: `field op literal` clauses and `search.in(field, 'a,b,c')`,
// joined by ` and ` (case-insensitive). Parentheses and ` or ` are not
// supported in this core. An unrecognized clause is logged and dropped
// rather than failing the whole filter, per the "never fatal" rule;
// the returned bool reports whether every clause parsed.
func ParseFilter(expr string) ([]FilterClause, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, true
	}

	parts := splitAnd(expr)
	clauses := make([]FilterClause, 0, len(parts))
	allParsed := true

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		clause, ok := parseClause(part)
		if !ok {
			slog.Warn("query: unrecognized filter clause dropped", "clause", part)
			allParsed = false
			continue
		}
		clauses = append(clauses, clause)
	}
	return clauses, allParsed
}

// splitAnd splits on the literal " and " token, case-insensitively,
// without attempting to respect quoting (single-quoted literals in this
// subset never contain " and ").
func splitAnd(expr string) []string {
	lower := strings.ToLower(expr)
	const sep = " and "
	var parts []string
	start := 0
	for {
		idx := strings.Index(lower[start:], sep)
		if idx < 0 {
			parts = append(parts, expr[start:])
			break
		}
		parts = append(parts, expr[start:start+idx])
		start += idx + len(sep)
	}
	return parts
}

func parseClause(part string) (FilterClause, bool) {
	if strings.HasPrefix(strings.ToLower(part), "search.in(") && strings.HasSuffix(part, ")") {
		inner := part[len("search.in(") : len(part)-1]
		args := strings.SplitN(inner, ",", 2)
		if len(args) != 2 {
			return FilterClause{}, false
		}
		field := strings.TrimSpace(args[0])
		valuesLiteral := strings.TrimSpace(args[1])
		valuesLiteral = strings.Trim(valuesLiteral, "'")
		values := strings.Split(valuesLiteral, ",")
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		return FilterClause{Field: field, Op: FilterIn, Values: values}, true
	}

	tokens := strings.Fields(part)
	if len(tokens) < 3 {
		return FilterClause{}, false
	}
	field := tokens[0]
	op := FilterOp(strings.ToLower(tokens[1]))
	switch op {
	case FilterEq, FilterNe, FilterGt, FilterGe, FilterLt, FilterLe:
	default:
		return FilterClause{}, false
	}
	value := strings.TrimSpace(strings.Join(tokens[2:], " "))
	value = strings.Trim(value, "'")
	return FilterClause{Field: field, Op: op, Value: value}, true
}

// Validate checks a clause's field against the schema: the field must be
// filterable, and equality on a searchable-only string field without a
// filter-exact path is rejected (lossy equality), per §4.6.
func (c FilterClause) Validate(s *schema.Schema) error {
	f, ok := s.Field(c.Field)
	if !ok {
		return fmt.Errorf("unknown field %q", c.Field)
	}
	if !f.Filterable {
		return fmt.Errorf("field %q is not filterable", c.Field)
	}
	return nil
}

// NumericLiteral parses a filter value as a float64, accepting integer
// literals on double fields per the type-coercion rule.
func NumericLiteral(raw string) (float64, error) {
	return strconv.ParseFloat(raw, 64)
}

// DateLiteral parses an ISO-8601 date literal into UTC ticks (Unix
// nanoseconds), the representation the datetime-offset doc-value uses.
func DateLiteral(raw string) (int64, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("query: bad date literal %q: %w", raw, err)
	}
	return t.UTC().UnixNano(), nil
}
