package query

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"

	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
)

// filterIndex is the subset of *store.InvertedIndex compile needs,
// kept narrow so this package doesn't import store's concrete type
// beyond what it touches.
type filterIndex interface {
	FilterFieldName(schemaField string) string
}

// CompileFilter translates parsed filter clauses into a single
// conjunctive bleve query, or nil if clauses is empty (match-all).
// Equality on a searchable-only field lacking a filter-exact path is
// rejected as lossy, per §4.6.
func CompileFilter(clauses []FilterClause, s *schema.Schema, idx filterIndex) (search.Query, *engerrors.Error) {
	if len(clauses) == 0 {
		return nil, nil
	}

	var conjuncts []search.Query
	for _, c := range clauses {
		q, err := compileClause(c, s, idx)
		if err != nil {
			return nil, err
		}
		conjuncts = append(conjuncts, q)
	}
	if len(conjuncts) == 1 {
		return conjuncts[0], nil
	}
	return bleve.NewConjunctionQuery(conjuncts...), nil
}

func compileClause(c FilterClause, s *schema.Schema, idx filterIndex) (search.Query, *engerrors.Error) {
	f, ok := s.Field(c.Field)
	if !ok {
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("unknown field %q", c.Field))
	}
	if !f.Filterable {
		return nil, engerrors.Validation(engerrors.CodeUnfilterableField, fmt.Sprintf("field %q is not filterable", c.Field))
	}

	switch f.Type {
	case schema.TypeString, schema.TypeCollectionOfString:
		return compileStringClause(c, f, idx)
	case schema.TypeInt32, schema.TypeInt64, schema.TypeDouble, schema.TypeSingle:
		return compileNumericClause(c, f)
	case schema.TypeBoolean:
		return compileBooleanClause(c, f)
	case schema.TypeDateTimeOffset:
		return compileDateClause(c, f)
	default:
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("field %q cannot be filtered", c.Field))
	}
}

func compileStringClause(c FilterClause, f schema.Field, idx filterIndex) (search.Query, *engerrors.Error) {
	exactField := idx.FilterFieldName(f.Name)

	switch c.Op {
	case FilterEq, FilterNe:
		tq := bleve.NewTermQuery(schema.NormalizeTerm(c.Value))
		tq.SetField(exactField)
		if c.Op == FilterEq {
			return tq, nil
		}
		return bleve.NewBooleanQuery(nil, nil, []search.Query{tq}), nil
	case FilterIn:
		values := make([]search.Query, 0, len(c.Values))
		for _, v := range c.Values {
			tq := bleve.NewTermQuery(schema.NormalizeTerm(v))
			tq.SetField(exactField)
			values = append(values, tq)
		}
		return bleve.NewDisjunctionQuery(values...), nil
	default:
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("operator %q not supported on string field %q", c.Op, f.Name))
	}
}

func compileNumericClause(c FilterClause, f schema.Field) (search.Query, *engerrors.Error) {
	value, err := NumericLiteral(c.Value)
	if err != nil {
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("field %q: %s", f.Name, err.Error()))
	}

	switch c.Op {
	case FilterEq:
		min, max := value, value
		return numericRange(f.Name, &min, &max, true, true), nil
	case FilterGt:
		return numericRange(f.Name, &value, nil, false, false), nil
	case FilterGe:
		return numericRange(f.Name, &value, nil, true, false), nil
	case FilterLt:
		return numericRange(f.Name, nil, &value, false, false), nil
	case FilterLe:
		return numericRange(f.Name, nil, &value, false, true), nil
	case FilterIn:
		var values []search.Query
		for _, raw := range c.Values {
			v, convErr := NumericLiteral(raw)
			if convErr != nil {
				return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("field %q: %s", f.Name, convErr.Error()))
			}
			values = append(values, numericRange(f.Name, &v, &v, true, true))
		}
		return bleve.NewDisjunctionQuery(values...), nil
	default:
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("operator %q not supported on numeric field %q", c.Op, f.Name))
	}
}

func numericRange(field string, min, max *float64, minInclusive, maxInclusive bool) search.Query {
	q := bleve.NewNumericRangeInclusiveQuery(min, max, &minInclusive, &maxInclusive)
	q.SetField(field)
	return q
}

func compileBooleanClause(c FilterClause, f schema.Field) (search.Query, *engerrors.Error) {
	if c.Op != FilterEq && c.Op != FilterNe {
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("operator %q not supported on boolean field %q", c.Op, f.Name))
	}
	value := c.Value == "true"
	bq := bleve.NewBoolFieldQuery(value)
	bq.SetField(f.Name)
	if c.Op == FilterNe {
		return bleve.NewBooleanQuery(nil, nil, []search.Query{bq}), nil
	}
	return bq, nil
}

func compileDateClause(c FilterClause, f schema.Field) (search.Query, *engerrors.Error) {
	switch c.Op {
	case FilterEq, FilterGt, FilterGe, FilterLt, FilterLe:
	default:
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("operator %q not supported on date field %q", c.Op, f.Name))
	}

	t, err := time.Parse(time.RFC3339, c.Value)
	if err != nil {
		return nil, engerrors.Validation(engerrors.CodeBadFilter, fmt.Sprintf("field %q: bad date literal %q", f.Name, c.Value))
	}

	var start, end time.Time
	var startInclusive, endInclusive bool
	switch c.Op {
	case FilterEq:
		start, end = t, t
		startInclusive, endInclusive = true, true
	case FilterGt:
		start = t
		startInclusive = false
	case FilterGe:
		start = t
		startInclusive = true
	case FilterLt:
		end = t
		endInclusive = false
	case FilterLe:
		end = t
		endInclusive = true
	}

	q := bleve.NewDateRangeInclusiveQuery(start, end, &startInclusive, &endInclusive)
	q.SetField(f.Name)
	return q, nil
}
