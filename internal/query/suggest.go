package query

import (
	"context"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"

	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
)

const defaultSuggestTop = 5

// Suggest runs prefix queries against field's searchable term
// dictionary, deduplicating by term and capping the result at top (or
// defaultSuggestTop when top <= 0), per §4.3.
func (e *Executor) Suggest(ctx context.Context, field, prefix string, top int) ([]string, *engerrors.Error) {
	if top <= 0 {
		top = defaultSuggestTop
	}
	f, ok := e.Schema.Field(field)
	if !ok || !f.Searchable {
		return nil, engerrors.Validation(engerrors.CodeBadAction, "field is not searchable")
	}

	pq := bleve.NewPrefixQuery(strings.ToLower(prefix))
	pq.SetField(field)

	req := bleve.NewSearchRequest(pq)
	req.Size = candidateScanSize
	req.IncludeLocations = true

	result, err := e.Inverted.RunQuery(ctx, req)
	if err != nil {
		return nil, engerrors.Internal("suggest query failed", err)
	}

	seen := make(map[string]struct{})
	var terms []string
	for _, hit := range result.Hits {
		for term := range hit.Locations[field] {
			if !strings.HasPrefix(term, strings.ToLower(prefix)) {
				continue
			}
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			terms = append(terms, term)
		}
	}

	sort.Strings(terms)
	if len(terms) > top {
		terms = terms[:top]
	}
	return terms, nil
}
