package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/aisearch-core/internal/config"
	"github.com/Aman-CERP/aisearch-core/internal/docval"
	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
	"github.com/Aman-CERP/aisearch-core/internal/fusion"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
	"github.com/Aman-CERP/aisearch-core/internal/scoring"
	"github.com/Aman-CERP/aisearch-core/internal/store"
)

// candidateScanSize bounds how many hits the base-set query and vector
// probes retrieve before sorting and paging. Facets and minimumCoverage
// need the full base set, not just one page, so this has to cover a
// realistic index size for a local simulator rather than just top+skip.
const candidateScanSize = 10000

// Executor plans and runs structured search requests against one
// index's inverted store, vector stores, and scoring profiles.
type Executor struct {
	Schema    *schema.Schema
	Inverted  *store.InvertedIndex
	Vectors   map[string]store.VectorStore
	Evaluator *scoring.Evaluator
	Hybrid    config.HybridConfig
	Defaults  config.EngineConfig
}

type scoredDoc struct {
	key          string
	baseScore    float64
	matchedTerms []string
	raw          docval.Document
	rawBytes     []byte
}

// Execute runs req and returns the paginated, projected response.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, *engerrors.Error) {
	top, skip := e.effectivePaging(req)

	filterClauses, _ := ParseFilter(req.Filter)
	filterQuery, ferr := CompileFilter(filterClauses, e.Schema, e.Inverted)
	if ferr != nil {
		return nil, ferr
	}

	textQuery, terr := e.buildTextQuery(req)
	if terr != nil {
		return nil, terr
	}

	hasVectorQueries := len(req.VectorQueries) > 0
	baseHits, err := e.runBaseQuery(ctx, textQuery, filterQuery, hasVectorQueries)
	if err != nil {
		return nil, engerrors.Internal("base query failed", err)
	}

	vectorHits, err := e.runVectorQueries(ctx, req.VectorQueries, filterQuery)
	if err != nil {
		return nil, engerrors.Internal("vector query failed", err)
	}

	candidates := mergeCandidates(baseHits, vectorHits)
	hybrid := e.Hybrid
	if textQuery == nil || !hasVectorQueries {
		// Only a text-plus-vector plan is fused; a single-leg plan reports
		// that leg's own score.
		hybrid = config.HybridConfig{Fusion: config.FusionWeightedSum, TextWeight: 1, VectorWeight: 1}
	}
	fused := fusion.Fuse(candidates, hybrid)

	docs, derr := e.hydrate(fused)
	if derr != nil {
		return nil, engerrors.Internal("hydrate failed", derr)
	}

	profile, params, perr := e.resolveScoringProfile(req)
	if perr != nil {
		return nil, perr
	}
	if profile != nil {
		for i := range docs {
			multiplier, _, evalErr := e.Evaluator.Evaluate(*profile, docs[i].raw, params)
			if evalErr != nil {
				return nil, engerrors.Internal("scoring profile evaluation failed", evalErr)
			}
			docs[i].baseScore *= multiplier
		}
	}

	sortDocs(docs, req.OrderBy)

	resp := &Response{}
	if req.Count {
		n := len(docs)
		resp.Count = &n
	}
	if req.MinimumCoverage {
		coverage := 100.0
		resp.Coverage = &coverage
	}
	if len(req.Facets) > 0 {
		resp.Facets = computeFacets(docs, req.Facets, e.Schema)
	}

	page := paginate(docs, skip, top)
	resp.Results = make([]DocumentResult, 0, len(page))
	for _, d := range page {
		result := DocumentResult{
			Key:    d.key,
			Score:  d.baseScore,
			Fields: projectFields(d.raw, req.Select, e.Schema),
		}
		if len(req.Highlight) > 0 {
			result.Highlights = highlight(d.raw, req.Search, req.Highlight, req.HighlightPreTag, req.HighlightPostTag)
		}
		if req.Debug {
			result.Debug = map[string]interface{}{
				"matchedTerms": d.matchedTerms,
				"baseScore":    d.baseScore,
			}
		}
		resp.Results = append(resp.Results, result)
	}
	return resp, nil
}

// GetByKey retrieves one document directly by its key, bypassing query
// planning entirely. Returns ok=false if no document is stored under key.
func (e *Executor) GetByKey(ctx context.Context, key string, selected []string) (*DocumentResult, bool, error) {
	raw, ok, err := e.Inverted.GetRaw(key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	var parsed docval.Document
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, false, fmt.Errorf("query: parse stored document %q: %w", key, err)
	}
	return &DocumentResult{
		Key:    key,
		Score:  1.0,
		Fields: projectFields(parsed, selected, e.Schema),
	}, true, nil
}

func (e *Executor) effectivePaging(req Request) (top, skip int) {
	switch {
	case req.Top == nil:
		top = e.Defaults.DefaultPageSize
	case *req.Top < 0:
		top = 0
	default:
		top = *req.Top
	}
	if top > e.Defaults.MaxPageSize {
		top = e.Defaults.MaxPageSize
	}
	skip = req.Skip
	if skip < 0 {
		skip = 0
	}
	return top, skip
}

// buildTextQuery compiles the search text per queryType: simple escapes
// special characters and defaults to OR; full preserves a leading
// wildcard and defaults to AND.
func (e *Executor) buildTextQuery(req Request) (search.Query, *engerrors.Error) {
	text := req.Search
	if text == "" || text == "*" {
		return nil, nil
	}

	fields := req.SearchFields
	if len(fields) == 0 {
		fields = e.searchableFieldNames()
	}
	for _, f := range fields {
		sf, ok := e.Schema.Field(f)
		if !ok || !sf.Searchable {
			return nil, engerrors.Validation(engerrors.CodeBadAction, fmt.Sprintf("field %q is not searchable", f))
		}
	}

	if req.QueryType == QueryTypeFull && len(text) > 0 && text[0] == '*' {
		queries := make([]search.Query, 0, len(fields))
		for _, f := range fields {
			wq := bleve.NewWildcardQuery(text)
			wq.SetField(f)
			queries = append(queries, wq)
		}
		return bleve.NewDisjunctionQuery(queries...), nil
	}

	operator := bleveQuery.MatchQueryOperatorOr
	if req.QueryType == QueryTypeFull {
		operator = bleveQuery.MatchQueryOperatorAnd
	}

	queries := make([]search.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(text)
		mq.SetField(f)
		mq.SetOperator(operator)
		queries = append(queries, mq)
	}
	if len(queries) == 1 {
		return queries[0], nil
	}
	return bleve.NewDisjunctionQuery(queries...), nil
}

func (e *Executor) searchableFieldNames() []string {
	var names []string
	for _, f := range e.Schema.Fields {
		if f.Searchable && (f.Type == schema.TypeString || f.Type == schema.TypeCollectionOfString) {
			names = append(names, f.Name)
		}
	}
	return names
}

// runBaseQuery executes the plan's base set Q: text AND filter, filter
// only, match-all, or (when vector queries alone drive the request)
// nothing at all.
func (e *Executor) runBaseQuery(ctx context.Context, textQuery, filterQuery search.Query, vectorOnly bool) ([]scoredDoc, error) {
	var q search.Query
	switch {
	case textQuery != nil && filterQuery != nil:
		q = bleve.NewConjunctionQuery(textQuery, filterQuery)
	case textQuery != nil:
		q = textQuery
	case filterQuery != nil:
		q = filterQuery
	case vectorOnly:
		return nil, nil
	default:
		q = bleve.NewMatchAllQuery()
	}

	req := bleve.NewSearchRequest(q)
	req.Size = candidateScanSize
	req.Fields = []string{"_raw"}
	req.IncludeLocations = true

	result, err := e.Inverted.RunQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	docs := make([]scoredDoc, 0, len(result.Hits))
	for _, hit := range result.Hits {
		docs = append(docs, scoredDoc{key: hit.ID, baseScore: hit.Score})
	}
	return docs, nil
}

func (e *Executor) runVectorQueries(ctx context.Context, queries []VectorQuery, filterQuery search.Query) (map[string]float64, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	var allowed map[string]struct{}
	if filterQuery != nil {
		req := bleve.NewSearchRequest(filterQuery)
		req.Size = candidateScanSize
		result, err := e.Inverted.RunQuery(ctx, req)
		if err != nil {
			return nil, err
		}
		allowed = make(map[string]struct{}, len(result.Hits))
		for _, hit := range result.Hits {
			allowed[hit.ID] = struct{}{}
		}
	}

	scores := make(map[string]float64)
	for _, vq := range queries {
		vs, ok := e.Vectors[vq.Field]
		if !ok {
			continue
		}
		k := vq.K
		if k <= 0 {
			k = 10
		}

		var results []*store.VectorResult
		var err error
		if allowed != nil {
			fvs, ok := vs.(store.FilteredVectorStore)
			if !ok {
				return nil, fmt.Errorf("vector field %q does not support filtered search", vq.Field)
			}
			results, err = fvs.SearchFiltered(ctx, vq.Vector, k, func(id string) bool {
				_, ok := allowed[id]
				return ok
			})
		} else {
			results, err = vs.Search(ctx, vq.Vector, k)
		}
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			scores[r.ID] += float64(r.Score)
		}
	}
	return scores, nil
}

func mergeCandidates(base []scoredDoc, vectorScores map[string]float64) []fusion.Candidate {
	byID := make(map[string]*fusion.Candidate, len(base)+len(vectorScores))
	for _, d := range base {
		byID[d.key] = &fusion.Candidate{DocID: d.key, TextScore: d.baseScore, InText: true}
	}
	for id, score := range vectorScores {
		c, ok := byID[id]
		if !ok {
			c = &fusion.Candidate{DocID: id}
			byID[id] = c
		}
		c.VectorScore = score
		c.InVector = true
	}
	out := make([]fusion.Candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, *c)
	}
	return out
}

func (e *Executor) hydrate(fused []fusion.Result) ([]scoredDoc, error) {
	docs := make([]scoredDoc, 0, len(fused))
	for _, r := range fused {
		raw, ok, err := e.Inverted.GetRaw(r.DocID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var parsed docval.Document
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, fmt.Errorf("query: parse stored document %q: %w", r.DocID, err)
		}
		score := r.Score
		if score == 0 {
			score = 1.0
		}
		docs = append(docs, scoredDoc{
			key:          r.DocID,
			baseScore:    score,
			matchedTerms: r.MatchedTerms,
			raw:          parsed,
			rawBytes:     raw,
		})
	}
	return docs, nil
}

func (e *Executor) resolveScoringProfile(req Request) (*schema.ScoringProfile, scoring.Parameters, *engerrors.Error) {
	name := req.ScoringProfile
	if name == "" {
		name = e.Schema.DefaultScoringProfile
	}
	if name == "" {
		return nil, nil, nil
	}
	profile, ok := e.Schema.Profile(name)
	if !ok {
		return nil, nil, engerrors.NotFound(engerrors.CodeProfileNotFound, fmt.Sprintf("scoring profile %q not found", name))
	}
	params, err := scoring.ParseParameters(req.ScoringParameters)
	if err != nil {
		return nil, nil, engerrors.Validation(engerrors.CodeBadAction, err.Error())
	}
	return &profile, params, nil
}

func sortDocs(docs []scoredDoc, orderBy []OrderByClause) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, clause := range orderBy {
			cmp := compareByClause(docs[i], docs[j], clause)
			if cmp != 0 {
				if clause.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		if len(orderBy) == 0 && docs[i].baseScore != docs[j].baseScore {
			return docs[i].baseScore > docs[j].baseScore
		}
		return docs[i].key < docs[j].key
	})
}

func compareByClause(a, b scoredDoc, clause OrderByClause) int {
	if clause.Field == "" {
		switch {
		case a.baseScore < b.baseScore:
			return -1
		case a.baseScore > b.baseScore:
			return 1
		default:
			return 0
		}
	}
	av, aok := a.raw[clause.Field]
	bv, bok := b.raw[clause.Field]
	if !aok || !bok {
		return 0
	}
	return compareValues(av, bv)
}

func compareValues(a, b docval.Value) int {
	// Stored JSON numbers round-trip as KindInt when they're integral and
	// KindFloat otherwise (see docval.fromInterface), so a field mixing
	// e.g. 4.0 and 4.5 can compare a KindInt against a KindFloat. Promote
	// both to float64 whenever both sides are numeric so ordering stays
	// total and transitive regardless of which kind each operand landed in.
	if isNumericKind(a.Kind) && isNumericKind(b.Kind) {
		af, bf := numericValue(a), numericValue(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	switch a.Kind {
	case docval.KindString:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	case docval.KindBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	default:
		return 0
	}
}

func isNumericKind(k docval.Kind) bool {
	return k == docval.KindInt || k == docval.KindFloat
}

func numericValue(v docval.Value) float64 {
	if v.Kind == docval.KindInt {
		return float64(v.Int)
	}
	return v.Float
}

func paginate(docs []scoredDoc, skip, top int) []scoredDoc {
	if skip >= len(docs) {
		return nil
	}
	end := skip + top
	if end > len(docs) {
		end = len(docs)
	}
	return docs[skip:end]
}

func projectFields(doc docval.Document, selected []string, s *schema.Schema) map[string]interface{} {
	out := make(map[string]interface{})
	names := selected
	if len(names) == 0 {
		for _, f := range s.Fields {
			if f.Retrievable {
				names = append(names, f.Name)
			}
		}
	}
	for _, name := range names {
		f, ok := s.Field(name)
		if !ok || !f.Retrievable {
			continue
		}
		if v, ok := doc[name]; ok {
			out[name] = v.Interface()
		}
	}
	return out
}
