package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	indexapi "github.com/blevesearch/bleve_index_api"

	"github.com/Aman-CERP/aisearch-core/internal/docval"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
)

// rawFieldName is the bleve field the stored-raw projection is kept
// under. It is never analyzed or searched directly.
const rawFieldName = "_raw"

// Document is one document as fed to the inverted index: its key, the
// dynamic field values to be mapped per the owning index's schema, and the
// already-serialized retrievable projection.
type Document struct {
	ID     string
	Fields docval.Document
	Raw    []byte
}

// InvertedIndex wraps a Bleve index scoped to one engine index's schema,
// mapping each searchable/filterable/sortable/facetable field to the
// Bleve field type and analyzer the schema declares, per §4.2.
type InvertedIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	schema *schema.Schema
	config BM25Config
	closed bool
}

// validateIndexIntegrity checks if a Bleve index is valid before opening.
// Returns nil if valid, error describing corruption if not.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		strings.Contains(errStr, "no such file or directory") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewInvertedIndex creates or opens the inverted index for s at path. An
// empty path creates an in-memory index, used for tests and ephemeral
// indexes. Recovers transparently from a corrupted on-disk index by
// clearing and recreating it, logging once.
func NewInvertedIndex(path string, s *schema.Schema, config BM25Config) (*InvertedIndex, error) {
	indexMapping, err := buildIndexMapping(s)
	if err != nil {
		return nil, fmt.Errorf("build index mapping for %s: %w", s.IndexName, err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			slog.Warn("inverted_index_corrupted", slog.String("path", path), slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			slog.Info("inverted_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			slog.Warn("inverted_index_open_failed", slog.String("path", path), slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", removeErr, err)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &InvertedIndex{index: idx, path: path, schema: s, config: config}, nil
}

// fieldAnalyzer resolves the Bleve analyzer name for a schema-declared
// analyzer, per §4.2: standard/simple/whitespace/keyword/stop plus
// stemming language analyzers.
func fieldAnalyzer(name string) string {
	switch name {
	case "", "standard":
		return "standard"
	case "simple", "whitespace", "keyword", "stop":
		return name
	case "english", "en":
		return en.AnalyzerName
	case "french", "fr":
		return fr.AnalyzerName
	case "german", "de":
		return de.AnalyzerName
	default:
		return "standard"
	}
}

// buildIndexMapping derives a Bleve index mapping from a schema: one
// field mapping per non-vector field, shaped per §4.2's field mapping
// table.
func buildIndexMapping(s *schema.Schema) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "standard"

	docMapping := bleve.NewDocumentMapping()

	rawMapping := bleve.NewTextFieldMapping()
	rawMapping.Index = false
	rawMapping.Store = true
	rawMapping.IncludeInAll = false
	docMapping.AddFieldMappingsAt(rawFieldName, rawMapping)

	for _, f := range s.Fields {
		if f.IsVector() {
			continue
		}

		switch f.Type {
		case schema.TypeString, schema.TypeCollectionOfString:
			if f.Searchable {
				fm := bleve.NewTextFieldMapping()
				fm.Analyzer = fieldAnalyzer(f.Analyzer)
				fm.Store = true
				fm.IncludeInAll = false
				docMapping.AddFieldMappingsAt(f.Name, fm)
			}
			if f.Filterable || f.Sortable || f.Facetable {
				fm := bleve.NewTextFieldMapping()
				fm.Analyzer = "keyword"
				fm.Store = true
				fm.IncludeInAll = false
				docMapping.AddFieldMappingsAt(filterFieldName(f.Name), fm)
			}
		case schema.TypeInt32, schema.TypeInt64, schema.TypeDouble, schema.TypeSingle:
			fm := bleve.NewNumericFieldMapping()
			fm.Store = true
			fm.IncludeInAll = false
			docMapping.AddFieldMappingsAt(f.Name, fm)
		case schema.TypeBoolean:
			fm := bleve.NewBooleanFieldMapping()
			fm.Store = true
			fm.IncludeInAll = false
			docMapping.AddFieldMappingsAt(f.Name, fm)
		case schema.TypeDateTimeOffset:
			fm := bleve.NewDateTimeFieldMapping()
			fm.Store = true
			fm.IncludeInAll = false
			docMapping.AddFieldMappingsAt(f.Name, fm)
		case schema.TypeGeoPoint:
			// Stored only: geo-point is surfaced to the scoring profile
			// evaluator straight from _raw, not indexed for filtering.
		}
	}

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultMapping.Dynamic = false
	return indexMapping, nil
}

// filterFieldName is the Bleve field name an exact-match/filter/sort/facet
// posting is stored under for a string field, kept distinct from the
// analyzed searchable posting of the same schema field.
func filterFieldName(schemaField string) string {
	return schemaField + "__exact"
}

// toBleveDoc converts a Document into the dynamic map Bleve indexes,
// applying per-field normalization for filter/sort/facet postings.
func toBleveDoc(doc *Document, s *schema.Schema) map[string]interface{} {
	out := map[string]interface{}{rawFieldName: string(doc.Raw)}

	for _, f := range s.Fields {
		if f.IsVector() {
			continue
		}
		v, ok := doc.Fields[f.Name]
		if !ok || v.IsNull() {
			continue
		}

		switch f.Type {
		case schema.TypeString:
			if f.Searchable {
				out[f.Name] = v.Str
			}
			if f.Filterable || f.Sortable || f.Facetable {
				out[filterFieldName(f.Name)] = schema.NormalizeTerm(v.Str)
			}
		case schema.TypeCollectionOfString:
			strs, err := v.AsStringArray()
			if err != nil {
				continue
			}
			if f.Searchable {
				out[f.Name] = strs
			}
			if f.Filterable || f.Sortable || f.Facetable {
				normalized := make([]string, len(strs))
				for i, el := range strs {
					normalized[i] = schema.NormalizeTerm(el)
				}
				out[filterFieldName(f.Name)] = normalized
			}
		case schema.TypeInt32, schema.TypeInt64:
			if v.Kind == docval.KindInt {
				out[f.Name] = float64(v.Int)
			} else if v.Kind == docval.KindFloat {
				out[f.Name] = v.Float
			}
		case schema.TypeDouble, schema.TypeSingle:
			if v.Kind == docval.KindFloat {
				out[f.Name] = v.Float
			} else if v.Kind == docval.KindInt {
				out[f.Name] = float64(v.Int)
			}
		case schema.TypeBoolean:
			if v.Kind == docval.KindBool {
				out[f.Name] = v.Bool
			}
		case schema.TypeDateTimeOffset:
			if v.Kind == docval.KindString {
				out[f.Name] = v.Str
			}
		case schema.TypeGeoPoint:
			// carried only in _raw
		}
	}
	return out
}

// Index adds or replaces documents in the index in a single batch commit.
func (idx *InvertedIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	batch := idx.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, toBleveDoc(doc, idx.schema)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := idx.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search runs a text query over the searchable fields named in
// searchFields (all searchable fields if empty). Hits carry bleve's
// default score; the index's BM25Config is not applied to scoring.
func (idx *InvertedIndex) Search(ctx context.Context, queryStr string, searchFields []string, limit int) ([]*BM25Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*BM25Result{}, nil
	}

	fields := searchFields
	if len(fields) == 0 {
		fields = idx.searchableFieldNames()
	}

	var q search.Query = bleve.NewDisjunctionQuery(matchQueriesForFields(queryStr, fields)...)

	searchRequest := bleve.NewSearchRequest(q)
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true

	result, err := idx.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &BM25Result{
			DocID:        hit.ID,
			Score:        float32(hit.Score),
			MatchedTerms: extractMatchedTerms(hit, fields),
		})
	}
	return results, nil
}

// RunQuery executes a caller-built bleve search request against the
// index, giving the query planner direct control over composite
// text+filter queries, facets, sort, and paging that Search's
// string-query shortcut doesn't expose.
func (idx *InvertedIndex) RunQuery(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}
	return idx.index.SearchInContext(ctx, req)
}

// FilterFieldName exposes filterFieldName to the query package, which
// builds filter predicates against the exact-match posting.
func (idx *InvertedIndex) FilterFieldName(schemaField string) string {
	return filterFieldName(schemaField)
}

// Schema returns the schema the index was opened with.
func (idx *InvertedIndex) Schema() *schema.Schema {
	return idx.schema
}

func matchQueriesForFields(queryStr string, fields []string) []search.Query {
	queries := make([]search.Query, 0, len(fields))
	for _, f := range fields {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(f)
		queries = append(queries, mq)
	}
	if len(queries) == 0 {
		queries = append(queries, bleve.NewMatchQuery(queryStr))
	}
	return queries
}

func (idx *InvertedIndex) searchableFieldNames() []string {
	names := make([]string, 0, len(idx.schema.Fields))
	for _, f := range idx.schema.Fields {
		if f.Searchable && (f.Type == schema.TypeString || f.Type == schema.TypeCollectionOfString) {
			names = append(names, f.Name)
		}
	}
	return names
}

// Delete removes documents from the index in a single batch commit.
func (idx *InvertedIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	batch := idx.index.NewBatch()
	for _, id := range docIDs {
		batch.Delete(id)
	}
	if err := idx.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// GetRaw fetches the stored _raw projection for a single key, or returns
// false if the document doesn't exist.
func (idx *InvertedIndex) GetRaw(key string) ([]byte, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, false, fmt.Errorf("index is closed")
	}

	doc, err := idx.index.Document(key)
	if err != nil {
		return nil, false, fmt.Errorf("get document %s: %w", key, err)
	}
	if doc == nil {
		return nil, false, nil
	}

	var raw []byte
	doc.VisitFields(func(f indexapi.Field) {
		if f.Name() == rawFieldName {
			raw = f.Value()
		}
	})
	return raw, raw != nil, nil
}

// AllIDs returns every document key currently in the index.
func (idx *InvertedIndex) AllIDs() ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}

	docCount, _ := idx.index.DocCount()
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Stats returns index statistics.
func (idx *InvertedIndex) Stats() *IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return &IndexStats{}
	}
	docCount, _ := idx.index.DocCount()
	return &IndexStats{DocumentCount: int(docCount)}
}

// Close closes the underlying Bleve index.
func (idx *InvertedIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true
	if idx.index != nil {
		return idx.index.Close()
	}
	return nil
}

// extractMatchedTerms extracts matched terms from search hit across the
// given searchable field names.
func extractMatchedTerms(hit *search.DocumentMatch, fields []string) []string {
	wanted := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		wanted[f] = struct{}{}
	}

	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if _, ok := wanted[field]; !ok {
			continue
		}
		for term := range locations {
			terms[term] = struct{}{}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}
