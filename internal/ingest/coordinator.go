// Package ingest implements the batch ingestion coordinator: the
// per-document upload/merge/mergeOrUpload/delete actions that write a
// document's inverted-index postings, stored raw projection, and
// vector-typed fields together or not at all.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Aman-CERP/aisearch-core/internal/docval"
	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
	"github.com/Aman-CERP/aisearch-core/internal/store"
)

// Action names one of the four per-document operations a batch entry
// carries, discriminated in the wire protocol by "@search.action".
type Action string

const (
	ActionUpload        Action = "upload"
	ActionMerge          Action = "merge"
	ActionMergeOrUpload Action = "mergeOrUpload"
	ActionDelete         Action = "delete"
)

// Request is one document action within an ingestion batch.
type Request struct {
	Action Action
	Fields docval.Document
}

// Result reports one action's outcome, returned in the batch's input
// order.
type Result struct {
	Key            string
	OK             bool
	HTTPLikeStatus int
	Message        string
}

// Coordinator applies ingestion batches against one index's inverted
// store and per-field vector stores.
type Coordinator struct {
	schema   *schema.Schema
	inverted *store.InvertedIndex
	vectors  map[string]store.VectorStore
}

// NewCoordinator builds a Coordinator for one index. vectors maps each
// of the schema's vector-typed field names to the store backing it.
func NewCoordinator(s *schema.Schema, inverted *store.InvertedIndex, vectors map[string]store.VectorStore) *Coordinator {
	return &Coordinator{schema: s, inverted: inverted, vectors: vectors}
}

type vectorBatch struct {
	ids     []string
	vectors [][]float32
}

// Batch applies reqs in order, committing at most one inverted-index
// write batch, one inverted-index delete batch, and one add/delete call
// per vector field. A failure in any of those final commit calls is
// returned alongside the per-document results computed so far; callers
// must treat every OK result as provisional until the returned error is
// nil, per the batch-durability guarantee.
func (c *Coordinator) Batch(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	keyField, hasKey := c.schema.KeyField()
	if !hasKey {
		return nil, engerrors.Internal("schema has no key field", nil)
	}

	var toIndex []*store.Document
	var toDelete []string
	vectorAdds := make(map[string]*vectorBatch)
	vectorDeletes := make(map[string][]string)

	queueVectorDelete := func(key string) {
		for field := range c.vectors {
			vectorDeletes[field] = append(vectorDeletes[field], key)
		}
	}

	for i, req := range reqs {
		key, ok := extractKey(req.Fields, keyField.Name)
		if !ok {
			results[i] = Result{OK: false, HTTPLikeStatus: 400, Message: "missing or invalid key field"}
			continue
		}

		if req.Action == ActionDelete {
			toDelete = append(toDelete, key)
			queueVectorDelete(key)
			results[i] = Result{Key: key, OK: true, HTTPLikeStatus: 200}
			continue
		}

		existingRaw, exists, err := c.inverted.GetRaw(key)
		if err != nil {
			results[i] = Result{Key: key, OK: false, HTTPLikeStatus: 500, Message: err.Error()}
			continue
		}

		var merged docval.Document
		status := 200

		switch req.Action {
		case ActionUpload:
			merged = req.Fields
			if !exists {
				status = 201
			}
		case ActionMerge:
			if !exists {
				results[i] = Result{Key: key, OK: false, HTTPLikeStatus: 404, Message: fmt.Sprintf("document %q not found", key)}
				continue
			}
			merged, err = mergeOnto(existingRaw, req.Fields)
			if err != nil {
				results[i] = Result{Key: key, OK: false, HTTPLikeStatus: 500, Message: err.Error()}
				continue
			}
		case ActionMergeOrUpload:
			if exists {
				merged, err = mergeOnto(existingRaw, req.Fields)
				if err != nil {
					results[i] = Result{Key: key, OK: false, HTTPLikeStatus: 500, Message: err.Error()}
					continue
				}
			} else {
				merged = req.Fields
				status = 201
			}
		default:
			results[i] = Result{Key: key, OK: false, HTTPLikeStatus: 400, Message: fmt.Sprintf("unknown action %q", req.Action)}
			continue
		}

		projected, vectorValues, verr := c.project(merged)
		if verr != nil {
			results[i] = Result{Key: key, OK: false, HTTPLikeStatus: verr.Status(), Message: verr.Message}
			continue
		}
		// mergeOnto removes explicit nulls before projection; a null vector
		// field in the request still clears the stored vector.
		for name, v := range req.Fields {
			if _, isVector := c.vectors[name]; isVector && v.IsNull() {
				vectorValues[name] = nil
			}
		}

		raw, err := json.Marshal(projected)
		if err != nil {
			results[i] = Result{Key: key, OK: false, HTTPLikeStatus: 500, Message: err.Error()}
			continue
		}

		toIndex = append(toIndex, &store.Document{ID: key, Fields: projected, Raw: raw})
		for field, vec := range vectorValues {
			if vec == nil {
				vectorDeletes[field] = append(vectorDeletes[field], key)
				continue
			}
			b, ok := vectorAdds[field]
			if !ok {
				b = &vectorBatch{}
				vectorAdds[field] = b
			}
			b.ids = append(b.ids, key)
			b.vectors = append(b.vectors, vec)
		}

		results[i] = Result{Key: key, OK: true, HTTPLikeStatus: status}
	}

	if len(toIndex) > 0 {
		if err := c.inverted.Index(ctx, toIndex); err != nil {
			return results, engerrors.Internal("commit failed", err)
		}
	}
	if len(toDelete) > 0 {
		if err := c.inverted.Delete(ctx, toDelete); err != nil {
			return results, engerrors.Internal("delete commit failed", err)
		}
	}
	for field, b := range vectorAdds {
		vs, ok := c.vectors[field]
		if !ok {
			continue
		}
		if err := vs.Add(ctx, b.ids, b.vectors); err != nil {
			return results, engerrors.Internal(fmt.Sprintf("vector commit failed for field %q", field), err)
		}
	}
	for field, ids := range vectorDeletes {
		vs, ok := c.vectors[field]
		if !ok {
			continue
		}
		if err := vs.Delete(ctx, ids); err != nil {
			return results, engerrors.Internal(fmt.Sprintf("vector delete failed for field %q", field), err)
		}
	}

	return results, nil
}

func extractKey(fields docval.Document, keyFieldName string) (string, bool) {
	v, ok := fields[keyFieldName]
	if !ok || v.Kind != docval.KindString || v.Str == "" {
		return "", false
	}
	return v.Str, true
}

// mergeOnto parses existingRaw (the stored _raw JSON projection) and
// applies incoming on top: keys absent from incoming are untouched, an
// explicit null clears the field, and any other value replaces it
// wholesale (collections included, per the no-element-merge rule).
func mergeOnto(existingRaw []byte, incoming docval.Document) (docval.Document, error) {
	var base docval.Document
	if err := json.Unmarshal(existingRaw, &base); err != nil {
		return nil, fmt.Errorf("ingest: parse stored document: %w", err)
	}
	for name, v := range incoming {
		if v.IsNull() {
			delete(base, name)
			continue
		}
		base[name] = v
	}
	return base, nil
}

// project drops fields the schema doesn't declare (the schema-drop
// rule), validates each vector field's dimensionality, and returns the
// schema-projected document plus a per-vector-field value map (a nil
// value means the field is explicitly null; a field absent from doc has
// no entry).
func (c *Coordinator) project(doc docval.Document) (docval.Document, map[string][]float32, *engerrors.Error) {
	projected := make(docval.Document, len(c.schema.Fields))
	vectors := make(map[string][]float32)

	for _, f := range c.schema.Fields {
		v, ok := doc[f.Name]
		if !ok {
			continue
		}

		if f.IsVector() {
			if v.IsNull() {
				vectors[f.Name] = nil
				continue
			}
			vec, err := v.AsFloat32Vector()
			if err != nil {
				return nil, nil, engerrors.Validation(engerrors.CodeDimensionMismatch, fmt.Sprintf("field %q: %s", f.Name, err.Error()))
			}
			if len(vec) != f.Dimensions {
				return nil, nil, engerrors.Validation(engerrors.CodeDimensionMismatch,
					fmt.Sprintf("field %q: expected %d dimensions, got %d", f.Name, f.Dimensions, len(vec)))
			}
			vectors[f.Name] = vec
			continue
		}

		projected[f.Name] = v
	}

	return projected, vectors, nil
}
