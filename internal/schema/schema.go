// Package schema defines index schemas: the declared field set an index
// accepts, the per-field capability flags that shape how the inverted
// index and vector store treat them, and the scoring profiles evaluated
// at query time.
package schema

import (
	"fmt"
	"strings"

	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
)

// FieldType is the semantic type of a schema field.
type FieldType string

const (
	TypeString             FieldType = "string"
	TypeInt32              FieldType = "int32"
	TypeInt64              FieldType = "int64"
	TypeDouble             FieldType = "double"
	TypeSingle             FieldType = "single"
	TypeBoolean             FieldType = "boolean"
	TypeDateTimeOffset      FieldType = "datetime-offset"
	TypeGeoPoint            FieldType = "geo-point"
	TypeCollectionOfString  FieldType = "collection-of-string"
	TypeCollectionOfSingle  FieldType = "collection-of-single"
)

// Field declares one field of an index schema.
type Field struct {
	Name       string    `yaml:"name" json:"name"`
	Type       FieldType `yaml:"type" json:"type"`
	Key        bool      `yaml:"key" json:"key"`
	Searchable bool      `yaml:"searchable" json:"searchable"`
	Filterable bool      `yaml:"filterable" json:"filterable"`
	Sortable   bool      `yaml:"sortable" json:"sortable"`
	Facetable  bool      `yaml:"facetable" json:"facetable"`
	Retrievable bool     `yaml:"retrievable" json:"retrievable"`

	// Analyzer names the text analyzer used when Searchable is set on a
	// string or collection-of-string field. Empty means the index's
	// default analyzer.
	Analyzer string `yaml:"analyzer,omitempty" json:"analyzer,omitempty"`

	// Normalizer names the normalizer applied to the filter/sort/facet
	// posting for a string field. Never alters the stored value.
	Normalizer string `yaml:"normalizer,omitempty" json:"normalizer,omitempty"`

	// Dimensions is the vector length required for a
	// collection-of-single field.
	Dimensions int `yaml:"dimensions,omitempty" json:"dimensions,omitempty"`
}

// IsVector reports whether f holds dense vector data.
func (f Field) IsVector() bool { return f.Type == TypeCollectionOfSingle }

// Schema is the full field set and scoring profiles installed for one
// index.
type Schema struct {
	IndexName       string            `yaml:"index_name" json:"index_name"`
	Fields          []Field           `yaml:"fields" json:"fields"`
	ScoringProfiles []ScoringProfile  `yaml:"scoring_profiles,omitempty" json:"scoring_profiles,omitempty"`

	// DefaultScoringProfile names the profile applied when a search
	// request doesn't specify one. Empty means plain BM25/cosine ranking.
	DefaultScoringProfile string `yaml:"default_scoring_profile,omitempty" json:"default_scoring_profile,omitempty"`
}

// KeyField returns the schema's sole key field.
func (s *Schema) KeyField() (Field, bool) {
	for _, f := range s.Fields {
		if f.Key {
			return f, true
		}
	}
	return Field{}, false
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Profile looks up a scoring profile by name.
func (s *Schema) Profile(name string) (ScoringProfile, bool) {
	for _, p := range s.ScoringProfiles {
		if p.Name == name {
			return p, true
		}
	}
	return ScoringProfile{}, false
}

// Validate checks the schema invariants: exactly one string key field;
// vector fields carry only Searchable (implicitly, for the vector
// subsystem) and Retrievable flags; analyzers only apply to searchable
// string-shaped fields; normalizers only apply to string fields used for
// filter/sort/facet.
func (s *Schema) Validate() error {
	var keyCount int
	seen := make(map[string]struct{}, len(s.Fields))

	for _, f := range s.Fields {
		if f.Name == "" {
			return engerrors.Validation(engerrors.CodeSchemaInvariant, "field name must not be empty")
		}
		if _, dup := seen[f.Name]; dup {
			return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("duplicate field name %q", f.Name))
		}
		seen[f.Name] = struct{}{}

		if f.Key {
			keyCount++
			if f.Type != TypeString {
				return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("key field %q must be type string", f.Name))
			}
		}

		if f.IsVector() {
			if f.Filterable || f.Sortable || f.Facetable {
				return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("vector field %q cannot be filterable, sortable, or facetable", f.Name))
			}
			if f.Dimensions <= 0 {
				return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("vector field %q must declare a positive dimensionality", f.Name))
			}
		}

		if f.Analyzer != "" {
			isStringShaped := f.Type == TypeString || f.Type == TypeCollectionOfString
			if !isStringShaped || !f.Searchable {
				return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("field %q: analyzer only applies to searchable string fields", f.Name))
			}
		}
		if f.Normalizer != "" {
			if f.Type != TypeString {
				return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("field %q: normalizer only applies to string fields", f.Name))
			}
			if !f.Filterable && !f.Sortable && !f.Facetable {
				return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("field %q: normalizer requires filterable, sortable, or facetable", f.Name))
			}
		}
	}

	if keyCount != 1 {
		return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("schema must declare exactly one key field, found %d", keyCount))
	}

	for _, p := range s.ScoringProfiles {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeTerm applies the case-fold (and optional ASCII-fold, future
// extension) normalization rule shared by every normalizer name the
// engine currently recognizes.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
