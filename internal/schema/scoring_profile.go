package schema

import (
	"fmt"

	engerrors "github.com/Aman-CERP/aisearch-core/internal/errors"
)

// Interpolation names one of the four interpolation curves a scoring
// function output is passed through before aggregation.
type Interpolation string

const (
	InterpolationLinear      Interpolation = "linear"
	InterpolationConstant    Interpolation = "constant"
	InterpolationQuadratic   Interpolation = "quadratic"
	InterpolationLogarithmic Interpolation = "logarithmic"
)

// Aggregation names how multiple function contributions combine into a
// single boost.
type Aggregation string

const (
	AggregationSum          Aggregation = "sum"
	AggregationAverage      Aggregation = "average"
	AggregationMin          Aggregation = "min"
	AggregationMax          Aggregation = "max"
	AggregationFirstMatching Aggregation = "firstMatching"
)

// FunctionKind names one of the four scoring function shapes.
type FunctionKind string

const (
	FunctionFreshness FunctionKind = "freshness"
	FunctionMagnitude FunctionKind = "magnitude"
	FunctionDistance  FunctionKind = "distance"
	FunctionTag       FunctionKind = "tag"
)

// ScoringFunction is one entry in a scoring profile's ordered function
// list.
type ScoringFunction struct {
	Kind          FunctionKind  `yaml:"kind" json:"kind"`
	FieldName     string        `yaml:"field_name" json:"field_name"`
	Boost         float64       `yaml:"boost" json:"boost"`
	Interpolation Interpolation `yaml:"interpolation" json:"interpolation"`

	// Freshness
	BoostingDuration string `yaml:"boosting_duration,omitempty" json:"boosting_duration,omitempty"`

	// Magnitude
	RangeStart                float64 `yaml:"range_start,omitempty" json:"range_start,omitempty"`
	RangeEnd                  float64 `yaml:"range_end,omitempty" json:"range_end,omitempty"`
	ConstantBoostBeyondRange bool    `yaml:"constant_boost_beyond_range,omitempty" json:"constant_boost_beyond_range,omitempty"`

	// Distance
	ReferencePointParameter string  `yaml:"reference_point_parameter,omitempty" json:"reference_point_parameter,omitempty"`
	BoostingDistanceKm       float64 `yaml:"boosting_distance_km,omitempty" json:"boosting_distance_km,omitempty"`

	// Tag
	TagsParameter string `yaml:"tags_parameter,omitempty" json:"tags_parameter,omitempty"`
}

// TextWeight declares a per-field lexical score boost.
type TextWeight struct {
	FieldName string  `yaml:"field_name" json:"field_name"`
	Weight    float64 `yaml:"weight" json:"weight"`
}

// ScoringProfile is a named, reusable ranking adjustment: per-field text
// weights plus an ordered list of functions combined by Aggregation into a
// multiplier applied over the base lexical/vector score.
type ScoringProfile struct {
	Name        string            `yaml:"name" json:"name"`
	TextWeights []TextWeight      `yaml:"text_weights,omitempty" json:"text_weights,omitempty"`
	Functions   []ScoringFunction `yaml:"functions,omitempty" json:"functions,omitempty"`
	Aggregation Aggregation       `yaml:"aggregation,omitempty" json:"aggregation,omitempty"`
}

// Validate checks a scoring profile's function and aggregation fields are
// recognized values.
func (p ScoringProfile) Validate() error {
	if p.Name == "" {
		return engerrors.Validation(engerrors.CodeSchemaInvariant, "scoring profile must have a name")
	}
	switch p.Aggregation {
	case "", AggregationSum, AggregationAverage, AggregationMin, AggregationMax, AggregationFirstMatching:
	default:
		return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("scoring profile %q: unknown aggregation %q", p.Name, p.Aggregation))
	}
	for _, fn := range p.Functions {
		switch fn.Kind {
		case FunctionFreshness, FunctionMagnitude, FunctionDistance, FunctionTag:
		default:
			return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("scoring profile %q: unknown function kind %q", p.Name, fn.Kind))
		}
		switch fn.Interpolation {
		case "", InterpolationLinear, InterpolationConstant, InterpolationQuadratic, InterpolationLogarithmic:
		default:
			return engerrors.Validation(engerrors.CodeSchemaInvariant, fmt.Sprintf("scoring profile %q: unknown interpolation %q", p.Name, fn.Interpolation))
		}
	}
	return nil
}

// EffectiveAggregation returns the profile's aggregation, defaulting to sum.
func (p ScoringProfile) EffectiveAggregation() Aggregation {
	if p.Aggregation == "" {
		return AggregationSum
	}
	return p.Aggregation
}
