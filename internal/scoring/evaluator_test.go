package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/aisearch-core/internal/docval"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
)

func daysAgoRFC3339(now time.Time, days int) docval.Value {
	return docval.FromString(now.Add(-time.Duration(days) * 24 * time.Hour).Format(time.RFC3339))
}

func TestEvaluator_Freshness_EndToEnd(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := FixedClock{At: now}
	ev := NewEvaluator(clock)

	profile := schema.ScoringProfile{
		Name: "freshness",
		Functions: []schema.ScoringFunction{
			{
				Kind:             schema.FunctionFreshness,
				FieldName:        "publishedAt",
				Boost:            10,
				Interpolation:    schema.InterpolationLinear,
				BoostingDuration: "P365D",
			},
		},
	}

	cases := []struct {
		daysAgo  int
		expected float64
	}{
		{1, 10.97},
		{200, 5.52},
		{400, 1.0},
	}

	for _, c := range cases {
		doc := docval.Document{"publishedAt": daysAgoRFC3339(now, c.daysAgo)}
		multiplier, _, err := ev.Evaluate(profile, doc, nil)
		require.NoError(t, err)
		assert.InDelta(t, c.expected, multiplier, 0.02, "daysAgo=%d", c.daysAgo)
	}
}

func TestEvaluator_Freshness_MissingField(t *testing.T) {
	ev := NewEvaluator(FixedClock{At: time.Now()})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionFreshness, FieldName: "publishedAt", BoostingDuration: "P365D"},
		},
	}
	multiplier, contributions, err := ev.Evaluate(profile, docval.Document{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, multiplier)
	assert.Empty(t, contributions)
}

func TestEvaluator_Magnitude_WithinRange(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "rating", Boost: 1, RangeStart: 0, RangeEnd: 5, Interpolation: schema.InterpolationLinear},
		},
	}
	doc := docval.Document{"rating": docval.FromFloat(2.5)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, multiplier, 1e-9)
}

func TestEvaluator_Magnitude_BeyondRangeClamped(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "rating", Boost: 1, RangeStart: 0, RangeEnd: 5, ConstantBoostBeyondRange: true},
		},
	}
	doc := docval.Document{"rating": docval.FromFloat(50)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, multiplier, 1e-9)
}

func TestEvaluator_Magnitude_BeyondRangeZeroedWithoutConstantBoost(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "rating", Boost: 1, RangeStart: 0, RangeEnd: 5},
		},
	}
	doc := docval.Document{"rating": docval.FromFloat(50)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, multiplier, 1e-9)
}

func TestEvaluator_Distance(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{
				Kind:                    schema.FunctionDistance,
				FieldName:               "location",
				Boost:                   1,
				ReferencePointParameter: "home",
				BoostingDistanceKm:      100,
			},
		},
	}
	doc := docval.Document{
		"location": docval.FromArray([]docval.Value{docval.FromFloat(37.8), docval.FromFloat(-122.4)}),
	}
	params, err := ParseParameters([]string{"home-37.8,-122.4"})
	require.NoError(t, err)

	multiplier, _, err := ev.Evaluate(profile, doc, params)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, multiplier, 1e-6, "zero distance gives the full boost")
}

func TestEvaluator_Tag_Match(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionTag, FieldName: "tags", Boost: 1, TagsParameter: "preferred"},
		},
	}
	doc := docval.Document{
		"tags": docval.FromArray([]docval.Value{docval.FromString("Electronics"), docval.FromString("Sale")}),
	}
	params, err := ParseParameters([]string{"preferred-electronics,outdoor"})
	require.NoError(t, err)

	multiplier, _, err := ev.Evaluate(profile, doc, params)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, multiplier, 1e-9)
}

func TestEvaluator_Tag_NoMatch(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionTag, FieldName: "tags", Boost: 1, TagsParameter: "preferred"},
		},
	}
	doc := docval.Document{
		"tags": docval.FromArray([]docval.Value{docval.FromString("Books")}),
	}
	params, err := ParseParameters([]string{"preferred-outdoor"})
	require.NoError(t, err)

	multiplier, _, err := ev.Evaluate(profile, doc, params)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, multiplier, 1e-9)
}

func TestEvaluator_Interpolation_Constant(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "x", Boost: 1, RangeStart: 0, RangeEnd: 10, Interpolation: schema.InterpolationConstant},
		},
	}
	doc := docval.Document{"x": docval.FromFloat(3)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, multiplier, 1e-9)
}

func TestEvaluator_Interpolation_Quadratic(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "x", Boost: 1, RangeStart: 0, RangeEnd: 10, Interpolation: schema.InterpolationQuadratic},
		},
	}
	doc := docval.Document{"x": docval.FromFloat(5)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, multiplier, 1e-9)
}

func TestEvaluator_Interpolation_Logarithmic(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "x", Boost: 1, RangeStart: 0, RangeEnd: 10, Interpolation: schema.InterpolationLogarithmic},
		},
	}
	doc := docval.Document{"x": docval.FromFloat(10)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, multiplier, 1e-9, "x=1 gives the max logarithmic contribution of 1")
}

func TestEvaluator_Aggregation_Average(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Aggregation: schema.AggregationAverage,
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "a", Boost: 1, RangeStart: 0, RangeEnd: 1},
			{Kind: schema.FunctionMagnitude, FieldName: "b", Boost: 1, RangeStart: 0, RangeEnd: 1},
		},
	}
	doc := docval.Document{"a": docval.FromFloat(1), "b": docval.FromFloat(0)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, multiplier, 1e-9)
}

func TestEvaluator_Aggregation_MinMax(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	doc := docval.Document{"a": docval.FromFloat(1), "b": docval.FromFloat(0.25)}
	functions := []schema.ScoringFunction{
		{Kind: schema.FunctionMagnitude, FieldName: "a", Boost: 1, RangeStart: 0, RangeEnd: 1},
		{Kind: schema.FunctionMagnitude, FieldName: "b", Boost: 1, RangeStart: 0, RangeEnd: 1},
	}

	minProfile := schema.ScoringProfile{Aggregation: schema.AggregationMin, Functions: functions}
	multiplier, _, err := ev.Evaluate(minProfile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, multiplier, 1e-9)

	maxProfile := schema.ScoringProfile{Aggregation: schema.AggregationMax, Functions: functions}
	multiplier, _, err = ev.Evaluate(maxProfile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, multiplier, 1e-9)
}

func TestEvaluator_Aggregation_FirstMatching(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{
		Aggregation: schema.AggregationFirstMatching,
		Functions: []schema.ScoringFunction{
			{Kind: schema.FunctionMagnitude, FieldName: "missing", Boost: 1, RangeStart: 0, RangeEnd: 1},
			{Kind: schema.FunctionMagnitude, FieldName: "present", Boost: 1, RangeStart: 0, RangeEnd: 1},
		},
	}
	doc := docval.Document{"present": docval.FromFloat(0.5)}
	multiplier, _, err := ev.Evaluate(profile, doc, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, multiplier, 1e-9)
}

func TestEvaluator_NoFunctions_DefaultsToOne(t *testing.T) {
	ev := NewEvaluator(SystemClock{})
	profile := schema.ScoringProfile{Name: "empty"}
	multiplier, contributions, err := ev.Evaluate(profile, docval.Document{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, multiplier)
	assert.Empty(t, contributions)
}

func TestParseISO8601Duration(t *testing.T) {
	tests := []struct {
		in       string
		expected time.Duration
	}{
		{"P365D", 365 * 24 * time.Hour},
		{"PT12H", 12 * time.Hour},
		{"P1Y", 365 * 24 * time.Hour},
		{"P1DT6H", 30 * time.Hour},
	}
	for _, tt := range tests {
		d, err := ParseISO8601Duration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.expected, d, tt.in)
	}
}

func TestParseISO8601Duration_RequiresPPrefix(t *testing.T) {
	_, err := ParseISO8601Duration("365D")
	assert.Error(t, err)
}

func TestParseParameters(t *testing.T) {
	params, err := ParseParameters([]string{"home-37.8,-122.4", "preferred-electronics,sale"})
	require.NoError(t, err)
	assert.Equal(t, "37.8,-122.4", params["home"])
	assert.Equal(t, "electronics,sale", params["preferred"])
}

func TestParseParameters_MissingSeparator(t *testing.T) {
	_, err := ParseParameters([]string{"noseparator"})
	assert.Error(t, err)
}
