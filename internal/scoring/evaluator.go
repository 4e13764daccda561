// Package scoring evaluates a schema.ScoringProfile's function list
// against a document, producing the multiplier §4.7 applies over the
// combined lexical/vector score.
package scoring

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/aisearch-core/internal/docval"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
)

// Contribution records one function's evaluation, returned by Evaluate
// alongside the multiplier.
type Contribution struct {
	Kind         schema.FunctionKind
	FieldName    string
	RawValue     float64
	Interpolated float64
}

// Evaluator applies scoring profiles using clock for "now".
type Evaluator struct {
	clock Clock
}

// NewEvaluator builds an Evaluator. A nil clock defaults to SystemClock.
func NewEvaluator(clock Clock) *Evaluator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Evaluator{clock: clock}
}

// Evaluate computes the profile's multiplier for doc, returning 1.0 for a
// profile with no applicable function contributions.
func (e *Evaluator) Evaluate(profile schema.ScoringProfile, doc docval.Document, params Parameters) (float64, []Contribution, error) {
	var contributions []Contribution

	for _, fn := range profile.Functions {
		raw, ok, err := e.evaluateFunction(fn, doc, params)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			continue
		}
		interpolated := interpolate(raw, fn.Interpolation)
		contributions = append(contributions, Contribution{
			Kind:         fn.Kind,
			FieldName:    fn.FieldName,
			RawValue:     raw,
			Interpolated: interpolated * fn.Boost,
		})
	}

	if len(contributions) == 0 {
		return 1.0, contributions, nil
	}

	return 1.0 + aggregate(contributions, profile.EffectiveAggregation()), contributions, nil
}

// evaluateFunction returns the function's normalized [0,1] raw value and
// whether the function applies at all (ok=false means "no contribution",
// distinct from a raw value of 0).
func (e *Evaluator) evaluateFunction(fn schema.ScoringFunction, doc docval.Document, params Parameters) (float64, bool, error) {
	switch fn.Kind {
	case schema.FunctionFreshness:
		return e.freshness(fn, doc)
	case schema.FunctionMagnitude:
		return magnitude(fn, doc)
	case schema.FunctionDistance:
		return distance(fn, doc, params)
	case schema.FunctionTag:
		return tag(fn, doc, params)
	default:
		return 0, false, nil
	}
}

// freshness: max(0, 1 - |now - docDate| / D).
func (e *Evaluator) freshness(fn schema.ScoringFunction, doc docval.Document) (float64, bool, error) {
	v, ok := doc[fn.FieldName]
	if !ok || v.IsNull() || v.Kind != docval.KindString {
		return 0, false, nil
	}
	docDate, err := time.Parse(time.RFC3339, v.Str)
	if err != nil {
		return 0, false, nil
	}
	d, err := ParseISO8601Duration(fn.BoostingDuration)
	if err != nil || d <= 0 {
		return 0, false, nil
	}

	delta := e.clock.Now().Sub(docDate)
	if delta < 0 {
		delta = -delta
	}
	raw := 1.0 - float64(delta)/float64(d)
	if raw < 0 {
		raw = 0
	}
	return raw, true, nil
}

// magnitude: (v-a)/(b-a), clamped [0,1] if ConstantBoostBeyondRange, else
// 0 outside the range.
func magnitude(fn schema.ScoringFunction, doc docval.Document) (float64, bool, error) {
	v, ok := doc[fn.FieldName]
	if !ok || v.IsNull() {
		return 0, false, nil
	}
	var value float64
	switch v.Kind {
	case docval.KindInt:
		value = float64(v.Int)
	case docval.KindFloat:
		value = v.Float
	default:
		return 0, false, nil
	}

	span := fn.RangeEnd - fn.RangeStart
	if span == 0 {
		return 0, false, nil
	}
	raw := (value - fn.RangeStart) / span

	if raw < 0 || raw > 1 {
		if fn.ConstantBoostBeyondRange {
			if raw < 0 {
				raw = 0
			} else {
				raw = 1
			}
		} else {
			raw = 0
		}
	}
	return raw, true, nil
}

// distance: Haversine km between the reference-point parameter and the
// document's geo-point field, normalized against BoostingDistanceKm. The
// geo-point is carried as a two-element [lat, lon] docval array.
func distance(fn schema.ScoringFunction, doc docval.Document, params Parameters) (float64, bool, error) {
	v, ok := doc[fn.FieldName]
	if !ok || v.IsNull() || v.Kind != docval.KindArray || len(v.Array) != 2 {
		return 0, false, nil
	}
	docLat, ok1 := valueAsFloat64(v.Array[0])
	docLon, ok2 := valueAsFloat64(v.Array[1])
	if !ok1 || !ok2 {
		return 0, false, nil
	}

	raw, ok := params[fn.ReferencePointParameter]
	if !ok {
		return 0, false, nil
	}
	refLat, refLon, err := parseLatLon(raw)
	if err != nil {
		return 0, false, nil
	}

	if fn.BoostingDistanceKm <= 0 {
		return 0, false, nil
	}

	km := haversineKm(refLat, refLon, docLat, docLon)
	result := 1.0 - km/fn.BoostingDistanceKm
	if result < 0 {
		result = 0
	}
	return result, true, nil
}

// tag: 1.0 if any supplied tag matches any document tag, case-insensitive.
func tag(fn schema.ScoringFunction, doc docval.Document, params Parameters) (float64, bool, error) {
	v, ok := doc[fn.FieldName]
	if !ok || v.IsNull() {
		return 0, false, nil
	}
	docTags, err := v.AsStringArray()
	if err != nil {
		return 0, false, nil
	}

	raw, ok := params[fn.TagsParameter]
	if !ok {
		return 0, false, nil
	}
	wanted := strings.Split(raw, ",")

	docSet := make(map[string]struct{}, len(docTags))
	for _, t := range docTags {
		docSet[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	for _, w := range wanted {
		if _, found := docSet[strings.ToLower(strings.TrimSpace(w))]; found {
			return 1.0, true, nil
		}
	}
	return 0.0, true, nil
}

func valueAsFloat64(v docval.Value) (float64, bool) {
	switch v.Kind {
	case docval.KindInt:
		return float64(v.Int), true
	case docval.KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

func parseLatLon(s string) (lat, lon float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, strconvSyntaxError(s)
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func strconvSyntaxError(s string) error {
	return &strconv.NumError{Func: "parseLatLon", Num: s, Err: strconv.ErrSyntax}
}

// haversineKm computes great-circle distance in kilometres.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// interpolate applies one of the four interpolation curves to a raw
// [0,1] value.
func interpolate(x float64, kind schema.Interpolation) float64 {
	switch kind {
	case schema.InterpolationConstant:
		if x > 0 {
			return 1
		}
		return 0
	case schema.InterpolationQuadratic:
		return x * x
	case schema.InterpolationLogarithmic:
		return 1 - math.Log(1+(1-x)*(math.E-1))
	default: // linear
		return x
	}
}

// aggregate combines each function's interpolated*boost contribution
// into the final additive term (the 1+x multiplier's x).
func aggregate(contributions []Contribution, kind schema.Aggregation) float64 {
	if len(contributions) == 0 {
		return 0
	}

	switch kind {
	case schema.AggregationAverage:
		var sum float64
		for _, c := range contributions {
			sum += c.Interpolated
		}
		return sum / float64(len(contributions))
	case schema.AggregationMin:
		m := contributions[0].Interpolated
		for _, c := range contributions[1:] {
			if c.Interpolated < m {
				m = c.Interpolated
			}
		}
		return m
	case schema.AggregationMax:
		m := contributions[0].Interpolated
		for _, c := range contributions[1:] {
			if c.Interpolated > m {
				m = c.Interpolated
			}
		}
		return m
	case schema.AggregationFirstMatching:
		for _, c := range contributions {
			if c.RawValue > 0 {
				return c.Interpolated
			}
		}
		return 0
	default: // sum
		var sum float64
		for _, c := range contributions {
			sum += c.Interpolated
		}
		return sum
	}
}
