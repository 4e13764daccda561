package query

import (
	"fmt"
	"math"
	"sort"

	"github.com/Aman-CERP/aisearch-core/internal/docval"
	"github.com/Aman-CERP/aisearch-core/internal/schema"
)

const defaultFacetCount = 10

// computeFacets produces value/count or range/count buckets over the
// base set docs (pre-paging), per §4.4. A spec for a non-facetable or
// unknown field is silently ignored.
func computeFacets(docs []scoredDoc, specs []FacetSpec, s *schema.Schema) map[string][]FacetBucket {
	out := make(map[string][]FacetBucket, len(specs))
	for _, spec := range specs {
		f, ok := s.Field(spec.Field)
		if !ok || !f.Facetable {
			continue
		}
		count := spec.Count
		if count <= 0 {
			count = defaultFacetCount
		}

		if spec.HasInterval {
			out[spec.Field] = intervalBuckets(docs, spec.Field, spec.Interval, count)
		} else {
			out[spec.Field] = valueBuckets(docs, spec.Field, count)
		}
	}
	return out
}

func valueBuckets(docs []scoredDoc, field string, count int) []FacetBucket {
	counts := make(map[string]int)
	for _, d := range docs {
		v, ok := d.raw[field]
		if !ok || v.IsNull() {
			continue
		}
		for _, s := range valueStrings(v) {
			counts[s]++
		}
	}

	buckets := make([]FacetBucket, 0, len(counts))
	for value, n := range counts {
		buckets = append(buckets, FacetBucket{Value: value, Count: n})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].Count != buckets[j].Count {
			return buckets[i].Count > buckets[j].Count
		}
		return buckets[i].Value < buckets[j].Value
	})
	if len(buckets) > count {
		buckets = buckets[:count]
	}
	return buckets
}

func valueStrings(v docval.Value) []string {
	switch v.Kind {
	case docval.KindString:
		return []string{v.Str}
	case docval.KindArray:
		strs, err := v.AsStringArray()
		if err != nil {
			return nil
		}
		return strs
	case docval.KindBool:
		return []string{fmt.Sprintf("%t", v.Bool)}
	default:
		return nil
	}
}

// intervalBuckets buckets a numeric field into half-open
// [start, start+interval) ranges, starting at floor(min/interval)*interval,
// emitting only non-empty buckets up to count.
func intervalBuckets(docs []scoredDoc, field string, interval float64, count int) []FacetBucket {
	if interval <= 0 {
		return nil
	}

	var values []float64
	for _, d := range docs {
		v, ok := d.raw[field]
		if !ok || v.IsNull() {
			continue
		}
		switch v.Kind {
		case docval.KindFloat:
			values = append(values, v.Float)
		case docval.KindInt:
			values = append(values, float64(v.Int))
		}
	}
	if len(values) == 0 {
		return nil
	}

	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	base := math.Floor(min/interval) * interval

	counts := make(map[int]int)
	for _, v := range values {
		idx := int(math.Floor((v - base) / interval))
		counts[idx]++
	}

	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	buckets := make([]FacetBucket, 0, len(indices))
	for _, idx := range indices {
		start := base + float64(idx)*interval
		buckets = append(buckets, FacetBucket{
			RangeStart: start,
			RangeEnd:   start + interval,
			IsRange:    true,
			Count:      counts[idx],
		})
		if len(buckets) >= count {
			break
		}
	}
	return buckets
}
