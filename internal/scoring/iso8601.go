package scoring

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseISO8601Duration parses a subset of ISO-8601 durations sufficient
// for freshness boosting: P[n]Y[n]M[n]DT[n]H[n]M[n]S, e.g. "P365D",
// "P1Y6M", "PT12H". Years are treated as 365 days and months as 30 days,
// an approximation acceptable for a freshness half-life, not for calendar
// arithmetic.
func ParseISO8601Duration(s string) (time.Duration, error) {
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("scoring: duration %q must start with P", s)
	}
	rest := s[1:]

	datePart, timePart, hasTime := strings.Cut(rest, "T")
	if !hasTime {
		datePart = rest
	}

	var total time.Duration
	var err error

	total, err = accumulate(total, datePart, map[byte]time.Duration{
		'Y': 365 * 24 * time.Hour,
		'M': 30 * 24 * time.Hour,
		'D': 24 * time.Hour,
		'W': 7 * 24 * time.Hour,
	})
	if err != nil {
		return 0, err
	}

	if hasTime {
		total, err = accumulate(total, timePart, map[byte]time.Duration{
			'H': time.Hour,
			'M': time.Minute,
			'S': time.Second,
		})
		if err != nil {
			return 0, err
		}
	}

	return total, nil
}

func accumulate(total time.Duration, part string, units map[byte]time.Duration) (time.Duration, error) {
	var numBuf strings.Builder
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c >= '0' && c <= '9' || c == '.' {
			numBuf.WriteByte(c)
			continue
		}
		unit, ok := units[c]
		if !ok {
			return 0, fmt.Errorf("scoring: unrecognized duration component %q", string(c))
		}
		n, err := strconv.ParseFloat(numBuf.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("scoring: bad duration quantity %q: %w", numBuf.String(), err)
		}
		total += time.Duration(n * float64(unit))
		numBuf.Reset()
	}
	return total, nil
}
