package scoring

import (
	"fmt"
	"strings"
)

// Parameters holds scoringParameters name-value pairs, looked up by a
// scoring function's reference-point or tags parameter name.
type Parameters map[string]string

// ParseParameters parses scoringParameters entries of form "name-value".
// The first "-" is the separator, per §4.7, so a geo literal with a
// negative coordinate ("home--122.4,37.8") still parses to name "home".
func ParseParameters(raw []string) (Parameters, error) {
	params := make(Parameters, len(raw))
	for _, entry := range raw {
		idx := strings.Index(entry, "-")
		if idx <= 0 {
			return nil, fmt.Errorf("scoring parameter %q: missing name-value separator", entry)
		}
		name := entry[:idx]
		value := entry[idx+1:]
		params[name] = value
	}
	return params, nil
}
