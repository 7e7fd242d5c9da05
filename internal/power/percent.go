package power

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TruncatePercent converts a raw charge reading to an integer percentage by
// truncation. Values outside [0,100] or NaN are rejected.
func TruncatePercent(v float64) (int, error) {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return 0, fmt.Errorf("percentage %v out of range", v)
	}
	return int(v), nil
}

// ParsePercent parses strings such as "45", "45.9" or "45.9%".
func ParsePercent(s string) (int, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, fmt.Errorf("empty percentage")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing percentage %q: %w", s, err)
	}
	return TruncatePercent(v)
}
