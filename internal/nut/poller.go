// Package nut is the Network UPS Tools power backend. A UPS is presented as
// an AC source ("Online" unless the status carries OB) plus a battery whose
// percentage is battery.charge.
package nut

import "strings"

// Variable holds a single NUT variable name/value pair.
// Value is always normalised to a string; callers parse as needed.
type Variable struct {
	Name  string
	Value string
}

// Poller abstracts the NUT data source so tests can inject a fake.
type Poller interface {
	Poll() ([]Variable, error)
	Close() error
}

// NUT variable names read by the backend.
const (
	VarStatus = "ups.status"
	VarCharge = "battery.charge"
)

// VarsToMap converts a []Variable slice into a name→value map.
func VarsToMap(vars []Variable) map[string]string {
	m := make(map[string]string, len(vars))
	for _, v := range vars {
		m[v.Name] = v.Value
	}
	return m
}

// statusTokens maps NUT status tokens to human-readable labels.
var statusTokens = map[string]string{
	"OL":      "Online",
	"OB":      "On Battery",
	"LB":      "Low Battery",
	"HB":      "High Battery",
	"RB":      "Replace Battery",
	"CHRG":    "Charging",
	"DISCHRG": "Discharging",
	"BYPASS":  "Bypass",
	"CAL":     "Calibrating",
	"OFF":     "Offline",
	"OVER":    "Overloaded",
	"TRIM":    "Trimming",
	"BOOST":   "Boosting",
	"FSD":     "Forced Shutdown",
}

// DescribeStatus expands a status string such as "OB DISCHRG" into
// "On Battery, Discharging". Unknown tokens are passed through.
func DescribeStatus(status string) string {
	tokens := strings.Fields(status)
	decoded := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if name, ok := statusTokens[t]; ok {
			decoded = append(decoded, name)
		} else {
			decoded = append(decoded, t)
		}
	}
	return strings.Join(decoded, ", ")
}

// hasStatusToken reports whether the space-separated status string contains token.
func hasStatusToken(status, token string) bool {
	for _, t := range strings.Fields(status) {
		if t == token {
			return true
		}
	}
	return false
}
