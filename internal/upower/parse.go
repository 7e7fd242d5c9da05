// Package upower provides the UPower power backends: one driving the gdbus
// and upower command-line tools, one talking to the system bus directly.
package upower

import (
	"strings"

	"github.com/sweeney/power-notify/internal/power"
)

const propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"

// ParseMonitorLine parses one line of `gdbus monitor` output such as
//
//	/org/freedesktop/UPower/devices/line_power_AC: org.freedesktop.DBus.Properties.PropertiesChanged ('org.freedesktop.UPower.Device', {'Online': <true>}, @as [])
//
// Lines that are not property changes are reported with ok=false.
func ParseMonitorLine(line string) (ev power.Event, ok bool) {
	path, rest, found := strings.Cut(strings.TrimSpace(line), ": ")
	if !found || !strings.HasPrefix(path, "/") {
		return power.Event{}, false
	}
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, propertiesChanged) {
		return power.Event{}, false
	}

	dict, found := outerDict(rest[len(propertiesChanged):])
	if !found {
		return power.Event{}, false
	}

	props := make(map[string]string)
	for _, entry := range splitTopLevel(dict) {
		key, val, found := strings.Cut(entry, ":")
		if !found {
			continue
		}
		key = unquote(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		props[key] = normaliseValue(strings.TrimSpace(val))
	}
	return power.Event{Device: path, Props: props}, true
}

// outerDict returns the contents of the first balanced {...} in s.
func outerDict(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inQuote := false
	for i := start; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start+1 : i], true
			}
		}
	}
	return "", false
}

// splitTopLevel splits on commas that are not nested in <>, [], (), {} or quotes.
func splitTopLevel(s string) []string {
	var parts []string
	depth := 0
	inQuote := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '<' || c == '[' || c == '(' || c == '{':
			depth++
		case c == '>' || c == ']' || c == ')' || c == '}':
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[last:i]))
			last = i + 1
		}
	}
	if tail := strings.TrimSpace(s[last:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

// normaliseValue turns GVariant text like <true>, <uint64 17>, <'x'> or
// <84.0> into a plain string.
func normaliseValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "<") && strings.HasSuffix(v, ">") {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	if typ, rest, found := strings.Cut(v, " "); found && isTypeAnnotation(typ) {
		v = strings.TrimSpace(rest)
	}
	return unquote(v)
}

var gvariantTypes = map[string]bool{
	"byte": true, "int16": true, "uint16": true, "int32": true, "uint32": true,
	"int64": true, "uint64": true, "double": true, "boolean": true, "handle": true,
	"objectpath": true, "signature": true,
}

func isTypeAnnotation(s string) bool {
	return gvariantTypes[s] || strings.HasPrefix(s, "@")
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
