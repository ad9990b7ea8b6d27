// Package fieldscan locates values in heterogeneous decoded JSON.
// Upstream payloads disagree about field names and casing, so lookups
// run over an ordered candidate-key list: at each object the candidates
// are tried in order before descending into nested values depth-first.
package fieldscan

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Find returns the first non-nil value reachable for any of keys.
// Candidate keys are checked in order at the current object before
// recursing into nested objects and arrays.
func Find(node any, keys []string) any {
	switch n := node.(type) {
	case map[string]any:
		for _, key := range keys {
			if v, ok := n[key]; ok {
				return v
			}
		}
		for _, v := range n {
			if found := Find(v, keys); found != nil {
				return found
			}
		}
	case []any:
		for _, item := range n {
			if found := Find(item, keys); found != nil {
				return found
			}
		}
	}
	return nil
}

// Number converts a scanned value to a float. Bare numbers and
// comma-formatted numeric strings are accepted; anything else is nil.
func Number(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return &f
		}
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		if cleaned == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return &f
		}
	}
	return nil
}

// Text converts a scanned value to a trimmed string, or "" when it is
// not a usable string.
func Text(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

var nonDigitRe = regexp.MustCompile(`[^0-9]`)

// NormalizeDate reduces any 8-digit-bearing representation to a
// YYYY-MM-DD string, or "" when the digits do not amount to a date.
func NormalizeDate(v any) string {
	if v == nil {
		return ""
	}
	var raw string
	switch x := v.(type) {
	case string:
		raw = x
	case float64:
		raw = strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		raw = x.String()
	default:
		return ""
	}
	cleaned := nonDigitRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if len(cleaned) != 8 {
		return ""
	}
	return cleaned[0:4] + "-" + cleaned[4:6] + "-" + cleaned[6:8]
}

// CompactDate turns YYYY-MM-DD into YYYYMMDD.
func CompactDate(date string) string {
	return strings.ReplaceAll(date, "-", "")
}
