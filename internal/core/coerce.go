package core

// coerce.go maps raw cell strings to typed values according to a column Rule.
//
// Spreadsheet cells arrive as formatted strings. The built-in types are:
//   - string: passes through, always valid
//   - int, integer: int64 (float64 beyond int64), must be integral and finite
//   - float, double, number: float64, must be finite
//   - boolean: true only for "true" (any case), never invalid
//
// Empty numeric cells coerce to nil with valid=false. Whether that is an
// error depends on the required marker and is decided by the builder.

import (
	"math"
	"strconv"
	"strings"
)

// Coerce converts raw according to rule.
//
// known is false when rule names a type that is not built in; value is then
// raw unchanged. For known types, valid reports whether the value satisfies
// the type. A failed conversion returns raw unchanged with valid=false, except
// for empty numeric cells, which return nil.
func Coerce(rule Rule, raw string) (value any, valid bool, known bool) {
	switch rule.Type {
	case "":
		return raw, true, true
	case "string":
		return raw, true, true
	case "int", "integer":
		v, ok := parseInteger(raw)
		return v, ok, true
	case "float", "double", "number":
		v, ok := parseNumber(raw)
		return v, ok, true
	case "boolean":
		return strings.EqualFold(strings.TrimSpace(raw), "true"), true, true
	default:
		return raw, false, false
	}
}

// IsBuiltinType reports whether typ is handled by [Coerce].
func IsBuiltinType(typ string) bool {
	switch strings.ToLower(typ) {
	case "string", "int", "integer", "float", "double", "number", "boolean":
		return true
	}
	return false
}

// parseInteger parses s as an integral number.
// Accepts anything parseNumber accepts as long as it has no fractional part,
// so "12", "12.0" and "1e3" are all integers. Whole numbers outside the
// int64 range are returned as float64.
func parseInteger(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}

	f, ok := parseNumber(s)
	if !ok {
		return s, false
	}
	n := f.(float64)
	if n != math.Trunc(n) {
		return s, false
	}
	if n >= math.MaxInt64 || n < math.MinInt64 {
		return n, true
	}
	return int64(n), true
}

// parseNumber parses s as a finite float.
func parseNumber(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s, false
	}
	return f, true
}
