package core

import (
	"testing"
)

// ----------------------------------------------------------------------------
// ParseRule Tests
// ----------------------------------------------------------------------------

func TestParseRule(t *testing.T) {
	tests := []struct {
		input        string
		wantType     string
		wantRequired bool
	}{
		{"", "", false},
		{"   ", "", false},
		{"int", "int", false},
		{"int:required", "int", true},
		{"INT:Required", "int", true},
		{" number : required ", "number", true},
		{"string:optional", "string", false},
		{"boolean:", "boolean", false},
		{"date:required", "date", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseRule(tt.input)
			if got.Type != tt.wantType {
				t.Errorf("ParseRule(%q).Type = %q, want %q", tt.input, got.Type, tt.wantType)
			}
			if got.Required != tt.wantRequired {
				t.Errorf("ParseRule(%q).Required = %v, want %v", tt.input, got.Required, tt.wantRequired)
			}
			if got.Raw != tt.input && tt.wantType != "" {
				t.Errorf("ParseRule(%q).Raw = %q, want input unchanged", tt.input, got.Raw)
			}
		})
	}
}

// ----------------------------------------------------------------------------
// Coerce Tests
// ----------------------------------------------------------------------------

func TestCoerce(t *testing.T) {
	tests := []struct {
		name      string
		rule      string
		raw       string
		wantValue any
		wantValid bool
		wantKnown bool
	}{
		// No rule and string
		{name: "no rule passes through", rule: "", raw: "abc", wantValue: "abc", wantValid: true, wantKnown: true},
		{name: "string", rule: "string", raw: "abc", wantValue: "abc", wantValid: true, wantKnown: true},
		{name: "empty string is valid", rule: "string", raw: "", wantValue: "", wantValid: true, wantKnown: true},

		// Integers
		{name: "int", rule: "int", raw: "12", wantValue: int64(12), wantValid: true, wantKnown: true},
		{name: "integer alias", rule: "integer", raw: "-7", wantValue: int64(-7), wantValid: true, wantKnown: true},
		{name: "int with spaces", rule: "int", raw: " 42 ", wantValue: int64(42), wantValid: true, wantKnown: true},
		{name: "int written as float", rule: "int", raw: "12.0", wantValue: int64(12), wantValid: true, wantKnown: true},
		{name: "int exponent", rule: "int", raw: "1e3", wantValue: int64(1000), wantValid: true, wantKnown: true},
		{name: "int empty is absent", rule: "int", raw: "", wantValue: nil, wantValid: false, wantKnown: true},
		{name: "int fraction", rule: "int", raw: "1.5", wantValue: "1.5", wantValid: false, wantKnown: true},
		{name: "int garbage", rule: "int", raw: "abc", wantValue: "abc", wantValid: false, wantKnown: true},
		{name: "int beyond int64", rule: "int", raw: "1e20", wantValue: 1e20, wantValid: true, wantKnown: true},
		{name: "int below int64", rule: "int", raw: "-1e30", wantValue: -1e30, wantValid: true, wantKnown: true},
		{name: "int large fraction", rule: "int", raw: "1e20.5", wantValue: "1e20.5", wantValid: false, wantKnown: true},

		// Floats
		{name: "float", rule: "float", raw: "1.5", wantValue: 1.5, wantValid: true, wantKnown: true},
		{name: "double alias", rule: "double", raw: "-0.25", wantValue: -0.25, wantValid: true, wantKnown: true},
		{name: "number alias integral", rule: "number", raw: "3", wantValue: 3.0, wantValid: true, wantKnown: true},
		{name: "number empty is absent", rule: "number", raw: "  ", wantValue: nil, wantValid: false, wantKnown: true},
		{name: "number infinity", rule: "number", raw: "Inf", wantValue: "Inf", wantValid: false, wantKnown: true},
		{name: "number NaN", rule: "number", raw: "NaN", wantValue: "NaN", wantValid: false, wantKnown: true},

		// Booleans
		{name: "boolean TRUE", rule: "boolean", raw: "TRUE", wantValue: true, wantValid: true, wantKnown: true},
		{name: "boolean true", rule: "boolean", raw: "true", wantValue: true, wantValid: true, wantKnown: true},
		{name: "boolean nope", rule: "boolean", raw: "nope", wantValue: false, wantValid: true, wantKnown: true},
		{name: "boolean empty", rule: "boolean", raw: "", wantValue: false, wantValid: true, wantKnown: true},
		{name: "boolean substring is false", rule: "boolean", raw: "untrue", wantValue: false, wantValid: true, wantKnown: true},

		// Unknown
		{name: "unknown type", rule: "color", raw: "red", wantValue: "red", wantValid: false, wantKnown: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, valid, known := Coerce(ParseRule(tt.rule), tt.raw)
			if value != tt.wantValue {
				t.Errorf("Coerce(%q, %q) value = %#v, want %#v", tt.rule, tt.raw, value, tt.wantValue)
			}
			if valid != tt.wantValid {
				t.Errorf("Coerce(%q, %q) valid = %v, want %v", tt.rule, tt.raw, valid, tt.wantValid)
			}
			if known != tt.wantKnown {
				t.Errorf("Coerce(%q, %q) known = %v, want %v", tt.rule, tt.raw, known, tt.wantKnown)
			}
		})
	}
}

func TestIsBuiltinType(t *testing.T) {
	for _, typ := range []string{"string", "int", "INTEGER", "float", "double", "number", "boolean"} {
		if !IsBuiltinType(typ) {
			t.Errorf("IsBuiltinType(%q) = false, want true", typ)
		}
	}
	for _, typ := range []string{"", "date", "uuid", "bool"} {
		if IsBuiltinType(typ) {
			t.Errorf("IsBuiltinType(%q) = true, want false", typ)
		}
	}
}
