package core

import (
	"testing"
	"time"
)

func TestTypeRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewTypeRegistry()
	reg.Register("Color", func(raw string) (any, bool) { return raw, raw == "red" })

	fn, ok := reg.Lookup("color")
	if !ok {
		t.Fatal("Lookup(color) not found")
	}
	if v, valid := fn("red"); v != "red" || !valid {
		t.Errorf("color(red) = (%v, %v), want (red, true)", v, valid)
	}

	if _, ok := reg.Lookup("size"); ok {
		t.Error("Lookup(size) found unregistered type")
	}

	var nilReg *TypeRegistry
	if _, ok := nilReg.Lookup("color"); ok {
		t.Error("nil registry Lookup should report not found")
	}
}

func TestTypeRegistry_RegisterPanics(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*TypeRegistry)
		tag   string
	}{
		{name: "built in", setup: func(*TypeRegistry) {}, tag: "int"},
		{name: "duplicate", setup: func(r *TypeRegistry) { r.Register("color", CoerceUUID) }, tag: "COLOR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewTypeRegistry()
			tt.setup(reg)

			defer func() {
				if recover() == nil {
					t.Errorf("Register(%q) did not panic", tt.tag)
				}
			}()
			reg.Register(tt.tag, CoerceDate)
		})
	}
}

func TestDefaultTypes(t *testing.T) {
	reg := DefaultTypes()
	names := reg.Names()
	if len(names) != 2 || names[0] != "date" || names[1] != "uuid" {
		t.Errorf("Names() = %v, want [date uuid]", names)
	}
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		input     string
		wantValue any
		wantValid bool
	}{
		{"2024-01-15", "2024-01-15", true},
		{"1/15/2024", "2024-01-15", true},
		{"01/15/2024", "2024-01-15", true},
		{"Jan 15, 2024", "2024-01-15", true},
		{"20240115", "2024-01-15", true},
		{"", nil, false},
		{"not a date", "not a date", false},
		{"2024-13-45", "2024-13-45", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			value, valid := CoerceDate(tt.input)
			if value != tt.wantValue || valid != tt.wantValid {
				t.Errorf("CoerceDate(%q) = (%v, %v), want (%v, %v)", tt.input, value, valid, tt.wantValue, tt.wantValid)
			}
		})
	}
}

func TestParseDate_TwoDigitYear(t *testing.T) {
	d := ParseDate("1/15/24")
	if !d.Valid {
		t.Fatal("ParseDate(1/15/24) invalid")
	}
	if d.Time.Year() != 2024 {
		t.Errorf("year = %d, want 2024", d.Time.Year())
	}

	far := (time.Now().Year() + TwoDigitYearPivot + 1) % 100
	d = ParseDate(time.Date(2000+far, 1, 2, 0, 0, 0, 0, time.UTC).Format("1/2/06"))
	if !d.Valid || d.Time.Year() >= 2000+far {
		t.Errorf("far two-digit year = %v, want moved to previous century", d.Time)
	}
}

func TestCoerceUUID(t *testing.T) {
	value, valid := CoerceUUID(" 6BA7B810-9DAD-11D1-80B4-00C04FD430C8 ")
	if !valid || value != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("CoerceUUID(upper) = (%v, %v), want canonical lowercase", value, valid)
	}

	if value, valid := CoerceUUID("nope"); valid || value != "nope" {
		t.Errorf("CoerceUUID(nope) = (%v, %v), want (nope, false)", value, valid)
	}
	if value, valid := CoerceUUID(""); valid || value != nil {
		t.Errorf("CoerceUUID(empty) = (%v, %v), want (nil, false)", value, valid)
	}
}
