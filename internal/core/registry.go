package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// TypeFunc coerces a raw cell for an application-defined type tag.
// Empty cells should return (nil, false) so optional columns stay quiet.
type TypeFunc func(raw string) (value any, valid bool)

// TypeRegistry holds application-defined type tags. A registry is safe for
// concurrent use; builders only read from it.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]TypeFunc
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]TypeFunc)}
}

// DefaultTypes returns a registry with the "date" and "uuid" tags.
func DefaultTypes() *TypeRegistry {
	r := NewTypeRegistry()
	r.Register("date", CoerceDate)
	r.Register("uuid", CoerceUUID)
	return r
}

// Register adds a type tag. Tags are matched case-insensitively.
// Panics if the tag is built in or already registered.
func (r *TypeRegistry) Register(name string, fn TypeFunc) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if IsBuiltinType(key) {
		panic(fmt.Sprintf("type is built in: %s", key))
	}
	if _, exists := r.types[key]; exists {
		panic(fmt.Sprintf("type already registered: %s", key))
	}
	r.types[key] = fn
}

// Lookup returns the coercion for a tag.
func (r *TypeRegistry) Lookup(name string) (TypeFunc, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.types[strings.ToLower(name)]
	return fn, ok
}

// Names returns all registered tags, sorted.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are moved to
// the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseDate parses the date formats commonly typed into spreadsheets.
// The result is invalid for empty or unrecognised input.
func ParseDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return pgtype.Date{Time: t, Valid: true}
		}
	}

	return pgtype.Date{Valid: false}
}

// CoerceDate is the "date" type: an ISO 8601 date string (YYYY-MM-DD).
func CoerceDate(raw string) (any, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	d := ParseDate(raw)
	if !d.Valid {
		return raw, false
	}
	return d.Time.Format("2006-01-02"), true
}

// CoerceUUID is the "uuid" type: a canonical lowercase UUID string.
func CoerceUUID(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return raw, false
	}
	return id.String(), true
}
