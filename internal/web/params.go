package web

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

// paramError reports a malformed query parameter.
type paramError struct {
	Param  string
	Value  string
	Reason string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("query parameter %s=%q: %s", e.Param, e.Value, e.Reason)
}

func badParam(param, value, reason string) error {
	return &core.UserError{
		Technical: &paramError{Param: param, Value: value, Reason: reason},
		User: core.UserMessage{
			Message: fmt.Sprintf("Invalid %s parameter", param),
			Action:  "The value " + reason,
			Code:    "REQ001",
		},
	}
}

// tableParams are the query parameters shared by the table and batch routes.
type tableParams struct {
	Layout *core.Layout // nil when no layout parameter is given
	Start  string
	End    string
	Raw    bool
	Hooks  core.Hooks
}

// parseTableParams reads layout, range and hook parameters. Layout
// parameters override fields of base; the combined layout is returned only
// if at least one was given.
func parseTableParams(q url.Values, base core.Layout) (tableParams, error) {
	var p tableParams

	layout := base
	changed := false
	for name, dst := range map[string]*int{
		"title_line":      &layout.TitleLine,
		"validation_line": &layout.ValidationLine,
		"first_line":      &layout.FirstDataLine,
	} {
		n, ok, err := optionalInt(q, name)
		if err != nil {
			return p, err
		}
		if ok {
			*dst = n
			changed = true
		}
	}

	sorted, ok, err := optionalBool(q, "sort")
	if err != nil {
		return p, err
	}
	if ok {
		layout.Sort = sorted
		changed = true
	}

	vertical, ok, err := optionalBool(q, "vertical")
	if err != nil {
		return p, err
	}
	if ok {
		layout.Orientation = core.RowMajor
		if vertical {
			layout.Orientation = core.ColumnMajor
		}
		changed = true
	}
	if changed {
		p.Layout = &layout
	}

	if p.Start, err = cellParam(q, "start"); err != nil {
		return p, err
	}
	if p.End, err = cellParam(q, "end"); err != nil {
		return p, err
	}

	if p.Raw, _, err = optionalBool(q, "raw"); err != nil {
		return p, err
	}

	omitEmpty, _, err := optionalBool(q, "omit_empty")
	if err != nil {
		return p, err
	}
	if omitEmpty {
		p.Hooks.Formatter = omitEmptyFormatter
	}

	skipBlank, _, err := optionalBool(q, "skip_blank")
	if err != nil {
		return p, err
	}
	if skipBlank {
		p.Hooks.Filter = skipBlankRows
	}
	return p, nil
}

func optionalInt(q url.Values, name string) (int, bool, error) {
	v := q.Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, badParam(name, v, "must be an integer")
	}
	return n, true, nil
}

func optionalBool(q url.Values, name string) (bool, bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, badParam(name, v, "must be true or false")
	}
	return b, true, nil
}

func cellParam(q url.Values, name string) (string, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return "", nil
	}
	ref, err := core.ParseCell(v)
	if err != nil {
		return "", badParam(name, v, "must be an A1 cell reference")
	}
	return ref.String(), nil
}

// splitNames parses a comma-separated list. An absent parameter yields nil,
// which asks for every table.
func splitNames(q url.Values, param string) []string {
	raw, ok := q[param]
	if !ok {
		return nil
	}
	names := []string{}
	for _, v := range raw {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	return names
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, badParam(name, v, "must be a positive integer")
	}
	return n, nil
}
