package memory

import (
	"strings"

	"github.com/JonMunkholm/featuresync/internal/core"
)

func matchAll(r core.Record, def core.DatasetDefinition, fs core.FilterSet) bool {
	for _, f := range fs.Filters {
		if !matchFilter(r, def, f) {
			return false
		}
	}
	return true
}

// matchFilter evaluates one filter the way the SQL store would: text
// operators are case-insensitive, comparisons use the field's type.
func matchFilter(r core.Record, def core.DatasetDefinition, f core.ColumnFilter) bool {
	field := f.Field
	if field == "" {
		field = fieldForColumn(def, f.DBColumn)
	}
	v := r.Value(field)
	ft := def.TypeOf(field)

	text := strings.ToLower(displayText(v))
	needle := strings.ToLower(f.Value)

	switch f.Operator {
	case core.OpContains:
		return !v.IsNull() && strings.Contains(text, needle)
	case core.OpStartsWith:
		return !v.IsNull() && strings.HasPrefix(text, needle)
	case core.OpEndsWith:
		return !v.IsNull() && strings.HasSuffix(text, needle)
	case core.OpEquals:
		return !v.IsNull() && v.Equal(core.ParseCell(f.Value, ft))
	case core.OpIn:
		if v.IsNull() {
			return false
		}
		for _, part := range strings.Split(f.Value, ",") {
			part = strings.TrimSpace(part)
			if part != "" && v.Equal(core.ParseCell(part, ft)) {
				return true
			}
		}
		return false
	case core.OpGreater, core.OpGreaterEq, core.OpLess, core.OpLessEq:
		if v.IsNull() {
			return false
		}
		c, ok := compare(v, core.ParseCell(f.Value, ft))
		if !ok {
			return false
		}
		switch f.Operator {
		case core.OpGreater:
			return c > 0
		case core.OpGreaterEq:
			return c >= 0
		case core.OpLess:
			return c < 0
		default:
			return c <= 0
		}
	}
	return false
}

func fieldForColumn(def core.DatasetDefinition, column string) string {
	for _, spec := range def.FieldSpecs {
		if strings.EqualFold(def.Column(spec.Name), column) {
			return spec.Name
		}
	}
	return column
}

// displayText is the text a user would search: dates as YYYY-MM-DD.
func displayText(v core.Value) string {
	if d, ok := v.AsDate(); ok {
		return d.Format("2006-01-02")
	}
	return v.String()
}

// compare orders two values of the same kind. Mixed kinds fall back to
// string order; ok is false when either side is null.
func compare(a, b core.Value) (int, bool) {
	if a.IsNull() || b.IsNull() {
		return 0, false
	}
	if x, ok := a.AsNumber(); ok {
		if y, ok := b.AsNumber(); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	}
	if x, ok := a.AsDate(); ok {
		if y, ok := b.AsDate(); ok {
			return x.Compare(y), true
		}
	}
	return strings.Compare(a.String(), b.String()), true
}

// lessValue orders identifiers: nulls first, then by compare.
func lessValue(a, b core.Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && !b.IsNull()
	}
	c, _ := compare(a, b)
	return c < 0
}
