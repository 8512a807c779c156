package web

// Shared request parsing helpers used across handlers.

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/featuresync/internal/core"
)

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseBool reads a form or query flag. Accepts the strconv spellings plus
// "on" for HTML checkboxes.
func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "on") {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// parseFilters extracts field filters from URL query parameters of the form
// filter[field]=op:value. Unknown fields, unknown operators, operators that
// do not fit the field type, and blank values are ignored.
func parseFilters(r *http.Request, def core.DatasetDefinition) core.FilterSet {
	var filters []core.ColumnFilter

	specMap := make(map[string]core.FieldSpec, len(def.FieldSpecs))
	for _, spec := range def.FieldSpecs {
		specMap[strings.ToLower(spec.Name)] = spec
	}

	for key, values := range r.URL.Query() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}

		name := key[7 : len(key)-1]
		spec, ok := specMap[strings.ToLower(name)]
		if !ok {
			continue
		}

		for _, val := range values {
			opStr, filterVal, found := strings.Cut(val, ":")
			if !found || strings.TrimSpace(filterVal) == "" {
				continue
			}

			op, ok := core.ParseFilterOperator(opStr)
			if !ok || !isValidOperator(op, spec.Type) {
				continue
			}

			filters = append(filters, core.ColumnFilter{
				Field:    spec.Name,
				DBColumn: def.Column(spec.Name),
				Operator: op,
				Value:    filterVal,
				Type:     spec.Type,
			})
		}
	}

	return core.FilterSet{Filters: filters}
}

// isValidOperator checks if an operator is valid for a given field type.
func isValidOperator(op core.FilterOperator, ft core.FieldType) bool {
	switch ft {
	case core.FieldText:
		switch op {
		case core.OpContains, core.OpEquals, core.OpStartsWith, core.OpEndsWith, core.OpIn:
			return true
		}
	case core.FieldNumeric:
		switch op {
		case core.OpEquals, core.OpGreaterEq, core.OpLessEq, core.OpGreater, core.OpLess, core.OpIn:
			return true
		}
	case core.FieldDate:
		switch op {
		case core.OpEquals, core.OpGreaterEq, core.OpLessEq, core.OpGreater, core.OpLess:
			return true
		}
	}
	return false
}

// csvDownload delays the attachment headers until the first byte of CSV is
// written, so a failed export can still be answered with an error body.
type csvDownload struct {
	w        http.ResponseWriter
	filename string
	started  bool
}

func (d *csvDownload) Write(p []byte) (int, error) {
	if !d.started {
		d.started = true
		d.w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		d.w.Header().Set("Content-Disposition", `attachment; filename="`+d.filename+`"`)
		d.w.WriteHeader(http.StatusOK)
	}
	return d.w.Write(p)
}
