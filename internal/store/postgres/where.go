package postgres

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/featuresync/internal/core"
)

// WhereBuilder accumulates AND-ed conditions with positional arguments.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder returns an empty builder whose first placeholder is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Add appends "column = $n". Empty values are skipped.
func (wb *WhereBuilder) Add(column, value string) {
	if value == "" {
		return
	}
	wb.conditions = append(wb.conditions, fmt.Sprintf("%s = $%d", column, wb.argIndex))
	wb.args = append(wb.args, value)
	wb.argIndex++
}

// AddFilters appends one condition per filter. Filters with an unknown
// operator contribute nothing.
func (wb *WhereBuilder) AddFilters(filters core.FilterSet) {
	for _, f := range filters.Filters {
		condition, args, next := buildSingleFilter(f, wb.argIndex)
		if condition == "" {
			continue
		}
		wb.conditions = append(wb.conditions, condition)
		wb.args = append(wb.args, args...)
		wb.argIndex = next
	}
}

// NextArgIndex returns the number of the next placeholder.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

// Build returns the clause with a leading " WHERE", or "" and nil args when
// nothing was added.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// buildSingleFilter generates SQL for a single filter.
func buildSingleFilter(f core.ColumnFilter, argIdx int) (string, []any, int) {
	col := quoteIdentifier(f.DBColumn)

	// Text operators compare the column's text form so they work on any type.
	textCol := col
	if f.Type != core.FieldText {
		textCol = col + "::text"
	}

	switch f.Operator {
	case core.OpContains:
		return fmt.Sprintf("%s ILIKE $%d", textCol, argIdx),
			[]any{"%" + f.Value + "%"}, argIdx + 1

	case core.OpEquals:
		return fmt.Sprintf("%s = $%d", col, argIdx),
			[]any{filterArg(f.Value, f.Type)}, argIdx + 1

	case core.OpStartsWith:
		return fmt.Sprintf("%s ILIKE $%d", textCol, argIdx),
			[]any{f.Value + "%"}, argIdx + 1

	case core.OpEndsWith:
		return fmt.Sprintf("%s ILIKE $%d", textCol, argIdx),
			[]any{"%" + f.Value}, argIdx + 1

	case core.OpGreaterEq:
		return fmt.Sprintf("%s >= $%d", col, argIdx),
			[]any{filterArg(f.Value, f.Type)}, argIdx + 1

	case core.OpLessEq:
		return fmt.Sprintf("%s <= $%d", col, argIdx),
			[]any{filterArg(f.Value, f.Type)}, argIdx + 1

	case core.OpGreater:
		return fmt.Sprintf("%s > $%d", col, argIdx),
			[]any{filterArg(f.Value, f.Type)}, argIdx + 1

	case core.OpLess:
		return fmt.Sprintf("%s < $%d", col, argIdx),
			[]any{filterArg(f.Value, f.Type)}, argIdx + 1

	case core.OpIn:
		values := strings.Split(f.Value, ",")
		placeholders := make([]string, 0, len(values))
		filterArgs := make([]any, 0, len(values))
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			placeholders = append(placeholders, fmt.Sprintf("$%d", argIdx+len(placeholders)))
			filterArgs = append(filterArgs, filterArg(v, f.Type))
		}
		if len(placeholders) == 0 {
			return "", nil, argIdx
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")),
			filterArgs, argIdx + len(placeholders)

	default:
		return "", nil, argIdx
	}
}

// filterArg converts a filter value to the column's Go type so comparisons
// are numeric or chronological rather than lexical.
func filterArg(raw string, ft core.FieldType) any {
	switch ft {
	case core.FieldNumeric:
		if n, ok := core.ParseNumber(raw); ok {
			return n
		}
	case core.FieldDate:
		if t, ok := core.ParseDate(raw); ok {
			return t
		}
	}
	return raw
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
