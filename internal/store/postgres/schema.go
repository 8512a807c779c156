package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/JonMunkholm/featuresync/internal/core"
)

// columnType maps a field type to its Postgres column type.
func columnType(ft core.FieldType) string {
	switch ft {
	case core.FieldNumeric:
		return "NUMERIC"
	case core.FieldDate:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// datasetTableDDL returns CREATE TABLE IF NOT EXISTS for def. The identifier
// column is the primary key; geometry columns are DOUBLE PRECISION.
func datasetTableDDL(def core.DatasetDefinition) string {
	cols := make([]string, 0, len(def.FieldSpecs)+2)
	for _, spec := range def.FieldSpecs {
		col := quoteIdentifier(def.Column(spec.Name)) + " " + columnType(spec.Type)
		if strings.EqualFold(spec.Name, def.IdentifierField) {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	if def.Geometry.Enabled() {
		cols = append(cols,
			quoteIdentifier(def.Geometry.XColumn)+" DOUBLE PRECISION",
			quoteIdentifier(def.Geometry.YColumn)+" DOUBLE PRECISION",
		)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quoteIdentifier(def.Table), strings.Join(cols, ",\n\t"))
}

// EnsureDatasetTables creates a table for every definition that lacks one.
// Existing tables are left untouched.
func (s *Store) EnsureDatasetTables(ctx context.Context, defs []core.DatasetDefinition) error {
	for _, def := range defs {
		if _, err := s.db.Exec(ctx, datasetTableDDL(def)); err != nil {
			return fmt.Errorf("create table %s: %w", def.Table, err)
		}
	}
	return nil
}
