// Package postgres implements core.RecordStore and core.RunRecorder on
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/featuresync/internal/core"
	"github.com/JonMunkholm/featuresync/internal/logging"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store reads and edits dataset tables. Each dataset maps to the table named
// by its definition, with one column per FieldSpec.
type Store struct {
	db DB
}

// New returns a Store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// selectColumn is one projected column and the field it populates.
type selectColumn struct {
	field string
	typ   core.FieldType
}

// buildSelect returns the SELECT for q and the fields in column order.
// Geometry columns, when requested, are the last two columns.
func buildSelect(def core.DatasetDefinition, q core.Query) (string, []any, []selectColumn) {
	var cols []selectColumn
	if q.AllFields() {
		for _, spec := range def.FieldSpecs {
			cols = append(cols, selectColumn{field: spec.Name, typ: spec.Type})
		}
	} else {
		seen := map[string]bool{}
		add := func(name string) {
			spec, ok := def.Spec(name)
			if !ok || seen[spec.Name] {
				return
			}
			seen[spec.Name] = true
			cols = append(cols, selectColumn{field: spec.Name, typ: spec.Type})
		}
		add(def.IdentifierField)
		for _, f := range q.OutFields {
			add(f)
		}
	}

	exprs := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		exprs = append(exprs, quoteIdentifier(def.Column(c.field)))
	}
	if q.ReturnGeometry && def.Geometry.Enabled() {
		exprs = append(exprs, quoteIdentifier(def.Geometry.XColumn), quoteIdentifier(def.Geometry.YColumn))
	}

	wb := NewWhereBuilder()
	wb.AddFilters(resolveFilters(def, q.Filters))
	where, args := wb.Build()

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(exprs, ", "),
		quoteIdentifier(def.Table),
		where,
		quoteIdentifier(def.Column(def.IdentifierField)),
	)
	return sql, args, cols
}

// resolveFilters fills in the column and type of filters that name only a
// field.
func resolveFilters(def core.DatasetDefinition, fs core.FilterSet) core.FilterSet {
	out := core.FilterSet{Filters: make([]core.ColumnFilter, len(fs.Filters))}
	for i, f := range fs.Filters {
		if f.DBColumn == "" {
			f.DBColumn = def.Column(f.Field)
			f.Type = def.TypeOf(f.Field)
		}
		out.Filters[i] = f
	}
	return out
}

// Query implements core.RecordStore.
func (s *Store) Query(ctx context.Context, def core.DatasetDefinition, q core.Query) ([]core.Record, error) {
	sql, args, cols := buildSelect(def, q)
	withGeometry := q.ReturnGeometry && def.Geometry.Enabled()

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Table, err)
	}
	defer rows.Close()

	records := make([]core.Record, 0)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", def.Table, err)
		}

		r := core.NewRecord(len(cols))
		for i, c := range cols {
			r.Set(c.field, toValue(vals[i], c.typ))
		}
		if withGeometry {
			x, xok := toFloat(vals[len(cols)])
			y, yok := toFloat(vals[len(cols)+1])
			if xok && yok {
				r.Position = &core.Position{X: x, Y: y}
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", def.Table, err)
	}

	return records, nil
}

// ApplyEdits implements core.RecordStore. All items run in one transaction
// with a savepoint per item, so a rejected item is rolled back alone and the
// rest still commit.
func (s *Store) ApplyEdits(ctx context.Context, def core.DatasetDefinition, batch core.EditBatch) (*core.EditResult, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	idCol := quoteIdentifier(def.Column(def.IdentifierField))
	idType := def.TypeOf(def.IdentifierField)
	table := quoteIdentifier(def.Table)

	res := &core.EditResult{
		UpdateResults: make([]core.ApplyOutcome, 0, len(batch.Updates)),
		DeleteResults: make([]core.ApplyOutcome, 0, len(batch.Deletes)),
	}

	for i, u := range batch.Updates {
		sql, args := buildUpdate(def, table, idCol, u)
		args = append(args, bindValue(u.ID, idType))

		itemErr, err := execItem(ctx, tx, sql, args)
		if err != nil {
			return nil, err
		}
		res.UpdateResults = append(res.UpdateResults, outcome(i, u.ID, itemErr))
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, idCol)
	for i, id := range batch.Deletes {
		itemErr, err := execItem(ctx, tx, deleteSQL, []any{bindValue(id, idType)})
		if err != nil {
			return nil, err
		}
		res.DeleteResults = append(res.DeleteResults, outcome(i, id, itemErr))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit edits: %w", err)
	}

	logging.WithFields(ctx, "dataset", def.Key).Debug("edits committed",
		"updates", len(batch.Updates),
		"deletes", len(batch.Deletes),
	)
	return res, nil
}

// buildUpdate returns "UPDATE t SET a = $1, b = $2 WHERE id = $3" for u,
// with args for every placeholder except the final identifier.
func buildUpdate(def core.DatasetDefinition, table, idCol string, u core.FieldUpdate) (string, []any) {
	sets := make([]string, len(u.Changes))
	args := make([]any, 0, len(u.Changes)+1)
	for i, c := range u.Changes {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(def.Column(c.Field)), i+1)
		args = append(args, bindValue(c.New, def.TypeOf(c.Field)))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		table, strings.Join(sets, ", "), idCol, len(u.Changes)+1)
	return sql, args
}

// execItem runs one statement inside a savepoint. txErr means the
// transaction itself is unusable.
func execItem(ctx context.Context, tx pgx.Tx, sql string, args []any) (itemErr, txErr error) {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("savepoint: %w", err)
	}

	tag, err := sp.Exec(ctx, sql, args...)
	if err == nil && tag.RowsAffected() == 0 {
		err = core.ErrRecordNotFound
	}
	if err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return nil, fmt.Errorf("rollback savepoint: %w", rbErr)
		}
		return err, nil
	}

	if err := sp.Commit(ctx); err != nil {
		return nil, fmt.Errorf("release savepoint: %w", err)
	}
	return nil, nil
}

func outcome(i int, id core.Value, err error) core.ApplyOutcome {
	return core.ApplyOutcome{Index: i, ID: id, Success: err == nil, Err: err}
}

// bindValue converts v to the Go type pgx encodes for a column of type ft.
// Strings holding numbers or dates are converted for numeric and date
// columns.
func bindValue(v core.Value, ft core.FieldType) any {
	switch v.Kind() {
	case core.KindNull:
		return nil
	case core.KindNumber:
		n, _ := v.AsNumber()
		if ft == core.FieldDate {
			return time.UnixMilli(int64(n)).UTC()
		}
		return n
	case core.KindDate:
		t, _ := v.AsDate()
		return t
	}

	s, _ := v.AsString()
	switch ft {
	case core.FieldNumeric:
		if s == "" {
			return nil
		}
		if n, ok := core.ParseNumber(s); ok {
			return n
		}
	case core.FieldDate:
		if s == "" {
			return nil
		}
		if t, ok := core.ParseDate(s); ok {
			return t
		}
	}
	return s
}

// toValue converts a value decoded by pgx into a core.Value.
func toValue(v any, ft core.FieldType) core.Value {
	switch x := v.(type) {
	case nil:
		return core.NullValue()
	case string:
		if ft == core.FieldText {
			return core.StringValue(x)
		}
		return core.ParseCell(x, ft)
	case []byte:
		return core.StringValue(string(x))
	case time.Time:
		return core.DateValue(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return core.NullValue()
		}
		return core.NumberValue(f.Float64)
	case pgtype.Text:
		if !x.Valid {
			return core.NullValue()
		}
		return core.StringValue(x.String)
	case pgtype.UUID:
		if !x.Valid {
			return core.NullValue()
		}
		return core.StringValue(core.PgUUIDToString(x))
	case [16]byte:
		return core.StringValue(core.PgUUIDToString(pgtype.UUID{Bytes: x, Valid: true}))
	case bool:
		if x {
			return core.StringValue("true")
		}
		return core.StringValue("false")
	}

	if n, ok := toFloat(v); ok {
		return core.NumberValue(n)
	}
	return core.StringValue(fmt.Sprint(v))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int:
		return float64(x), true
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return 0, false
		}
		return f.Float64, true
	}
	return 0, false
}

// isUndefinedTable reports whether err is Postgres error 42P01.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
