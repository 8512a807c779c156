package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/featuresync/internal/core"
)

func testDef() core.DatasetDefinition {
	return core.DatasetDefinition{
		Key:             "change_requests",
		Label:           "Change Requests",
		Table:           "change_requests",
		IdentifierField: "objectid",
		EditableFields:  core.EditableFieldSet{"room_name", "status"},
		DateFields:      []string{"CreationDate"},
		FieldSpecs: []core.FieldSpec{
			{Name: "objectid", Type: core.FieldNumeric},
			{Name: "room_name", Type: core.FieldText},
			{Name: "status", Type: core.FieldText},
			{Name: "CreationDate", DBColumn: "creation_date", Type: core.FieldDate},
		},
		Geometry: core.Geometry{XColumn: "x", YColumn: "y"},
	}
}

// fakeDB records statements. Methods not overridden panic through the nil
// embedded interface.
type fakeDB struct {
	DB

	exec    func(sql string, args []any) (pgconn.CommandTag, error)
	stmts   []string
	commits int
	copied  [][]any
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	if f.exec == nil {
		return pgconn.NewCommandTag("OK"), nil
	}
	return f.exec(sql, args)
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

type fakeTx struct {
	pgx.Tx

	db     *fakeDB
	nested bool
	closed bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: t.db, nested: true}, nil
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	if !t.nested {
		t.db.commits++
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	return nil
}

func (t *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	var n int64
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return n, err
		}
		t.db.copied = append(t.db.copied, vals)
		n++
	}
	return n, src.Err()
}

func TestBuildSelect(t *testing.T) {
	def := testDef()

	tests := []struct {
		name     string
		query    core.Query
		wantSQL  string
		wantArgs []any
		wantCols int
	}{
		{
			name:     "all fields",
			query:    core.Query{},
			wantSQL:  `SELECT "objectid", "room_name", "status", "creation_date" FROM "change_requests" ORDER BY "objectid"`,
			wantCols: 4,
		},
		{
			name: "geometry and filter",
			query: core.Query{
				ReturnGeometry: true,
				OutFields:      []string{"*"},
				Filters: core.FilterSet{Filters: []core.ColumnFilter{
					{Field: "status", Operator: core.OpEquals, Value: "Open"},
				}},
			},
			wantSQL:  `SELECT "objectid", "room_name", "status", "creation_date", "x", "y" FROM "change_requests" WHERE "status" = $1 ORDER BY "objectid"`,
			wantArgs: []any{"Open"},
			wantCols: 4,
		},
		{
			name:     "projection keeps identifier",
			query:    core.Query{OutFields: []string{"STATUS", "unknown", "status"}},
			wantSQL:  `SELECT "objectid", "status" FROM "change_requests" ORDER BY "objectid"`,
			wantCols: 2,
		},
		{
			name: "filter resolves mapped column and type",
			query: core.Query{Filters: core.FilterSet{Filters: []core.ColumnFilter{
				{Field: "CreationDate", Operator: core.OpGreaterEq, Value: "2024-01-01"},
			}}},
			wantSQL:  `SELECT "objectid", "room_name", "status", "creation_date" FROM "change_requests" WHERE "creation_date" >= $1 ORDER BY "objectid"`,
			wantArgs: []any{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			wantCols: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, cols := buildSelect(def, tt.query)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
			assert.Len(t, cols, tt.wantCols)
		})
	}
}

func TestBuildUpdate(t *testing.T) {
	def := testDef()
	u := core.FieldUpdate{
		ID: core.NumberValue(7),
		Changes: []core.FieldChange{
			{Field: "room_name", New: core.StringValue("Lab")},
			{Field: "CreationDate", New: core.StringValue("3/7/2024")},
		},
	}

	sql, args := buildUpdate(def, `"change_requests"`, `"objectid"`, u)

	assert.Equal(t, `UPDATE "change_requests" SET "room_name" = $1, "creation_date" = $2 WHERE "objectid" = $3`, sql)
	require.Len(t, args, 2)
	assert.Equal(t, "Lab", args[0])
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), args[1])
}

func TestApplyEdits_PerItemOutcomes(t *testing.T) {
	db := &fakeDB{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			switch args[len(args)-1] {
			case float64(2):
				return pgconn.NewCommandTag("UPDATE 0"), nil
			case float64(3):
				return pgconn.CommandTag{}, errors.New("value too long for type character varying(10)")
			}
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}
	store := New(db)

	batch := core.EditBatch{Updates: []core.FieldUpdate{
		{ID: core.NumberValue(1), Changes: []core.FieldChange{{Field: "status", New: core.StringValue("Closed")}}},
		{ID: core.NumberValue(2), Changes: []core.FieldChange{{Field: "status", New: core.StringValue("Closed")}}},
		{ID: core.NumberValue(3), Changes: []core.FieldChange{{Field: "status", New: core.StringValue("Closed")}}},
	}}

	res, err := store.ApplyEdits(context.Background(), testDef(), batch)
	require.NoError(t, err)
	require.Len(t, res.UpdateResults, 3)

	assert.True(t, res.UpdateResults[0].Success)
	assert.False(t, res.UpdateResults[1].Success)
	assert.ErrorIs(t, res.UpdateResults[1].Err, core.ErrRecordNotFound)
	assert.False(t, res.UpdateResults[2].Success)
	assert.Contains(t, res.UpdateResults[2].Err.Error(), "value too long")

	for i, out := range res.UpdateResults {
		assert.Equal(t, i, out.Index)
	}
	assert.Equal(t, 1, db.commits, "items share one committed transaction")
}

func TestApplyEdits_Deletes(t *testing.T) {
	db := &fakeDB{
		exec: func(sql string, args []any) (pgconn.CommandTag, error) {
			if args[0] == float64(9) {
				return pgconn.NewCommandTag("DELETE 0"), nil
			}
			return pgconn.NewCommandTag("DELETE 1"), nil
		},
	}

	res, err := New(db).ApplyEdits(context.Background(), testDef(), core.EditBatch{
		Deletes: []core.Value{core.StringValue("4"), core.NumberValue(9)},
	})
	require.NoError(t, err)
	require.Len(t, res.DeleteResults, 2)
	assert.True(t, res.DeleteResults[0].Success)
	assert.ErrorIs(t, res.DeleteResults[1].Err, core.ErrRecordNotFound)
	assert.Equal(t, `DELETE FROM "change_requests" WHERE "objectid" = $1`, db.stmts[0])
}

func TestBindValue(t *testing.T) {
	date := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		v    core.Value
		ft   core.FieldType
		want any
	}{
		{"null", core.NullValue(), core.FieldText, nil},
		{"number", core.NumberValue(3.5), core.FieldNumeric, 3.5},
		{"numeric string", core.StringValue("$1,200"), core.FieldNumeric, float64(1200)},
		{"blank numeric", core.StringValue(""), core.FieldNumeric, nil},
		{"bad numeric stays string", core.StringValue("n/a"), core.FieldNumeric, "n/a"},
		{"date", core.DateValue(date), core.FieldDate, date},
		{"date string", core.StringValue("2024-03-07"), core.FieldDate, date},
		{"epoch number in date column", core.NumberValue(float64(date.UnixMilli())), core.FieldDate, date},
		{"text", core.StringValue("Open"), core.FieldText, "Open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bindValue(tt.v, tt.ft))
		})
	}
}

func TestToValue(t *testing.T) {
	date := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	var numeric pgtype.Numeric
	require.NoError(t, numeric.Scan("12.5"))

	tests := []struct {
		name string
		in   any
		ft   core.FieldType
		want core.Value
	}{
		{"nil", nil, core.FieldText, core.NullValue()},
		{"text", "Open", core.FieldText, core.StringValue("Open")},
		{"int64", int64(42), core.FieldNumeric, core.NumberValue(42)},
		{"int32", int32(7), core.FieldNumeric, core.NumberValue(7)},
		{"float64", 1.25, core.FieldNumeric, core.NumberValue(1.25)},
		{"numeric", numeric, core.FieldNumeric, core.NumberValue(12.5)},
		{"invalid numeric", pgtype.Numeric{}, core.FieldNumeric, core.NullValue()},
		{"timestamp", date, core.FieldDate, core.DateValue(date)},
		{"numeric text column", "15", core.FieldNumeric, core.NumberValue(15)},
		{"bool", true, core.FieldText, core.StringValue("true")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toValue(tt.in, tt.ft)
			assert.Equal(t, tt.want.Kind(), got.Kind())
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).EnsureSchema(context.Background()))

	require.Len(t, db.stmts, len(schemaStatements))
	assert.Contains(t, db.stmts[0], "CREATE TABLE IF NOT EXISTS reconcile_runs")
	assert.Contains(t, db.stmts[2], "reconcile_run_failures")
}

func TestDatasetTableDDL(t *testing.T) {
	ddl := datasetTableDDL(testDef())

	assert.True(t, strings.HasPrefix(ddl, `CREATE TABLE IF NOT EXISTS "change_requests"`))
	assert.Contains(t, ddl, `"objectid" NUMERIC PRIMARY KEY`)
	assert.Contains(t, ddl, `"creation_date" TIMESTAMPTZ`)
	assert.Contains(t, ddl, `"room_name" TEXT`)
	assert.Contains(t, ddl, `"x" DOUBLE PRECISION`)
}

func TestRecordRun_CopiesFailures(t *testing.T) {
	db := &fakeDB{}
	report := core.RunReport{
		RunID:     "8c2f4c1e-0b7a-4c3e-9f51-2d1c6a7b9e10",
		Dataset:   "change_requests",
		Phase:     core.PhaseDone,
		StartedAt: time.Now(),
		Applied:   []core.Value{core.NumberValue(1)},
		Failed: []core.ItemApplyError{
			{Index: 1, ID: core.NumberValue(2), Err: core.ErrRecordNotFound},
		},
	}

	err := New(db).RecordRun(context.Background(), core.RunRecord{Report: report, IPAddress: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, 1, db.commits)
	require.Len(t, db.copied, 1)
	assert.Equal(t, int32(1), db.copied[0][1])
	assert.Equal(t, "2", db.copied[0][2])
}

func TestRecordRun_RejectsBadID(t *testing.T) {
	err := New(&fakeDB{}).RecordRun(context.Background(), core.RunRecord{Report: core.RunReport{RunID: "nope"}})
	assert.Error(t, err)
}
