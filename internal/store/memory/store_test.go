package memory

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/featuresync/internal/core"
)

func testDef() core.DatasetDefinition {
	return core.DatasetDefinition{
		Key:             "rooms",
		Label:           "Rooms",
		Table:           "rooms",
		IdentifierField: "objectid",
		EditableFields:  core.EditableFieldSet{"room_name", "capacity", "status"},
		DateFields:      []string{"EditDate"},
		FieldSpecs: []core.FieldSpec{
			{Name: "objectid", Type: core.FieldNumeric},
			{Name: "room_name", Type: core.FieldText},
			{Name: "capacity", Type: core.FieldNumeric},
			{Name: "status", Type: core.FieldText},
			{Name: "EditDate", DBColumn: "edit_date", Type: core.FieldDate},
		},
		Geometry: core.Geometry{XColumn: "x", YColumn: "y"},
	}
}

func room(id float64, name string, capacity float64, status string) core.Record {
	r := core.NewRecord(4)
	r.Set("objectid", core.NumberValue(id))
	r.Set("room_name", core.StringValue(name))
	r.Set("capacity", core.NumberValue(capacity))
	r.Set("status", core.StringValue(status))
	r.Position = &core.Position{X: id, Y: -id}
	return r
}

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	n := s.Seed(testDef(), []core.Record{
		room(3, "Hall", 120, "Open"),
		room(1, "Lab", 12, "Open"),
		room(2, "Office", 4, "Closed"),
	})
	require.Equal(t, 3, n)
	return s
}

func ids(recs []core.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Value("objectid").Key(core.FieldNumeric)
	}
	return out
}

func TestQuery_OrderAndGeometry(t *testing.T) {
	s := seeded(t)

	recs, err := s.Query(context.Background(), testDef(), core.Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(recs))
	assert.Nil(t, recs[0].Position, "geometry is only returned when requested")

	recs, err = s.Query(context.Background(), testDef(), core.Query{ReturnGeometry: true})
	require.NoError(t, err)
	require.NotNil(t, recs[0].Position)
	assert.Equal(t, 1.0, recs[0].Position.X)
}

func TestQuery_OutFields(t *testing.T) {
	s := seeded(t)

	recs, err := s.Query(context.Background(), testDef(), core.Query{OutFields: []string{"status"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"objectid", "status"}, recs[0].Keys())
}

func TestQuery_Filters(t *testing.T) {
	s := seeded(t)

	tests := []struct {
		name   string
		filter core.ColumnFilter
		want   []string
	}{
		{"contains case-insensitive", core.ColumnFilter{Field: "room_name", Operator: core.OpContains, Value: "AL"}, []string{"3"}},
		{"starts with", core.ColumnFilter{Field: "room_name", Operator: core.OpStartsWith, Value: "o"}, []string{"2"}},
		{"ends with", core.ColumnFilter{Field: "room_name", Operator: core.OpEndsWith, Value: "b"}, []string{"1"}},
		{"equals", core.ColumnFilter{Field: "status", Operator: core.OpEquals, Value: "Open"}, []string{"1", "3"}},
		{"numeric gte", core.ColumnFilter{Field: "capacity", Operator: core.OpGreaterEq, Value: "12"}, []string{"1", "3"}},
		{"numeric lt", core.ColumnFilter{Field: "capacity", Operator: core.OpLess, Value: "12"}, []string{"2"}},
		{"in", core.ColumnFilter{Field: "objectid", Operator: core.OpIn, Value: "1, 3"}, []string{"1", "3"}},
		{"by column", core.ColumnFilter{DBColumn: "status", Operator: core.OpEquals, Value: "Closed"}, []string{"2"}},
		{"unknown operator matches nothing", core.ColumnFilter{Field: "status", Operator: "like", Value: "x"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.Query(context.Background(), testDef(), core.Query{
				Filters: core.FilterSet{Filters: []core.ColumnFilter{tt.filter}},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(recs))
		})
	}
}

func TestApplyEdits_TextIdentifiersMatchExactly(t *testing.T) {
	def := testDef()
	def.FieldSpecs[0].Type = core.FieldText

	named := func(id, name string) core.Record {
		r := core.NewRecord(2)
		r.Set("objectid", core.StringValue(id))
		r.Set("room_name", core.StringValue(name))
		return r
	}

	s := New()
	require.Equal(t, 3, s.Seed(def, []core.Record{named("0012", "A"), named("12", "B"), named("(5)", "C")}))

	res, err := s.ApplyEdits(context.Background(), def, core.EditBatch{Updates: []core.FieldUpdate{
		{ID: core.StringValue("12"), Changes: []core.FieldChange{change("room_name", core.StringValue("B2"))}},
		{ID: core.StringValue("-5"), Changes: []core.FieldChange{change("room_name", core.StringValue("Z"))}},
	}})
	require.NoError(t, err)
	require.Len(t, res.UpdateResults, 2)
	assert.True(t, res.UpdateResults[0].Success)
	assert.ErrorIs(t, res.UpdateResults[1].Err, core.ErrRecordNotFound)

	for id, want := range map[string]string{"0012": "A", "12": "B2", "(5)": "C"} {
		r, ok := s.Get("rooms", core.StringValue(id))
		require.True(t, ok, id)
		got, _ := r.Value("room_name").AsString()
		assert.Equal(t, want, got, id)
	}
}

func TestQuery_ReturnsCopies(t *testing.T) {
	s := seeded(t)

	recs, err := s.Query(context.Background(), testDef(), core.Query{})
	require.NoError(t, err)
	recs[0].Set("status", core.StringValue("mutated"))

	stored, ok := s.Get("rooms", core.NumberValue(1))
	require.True(t, ok)
	status, _ := stored.Value("status").AsString()
	assert.Equal(t, "Open", status)
}

func TestQuery_Failure(t *testing.T) {
	s := seeded(t)
	s.FailQuery(errors.New("unavailable"))

	_, err := s.Query(context.Background(), testDef(), core.Query{})
	assert.EqualError(t, err, "unavailable")

	s.FailQuery(nil)
	_, err = s.Query(context.Background(), testDef(), core.Query{})
	assert.NoError(t, err)
}

func TestQuery_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seeded(t).Query(ctx, testDef(), core.Query{})
	assert.ErrorIs(t, err, context.Canceled)
}

func change(field string, v core.Value) core.FieldChange {
	return core.FieldChange{Field: field, New: v}
}

func TestApplyEdits(t *testing.T) {
	s := seeded(t)
	s.FailOn(core.NumberValue(3), errors.New("locked"))

	batch := core.EditBatch{Updates: []core.FieldUpdate{
		{ID: core.NumberValue(1), Changes: []core.FieldChange{change("status", core.StringValue("Closed"))}},
		{ID: core.NumberValue(99), Changes: []core.FieldChange{change("status", core.StringValue("Closed"))}},
		{ID: core.NumberValue(2), Changes: []core.FieldChange{change("capacity", core.StringValue("lots"))}},
		{ID: core.NumberValue(3), Changes: []core.FieldChange{change("status", core.StringValue("Closed"))}},
		{ID: core.StringValue("2"), Changes: []core.FieldChange{change("floor", core.StringValue("2"))}},
		{ID: core.StringValue("2"), Changes: []core.FieldChange{
			change("capacity", core.StringValue("6")),
			change("room_name", core.NullValue()),
		}},
	}}

	res, err := s.ApplyEdits(context.Background(), testDef(), batch)
	require.NoError(t, err)
	require.Len(t, res.UpdateResults, 6)

	assert.True(t, res.UpdateResults[0].Success)
	assert.ErrorIs(t, res.UpdateResults[1].Err, core.ErrRecordNotFound)
	assert.ErrorIs(t, res.UpdateResults[2].Err, ErrInvalidValue)
	assert.EqualError(t, res.UpdateResults[3].Err, "locked")
	assert.ErrorIs(t, res.UpdateResults[4].Err, ErrUnknownField)
	assert.True(t, res.UpdateResults[5].Success)

	r1, _ := s.Get("rooms", core.NumberValue(1))
	status, _ := r1.Value("status").AsString()
	assert.Equal(t, "Closed", status)

	r2, _ := s.Get("rooms", core.NumberValue(2))
	capacity, ok := r2.Value("capacity").AsNumber()
	assert.True(t, ok, "numeric strings are stored as numbers")
	assert.Equal(t, 6.0, capacity)
	assert.True(t, r2.Value("room_name").IsNull())

	assert.Len(t, s.Submissions(), 1)
}

func TestApplyEdits_SubmitFailure(t *testing.T) {
	s := seeded(t)
	s.FailSubmit(errors.New("gateway timeout"))

	res, err := s.ApplyEdits(context.Background(), testDef(), core.EditBatch{
		Updates: []core.FieldUpdate{{ID: core.NumberValue(1), Changes: []core.FieldChange{change("status", core.StringValue("x"))}}},
	})
	assert.Nil(t, res)
	assert.EqualError(t, err, "gateway timeout")

	r1, _ := s.Get("rooms", core.NumberValue(1))
	status, _ := r1.Value("status").AsString()
	assert.Equal(t, "Open", status, "a failed request changes nothing")
}

func TestApplyEdits_Deletes(t *testing.T) {
	s := seeded(t)

	res, err := s.ApplyEdits(context.Background(), testDef(), core.EditBatch{
		Deletes: []core.Value{core.NumberValue(2), core.NumberValue(2)},
	})
	require.NoError(t, err)
	assert.True(t, res.DeleteResults[0].Success)
	assert.ErrorIs(t, res.DeleteResults[1].Err, core.ErrRecordNotFound)
	assert.Equal(t, 2, s.Count("rooms"))
}

func TestRunHistory(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, ds := range []string{"rooms", "other", "rooms", "rooms"} {
		rep := core.RunReport{RunID: string(rune('a' + i)), Dataset: ds, StartedAt: time.Now()}
		require.NoError(t, s.RecordRun(ctx, core.RunRecord{Report: rep}))
	}

	runs, err := s.ListRuns(ctx, "rooms", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "d", runs[0].RunID)
	assert.Equal(t, "c", runs[1].RunID)
}

func TestParseSeedSpec(t *testing.T) {
	ds, path, err := ParseSeedSpec(" rooms = data/rooms.csv ")
	require.NoError(t, err)
	assert.Equal(t, "rooms", ds)
	assert.Equal(t, "data/rooms.csv", path)

	for _, bad := range []string{"rooms", "=x.csv", "rooms="} {
		_, _, err := ParseSeedSpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadSeedFile_RoundTripsExport(t *testing.T) {
	def := testDef()
	src := seeded(t)

	recs, err := src.Query(context.Background(), def, core.Query{ReturnGeometry: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, core.WriteCSV(&buf, recs, core.ExportOptions(def, "", nil)))

	path := filepath.Join(t.TempDir(), "rooms.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	dst := New()
	n, err := dst.LoadSeedFile(def, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	r, ok := dst.Get("rooms", core.NumberValue(3))
	require.True(t, ok)
	require.NotNil(t, r.Position)
	assert.Equal(t, 3.0, r.Position.X)
	assert.Equal(t, -3.0, r.Position.Y)
	_, hasLat := r.Get(core.LatitudeColumn)
	assert.False(t, hasLat)
	name, _ := r.Value("room_name").AsString()
	assert.Equal(t, "Hall", name)
}

func TestLoadSeedFile_Errors(t *testing.T) {
	_, err := New().LoadSeedFile(testDef(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("room_name\nLab\n"), 0o600))
	_, err = New().LoadSeedFile(testDef(), path)
	assert.ErrorIs(t, err, core.ErrMalformedInput)
}
