package core

import (
	"testing"
)

// rec builds a record from alternating name/value pairs. Values may be
// string, float64, int or nil.
func rec(pairs ...any) Record {
	r := NewRecord(len(pairs) / 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		name := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case nil:
			r.Set(name, NullValue())
		case string:
			r.Set(name, StringValue(v))
		case float64:
			r.Set(name, NumberValue(v))
		case int:
			r.Set(name, NumberValue(float64(v)))
		case Value:
			r.Set(name, v)
		}
	}
	return r
}

func TestReconcile_SingleChangedField(t *testing.T) {
	def := testDataset()
	auth := []Record{rec("objectid", 1, "room_name", "Lab", "status", "Open")}
	in := []Record{rec("objectid", 1, "room_name", "Lab", "status", "Closed")}

	plan := Reconcile(auth, in, def)

	if plan.Batch.Len() != 1 {
		t.Fatalf("got %d updates, want 1", plan.Batch.Len())
	}
	u := plan.Batch.Updates[0]
	if u.ID.Key(FieldNumeric) != "1" {
		t.Errorf("update id = %v, want 1", u.ID)
	}
	if len(u.Changes) != 1 || u.Changes[0].Field != "status" {
		t.Fatalf("changes = %+v, want only status", u.Changes)
	}
	if s, _ := u.Changes[0].New.AsString(); s != "Closed" {
		t.Errorf("new status = %q, want Closed", s)
	}

	attrs := u.Attributes(def.IdentifierField)
	if len(attrs) != 2 {
		t.Errorf("attributes = %v, want identifier plus status", attrs)
	}
	if plan.Matched != 1 || plan.Unchanged != 0 {
		t.Errorf("Matched=%d Unchanged=%d, want 1 and 0", plan.Matched, plan.Unchanged)
	}
}

func TestReconcile_NoDifferences(t *testing.T) {
	auth := []Record{rec("objectid", 1, "room_name", "Lab", "status", "Open")}
	in := []Record{rec("objectid", "1", "room_name", "Lab", "status", "Open")}

	plan := Reconcile(auth, in, testDataset())

	if !plan.Batch.IsEmpty() {
		t.Errorf("got %d updates, want none", plan.Batch.Len())
	}
	if plan.Unchanged != 1 {
		t.Errorf("Unchanged = %d, want 1", plan.Unchanged)
	}
}

func TestReconcile_UnmatchedIdentifierIsSkipped(t *testing.T) {
	auth := []Record{rec("objectid", 1, "status", "Open")}
	in := []Record{rec("objectid", 99, "status", "Closed")}

	plan := Reconcile(auth, in, testDataset())

	if !plan.Batch.IsEmpty() {
		t.Error("unmatched identifiers must not produce updates")
	}
	if plan.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", plan.Unmatched)
	}
}

func TestReconcile_NonEditableFieldsIgnored(t *testing.T) {
	auth := []Record{rec("objectid", 1, "Creator", "alice", "status", "Open")}
	in := []Record{rec("objectid", 1, "Creator", "bob", "status", "Open")}

	plan := Reconcile(auth, in, testDataset())

	if !plan.Batch.IsEmpty() {
		t.Errorf("non-editable difference produced %d updates", plan.Batch.Len())
	}
}

func TestReconcile_FieldMissingFromIncomingNotCompared(t *testing.T) {
	auth := []Record{rec("objectid", 1, "room_name", "Lab", "status", "Open")}
	in := []Record{rec("objectid", 1, "status", "Open")}

	plan := Reconcile(auth, in, testDataset())

	if !plan.Batch.IsEmpty() {
		t.Error("a column absent from the upload must not clear stored values")
	}
}

func TestReconcile_BlankClearsField(t *testing.T) {
	auth := []Record{rec("objectid", 1, "room_name", "Lab")}
	in := []Record{rec("objectid", 1, "room_name", nil)}

	plan := Reconcile(auth, in, testDataset())

	if plan.Batch.Len() != 1 {
		t.Fatalf("got %d updates, want 1", plan.Batch.Len())
	}
	if !plan.Batch.Updates[0].Changes[0].New.IsNull() {
		t.Error("blank cell should submit null")
	}
}

func TestReconcile_TypeNormalization(t *testing.T) {
	auth := []Record{rec("objectid", 1, "room_name", 101, "status", "Open")}
	in := []Record{rec("objectid", "1", "room_name", "101", "status", "Open")}

	plan := Reconcile(auth, in, testDataset())

	if !plan.Batch.IsEmpty() {
		t.Errorf("numeric string vs number should compare equal, got %+v", plan.Batch.Updates)
	}
}

func TestReconcile_DuplicateIncomingFirstWins(t *testing.T) {
	auth := []Record{rec("objectid", 1, "status", "Open")}
	in := []Record{
		rec("objectid", 1, "status", "Closed"),
		rec("objectid", 1, "status", "Pending"),
	}

	plan := Reconcile(auth, in, testDataset())

	if plan.Batch.Len() != 1 {
		t.Fatalf("got %d updates, want 1", plan.Batch.Len())
	}
	if s, _ := plan.Batch.Updates[0].Changes[0].New.AsString(); s != "Closed" {
		t.Errorf("new status = %q, want first occurrence Closed", s)
	}
	if plan.Duplicates != 1 {
		t.Errorf("Duplicates = %d, want 1", plan.Duplicates)
	}
}

func TestReconcile_MissingIdentifier(t *testing.T) {
	auth := []Record{rec("objectid", 1, "status", "Open")}
	in := []Record{rec("objectid", nil, "status", "Closed"), rec("status", "Closed")}

	plan := Reconcile(auth, in, testDataset())

	if plan.MissingID != 2 {
		t.Errorf("MissingID = %d, want 2", plan.MissingID)
	}
	if !plan.Batch.IsEmpty() {
		t.Error("records without identifiers must not produce updates")
	}
}

func TestReconcile_PreservesIncomingOrder(t *testing.T) {
	auth := []Record{
		rec("objectid", 1, "status", "a"),
		rec("objectid", 2, "status", "a"),
		rec("objectid", 3, "status", "a"),
	}
	in := []Record{
		rec("objectid", 3, "status", "b"),
		rec("objectid", 1, "status", "b"),
		rec("objectid", 2, "status", "b"),
	}

	plan := Reconcile(auth, in, testDataset())

	want := []string{"3", "1", "2"}
	if plan.Batch.Len() != len(want) {
		t.Fatalf("got %d updates, want %d", plan.Batch.Len(), len(want))
	}
	for i, id := range want {
		if got := plan.Batch.Updates[i].ID.Key(FieldNumeric); got != id {
			t.Errorf("update %d id = %s, want %s", i, got, id)
		}
	}
}

func TestReconcile_Empty(t *testing.T) {
	plan := Reconcile(nil, nil, testDataset())
	if !plan.Batch.IsEmpty() || plan.Incoming != 0 {
		t.Errorf("empty inputs produced %+v", plan)
	}
	if plan.Batch.IdentifierField != "objectid" {
		t.Errorf("IdentifierField = %q", plan.Batch.IdentifierField)
	}
}

func TestReconcile_EveryUpdateHasChanges(t *testing.T) {
	def := testDataset()
	auth := []Record{
		rec("objectid", 1, "room_name", "A", "use_type_new", "X", "status", "Open"),
		rec("objectid", 2, "room_name", "B", "use_type_new", "Y", "status", "Open"),
	}
	in := []Record{
		rec("objectid", 1, "room_name", "A2", "use_type_new", "X", "status", "Closed"),
		rec("objectid", 2, "room_name", "B", "use_type_new", "Y", "status", "Open"),
	}

	plan := Reconcile(auth, in, def)

	for _, u := range plan.Batch.Updates {
		if len(u.Changes) == 0 {
			t.Errorf("update %v has no changes", u.ID)
		}
		for _, c := range u.Changes {
			if !def.EditableFields.Contains(c.Field) {
				t.Errorf("update touches non-editable field %s", c.Field)
			}
		}
	}
	if got := plan.Batch.Updates[0].Fields(); len(got) != 2 || got[0] != "room_name" || got[1] != "status" {
		t.Errorf("Fields() = %v, want [room_name status]", got)
	}
}

func TestReconcile_TextIdentifierMatchesExactly(t *testing.T) {
	def := testDataset()
	def.FieldSpecs[0].Type = FieldText

	auth := []Record{
		rec("objectid", "0012", "room_name", "A"),
		rec("objectid", "12", "room_name", "B"),
		rec("objectid", "(5)", "room_name", "C"),
	}
	in := []Record{
		rec("objectid", "12", "room_name", "B"),
		rec("objectid", "-5", "room_name", "Z"),
	}

	plan := Reconcile(auth, in, def)

	if !plan.Batch.IsEmpty() {
		for _, u := range plan.Batch.Updates {
			t.Errorf("unexpected update for id %v: %v", u.ID, u.Fields())
		}
	}
	if plan.Matched != 1 || plan.Unchanged != 1 || plan.Unmatched != 1 {
		t.Errorf("Matched=%d Unchanged=%d Unmatched=%d, want 1, 1 and 1", plan.Matched, plan.Unchanged, plan.Unmatched)
	}
}

func TestReconcile_TextIdentifierNotDuplicatedByMagnitude(t *testing.T) {
	def := testDataset()
	def.FieldSpecs[0].Type = FieldText

	auth := []Record{
		rec("objectid", "1,000", "status", "Open"),
		rec("objectid", "1000", "status", "Open"),
	}
	in := []Record{
		rec("objectid", "1,000", "status", "Closed"),
		rec("objectid", "1000", "status", "Closed"),
	}

	plan := Reconcile(auth, in, def)

	if plan.Duplicates != 0 {
		t.Errorf("Duplicates = %d, want 0", plan.Duplicates)
	}
	if plan.Batch.Len() != 2 {
		t.Fatalf("got %d updates, want 2", plan.Batch.Len())
	}
	for i, want := range []string{"1,000", "1000"} {
		if got, _ := plan.Batch.Updates[i].ID.AsString(); got != want {
			t.Errorf("update %d id = %q, want %q", i, got, want)
		}
	}
}
