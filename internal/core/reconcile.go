package core

// Plan is the result of reconciling an incoming dataset against the
// authoritative one.
type Plan struct {
	Batch UpdateBatch

	Incoming   int // records in the incoming dataset
	Matched    int // incoming records whose identifier exists in the store
	Unchanged  int // matched records with no editable differences
	Unmatched  int // identifiers not found in the store; never created
	Duplicates int // repeated incoming identifiers after the first
	MissingID  int // incoming records with an empty identifier
}

// Reconcile matches incoming records to authoritative records by identifier
// and returns one FieldUpdate per matched record whose editable fields
// differ. Updates follow incoming order and carry only the changed fields.
//
// Editable fields absent from a record are not compared, so a column missing
// from the upload never clears stored values.
func Reconcile(authoritative, incoming []Record, def DatasetDefinition) Plan {
	idField := def.IdentifierField
	plan := Plan{
		Batch:    UpdateBatch{IdentifierField: idField},
		Incoming: len(incoming),
	}

	index := make(map[string]int, len(authoritative))
	for i, rec := range authoritative {
		id := rec.Value(idField)
		if id.blank() {
			continue
		}
		k := def.IDKey(id)
		if _, dup := index[k]; !dup {
			index[k] = i
		}
	}

	seen := make(map[string]bool, len(incoming))
	for _, in := range incoming {
		id := in.Value(idField)
		if id.blank() {
			plan.MissingID++
			continue
		}

		k := def.IDKey(id)
		if seen[k] {
			plan.Duplicates++
			continue
		}
		seen[k] = true

		ai, ok := index[k]
		if !ok {
			plan.Unmatched++
			continue
		}
		plan.Matched++

		auth := authoritative[ai]
		var changes []FieldChange
		for _, field := range def.EditableFields {
			newVal, present := in.Get(field)
			if !present {
				continue
			}
			oldVal := auth.Value(field)
			if !oldVal.Equal(newVal) {
				changes = append(changes, FieldChange{Field: field, Old: oldVal, New: newVal})
			}
		}

		if len(changes) == 0 {
			plan.Unchanged++
			continue
		}
		plan.Batch.Updates = append(plan.Batch.Updates, FieldUpdate{
			ID:      auth.Value(idField),
			Changes: changes,
		})
	}

	return plan
}
