package core

import (
	"strings"
	"time"
)

// FieldType represents the type of a dataset field for conversion.
type FieldType int

const (
	FieldText FieldType = iota
	FieldNumeric
	FieldDate
)

// String returns the field type name.
func (ft FieldType) String() string {
	switch ft {
	case FieldNumeric:
		return "numeric"
	case FieldDate:
		return "date"
	default:
		return "text"
	}
}

// FieldSpec defines how to parse, compare and store a single field.
type FieldSpec struct {
	Name     string    `validate:"required"` // Attribute name as it appears in CSV headers
	DBColumn string    // Database column name (empty = derived from Name)
	Type     FieldType // Type used for parsing and binding
}

// Position is the point location of a record in the authoritative
// dataset's coordinate system.
type Position struct {
	X float64
	Y float64
}

// Record is one row: an ordered attribute mapping plus an optional position.
// Records decoded from CSV never carry a position.
type Record struct {
	keys     []string
	values   map[string]Value
	Position *Position
}

// NewRecord returns an empty record with room for n attributes.
func NewRecord(n int) Record {
	return Record{
		keys:   make([]string, 0, n),
		values: make(map[string]Value, n),
	}
}

// Set assigns an attribute, appending the name to the key order when new.
func (r *Record) Set(name string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.values[name] = v
}

// Get returns the named attribute and whether it is present.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Value returns the named attribute, or null when absent.
func (r Record) Value(name string) Value {
	return r.values[name]
}

// Keys returns the attribute names in column order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of attributes.
func (r Record) Len() int { return len(r.keys) }

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := NewRecord(len(r.keys))
	for _, k := range r.keys {
		out.Set(k, r.values[k])
	}
	if r.Position != nil {
		p := *r.Position
		out.Position = &p
	}
	return out
}

// EditableFieldSet is the ordered allowlist of fields the engine may change.
type EditableFieldSet []string

// Contains reports whether name is editable.
func (s EditableFieldSet) Contains(name string) bool {
	for _, f := range s {
		if f == name {
			return true
		}
	}
	return false
}

// FieldChange is one differing editable field.
type FieldChange struct {
	Field string `json:"field"`
	Old   Value  `json:"old"`
	New   Value  `json:"new"`
}

// FieldUpdate is the partial mapping sent to the store for one record:
// the identifier plus only the fields whose values differ.
type FieldUpdate struct {
	ID      Value         `json:"id"`
	Changes []FieldChange `json:"changes"`
}

// Attributes returns the update as the attribute mapping submitted to the
// store, keyed by field name and including the identifier.
func (u FieldUpdate) Attributes(idField string) map[string]Value {
	attrs := make(map[string]Value, len(u.Changes)+1)
	attrs[idField] = u.ID
	for _, c := range u.Changes {
		attrs[c.Field] = c.New
	}
	return attrs
}

// Fields returns the changed field names in order.
func (u FieldUpdate) Fields() []string {
	out := make([]string, len(u.Changes))
	for i, c := range u.Changes {
		out[i] = c.Field
	}
	return out
}

// UpdateBatch is the ordered set of updates submitted in one request.
// It holds at most one update per identifier.
type UpdateBatch struct {
	IdentifierField string        `json:"identifier_field"`
	Updates         []FieldUpdate `json:"updates"`
}

// Len returns the number of updates.
func (b UpdateBatch) Len() int { return len(b.Updates) }

// IsEmpty reports whether there is nothing to submit.
func (b UpdateBatch) IsEmpty() bool { return len(b.Updates) == 0 }

// EditBatch is the request body of RecordStore.ApplyEdits.
type EditBatch struct {
	Updates []FieldUpdate
	Deletes []Value
}

// ApplyOutcome is the store's verdict for one submitted item, correlated to
// the submission by Index.
type ApplyOutcome struct {
	Index   int
	ID      Value
	Success bool
	Err     error
}

// EditResult carries one outcome per submitted update and delete, in
// submission order.
type EditResult struct {
	UpdateResults []ApplyOutcome
	DeleteResults []ApplyOutcome
}

// FilterOperator represents a comparison operator for column filters.
type FilterOperator string

const (
	OpContains   FilterOperator = "contains"
	OpEquals     FilterOperator = "eq"
	OpStartsWith FilterOperator = "starts"
	OpEndsWith   FilterOperator = "ends"
	OpGreaterEq  FilterOperator = "gte"
	OpLessEq     FilterOperator = "lte"
	OpGreater    FilterOperator = "gt"
	OpLess       FilterOperator = "lt"
	OpIn         FilterOperator = "in"
)

// ParseFilterOperator returns the operator for s, or false if unknown.
func ParseFilterOperator(s string) (FilterOperator, bool) {
	op := FilterOperator(strings.ToLower(strings.TrimSpace(s)))
	switch op {
	case OpContains, OpEquals, OpStartsWith, OpEndsWith,
		OpGreaterEq, OpLessEq, OpGreater, OpLess, OpIn:
		return op, true
	}
	return "", false
}

// ColumnFilter represents a single filter condition on a field.
type ColumnFilter struct {
	Field    string         // Attribute name
	DBColumn string         // Database column name
	Operator FilterOperator // Comparison operator
	Value    string         // Filter value (comma-separated for OpIn)
	Type     FieldType      // Field type for proper SQL generation
}

// FilterSet represents all active filters (combined with AND logic).
// An empty set selects every record.
type FilterSet struct {
	Filters []ColumnFilter
}

// IsEmpty reports whether the set selects everything.
func (fs FilterSet) IsEmpty() bool { return len(fs.Filters) == 0 }

// Query selects records from a dataset.
type Query struct {
	Filters        FilterSet
	ReturnGeometry bool
	OutFields      []string // nil, empty or ["*"] selects all registered fields
}

// AllFields reports whether the query projects every registered field.
func (q Query) AllFields() bool {
	return len(q.OutFields) == 0 || (len(q.OutFields) == 1 && q.OutFields[0] == "*")
}

// RunPhase represents the current stage of a reconciliation run.
type RunPhase string

const (
	PhaseIdle       RunPhase = "idle"
	PhaseFetching   RunPhase = "fetching"
	PhaseDiffing    RunPhase = "diffing"
	PhaseSubmitting RunPhase = "submitting"
	PhaseDone       RunPhase = "done"
	PhaseFailed     RunPhase = "failed"
)

// Terminal reports whether no further transition follows.
func (p RunPhase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// PhaseCallback is called on every phase transition of a run.
type PhaseCallback func(phase RunPhase, at time.Time)
