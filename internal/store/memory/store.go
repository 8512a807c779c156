// Package memory is an in-process RecordStore and RunRecorder. It backs the
// memory driver for demos and local runs, and tests that need a real store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/featuresync/internal/core"
)

// ErrInvalidValue is the item error for a value that does not fit the
// field's type.
var ErrInvalidValue = errors.New("invalid input syntax")

// ErrUnknownField is the item error for an update naming a field the
// dataset does not define.
var ErrUnknownField = errors.New("column does not exist")

type table struct {
	idType core.FieldType
	order  []string
	rows   map[string]core.Record
}

// Store keeps records per dataset keyed by identifier.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table

	failIDs    map[string]error
	submitErr  error
	queryErr   error
	submission []core.EditBatch

	runs []core.RunRecord
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:  make(map[string]*table),
		failIDs: make(map[string]error),
	}
}

func (s *Store) table(def core.DatasetDefinition) *table {
	t, ok := s.tables[def.Key]
	if !ok {
		t = &table{idType: def.TypeOf(def.IdentifierField), rows: make(map[string]core.Record)}
		s.tables[def.Key] = t
	}
	return t
}

func (t *table) key(id core.Value) string { return id.Key(t.idType) }

// failKey matches injected failures by magnitude for numeric-looking ids.
func failKey(id core.Value) string { return id.Key(core.FieldNumeric) }

// Seed replaces the records of def with recs. Records without an
// identifier are dropped; a repeated identifier keeps the last record.
func (s *Store) Seed(def core.DatasetDefinition, recs []core.Record) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &table{idType: def.TypeOf(def.IdentifierField), rows: make(map[string]core.Record, len(recs))}
	for _, r := range recs {
		id := r.Value(def.IdentifierField)
		if id.IsNull() {
			continue
		}
		key := t.key(id)
		if _, exists := t.rows[key]; !exists {
			t.order = append(t.order, key)
		}
		t.rows[key] = r.Clone()
	}
	s.tables[def.Key] = t
	return len(t.order)
}

// Get returns a copy of one record.
func (s *Store) Get(dataset string, id core.Value) (core.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[dataset]
	if !ok {
		return core.Record{}, false
	}
	r, ok := t.rows[t.key(id)]
	if !ok {
		return core.Record{}, false
	}
	return r.Clone(), true
}

// Count returns the number of records held for dataset.
func (s *Store) Count(dataset string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tables[dataset]; ok {
		return len(t.order)
	}
	return 0
}

// FailOn makes every edit of id fail with err.
func (s *Store) FailOn(id core.Value, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIDs[failKey(id)] = err
}

// FailSubmit makes the next ApplyEdits calls fail as a whole with err.
// A nil err clears it.
func (s *Store) FailSubmit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitErr = err
}

// FailQuery makes Query fail with err. A nil err clears it.
func (s *Store) FailQuery(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
}

// Submissions returns every batch passed to ApplyEdits, in order.
func (s *Store) Submissions() []core.EditBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.EditBatch(nil), s.submission...)
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Query implements core.RecordStore. Records come back in identifier order.
func (s *Store) Query(ctx context.Context, def core.DatasetDefinition, q core.Query) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queryErr != nil {
		return nil, s.queryErr
	}

	t, ok := s.tables[def.Key]
	if !ok {
		return []core.Record{}, nil
	}

	keys := append([]string(nil), t.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		return lessValue(t.rows[keys[i]].Value(def.IdentifierField), t.rows[keys[j]].Value(def.IdentifierField))
	})

	out := make([]core.Record, 0, len(keys))
	for _, k := range keys {
		r := t.rows[k]
		if !matchAll(r, def, q.Filters) {
			continue
		}
		out = append(out, project(r, def, q))
	}
	return out, nil
}

// project applies the query's field list and geometry flag.
func project(r core.Record, def core.DatasetDefinition, q core.Query) core.Record {
	var out core.Record
	if q.AllFields() {
		out = r.Clone()
	} else {
		out = core.NewRecord(len(q.OutFields) + 1)
		out.Set(def.IdentifierField, r.Value(def.IdentifierField))
		for _, f := range q.OutFields {
			if v, ok := r.Get(f); ok {
				out.Set(f, v)
			}
		}
	}
	if q.ReturnGeometry && r.Position != nil {
		p := *r.Position
		out.Position = &p
	} else {
		out.Position = nil
	}
	return out
}

// ApplyEdits implements core.RecordStore. Each item is applied or rejected
// on its own.
func (s *Store) ApplyEdits(ctx context.Context, def core.DatasetDefinition, batch core.EditBatch) (*core.EditResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.submission = append(s.submission, batch)
	if s.submitErr != nil {
		return nil, s.submitErr
	}

	t := s.table(def)
	res := &core.EditResult{
		UpdateResults: make([]core.ApplyOutcome, 0, len(batch.Updates)),
		DeleteResults: make([]core.ApplyOutcome, 0, len(batch.Deletes)),
	}

	for i, u := range batch.Updates {
		err := s.applyUpdate(t, def, u)
		res.UpdateResults = append(res.UpdateResults, core.ApplyOutcome{Index: i, ID: u.ID, Success: err == nil, Err: err})
	}
	for i, id := range batch.Deletes {
		err := s.applyDelete(t, id)
		res.DeleteResults = append(res.DeleteResults, core.ApplyOutcome{Index: i, ID: id, Success: err == nil, Err: err})
	}
	return res, nil
}

func (s *Store) applyUpdate(t *table, def core.DatasetDefinition, u core.FieldUpdate) error {
	key := t.key(u.ID)
	if err, ok := s.failIDs[failKey(u.ID)]; ok {
		return err
	}
	r, ok := t.rows[key]
	if !ok {
		return core.ErrRecordNotFound
	}

	// Validate every change before touching the record.
	values := make([]core.Value, len(u.Changes))
	for i, c := range u.Changes {
		spec, ok := def.Spec(c.Field)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, c.Field)
		}
		v, err := coerce(c.New, spec.Type)
		if err != nil {
			return fmt.Errorf("%s: %w", c.Field, err)
		}
		values[i] = v
	}

	r = r.Clone()
	for i, c := range u.Changes {
		r.Set(c.Field, values[i])
	}
	t.rows[key] = r
	return nil
}

func (s *Store) applyDelete(t *table, id core.Value) error {
	key := t.key(id)
	if err, ok := s.failIDs[failKey(id)]; ok {
		return err
	}
	if _, ok := t.rows[key]; !ok {
		return core.ErrRecordNotFound
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// coerce converts v to the representation stored for ft.
func coerce(v core.Value, ft core.FieldType) (core.Value, error) {
	s, isString := v.AsString()
	if !isString {
		return v, nil
	}
	if s == "" {
		return core.NullValue(), nil
	}
	switch ft {
	case core.FieldNumeric:
		n, ok := core.ParseNumber(s)
		if !ok {
			return v, fmt.Errorf("%w for type numeric: %q", ErrInvalidValue, s)
		}
		return core.NumberValue(n), nil
	case core.FieldDate:
		d, ok := core.ParseDate(s)
		if !ok {
			return v, fmt.Errorf("%w for type timestamp: %q", ErrInvalidValue, s)
		}
		return core.DateValue(d), nil
	}
	return v, nil
}

// RecordRun implements core.RunRecorder.
func (s *Store) RecordRun(ctx context.Context, rec core.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, rec)
	return nil
}

// ListRuns implements core.RunRecorder, newest first.
func (s *Store) ListRuns(ctx context.Context, dataset string, limit int) ([]core.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.RunSummary, 0)
	for i := len(s.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.EqualFold(s.runs[i].Report.Dataset, dataset) {
			out = append(out, s.runs[i].Summary())
		}
	}
	return out, nil
}
