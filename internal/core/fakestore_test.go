package core

import (
	"context"
	"sync"
)

// fakeStore is a scriptable RecordStore for package tests.
type fakeStore struct {
	mu sync.Mutex

	records   []Record
	queryErr  error
	submitErr error
	failIDs   map[string]error
	truncate  int // when > 0, return only this many outcomes
	block     bool

	queries     int
	submissions []EditBatch
}

func (f *fakeStore) Query(ctx context.Context, def DatasetDefinition, q Query) ([]Record, error) {
	f.mu.Lock()
	f.queries++
	block, err := f.block, f.queryErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	out := make([]Record, len(f.records))
	for i, r := range f.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *fakeStore) ApplyEdits(ctx context.Context, def DatasetDefinition, b EditBatch) (*EditResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submissions = append(f.submissions, b)
	if f.submitErr != nil {
		return nil, f.submitErr
	}

	res := &EditResult{}
	for i, u := range b.Updates {
		res.UpdateResults = append(res.UpdateResults, f.outcome(i, u.ID))
	}
	for i, id := range b.Deletes {
		res.DeleteResults = append(res.DeleteResults, f.outcome(i, id))
	}
	if f.truncate > 0 && len(res.UpdateResults) > f.truncate {
		res.UpdateResults = res.UpdateResults[:f.truncate]
	}
	return res, nil
}

func (f *fakeStore) outcome(i int, id Value) ApplyOutcome {
	if err, ok := f.failIDs[id.Key(FieldNumeric)]; ok {
		return ApplyOutcome{Index: i, ID: id, Err: err}
	}
	return ApplyOutcome{Index: i, ID: id, Success: true}
}

func (f *fakeStore) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

// countingRefresher counts Refresh calls.
type countingRefresher struct {
	mu sync.Mutex
	n  int
}

func (c *countingRefresher) Refresh() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingRefresher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
