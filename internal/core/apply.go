package core

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/featuresync/internal/logging"
)

// DefaultSubmitTimeout bounds a single ApplyEdits request.
const DefaultSubmitTimeout = 2 * time.Minute

// errNoOutcome is the item error for a submitted item the store returned no
// outcome for.
var errNoOutcome = errors.New("no outcome returned for item")

// ApplyReport summarizes one submission.
type ApplyReport struct {
	NoOp      bool             `json:"no_op"`
	Submitted int              `json:"submitted"`
	Applied   []Value          `json:"applied"`
	Failed    []ItemApplyError `json:"failed"`
	Refreshed bool             `json:"refreshed"`
}

// Succeeded returns the number of items the store applied.
func (r *ApplyReport) Succeeded() int { return len(r.Applied) }

// Applier submits batches to a RecordStore and interprets the outcomes.
type Applier struct {
	store   RecordStore
	timeout time.Duration
}

// NewApplier returns an Applier whose submissions are bounded by timeout.
func NewApplier(store RecordStore, timeout time.Duration) *Applier {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &Applier{store: store, timeout: timeout}
}

// Apply submits every update of batch in a single request.
//
// An empty batch submits nothing and does not refresh. A request that fails
// as a whole returns a *SubmissionError and does not refresh. Otherwise each
// item's outcome is recorded, failures are logged individually, and refresh
// fires exactly once even when every item failed.
func (a *Applier) Apply(ctx context.Context, def DatasetDefinition, batch UpdateBatch, refresh Refresher) (*ApplyReport, error) {
	logger := logging.WithFields(ctx, "dataset", def.Key)

	if batch.IsEmpty() {
		logger.Info("no updates to apply")
		return &ApplyReport{NoOp: true}, nil
	}

	for _, u := range batch.Updates {
		logger.Debug("updating feature",
			"id", u.ID.String(),
			"fields", u.Fields(),
		)
	}

	res, err := a.submit(ctx, def, EditBatch{Updates: batch.Updates})
	if err != nil {
		return nil, err
	}

	ids := make([]Value, len(batch.Updates))
	for i, u := range batch.Updates {
		ids[i] = u.ID
	}
	report := a.interpret(ctx, def, ids, res.UpdateResults)

	fire(refresh)
	report.Refreshed = true
	return report, nil
}

// ApplyDeletes removes the identified records in a single request with the
// same outcome handling as Apply.
func (a *Applier) ApplyDeletes(ctx context.Context, def DatasetDefinition, ids []Value, refresh Refresher) (*ApplyReport, error) {
	if len(ids) == 0 {
		logging.WithFields(ctx, "dataset", def.Key).Info("no deletes to apply")
		return &ApplyReport{NoOp: true}, nil
	}

	res, err := a.submit(ctx, def, EditBatch{Deletes: ids})
	if err != nil {
		return nil, err
	}

	report := a.interpret(ctx, def, ids, res.DeleteResults)
	fire(refresh)
	report.Refreshed = true
	return report, nil
}

func (a *Applier) submit(ctx context.Context, def DatasetDefinition, eb EditBatch) (*EditResult, error) {
	items := len(eb.Updates) + len(eb.Deletes)

	submitCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	res, err := a.store.ApplyEdits(submitCtx, def, eb)
	if err == nil && res == nil {
		err = errors.New("store returned no result")
	}
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(submitCtx.Err(), context.DeadlineExceeded)
		logging.WithFields(ctx, "dataset", def.Key).Error("error applying edits",
			"items", items,
			"timeout", timedOut,
			"error", err,
		)
		return nil, &SubmissionError{Dataset: def.Key, Items: items, Timeout: timedOut, Err: err}
	}
	return res, nil
}

// interpret correlates outcomes to submitted items by position. Items past
// the end of outcomes are reported as failures.
func (a *Applier) interpret(ctx context.Context, def DatasetDefinition, ids []Value, outcomes []ApplyOutcome) *ApplyReport {
	logger := logging.WithFields(ctx, "dataset", def.Key)
	report := &ApplyReport{Submitted: len(ids)}

	if len(outcomes) > len(ids) {
		logger.Warn("store returned extra outcomes",
			"submitted", len(ids),
			"outcomes", len(outcomes),
		)
	}

	for i, id := range ids {
		if i >= len(outcomes) {
			report.Failed = append(report.Failed, ItemApplyError{Index: i, ID: id, Err: errNoOutcome})
			logger.Error("error updating feature", "index", i, "id", id.String(), "error", errNoOutcome)
			continue
		}

		out := outcomes[i]
		if out.Success {
			report.Applied = append(report.Applied, id)
			continue
		}

		cause := out.Err
		if cause == nil {
			cause = errors.New("rejected by store")
		}
		report.Failed = append(report.Failed, ItemApplyError{Index: i, ID: id, Err: cause})
		logger.Error("error updating feature", "index", i, "id", id.String(), "error", cause)
	}

	return report
}

func fire(r Refresher) {
	if r == nil {
		r = noopRefresher{}
	}
	r.Refresh()
}
