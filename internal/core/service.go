package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/featuresync/internal/config"
	"github.com/JonMunkholm/featuresync/internal/logging"
	"github.com/JonMunkholm/featuresync/internal/metrics"
)

// DefaultFetchTimeout bounds the authoritative snapshot query.
const DefaultFetchTimeout = 30 * time.Second

// recordTimeout bounds writing a finished run to the recorder.
const recordTimeout = 5 * time.Second

// Service runs reconciliations and exports against a RecordStore.
// It keeps no state between runs apart from the run limiter.
type Service struct {
	store    RecordStore
	applier  *Applier
	limiter  *RunLimiter
	recorder RunRecorder
	notify   func(dataset string)

	fetchTimeout time.Duration
	dateLayout   string
	location     *time.Location
	historyLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithRefresher sets the function called after a submission that reached
// the store. It receives the dataset key.
func WithRefresher(fn func(dataset string)) Option {
	return func(s *Service) { s.notify = fn }
}

// WithRunRecorder persists every finished run to rec.
func WithRunRecorder(rec RunRecorder) Option {
	return func(s *Service) { s.recorder = rec }
}

// NewService creates a Service over store configured by cfg.
func NewService(store RecordStore, cfg config.ReconcileConfig, opts ...Option) *Service {
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = DefaultFetchTimeout
	}
	layout := cfg.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 50
	}

	s := &Service{
		store:        store,
		applier:      NewApplier(store, cfg.SubmitTimeout),
		limiter:      NewRunLimiter(cfg.MaxConcurrentRuns, cfg.RunWaitTime),
		fetchTimeout: fetchTimeout,
		dateLayout:   layout,
		location:     cfg.Location(),
		historyLimit: historyLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Datasets returns every registered dataset.
func (s *Service) Datasets() []DatasetDefinition {
	return All()
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// WaitForDrain blocks until no run is active or ctx ends.
func (s *Service) WaitForDrain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) refresherFor(dataset string) Refresher {
	if s.notify == nil {
		return noopRefresher{}
	}
	return RefreshFunc(func() { s.notify(dataset) })
}

// RunOptions controls a single reconciliation run.
type RunOptions struct {
	// DryRun stops after diffing and submits nothing.
	DryRun bool

	// OnPhase, if set, is called on every phase transition.
	OnPhase PhaseCallback
}

// RunReport describes a reconciliation run. It is returned for failed runs
// too, with Phase set to failed and Error describing the cause.
type RunReport struct {
	RunID    string   `json:"run_id"`
	Dataset  string   `json:"dataset"`
	FileName string   `json:"file_name"`
	Phase    RunPhase `json:"phase"`
	DryRun   bool     `json:"dry_run"`
	Bytes    int64    `json:"bytes"`

	Incoming   int `json:"incoming"`
	Matched    int `json:"matched"`
	Unchanged  int `json:"unchanged"`
	Unmatched  int `json:"unmatched"`
	Duplicates int `json:"duplicates"`
	MissingID  int `json:"missing_id"`

	Updates   []FieldUpdate    `json:"updates"`
	Submitted int              `json:"submitted"`
	Applied   []Value          `json:"applied"`
	Failed    []ItemApplyError `json:"failed"`
	NoOp      bool             `json:"no_op"`
	Refreshed bool             `json:"refreshed"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Result returns the metrics label for the run's outcome.
func (r *RunReport) Result() string {
	switch {
	case r.Phase == PhaseFailed:
		return metrics.ResultFailed
	case r.DryRun:
		return metrics.ResultDryRun
	case r.NoOp:
		return metrics.ResultNoOp
	case len(r.Failed) > 0:
		return metrics.ResultPartial
	default:
		return metrics.ResultApplied
	}
}

// RunRecord is a finished run plus the caller details kept for auditing.
type RunRecord struct {
	Report    RunReport
	IPAddress string
	UserAgent string
}

// RunSummary is one row of run history.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Dataset    string    `json:"dataset"`
	FileName   string    `json:"file_name"`
	Phase      RunPhase  `json:"phase"`
	DryRun     bool      `json:"dry_run"`
	Incoming   int       `json:"incoming"`
	Matched    int       `json:"matched"`
	Submitted  int       `json:"submitted"`
	Applied    int       `json:"applied"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Summary condenses a record into a history row.
func (rec RunRecord) Summary() RunSummary {
	r := rec.Report
	return RunSummary{
		RunID:      r.RunID,
		Dataset:    r.Dataset,
		FileName:   r.FileName,
		Phase:      r.Phase,
		DryRun:     r.DryRun,
		Incoming:   r.Incoming,
		Matched:    r.Matched,
		Submitted:  r.Submitted,
		Applied:    len(r.Applied),
		Failed:     len(r.Failed),
		Error:      r.Error,
		IPAddress:  rec.IPAddress,
		StartedAt:  r.StartedAt,
		DurationMs: r.DurationMs,
	}
}

// run carries the state of one in-flight reconciliation.
type run struct {
	report *RunReport
	opts   RunOptions
	logger *slog.Logger
	start  time.Time
}

func (r *run) transition(p RunPhase) {
	r.report.Phase = p
	r.logger.Debug("run phase", "phase", string(p))
	if r.opts.OnPhase != nil {
		r.opts.OnPhase(p, time.Now())
	}
}

// Reconcile decodes the CSV in src, diffs it against the authoritative
// records of the dataset and submits the resulting updates.
//
// Decoding and the authoritative fetch run concurrently. A decode error
// (*MalformedInputError) or fetch error (*FetchError) fails the run before
// anything is submitted. A submission error (*SubmissionError) fails the run
// without a refresh. Item failures do not fail the run; they are listed in
// RunReport.Failed.
//
// The returned report is non-nil whenever the run started, including when
// err is non-nil.
func (s *Service) Reconcile(ctx context.Context, key, fileName string, src io.Reader, opts RunOptions) (*RunReport, error) {
	def, err := Lookup(key)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	runID := uuid.NewString()
	r := &run{
		report: &RunReport{
			RunID:     runID,
			Dataset:   key,
			FileName:  fileName,
			Phase:     PhaseIdle,
			DryRun:    opts.DryRun,
			StartedAt: time.Now().UTC(),
		},
		opts:   opts,
		logger: logging.WithFields(ctx, "run_id", runID, "dataset", key),
		start:  time.Now(),
	}

	metrics.RunStarted()
	r.logger.Info("run started", "file", fileName, "dry_run", opts.DryRun)

	err = s.execute(ctx, def, src, r)

	report := r.report
	report.DurationMs = time.Since(r.start).Milliseconds()
	if err != nil {
		report.Error = err.Error()
		r.transition(PhaseFailed)
		r.logger.Error("run failed", "error", err, "duration_ms", report.DurationMs)
	} else {
		r.transition(PhaseDone)
		r.logger.Info("run completed",
			"matched", report.Matched,
			"submitted", report.Submitted,
			"applied", len(report.Applied),
			"failed", len(report.Failed),
			"duration_ms", report.DurationMs,
		)
	}

	metrics.RunFinished(key, report.Result(), time.Since(r.start), report.Submitted, len(report.Failed))
	s.record(ctx, r)

	return report, err
}

func (s *Service) execute(ctx context.Context, def DatasetDefinition, src io.Reader, r *run) error {
	r.transition(PhaseFetching)

	var incoming, authoritative []Record
	input := newCountingReader(src)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := Decode(input, def)
		if err != nil {
			return err
		}
		incoming = recs
		return nil
	})
	g.Go(func() error {
		recs, err := s.fetch(gctx, def, Query{})
		if err != nil {
			return err
		}
		authoritative = recs
		return nil
	})
	err := g.Wait()
	r.report.Bytes = input.BytesRead()
	if err != nil {
		return err
	}

	r.transition(PhaseDiffing)
	plan := Reconcile(authoritative, incoming, def)

	rep := r.report
	rep.Incoming = plan.Incoming
	rep.Matched = plan.Matched
	rep.Unchanged = plan.Unchanged
	rep.Unmatched = plan.Unmatched
	rep.Duplicates = plan.Duplicates
	rep.MissingID = plan.MissingID
	rep.Updates = plan.Batch.Updates

	r.logger.Info("diff computed",
		"bytes", rep.Bytes,
		"incoming", plan.Incoming,
		"matched", plan.Matched,
		"updates", plan.Batch.Len(),
		"unmatched", plan.Unmatched,
		"duplicates", plan.Duplicates,
	)

	if r.opts.DryRun {
		return nil
	}

	r.transition(PhaseSubmitting)
	ar, err := s.applier.Apply(ctx, def, plan.Batch, s.refresherFor(def.Key))
	if err != nil {
		return err
	}

	rep.Submitted = ar.Submitted
	rep.Applied = ar.Applied
	rep.Failed = ar.Failed
	rep.NoOp = ar.NoOp
	rep.Refreshed = ar.Refreshed
	return nil
}

// fetch reads the dataset from the store, bounded by the fetch timeout.
func (s *Service) fetch(ctx context.Context, def DatasetDefinition, q Query) ([]Record, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	recs, err := s.store.Query(fetchCtx, def, q)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(fetchCtx.Err(), context.DeadlineExceeded)
		return nil, &FetchError{Dataset: def.Key, Timeout: timedOut, Err: err}
	}
	return recs, nil
}

func (s *Service) record(ctx context.Context, r *run) {
	if s.recorder == nil {
		return
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	rec := RunRecord{
		Report:    *r.report,
		IPAddress: GetIPAddressFromContext(ctx),
		UserAgent: GetUserAgentFromContext(ctx),
	}
	if err := s.recorder.RecordRun(recCtx, rec); err != nil {
		r.logger.Warn("failed to record run", "error", err)
	}
}

// ListRuns returns recent runs of a dataset, newest first. limit <= 0 uses
// the configured history limit.
func (s *Service) ListRuns(ctx context.Context, key string, limit int) ([]RunSummary, error) {
	if _, err := Lookup(key); err != nil {
		return nil, err
	}
	if s.recorder == nil {
		return []RunSummary{}, nil
	}
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.recorder.ListRuns(ctx, key, limit)
}

// Export writes the dataset as CSV to w with latitude/longitude columns and
// returns the number of records written. Filters narrow the export; an
// empty FilterSet exports everything.
func (s *Service) Export(ctx context.Context, key string, filters FilterSet, w io.Writer) (int, error) {
	def, err := Lookup(key)
	if err != nil {
		return 0, err
	}

	recs, err := s.fetch(ctx, def, Query{Filters: filters, ReturnGeometry: true, OutFields: []string{"*"}})
	if err != nil {
		return 0, err
	}

	if err := WriteCSV(w, recs, ExportOptions(def, s.dateLayout, s.location)); err != nil {
		return 0, fmt.Errorf("write export: %w", err)
	}

	metrics.Exported(key, len(recs))
	logging.WithFields(ctx, "dataset", key).Info("export completed", "records", len(recs))
	return len(recs), nil
}

// DeleteRecords removes records by identifier. Identifiers are parsed with
// the dataset's identifier type; blank entries are ignored.
func (s *Service) DeleteRecords(ctx context.Context, key string, ids []string) (*ApplyReport, error) {
	def, err := Lookup(key)
	if err != nil {
		return nil, err
	}

	idType := def.TypeOf(def.IdentifierField)
	values := make([]Value, 0, len(ids))
	for _, raw := range ids {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		values = append(values, ParseCell(raw, idType))
	}

	report, err := s.applier.ApplyDeletes(ctx, def, values, s.refresherFor(key))
	if err != nil {
		return nil, err
	}

	logging.WithFields(ctx, "dataset", key).Info("delete completed",
		"requested", len(values),
		"deleted", len(report.Applied),
		"failed", len(report.Failed),
	)
	return report, nil
}
