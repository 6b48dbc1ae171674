package plansync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/catalog"
	"github.com/sells-group/plansync/internal/collect"
	"github.com/sells-group/plansync/internal/model"
	"github.com/sells-group/plansync/internal/region"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = eris.New("plansync: a sync run is already in progress")

// DefaultRegionDelay is the pause between consecutive region collections.
const DefaultRegionDelay = 2 * time.Second

// sessionWriteTimeout bounds session log writes, which run detached from the
// run context so a timed-out run is still recorded.
const sessionWriteTimeout = 10 * time.Second

// Store is the catalog surface a run reads and, in apply mode, writes.
type Store interface {
	catalog.ProviderLookup
	Mutator
	ReadActiveEntries(ctx context.Context) ([]model.CatalogEntry, error)
}

// SessionLog persists session records.
type SessionLog interface {
	StartSession(ctx context.Context, s *model.Session) error
	FinishSession(ctx context.Context, s *model.Session) error
}

// Estimator generates fallback records for a region.
type Estimator interface {
	Estimate(region model.Region) ([]model.SourceRecord, error)
}

// EstimatorFactory builds the Estimator used by one run.
type EstimatorFactory func() Estimator

// Config holds the run parameters that do not change between runs.
type Config struct {
	Regions     []model.Region
	Tier        model.Tier
	Epsilon     float64
	RegionDelay time.Duration
}

// RunOpts selects the mode and regions of one run.
type RunOpts struct {
	Apply   bool     // run the Applier after diffing
	Regions []string // restrict to these region ids, in target-list order
}

// FinishHook is called with every finished session.
type FinishHook func(ctx context.Context, s *model.Session)

// Syncer drives the collect, dedupe, diff and apply pipeline. At most one run
// executes at a time.
type Syncer struct {
	collector    collect.Collector
	newEstimator EstimatorFactory
	store        Store
	sessions     SessionLog
	cfg          Config
	hooks        []FinishHook

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	newID func() string

	running atomic.Bool
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithSessionLog persists every session to log.
func WithSessionLog(log SessionLog) Option {
	return func(s *Syncer) { s.sessions = log }
}

// WithFinishHook registers a hook called after every run.
func WithFinishHook(h FinishHook) Option {
	return func(s *Syncer) { s.hooks = append(s.hooks, h) }
}

// WithSleep replaces the inter-region pause.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Syncer) { s.sleep = fn }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Syncer) { s.newID = fn }
}

// New creates a Syncer.
func New(collector collect.Collector, newEstimator EstimatorFactory, store Store, cfg Config, opts ...Option) *Syncer {
	if cfg.Tier == 0 {
		cfg.Tier = model.Tier1000
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultEpsilon
	}
	if cfg.RegionDelay < 0 {
		cfg.RegionDelay = 0
	}
	s := &Syncer{
		collector:    collector,
		newEstimator: newEstimator,
		store:        store,
		cfg:          cfg,
		sleep:        sleepCtx,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether a run is in progress.
func (s *Syncer) Running() bool {
	return s.running.Load()
}

// Run executes one synchronization run and returns its session. A run that
// fails still returns its session, with status failed; the error is reserved
// for runs that could not start.
func (s *Syncer) Run(ctx context.Context, opts RunOpts) (*model.Session, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	regions, err := region.Select(s.cfg.Regions, opts.Regions)
	if err != nil {
		return nil, eris.Wrap(err, "plansync: select regions")
	}

	mode := model.ModePreview
	if opts.Apply {
		mode = model.ModeApply
	}
	rec := NewRecorder(s.newID(), mode, s.now())
	log := zap.L().With(
		zap.String("component", "plansync.syncer"),
		zap.String("session_id", rec.sess.ID),
		zap.String("mode", string(mode)),
	)

	s.persistStart(ctx, log, rec.Snapshot())
	log.Info("sync run started", zap.Int("regions", len(regions)))

	var sess *model.Session
	if err := s.execute(ctx, log, rec, regions, opts.Apply); err != nil {
		log.Error("sync run failed", zap.Error(err))
		sess = rec.Fail(err, s.now())
	} else {
		sess = rec.Complete(s.now())
	}

	log.Info("sync run finished",
		zap.String("status", string(sess.Status)),
		zap.String("provenance", string(sess.Provenance)),
		zap.Int("total_plans", sess.TotalPlansFound),
		zap.Int("unique_plans", sess.UniquePlans),
		zap.Int("new", len(sess.NewPlans)),
		zap.Int("updated", len(sess.UpdatedPlans)),
		zap.Int("removed", len(sess.RemovedPlans)),
		zap.Int("warnings", len(sess.Warnings)),
		zap.Int("errors", len(sess.Errors)),
	)

	s.persistFinish(ctx, log, sess)
	for _, h := range s.hooks {
		h(context.WithoutCancel(ctx), sess)
	}
	return sess, nil
}

// execute runs the pipeline stages. Any returned error fails the session.
func (s *Syncer) execute(ctx context.Context, log *zap.Logger, rec *Recorder, regions []model.Region, apply bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("plansync: run panicked: %v", r)
		}
	}()

	snapshot, err := s.store.ReadActiveEntries(ctx)
	if err != nil {
		return eris.Wrap(err, "plansync: read catalog snapshot")
	}
	log.Info("catalog snapshot loaded", zap.Int("active_entries", len(snapshot)))

	raw, err := s.collectAll(ctx, log, rec, regions)
	if err != nil {
		return err
	}

	unique := Dedupe(raw)
	rec.SetUnique(len(unique))

	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "plansync: run interrupted")
	}

	diff, err := Diff(ctx, unique, snapshot, catalog.NewCachingResolver(s.store), DiffOptions{
		Tier:    s.cfg.Tier,
		Epsilon: s.cfg.Epsilon,
	})
	if err != nil {
		return err
	}
	rec.SetChanges(diff.Changes)
	if diff.Unresolved > 0 {
		log.Info("plans from unknown providers excluded", zap.Int("count", diff.Unresolved))
	}

	if !apply {
		return nil
	}

	res := NewApplier(s.store, s.cfg.Tier).Apply(ctx, diff.Changes)
	for _, w := range res.Warnings {
		rec.Warn(w)
	}
	// Writes that finished before the deadline are kept.
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "plansync: run interrupted")
	}
	return nil
}

// collectAll visits regions sequentially, falling back to the estimator for
// any region the collector cannot serve.
func (s *Syncer) collectAll(ctx context.Context, log *zap.Logger, rec *Recorder, regions []model.Region) ([]model.SourceRecord, error) {
	est := s.newEstimator()
	var raw []model.SourceRecord

	for i, r := range regions {
		if i > 0 && s.cfg.RegionDelay > 0 {
			if err := s.sleep(ctx, s.cfg.RegionDelay); err != nil {
				return nil, eris.Wrap(err, "plansync: run interrupted")
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "plansync: run interrupted")
		}

		rlog := log.With(zap.String("region", r.ID))
		out := s.collectRegion(ctx, rlog, r)
		if out.Available() {
			rlog.Info("region collected", zap.Int("records", len(out.Records)), zap.String("provenance", string(out.Provenance)))
			raw = append(raw, out.Records...)
			rec.RegionDone(r.ID, out.Provenance, len(out.Records))
			continue
		}

		rlog.Warn("primary source unavailable, estimating", zap.String("reason", out.Reason))
		rec.Warn(fmt.Sprintf("primary source unavailable for region %s, using estimated data", r.ID))

		records, err := est.Estimate(r)
		if err != nil {
			rlog.Error("estimation failed", zap.Error(err))
			rec.Error(fmt.Sprintf("estimation failed for region %s: %v", r.ID, err))
			continue
		}
		for j := range records {
			records[j].Provenance = model.ProvenanceEstimated
			records[j].RequiresVerification = true
			records[j].RegionID = r.ID
		}
		raw = append(raw, records...)
		rec.RegionDone(r.ID, model.ProvenanceEstimated, len(records))
	}
	return raw, nil
}

// collectRegion calls the collector for one region. A panic is reported as
// an Unavailable outcome so the region falls back to estimation.
func (s *Syncer) collectRegion(ctx context.Context, log *zap.Logger, r model.Region) (out collect.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("collector panicked", zap.Any("panic", p))
			out = collect.Unavailable(fmt.Sprintf("collector panicked: %v", p))
		}
	}()
	return s.collector.Collect(ctx, r)
}

func (s *Syncer) persistStart(ctx context.Context, log *zap.Logger, sess *model.Session) {
	if s.sessions == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionWriteTimeout)
	defer cancel()
	if err := s.sessions.StartSession(wctx, sess); err != nil {
		log.Warn("failed to record session start", zap.Error(err))
	}
}

func (s *Syncer) persistFinish(ctx context.Context, log *zap.Logger, sess *model.Session) {
	if s.sessions == nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionWriteTimeout)
	defer cancel()
	if err := s.sessions.FinishSession(wctx, sess); err != nil {
		log.Warn("failed to record session finish", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
