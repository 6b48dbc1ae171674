package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/plansync/internal/catalog"
	"github.com/sells-group/plansync/internal/collect"
	"github.com/sells-group/plansync/internal/config"
	"github.com/sells-group/plansync/internal/estimate"
	"github.com/sells-group/plansync/internal/fetcher"
	"github.com/sells-group/plansync/internal/model"
	"github.com/sells-group/plansync/internal/monitoring"
	"github.com/sells-group/plansync/internal/plansync"
	"github.com/sells-group/plansync/internal/region"
	"github.com/sells-group/plansync/internal/resilience"
	"github.com/sells-group/plansync/internal/review"
	"github.com/sells-group/plansync/pkg/notion"
)

// syncEnv holds the components shared by the sync and serve commands.
type syncEnv struct {
	Store   catalog.Store
	Syncer  *plansync.Syncer
	Alerter *monitoring.Alerter
}

// Close releases the catalog connection.
func (e *syncEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initSyncEnv opens the catalog and wires a Syncer from cfg.
func initSyncEnv(ctx context.Context) (*syncEnv, error) {
	regions, err := region.Load(cfg.Sync.RegionsFile)
	if err != nil {
		return nil, err
	}

	st, err := initCatalog(ctx)
	if err != nil {
		return nil, err
	}

	alerter := monitoring.NewAlerter(cfg.Monitoring)
	syncer, err := buildSyncer(cfg, st, regions, alerter)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &syncEnv{Store: st, Syncer: syncer, Alerter: alerter}, nil
}

// buildSyncer assembles the collector, estimator and finish hooks around st.
func buildSyncer(c *config.Config, st catalog.Store, regions []model.Region, alerter *monitoring.Alerter) (*plansync.Syncer, error) {
	tier, err := model.ParseTier(c.Sync.CompareTier)
	if err != nil {
		return nil, eris.Wrap(err, "sync.compare_tier")
	}

	collector, err := buildCollector(c.Source)
	if err != nil {
		return nil, err
	}

	opts := []plansync.Option{plansync.WithSessionLog(st)}
	if c.Monitoring.WebhookURL != "" && alerter != nil {
		opts = append(opts, plansync.WithFinishHook(alerter.NotifySession))
	}
	if c.Notion.Token != "" && c.Notion.ReviewDB != "" {
		queue := review.NewNotionQueue(notion.NewClient(c.Notion.Token), c.Notion.ReviewDB)
		opts = append(opts, plansync.WithFinishHook(reviewHook(queue)))
	}

	return plansync.New(collector, estimatorFactory(c.Sync), st, plansync.Config{
		Regions:     regions,
		Tier:        tier,
		Epsilon:     c.Sync.RateEpsilon,
		RegionDelay: time.Duration(c.Sync.RegionDelayMs) * time.Millisecond,
	}, opts...), nil
}

// buildCollector returns the collector for the configured source mode.
func buildCollector(src config.SourceConfig) (collect.Collector, error) {
	switch src.Mode {
	case "file":
		return collect.NewFileCollector(src.FixturesDir), nil
	case "http":
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:      src.UserAgent,
			Timeout:        time.Duration(src.TimeoutSecs) * time.Second,
			RequestsPerSec: src.RequestsPerSec,
		})
		breakerCfg := resilience.FromCircuitConfig(src.CircuitFailureThreshold, src.CircuitResetSecs)
		breakerCfg.OnStateChange = resilience.StateLogger("plan-source")
		return collect.NewHTTPCollector(
			f,
			src.BaseURL,
			resilience.FromRetryConfig(src.MaxAttempts, src.InitialBackoffMs),
			resilience.NewCircuitBreaker(breakerCfg),
		), nil
	default:
		return nil, eris.Errorf("unsupported source mode: %s", src.Mode)
	}
}

// estimatorFactory returns a factory building a fresh Estimator per run. A
// non-zero seed makes every run's fallback data identical.
func estimatorFactory(sc config.SyncConfig) plansync.EstimatorFactory {
	providers := sc.EstimatorProviders
	seed := sc.EstimatorSeed
	return func() plansync.Estimator {
		if seed != 0 {
			return estimate.NewSeeded(providers, seed)
		}
		return estimate.New(providers, nil)
	}
}

// reviewHook queues the new plans of completed sessions for review.
func reviewHook(queue *review.NotionQueue) plansync.FinishHook {
	return func(ctx context.Context, sess *model.Session) {
		if sess.Status != model.SessionCompleted || len(sess.NewPlans) == 0 {
			return
		}
		log := zap.L().With(zap.String("component", "review.hook"), zap.String("session_id", sess.ID))
		res, err := queue.Enqueue(ctx, sess)
		if err != nil {
			log.Warn("review queue incomplete", zap.Error(err))
		}
		log.Info("new plans queued for review",
			zap.Int("created", res.Created),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
	}
}
