// Package app wires configuration into a runnable clipper.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gn-clipper/news-clipper/internal/admission"
	"github.com/gn-clipper/news-clipper/internal/collector"
	"github.com/gn-clipper/news-clipper/internal/config"
	"github.com/gn-clipper/news-clipper/internal/enrich"
	"github.com/gn-clipper/news-clipper/internal/logger"
	"github.com/gn-clipper/news-clipper/internal/metrics"
	"github.com/gn-clipper/news-clipper/internal/pipeline"
	"github.com/gn-clipper/news-clipper/internal/publisher"
	"github.com/gn-clipper/news-clipper/internal/scorer"
	"github.com/gn-clipper/news-clipper/internal/store"
	"github.com/gn-clipper/news-clipper/pkg/broadcast"
	"github.com/gn-clipper/news-clipper/pkg/httpclient"
	"github.com/gn-clipper/news-clipper/pkg/providers"
	"github.com/gn-clipper/news-clipper/pkg/sink"
)

// App holds the long-lived pieces of a clipper process.
type App struct {
	Config   *config.Config
	Log      logger.Logger
	Store    *store.BoltStore
	Pipeline *pipeline.Orchestrator
	Registry *prometheus.Registry

	fanout *broadcast.Fanout
}

// OpenStore opens the seen-set described by cfg.
func OpenStore(cfg *config.Config) (*store.BoltStore, error) {
	return store.Open(store.Options{Path: cfg.Store.Path, OpenTimeout: cfg.Store.OpenTimeout})
}

// Build constructs every component. The caller must Close the App.
func Build(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	log = logger.Ensure(log)

	st, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Store: st, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.Registry)

	col := collector.New(
		providers.DefaultFetcherRegistry(httpclient.NewRestyClient(cfg.NewsSources.Timeout)),
		cfg.Providers,
		collector.Options{AllowedDomains: cfg.NewsSources.AllowedDomains, KeepUndated: cfg.NewsSources.KeepUndated},
		log,
	)

	judge, err := scorer.NewGeminiJudge(httpclient.NewRestyClient(cfg.Scorer.Timeout), scorer.GeminiOptions{
		Endpoint:        cfg.Scorer.Endpoint,
		Model:           cfg.Scorer.Model,
		APIKey:          cfg.Scorer.APIKey,
		Instructions:    cfg.Scorer.Instructions,
		Temperature:     cfg.Scorer.Temperature,
		MaxOutputTokens: cfg.Scorer.MaxOutputTokens,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build scorer: %w", err)
	}
	gateway := scorer.NewGateway(judge, scorer.Options{
		Categories:        cfg.Scorer.Categories,
		PriorityDomains:   cfg.Scorer.PriorityBonuses(),
		RequestsPerMinute: cfg.Scorer.RequestsPerMinute,
		Burst:             cfg.Scorer.Burst,
		RequestsPerDay:    cfg.Scorer.RequestsPerDay,
		CallTimeout:       cfg.Scorer.Timeout,
		Retry:             cfg.Scorer.Retry,
	}, log)

	notion, err := sink.NewNotion(httpclient.NewRestyClient(cfg.Sink.Timeout), sink.NotionOptions{
		Endpoint:   cfg.Sink.Notion.Endpoint,
		APIKey:     cfg.Sink.Notion.APIKey,
		DatabaseID: cfg.Sink.Notion.DatabaseID,
		Version:    cfg.Sink.Notion.Version,
		Properties: cfg.Sink.Notion.Properties,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("build sink: %w", err)
	}
	pub := publisher.New(notion, st, publisher.Options{
		Regions:     cfg.Publisher.Regions,
		Retry:       cfg.Sink.Retry,
		CallTimeout: cfg.Sink.Timeout,
	}, log)

	if cfg.Broadcast.File != "" {
		bcfgs, err := broadcast.LoadConfigs(cfg.Broadcast.File)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.fanout, err = broadcast.Build(ctx, broadcast.DefaultRegistry(), bcfgs, log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		log.InfoObj("broadcasters ready", "broadcast_init", map[string]any{"count": a.fanout.Len()})
	}

	deps := pipeline.Deps{
		Collector: col,
		Scorer:    gateway,
		Admission: admission.NewEngine(st, cfg.RelevanceThreshold, log, admission.WithClaimTTL(cfg.Store.ClaimTTL)),
		Publisher: pub,
		Metrics:   m,
		Logger:    log,
	}
	if a.fanout != nil {
		deps.Broadcaster = a.fanout
	}
	if cfg.Enrich.Enabled {
		deps.Enricher = enrich.NewScraper(httpclient.NewRestyClient(cfg.Enrich.Timeout), enrich.Options{
			MinBodyRunes: cfg.Enrich.MinBodyRunes,
			Workers:      cfg.Enrich.Workers,
			Delay:        cfg.Enrich.Delay,
			Headers:      cfg.Enrich.Headers,
		}, log)
	}

	a.Pipeline, err = pipeline.New(deps, pipeline.Options{
		Combinations: cfg.Combinations,
		RunTimeout:   cfg.RunTimeout,
		MaxArticles:  cfg.MaxArticlesPerRun,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Run executes one pipeline run. A zero lookback uses the configured default.
func (a *App) Run(ctx context.Context, name string, lookback time.Duration) (pipeline.Summary, error) {
	if lookback <= 0 {
		lookback = a.Config.DefaultLookback
	}
	return a.Pipeline.Run(ctx, name, lookback)
}

// Close releases the broadcasters and the seen-set file.
func (a *App) Close() error {
	var errs []error
	if a.fanout != nil {
		errs = append(errs, a.fanout.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
