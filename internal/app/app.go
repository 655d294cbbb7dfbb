// Package app builds the long-lived services behind each pipeline stage and
// acts as the dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	gpubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/gorbunovakris4/hse-crawler/internal/clock/system"
	"github.com/gorbunovakris4/hse-crawler/internal/config"
	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
	"github.com/gorbunovakris4/hse-crawler/internal/dispatcher"
	"github.com/gorbunovakris4/hse-crawler/internal/extractor"
	collyfetcher "github.com/gorbunovakris4/hse-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/gorbunovakris4/hse-crawler/internal/fetcher/headless"
	"github.com/gorbunovakris4/hse-crawler/internal/frontier"
	"github.com/gorbunovakris4/hse-crawler/internal/graph"
	"github.com/gorbunovakris4/hse-crawler/internal/hash/sha256"
	"github.com/gorbunovakris4/hse-crawler/internal/id/uuid"
	"github.com/gorbunovakris4/hse-crawler/internal/metrics"
	"github.com/gorbunovakris4/hse-crawler/internal/orchestrator"
	pubmemory "github.com/gorbunovakris4/hse-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/gorbunovakris4/hse-crawler/internal/publisher/pubsub"
	"github.com/gorbunovakris4/hse-crawler/internal/rank"
	"github.com/gorbunovakris4/hse-crawler/internal/records"
	"github.com/gorbunovakris4/hse-crawler/internal/storage/gcs"
	"github.com/gorbunovakris4/hse-crawler/internal/storage/local"
	"github.com/gorbunovakris4/hse-crawler/internal/storage/memory"
	"github.com/gorbunovakris4/hse-crawler/internal/storage/postgres"
	"github.com/gorbunovakris4/hse-crawler/internal/worker"
)

// rankSink receives the ranked pages after a solve.
type rankSink interface {
	EnsureSchema(ctx context.Context) error
	Replace(ctx context.Context, rows []postgres.RankRow) error
	Close()
}

// App holds the shared services for one CLI invocation.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	blobs   crawler.BlobStore
	records *records.Store
	idGen   crawler.IDGenerator
	clock   crawler.Clock

	openRankSink func(ctx context.Context) (rankSink, error)
	closers      []func()
}

// New creates the storage layer shared by every stage. Stage-specific
// services are built on demand by NewCrawl, BuildGraph and RankPages.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
		idGen:  uuid.New(),
		clock:  system.New(),
	}
	a.openRankSink = a.openPostgres

	blobs, err := a.newBlobStore(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	a.blobs = blobs
	a.records = records.New(blobs, sha256.New(), cfg.Storage.RecordsPrefix)
	logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Blobs exposes the configured blob store.
func (a *App) Blobs() crawler.BlobStore {
	return a.blobs
}

// Records exposes the crawl record store.
func (a *App) Records() *records.Store {
	return a.records
}

// Close releases every service opened by the App, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// OnClose registers fn to run when the App is closed.
func (a *App) OnClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) newBlobStore(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageLocal:
		return local.New(local.Config{BaseDir: a.cfg.Storage.BaseDir})
	case config.StorageMemory:
		return memory.NewBlobStore(), nil
	case config.StorageGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.OnClose(func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		return gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

// ExtractorConfig maps the extractor section onto extractor options.
func ExtractorConfig(cfg config.ExtractorConfig) extractor.Config {
	return extractor.Config{
		HeaderTags:             cfg.HeaderTags,
		TextTags:               cfg.TextTags,
		SaveContent:            cfg.SaveContent,
		SaveHeaderArticlePairs: cfg.SaveHeaderArticlePairs,
		MainContentClasses:     cfg.MainContentClasses,
		BlacklistClasses:       cfg.BlacklistClasses,
		BlacklistTags:          cfg.BlacklistTags,
		DomainSuffix:           cfg.DomainSuffix,
	}
}

// NewCrawl wires a fresh orchestrator with its worker pool. Fetcher and
// publisher resources are released by Close.
func (a *App) NewCrawl(ctx context.Context) (*orchestrator.Orchestrator, error) {
	runID, err := a.idGen.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	fetcher, err := a.newFetcher()
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	ext, err := extractor.New(ExtractorConfig(a.cfg.Extractor))
	if err != nil {
		return nil, fmt.Errorf("init extractor: %w", err)
	}
	publisher, topic, err := a.newPublisher(ctx)
	if err != nil {
		return nil, fmt.Errorf("init publisher: %w", err)
	}

	logger := a.logger.With(zap.String("run_id", runID))
	workers := make([]*worker.Worker, 0, a.cfg.Crawler.Workers)
	for i := 0; i < a.cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(
			fetcher,
			ext,
			a.clock,
			worker.Config{RunID: runID},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}

	return orchestrator.New(
		frontier.New(),
		frontier.NewVisitedSet(),
		dispatcher.New(workers),
		a.records,
		publisher,
		orchestrator.Config{
			RunID:       runID,
			IdleTimeout: a.cfg.Crawler.IdleTimeout,
			Topic:       topic,
		},
		a.logger.Named("orchestrator"),
	), nil
}

func (a *App) newFetcher() (crawler.Fetcher, error) {
	fc := a.cfg.Fetcher
	switch fc.Mode {
	case config.FetcherModeHeadless:
		f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       fc.MaxParallel,
			UserAgents:        fc.UserAgents,
			NavigationTimeout: a.cfg.MaxFetchDuration(),
		})
		if err != nil {
			return nil, err
		}
		a.OnClose(f.Close)
		return f, nil
	case config.FetcherModeHTTP, "":
		return collyfetcher.New(collyfetcher.Config{
			UserAgents:     fc.UserAgents,
			ConnectTimeout: fc.ConnectTimeout,
			ReadTimeout:    fc.ReadTimeout,
			MaxBodyBytes:   fc.MaxBodyBytes,
		}), nil
	default:
		return nil, fmt.Errorf("unknown fetcher mode %q", fc.Mode)
	}
}

// newPublisher returns a nil publisher and empty topic when notifications
// are disabled.
func (a *App) newPublisher(ctx context.Context) (crawler.Publisher, string, error) {
	nc := a.cfg.Notify
	if !nc.Enabled {
		return nil, "", nil
	}
	switch nc.Backend {
	case config.NotifyMemory:
		return pubmemory.New(), nc.Topic, nil
	case config.NotifyPubSub:
		client, err := gpubsub.NewClient(ctx, nc.ProjectID)
		if err != nil {
			return nil, "", fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		a.OnClose(func() {
			pub.Stop()
			if err := client.Close(); err != nil {
				a.logger.Warn("close pubsub client", zap.Error(err))
			}
		})
		return pub, nc.Topic, nil
	default:
		return nil, "", fmt.Errorf("unknown notify backend %q", nc.Backend)
	}
}

// BuildGraph reads every persisted record and writes the graph artifacts.
func (a *App) BuildGraph(ctx context.Context) (*graph.Graph, error) {
	g, err := graph.NewBuilder(a.records, a.logger.Named("graph")).Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := graph.WriteArtifacts(ctx, a.blobs, a.cfg.Graph.Dir, g); err != nil {
		return nil, err
	}
	a.logger.Info("graph written",
		zap.String("dir", a.cfg.Graph.Dir),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("skipped", g.Skipped),
	)
	return g, nil
}

// RankReport is what RankPages produced.
type RankReport struct {
	Result rank.Result
	Nodes  []graph.Node
	URI    string
}

// RankPages loads the graph artifacts, solves for ranks and stores them.
func (a *App) RankPages(ctx context.Context) (RankReport, error) {
	nodes, err := graph.LoadNodes(ctx, a.blobs, a.cfg.Graph.Dir)
	if err != nil {
		return RankReport{}, err
	}
	edges, err := graph.LoadEdges(ctx, a.blobs, a.cfg.Graph.Dir, len(nodes))
	if err != nil {
		return RankReport{}, err
	}

	start := time.Now()
	result, err := rank.Solve(len(nodes), edges, rank.Options{
		Damping:       a.cfg.Rank.Damping,
		Tolerance:     a.cfg.Rank.Tolerance,
		MaxIterations: a.cfg.Rank.MaxIterations,
	})
	if err != nil {
		return RankReport{}, err
	}
	metrics.ObserveRank(result.Iterations, result.Converged, result.Delta)
	logger := a.logger.Named("rank")
	if !result.Converged {
		logger.Warn("rank did not converge",
			zap.Int("iterations", result.Iterations),
			zap.Float64("delta", result.Delta),
		)
	}

	uri, err := rank.WriteArtifact(ctx, a.blobs, path.Join(a.cfg.Rank.Dir, rank.RanksFile), result.Ranks)
	if err != nil {
		return RankReport{}, err
	}
	logger.Info("ranks written",
		zap.String("uri", uri),
		zap.Int("nodes", len(nodes)),
		zap.Int("edges", len(edges)),
		zap.Int("iterations", result.Iterations),
		zap.Bool("converged", result.Converged),
		zap.Duration("duration", time.Since(start)),
	)

	if a.cfg.Rank.Postgres.Enabled {
		if err := a.storeRanks(ctx, nodes, result.Ranks); err != nil {
			return RankReport{}, err
		}
	}
	return RankReport{Result: result, Nodes: nodes, URI: uri}, nil
}

func (a *App) storeRanks(ctx context.Context, nodes []graph.Node, ranks []float64) error {
	sink, err := a.openRankSink(ctx)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.EnsureSchema(ctx); err != nil {
		return err
	}
	rows := make([]postgres.RankRow, len(nodes))
	for i, n := range nodes {
		rows[i] = postgres.RankRow{ID: n.ID, URL: n.URL, Rank: ranks[i]}
	}
	if err := sink.Replace(ctx, rows); err != nil {
		return fmt.Errorf("store ranks: %w", err)
	}
	a.logger.Info("ranks stored in postgres", zap.Int("rows", len(rows)))
	return nil
}

func (a *App) openPostgres(ctx context.Context) (rankSink, error) {
	pc := a.cfg.Rank.Postgres
	if pc.DSN == "" {
		return nil, errors.New("rank.postgres.dsn is required")
	}
	return postgres.NewRankStore(ctx, postgres.RankStoreConfig{
		DSN:             pc.DSN,
		Table:           pc.Table,
		MaxConns:        pc.MaxConns,
		MaxConnLifetime: pc.MaxConnLifetime,
	})
}
