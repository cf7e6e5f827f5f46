package app

import (
	"context"
	"encoding/json"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/bobmcallan/persona-mcp/internal/apierr"
	"github.com/bobmcallan/persona-mcp/internal/cache"
	"github.com/bobmcallan/persona-mcp/internal/client"
	"github.com/bobmcallan/persona-mcp/internal/common"
	"github.com/bobmcallan/persona-mcp/internal/config"
	"github.com/bobmcallan/persona-mcp/internal/handlers"
	"github.com/bobmcallan/persona-mcp/internal/mcp"
	"github.com/bobmcallan/persona-mcp/internal/metrics"
	"github.com/bobmcallan/persona-mcp/internal/openapi"
	"github.com/bobmcallan/persona-mcp/internal/request"
	"github.com/bobmcallan/persona-mcp/internal/toolgen"
)

// App holds all application components and dependencies.
type App struct {
	Config  *config.Config
	Logger  *common.Logger
	Metrics *metrics.Collector

	Catalog   *mcp.Catalog
	MCPServer *mcpserver.MCPServer
	Cache     *cache.Cache[json.RawMessage]

	// HTTP handlers
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler
	MCPHandler     *mcp.Handler

	stopSweeper context.CancelFunc
	sweeperDone <-chan struct{}
}

// New loads the API description and builds the catalog. A description
// that cannot be loaded is fatal; individual bad operations are skipped.
func New(ctx context.Context, cfg *config.Config, logger *common.Logger) (*App, error) {
	doc, err := openapi.Load(ctx, cfg.Spec.Location)
	if err != nil {
		return nil, err
	}
	ops := openapi.Normalize(doc, openapi.Options{TagFilter: cfg.Spec.Tags}, logger)
	if len(ops) == 0 {
		return nil, apierr.New(apierr.KindSpecificationLoad, "%s: no operations after normalization", cfg.Spec.Location)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewCollector("persona_mcp"),
	}
	a.initCatalog(ops)
	a.initHandlers()

	logger.Info().
		Str("spec", cfg.Spec.Location).
		Int("operations", len(ops)).
		Msg("application initialization complete")

	return a, nil
}

// initCatalog wires client, dispatcher and cache into the catalog.
func (a *App) initCatalog(ops []openapi.Operation) {
	cfg := a.Config

	httpClient := client.New(client.Options{
		BaseURL:   cfg.API.BaseURL,
		APIKey:    cfg.API.APIKey,
		Headers:   cfg.RequestHeaders(),
		UserAgent: cfg.API.UserAgent,
	}, a.Logger)

	dispatcher := client.NewDispatcher(httpClient, a.Logger,
		client.WithRetryPolicy(client.RetryPolicy{
			MaxRetries: cfg.Retry.MaxRetries,
			BaseDelay:  cfg.Retry.GetBaseDelay(),
			MaxDelay:   cfg.Retry.GetMaxDelay(),
			Multiplier: cfg.Retry.Multiplier,
			Jitter:     cfg.Retry.Jitter,
		}),
		client.WithTimeout(cfg.API.GetAPITimeout()),
		client.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		client.WithMetrics(a.Metrics),
	)

	if cfg.Cache.Enabled {
		a.Cache = cache.New[json.RawMessage](cfg.Cache.GetTTL(), cfg.Cache.MaxEntries)
		ctx, cancel := context.WithCancel(context.Background())
		a.stopSweeper = cancel
		a.sweeperDone = a.Cache.StartSweeper(ctx, cfg.Cache.GetSweepInterval())
	}

	conv := cfg.Converter()
	a.Catalog = mcp.BuildCatalog(ops, mcp.Deps{
		Builder:    request.NewBuilder(conv, cfg.EnvelopeMode()),
		Dispatcher: dispatcher,
		Cache:      a.Cache,
		Metrics:    a.Metrics,
		Logger:     a.Logger,
		Options: toolgen.Options{
			IncludeOptionalQuery: cfg.Tools.IncludeOptionalQuery,
			Converter:            conv,
		},
		ResourceScheme: cfg.Tools.ResourceScheme,
	})
	a.MCPServer = mcp.NewServer(cfg.Server.Name, config.GetVersion(), a.Catalog)
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	a.HealthHandler = handlers.NewHealthHandler(a.Logger, func() (int, int) {
		return len(a.Catalog.Tools()), len(a.Catalog.Resources())
	})
	a.VersionHandler = handlers.NewVersionHandler(a.Logger)
	a.MCPHandler = mcp.NewHandler(a.MCPServer, a.Catalog, a.Config.Server.AuthToken, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Close stops the cache sweeper.
func (a *App) Close() error {
	if a.stopSweeper != nil {
		a.stopSweeper()
		<-a.sweeperDone
	}
	return nil
}
