package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"EthnoCards/internal/config"
	"EthnoCards/internal/infrastructure/affiliate"
	"EthnoCards/internal/infrastructure/images"
	"EthnoCards/internal/infrastructure/llm"
	"EthnoCards/internal/infrastructure/parser"
	"EthnoCards/internal/infrastructure/scheduler"
	"EthnoCards/internal/infrastructure/storage"
	"EthnoCards/internal/infrastructure/telegram"
	"EthnoCards/internal/logging"
	"EthnoCards/internal/ports"
	"EthnoCards/internal/quality"
	"EthnoCards/internal/server"
	"EthnoCards/internal/usecase"
	"EthnoCards/internal/vocab"
	"EthnoCards/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	store        *storage.Store
	catalog      *vocab.Catalog
	lifecycle    *usecase.Lifecycle
	orchestrator *usecase.Orchestrator
	poster       *usecase.Poster
	inventory    *usecase.Inventory
	channels     []usecase.Channel
}

// New opens the record store, loads reference data and builds every use case.
// A missing generator or bot token is not fatal here; the affected task
// reports it when it runs.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	catalog := vocab.NewCatalog(
		vocab.FileLoader(cfg.Pipeline.AllowlistPath, cfg.Pipeline.VocabularyPath),
		baseLogger.With("component", "vocab"),
	)
	catalog.Start(ctx)

	candidates := store.Candidates()
	cards := store.Cards()
	lifecycle := usecase.NewLifecycle(candidates, time.Now, baseLogger.With("component", "candidates"))

	httpClient := &http.Client{Timeout: 20 * time.Second}

	resolver, err := newImageResolver(cfg.Images, httpClient, baseLogger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var finder ports.AffiliateFinder
	if cfg.Affiliate.Enabled {
		finder = affiliate.NewIHerb(httpClient, "", cfg.Affiliate.RCode, baseLogger.With("component", "affiliate.iherb"))
	}

	orchestrator := usecase.NewOrchestrator(usecase.PipelineDeps{
		Lifecycle:    lifecycle,
		Cards:        cards,
		Sources:      parser.NewSourceFetcher(httpClient, catalog, nil, baseLogger.With("component", "sources")),
		Narrative:    newGenerator(ctx, cfg.LLM, baseLogger),
		Images:       resolver,
		Affiliate:    finder,
		Gate:         quality.New(catalog),
		Catalog:      catalog,
		SourcesLimit: cfg.Pipeline.SourcesLimit,
		CooldownDays: cfg.Pipeline.CooldownDays,
		Logger:       baseLogger.With("component", "pipeline"),
	})

	publisher := telegram.NewPublisher(cfg.Telegram.BotToken, cfg.Telegram.APIBase, httpClient)
	poster := usecase.NewPoster(usecase.PosterDeps{
		Cards:  cards,
		Send:   usecase.NewCardSender(publisher, catalog, baseLogger.With("component", "sender")),
		Logger: baseLogger.With("component", "poster"),
	})

	channels := make([]usecase.Channel, 0, len(cfg.Telegram.Channels))
	for _, ch := range cfg.Telegram.ActiveChannels() {
		channels = append(channels, usecase.Channel{ID: ch.ID, Lang: ch.Lang})
	}

	return &Application{
		cfg:          cfg,
		logger:       baseLogger,
		store:        store,
		catalog:      catalog,
		lifecycle:    lifecycle,
		orchestrator: orchestrator,
		poster:       poster,
		inventory:    usecase.NewInventory(candidates, cards, time.Now, baseLogger.With("component", "inventory")),
		channels:     channels,
	}, nil
}

func newImageResolver(cfg config.ImagesConfig, client *http.Client, log *slog.Logger) (*images.Resolver, error) {
	registry := images.NewDefaultRegistry(client, cfg.UserAgent)
	prober := images.NewProber(client, cfg.ProbeTimeout.Std(), cfg.MinBytes, cfg.UserAgent)
	resolver, err := images.NewResolver(registry, cfg.Providers, prober, log.With("component", "images"))
	if err != nil {
		return nil, fmt.Errorf("image providers: %w", err)
	}
	return resolver, nil
}

func newGenerator(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) ports.NarrativeGenerator {
	log = log.With("component", "llm", "provider", cfg.Provider)
	prompt, err := llm.LoadPrompt(cfg.PromptPath)
	if err != nil {
		log.Error("prompt not loaded", "error", err)
		return nil
	}
	if strings.EqualFold(cfg.Provider, "gemini") {
		client, err := llm.NewGeminiClient(ctx, cfg, prompt)
		if err != nil {
			log.Warn("narrative generator disabled", "error", err)
			return nil
		}
		return client
	}
	return llm.NewChatGPTClient(cfg, prompt)
}

// Close releases the record store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Lifecycle exposes candidate operations for operator commands.
func (a *Application) Lifecycle() *usecase.Lifecycle { return a.lifecycle }

// Inventory exposes reconcile and stats.
func (a *Application) Inventory() *usecase.Inventory { return a.inventory }

// Cards exposes the card store for bulk operator updates.
func (a *Application) Cards() ports.CardStore { return a.store.Cards() }

// Enrich processes explicit names when given, otherwise one candidate batch.
func (a *Application) Enrich(ctx context.Context, names []string) (usecase.BatchSummary, error) {
	if len(names) > 0 {
		return a.orchestrator.RunNames(ctx, names)
	}
	return a.orchestrator.RunBatch(ctx, a.cfg.Pipeline.CandidatesLimit)
}

// ChannelPost pairs a channel with its posting outcome.
type ChannelPost struct {
	usecase.Channel
	usecase.PostResult
}

// Post posts once to every enabled channel.
func (a *Application) Post(ctx context.Context) []ChannelPost {
	out := make([]ChannelPost, 0, len(a.channels))
	for _, ch := range a.channels {
		out = append(out, ChannelPost{Channel: ch, PostResult: a.poster.SelectAndPost(ctx, ch)})
	}
	if len(a.channels) == 0 {
		a.logger.Warn("no enabled channels configured")
	}
	return out
}

// Serve runs the HTTP triggers and the optional recurring jobs until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	srv := server.New(server.Deps{
		Poster:      a.poster,
		Enricher:    a.orchestrator,
		Catalog:     a.catalog,
		Channels:    a.channels,
		EnrichLimit: a.cfg.Pipeline.CandidatesLimit,
		Logger:      a.logger.With("component", "http"),
	})
	httpSrv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.New(a.logger, "http"),
	}

	jobs := []*usecase.Scheduler{
		usecase.NewScheduler("post",
			scheduler.NewIntervalScheduler(a.cfg.Scheduler.PostEvery.Std()),
			usecase.PostJob(a.poster, a.channels, a.logger.With("component", "scheduler.post")),
			a.logger.With("component", "scheduler")),
		usecase.NewScheduler("enrich",
			scheduler.NewIntervalScheduler(a.cfg.Scheduler.EnrichEvery.Std()),
			usecase.EnrichJob(a.orchestrator, a.cfg.Pipeline.CandidatesLimit, a.logger.With("component", "scheduler.enrich")),
			a.logger.With("component", "scheduler")),
	}
	for _, job := range jobs {
		if err := job.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for _, job := range jobs {
		if err := job.Stop(shutdownCtx); err != nil {
			a.logger.Error("stop scheduler", "error", err)
		}
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}
