// Package system builds the process-wide service graph. It is the single
// place where configuration turns into collaborators, so the serving loop,
// the one-shot console command and tests all wire things the same way.
package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ghostbot/internal/articulation"
	"ghostbot/internal/browser"
	"ghostbot/internal/config"
	"ghostbot/internal/logging"
	"ghostbot/internal/perception"
	"ghostbot/internal/prompt"
	"ghostbot/internal/session"
	"ghostbot/internal/shards/artist"
	"ghostbot/internal/shards/researcher"
	"ghostbot/internal/store"
	"ghostbot/internal/tools"
	"ghostbot/internal/tools/documents"
	"ghostbot/internal/tools/imaging"
	"ghostbot/internal/tools/research"
	"ghostbot/internal/transport"
	"ghostbot/internal/usage"

	"github.com/redis/go-redis/v9"
)

// Services is a fully wired bot instance. It is built once at boot and
// shared by every update handler.
type Services struct {
	Config    *config.Config
	Gate      *perception.KeyGate
	Store     *store.ContextStore
	Cache     *research.ResearchCache
	Searcher  *research.Searcher
	Pages     *research.Extractor
	Browser   *browser.SessionManager // nil unless headless rendering is enabled
	Imaging   *imaging.Client
	Documents *documents.Extractor
	Tools     *tools.Registry
	Executor  *session.Executor
	Cancels   *articulation.CancelRegistry
	Tracker   *usage.Tracker
}

// BootOptions overrides parts of the graph.
type BootOptions struct {
	// Factory builds a model per API key. Defaults to the Gemini client.
	Factory perception.ClientFactory
	// Backend replaces the configured context store backend.
	Backend store.Backend
}

// Boot wires every collaborator from cfg.
func Boot(ctx context.Context, cfg *config.Config, opts BootOptions) (_ *Services, err error) {
	timer := logging.StartTimer(logging.CategoryBoot, "Boot")
	defer timer.Stop()

	svc := &Services{Config: cfg, Cancels: articulation.NewCancelRegistry()}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	// 1. Usage accounting
	tracker, err := usage.NewTracker(cfg.Metrics.UsageFile)
	if err != nil {
		logging.BootWarn("Usage tracker unavailable, counting in memory: %v", err)
		tracker, _ = usage.NewTracker("")
	}
	svc.Tracker = tracker

	// 2. Model credentials
	factory := opts.Factory
	if factory == nil {
		factory = func(ctx context.Context, key string) (perception.Model, error) {
			return perception.NewGeminiClient(ctx, key, cfg.LLM, tracker)
		}
	}
	svc.Gate, err = perception.NewKeyGate(cfg.LLM.APIKeys, factory)
	if err != nil {
		return nil, fmt.Errorf("failed to create key gate: %w", err)
	}

	// 3. Conversation memory
	if svc.Store, err = OpenStore(ctx, cfg, opts.Backend); err != nil {
		return nil, err
	}
	persona := cfg.Persona

	// 4. Web collaborators
	svc.Cache = research.NewResearchCache(cfg.Research.CacheSize, cfg.GetCacheTTL())
	svc.Searcher = research.NewSearcher(research.SearchOptions{
		Region:     cfg.Research.Region,
		MaxResults: cfg.Research.MaxResults,
		Timeout:    cfg.GetSearchTimeout(),
		Cache:      svc.Cache,
	})
	extract := research.ExtractOptions{
		Timeout:   cfg.GetExtractionTimeout(),
		MinChars:  cfg.Extraction.MinChars,
		MaxBytes:  cfg.Extraction.MaxBytes,
		UserAgent: cfg.Extraction.UserAgent,
		Cache:     svc.Cache,
	}
	if cfg.Extraction.RenderWithBrowser {
		bcfg := browser.DefaultConfig()
		if cfg.Extraction.BrowserBin != "" {
			bcfg.Launch = []string{cfg.Extraction.BrowserBin}
		}
		// Started lazily on the first render.
		svc.Browser = browser.NewSessionManager(bcfg)
		extract.Renderer = svc.Browser
	}
	svc.Pages = research.NewExtractor(extract)

	// 5. Media collaborators
	svc.Imaging = imaging.NewClient(imaging.Config{
		Endpoint: cfg.Imaging.Endpoint,
		Token:    cfg.Imaging.APIToken,
		Timeout:  cfg.GetImagingTimeout(),
	})
	svc.Documents = documents.NewExtractor(cfg.Documents.MaxBytes)

	// 6. Tool registry for direct invocation
	svc.Tools = tools.NewRegistry()
	if err := research.RegisterAll(svc.Tools, svc.Searcher, svc.Pages, svc.Cache); err != nil {
		return nil, fmt.Errorf("failed to register research tools: %w", err)
	}
	if err := documents.RegisterAll(svc.Tools, svc.Documents); err != nil {
		return nil, fmt.Errorf("failed to register document tools: %w", err)
	}
	if err := imaging.RegisterAll(svc.Tools, svc.Imaging); err != nil {
		return nil, fmt.Errorf("failed to register imaging tools: %w", err)
	}

	// 7. Response flows
	rcfg := researcher.DefaultConfig()
	if cfg.Research.MaxResults > 0 {
		rcfg.MaxResults = cfg.Research.MaxResults
	}
	svc.Executor = session.NewExecutor(
		svc.Gate,
		svc.Store,
		researcher.NewCoordinator(svc.Searcher, rcfg),
		artist.NewPipeline(svc.Imaging),
		session.Config{Persona: persona},
	)

	logging.Boot("Services ready: %d key(s), %s memory, %d tool(s), browser=%t",
		svc.Gate.Size(), cfg.Memory.Driver, svc.Tools.Count(), svc.Browser != nil)
	return svc, nil
}

// Renderer returns a StreamRenderer delivering to tr. Every renderer shares
// the process-wide cancel registry.
func (s *Services) Renderer(tr transport.Transport) *articulation.Renderer {
	return articulation.NewRenderer(tr, s.Cancels, s.Executor, articulation.Config{
		EditInterval:     s.Config.GetEditInterval(),
		SummaryThreshold: s.Config.Render.SummaryThreshold,
		MessageLimit:     s.Config.Render.MessageLimit,
	})
}

// OpenStore builds the context store alone, for commands that only touch
// conversation memory. backend overrides the configured one when non-nil.
func OpenStore(ctx context.Context, cfg *config.Config, backend store.Backend) (*store.ContextStore, error) {
	loc, err := cfg.Memory.Location()
	if err != nil {
		return nil, err
	}
	if backend == nil {
		if backend, err = openBackend(ctx, cfg.Memory, loc); err != nil {
			return nil, err
		}
	}
	clock := prompt.Clock{Location: loc, Label: cfg.Memory.TimezoneLabel}
	persona := cfg.Persona
	return store.New(backend, store.Options{
		TTL:              cfg.GetSessionTTL(),
		FileContextLimit: cfg.Memory.FileContextLimit,
		SystemPrompt:     func() string { return prompt.System(persona, clock) },
	}), nil
}

func openBackend(ctx context.Context, cfg config.MemoryConfig, loc *time.Location) (store.Backend, error) {
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		logging.Boot("Context store: redis at %s", cfg.RedisAddr)
		return store.NewRedisBackend(client,
			store.WithPrefix(cfg.RedisPrefix),
			store.WithTTL(cfg.GetRedisTTL()),
			store.WithLocation(loc),
		), nil
	default:
		if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
		backend, err := store.NewSQLiteBackend(cfg.DatabasePath, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to open context database: %w", err)
		}
		logging.Boot("Context store: sqlite at %s", cfg.DatabasePath)
		return backend, nil
	}
}
