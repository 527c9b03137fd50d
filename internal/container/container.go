package container

import (
	"fmt"
	"log"

	"answergate/adapters/codex"
	"answergate/adapters/memory"
	"answergate/adapters/openaigen"
	"answergate/adapters/postgres"
	"answergate/adapters/sqlite"
	"answergate/app"
	"answergate/internal/config"
	"answergate/internal/policy"
	"answergate/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	// Adapters
	Oracle ports.ScoringOracle
	Store  ports.RemediationStore

	// Services
	Gate  *app.GateService
	Sweep *app.SweepService
	RAG   *app.RAGService // nil unless an OpenAI key is configured

	closers []func() error
}

// New creates a dependency injection container and wires everything that
// does not need a live database
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{Config: cfg}

	oracle, err := codex.NewClient(codex.Config{
		APIKey:        cfg.Oracle.APIKey,
		BaseURL:       cfg.Oracle.BaseURL,
		Model:         cfg.Oracle.Model,
		QualityPreset: cfg.Oracle.QualityPreset,
		Timeout:       cfg.Oracle.Timeout,
		MaxRetries:    cfg.Oracle.MaxRetries,
		RetryBackoff:  cfg.Oracle.RetryBackoff,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scoring oracle: %w", err)
	}
	c.Oracle = oracle

	if err := c.initStore(); err != nil {
		return nil, err
	}

	// The postgres backend finishes wiring in InitWithDatabase.
	if c.Store != nil {
		if err := c.initServices(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// initStore wires every backend except postgres, which needs a DB handle
func (c *Container) initStore() error {
	cfg := c.Config
	switch cfg.Store.Backend {
	case "memory":
		c.Store = memory.NewStore(cfg.Store.SimilarityThreshold)
		log.Printf("[Container] Using in-memory remediation store")
	case "sqlite":
		repo, err := sqlite.Open(cfg.Store.SQLitePath, cfg.Store.SimilarityThreshold)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		c.Store = repo
		c.closers = append(c.closers, repo.Close)
		log.Printf("[Container] Using sqlite remediation store at %s", cfg.Store.SQLitePath)
	case "remote":
		client, err := codex.NewProjectClient(codex.ProjectConfig{
			APIKey:    cfg.Store.RemoteAPIKey,
			BaseURL:   cfg.Store.RemoteBaseURL,
			ProjectID: cfg.Store.ProjectID,
			Timeout:   cfg.Store.Timeout,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize remote store: %w", err)
		}
		c.Store = client
		log.Printf("[Container] Using remote remediation store (project %s)", cfg.Store.ProjectID)
	case "postgres":
		// Deferred to InitWithDatabase.
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return nil
}

// InitWithDatabase wires the postgres store backend and the services on top
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if _, err := db.Exec(postgres.Schema()); err != nil {
		return fmt.Errorf("failed to ensure store schema: %w", err)
	}

	c.Store = postgres.NewEntryRepository(db, c.Config.Store.SimilarityThreshold)
	log.Printf("[Container] Using postgres remediation store")

	return c.initServices()
}

func (c *Container) initServices() error {
	rules, err := policy.LoadRules(c.Config.Gate.ThresholdsFile)
	if err != nil {
		return fmt.Errorf("failed to load threshold rules: %w", err)
	}

	gateService, err := app.NewGateService(c.Oracle, c.Store, app.GateOptions{
		Rules:    rules,
		FailMode: c.Config.Gate.FailMode,
		Metrics:  c.Config.Oracle.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize gate service: %w", err)
	}
	c.Gate = gateService

	sweep, err := app.NewSweepService(gateService, 4)
	if err != nil {
		return fmt.Errorf("failed to initialize sweep service: %w", err)
	}
	c.Sweep = sweep

	if c.Config.OpenAI.APIKey != "" {
		generator := openaigen.NewGenerator(openaigen.Config{
			APIKey:      c.Config.OpenAI.APIKey,
			Model:       c.Config.OpenAI.Model,
			Temperature: c.Config.OpenAI.Temperature,
		})
		rag, err := app.NewRAGService(generator, gateService, c.Config.Gate.FallbackAnswer)
		if err != nil {
			return fmt.Errorf("failed to initialize rag service: %w", err)
		}
		c.RAG = rag
		log.Printf("[Container] Generation wrapper enabled (model %s)", c.Config.OpenAI.Model)
	}

	log.Printf("[Container] Container initialized (rules: %d metrics, fail mode: %s)", len(rules), c.Config.Gate.FailMode)
	return nil
}

// Close releases owned resources
func (c *Container) Close() error {
	var firstErr error
	for _, closer := range c.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
