// Package bootstrap assembles the pipeline components shared by the CLI
// commands: configuration, logging, database connections and the analysis
// service wiring.
package bootstrap

import (
	"fmt"
	"time"

	appanalysis "chainalyzer/internal/application/analysis"
	"chainalyzer/internal/domain/analysis"
	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/infrastructure/config"
	"chainalyzer/internal/infrastructure/database"
	"chainalyzer/internal/infrastructure/fixture"
	"chainalyzer/internal/infrastructure/provider"
	"chainalyzer/internal/infrastructure/repository"
	"chainalyzer/internal/shared/logger"
	"chainalyzer/internal/shared/sanitize"
)

// Options tweak the wiring per command.
type Options struct {
	// Fixture forces the in-memory seeded ticket store regardless of config.
	Fixture bool
	// Seed is the fixture RNG seed; zero derives one from the clock.
	Seed int64
	// SkipProvider leaves Service and Orchestrator nil; commands that only
	// read stored results use it to avoid requiring an API key.
	SkipProvider bool
}

// Components is the wired object graph handed to commands.
type Components struct {
	Config       *config.Config
	Logger       logger.Interface
	Service      *appanalysis.Service
	Orchestrator *appanalysis.Orchestrator
	Results      analysis.Repository
	Fixture      *fixture.Result
}

// Setup loads configuration, initializes logging and databases and wires the
// analysis pipeline. Callers own Teardown.
func Setup(opts Options) (*Components, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(&cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.NewLogger()

	if opts.Fixture {
		cfg.Ticketing.Fixture = true
	}

	if err := database.InitTicketing(&cfg.Ticketing); err != nil {
		return nil, err
	}
	if err := database.InitAuxiliary(&cfg.Auxiliary); err != nil {
		return nil, err
	}
	if err := database.InitAnalysisStore(&cfg.AnalysisStore); err != nil {
		return nil, err
	}

	comps := &Components{Config: cfg, Logger: log}

	if cfg.Ticketing.Fixture {
		seeder := fixture.NewSeeder(database.Ticketing(), opts.Seed, log)
		if err := seeder.EnsureSchema(); err != nil {
			return nil, fmt.Errorf("failed to create fixture schema: %w", err)
		}
		seeded, err := seeder.SeedChain(2, 3)
		if err != nil {
			return nil, fmt.Errorf("failed to seed fixture chain: %w", err)
		}
		comps.Fixture = seeded
		log.Infow("fixture chain seeded",
			"chain_hash", seeded.ChainHash, "example_ticket", seeded.ExampleTicket)
	}

	results, err := repository.NewAnalysisRepository(database.AnalysisStore())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analysis repository: %w", err)
	}
	comps.Results = results

	if opts.SkipProvider {
		return comps, nil
	}

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("provider.api_key is not configured (set CHAINALYZER_PROVIDER_API_KEY)")
	}

	var sink sanitize.Sink = sanitize.NopSink{}
	if cfg.Pipeline.DebugSinkDir != "" {
		sink = sanitize.NewDirSink(cfg.Pipeline.DebugSinkDir, log)
	}
	sanitizer := sanitize.New(sink, log)

	chains := repository.NewChainRepository(database.Ticketing(),
		cfg.Pipeline.ExcludedDepartments, cfg.Pipeline.ExcludedTypes, log)

	var aux chain.AuxiliarySource
	if auxDB := database.Auxiliary(); auxDB != nil {
		aux = repository.NewTurnupRepository(auxDB, log)
	} else if cfg.Ticketing.Fixture {
		// The fixture seeds turnup/dispatch task tables alongside the tickets.
		aux = repository.NewTurnupRepository(database.Ticketing(), log)
	}
	fetcher := repository.NewTicketRepository(database.Ticketing(), aux, sanitizer, sink, log)

	summarizer := provider.NewOpenAISummarizer(cfg.Provider.APIKey, cfg.Provider.Model, log)

	orch := appanalysis.NewOrchestrator(summarizer, results, config.SaveProviderIDs, appanalysis.Config{
		AgentID:         cfg.Provider.AgentID,
		CorpusID:        cfg.Provider.CorpusID,
		RequestTimeout:  time.Duration(cfg.Provider.RequestTimeoutSecs) * time.Second,
		PollInterval:    time.Duration(cfg.Provider.PollIntervalSecs) * time.Second,
		MaxRetries:      cfg.Provider.MaxRetries,
		ExcerptBudget:   cfg.Pipeline.ExcerptBudget,
		UnitConcurrency: cfg.Pipeline.UnitConcurrency,
		WorkDir:         cfg.Pipeline.WorkDir,
		PurgeRemote:     cfg.Provider.PurgeRemote,
	}, log)
	comps.Orchestrator = orch
	comps.Service = appanalysis.NewService(chains, fetcher, orch, cfg.Pipeline.BatchSize, log)

	return comps, nil
}

// Teardown closes the database connections.
func Teardown() {
	if err := database.Close(); err != nil {
		logger.Error("failed to close databases", "error", err)
	}
}
