// Command synapse is the main entry point for the Synapse dialogue server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synapsebot/synapse/internal/brain"
	"github.com/synapsebot/synapse/internal/config"
	"github.com/synapsebot/synapse/internal/dialogue"
	"github.com/synapsebot/synapse/internal/observe"
	"github.com/synapsebot/synapse/internal/sentiment"
	"github.com/synapsebot/synapse/internal/server"
	"github.com/synapsebot/synapse/internal/session"
	"github.com/synapsebot/synapse/internal/spell"
	"github.com/synapsebot/synapse/internal/template"
	"github.com/synapsebot/synapse/pkg/graph"
	"github.com/synapsebot/synapse/pkg/graph/neo4j"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "synapse: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "synapse: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("synapse starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}

	// ── Rule library ──────────────────────────────────────────────────────────
	idx, err := brain.LoadIndex(cfg.Brain.RulePaths)
	if err != nil {
		slog.Error("failed to load rule library", "err", err)
		return 1
	}
	brn := brain.New(idx)
	slog.Info("rule library loaded", "rules", idx.Len(), "paths", cfg.Brain.RulePaths)

	// ── Spell correction ──────────────────────────────────────────────────────
	var corrector *spell.Corrector
	if cfg.Spell.Enabled {
		corrector = spell.NewCorrector(idx.Lexicon(),
			spell.WithPhoneticThreshold(cfg.Spell.PhoneticThreshold),
			spell.WithFuzzyThreshold(cfg.Spell.FuzzyThreshold),
		)
		slog.Info("spell correction enabled", "lexicon_words", len(idx.Lexicon()))
	}

	// ── Knowledge graph (optional) ────────────────────────────────────────────
	var (
		querier     graph.Querier
		recorder    graph.Recorder
		graphClient *neo4j.Client
	)
	if cfg.Graph.URI != "" {
		graphClient, err = neo4j.New(ctx, neo4j.Config{
			URI:      cfg.Graph.URI,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
			Database: cfg.Graph.Database,
		})
		if err != nil {
			slog.Error("failed to connect to knowledge graph", "err", err)
			return 1
		}
		querier = graphClient
		recorder = graphClient
		slog.Info("knowledge graph connected", "uri", cfg.Graph.URI)
	} else {
		slog.Info("knowledge graph disabled, graph queries resolve to placeholder text")
	}

	// ── Sessions ──────────────────────────────────────────────────────────────
	sessions := session.NewStore(session.Config{
		HistoryLimit:   cfg.Session.HistoryLimit,
		IdleTimeout:    cfg.Session.IdleTimeout.Std(),
		TrendSmoothing: cfg.Session.TrendSmoothing,
		Metrics:        observe.DefaultMetrics(),
	})
	go sessions.Run(ctx, cfg.Session.SweepInterval.Std())

	// ── Orchestrator ──────────────────────────────────────────────────────────
	resolver := &template.Resolver{
		Querier:       querier,
		QueryTimeout:  cfg.Graph.QueryTimeout.Std(),
		Separator:     cfg.Graph.Separator,
		NotFound:      cfg.Graph.NotFoundText,
		Fallback:      cfg.Brain.DefaultResponse,
		DepthLimit:    cfg.Brain.RecursionLimit,
		ToneThreshold: cfg.Sentiment.ToneThreshold,
		Metrics:       observe.DefaultMetrics(),
	}

	orchestrator, err := dialogue.New(dialogue.Config{
		Brain:           brn,
		Sessions:        sessions,
		Analyzer:        sentiment.NewAnalyzer(),
		Resolver:        resolver,
		Corrector:       corrector,
		Recorder:        recorder,
		Bot:             cfg.Bot,
		DefaultResponse: cfg.Brain.DefaultResponse,
	})
	if err != nil {
		slog.Error("failed to initialise orchestrator", "err", err)
		return 1
	}

	// ── Rule hot reload on SIGHUP ─────────────────────────────────────────────
	go reloadOnSignal(ctx, brn, corrector, cfg.Brain.RulePaths)

	// ── HTTP server ───────────────────────────────────────────────────────────
	checkers := []server.Checker{server.BrainChecker(brn)}
	if graphClient != nil {
		checkers = append(checkers, server.GraphChecker(graphClient))
	}
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.New(orchestrator, server.NewHealth(checkers...), nil, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	slog.Info("server ready, press Ctrl+C to shut down", "listen_addr", cfg.Server.ListenAddr)

	select {
	case err := <-serveErr:
		slog.Error("serve error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if graphClient != nil {
		if err := graphClient.Close(shutdownCtx); err != nil {
			slog.Warn("knowledge graph close error", "err", err)
		}
	}
	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Warn("metrics shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// reloadOnSignal rebuilds the rule index on SIGHUP. A failed reload keeps the
// live index serving. The spell corrector follows the index so that words
// introduced by reloaded rules stay in the lexicon.
func reloadOnSignal(ctx context.Context, brn *brain.Brain, corrector *spell.Corrector, paths []string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := brn.Reload(paths); err != nil {
				slog.Error("rule reload failed, keeping live index", "err", err)
				continue
			}
			if corrector != nil {
				corrector.Rebuild(brn.Index().Lexicon())
			}
			slog.Info("rule library reloaded", "rules", brn.Index().Len())
		}
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
