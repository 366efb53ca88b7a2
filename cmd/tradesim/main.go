// Command tradesim runs a Tradewinds trading session: a weekly price and
// event clock with an HTTP control plane and SQLite save games.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/tradewinds/internal/api"
	"github.com/talgya/tradewinds/internal/config"
	"github.com/talgya/tradewinds/internal/engine"
	"github.com/talgya/tradewinds/internal/entropy"
	"github.com/talgya/tradewinds/internal/events"
	"github.com/talgya/tradewinds/internal/game"
	"github.com/talgya/tradewinds/internal/metrics"
	"github.com/talgya/tradewinds/internal/persistence"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("Tradewinds trading simulation",
		"difficulty", cfg.Difficulty,
		"max_weeks", cfg.MaxWeeks,
		"seed", cfg.Seed,
		"true_random", cfg.RandomOrgKey != "",
	)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Event Catalog ─────────────────────────────────────────────────
	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		slog.Error("failed to load event catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}

	// ── Simulation ────────────────────────────────────────────────────
	reg := metrics.NewRegistry()
	sim, err := engine.New(engine.Options{
		Difficulty:    game.Difficulty(cfg.Difficulty),
		MaxWeeks:      cfg.MaxWeeks,
		Seed:          cfg.Seed,
		StartLocation: cfg.StartLocation,
		Catalog:       catalog,
		RNG:           entropy.Choose(cfg.Seed, cfg.RandomOrgKey),
		Metrics:       reg,
	})
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}
	if changed, err := db.SyncContentVersion(sim); err != nil {
		slog.Error("failed to record content version", "error", err)
	} else if changed {
		slog.Warn("products or event catalog changed since the last run; saved games resume on the new content")
	}
	resumed := resume(db, sim)
	if !resumed {
		save(db, sim)
	}

	eng := engine.NewEngine(sim)

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("TRADESIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Sim:         sim,
		Eng:         eng,
		DB:          db,
		Metrics:     reg,
		Port:        cfg.APIPort,
		AdminKey:    cfg.AdminKey,
		CORSOrigins: cfg.CORSOrigins,
	}
	var httpServer interface {
		Shutdown(context.Context) error
	}
	if cfg.APIPort > 0 {
		httpServer = apiServer.Start()
	}

	// Stream every committed week; store its prices and autosave.
	eng.OnWeek = func(r engine.WeekReport) {
		apiServer.Broadcast(r)
		if err := db.RecordWeek(sim, r); err != nil {
			slog.Error("failed to record week", "game", sim.ID, "week", r.Week, "error", err)
		}
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := sim.State()
	fmt.Printf("\nTradewinds: %s at %s, week %d of %d, cash %s, debt %s.\n",
		st.Player.Name, st.LocationID(), st.Week, st.MaxWeeks,
		humanize.Comma(st.Player.Money), humanize.Comma(st.Player.Debt))
	if cfg.APIPort > 0 {
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	}

	if cfg.AutoplayWeeks > 0 {
		if err := eng.Start(); err != nil && !errors.Is(err, engine.ErrGameOver) {
			slog.Error("engine start failed", "error", err)
		}
		played := autoplay(ctx, eng, cfg.AutoplayWeeks)
		slog.Info("autoplay finished", "weeks", played, "outcome", sim.Outcome())
	} else if cfg.APIPort > 0 {
		fmt.Println("Waiting for API commands... (Ctrl+C to stop)")
		<-ctx.Done()
	}

	// Final save on shutdown.
	slog.Info("final save...")
	save(db, sim)
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", "error", err)
		}
	}

	st = sim.State()
	fmt.Printf("Session saved at week %d. Net worth %s.\n", st.Week, humanize.Comma(st.Player.NetWorth(st.Market)))
}

// setupLogging writes human-readable text to a terminal and JSON otherwise.
func setupLogging(level slog.Level) {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func loadCatalog(path string) (*events.Catalog, error) {
	if path == "" {
		return events.DefaultCatalog(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return events.LoadCatalog(f)
}

// resume restores the most recent unfinished game, if any.
func resume(db *persistence.DB, sim *engine.Simulation) bool {
	g, err := db.LatestGame()
	if errors.Is(err, persistence.ErrNotFound) {
		slog.Info("no saved game found, starting new session", "game", sim.ID)
		return false
	}
	if err != nil {
		slog.Error("failed to query saved games", "error", err)
		return false
	}
	if g.Outcome != "" {
		slog.Info("latest saved game already finished, starting new session", "previous", g.ID, "outcome", g.Outcome)
		return false
	}
	snap, err := db.LoadLatest(g.ID)
	if err != nil {
		slog.Error("failed to load snapshot", "game", g.ID, "error", err)
		return false
	}
	if err := sim.Restore(snap); err != nil {
		slog.Error("failed to restore snapshot, starting new session", "game", g.ID, "error", err)
		return false
	}
	st := sim.State()
	slog.Info("session resumed",
		"game", g.ID,
		"week", st.Week,
		"money", humanize.Comma(st.Player.Money),
		"saved", g.CreatedAt,
	)
	return true
}

func save(db *persistence.DB, sim *engine.Simulation) {
	if err := db.SaveSnapshot(sim.Snapshot()); err != nil {
		slog.Error("save failed", "game", sim.ID, "error", err)
	}
}

// autoplay advances up to weeks, answering every event with its first
// available option. Returns the number of weeks played.
func autoplay(ctx context.Context, eng *engine.Engine, weeks int) int {
	played := 0
	for played < weeks && ctx.Err() == nil {
		report, err := eng.AdvanceWeek(ctx)
		if err != nil {
			if !errors.Is(err, engine.ErrGameOver) && !errors.Is(err, context.Canceled) {
				slog.Error("advance failed", "error", err)
			}
			return played
		}
		played++
		resolvePending(eng.Sim)

		p := eng.Sim.State().Player
		slog.Info("autoplay week",
			"week", report.Week,
			"money", humanize.Comma(p.Money),
			"debt", humanize.Comma(p.Debt),
		)
		if report.Outcome != engine.OutcomeNone {
			return played
		}
	}
	return played
}

// resolvePending answers pending events, following chains, until none is left.
func resolvePending(sim *engine.Simulation) {
	for {
		def, ok := sim.Pending()
		if !ok {
			return
		}
		avail := def.AvailableOptions(sim.State())
		if len(avail) == 0 {
			slog.Warn("pending event has no available option", "event", def.ID)
			return
		}
		res, err := sim.ResolveEvent(avail[0])
		if err != nil {
			slog.Error("auto-resolve failed", "event", def.ID, "error", err)
			return
		}
		slog.Info("event resolved", "event", res.EventID, "option", res.Option, "result", res.Result)
	}
}
