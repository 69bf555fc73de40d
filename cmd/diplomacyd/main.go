// Command diplomacyd runs a persistent kingdom diplomacy world: it loads or
// seeds the world, ticks it, serves the API and saves on a schedule.
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

	"github.com/talgya/kingdoms/internal/api"
	"github.com/talgya/kingdoms/internal/config"
	"github.com/talgya/kingdoms/internal/engine"
	"github.com/talgya/kingdoms/internal/entropy"
	"github.com/talgya/kingdoms/internal/persistence"
)

func main() {
	rt, err := config.LoadRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: rt.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("kingdoms diplomacy daemon")

	tuning, err := rt.Tuning()
	if err != nil {
		slog.Error("failed to load tuning", "path", rt.TuningPath, "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(rt.DBPath), 0755)
	db, err := persistence.Open(rt.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", rt.DBPath)

	// ── Load or Generate World State ─────────────────────────────────
	rng := entropy.NewSeeded(rt.Seed)
	var (
		w    *engine.World
		host *engine.Host
	)
	snap, rep, err := db.LoadWorld()
	switch {
	case err == nil:
		slog.Info("found saved world state, loading...")
		var restoreRep persistence.Report
		w, host, restoreRep, err = persistence.Restore(snap, tuning, rng)
		if err != nil {
			slog.Error("failed to restore world", "error", err)
			os.Exit(1)
		}
		if dropped := rep.Total() + restoreRep.Total(); dropped > 0 {
			slog.Warn("saved state had unusable entries", "dropped", dropped, "load", rep.String(), "restore", restoreRep.String())
		}
		slog.Info("world state restored",
			"kingdoms", len(host.Roster.All()),
			"tick", w.LastTick,
			"sim_time", engine.SimTime(w.LastTick),
		)
	case errors.Is(err, persistence.ErrNoWorld):
		slog.Info("no saved state found, generating new world...", "seed", rt.Seed)
		host = engine.SeedHost(rt.Seed, tuning.World)
		w, err = engine.NewWorld(tuning, host.Deps(rng))
		if err != nil {
			slog.Error("failed to create world", "error", err)
			os.Exit(1)
		}
		engine.SeedRelations(w.Factions, host.Roster.Autonomous())
		for _, k := range host.Roster.Autonomous() {
			slog.Info("kingdom founded", "id", k.ID, "name", k.DisplayName(), "seat", host.Atlas.Seats[k.ID].Coord)
		}
		if err := db.SaveWorld(persistence.Capture(w, host)); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	default:
		slog.Error("failed to load world", "error", err)
		os.Exit(1)
	}

	// ── Clock ─────────────────────────────────────────────────────────
	hub := api.NewHub()
	w.SetNotifier(hub)

	clock := engine.NewClock(w, time.Duration(rt.TickMillis)*time.Millisecond)
	save := func() {
		var s persistence.Snapshot
		clock.Do(func(w *engine.World) error {
			s = persistence.Capture(w, host)
			return nil
		})
		if err := db.SaveWorld(s); err != nil {
			slog.Error("autosave failed", "tick", s.Tick, "error", err)
		}
	}
	clock.AutosaveEvery = rt.AutosaveTicks
	clock.OnAutosave = func(uint64) { save() }

	// ── HTTP API ──────────────────────────────────────────────────────
	if rt.AdminKey == "" {
		slog.Warn("KINGDOMS_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}
	apiServer := &api.Server{
		Clock:       clock,
		Host:        host,
		Hub:         hub,
		DB:          db,
		Port:        rt.APIPort,
		AdminKey:    rt.AdminKey,
		SnapshotDir: rt.SnapshotDir,
		CORSOrigins: rt.CORSOrigins,
	}
	if err := apiServer.Start(); err != nil {
		slog.Error("failed to start API", "error", err)
		os.Exit(1)
	}

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n%d kingdoms are corresponding.\n", len(host.Roster.All()))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", rt.APIPort)
	if w.LastTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", w.LastTick, engine.SimTime(w.LastTick))
	}
	fmt.Println("Starting diplomacy clock... (Ctrl+C to stop)")

	clock.Run(ctx)
	apiServer.Close()

	// Final save on shutdown.
	slog.Info("final save...")
	save()
	var s persistence.Snapshot
	clock.Do(func(w *engine.World) error {
		s = persistence.Capture(w, host)
		return nil
	})
	path := filepath.Join(rt.SnapshotDir, persistence.SnapshotName(s.Tick))
	if err := persistence.WriteSnapshot(path, s); err != nil {
		slog.Error("shutdown snapshot failed", "path", path, "error", err)
	}

	fmt.Println("Diplomacy stopped. World state saved.")
}
