package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/pokerbots/playground/cmd/playground/shared"
	"github.com/pokerbots/playground/internal/config"
	"github.com/pokerbots/playground/internal/game"
	"github.com/pokerbots/playground/internal/match"
	"github.com/pokerbots/playground/internal/randutil"
	"github.com/pokerbots/playground/internal/registry"
	"github.com/pokerbots/playground/internal/sandbox"
	"github.com/pokerbots/playground/internal/store"
)

// RunCmd seats the given bot archives and runs the match loop until the
// hand target is reached or the process is interrupted.
type RunCmd struct {
	Config string   `kong:"default='playground.hcl',help='HCL configuration file'"`
	Bots   []string `kong:"help='Bot zip archives (or directories of them) to seat, in seat order'"`
	Hands  int      `kong:"default='0',help='Stop after this many hands (0 runs until interrupted)'"`
	Seed   *int64   `kong:"help='Deterministic shuffle seed (optional)'"`
	Debug  bool     `kong:"help='Enable debug logging'"`
}

func (c *RunCmd) Run() error {
	logger := shared.SetupLogger(c.Debug)
	console := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	archives, err := resolveArchives(c.Bots)
	if err != nil {
		return err
	}
	if len(archives) < 2 {
		return fmt.Errorf("at least two bot archives are required")
	}
	if len(archives) > len(game.SeatOrder) {
		return fmt.Errorf("at most %d bots can be seated", len(game.SeatOrder))
	}

	factory := registry.SubprocessFactory(logger,
		int64(cfg.Sandbox.MemoryLimitMB)<<20, cfg.Sandbox.CPUSeconds)
	if cfg.Sandbox.Backend == config.BackendInProcess {
		factory = builtinFactory()
	}

	reg, err := registry.New(logger, registry.Config{
		UploadsDir:   cfg.Storage.UploadsDir,
		ArtifactsDir: cfg.Storage.ArtifactsDir,
		Limits:       cfg.ArchiveLimits(),
		Factory:      factory,
	})
	if err != nil {
		return err
	}

	hands, err := store.NewHandStore(logger, cfg.Storage.HandsDir)
	if err != nil {
		return err
	}
	leaderboard, err := store.OpenLeaderboard(logger, cfg.Storage.LeaderboardPath)
	if err != nil {
		return err
	}
	defer leaderboard.Close()

	runtime := sandbox.NewRuntime(logger, cfg.SandboxConfig())
	engine := game.NewEngine(logger, runtime, cfg.EngineParams(), cfg.Server.TableID)

	var played atomic.Int64
	done := make(chan struct{})
	svc := match.NewService(logger, engine, reg, hands, match.Config{
		HandInterval: cfg.HandInterval(),
		Seed:         c.seedSource(),
		Leaderboard:  leaderboard,
		OnHandCompleted: func(rec match.HandRecord, seatBots map[game.SeatID]string) {
			console.Info("hand complete",
				"hand", rec.HandID,
				"result", rec.Summary)
			if n := played.Add(1); c.Hands > 0 && n == int64(c.Hands) {
				close(done)
			}
		},
	})

	for i, path := range archives {
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading bot archive: %w", err)
		}
		seatID := game.SeatOrder[i]
		name := filepath.Base(path)
		seat, err := svc.RegisterBot(seatID, name, name, payload)
		if err != nil {
			return fmt.Errorf("seating %s: %w", name, err)
		}
		console.Info("bot seated", "seat", seat.ID, "bot", seat.BotID)
	}

	if _, err := svc.StartMatch(); err != nil {
		return err
	}

	ctx := shared.SetupSignalHandlerWithLogger(logger)
	select {
	case <-ctx.Done():
		console.Info("interrupted, ending match")
	case <-done:
		console.Info("hand target reached", "hands", c.Hands)
	}

	if _, err := svc.EndMatch(); err != nil {
		logger.Warn().Err(err).Msg("ending match")
	}

	entries, err := svc.Leaderboard(10)
	if err != nil {
		return err
	}
	for rank, e := range entries {
		console.Info("leaderboard",
			"rank", rank+1,
			"bot", e.BotID,
			"hands", e.HandsPlayed,
			"bb_per_hand", fmt.Sprintf("%+.3f", e.BBPerHand))
	}
	return nil
}

// resolveArchives expands directory arguments into their zip files,
// sorted, so a whole bots directory can be seated in one flag.
func resolveArchives(paths []string) ([]string, error) {
	var out []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, path)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(path, "*.zip"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		out = append(out, matches...)
	}
	return out, nil
}

func (c *RunCmd) seedSource() func() int64 {
	if c.Seed == nil {
		return randutil.CryptoSeed
	}
	next := *c.Seed
	return func() int64 {
		next++
		return next
	}
}

// builtinFactory seats a trusted in-process call station regardless of the
// uploaded bot code. Used by the in_process backend, which exists for
// demos and tests on hosts without a Python runtime.
func builtinFactory() registry.HandleFactory {
	return func(ref registry.ArtifactRef, entrypoint string) (sandbox.Handle, error) {
		return sandbox.NewInProcess(func(ctx context.Context, state []byte) (any, error) {
			var st struct {
				ToCall int `json:"to_call"`
			}
			if err := json.Unmarshal(state, &st); err != nil {
				return nil, err
			}
			if st.ToCall > 0 {
				return map[string]any{"action": "call"}, nil
			}
			return map[string]any{"action": "check"}, nil
		}), nil
	}
}
