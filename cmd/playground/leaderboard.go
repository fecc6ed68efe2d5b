package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"

	"github.com/pokerbots/playground/internal/config"
	"github.com/pokerbots/playground/internal/store"
)

// LeaderboardCmd prints the persistent leaderboard.
type LeaderboardCmd struct {
	Config string `kong:"default='playground.hcl',help='HCL configuration file'"`
	Limit  int    `kong:"default='20',help='Maximum entries to show'"`
}

func (c *LeaderboardCmd) Run() error {
	console := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	lb, err := store.OpenLeaderboard(zerolog.Nop(), cfg.Storage.LeaderboardPath)
	if err != nil {
		return err
	}
	defer lb.Close()

	entries, err := lb.Top(c.Limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		console.Info("no hands recorded yet")
		return nil
	}
	for rank, e := range entries {
		console.Info("entry",
			"rank", rank+1,
			"bot", e.BotID,
			"hands", e.HandsPlayed,
			"bb_won", fmt.Sprintf("%+.2f", e.BBWon),
			"bb_per_hand", fmt.Sprintf("%+.3f", e.BBPerHand))
	}
	return nil
}
