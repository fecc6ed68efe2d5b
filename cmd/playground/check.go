package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/pokerbots/playground/internal/archive"
	"github.com/pokerbots/playground/internal/config"
	"github.com/pokerbots/playground/internal/registry"
)

// CheckCmd validates a bot archive the same way an upload would be,
// without seating it.
type CheckCmd struct {
	Archive string `kong:"arg,help='Path to the bot zip archive'"`
	Config  string `kong:"default='playground.hcl',help='HCL configuration file'"`
}

func (c *CheckCmd) Run() error {
	console := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	payload, err := os.ReadFile(c.Archive)
	if err != nil {
		return err
	}

	filename := filepath.Base(c.Archive)
	result, err := archive.Validate(payload, filename, cfg.ArchiveLimits())
	if err != nil {
		var valErr *archive.ValidationError
		if errors.As(err, &valErr) {
			console.Error("archive rejected", "reason", valErr.Reason)
			return fmt.Errorf("archive rejected")
		}
		return err
	}

	protocol := result.DeclaredProtocol
	if protocol == "" {
		protocol = "legacy (undeclared)"
	}
	console.Info("archive accepted",
		"bot_id", registry.DeriveBotID(filename, payload),
		"entrypoint", result.Entrypoint,
		"protocol", protocol)
	return nil
}
