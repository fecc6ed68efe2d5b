package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
)

//go:embed runner.py
var runnerSource []byte

// envWhitelist is the only environment passed to bot subprocesses, plus
// PYTHONNOUSERSITE to keep user site-packages out of the child.
var envWhitelist = []string{"PATH", "LANG", "LC_ALL", "TZ"}

// SubprocessConfig describes one bot subprocess handle.
type SubprocessConfig struct {
	// Python is the interpreter binary. Defaults to "python3".
	Python string
	// BotZip is the path to the validated bot archive.
	BotZip string
	// WorkDir is the child working directory, normally the artifact
	// directory. Defaults to the archive's directory.
	WorkDir string
	// MemoryLimitBytes caps the child address space.
	MemoryLimitBytes int64
	// CPUSeconds caps child CPU time.
	CPUSeconds int
}

// Subprocess executes each decision in a fresh child process running the
// embedded runner. The child applies its own rlimits before loading bot
// code; the parent enforces the wall clock bound by killing the child.
type Subprocess struct {
	logger     zerolog.Logger
	cfg        SubprocessConfig
	runnerDir  string
	runnerPath string
}

// NewSubprocess materializes the embedded runner and returns a Handle for
// the archive.
func NewSubprocess(logger zerolog.Logger, cfg SubprocessConfig) (*Subprocess, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.BotZip == "" {
		return nil, errors.New("sandbox: BotZip is required")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Dir(cfg.BotZip)
	}
	if cfg.MemoryLimitBytes <= 0 {
		cfg.MemoryLimitBytes = 256 * 1024 * 1024
	}
	if cfg.CPUSeconds <= 0 {
		cfg.CPUSeconds = 3
	}

	runnerDir, err := os.MkdirTemp("", "bot-runner-*")
	if err != nil {
		return nil, fmt.Errorf("creating runner dir: %w", err)
	}
	runnerPath := filepath.Join(runnerDir, "runner.py")
	if err := os.WriteFile(runnerPath, runnerSource, 0o644); err != nil {
		os.RemoveAll(runnerDir)
		return nil, fmt.Errorf("writing runner: %w", err)
	}

	return &Subprocess{
		logger:     logger.With().Str("component", "subprocess_bot").Str("bot_zip", cfg.BotZip).Logger(),
		cfg:        cfg,
		runnerDir:  runnerDir,
		runnerPath: runnerPath,
	}, nil
}

// Decide runs one child process for the decision. Context expiry kills
// the child and yields the timeout fallback; every other child failure is
// runtime_failure or runtime_malformed_output.
func (b *Subprocess) Decide(ctx context.Context, state []byte) Decision {
	cmd := exec.CommandContext(ctx, b.cfg.Python, b.runnerPath,
		"--bot-zip", b.cfg.BotZip,
		"--memory-limit-bytes", strconv.FormatInt(b.cfg.MemoryLimitBytes, 10),
		"--cpu-seconds", strconv.Itoa(b.cfg.CPUSeconds),
	)
	cmd.Dir = b.cfg.WorkDir
	cmd.Env = childEnv()
	cmd.Stdin = bytes.NewReader(state)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() != nil {
		return errorDecision(ErrKindTimeout)
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("stderr", truncate(stderr.String(), 512)).
			Msg("bot subprocess failed")
		return errorDecision(ErrKindRuntimeFailure)
	}

	return b.parseEnvelope(stdout.Bytes())
}

// parseEnvelope decodes the single JSON object the runner writes to
// stdout: {"result": ...} or {"error": "<kind>:<detail>"}.
func (b *Subprocess) parseEnvelope(output []byte) Decision {
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *string         `json:"error"`
	}
	if err := json.Unmarshal(output, &envelope); err != nil {
		b.logger.Warn().Str("stdout", truncate(string(output), 512)).
			Msg("bot subprocess produced malformed output")
		return errorDecision(ErrKindMalformedOutput)
	}

	if envelope.Error != nil {
		b.logger.Debug().Str("error", *envelope.Error).Msg("bot subprocess reported error")
		return errorDecision(*envelope.Error)
	}
	if envelope.Result == nil {
		return errorDecision(ErrKindMalformedOutput)
	}

	var reply any
	if err := json.Unmarshal(envelope.Result, &reply); err != nil {
		return errorDecision(ErrKindMalformedOutput)
	}
	return normalizeReply(reply)
}

// Close removes the materialized runner. Children are per-decision and
// already reaped by Decide.
func (b *Subprocess) Close() error {
	return os.RemoveAll(b.runnerDir)
}

func childEnv() []string {
	env := make([]string, 0, len(envWhitelist)+1)
	for _, key := range envWhitelist {
		if value, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+value)
		}
	}
	return append(env, "PYTHONNOUSERSITE=1")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
