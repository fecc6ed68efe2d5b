// Package sandbox executes untrusted bot decisions behind a uniform
// Decide contract. A decision never escapes the sandbox as an error: every
// failure mode (timeout, crash, bad reply, oversize state) is converted to
// a safe fold-or-check decision the engine can apply.
package sandbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Error kinds carried in Decision.Err. ErrKindError prefixes in-process
// exception messages, e.g. "error: division by zero".
const (
	ErrKindTimeout         = "timeout"
	ErrKindStateTooLarge   = "state_too_large"
	ErrKindInvalidState    = "invalid_state"
	ErrKindInvalidResponse = "invalid_response"
	ErrKindError           = "error"
	ErrKindRuntimeFailure  = "runtime_failure"
	ErrKindMalformedOutput = "runtime_malformed_output"
)

// Decision is the outcome of one Decide call. Err is empty on a clean bot
// reply; otherwise it names the failure kind and Action/Amount hold the
// safe fallback (fold, 0).
type Decision struct {
	Action string
	Amount int
	Err    string
}

func errorDecision(kind string) Decision {
	return Decision{Action: "fold", Amount: 0, Err: kind}
}

// Handle is a loaded bot capable of making decisions. Implementations must
// survive individual decision failures: a crash in one Decide leaves the
// handle usable for the next.
type Handle interface {
	Decide(ctx context.Context, state []byte) Decision
	Close() error
}

// Config bounds the runtime.
type Config struct {
	// Timeout is the per-decision wall clock bound.
	Timeout time.Duration
	// MaxStateBytes caps the serialized decision payload.
	MaxStateBytes int
	// MaxConcurrent bounds simultaneous in-flight decisions.
	MaxConcurrent int64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       2 * time.Second,
		MaxStateBytes: 64 * 1024,
		MaxConcurrent: 4,
	}
}

// Runtime guards every Decide with the shared concurrency bound, the state
// size cap and the wall clock timeout. Handles themselves stay oblivious
// to scheduling.
type Runtime struct {
	logger zerolog.Logger
	cfg    Config
	sem    *semaphore.Weighted
}

// NewRuntime builds a runtime from cfg, applying defaults to zero fields.
func NewRuntime(logger zerolog.Logger, cfg Config) *Runtime {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxStateBytes <= 0 {
		cfg.MaxStateBytes = def.MaxStateBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	return &Runtime{
		logger: logger.With().Str("component", "sandbox").Logger(),
		cfg:    cfg,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
	}
}

// Timeout returns the configured per-decision bound.
func (r *Runtime) Timeout() time.Duration {
	return r.cfg.Timeout
}

// Decide runs one decision on h. Oversize states short-circuit without
// touching the bot. A handle that overruns the timeout is abandoned; the
// result is the timeout fallback.
func (r *Runtime) Decide(ctx context.Context, h Handle, state []byte) Decision {
	if len(state) > r.cfg.MaxStateBytes {
		r.logger.Warn().Int("state_bytes", len(state)).Int("max", r.cfg.MaxStateBytes).
			Msg("decision state exceeds size cap")
		return errorDecision(ErrKindStateTooLarge)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return errorDecision(ErrKindTimeout)
	}
	defer r.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	done := make(chan Decision, 1)
	go func() {
		done <- h.Decide(callCtx, state)
	}()

	select {
	case d := <-done:
		if d.Err != "" {
			r.logger.Debug().Str("error", d.Err).Msg("decision degraded to fallback")
		}
		return d
	case <-callCtx.Done():
		r.logger.Warn().Dur("timeout", r.cfg.Timeout).Msg("decision timed out")
		return errorDecision(ErrKindTimeout)
	}
}
