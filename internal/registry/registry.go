package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pokerbots/playground/internal/archive"
	"github.com/pokerbots/playground/internal/fileutil"
	"github.com/pokerbots/playground/internal/game"
	"github.com/pokerbots/playground/internal/sandbox"
)

// BotLoadError means the archive validated but the bot could not be bound
// to its seat.
type BotLoadError struct {
	Reason string
	Err    error
}

func (e *BotLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *BotLoadError) Unwrap() error {
	return e.Err
}

// Seat is a snapshot of one seat slot.
type Seat struct {
	ID         game.SeatID
	Name       string
	BotID      string
	Ready      bool
	Protocol   string
	UploadedAt time.Time
}

type seatSlot struct {
	name       string
	botID      string
	protocol   string
	uploadedAt time.Time
	handle     sandbox.Handle
}

// HandleFactory builds a sandbox handle for a stored artifact. Injected so
// trusted deployments and tests can run bots in-process.
type HandleFactory func(ref ArtifactRef, entrypoint string) (sandbox.Handle, error)

// SubprocessFactory is the production factory: each bot decision runs in
// its own resource-limited child process.
func SubprocessFactory(logger zerolog.Logger, memoryLimitBytes int64, cpuSeconds int) HandleFactory {
	return func(ref ArtifactRef, entrypoint string) (sandbox.Handle, error) {
		return sandbox.NewSubprocess(logger, sandbox.SubprocessConfig{
			BotZip:           ref.Path,
			MemoryLimitBytes: memoryLimitBytes,
			CPUSeconds:       cpuSeconds,
		})
	}
}

// Config wires a Registry.
type Config struct {
	UploadsDir   string
	ArtifactsDir string
	Limits       archive.Limits
	Factory      HandleFactory
}

// Registry maintains the six seat slots and binds uploaded bots to them.
// All mutation happens under one lock shared with nothing else; the match
// scheduler snapshots ready bots before playing a hand.
type Registry struct {
	logger    zerolog.Logger
	uploads   string
	artifacts *ArtifactStore
	limits    archive.Limits
	factory   HandleFactory

	mu    sync.Mutex
	slots map[game.SeatID]*seatSlot
}

// New builds a Registry, creating its directories.
func New(logger zerolog.Logger, cfg Config) (*Registry, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("registry: Factory is required")
	}
	if err := fileutil.EnsureDir(cfg.UploadsDir); err != nil {
		return nil, err
	}
	artifacts, err := NewArtifactStore(cfg.ArtifactsDir)
	if err != nil {
		return nil, err
	}

	slots := make(map[game.SeatID]*seatSlot, len(game.SeatOrder))
	for _, seat := range game.SeatOrder {
		slots[seat] = &seatSlot{}
	}

	return &Registry{
		logger:    logger.With().Str("component", "registry").Logger(),
		uploads:   cfg.UploadsDir,
		artifacts: artifacts,
		limits:    cfg.Limits,
		factory:   cfg.Factory,
		slots:     slots,
	}, nil
}

// RegisterUpload validates the archive, stores it and binds a bot handle
// to the seat, replacing any previous bot. Rejected uploads leave no file
// behind; the staged upload and the artifact are written only after every
// check passes.
func (r *Registry) RegisterUpload(seatID game.SeatID, name, filename string, payload []byte) (Seat, error) {
	if !game.ValidSeat(seatID) {
		return Seat{}, &BotLoadError{Reason: fmt.Sprintf("unknown seat %q", seatID)}
	}

	result, err := archive.Validate(payload, filename, r.limits)
	if err != nil {
		return Seat{}, err
	}

	botID := DeriveBotID(filename, payload)

	stagedPath := filepath.Join(r.uploads, string(seatID), uuid.NewString()+"_"+filepath.Base(filename))
	if err := fileutil.EnsureDir(filepath.Dir(stagedPath)); err != nil {
		return Seat{}, &BotLoadError{Reason: "staging upload", Err: err}
	}
	if err := fileutil.WriteFileAtomic(stagedPath, payload, 0o644); err != nil {
		return Seat{}, &BotLoadError{Reason: "staging upload", Err: err}
	}

	ref, err := r.artifacts.Store(botID, filename, payload)
	if err != nil {
		return Seat{}, &BotLoadError{Reason: "storing artifact", Err: err}
	}

	handle, err := r.factory(ref, result.Entrypoint)
	if err != nil {
		return Seat{}, &BotLoadError{Reason: "loading bot", Err: err}
	}

	if name == "" {
		name = filename
	}

	r.mu.Lock()
	slot := r.slots[seatID]
	old := slot.handle
	slot.handle = handle
	slot.name = name
	slot.botID = botID
	slot.protocol = result.DeclaredProtocol
	slot.uploadedAt = time.Now().UTC()
	snapshot := r.snapshotLocked(seatID)
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Warn().Err(err).Str("seat", string(seatID)).Msg("closing replaced bot handle")
		}
	}

	r.logger.Info().Str("seat", string(seatID)).Str("bot_id", botID).
		Str("protocol", result.DeclaredProtocol).Msg("bot registered")
	return snapshot, nil
}

// Seats returns a snapshot of all six slots in table order.
func (r *Registry) Seats() []Seat {
	r.mu.Lock()
	defer r.mu.Unlock()

	seats := make([]Seat, 0, len(game.SeatOrder))
	for _, seat := range game.SeatOrder {
		seats = append(seats, r.snapshotLocked(seat))
	}
	return seats
}

// ReadySnapshot captures everything the scheduler needs to play a hand
// with the currently bound bots.
type ReadySnapshot struct {
	Bots      map[game.SeatID]sandbox.Handle
	Names     map[game.SeatID]string
	BotIDs    map[game.SeatID]string
	Protocols map[game.SeatID]string
}

// Ready returns the seats with a bound bot handle.
func (r *Registry) Ready() ReadySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := ReadySnapshot{
		Bots:      make(map[game.SeatID]sandbox.Handle),
		Names:     make(map[game.SeatID]string),
		BotIDs:    make(map[game.SeatID]string),
		Protocols: make(map[game.SeatID]string),
	}
	for seat, slot := range r.slots {
		if slot.handle == nil {
			continue
		}
		snap.Bots[seat] = slot.handle
		snap.Names[seat] = slot.name
		snap.BotIDs[seat] = slot.botID
		snap.Protocols[seat] = slot.protocol
	}
	return snap
}

// ReadyCount returns how many seats have a bot bound.
func (r *Registry) ReadyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, slot := range r.slots {
		if slot.handle != nil {
			count++
		}
	}
	return count
}

// ResetAll releases every bot handle, clears all slots and removes the
// staged uploads. Stored artifacts stay; they are content-addressed and
// reused on re-upload.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	handles := make([]sandbox.Handle, 0, len(r.slots))
	for _, slot := range r.slots {
		if slot.handle != nil {
			handles = append(handles, slot.handle)
		}
		*slot = seatSlot{}
	}
	r.mu.Unlock()

	for _, handle := range handles {
		if err := handle.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("closing bot handle during reset")
		}
	}
	for _, seat := range game.SeatOrder {
		dir := filepath.Join(r.uploads, string(seat))
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn().Err(err).Str("seat", string(seat)).Msg("removing staged uploads")
		}
	}
	r.logger.Info().Msg("all seats reset")
}

func (r *Registry) snapshotLocked(seatID game.SeatID) Seat {
	slot := r.slots[seatID]
	return Seat{
		ID:         seatID,
		Name:       slot.name,
		BotID:      slot.botID,
		Ready:      slot.handle != nil,
		Protocol:   slot.protocol,
		UploadedAt: slot.uploadedAt,
	}
}
