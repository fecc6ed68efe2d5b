// Package match owns the match lifecycle: a single background worker
// plays hands between the registered bots, commits the results, and a
// small command surface drives the waiting/running/paused/stopped state
// machine. Everything the worker shares with foreign callers sits behind
// one scheduler lock.
package match

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/pokerbots/playground/internal/game"
	"github.com/pokerbots/playground/internal/randutil"
	"github.com/pokerbots/playground/internal/registry"
	"github.com/pokerbots/playground/internal/store"
)

// Status is the match lifecycle state.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// TransitionError reports a lifecycle command that is not legal from the
// current state.
type TransitionError struct {
	From    Status
	Command string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s match while %s", e.Command, e.From)
}

// ErrNotEnoughSeats is returned by start and resume when fewer than two
// seats have a loaded bot.
var ErrNotEnoughSeats = fmt.Errorf("at least two seats must be ready")

// MatchState is a point-in-time snapshot of the scheduler.
type MatchState struct {
	Status      Status
	StartedAt   *time.Time
	HandsPlayed int
	LastHandID  string
	ButtonSeat  game.SeatID
}

// HandRecord is one committed hand. Monetary fields are in major units.
type HandRecord struct {
	HandID      string
	CompletedAt time.Time
	Summary     string
	Winners     []game.SeatID
	Pot         float64
	Deltas      map[game.SeatID]float64
	HistoryPath string
	ActiveSeats []game.SeatID
}

// PnLPoint is one hand's deltas, for cumulative profit charts.
type PnLPoint struct {
	HandID      string
	CompletedAt time.Time
	Deltas      map[game.SeatID]float64
}

// HandPlayer plays one hand. Satisfied by *game.Engine; replaced by a
// double in scheduler tests.
type HandPlayer interface {
	PlayHand(ctx context.Context, in game.HandInput) (*game.HandResult, error)
	Params() game.Params
}

// Config wires a Service.
type Config struct {
	// HandInterval is the pause between hands. Defaults to one second.
	HandInterval time.Duration
	// Seed produces the shuffle seed for each hand. Defaults to a
	// crypto-derived seed; tests inject a deterministic source.
	Seed func() int64
	// Leaderboard, when set, is updated once per committed hand.
	Leaderboard *store.Leaderboard
	// OnHandCompleted, when set, observes every committed hand. Invoked
	// under the scheduler lock after the history file is written.
	OnHandCompleted func(rec HandRecord, seatBots map[game.SeatID]string)
	// Clock is swapped in tests.
	Clock quartz.Clock
}

// Service is the control surface the external API layer holds: it owns
// the scheduler, the registry, the hand store and the worker goroutine.
type Service struct {
	logger      zerolog.Logger
	clock       quartz.Clock
	engine      HandPlayer
	registry    *registry.Registry
	store       *store.HandStore
	leaderboard *store.Leaderboard
	hook        func(rec HandRecord, seatBots map[game.SeatID]string)
	interval    time.Duration
	seed        func() int64

	mu         sync.Mutex
	status     Status
	startedAt  *time.Time
	button     game.SeatID
	nextHandID int
	records    []HandRecord
	worker     *worker
}

// NewService builds the match service in the waiting state.
func NewService(logger zerolog.Logger, engine HandPlayer, reg *registry.Registry, hands *store.HandStore, cfg Config) *Service {
	if cfg.HandInterval <= 0 {
		cfg.HandInterval = time.Second
	}
	if cfg.Seed == nil {
		cfg.Seed = randutil.CryptoSeed
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	return &Service{
		logger:      logger.With().Str("component", "scheduler").Logger(),
		clock:       cfg.Clock,
		engine:      engine,
		registry:    reg,
		store:       hands,
		leaderboard: cfg.Leaderboard,
		hook:        cfg.OnHandCompleted,
		interval:    cfg.HandInterval,
		seed:        cfg.Seed,
		status:      StatusWaiting,
		nextHandID:  1,
	}
}

// GetMatch returns the current lifecycle snapshot.
func (s *Service) GetMatch() MatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// GetSeats returns the registry's seat snapshots.
func (s *Service) GetSeats() []registry.Seat {
	return s.registry.Seats()
}

// RegisterBot uploads a bot archive onto a seat.
func (s *Service) RegisterBot(seatID game.SeatID, name, filename string, payload []byte) (registry.Seat, error) {
	return s.registry.RegisterUpload(seatID, name, filename, payload)
}

// GetHand returns the stored history text for one hand.
func (s *Service) GetHand(handID string) (string, bool, error) {
	return s.store.LoadHand(handID)
}

// ListHands returns one page of committed hands, newest first. The page
// is snapshotted to maxHandID when positive, so pagination stays stable
// while the match keeps running. Returns the page and the snapshot total.
func (s *Service) ListHands(page, pageSize int, maxHandID int) ([]HandRecord, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.records)
	if maxHandID > 0 && maxHandID < total {
		total = maxHandID
	}

	end := total - (page-1)*pageSize
	if end <= 0 {
		return nil, total
	}
	start := max(end-pageSize, 0)

	out := make([]HandRecord, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, s.records[i])
	}
	return out, total
}

// ListPnL returns per-hand deltas for every hand after sinceHandID,
// oldest first.
func (s *Service) ListPnL(sinceHandID int) []PnLPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PnLPoint
	for _, rec := range s.records {
		id, err := strconv.Atoi(rec.HandID)
		if err != nil || id <= sinceHandID {
			continue
		}
		out = append(out, PnLPoint{
			HandID:      rec.HandID,
			CompletedAt: rec.CompletedAt,
			Deltas:      rec.Deltas,
		})
	}
	return out
}

// Leaderboard returns the ranked leaderboard, or nil when none is wired.
func (s *Service) Leaderboard(limit int) ([]store.LeaderboardEntry, error) {
	if s.leaderboard == nil {
		return nil, nil
	}
	return s.leaderboard.Top(limit)
}

func (s *Service) stateLocked() MatchState {
	state := MatchState{
		Status:      s.status,
		HandsPlayed: len(s.records),
		ButtonSeat:  s.button,
	}
	if s.startedAt != nil {
		t := *s.startedAt
		state.StartedAt = &t
	}
	if n := len(s.records); n > 0 {
		state.LastHandID = s.records[n-1].HandID
	}
	return state
}

// nextButtonLocked picks the button for the next hand: the first active
// seat on the very first hand, afterwards the next active seat clockwise
// of the previous button.
func (s *Service) nextButtonLocked(active map[game.SeatID]struct{}) game.SeatID {
	ordered := make([]game.SeatID, 0, len(active))
	for _, seat := range game.SeatOrder {
		if _, ok := active[seat]; ok {
			ordered = append(ordered, seat)
		}
	}
	if len(ordered) == 0 {
		return ""
	}
	if s.button == "" {
		return ordered[0]
	}
	for i, seat := range game.SeatOrder {
		if seat != s.button {
			continue
		}
		for offset := 1; offset <= len(game.SeatOrder); offset++ {
			candidate := game.SeatOrder[(i+offset)%len(game.SeatOrder)]
			if _, ok := active[candidate]; ok {
				return candidate
			}
		}
	}
	return ordered[0]
}

// summarize renders the one-line hand summary shown in hand lists.
func summarize(winners []game.SeatID, pot float64) string {
	labels := make([]string, len(winners))
	for i, seat := range winners {
		labels[i] = "Seat " + string(seat)
	}
	sort.Strings(labels)
	verb := "wins"
	if len(winners) > 1 {
		verb = "split"
	}
	return fmt.Sprintf("%s %s $%.2f", strings.Join(labels, ", "), verb, pot)
}
