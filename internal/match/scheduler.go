package match

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pokerbots/playground/internal/game"
	"github.com/pokerbots/playground/internal/randutil"
	"github.com/pokerbots/playground/internal/registry"
	"github.com/pokerbots/playground/internal/store"
)

// workerJoinTimeout bounds how long a lifecycle command waits for the
// worker's in-flight hand before returning.
const workerJoinTimeout = 2 * time.Second

type worker struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// signalStop is idempotent: pause followed by end signals the same worker
// twice.
func (w *worker) signalStop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
}

// StartMatch transitions waiting/stopped to running and spawns the
// worker. Requires at least two ready seats.
func (s *Service) StartMatch() (MatchState, error) {
	s.mu.Lock()
	if s.status != StatusWaiting && s.status != StatusStopped {
		defer s.mu.Unlock()
		return s.stateLocked(), &TransitionError{From: s.status, Command: "start"}
	}
	if s.registry.ReadyCount() < 2 {
		defer s.mu.Unlock()
		return s.stateLocked(), ErrNotEnoughSeats
	}
	s.status = StatusRunning
	now := s.clock.Now().UTC()
	s.startedAt = &now
	s.spawnWorkerLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info().Msg("match started")
	return state, nil
}

// PauseMatch transitions running to paused. It joins the worker, so the
// in-flight hand (if any) is committed before this returns and no hand
// completes afterwards until resume.
func (s *Service) PauseMatch() (MatchState, error) {
	s.mu.Lock()
	if s.status != StatusRunning {
		defer s.mu.Unlock()
		return s.stateLocked(), &TransitionError{From: s.status, Command: "pause"}
	}
	s.status = StatusPaused
	w := s.signalWorkerLocked()
	s.mu.Unlock()

	s.joinWorker(w)

	s.logger.Info().Msg("match paused")
	return s.GetMatch(), nil
}

// ResumeMatch transitions paused back to running with a fresh worker.
func (s *Service) ResumeMatch() (MatchState, error) {
	s.mu.Lock()
	if s.status != StatusPaused {
		defer s.mu.Unlock()
		return s.stateLocked(), &TransitionError{From: s.status, Command: "resume"}
	}
	if s.registry.ReadyCount() < 2 {
		defer s.mu.Unlock()
		return s.stateLocked(), ErrNotEnoughSeats
	}
	s.status = StatusRunning
	s.spawnWorkerLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.logger.Info().Msg("match resumed")
	return state, nil
}

// EndMatch transitions running or paused to stopped. Hand records and
// seat bindings survive; only reset clears them.
func (s *Service) EndMatch() (MatchState, error) {
	s.mu.Lock()
	if s.status != StatusRunning && s.status != StatusPaused {
		defer s.mu.Unlock()
		return s.stateLocked(), &TransitionError{From: s.status, Command: "end"}
	}
	s.status = StatusStopped
	s.startedAt = nil
	w := s.signalWorkerLocked()
	s.mu.Unlock()

	s.joinWorker(w)

	s.logger.Info().Msg("match ended")
	return s.GetMatch(), nil
}

// ResetMatch returns to waiting from any state: the worker is joined,
// every seat is released, and all hand records and history files are
// cleared.
func (s *Service) ResetMatch() (MatchState, error) {
	s.mu.Lock()
	s.status = StatusWaiting
	w := s.signalWorkerLocked()
	s.mu.Unlock()

	s.joinWorker(w)

	s.mu.Lock()
	s.startedAt = nil
	s.button = ""
	s.nextHandID = 1
	s.records = nil
	s.mu.Unlock()

	s.registry.ResetAll()
	if err := s.store.Clear(); err != nil {
		s.logger.Error().Err(err).Msg("clearing hand store during reset")
	}

	s.logger.Info().Msg("match reset")
	return s.GetMatch(), nil
}

// spawnWorkerLocked starts the hand loop goroutine. Caller holds the lock.
func (s *Service) spawnWorkerLocked() {
	w := &worker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.worker = w
	go s.runWorker(w)
}

// signalWorkerLocked asks the current worker (if any) to stop after its
// in-flight hand and returns it for joining. Caller holds the lock.
func (s *Service) signalWorkerLocked() *worker {
	w := s.worker
	if w != nil {
		w.signalStop()
	}
	return w
}

// joinWorker waits for the worker to exit, bounded so a wedged hand can
// never hang a lifecycle command. Must not be called from the worker
// goroutine itself.
func (s *Service) joinWorker(w *worker) {
	if w == nil {
		return
	}
	timer := s.clock.NewTimer(workerJoinTimeout)
	defer timer.Stop()
	select {
	case <-w.done:
	case <-timer.C:
		s.logger.Warn().Msg("worker did not exit within join timeout")
	}
}

// runWorker is the background hand loop. One hand per iteration: snapshot
// under the lock, play outside it, commit under it, then a cancellable
// interval wait.
func (s *Service) runWorker(w *worker) {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		s.mu.Lock()
		if s.status != StatusRunning || s.worker != w {
			s.mu.Unlock()
			return
		}
		snap := s.registry.Ready()
		if len(snap.Bots) < 2 {
			s.status = StatusWaiting
			s.startedAt = nil
			s.worker = nil
			s.mu.Unlock()
			s.logger.Warn().Msg("fewer than two seats ready, match back to waiting")
			return
		}
		active := make(map[game.SeatID]struct{}, len(snap.Bots))
		for seat := range snap.Bots {
			active[seat] = struct{}{}
		}
		button := s.nextButtonLocked(active)
		s.button = button
		handID := strconv.Itoa(s.nextHandID)
		s.mu.Unlock()

		result, err := s.engine.PlayHand(context.Background(), game.HandInput{
			HandID:    handID,
			Bots:      snap.Bots,
			SeatNames: snap.Names,
			Protocols: snap.Protocols,
			Button:    button,
			RNG:       randutil.New(s.seed()),
		})
		if err != nil {
			s.crash(w, handID, err)
			return
		}

		if !s.commitHand(w, handID, button, snap, result) {
			return
		}

		timer := s.clock.NewTimer(s.interval)
		select {
		case <-w.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// crash contains an engine failure: the hand is discarded and the match
// drops back to waiting. Nothing was persisted, so no partial hand is
// ever observable.
func (s *Service) crash(w *worker, handID string, err error) {
	s.logger.Error().Err(err).Str("hand_id", handID).Msg("hand failed, match back to waiting")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker == w {
		s.worker = nil
	}
	s.status = StatusWaiting
	s.startedAt = nil
}

// commitHand persists and records one completed hand. Returns false when
// the worker has been superseded and should exit without committing.
func (s *Service) commitHand(w *worker, handID string, button game.SeatID, snap registry.ReadySnapshot, result *game.HandResult) bool {
	params := s.engine.Params()
	completedAt := s.clock.Now().UTC()

	text := store.FormatHistory(store.HistoryData{
		HandID:      handID,
		Timestamp:   completedAt,
		Winners:     result.Winners,
		Pot:         result.Pot,
		SeatNames:   snap.Names,
		Button:      button,
		HoleCards:   result.HoleCards,
		Board:       result.Board,
		Actions:     result.Actions,
		ActiveSeats: result.ActiveSeats,
		SmallBlind:  params.SmallBlind,
		BigBlind:    params.BigBlind,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.worker != w {
		return false
	}

	if err := s.store.SaveHand(handID, text); err != nil {
		s.logger.Error().Err(err).Str("hand_id", handID).Msg("hand history write failed, discarding hand")
		s.status = StatusWaiting
		s.startedAt = nil
		s.worker = nil
		return false
	}

	deltas := make(map[game.SeatID]float64, len(result.Deltas))
	for seat, delta := range result.Deltas {
		deltas[seat] = float64(delta) / 100
	}
	rec := HandRecord{
		HandID:      handID,
		CompletedAt: completedAt,
		Summary:     summarize(result.Winners, float64(result.Pot)/100),
		Winners:     result.Winners,
		Pot:         float64(result.Pot) / 100,
		Deltas:      deltas,
		HistoryPath: handID + ".txt",
		ActiveSeats: result.ActiveSeats,
	}
	s.records = append(s.records, rec)
	s.nextHandID++

	if s.leaderboard != nil {
		updates := store.UpdatesFromResult(result, snap.BotIDs, params.BigBlind)
		if err := s.leaderboard.RecordHand(updates, completedAt); err != nil {
			s.logger.Error().Err(err).Str("hand_id", handID).Msg("leaderboard update failed")
		}
	}
	if s.hook != nil {
		s.hook(rec, snap.BotIDs)
	}

	s.logger.Debug().Str("hand_id", handID).Str("summary", rec.Summary).Msg("hand committed")
	return true
}
