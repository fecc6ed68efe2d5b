package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/pokerbots/playground/internal/game"
)

// Leaderboard persists per-bot aggregates in SQLite. It is updated by the
// scheduler's hand-completed hook, exactly once per successful hand.
type Leaderboard struct {
	logger zerolog.Logger
	db     *sql.DB
}

// LeaderboardEntry is one ranked row. BBPerHand is bb_won/hands_played,
// zero when no hands were played.
type LeaderboardEntry struct {
	BotID       string
	HandsPlayed int
	BBWon       float64
	BBPerHand   float64
	UpdatedAt   time.Time
}

// OpenLeaderboard opens (and migrates) the leaderboard database at path.
// Use ":memory:" for tests.
func OpenLeaderboard(logger zerolog.Logger, path string) (*Leaderboard, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening leaderboard db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_leaderboard (
			bot_id TEXT PRIMARY KEY,
			hands_played INTEGER NOT NULL DEFAULT 0,
			bb_won REAL NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating leaderboard db: %w", err)
	}

	return &Leaderboard{
		logger: logger.With().Str("component", "leaderboard").Logger(),
		db:     db,
	}, nil
}

// Close releases the database handle.
func (l *Leaderboard) Close() error {
	return l.db.Close()
}

// HandUpdate is the per-bot outcome of one hand, in big blinds.
type HandUpdate struct {
	BotID   string
	DeltaBB float64
}

// RecordHand applies one completed hand to the aggregates. Each bot's row
// is upserted: hands_played increments, bb_won accumulates, updated_at
// moves to now. Seats without a known bot id are skipped by the caller.
func (l *Leaderboard) RecordHand(updates []HandUpdate, now time.Time) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("recording hand: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		_, err := tx.Exec(`
			INSERT INTO bot_leaderboard (bot_id, hands_played, bb_won, updated_at)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(bot_id) DO UPDATE SET
				hands_played = hands_played + 1,
				bb_won = bb_won + excluded.bb_won,
				updated_at = excluded.updated_at
		`, u.BotID, u.DeltaBB, now.UTC())
		if err != nil {
			return fmt.Errorf("recording hand for bot %s: %w", u.BotID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording hand: %w", err)
	}
	l.logger.Debug().Int("bots", len(updates)).Msg("leaderboard updated")
	return nil
}

// Top returns up to limit entries ranked best-first.
func (l *Leaderboard) Top(limit int) ([]LeaderboardEntry, error) {
	rows, err := l.db.Query(`
		SELECT bot_id, hands_played, bb_won, updated_at,
			CASE WHEN hands_played > 0 THEN bb_won / hands_played ELSE 0 END AS bb_per_hand
		FROM bot_leaderboard
		ORDER BY bb_per_hand DESC, hands_played DESC, updated_at DESC, bot_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.BotID, &e.HandsPlayed, &e.BBWon, &e.UpdatedAt, &e.BBPerHand); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdatesFromResult converts a hand result into leaderboard updates using
// the seat-to-bot binding captured when the hand started.
func UpdatesFromResult(result *game.HandResult, seatBots map[game.SeatID]string, bigBlind int) []HandUpdate {
	var updates []HandUpdate
	for _, seat := range result.ActiveSeats {
		botID, ok := seatBots[seat]
		if !ok || botID == "" {
			continue
		}
		updates = append(updates, HandUpdate{
			BotID:   botID,
			DeltaBB: float64(result.Deltas[seat]) / float64(bigBlind),
		})
	}
	return updates
}
