// Package store persists hand histories and leaderboard aggregates. Hand
// histories are one plain-text file per hand; the leaderboard lives in a
// SQLite database updated once per completed hand.
package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/pokerbots/playground/internal/game"
	"github.com/pokerbots/playground/poker"
)

// HistoryData is everything the formatter needs for one hand.
type HistoryData struct {
	HandID      string
	Timestamp   time.Time
	Winners     []game.SeatID
	Pot         int
	SeatNames   map[game.SeatID]string
	Button      game.SeatID
	HoleCards   map[game.SeatID][]poker.Card
	Board       []poker.Card
	Actions     []game.ActionEvent
	ActiveSeats []game.SeatID
	SmallBlind  int
	BigBlind    int
}

// FormatHistory renders the canonical hand history text. The output is
// deterministic for a given HistoryData; amounts are major units with two
// decimals.
func FormatHistory(d HistoryData) string {
	var lines []string
	seats := game.OrderSeats(d.ActiveSeats)

	lines = append(lines,
		fmt.Sprintf("Hand #%s", d.HandID),
		fmt.Sprintf("Date: %s", d.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")),
		fmt.Sprintf("Game: Hold'em No Limit (%s/%s)", dollars(d.SmallBlind), dollars(d.BigBlind)),
	)
	for _, seat := range seats {
		lines = append(lines, fmt.Sprintf("Seat %s: %s", seat, d.SeatNames[seat]))
	}
	lines = append(lines, fmt.Sprintf("Button: Seat %s", d.Button))

	lines = append(lines, "*** HOLE CARDS ***")
	for _, seat := range seats {
		lines = append(lines, fmt.Sprintf("Seat %s: [%s]", seat, cardsStr(d.HoleCards[seat])))
	}

	byStreet := make(map[string][]game.ActionEvent)
	for _, ev := range d.Actions {
		byStreet[ev.Street] = append(byStreet[ev.Street], ev)
	}

	appendStreet(&lines, "PREFLOP", byStreet[game.StreetPreflop])
	if len(d.Board) >= 3 {
		appendStreet(&lines, fmt.Sprintf("FLOP [%s]", cardsStr(d.Board[:3])), byStreet[game.StreetFlop])
	}
	if len(d.Board) >= 4 {
		appendStreet(&lines,
			fmt.Sprintf("TURN [%s] [%s]", cardsStr(d.Board[:3]), cardsStr(d.Board[3:4])),
			byStreet[game.StreetTurn])
	}
	if len(d.Board) == 5 {
		appendStreet(&lines,
			fmt.Sprintf("RIVER [%s] [%s]", cardsStr(d.Board[:4]), cardsStr(d.Board[4:5])),
			byStreet[game.StreetRiver])
	}

	winners := make([]string, len(d.Winners))
	for i, seat := range d.Winners {
		winners[i] = "Seat " + string(seat)
	}

	lines = append(lines,
		"*** SUMMARY ***",
		fmt.Sprintf("Total pot: %s", dollars(d.Pot)),
		fmt.Sprintf("Winner: %s", strings.Join(winners, ", ")),
		fmt.Sprintf("Board: [%s]", cardsStr(d.Board)),
		fmt.Sprintf("Blinds: %s/%s", dollars(d.SmallBlind), dollars(d.BigBlind)),
	)

	return strings.Join(lines, "\n")
}

func appendStreet(lines *[]string, label string, actions []game.ActionEvent) {
	*lines = append(*lines, fmt.Sprintf("*** %s ***", label))
	for _, ev := range actions {
		switch ev.Action {
		case "blind":
			*lines = append(*lines, fmt.Sprintf("Seat %s posts blind %s", ev.Seat, dollars(ev.Amount)))
		case "call", "bet", "raise":
			*lines = append(*lines, fmt.Sprintf("Seat %s %ss %s", ev.Seat, ev.Action, dollars(ev.Amount)))
		default:
			*lines = append(*lines, fmt.Sprintf("Seat %s %s", ev.Seat, ev.Action))
		}
	}
}

func dollars(minorUnits int) string {
	return fmt.Sprintf("$%.2f", float64(minorUnits)/100)
}

func cardsStr(cards []poker.Card) string {
	return strings.Join(poker.CardStrings(cards), " ")
}
