package game

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pokerbots/playground/poker"
)

func rankOf(cards string) poker.HandRank {
	return poker.EvaluateBest(poker.MustParseCards(cards))
}

func TestPayoutsSingleWinner(t *testing.T) {
	contributions := map[SeatID]int{"1": 100, "2": 100}
	ranks := map[SeatID]poker.HandRank{
		"1": rankOf("AsAhKdQs9c7h5h"), // pair of aces
		"2": rankOf("KsQhJd9s7c5h3h"), // king high
	}
	payouts := calculatePayouts(contributions, ranks, []SeatID{"1", "2"})
	assert.Equal(t, map[SeatID]int{"1": 200, "2": 0}, payouts)
}

func TestPayoutsSplitPotWithRemainder(t *testing.T) {
	contributions := map[SeatID]int{"1": 67, "2": 67, "3": 67}
	tie := rankOf("AhKdQcJsTh2c3c") // board plays
	ranks := map[SeatID]poker.HandRank{
		"1": tie,
		"2": tie,
		"3": rankOf("KsQhJd9s7c5h3h"),
	}
	payouts := calculatePayouts(contributions, ranks, []SeatID{"1", "2", "3"})
	// 201 split two ways: 100 each, odd chip to the first winner in seat
	// order.
	assert.Equal(t, 101, payouts["1"])
	assert.Equal(t, 100, payouts["2"])
	assert.Equal(t, 0, payouts["3"])
}

func TestPayoutsSidePot(t *testing.T) {
	// Seat 1 is all-in short; seats 2 and 3 contest the side pot.
	contributions := map[SeatID]int{"1": 300, "2": 1000, "3": 1000}
	ranks := map[SeatID]poker.HandRank{
		"1": rankOf("AsAhAdKs9c7h5h"), // trips, best hand
		"2": rankOf("KsKhQdJs9c7h5h"), // pair of kings
		"3": rankOf("QsQhJd9s7c5h3h"), // pair of queens
	}
	payouts := calculatePayouts(contributions, ranks, []SeatID{"1", "2", "3"})

	// Main pot 900 to seat 1; side pot 1400 to seat 2.
	assert.Equal(t, 900, payouts["1"])
	assert.Equal(t, 1400, payouts["2"])
	assert.Equal(t, 0, payouts["3"])
}

func TestPayoutsFoldedSeatChipsGoToWinner(t *testing.T) {
	// Seat 3 folded after contributing; it has no showdown rank.
	contributions := map[SeatID]int{"1": 500, "2": 500, "3": 200}
	ranks := map[SeatID]poker.HandRank{
		"1": rankOf("AsAhKdQs9c7h5h"),
		"2": rankOf("KsQhJd9s7c5h3h"),
	}
	payouts := calculatePayouts(contributions, ranks, []SeatID{"1", "2", "3"})
	assert.Equal(t, 1200, payouts["1"])
	assert.Equal(t, 0, payouts["2"])
	assert.Equal(t, 0, payouts["3"])

	total := 0
	for _, p := range payouts {
		total += p
	}
	assert.Equal(t, 1200, total, "payouts must equal the pot")
}

func TestPayoutsConserveChips(t *testing.T) {
	cases := []map[SeatID]int{
		{"1": 100, "2": 100},
		{"1": 300, "2": 1000, "3": 1000},
		{"1": 67, "2": 67, "3": 67, "4": 10},
		{"1": 1, "2": 2, "3": 3},
	}
	ranks := map[SeatID]poker.HandRank{
		"1": rankOf("AsAhKdQs9c7h5h"),
		"2": rankOf("KsQhJd9s7c5h3h"),
		"3": rankOf("QsQhJd9s7c5h3h"),
		"4": rankOf("JsJhTd9s7c5h3h"),
	}
	for _, contributions := range cases {
		order := OrderSeats(keys(contributions))
		payouts := calculatePayouts(contributions, ranks, order)

		pot, paid := 0, 0
		for _, c := range contributions {
			pot += c
		}
		for _, p := range payouts {
			paid += p
		}
		assert.Equal(t, pot, paid, "contributions %v", contributions)
	}
}

func keys(m map[SeatID]int) []SeatID {
	out := make([]SeatID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
