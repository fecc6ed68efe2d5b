package game

import (
	"fmt"

	"github.com/pokerbots/playground/poker"
)

// Street names, in play order.
const (
	StreetPreflop = "preflop"
	StreetFlop    = "flop"
	StreetTurn    = "turn"
	StreetRiver   = "river"
)

// ActionEvent is one applied action, including blind posts. Amount is the
// number of chips the action moved into the pot, zero for check and fold.
type ActionEvent struct {
	Seat   SeatID
	Action string
	Amount int
	Street string
}

// HandResult is the complete outcome of one hand.
type HandResult struct {
	Winners     []SeatID
	Pot         int
	Board       []poker.Card
	HoleCards   map[SeatID][]poker.Card
	Actions     []ActionEvent
	Deltas      map[SeatID]int
	ActiveSeats []SeatID
}

// InvariantError reports a violated engine invariant. It is fatal for the
// hand: the scheduler discards the hand and halts the match.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "engine invariant violated: " + e.Detail
}

func invariantErrorf(format string, args ...any) *InvariantError {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}
