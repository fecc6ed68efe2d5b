// Package game implements the hand state machine for no-limit Texas
// Hold'em over up to six seats. Each hand is independent: the engine takes
// a set of seated bot handles, runs the four betting streets, and returns
// a HandResult with winners, payouts and the full action log.
package game

import "sort"

// SeatID identifies one of the six fixed table seats, "1" through "6".
type SeatID string

// SeatOrder is the clockwise seating order.
var SeatOrder = []SeatID{"1", "2", "3", "4", "5", "6"}

var seatIndex = buildSeatIndex()

func buildSeatIndex() map[SeatID]int {
	m := make(map[SeatID]int, len(SeatOrder))
	for i, seat := range SeatOrder {
		m[seat] = i
	}
	return m
}

// ValidSeat reports whether id names a real seat.
func ValidSeat(id SeatID) bool {
	_, ok := seatIndex[id]
	return ok
}

// OrderSeats returns the seats sorted into clockwise table order.
func OrderSeats(seats []SeatID) []SeatID {
	ordered := append([]SeatID(nil), seats...)
	sort.Slice(ordered, func(i, j int) bool {
		return seatIndex[ordered[i]] < seatIndex[ordered[j]]
	})
	return ordered
}
