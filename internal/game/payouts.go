package game

import (
	"sort"

	"github.com/pokerbots/playground/poker"
)

// calculatePayouts distributes the pot across side-pot levels. Each
// distinct positive contribution amount forms a level; the slice between
// consecutive levels is contested only by seats that contributed at least
// that much and reached showdown. Ties split evenly with leftover chips
// handed out one per winner in seat order.
func calculatePayouts(contributions map[SeatID]int, ranks map[SeatID]poker.HandRank, order []SeatID) map[SeatID]int {
	payouts := make(map[SeatID]int, len(contributions))
	for seat := range contributions {
		payouts[seat] = 0
	}

	levelSet := make(map[int]bool)
	for _, amount := range contributions {
		if amount > 0 {
			levelSet[amount] = true
		}
	}
	levels := make([]int, 0, len(levelSet))
	for level := range levelSet {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	previous := 0
	carry := 0
	for _, level := range levels {
		var involved []SeatID
		for _, seat := range order {
			if contributions[seat] >= level {
				involved = append(involved, seat)
			}
		}
		if len(involved) == 0 {
			previous = level
			continue
		}
		sliceAmount := (level-previous)*len(involved) + carry
		carry = 0

		var eligible []SeatID
		for _, seat := range involved {
			if _, ok := ranks[seat]; ok {
				eligible = append(eligible, seat)
			}
		}
		if len(eligible) == 0 {
			// Every contributor at this level folded. Carry the slice to
			// the next contested level so the pot stays conserved.
			carry = sliceAmount
			previous = level
			continue
		}

		var best poker.HandRank
		for _, seat := range eligible {
			if ranks[seat] > best {
				best = ranks[seat]
			}
		}
		var winners []SeatID
		for _, seat := range eligible {
			if ranks[seat] == best {
				winners = append(winners, seat)
			}
		}

		each := sliceAmount / len(winners)
		remainder := sliceAmount % len(winners)
		for _, seat := range winners {
			payouts[seat] += each
		}
		for i := 0; i < remainder; i++ {
			payouts[winners[i%len(winners)]]++
		}

		previous = level
	}

	if carry > 0 {
		// Nothing above the last contested level could claim the rest;
		// it goes to the best showdown hand.
		var best poker.HandRank
		for _, rank := range ranks {
			if rank > best {
				best = rank
			}
		}
		var winners []SeatID
		for _, seat := range order {
			if rank, ok := ranks[seat]; ok && rank == best {
				winners = append(winners, seat)
			}
		}
		if len(winners) > 0 {
			each := carry / len(winners)
			remainder := carry % len(winners)
			for _, seat := range winners {
				payouts[seat] += each
			}
			for i := 0; i < remainder; i++ {
				payouts[winners[i%len(winners)]]++
			}
		}
	}
	return payouts
}
