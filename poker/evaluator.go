package poker

import "sort"

// Category enumerates hand categories from weakest to strongest.
type Category uint8

const (
	HighCard Category = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case Pair:
		return "Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// HandRank is a totally ordered hand strength key: a > b iff hand a beats
// hand b at showdown. The category occupies the high bits and up to five
// 4-bit tiebreak ranks follow in descending significance.
type HandRank uint32

// Category returns the hand category encoded in the rank.
func (hr HandRank) Category() Category {
	return Category(hr >> 20)
}

func (hr HandRank) String() string {
	return hr.Category().String()
}

func packRank(cat Category, tiebreaks []Rank) HandRank {
	key := HandRank(cat) << 20
	shift := 16
	for _, tb := range tiebreaks {
		if shift < 0 {
			break
		}
		key |= HandRank(tb) << shift
		shift -= 4
	}
	return key
}

// EvaluateBest returns the strongest 5-card rank available from the given
// cards (typically 7: two hole cards plus the board). The result is
// invariant under input permutation.
func EvaluateBest(cards []Card) HandRank {
	if len(cards) < 5 {
		return 0
	}

	var best HandRank
	combo := [5]Card{}
	n := len(cards)
	for a := 0; a < n-4; a++ {
		for b := a + 1; b < n-3; b++ {
			for c := b + 1; c < n-2; c++ {
				for d := c + 1; d < n-1; d++ {
					for e := d + 1; e < n; e++ {
						combo[0], combo[1], combo[2], combo[3], combo[4] =
							cards[a], cards[b], cards[c], cards[d], cards[e]
						if rank := EvaluateFive(combo); rank > best {
							best = rank
						}
					}
				}
			}
		}
	}
	return best
}

// EvaluateFive ranks exactly five cards.
func EvaluateFive(cards [5]Card) HandRank {
	ranks := make([]Rank, 5)
	flush := true
	for i, c := range cards {
		ranks[i] = c.Rank
		if c.Suit != cards[0].Suit {
			flush = false
		}
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] > ranks[j] })

	straightHigh := straightHighRank(ranks)
	straight := straightHigh != 0

	if straight && flush {
		return packRank(StraightFlush, []Rank{straightHigh})
	}

	// Group ranks by multiplicity, highest count first, then highest rank.
	type group struct {
		rank  Rank
		count int
	}
	var groups []group
	for i := 0; i < 5; {
		j := i
		for j < 5 && ranks[j] == ranks[i] {
			j++
		}
		groups = append(groups, group{rank: ranks[i], count: j - i})
		i = j
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].rank > groups[j].rank
	})

	tiebreaks := make([]Rank, 0, 5)
	for _, g := range groups {
		tiebreaks = append(tiebreaks, g.rank)
	}

	switch {
	case groups[0].count == 4:
		return packRank(FourOfAKind, tiebreaks)
	case groups[0].count == 3 && groups[1].count == 2:
		return packRank(FullHouse, tiebreaks)
	case flush:
		return packRank(Flush, ranks)
	case straight:
		return packRank(Straight, []Rank{straightHigh})
	case groups[0].count == 3:
		return packRank(ThreeOfAKind, tiebreaks)
	case groups[0].count == 2 && groups[1].count == 2:
		return packRank(TwoPair, tiebreaks)
	case groups[0].count == 2:
		return packRank(Pair, tiebreaks)
	default:
		return packRank(HighCard, ranks)
	}
}

// straightHighRank returns the high card of a straight formed by the five
// descending-sorted ranks, or 0 when there is none. The wheel
// (A-5-4-3-2) counts with high card 5.
func straightHighRank(desc []Rank) Rank {
	for i := 1; i < len(desc); i++ {
		if desc[i] == desc[i-1] {
			return 0
		}
	}
	if desc[0]-desc[4] == 4 {
		return desc[0]
	}
	if desc[0] == Ace && desc[1] == Five && desc[1]-desc[4] == 3 {
		return Five
	}
	return 0
}

// Compare returns 1 if a beats b, -1 if b beats a, and 0 on a tie.
func Compare(a, b HandRank) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
