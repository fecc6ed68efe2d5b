package poker

import (
	rand "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBestCategories(t *testing.T) {
	tests := []struct {
		name     string
		cards    string
		expected Category
	}{
		{
			name:     "Royal Flush",
			cards:    "AsKsQsJsTs9h8h",
			expected: StraightFlush,
		},
		{
			name:     "Straight Flush",
			cards:    "9s8s7s6s5s4h3h",
			expected: StraightFlush,
		},
		{
			name:     "Four of a Kind",
			cards:    "AsAhAdAcKs2h3h",
			expected: FourOfAKind,
		},
		{
			name:     "Full House",
			cards:    "AsAhAdKsKh2h3h",
			expected: FullHouse,
		},
		{
			name:     "Flush",
			cards:    "AsKsQs8s6s4h3h",
			expected: Flush,
		},
		{
			name:     "Straight",
			cards:    "AsKhQdJcTs9h8h",
			expected: Straight,
		},
		{
			name:     "Wheel Straight",
			cards:    "Ah2d3c4s5h9c9d",
			expected: Straight,
		},
		{
			name:     "Three of a Kind",
			cards:    "AsAhAdKs9c7h5h",
			expected: ThreeOfAKind,
		},
		{
			name:     "Two Pair",
			cards:    "AsAhKdKs9c7h5h",
			expected: TwoPair,
		},
		{
			name:     "Pair",
			cards:    "AsAhKdQs9c7h5h",
			expected: Pair,
		},
		{
			name:     "High Card",
			cards:    "AsKhQd9s7c5h3h",
			expected: HighCard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank := EvaluateBest(MustParseCards(tt.cards))
			assert.Equal(t, tt.expected, rank.Category())
		})
	}
}

func TestCategoryOrdering(t *testing.T) {
	// One representative 7-card hand per category, weakest first.
	ladder := []string{
		"AsKhQd9s7c5h3h", // high card
		"AsAhKdQs9c7h5h", // pair
		"AsAhKdKs9c7h5h", // two pair
		"AsAhAdKs9c7h5h", // trips
		"AsKhQdJcTs3h2h", // straight
		"AsKsQs8s6s4h3h", // flush
		"AsAhAdKsKh2h3h", // full house
		"AsAhAdAcKs2h3h", // quads
		"9s8s7s6s5s4h3h", // straight flush
	}

	prev := HandRank(0)
	for _, cards := range ladder {
		rank := EvaluateBest(MustParseCards(cards))
		assert.Greater(t, rank, prev, "hand %s should outrank the previous category", cards)
		prev = rank
	}
}

func TestPermutationInvariance(t *testing.T) {
	cards := MustParseCards("AsAhKdKs9c7h5h")
	want := EvaluateBest(cards)

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 50; i++ {
		shuffled := append([]Card(nil), cards...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, EvaluateBest(shuffled))
	}
}

func TestKickerBreaksTies(t *testing.T) {
	// Same pair of aces, differing last kicker.
	a := EvaluateBest(MustParseCards("AsAhKdQs9c7h5h"))
	b := EvaluateBest(MustParseCards("AsAhKdQs8c7h5h"))
	require.Equal(t, a.Category(), b.Category())
	assert.Equal(t, 1, Compare(a, b))
}

func TestBoardPlaysTie(t *testing.T) {
	// Board is a broadway straight; neither hole pair improves it.
	board := "AhKdQcJsTh"
	a := EvaluateBest(MustParseCards(board + "2c3c"))
	b := EvaluateBest(MustParseCards(board + "7d8d"))
	assert.Equal(t, 0, Compare(a, b))
}

func TestWheelLosesToSixHighStraight(t *testing.T) {
	wheel := EvaluateBest(MustParseCards("Ah2d3c4s5h9c9d"))
	sixHigh := EvaluateBest(MustParseCards("2d3c4s5h6d9c9d"))
	assert.Equal(t, -1, Compare(wheel, sixHigh))
}

func TestEvaluateFiveFullHouseTiebreak(t *testing.T) {
	// Trips rank dominates the pair rank.
	acesOverTwos := EvaluateFive([5]Card{
		MustParseCard("As"), MustParseCard("Ah"), MustParseCard("Ad"),
		MustParseCard("2s"), MustParseCard("2h"),
	})
	kingsOverAces := EvaluateFive([5]Card{
		MustParseCard("Ks"), MustParseCard("Kh"), MustParseCard("Kd"),
		MustParseCard("As"), MustParseCard("Ah"),
	})
	assert.Equal(t, 1, Compare(acesOverTwos, kingsOverAces))
}

func TestEvaluateBestTooFewCards(t *testing.T) {
	assert.Equal(t, HandRank(0), EvaluateBest(MustParseCards("AsKh")))
}
