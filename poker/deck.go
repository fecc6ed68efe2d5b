package poker

import rand "math/rand/v2"

// Deck is an ordered set of the 52 distinct cards. It is mutated only by
// Shuffle and Deal during a single hand.
type Deck struct {
	cards []Card
}

// NewDeck returns a full deck in construction order (unshuffled).
func NewDeck() *Deck {
	cards := make([]Card, 0, 52)
	for rank := Two; rank <= Ace; rank++ {
		for _, suit := range Suits {
			cards = append(cards, Card{Rank: rank, Suit: suit})
		}
	}
	return &Deck{cards: cards}
}

// Shuffle permutes the deck using the provided RNG.
func (d *Deck) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.cards), func(i, j int) {
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	})
}

// Deal removes and returns the top n cards. It panics if the deck is
// exhausted; a single hand never draws more than 52 cards.
func (d *Deck) Deal(n int) []Card {
	if n > len(d.cards) {
		panic("poker: deck exhausted")
	}
	dealt := make([]Card, n)
	for i := range dealt {
		last := len(d.cards) - 1
		dealt[i] = d.cards[last]
		d.cards = d.cards[:last]
	}
	return dealt
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int {
	return len(d.cards)
}
