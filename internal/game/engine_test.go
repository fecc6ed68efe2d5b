package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokerbots/playground/internal/randutil"
	"github.com/pokerbots/playground/internal/sandbox"
)

type legacyState struct {
	Seat         string   `json:"seat"`
	Street       string   `json:"street"`
	ToCall       int      `json:"to_call"`
	MinRaiseTo   int      `json:"min_raise_to"`
	Stack        int      `json:"stack"`
	Pot          int      `json:"pot"`
	LegalActions []string `json:"legal_actions"`
}

func decodeState(t *testing.T, state []byte) legacyState {
	t.Helper()
	var s legacyState
	require.NoError(t, json.Unmarshal(state, &s))
	return s
}

// callStation checks when free and calls any bet.
func callStation(t *testing.T) sandbox.Handle {
	return sandbox.NewInProcess(func(ctx context.Context, state []byte) (any, error) {
		s := decodeState(t, state)
		if s.ToCall > 0 {
			return map[string]any{"action": "call"}, nil
		}
		return map[string]any{"action": "check"}, nil
	})
}

// alwaysFold folds immediately.
func alwaysFold() sandbox.Handle {
	return sandbox.NewInProcess(func(ctx context.Context, state []byte) (any, error) {
		return map[string]any{"action": "fold"}, nil
	})
}

// jammer shoves the full stack at every opportunity.
func jammer(t *testing.T) sandbox.Handle {
	return sandbox.NewInProcess(func(ctx context.Context, state []byte) (any, error) {
		s := decodeState(t, state)
		return map[string]any{"action": "raise", "amount": s.Stack + s.Pot}, nil
	})
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	rt := sandbox.NewRuntime(zerolog.Nop(), sandbox.Config{Timeout: 5 * time.Second})
	return NewEngine(zerolog.Nop(), rt, DefaultParams(), "table-test")
}

func playHand(t *testing.T, e *Engine, bots map[SeatID]sandbox.Handle, button SeatID, seed int64) *HandResult {
	t.Helper()
	names := make(map[SeatID]string, len(bots))
	for seat := range bots {
		names[seat] = "bot-" + string(seat)
	}
	result, err := e.PlayHand(context.Background(), HandInput{
		HandID:    "1",
		Bots:      bots,
		SeatNames: names,
		Button:    button,
		RNG:       randutil.New(seed),
	})
	require.NoError(t, err)
	return result
}

func TestTwoPassiveBotsPlayOneHand(t *testing.T) {
	e := testEngine(t)
	result := playHand(t, e, map[SeatID]sandbox.Handle{
		"1": callStation(t),
		"2": callStation(t),
	}, "1", 42)

	assert.Len(t, result.Board, 5)
	assert.GreaterOrEqual(t, result.Pot, 200)

	sum := 0
	for _, delta := range result.Deltas {
		sum += delta
	}
	assert.Equal(t, 0, sum, "deltas must sum to zero")

	streets := map[string]bool{}
	for _, ev := range result.Actions {
		streets[ev.Street] = true
	}
	for _, street := range []string{StreetPreflop, StreetFlop, StreetTurn, StreetRiver} {
		assert.True(t, streets[street], "expected actions on %s", street)
	}
}

func TestFoldPreflopAwardsBlinds(t *testing.T) {
	e := testEngine(t)
	result := playHand(t, e, map[SeatID]sandbox.Handle{
		"1": alwaysFold(),
		"2": callStation(t),
	}, "1", 7)

	// Heads-up: button "1" posts the small blind and acts first preflop.
	assert.Equal(t, []SeatID{"2"}, result.Winners)
	assert.Empty(t, result.Board)
	assert.Equal(t, 50, result.Deltas["2"])
	assert.Equal(t, -50, result.Deltas["1"])
}

func TestAllInRunout(t *testing.T) {
	e := testEngine(t)
	result := playHand(t, e, map[SeatID]sandbox.Handle{
		"1": jammer(t),
		"2": callStation(t),
	}, "1", 99)

	assert.Len(t, result.Board, 5, "all-in hands must run out the board")
	assert.Equal(t, 20000, result.Pot)
	sum := 0
	for _, delta := range result.Deltas {
		sum += delta
	}
	assert.Equal(t, 0, sum)
}

func TestButtonFixupToFirstActiveSeat(t *testing.T) {
	e := testEngine(t)
	result := playHand(t, e, map[SeatID]sandbox.Handle{
		"3": callStation(t),
		"5": callStation(t),
	}, "1", 13)

	// Button "1" is not seated; first active seat "3" takes it and posts
	// the small blind heads-up.
	var blinds []ActionEvent
	for _, ev := range result.Actions {
		if ev.Action == "blind" {
			blinds = append(blinds, ev)
		}
	}
	require.Len(t, blinds, 2)
	assert.Equal(t, SeatID("3"), blinds[0].Seat)
	assert.Equal(t, 50, blinds[0].Amount)
	assert.Equal(t, SeatID("5"), blinds[1].Seat)
	assert.Equal(t, 100, blinds[1].Amount)
}

func TestThreeHandedBlindPositions(t *testing.T) {
	sb, bb, preflop, postflop := blindPositions([]SeatID{"1", "2", "3"}, "1")
	assert.Equal(t, SeatID("2"), sb)
	assert.Equal(t, SeatID("3"), bb)
	assert.Equal(t, SeatID("1"), preflop)
	assert.Equal(t, SeatID("2"), postflop)
}

func TestHeadsUpBlindPositions(t *testing.T) {
	sb, bb, preflop, postflop := blindPositions([]SeatID{"2", "4"}, "4")
	assert.Equal(t, SeatID("4"), sb)
	assert.Equal(t, SeatID("2"), bb)
	assert.Equal(t, SeatID("4"), preflop)
	assert.Equal(t, SeatID("2"), postflop)
}

func TestRequiresTwoSeats(t *testing.T) {
	e := testEngine(t)
	_, err := e.PlayHand(context.Background(), HandInput{
		HandID: "1",
		Bots:   map[SeatID]sandbox.Handle{"1": alwaysFold()},
		RNG:    randutil.New(1),
	})
	assert.Error(t, err)
}

func TestNoActionAfterFold(t *testing.T) {
	e := testEngine(t)
	result := playHand(t, e, map[SeatID]sandbox.Handle{
		"1": callStation(t),
		"2": alwaysFold(),
		"3": callStation(t),
	}, "1", 5)

	foldedAt := make(map[SeatID]int)
	for i, ev := range result.Actions {
		if prior, folded := foldedAt[ev.Seat]; folded {
			t.Fatalf("seat %s acted at index %d after folding at %d", ev.Seat, i, prior)
		}
		if ev.Action == "fold" {
			foldedAt[ev.Seat] = i
		}
	}
}

func TestDeltasBoundedByContributions(t *testing.T) {
	// Properties over a spread of seeds and bot mixes: deltas sum to
	// zero and no seat wins more than its opponents contributed.
	e := testEngine(t)
	for seed := int64(0); seed < 20; seed++ {
		bots := map[SeatID]sandbox.Handle{
			"1": callStation(t),
			"2": jammer(t),
			"3": alwaysFold(),
		}
		result := playHand(t, e, bots, "2", seed)

		contributions := make(map[SeatID]int)
		total := 0
		for _, ev := range result.Actions {
			contributions[ev.Seat] += ev.Amount
			total += ev.Amount
		}
		assert.Equal(t, result.Pot, total, "seed %d: pot must equal summed action amounts", seed)

		sum := 0
		for _, seat := range result.ActiveSeats {
			delta := result.Deltas[seat]
			sum += delta
			assert.GreaterOrEqual(t, delta, -contributions[seat], "seed %d seat %s", seed, seat)
			assert.LessOrEqual(t, delta, total-contributions[seat], "seed %d seat %s", seed, seat)
		}
		assert.Equal(t, 0, sum, "seed %d", seed)
	}
}

func TestSeededHandsAreReproducible(t *testing.T) {
	e := testEngine(t)
	run := func() *HandResult {
		return playHand(t, e, map[SeatID]sandbox.Handle{
			"1": callStation(t),
			"2": callStation(t),
		}, "1", 777)
	}
	a := run()
	b := run()
	assert.Equal(t, a.Board, b.Board)
	assert.Equal(t, a.HoleCards, b.HoleCards)
	assert.Equal(t, a.Winners, b.Winners)
	assert.Equal(t, a.Deltas, b.Deltas)
}

func TestBotErrorsDegradeToSafeActions(t *testing.T) {
	e := testEngine(t)
	crasher := sandbox.NewInProcess(func(ctx context.Context, state []byte) (any, error) {
		panic("bot bug")
	})
	result := playHand(t, e, map[SeatID]sandbox.Handle{
		"1": crasher,
		"2": callStation(t),
	}, "1", 3)

	// The crashing small blind folds to the big blind.
	assert.Equal(t, []SeatID{"2"}, result.Winners)
	assert.Equal(t, -50, result.Deltas["1"])
}

func TestOrderSeats(t *testing.T) {
	assert.Equal(t, []SeatID{"1", "3", "6"}, OrderSeats([]SeatID{"6", "1", "3"}))
	assert.True(t, ValidSeat("4"))
	assert.False(t, ValidSeat("7"))
}
