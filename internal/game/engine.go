package game

import (
	"context"
	"fmt"
	rand "math/rand/v2"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/pokerbots/playground/internal/protocol"
	"github.com/pokerbots/playground/internal/sandbox"
	"github.com/pokerbots/playground/poker"
)

// Params are the chip-economy knobs, in minor units.
type Params struct {
	StartingStack int
	SmallBlind    int
	BigBlind      int
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{StartingStack: 10000, SmallBlind: 50, BigBlind: 100}
}

// Engine plays single hands. It owns no seating state: every PlayHand call
// receives the full table snapshot and leaves no residue.
type Engine struct {
	logger  zerolog.Logger
	runtime *sandbox.Runtime
	params  Params
	tableID string
	clock   quartz.Clock
}

// NewEngine builds an engine. The runtime drives every bot decision;
// tableID namespaces decision ids across restarts.
func NewEngine(logger zerolog.Logger, runtime *sandbox.Runtime, params Params, tableID string) *Engine {
	return &Engine{
		logger:  logger.With().Str("component", "engine").Logger(),
		runtime: runtime,
		params:  params,
		tableID: tableID,
		clock:   quartz.NewReal(),
	}
}

// WithClock swaps the time source, for tests.
func (e *Engine) WithClock(clock quartz.Clock) *Engine {
	e.clock = clock
	return e
}

// Params returns the engine's chip parameters.
func (e *Engine) Params() Params {
	return e.params
}

// HandInput is everything one hand needs. Bots maps seat to its loaded
// handle; Protocols maps seat to its runtime protocol version (defaulted
// to legacy when absent). RNG shuffles the deck.
type HandInput struct {
	HandID    string
	Bots      map[SeatID]sandbox.Handle
	SeatNames map[SeatID]string
	Protocols map[SeatID]string
	Button    SeatID
	RNG       *rand.Rand
}

// handState is the mutable state of one hand in flight.
type handState struct {
	order         []SeatID
	button        SeatID
	smallBlind    SeatID
	bigBlind      SeatID
	stacks        map[SeatID]int
	bets          map[SeatID]int
	contributions map[SeatID]int
	folded        map[SeatID]bool
	holeCards     map[SeatID][]poker.Card
	board         []poker.Card
	actions       []ActionEvent
	pot           int
	currentBet    int
	minRaise      int
	bankroll      int
}

// PlayHand runs one complete hand and returns its result. Bot failures
// never surface as errors; only engine invariant violations do.
func (e *Engine) PlayHand(ctx context.Context, in HandInput) (*HandResult, error) {
	order := make([]SeatID, 0, len(in.Bots))
	for seat := range in.Bots {
		order = append(order, seat)
	}
	order = OrderSeats(order)
	if len(order) < 2 {
		return nil, fmt.Errorf("at least two seats must be active to play a hand")
	}

	button := in.Button
	if _, ok := in.Bots[button]; !ok {
		button = order[0]
	}

	deck := poker.NewDeck()
	deck.Shuffle(in.RNG)

	smallBlind, bigBlind, preflopStart, postflopStart := blindPositions(order, button)

	hs := &handState{
		order:         order,
		button:        button,
		smallBlind:    smallBlind,
		bigBlind:      bigBlind,
		stacks:        make(map[SeatID]int, len(order)),
		bets:          make(map[SeatID]int, len(order)),
		contributions: make(map[SeatID]int, len(order)),
		folded:        make(map[SeatID]bool, len(order)),
		holeCards:     make(map[SeatID][]poker.Card, len(order)),
	}
	for _, seat := range order {
		hs.stacks[seat] = e.params.StartingStack
		hs.holeCards[seat] = deck.Deal(2)
	}
	hs.bankroll = e.params.StartingStack * len(order)

	e.postBlind(hs, smallBlind, e.params.SmallBlind)
	e.postBlind(hs, bigBlind, e.params.BigBlind)
	hs.currentBet = hs.bets[bigBlind]
	hs.minRaise = e.params.BigBlind

	log := e.logger.With().Str("hand_id", in.HandID).Logger()
	log.Debug().Str("button", string(button)).Int("seats", len(order)).Msg("hand started")

	streets := []struct {
		name  string
		deal  int
		start SeatID
	}{
		{StreetPreflop, 0, preflopStart},
		{StreetFlop, 3, postflopStart},
		{StreetTurn, 1, postflopStart},
		{StreetRiver, 1, postflopStart},
	}

	for i, street := range streets {
		if i > 0 {
			if e.noActionableSeats(hs) {
				e.dealRemainingBoard(deck, hs)
				return e.finishAtShowdown(hs, log)
			}
			for _, seat := range hs.order {
				hs.bets[seat] = 0
			}
			hs.currentBet = 0
			hs.minRaise = e.params.BigBlind
			hs.board = append(hs.board, deck.Deal(street.deal)...)
		}

		foldedWinner, err := e.runBettingRound(ctx, in, hs, street.name, street.start)
		if err != nil {
			return nil, err
		}
		if foldedWinner != "" {
			return e.finishFolded(hs, foldedWinner, log), nil
		}
	}

	return e.finishAtShowdown(hs, log)
}

func (e *Engine) postBlind(hs *handState, seat SeatID, amount int) {
	actual := min(amount, hs.stacks[seat])
	hs.stacks[seat] -= actual
	hs.bets[seat] += actual
	hs.contributions[seat] += actual
	hs.pot += actual
	hs.actions = append(hs.actions, ActionEvent{
		Seat: seat, Action: "blind", Amount: actual, Street: StreetPreflop,
	})
}

// runBettingRound drives one street. It returns the last unfolded seat
// when everyone else folds, or empty when the round completes normally.
func (e *Engine) runBettingRound(ctx context.Context, in HandInput, hs *handState, street string, startingSeat SeatID) (SeatID, error) {
	pending := make(map[SeatID]bool)
	for _, seat := range hs.order {
		if !hs.folded[seat] && hs.stacks[seat] > 0 {
			pending[seat] = true
		}
	}
	if len(pending) == 0 {
		return "", nil
	}

	seat := startingSeat
	if !pending[seat] {
		seat = nextPendingSeat(seat, hs.order, pending)
	}

	for len(pending) > 0 && seat != "" {
		if !pending[seat] {
			seat = nextPendingSeat(seat, hs.order, pending)
			continue
		}
		if hs.folded[seat] {
			return "", invariantErrorf("folded seat %s selected to act on %s", seat, street)
		}

		toCall := hs.currentBet - hs.bets[seat]
		legal := protocol.LegalActions(toCall, hs.stacks[seat], hs.currentBet)
		minRaiseTo := protocol.MinRaiseTo(hs.currentBet, hs.minRaise)

		decision := e.requestDecision(ctx, in, hs, street, seat, toCall, minRaiseTo, legal)
		action, amount := protocol.Normalize(decision, protocol.RoundContext{
			ToCall:       toCall,
			CurrentBet:   hs.currentBet,
			MinRaiseTo:   minRaiseTo,
			Stack:        hs.stacks[seat],
			Bet:          hs.bets[seat],
			LegalActions: legal,
		})

		switch action {
		case "fold":
			hs.actions = append(hs.actions, ActionEvent{Seat: seat, Action: "fold", Amount: 0, Street: street})
			hs.folded[seat] = true
			delete(pending, seat)
			if remaining := e.unfoldedSeats(hs); len(remaining) == 1 {
				return remaining[0], nil
			}
		case "check":
			hs.actions = append(hs.actions, ActionEvent{Seat: seat, Action: "check", Amount: 0, Street: street})
			delete(pending, seat)
		case "call":
			delta := min(amount, hs.stacks[seat])
			e.moveChips(hs, seat, delta)
			hs.actions = append(hs.actions, ActionEvent{Seat: seat, Action: "call", Amount: delta, Street: street})
			delete(pending, seat)
		case "bet", "raise":
			delta := min(max(amount-hs.bets[seat], 0), hs.stacks[seat])
			e.moveChips(hs, seat, delta)
			raiseSize := hs.bets[seat] - hs.currentBet
			hs.currentBet = hs.bets[seat]
			if raiseSize > 0 {
				hs.minRaise = max(raiseSize, hs.minRaise)
			}
			// A raise re-opens action for every other live seat with chips.
			for k := range pending {
				delete(pending, k)
			}
			for _, other := range hs.order {
				if !hs.folded[other] && hs.stacks[other] > 0 && other != seat {
					pending[other] = true
				}
			}
			hs.actions = append(hs.actions, ActionEvent{Seat: seat, Action: action, Amount: delta, Street: street})
		default:
			return "", invariantErrorf("normalizer produced unknown action %q", action)
		}

		if err := e.checkConservation(hs); err != nil {
			return "", err
		}
		if len(pending) == 0 {
			return "", nil
		}
		seat = nextPendingSeat(seat, hs.order, pending)
	}
	return "", nil
}

// requestDecision builds the protocol state and runs the sandboxed Decide.
// Serialization failures and every sandbox error come back as a decision
// the normalizer can degrade safely.
func (e *Engine) requestDecision(ctx context.Context, in HandInput, hs *handState, street string, seat SeatID, toCall, minRaiseTo int, legal []string) protocol.RawAction {
	version := protocol.SelectVersion(in.Protocols[seat])

	input := protocol.StateInput{
		ProtocolVersion: version,
		TableID:         e.tableID,
		HandID:          in.HandID,
		Seat:            string(seat),
		Street:          street,
		HoleCards:       poker.CardStrings(hs.holeCards[seat]),
		Board:           poker.CardStrings(hs.board),
		Pot:             hs.pot,
		ToCall:          toCall,
		MinRaiseTo:      minRaiseTo,
		LegalActions:    legal,
		Seats:           seatStrings(hs.order),
		SeatNames:       seatNameStrings(in.SeatNames),
		Stacks:          seatIntMap(hs.stacks),
		Bets:            seatIntMap(hs.bets),
		Folded:          seatBoolMap(hs.folded),
		Button:          string(hs.button),
		SmallBlindSeat:  string(hs.smallBlind),
		BigBlindSeat:    string(hs.bigBlind),
		SmallBlind:      e.params.SmallBlind,
		BigBlind:        e.params.BigBlind,
		History:         historyEvents(hs.actions),
		ServerTime:      e.clock.Now(),
	}

	state, err := protocol.BuildState(input)
	if err != nil {
		e.logger.Warn().Err(err).Str("seat", string(seat)).Msg("decision state not serializable")
		return protocol.RawAction{Invalid: true}
	}

	d := e.runtime.Decide(ctx, in.Bots[seat], state)
	if d.Err != "" {
		e.logger.Debug().Str("seat", string(seat)).Str("error", d.Err).Msg("decision degraded")
	}
	return protocol.RawAction{Action: d.Action, Amount: d.Amount}
}

func (e *Engine) moveChips(hs *handState, seat SeatID, delta int) {
	hs.stacks[seat] -= delta
	hs.bets[seat] += delta
	hs.contributions[seat] += delta
	hs.pot += delta
}

// checkConservation verifies that chips neither appear nor vanish.
func (e *Engine) checkConservation(hs *handState) error {
	total := 0
	for _, seat := range hs.order {
		if hs.stacks[seat] < 0 {
			return invariantErrorf("seat %s stack went negative", seat)
		}
		total += hs.stacks[seat] + hs.contributions[seat]
	}
	if total != hs.bankroll {
		return invariantErrorf("chip conservation broken: have %d want %d", total, hs.bankroll)
	}
	return nil
}

func (e *Engine) unfoldedSeats(hs *handState) []SeatID {
	var remaining []SeatID
	for _, seat := range hs.order {
		if !hs.folded[seat] {
			remaining = append(remaining, seat)
		}
	}
	return remaining
}

func (e *Engine) noActionableSeats(hs *handState) bool {
	for _, seat := range hs.order {
		if !hs.folded[seat] && hs.stacks[seat] > 0 {
			return false
		}
	}
	return true
}

func (e *Engine) dealRemainingBoard(deck *poker.Deck, hs *handState) {
	for len(hs.board) < 5 && deck.Remaining() > 0 {
		hs.board = append(hs.board, deck.Deal(1)...)
	}
}

func (e *Engine) finishFolded(hs *handState, winner SeatID, log zerolog.Logger) *HandResult {
	payout := 0
	for _, seat := range hs.order {
		payout += hs.contributions[seat]
	}
	deltas := make(map[SeatID]int, len(hs.order))
	for _, seat := range hs.order {
		deltas[seat] = -hs.contributions[seat]
	}
	deltas[winner] += payout

	log.Debug().Str("winner", string(winner)).Int("pot", hs.pot).Msg("hand won by fold")
	return e.result(hs, []SeatID{winner}, deltas)
}

func (e *Engine) finishAtShowdown(hs *handState, log zerolog.Logger) (*HandResult, error) {
	ranks := make(map[SeatID]poker.HandRank)
	for _, seat := range hs.order {
		if hs.folded[seat] {
			continue
		}
		cards := append(append([]poker.Card(nil), hs.holeCards[seat]...), hs.board...)
		ranks[seat] = poker.EvaluateBest(cards)
	}
	if len(ranks) == 0 {
		return nil, invariantErrorf("showdown with no eligible seats")
	}

	var best poker.HandRank
	for _, rank := range ranks {
		if rank > best {
			best = rank
		}
	}
	var winners []SeatID
	for _, seat := range hs.order {
		if rank, ok := ranks[seat]; ok && rank == best {
			winners = append(winners, seat)
		}
	}

	payouts := calculatePayouts(hs.contributions, ranks, hs.order)
	deltas := make(map[SeatID]int, len(hs.order))
	sum := 0
	for _, seat := range hs.order {
		deltas[seat] = payouts[seat] - hs.contributions[seat]
		sum += deltas[seat]
	}
	if sum != 0 {
		return nil, invariantErrorf("deltas sum to %d, want 0", sum)
	}

	log.Debug().Int("pot", hs.pot).Int("winners", len(winners)).Msg("hand resolved at showdown")
	return e.result(hs, winners, deltas), nil
}

func (e *Engine) result(hs *handState, winners []SeatID, deltas map[SeatID]int) *HandResult {
	return &HandResult{
		Winners:     winners,
		Pot:         hs.pot,
		Board:       hs.board,
		HoleCards:   hs.holeCards,
		Actions:     hs.actions,
		Deltas:      deltas,
		ActiveSeats: hs.order,
	}
}

// blindPositions computes blind seats and street starting actors.
// Heads-up: the button posts the small blind, acts first preflop and
// second postflop. Three-handed and up: standard positions.
func blindPositions(order []SeatID, button SeatID) (sb, bb, preflopStart, postflopStart SeatID) {
	buttonIndex := 0
	for i, seat := range order {
		if seat == button {
			buttonIndex = i
			break
		}
	}
	n := len(order)
	if n == 2 {
		sb = button
		bb = order[(buttonIndex+1)%2]
		return sb, bb, sb, bb
	}
	sb = order[(buttonIndex+1)%n]
	bb = order[(buttonIndex+2)%n]
	preflopStart = order[(buttonIndex+3)%n]
	postflopStart = sb
	return sb, bb, preflopStart, postflopStart
}

// nextPendingSeat walks clockwise from current to the next seat still
// owing action, or empty when none remain.
func nextPendingSeat(current SeatID, order []SeatID, pending map[SeatID]bool) SeatID {
	if len(pending) == 0 {
		return ""
	}
	startIndex := -1
	for i, seat := range order {
		if seat == current {
			startIndex = i
			break
		}
	}
	for offset := 1; offset <= len(order); offset++ {
		seat := order[(startIndex+offset)%len(order)]
		if pending[seat] {
			return seat
		}
	}
	return ""
}

func seatStrings(seats []SeatID) []string {
	out := make([]string, len(seats))
	for i, seat := range seats {
		out[i] = string(seat)
	}
	return out
}

func seatNameStrings(names map[SeatID]string) map[string]string {
	out := make(map[string]string, len(names))
	for seat, name := range names {
		out[string(seat)] = name
	}
	return out
}

func seatIntMap(m map[SeatID]int) map[string]int {
	out := make(map[string]int, len(m))
	for seat, v := range m {
		out[string(seat)] = v
	}
	return out
}

func seatBoolMap(m map[SeatID]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for seat, v := range m {
		if v {
			out[string(seat)] = true
		}
	}
	return out
}

func historyEvents(actions []ActionEvent) []protocol.HistoryEvent {
	out := make([]protocol.HistoryEvent, len(actions))
	for i, ev := range actions {
		out[i] = protocol.HistoryEvent{
			Street: ev.Street,
			Seat:   string(ev.Seat),
			Action: ev.Action,
			Amount: ev.Amount,
		}
	}
	return out
}
