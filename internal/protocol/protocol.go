// Package protocol builds the decision payload a bot consumes and
// normalizes the raw action it returns. Two wire versions co-exist: the
// legacy flat object and the structured 2.0 payload. Bots opt into 2.0 by
// declaring it; everything else stays on legacy.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// LegacyVersion is the flat payload served when a bot declares nothing.
	LegacyVersion = "1.0"
	// V2 is the structured payload.
	V2 = "2.0"
)

// SelectVersion maps a declared protocol version to the runtime one.
// Anything other than an explicit 2.0 declaration falls back to legacy.
func SelectVersion(declared string) string {
	if declared == V2 {
		return V2
	}
	return LegacyVersion
}

// HistoryEvent is one applied action, as seen by the payload builder.
type HistoryEvent struct {
	Street string
	Seat   string
	Action string
	Amount int
}

// StateInput carries everything the builder needs for one decision. Seats
// is the ordered active seating; map fields are keyed by seat id.
type StateInput struct {
	ProtocolVersion string
	TableID         string
	HandID          string
	Seat            string
	Street          string
	HoleCards       []string
	Board           []string
	Pot             int
	ToCall          int
	MinRaiseTo      int
	LegalActions    []string
	Seats           []string
	SeatNames       map[string]string
	Stacks          map[string]int
	Bets            map[string]int
	Folded          map[string]bool
	Button          string
	SmallBlindSeat  string
	BigBlindSeat    string
	SmallBlind      int
	BigBlind        int
	History         []HistoryEvent
	ServerTime      time.Time
}

// DecisionID derives the stable identifier for one decision point.
func DecisionID(in StateInput) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d", in.TableID, in.HandID, in.Street, in.Seat, len(in.History))
}

// BuildState serializes the decision payload for the given protocol
// version. The result is canonical JSON (sorted keys, no insignificant
// whitespace); for 2.0 payloads meta.state_bytes equals the byte length of
// the returned document.
func BuildState(in StateInput) ([]byte, error) {
	if in.ProtocolVersion != V2 {
		return json.Marshal(buildLegacyState(in))
	}
	return buildV2State(in)
}

func buildLegacyState(in StateInput) map[string]any {
	players := make([]map[string]any, 0, len(in.Seats))
	for _, seat := range in.Seats {
		players = append(players, map[string]any{
			"seat":   seat,
			"name":   in.SeatNames[seat],
			"stack":  in.Stacks[seat],
			"bet":    in.Bets[seat],
			"folded": in.Folded[seat],
			"all_in": in.Stacks[seat] == 0,
		})
	}
	return map[string]any{
		"seat":          in.Seat,
		"seat_name":     in.SeatNames[in.Seat],
		"street":        in.Street,
		"hole_cards":    stringSlice(in.HoleCards),
		"board":         stringSlice(in.Board),
		"pot":           in.Pot,
		"stack":         in.Stacks[in.Seat],
		"to_call":       in.ToCall,
		"min_raise_to":  in.MinRaiseTo,
		"legal_actions": stringSlice(in.LegalActions),
		"players":       players,
		"button":        in.Button,
		"small_blind":   in.SmallBlindSeat,
		"big_blind":     in.BigBlindSeat,
	}
}

func buildV2State(in StateInput) ([]byte, error) {
	playerID := func(seat string) string { return "player-" + seat }
	maxRaiseTo := in.Bets[in.Seat] + in.Stacks[in.Seat]

	history := make([]map[string]any, 0, len(in.History))
	runningPot := 0
	for i, ev := range in.History {
		if ev.Amount > 0 {
			runningPot += ev.Amount
		}
		history = append(history, map[string]any{
			"index":     i,
			"street":    ev.Street,
			"player_id": playerID(ev.Seat),
			"seat_id":   ev.Seat,
			"action":    ev.Action,
			"amount":    ev.Amount,
			"pot_after": runningPot,
		})
	}

	players := make([]map[string]any, 0, len(in.Seats))
	for _, seat := range in.Seats {
		players = append(players, map[string]any{
			"player_id": playerID(seat),
			"seat_id":   seat,
			"name":      in.SeatNames[seat],
			"stack":     in.Stacks[seat],
			"bet":       in.Bets[seat],
			"folded":    in.Folded[seat],
			"all_in":    in.Stacks[seat] == 0,
			"is_hero":   seat == in.Seat,
		})
	}

	meta := map[string]any{
		"server_time": in.ServerTime.UTC().Format(time.RFC3339Nano),
		"state_bytes": 0,
	}
	state := map[string]any{
		"protocol_version": V2,
		"decision_id":      DecisionID(in),
		"table": map[string]any{
			"table_id":    in.TableID,
			"hand_id":     in.HandID,
			"street":      in.Street,
			"button_seat": in.Button,
			"small_blind": in.SmallBlind,
			"big_blind":   in.BigBlind,
		},
		"hero": map[string]any{
			"player_id":    playerID(in.Seat),
			"seat_id":      in.Seat,
			"name":         in.SeatNames[in.Seat],
			"hole_cards":   stringSlice(in.HoleCards),
			"stack":        in.Stacks[in.Seat],
			"bet":          in.Bets[in.Seat],
			"to_call":      in.ToCall,
			"min_raise_to": in.MinRaiseTo,
			"max_raise_to": maxRaiseTo,
		},
		"players": players,
		"board": map[string]any{
			"cards": stringSlice(in.Board),
			"pot":   in.Pot,
		},
		"legal_actions":  legalActionEntries(in.LegalActions, in.ToCall, in.MinRaiseTo, maxRaiseTo),
		"action_history": history,
		"meta":           meta,
	}

	// Fix point: state_bytes must equal the serialized length, which
	// itself depends on the digits of state_bytes.
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("serializing decision state: %w", err)
	}
	size := len(encoded)
	for {
		meta["state_bytes"] = size
		encoded, err = json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("serializing decision state: %w", err)
		}
		if len(encoded) == size {
			return encoded, nil
		}
		size = len(encoded)
	}
}

func legalActionEntries(actions []string, toCall, minRaiseTo, maxRaiseTo int) []map[string]any {
	entries := make([]map[string]any, 0, len(actions))
	for _, action := range actions {
		switch action {
		case "fold", "check":
			entries = append(entries, map[string]any{"action": action})
		case "call":
			amount := max(toCall, 0)
			entries = append(entries, map[string]any{
				"action":     action,
				"min_amount": amount,
				"max_amount": amount,
			})
		case "bet", "raise":
			entries = append(entries, map[string]any{
				"action":     action,
				"min_amount": minRaiseTo,
				"max_amount": maxRaiseTo,
			})
		}
	}
	return entries
}

// LegalActions lists what the actor may do given the round state.
func LegalActions(toCall, stack, currentBet int) []string {
	var actions []string
	if toCall > 0 {
		actions = append(actions, "fold", "call")
		if stack > toCall {
			actions = append(actions, "raise")
		}
	} else {
		actions = append(actions, "check")
		if stack > 0 {
			actions = append(actions, "bet")
		}
	}
	return actions
}

// MinRaiseTo converts a raise increment into the total target bet.
func MinRaiseTo(currentBet, minRaise int) int {
	if currentBet == 0 {
		return minRaise
	}
	return currentBet + minRaise
}

func stringSlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
