package protocol

// RawAction is the decoded bot reply before normalization. Invalid is set
// when the reply was not a usable mapping at all.
type RawAction struct {
	Action  string
	Amount  int
	Invalid bool
}

// RoundContext is the betting state the normalizer validates against.
// CurrentBet and MinRaiseTo are street totals; Bet is the actor's current
// street total.
type RoundContext struct {
	ToCall       int
	CurrentBet   int
	MinRaiseTo   int
	Stack        int
	Bet          int
	LegalActions []string
}

// Normalize coerces a raw bot action into a legal (action, amount) pair.
// It never errors: anything unusable degrades to the safe fallback, fold
// when facing a bet and check when free. Bet and raise amounts are
// interpreted as the target total for the street and clamped to
// [MinRaiseTo, Bet+Stack].
func Normalize(raw RawAction, ctx RoundContext) (string, int) {
	if raw.Invalid {
		return fallback(ctx.ToCall)
	}

	action := raw.Action
	switch action {
	case "fold", "check", "call", "bet", "raise":
	default:
		return fallback(ctx.ToCall)
	}

	// Coerce bet/raise and check/call to whichever fits the round.
	switch {
	case action == "bet" && ctx.CurrentBet > 0:
		action = "raise"
	case action == "raise" && ctx.CurrentBet == 0:
		action = "bet"
	case action == "check" && ctx.ToCall > 0:
		action = "call"
	case action == "call" && ctx.ToCall <= 0:
		action = "check"
	}

	if !contains(ctx.LegalActions, action) {
		return fallback(ctx.ToCall)
	}

	switch action {
	case "fold":
		if ctx.ToCall == 0 {
			return "check", 0
		}
		return "fold", 0
	case "check":
		return "check", 0
	case "call":
		return "call", min(ctx.ToCall, ctx.Stack)
	}

	// bet or raise
	maxTotal := ctx.Bet + ctx.Stack
	if maxTotal <= ctx.CurrentBet {
		return degradeToCall(ctx)
	}

	desired := raw.Amount
	if desired < ctx.MinRaiseTo {
		if maxTotal >= ctx.MinRaiseTo {
			desired = ctx.MinRaiseTo
		} else {
			desired = maxTotal
		}
	}
	if desired > maxTotal {
		desired = maxTotal
	}
	if desired <= ctx.CurrentBet {
		return degradeToCall(ctx)
	}
	return action, desired
}

func degradeToCall(ctx RoundContext) (string, int) {
	if ctx.ToCall > 0 {
		return "call", min(ctx.ToCall, ctx.Stack)
	}
	return "check", 0
}

func fallback(toCall int) (string, int) {
	if toCall > 0 {
		return "fold", 0
	}
	return "check", 0
}

func contains(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
