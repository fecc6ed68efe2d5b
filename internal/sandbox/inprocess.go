package sandbox

import (
	"context"
	"fmt"
)

// Strategy is a trusted in-process bot implementation. It receives the
// serialized decision state and returns the reply value, typically a
// map with "action" and "amount" keys.
type Strategy func(ctx context.Context, state []byte) (any, error)

// InProcess runs a Strategy inside the server process. Only for trusted
// bots: the strategy shares the address space, so isolation is limited to
// panic containment and the runtime's timeout.
type InProcess struct {
	strategy Strategy
}

// NewInProcess wraps a strategy as a Handle.
func NewInProcess(strategy Strategy) *InProcess {
	return &InProcess{strategy: strategy}
}

// Decide invokes the strategy and normalizes its reply. Panics and errors
// are contained and reported as "error:<msg>".
func (b *InProcess) Decide(ctx context.Context, state []byte) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = errorDecision(fmt.Sprintf("%s:%v", ErrKindError, r))
		}
	}()

	reply, err := b.strategy(ctx, state)
	if err != nil {
		return errorDecision(fmt.Sprintf("%s:%v", ErrKindError, err))
	}
	return normalizeReply(reply)
}

// Close is a no-op; in-process bots hold no external resources.
func (b *InProcess) Close() error {
	return nil
}
