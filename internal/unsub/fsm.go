package unsub

import (
	"context"
	"fmt"

	"inboxsweep/internal/extract"
	"inboxsweep/internal/model"
)

// state is a node of the per-record strategy machine. Entering
// HeaderAttempted or BodyAttempted runs that strategy; each step returns the
// next state.
type state int

const (
	stateStart state = iota
	stateHeaderAttempted
	stateBodyAttempted
	stateTerminal
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateHeaderAttempted:
		return "header-attempted"
	case stateBodyAttempted:
		return "body-attempted"
	case stateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type step func(ctx context.Context, run *batchRun, a *attempt) state

// attempt carries one record through the machine.
type attempt struct {
	rec         model.TieredRecord
	out         model.OutcomeRecord
	interrupted bool // cancelled mid-attempt
}

func (a *attempt) finish(status model.Status, method model.Method, msg, manualURL string) state {
	a.out = outcome(a.rec, status, method, msg, manualURL)
	return stateTerminal
}

func (a *attempt) interrupt() state {
	a.interrupted = true
	return stateTerminal
}

func (e *Engine) start(_ context.Context, _ *batchRun, a *attempt) state {
	rec := a.rec
	switch {
	case rec.Whitelisted || rec.Difficulty == model.DifficultyWhitelisted:
		return a.finish(model.StatusSkipped, model.MethodNone, "sender is whitelisted", "")
	case !rec.HasLink():
		return a.finish(model.StatusFailed, model.MethodNone, "no unsubscribe mechanism found", "")
	case rec.UnsubscribeOrigin == model.OriginHeader && extract.IsHTTP(rec.UnsubscribeLink):
		return stateHeaderAttempted
	case bodyTarget(rec) != "":
		return stateBodyAttempted
	case extract.IsMailto(rec.UnsubscribeLink):
		return a.finish(model.StatusManualRequired, model.MethodMailtoUnsupported,
			fmt.Sprintf("%s only accepts unsubscribe requests by email; send it yourself", senderLabel(rec)),
			rec.UnsubscribeLink)
	default:
		return a.finish(model.StatusFailed, model.MethodNone, "unsupported unsubscribe link", "")
	}
}
