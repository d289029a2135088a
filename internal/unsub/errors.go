package unsub

import (
	"errors"
	"fmt"
)

// Kind classifies why a strategy failed.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindNetwork
	KindAutomation
	KindResourceExhausted // browser session could not be created
	KindRejected          // endpoint answered with a non-success status
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network error"
	case KindAutomation:
		return "automation failure"
	case KindResourceExhausted:
		return "resource exhausted"
	case KindRejected:
		return "rejected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StrategyError is returned by a strategy that could not complete. Msg is
// safe to show to users; Err carries the underlying cause for logs.
type StrategyError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *StrategyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// userMessage returns the human-readable part of err.
func userMessage(err error, fallback string) string {
	var se *StrategyError
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	return fallback
}
