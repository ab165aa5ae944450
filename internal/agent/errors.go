package agent

import "errors"

var (
	// ErrNoAgent is returned by Shutdown when Setup never ran
	ErrNoAgent = errors.New("no agent present")
	// ErrNoParentContext is returned by InstrumentSync when no request or span is current
	ErrNoParentContext = errors.New("no parent request or span in context")
)
