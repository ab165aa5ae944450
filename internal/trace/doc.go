// Package trace models the units of work reported to the agent.
//
// A Request is the root of a tree of Spans. Spans are started through
// StartChildSpan on a Request or on another Span and are stopped either
// directly or by stopping an ancestor, which stops every descendant
// depth-first before the ancestor itself.
//
// Nothing is transmitted while units run. Send walks the tree and emits, for
// each unit: its start message, the full sequence of every child in creation
// order, one tag message per tag, then its stop message. A unit is sent at
// most once. Failures are logged and reported to the caller of Send but never
// panic or block instrumented code beyond the send itself.
//
// Spans that run longer than the configured slow threshold capture the
// caller's stack when they stop and carry it in the "stack" tag.
package trace
