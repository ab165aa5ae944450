// Package transport talks to the agent over a pooled stream socket.
//
// The agent's protocol carries no correlation ID, so every connection serves
// at most one exchange at a time: the pool leases a connection exclusively to
// one Send, the reply read from that connection is the answer, and a
// connection whose exchange times out is destroyed rather than reused. Replies
// that arrive with nobody waiting are logged and dropped.
//
// Each fresh connection is handshaken transparently on first use: the
// registration message is exchanged, then the application metadata event,
// then the caller's message. Either step is skipped when the caller's message
// is that very step.
//
// Client also manages the agent process itself: Start launches the binary
// when the socket is not reachable and launching is allowed, and StopProcess
// terminates a process this client launched.
package transport
