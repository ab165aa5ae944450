package transport

import "errors"

var (
	// ErrTimeout means an exchange did not complete before its deadline
	ErrTimeout = errors.New("agent request timed out")
	// ErrConnectionClosed means the connection failed while in use
	ErrConnectionClosed = errors.New("agent connection closed")
	// ErrDisconnected means the client has been disconnected
	ErrDisconnected = errors.New("transport disconnected")
	// ErrConnectionBusy means a second exchange was attempted on a leased connection
	ErrConnectionBusy = errors.New("agent connection already has a request in flight")
	// ErrMonitoringDisabled means sending is switched off by configuration
	ErrMonitoringDisabled = errors.New("monitoring disabled")
	// ErrLaunchDisabled means no agent is reachable and launching one is not allowed
	ErrLaunchDisabled = errors.New("agent not reachable and launch disabled")
	// ErrProcessNotOwned means the agent process was not started by this client
	ErrProcessNotOwned = errors.New("agent process not started by this client")
	// ErrAgentNotReady means a launched agent never opened its socket
	ErrAgentNotReady = errors.New("agent socket did not become ready")
)
