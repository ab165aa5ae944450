/*
Package resilience provides the connection-creation backoff used by the agent
transport.

# Overview

When the agent is down or still starting, every send would otherwise try to
dial it immediately, fail, and try again. The Backoff gate counts consecutive
failures and, once they reach a small threshold, inserts a fixed delay before
each further attempt. The first success resets the run.

# Usage

	gate := resilience.New("agent-dial", resilience.Settings{
		Threshold: 3,
		Delay:     500 * time.Millisecond,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("backoff state", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	err := gate.Do(ctx, func(ctx context.Context) error {
		conn, err = dialer.DialContext(ctx, network, address)
		return err
	})

# States

	Ready --[threshold consecutive failures]--> BackingOff --[success]--> Ready
*/
package resilience
