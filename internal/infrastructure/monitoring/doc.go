/*
Package monitoring provides the client's self-metrics.

The transport records every message exchange, handshake step, connection
lifecycle event and decoded frame. The trace layer records transmitted
requests and slow spans. All metrics live on a private registry so several
clients (and tests) can coexist in one process.

# Usage

	metrics := monitoring.NewMetrics()
	metrics.RecordSend("StartSpan", nil, time.Millisecond)

	// Expose for scraping
	router := monitoring.Router(metrics)
	router.Run(":9464")
*/
package monitoring
