// Package metrics provides Prometheus instrumentation for attestry.
package metrics

// Verification records one verification attempt. pathway is "session",
// "direct", "etherscan", or "create2"; status is the terminal wrapper
// status.
func Verification(pathway, status string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(pathway, status).Inc()
}

// MatchStored records a verified contract write.
func MatchStored(chainID, status string) {
	if !enabled {
		return
	}
	matchStoreTotal.WithLabelValues(chainID, status).Inc()
}

// Import records an explorer import.
func Import(chainID, status string) {
	if !enabled {
		return
	}
	importTotal.WithLabelValues(chainID, status).Inc()
}
