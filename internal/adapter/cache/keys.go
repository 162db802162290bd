package cache

import "fmt"

// Key layout for the liveness signals. The cache is advisory; the store
// remains the source of truth and these keys are rebuilt after a cold start.

func LastSeenKey(chargePointID string) string {
	return fmt.Sprintf("cp:%s:last_seen", chargePointID)
}

func StatusKey(chargePointID string) string {
	return fmt.Sprintf("cp:%s:status", chargePointID)
}

func PendingCallsKey(chargePointID string) string {
	return fmt.Sprintf("cp:%s:pending_calls", chargePointID)
}

func IdTagKey(tag string) string {
	return fmt.Sprintf("idtag:%s", tag)
}
