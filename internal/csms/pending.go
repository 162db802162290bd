package csms

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/andescharge/csms/internal/ocpp"
)

// dispatchResult settles a server-initiated call: the CALLRESULT payload, a
// relayed CALLERROR, or a local failure (timeout, disconnect, transport).
type dispatchResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall is one registered waiter for a server→charger CALL.
type pendingCall struct {
	chargerID string
	messageID string
	action    string
	payload   interface{}
	deadline  time.Time
	timer     *time.Timer

	resultCh chan dispatchResult
	// done is closed when the waiter settles, whichever way; the session's
	// outbound worker blocks on it to keep at most one call in flight.
	done     chan struct{}
	settleMu sync.Mutex
	settled  bool
}

func newPendingCall(chargerID, messageID, action string, payload interface{}, deadline time.Time) *pendingCall {
	return &pendingCall{
		chargerID: chargerID,
		messageID: messageID,
		action:    action,
		payload:   payload,
		deadline:  deadline,
		resultCh:  make(chan dispatchResult, 1),
		done:      make(chan struct{}),
	}
}

// settle delivers the result exactly once. Later calls are no-ops, which is
// how replies racing a timeout get dropped.
func (p *pendingCall) settle(res dispatchResult) bool {
	p.settleMu.Lock()
	defer p.settleMu.Unlock()
	if p.settled {
		return false
	}
	p.settled = true
	if p.timer != nil {
		p.timer.Stop()
	}
	p.resultCh <- res
	close(p.done)
	return true
}

// pendingTable maps (chargerID, messageID) to its waiter.
type pendingTable struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingTable() *pendingTable {
	return &pendingTable{calls: make(map[string]*pendingCall)}
}

func pendingKey(chargerID, messageID string) string {
	return chargerID + "|" + messageID
}

func (t *pendingTable) add(p *pendingCall) {
	t.mu.Lock()
	t.calls[pendingKey(p.chargerID, p.messageID)] = p
	t.mu.Unlock()
}

func (t *pendingTable) remove(chargerID, messageID string) *pendingCall {
	key := pendingKey(chargerID, messageID)
	t.mu.Lock()
	p := t.calls[key]
	delete(t.calls, key)
	t.mu.Unlock()
	return p
}

// removeAll drops every waiter for a charger and returns them.
func (t *pendingTable) removeAll(chargerID string) []*pendingCall {
	prefix := chargerID + "|"
	var out []*pendingCall
	t.mu.Lock()
	for key, p := range t.calls {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, p)
			delete(t.calls, key)
		}
	}
	t.mu.Unlock()
	return out
}

// callErrorFromFrame converts a relayed CALLERROR frame into an error value
// for the waiting caller.
func callErrorFromFrame(f *ocpp.Frame) error {
	ce := &ocpp.CallError{Code: f.ErrorCode, Description: f.ErrorDesc}
	if len(f.ErrorDetails) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(f.ErrorDetails, &details); err == nil {
			ce.Details = details
		}
	}
	return ce
}
