package csms

import (
	"sync"
	"time"
)

// dedupTable retains the CALLRESULT sent for each inbound (chargerID,
// messageID) so MQTT QoS 1 redeliveries get a byte-identical reply without
// re-applying side effects.
type dedupTable struct {
	window time.Duration

	mu      sync.Mutex
	entries map[string]dedupEntry
}

type dedupEntry struct {
	raw      []byte
	storedAt time.Time
}

func newDedupTable(window time.Duration) *dedupTable {
	return &dedupTable{
		window:  window,
		entries: make(map[string]dedupEntry),
	}
}

func (d *dedupTable) lookup(chargerID, messageID string) ([]byte, bool) {
	key := pendingKey(chargerID, messageID)
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > d.window {
		delete(d.entries, key)
		return nil, false
	}
	return entry.raw, true
}

func (d *dedupTable) store(chargerID, messageID string, raw []byte) {
	d.mu.Lock()
	d.entries[pendingKey(chargerID, messageID)] = dedupEntry{raw: raw, storedAt: time.Now()}
	d.mu.Unlock()
}

// sweep drops expired entries; the router runs it periodically.
func (d *dedupTable) sweep() {
	now := time.Now()
	d.mu.Lock()
	for key, entry := range d.entries {
		if now.Sub(entry.storedAt) > d.window {
			delete(d.entries, key)
		}
	}
	d.mu.Unlock()
}
