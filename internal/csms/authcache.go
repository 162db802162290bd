package csms

import (
	"container/list"
	"sync"
	"time"

	"github.com/andescharge/csms/internal/domain"
)

const authCacheCap = 1000

// authCache is the per-session LRU of recently seen id tags, used for
// offline authorization fallback. Entries expire after the configured TTL.
type authCache struct {
	cap int
	ttl time.Duration

	mu      sync.Mutex
	order   *list.List
	entries map[string]*list.Element
}

type authEntry struct {
	tag       string
	status    domain.AuthorizationStatus
	expiresAt time.Time
}

func newAuthCache(capacity int, ttl time.Duration) *authCache {
	return &authCache{
		cap:     capacity,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *authCache) put(tag string, status domain.AuthorizationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[tag]; ok {
		entry := el.Value.(*authEntry)
		entry.status = status
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}

	for c.order.Len() >= c.cap {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*authEntry).tag)
	}

	el := c.order.PushFront(&authEntry{
		tag:       tag,
		status:    status,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[tag] = el
}

func (c *authCache) get(tag string) (domain.AuthorizationStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[tag]
	if !ok {
		return "", false
	}
	entry := el.Value.(*authEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, tag)
		return "", false
	}
	c.order.MoveToFront(el)
	return entry.status, true
}

func (c *authCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
