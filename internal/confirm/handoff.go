package confirm

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/order"
)

type handoffEntry struct {
	order     *order.Order
	createdAt time.Time
}

// HandoffCache is the ephemeral first tier of the confirmation read path. A
// token is minted at payment-confirmation time so the page reached straight
// off the payment redirect can render before the URL carries an order number.
// Take is single-use: the entry is cleared on read, so the cache can never
// serve as a bypass of the server-side expiration rule on a later load.
type HandoffCache struct {
	mu      sync.Mutex
	entries map[string]handoffEntry
}

func NewHandoffCache() *HandoffCache {
	return &HandoffCache{entries: make(map[string]handoffEntry)}
}

// Put stores the just-created order and returns its one-shot token. Entries
// nobody ever takes are swept here, so the cache stays bounded by the rate of
// purchases within one window.
func (c *HandoffCache) Put(o *order.Order) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate handoff token: %w", err)
	}
	token := hex.EncodeToString(buf)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictStaleLocked(time.Now())
	c.entries[token] = handoffEntry{order: o, createdAt: time.Now()}
	return token, nil
}

func (c *HandoffCache) evictStaleLocked(now time.Time) {
	for token, entry := range c.entries {
		if now.Sub(entry.createdAt) > Window {
			delete(c.entries, token)
		}
	}
}

// Take returns the cached order and removes it. Entries older than the
// confirmation window are treated as gone even if never read.
func (c *HandoffCache) Take(token string) (*order.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[token]
	if !ok {
		return nil, false
	}
	delete(c.entries, token)

	if time.Since(entry.createdAt) > Window {
		return nil, false
	}
	return entry.order, true
}
