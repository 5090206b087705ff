package alerting

import (
	"sync"
	"time"
)

// CooldownKey identifies the alert stream of one device metric
func CooldownKey(deviceID, sensorType, metric string) string {
	return deviceID + "|" + sensorType + "|" + metric
}

// Cooldown remembers when each key last fired. Entries live only in memory,
// so a restart allows every key to fire immediately.
type Cooldown struct {
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewCooldown creates a cooldown tracker. A nil clock uses time.Now.
func NewCooldown(window time.Duration, now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{
		window:  window,
		now:     now,
		entries: make(map[string]time.Time),
	}
}

// Check reports whether key may fire now
func (c *Cooldown) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.entries[key]
	if !ok {
		return true
	}
	return c.now().Sub(last) >= c.window
}

// Record marks key as fired now
func (c *Cooldown) Record(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.now()
}

// Sweep evicts entries older than the window and returns how many it removed
func (c *Cooldown) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, last := range c.entries {
		if now.Sub(last) > c.window {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
