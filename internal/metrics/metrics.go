package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Process-wide counters for the checkout pipeline.
var (
	WebhooksReceived   Counter
	WebhooksDuplicate  Counter
	WebhooksFailed     Counter
	OrdersCreated      Counter
	OrdersDeduplicated Counter
	CheckoutsStarted   Counter
)

// Snapshot returns the current value of every named counter.
func Snapshot() map[string]uint64 {
	return map[string]uint64{
		"webhooks_received":   WebhooksReceived.Load(),
		"webhooks_duplicate":  WebhooksDuplicate.Load(),
		"webhooks_failed":     WebhooksFailed.Load(),
		"orders_created":      OrdersCreated.Load(),
		"orders_deduplicated": OrdersDeduplicated.Load(),
		"checkouts_started":   CheckoutsStarted.Load(),
	}
}
