package exchange

import "sync"

// UsageFunc receives the consumed request weight and order count after each
// round trip. The manager wires it to the api_rate_limit row backing the
// connector's outbound IP.
type UsageFunc func(requestCount, orderCount int)

// RateLimit tracks quota consumption reported by exchange response headers.
// A single connector instance is shared between the reconciler and the
// decision engine, so the counters are guarded.
type RateLimit struct {
	mu           sync.Mutex
	requestCount int
	orderCount   int
}

// Update stores the latest header-reported counters. Values below zero are
// clamped; a missing header keeps the previous reading (pass -1).
func (r *RateLimit) Update(requestCount, orderCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestCount >= 0 {
		r.requestCount = requestCount
	}
	if orderCount >= 0 {
		r.orderCount = orderCount
	}
}

// CurrentRequest returns the last reported request weight.
func (r *RateLimit) CurrentRequest() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requestCount
}

// CurrentOrder returns the last reported order count.
func (r *RateLimit) CurrentOrder() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderCount
}
