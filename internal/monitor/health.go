package monitor

import (
	"errors"
	"sort"
	"sync"
	"time"

	"solana-sweeper/internal/pool"
)

// DefaultErrorThreshold is the number of errors after which every account
// on an endpoint is retired.
const DefaultErrorThreshold = 5

// ErrEndpointUnhealthy marks an endpoint that reached the error threshold.
var ErrEndpointUnhealthy = errors.New("endpoint unhealthy")

// EndpointHealth is the state of one endpoint.
type EndpointHealth struct {
	Index       int       `json:"index"`
	URL         string    `json:"url"`
	Errors      int       `json:"errors"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	Healthy     bool      `json:"healthy"`
	Accounts    int       `json:"accounts"`
}

// Snapshot is an aggregate view of monitoring health.
type Snapshot struct {
	Total     int              `json:"total"`
	Active    int              `json:"active"`
	Retired   int              `json:"retired"`
	Endpoints []EndpointHealth `json:"endpoints"`
}

// Health counts errors per endpoint and tracks retired accounts.
// State lives in memory only and is cleared by Reset.
type Health struct {
	threshold int
	now       func() time.Time

	mu        sync.Mutex
	endpoints []*pool.Endpoint
	errors    []int
	lastErr   []time.Time
	members   map[string]int // pubkey -> endpoint index
	retired   map[string]bool
}

// NewHealth creates a tracker for endpoints. A threshold below one uses
// DefaultErrorThreshold.
func NewHealth(endpoints []*pool.Endpoint, threshold int) *Health {
	if threshold < 1 {
		threshold = DefaultErrorThreshold
	}
	return &Health{
		threshold: threshold,
		now:       time.Now,
		endpoints: endpoints,
		errors:    make([]int, len(endpoints)),
		lastErr:   make([]time.Time, len(endpoints)),
		members:   make(map[string]int),
		retired:   make(map[string]bool),
	}
}

// Threshold returns the retirement threshold.
func (h *Health) Threshold() int {
	return h.threshold
}

// Track adds pubkey to the accounts served by endpoint.
func (h *Health) Track(endpoint int, pubkey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[pubkey] = endpoint
	delete(h.retired, pubkey)
}

// Untrack forgets pubkey.
func (h *Health) Untrack(pubkey string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, pubkey)
	delete(h.retired, pubkey)
}

// RecordError counts one error against endpoint, raised while serving
// pubkey (empty for connection-level errors). Once the endpoint reaches
// the threshold every tracked, not yet retired account on it is retired;
// those keys are returned in sorted order.
func (h *Health) RecordError(endpoint int, pubkey string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if endpoint < 0 || endpoint >= len(h.errors) {
		if ep, ok := h.members[pubkey]; ok {
			endpoint = ep
		} else {
			return nil
		}
	}

	h.errors[endpoint]++
	h.lastErr[endpoint] = h.now()

	if h.errors[endpoint] < h.threshold {
		return nil
	}

	var retired []string
	for pk, ep := range h.members {
		if ep == endpoint && !h.retired[pk] {
			h.retired[pk] = true
			retired = append(retired, pk)
		}
	}
	sort.Strings(retired)
	return retired
}

// Retire flags a single tracked account. It reports whether the flag changed.
func (h *Health) Retire(pubkey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.members[pubkey]; !ok || h.retired[pubkey] {
		return false
	}
	h.retired[pubkey] = true
	return true
}

// IsRetired reports whether pubkey is retired.
func (h *Health) IsRetired(pubkey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retired[pubkey]
}

// Errors returns the error count of endpoint.
func (h *Health) Errors(endpoint int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if endpoint < 0 || endpoint >= len(h.errors) {
		return 0
	}
	return h.errors[endpoint]
}

// Healthy reports whether endpoint is below the threshold.
func (h *Health) Healthy(endpoint int) bool {
	return h.Errors(endpoint) < h.threshold
}

// Snapshot returns the current aggregate state.
func (h *Health) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := Snapshot{Total: len(h.members)}
	perEndpoint := make([]int, len(h.endpoints))
	for pk, ep := range h.members {
		if ep >= 0 && ep < len(perEndpoint) {
			perEndpoint[ep]++
		}
		if h.retired[pk] {
			snap.Retired++
		}
	}
	snap.Active = snap.Total - snap.Retired

	for i, ep := range h.endpoints {
		snap.Endpoints = append(snap.Endpoints, EndpointHealth{
			Index:       i,
			URL:         ep.RPCURL,
			Errors:      h.errors[i],
			LastErrorAt: h.lastErr[i],
			Healthy:     h.errors[i] < h.threshold,
			Accounts:    perEndpoint[i],
		})
	}
	return snap
}

// Reset clears counters, the retired set and tracked accounts.
func (h *Health) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.errors {
		h.errors[i] = 0
		h.lastErr[i] = time.Time{}
	}
	h.members = make(map[string]int)
	h.retired = make(map[string]bool)
}
