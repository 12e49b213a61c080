// Package pool assigns monitored accounts to remote endpoints.
package pool

import (
	"errors"
	"fmt"
	"strings"

	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/solana"
)

// DefaultCapacity is the number of accounts one endpoint serves.
const DefaultCapacity = 4

// ErrNoEndpointsConfigured is returned when the pool has no endpoints.
var ErrNoEndpointsConfigured = errors.New("no endpoints configured")

// Endpoint is one remote access point.
type Endpoint struct {
	Index int
	// RPCURL is the request/response form of the configured address.
	RPCURL string
	// WSURL is the streaming form of the configured address.
	WSURL    string
	Capacity int
}

// Assignment pairs a credential with the endpoint that serves it.
type Assignment struct {
	Credential keys.Credential
	Endpoint   *Endpoint
}

// Pool is the ordered, immutable list of configured endpoints.
type Pool struct {
	endpoints []*Endpoint
	capacity  int
}

// New builds a pool from endpoint addresses. Blank addresses are skipped;
// streaming URLs are normalized. A capacity below one uses DefaultCapacity.
func New(urls []string, capacity int) *Pool {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	p := &Pool{capacity: capacity}
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		p.endpoints = append(p.endpoints, &Endpoint{
			Index:    len(p.endpoints),
			RPCURL:   solana.HTTPEndpoint(u),
			WSURL:    solana.WSEndpoint(u),
			Capacity: capacity,
		})
	}
	return p
}

// Len returns the number of endpoints.
func (p *Pool) Len() int {
	return len(p.endpoints)
}

// Capacity returns the per-endpoint capacity.
func (p *Pool) Capacity() int {
	return p.capacity
}

// TotalCapacity returns the number of accounts the pool can serve.
func (p *Pool) TotalCapacity() int {
	return len(p.endpoints) * p.capacity
}

// Endpoint returns the endpoint at index i, or nil.
func (p *Pool) Endpoint(i int) *Endpoint {
	if i < 0 || i >= len(p.endpoints) {
		return nil
	}
	return p.endpoints[i]
}

// Endpoints returns all endpoints in order.
func (p *Pool) Endpoints() []*Endpoint {
	out := make([]*Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Slot returns the endpoint for registration position i, or nil when the
// position is beyond total capacity.
func (p *Pool) Slot(i int) *Endpoint {
	if i < 0 {
		return nil
	}
	return p.Endpoint(i / p.capacity)
}

// Allocate assigns credentials to endpoints by sequential fill: position i
// goes to endpoint i/capacity. Credentials past total capacity are dropped
// and counted.
func (p *Pool) Allocate(creds []keys.Credential) ([]Assignment, int, error) {
	if len(p.endpoints) == 0 {
		return nil, 0, ErrNoEndpointsConfigured
	}

	out := make([]Assignment, 0, min(len(creds), p.TotalCapacity()))
	dropped := 0
	for i, c := range creds {
		ep := p.Slot(i)
		if ep == nil {
			dropped++
			continue
		}
		out = append(out, Assignment{Credential: c, Endpoint: ep})
	}
	return out, dropped, nil
}

// String describes the pool for logs.
func (p *Pool) String() string {
	return fmt.Sprintf("%d endpoints x %d accounts", len(p.endpoints), p.capacity)
}
