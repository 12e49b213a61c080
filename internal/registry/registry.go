// Package registry holds the accounts currently under watch.
//
// Accounts are indexed by owner and public key. Removal is always by
// identity; positions are only used to keep a stable scan order.
package registry

import (
	"strings"
	"sync"
	"time"

	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/pool"
)

// RegisterResult is the outcome of a registration.
type RegisterResult struct {
	// Accepted accounts in registration order.
	Accepted []*Account
	// Lines is the number of non-blank submitted lines.
	Lines int
	// Rejected counts malformed credentials.
	Rejected int
	// Duplicates counts credentials already registered for the owner
	// or repeated within the batch.
	Duplicates int
	// DroppedForCapacity counts valid credentials that did not fit the pool.
	DroppedForCapacity int
}

// StopResult is the outcome of a stop by selectors.
type StopResult struct {
	Stopped  []*Account
	NotFound []string
}

type ownerSet struct {
	order []string
	byKey map[string]*Account
}

// Registry is the in-memory account list. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	pool   *pool.Pool
	owners map[string]*ownerSet
	now    func() time.Time
}

// New creates an empty registry backed by p.
func New(p *pool.Pool) *Registry {
	return &Registry{
		pool:   p,
		owners: make(map[string]*ownerSet),
		now:    time.Now,
	}
}

// Pool returns the endpoint pool the registry allocates from.
func (r *Registry) Pool() *pool.Pool {
	return r.pool
}

// Register validates submitted text and adds the new accounts for owner.
// It fails with pool.ErrNoEndpointsConfigured before looking at any input.
func (r *Registry) Register(owner, text string) (*RegisterResult, error) {
	if r.pool.Len() == 0 {
		return nil, pool.ErrNoEndpointsConfigured
	}

	filtered := keys.Filter(text)
	res, err := r.add(owner, filtered.Valid)
	if err != nil {
		return nil, err
	}
	res.Lines = filtered.Lines
	res.Rejected = filtered.Rejected
	return res, nil
}

// Restore adds previously persisted credentials for owner, in order.
// Entries that no longer parse are counted as rejected.
func (r *Registry) Restore(owner string, encoded []string) (*RegisterResult, error) {
	if r.pool.Len() == 0 {
		return nil, pool.ErrNoEndpointsConfigured
	}

	var creds []keys.Credential
	rejected := 0
	for _, e := range encoded {
		c, err := keys.Parse(e)
		if err != nil {
			rejected++
			continue
		}
		creds = append(creds, c)
	}

	res, err := r.add(owner, creds)
	if err != nil {
		return nil, err
	}
	res.Lines = len(encoded)
	res.Rejected = rejected
	return res, nil
}

// add deduplicates creds and assigns each new account to an endpoint.
// An empty registry is filled sequentially by the pool: position i goes to
// endpoint i/capacity. After removals the lowest endpoint with a free slot
// is refilled instead. Previously registered accounts are never moved or
// displaced.
func (r *Registry) add(owner string, creds []keys.Credential) (*RegisterResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.owners[owner]
	if set == nil {
		set = &ownerSet{byKey: make(map[string]*Account)}
		r.owners[owner] = set
	}

	res := &RegisterResult{}
	seen := make(map[string]bool, len(creds))
	fresh := make([]keys.Credential, 0, len(creds))
	for _, c := range creds {
		if _, exists := set.byKey[c.PublicKey]; exists || seen[c.PublicKey] {
			res.Duplicates++
			continue
		}
		seen[c.PublicKey] = true
		fresh = append(fresh, c)
	}

	assigned, err := r.assignLocked(fresh)
	if err != nil {
		if len(set.order) == 0 {
			delete(r.owners, owner)
		}
		return nil, err
	}
	res.DroppedForCapacity = len(fresh) - len(assigned)

	now := r.now()
	for _, a := range assigned {
		acct := &Account{
			Owner:      owner,
			Credential: a.Credential,
			Endpoint:   a.Endpoint,
			AddedAt:    now,
		}
		set.order = append(set.order, a.Credential.PublicKey)
		set.byKey[a.Credential.PublicKey] = acct
		res.Accepted = append(res.Accepted, acct)
	}

	if len(set.order) == 0 {
		delete(r.owners, owner)
	}
	return res, nil
}

// assignLocked picks endpoints for creds, keeping their order. Credentials
// that do not fit are left out of the result.
func (r *Registry) assignLocked(creds []keys.Credential) ([]pool.Assignment, error) {
	load := r.loadLocked()
	total := 0
	for _, n := range load {
		total += n
	}
	if total == 0 {
		assigned, _, err := r.pool.Allocate(creds)
		return assigned, err
	}

	var out []pool.Assignment
	for _, c := range creds {
		ep := r.freeEndpoint(load)
		if ep == nil {
			continue
		}
		load[ep.Index]++
		out = append(out, pool.Assignment{Credential: c, Endpoint: ep})
	}
	return out, nil
}

// loadLocked counts accounts per endpoint index across all owners.
func (r *Registry) loadLocked() []int {
	load := make([]int, r.pool.Len())
	for _, set := range r.owners {
		for _, acct := range set.byKey {
			load[acct.Endpoint.Index]++
		}
	}
	return load
}

func (r *Registry) freeEndpoint(load []int) *pool.Endpoint {
	for i, n := range load {
		ep := r.pool.Endpoint(i)
		if n < ep.Capacity {
			return ep
		}
	}
	return nil
}

// Stop removes, for each selector, the first account of owner whose public
// key equals, starts with, ends with or contains it. Accounts already taken
// by an earlier selector in the same call are skipped. Blank selectors are
// ignored; unmatched ones are reported in NotFound.
func (r *Registry) Stop(owner string, selectors []string) *StopResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &StopResult{}
	set := r.owners[owner]

	taken := make(map[int]bool)
	var ids []string
	if set != nil {
		ids = set.order
	}

	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		i := FirstMatch(ids, sel, func(i int) bool { return taken[i] })
		if i < 0 {
			res.NotFound = append(res.NotFound, sel)
			continue
		}
		taken[i] = true
		res.Stopped = append(res.Stopped, set.byKey[ids[i]])
	}

	for _, acct := range res.Stopped {
		r.removeLocked(set, acct.PublicKey())
	}
	if set != nil && len(set.order) == 0 {
		delete(r.owners, owner)
	}
	return res
}

// Remove drops a single account by public key. It reports whether it existed.
func (r *Registry) Remove(owner, pubkey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.owners[owner]
	if set == nil {
		return false
	}
	ok := r.removeLocked(set, pubkey)
	if len(set.order) == 0 {
		delete(r.owners, owner)
	}
	return ok
}

func (r *Registry) removeLocked(set *ownerSet, pubkey string) bool {
	if _, ok := set.byKey[pubkey]; !ok {
		return false
	}
	delete(set.byKey, pubkey)
	for i, k := range set.order {
		if k == pubkey {
			set.order = append(set.order[:i:i], set.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes every account of owner and returns them in order.
func (r *Registry) Clear(owner string) []*Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.owners[owner]
	if set == nil {
		return nil
	}
	out := orderedLocked(set)
	delete(r.owners, owner)
	return out
}

// Accounts returns the accounts of owner in registration order.
func (r *Registry) Accounts(owner string) []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.owners[owner]
	if set == nil {
		return nil
	}
	return orderedLocked(set)
}

func orderedLocked(set *ownerSet) []*Account {
	out := make([]*Account, 0, len(set.order))
	for _, k := range set.order {
		out = append(out, set.byKey[k])
	}
	return out
}

// Get returns the account of owner with the given public key.
func (r *Registry) Get(owner, pubkey string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.owners[owner]
	if set == nil {
		return nil, false
	}
	acct, ok := set.byKey[pubkey]
	return acct, ok
}

// Len returns the number of accounts of owner.
func (r *Registry) Len(owner string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if set := r.owners[owner]; set != nil {
		return len(set.order)
	}
	return 0
}

// Total returns the number of accounts across all owners.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, set := range r.owners {
		n += len(set.order)
	}
	return n
}
