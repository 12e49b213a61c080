package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"solana-sweeper/internal/notify"
	"solana-sweeper/internal/observability"
	"solana-sweeper/internal/pool"
	"solana-sweeper/internal/registry"
	"solana-sweeper/internal/solana"
)

const unsubscribeTimeout = 10 * time.Second

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Connections *Connections
	Processor   *Processor
	Health      *Health
	Logger      *log.Logger
}

type watch struct {
	acct   *registry.Account
	cancel context.CancelFunc
	done   chan struct{}

	// Set once under Manager.mu before the goroutine starts.
	ws  solana.WSClient
	sub *solana.AccountSubscription
}

// Manager owns one subscription per monitored account.
type Manager struct {
	conns  *Connections
	proc   *Processor
	health *Health
	logger *log.Logger

	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	watches map[string]*watch
	// draining holds the done channel of stopped watches whose handler may
	// still be forwarding. A new watch of the same key waits for it.
	draining map[string]<-chan struct{}
}

// NewManager creates a Manager. Subscription goroutines outlive the
// contexts passed to Start and end on Stop, StopAll or Close.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		conns:      opts.Connections,
		proc:       opts.Processor,
		health:     opts.Health,
		logger:     logger,
		base:       base,
		cancelBase: cancel,
		watches:    make(map[string]*watch),
		draining:   make(map[string]<-chan struct{}),
	}

	m.conns.OnError(func(ep *pool.Endpoint, err error) {
		// Called from the connection's reader; unsubscribing there would deadlock.
		go m.recordError(ep, "", err)
	})
	return m
}

// Health returns the health tracker.
func (m *Manager) Health() *Health {
	return m.health
}

// Start subscribes every account that is not already watched, seeding its
// baseline to zero. Accounts whose subscription cannot be opened count as
// an endpoint error and are retired. It returns the number of new live
// subscriptions.
func (m *Manager) Start(ctx context.Context, accounts []*registry.Account) int {
	started := 0
	for _, acct := range accounts {
		if m.watch(ctx, acct) {
			started++
		}
	}
	m.updateGauges()
	return started
}

func (m *Manager) watch(ctx context.Context, acct *registry.Account) bool {
	pk := acct.PublicKey()
	ep := acct.Endpoint

	m.mu.Lock()
	if _, ok := m.watches[pk]; ok {
		m.mu.Unlock()
		return false
	}
	wctx, cancel := context.WithCancel(m.base)
	w := &watch{acct: acct, cancel: cancel, done: make(chan struct{})}
	m.watches[pk] = w
	prev := m.draining[pk]
	delete(m.draining, pk)
	m.mu.Unlock()

	// One handler per account at a time: an in-flight forward of the
	// previous watch finishes, and writes its baseline, before this one
	// resets it.
	if prev != nil {
		<-prev
	}

	acct.SetLastBalance(0)
	acct.SetRetired(false)
	m.health.Track(ep.Index, pk)

	ws, err := m.conns.WS(ctx, ep)
	var sub *solana.AccountSubscription
	if err == nil {
		sub, err = ws.SubscribeAccount(ctx, pk)
	}
	if err != nil {
		close(w.done)
		m.logger.Printf("subscribe %s on endpoint %d: %v", notify.ShortWallet(pk), ep.Index, err)
		if m.health.Retire(pk) {
			acct.SetRetired(true)
		}
		m.recordError(ep, pk, err)
		return false
	}

	m.mu.Lock()
	if m.watches[pk] != w {
		// Stopped while subscribing.
		m.mu.Unlock()
		close(w.done)
		m.unsubscribe(ws, sub)
		return false
	}
	w.ws = ws
	w.sub = sub
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(wctx, w, m.conns.RPC(ep))
	return true
}

// run drains the account's events in order until the watch ends.
func (m *Manager) run(ctx context.Context, w *watch, rpc solana.RPCClient) {
	defer m.wg.Done()
	defer close(w.done)

	pk := w.acct.PublicKey()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.sub.Done:
			return
		case n, ok := <-w.sub.Notifications:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if n.Err != nil {
				m.logger.Printf("event for %s: %v", notify.ShortWallet(pk), n.Err)
				m.recordError(w.acct.Endpoint, pk, n.Err)
				continue
			}
			m.proc.Handle(ctx, w.acct, rpc, n)
		}
	}
}

// recordError feeds the health tracker and retires what it reports.
func (m *Manager) recordError(ep *pool.Endpoint, pubkey string, err error) {
	observability.RecordSubscriptionError(ep.RPCURL)
	retired := m.health.RecordError(ep.Index, pubkey)
	m.logger.Printf("endpoint %d error (%d/%d): %v", ep.Index, m.health.Errors(ep.Index), m.health.Threshold(), err)

	if len(retired) == 0 {
		return
	}
	m.logger.Printf("endpoint %d: %v, retiring %d account(s)", ep.Index, ErrEndpointUnhealthy, len(retired))

	for _, pk := range retired {
		m.mu.Lock()
		w := m.watches[pk]
		m.mu.Unlock()
		if w == nil {
			continue
		}
		w.acct.SetRetired(true)
		m.release(w)
	}
	m.updateGauges()
}

// Stop ends the watch of pubkey without waiting for an in-flight forward.
// Unknown keys are ignored.
func (m *Manager) Stop(pubkey string) bool {
	m.mu.Lock()
	w, ok := m.watches[pubkey]
	if ok {
		delete(m.watches, pubkey)
		m.drainLocked(pubkey, w)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.release(w)
	m.health.Untrack(pubkey)
	m.updateGauges()
	return true
}

// StopAll ends every watch and resets endpoint health.
func (m *Manager) StopAll() int {
	m.mu.Lock()
	watches := m.watches
	m.watches = make(map[string]*watch)
	for pk, w := range watches {
		m.drainLocked(pk, w)
	}
	m.mu.Unlock()

	for _, w := range watches {
		m.release(w)
	}
	m.health.Reset()
	m.updateGauges()
	return len(watches)
}

// Close stops everything, waits for handlers and closes connections.
func (m *Manager) Close() error {
	m.StopAll()
	m.cancelBase()
	m.wg.Wait()
	return m.conns.Close()
}

// Watching reports whether pubkey has a watch, retired or not.
func (m *Manager) Watching(pubkey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[pubkey]
	return ok
}

// Len returns the number of watches.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watches)
}

// Snapshot returns the aggregate health view.
func (m *Manager) Snapshot() Snapshot {
	return m.health.Snapshot()
}

// drainLocked remembers w until its handler returns and forgets watches
// that already ended.
func (m *Manager) drainLocked(pk string, w *watch) {
	for key, done := range m.draining {
		select {
		case <-done:
			delete(m.draining, key)
		default:
		}
	}
	select {
	case <-w.done:
	default:
		m.draining[pk] = w.done
	}
}

func (m *Manager) release(w *watch) {
	w.cancel()

	m.mu.Lock()
	ws, sub := w.ws, w.sub
	m.mu.Unlock()

	m.unsubscribe(ws, sub)
}

func (m *Manager) unsubscribe(ws solana.WSClient, sub *solana.AccountSubscription) {
	if ws == nil || sub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if err := ws.Unsubscribe(ctx, sub); err != nil {
		m.logger.Printf("unsubscribe %s: %v", notify.ShortWallet(sub.Pubkey), err)
	}
}

func (m *Manager) updateGauges() {
	snap := m.health.Snapshot()
	observability.UpdateAccountGauges(snap.Active, snap.Retired)
}
