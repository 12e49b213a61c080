package stub

import (
	"context"
	"sync"

	"solana-sweeper/internal/solana"
)

// WSClient implements solana.WSClient for testing.
// Notifications are injected with Push.
type WSClient struct {
	mu      sync.Mutex
	subs    map[string]*wsSub
	nextKey uint64
	closed  bool

	// SubscribeErr is returned by SubscribeAccount when set.
	SubscribeErr error
	// Unsubscribed lists pubkeys in unsubscribe order.
	Unsubscribed []string
}

type wsSub struct {
	key  uint64
	ch   chan solana.AccountNotification
	done chan struct{}
}

// Compile-time interface check.
var _ solana.WSClient = (*WSClient)(nil)

// NewWSClient creates a new stub WebSocket client.
func NewWSClient() *WSClient {
	return &WSClient{subs: make(map[string]*wsSub)}
}

// SubscribeAccount registers a subscription for pubkey.
func (c *WSClient) SubscribeAccount(_ context.Context, pubkey string) (*solana.AccountSubscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	if c.closed {
		return nil, solana.ErrClientClosed
	}

	c.nextKey++
	s := &wsSub{
		key:  c.nextKey,
		ch:   make(chan solana.AccountNotification, 100),
		done: make(chan struct{}),
	}
	c.subs[pubkey] = s
	return solana.NewAccountSubscription(s.key, pubkey, s.ch, s.done), nil
}

// Unsubscribe closes the subscription's Done channel.
func (c *WSClient) Unsubscribe(_ context.Context, sub *solana.AccountSubscription) error {
	if sub == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.subs[sub.Pubkey]
	if !ok || s.key != sub.Key() {
		return nil
	}
	delete(c.subs, sub.Pubkey)
	close(s.done)
	c.Unsubscribed = append(c.Unsubscribed, sub.Pubkey)
	return nil
}

// Close ends every subscription.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for pk, s := range c.subs {
		close(s.done)
		delete(c.subs, pk)
	}
	return nil
}

// Push delivers a notification to the subscriber of pubkey.
// It reports false when there is no live subscription.
func (c *WSClient) Push(pubkey string, n solana.AccountNotification) bool {
	c.mu.Lock()
	s, ok := c.subs[pubkey]
	c.mu.Unlock()

	if !ok {
		return false
	}
	select {
	case s.ch <- n:
		return true
	case <-s.done:
		return false
	}
}

// Subscribed reports whether pubkey has a live subscription.
func (c *WSClient) Subscribed(pubkey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[pubkey]
	return ok
}

// UnsubscribedCount returns the number of Unsubscribe calls that removed a subscription.
func (c *WSClient) UnsubscribedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Unsubscribed)
}
