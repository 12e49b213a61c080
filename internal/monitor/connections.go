package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"solana-sweeper/internal/pool"
	"solana-sweeper/internal/solana"
)

// Dialer opens the streaming connection of an endpoint. onError receives
// connection-level failures and must not block.
type Dialer func(ctx context.Context, ep *pool.Endpoint, onError func(error)) (solana.WSClient, error)

// RPCFactory builds the request/response client of an endpoint.
type RPCFactory func(ep *pool.Endpoint) solana.RPCClient

// WSDialer dials endpoints with solana.NewWSClient.
func WSDialer(cfg solana.WSClientConfig) Dialer {
	return func(ctx context.Context, ep *pool.Endpoint, onError func(error)) (solana.WSClient, error) {
		c := cfg
		c.OnError = onError
		ws, err := solana.NewWSClient(ctx, ep.WSURL, &c)
		if err != nil {
			return nil, err
		}
		return ws, nil
	}
}

// HTTPRPC builds solana.HTTPClient instances.
func HTTPRPC(opts ...solana.ClientOption) RPCFactory {
	return func(ep *pool.Endpoint) solana.RPCClient {
		return solana.NewHTTPClient(ep.RPCURL, opts...)
	}
}

// Connections holds one shared streaming connection and one RPC client per
// endpoint, created on first use. Dials run outside the map lock so a dead
// endpoint never stalls the readers of the others.
type Connections struct {
	dial   Dialer
	newRPC RPCFactory

	errMu   sync.RWMutex
	onError func(ep *pool.Endpoint, err error)

	mu      sync.Mutex
	ws      map[int]solana.WSClient
	dialing map[int]*pendingDial
	rpc     map[int]solana.RPCClient
	closed  bool
}

// pendingDial lets concurrent callers share one dial of an endpoint.
type pendingDial struct {
	done chan struct{}
	ws   solana.WSClient
	err  error
}

// NewConnections creates a connection set.
func NewConnections(dial Dialer, newRPC RPCFactory) *Connections {
	return &Connections{
		dial:    dial,
		newRPC:  newRPC,
		ws:      make(map[int]solana.WSClient),
		dialing: make(map[int]*pendingDial),
		rpc:     make(map[int]solana.RPCClient),
	}
}

// OnError installs the handler for connection-level failures.
func (c *Connections) OnError(fn func(ep *pool.Endpoint, err error)) {
	c.errMu.Lock()
	c.onError = fn
	c.errMu.Unlock()
}

func (c *Connections) report(ep *pool.Endpoint, err error) {
	c.errMu.RLock()
	fn := c.onError
	c.errMu.RUnlock()
	if fn != nil {
		fn(ep, err)
	}
}

// WS returns the streaming connection of ep, dialing it if needed.
// Concurrent callers for the same endpoint wait for a single dial.
func (c *Connections) WS(ctx context.Context, ep *pool.Endpoint) (solana.WSClient, error) {
	c.mu.Lock()
	if ws, ok := c.ws[ep.Index]; ok {
		c.mu.Unlock()
		return ws, nil
	}
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("dial endpoint %d: %w", ep.Index, solana.ErrClientClosed)
	}
	if pd, ok := c.dialing[ep.Index]; ok {
		c.mu.Unlock()
		select {
		case <-pd.done:
			return pd.ws, pd.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	pd := &pendingDial{done: make(chan struct{})}
	c.dialing[ep.Index] = pd
	c.mu.Unlock()

	ws, err := c.dial(ctx, ep, func(err error) { c.report(ep, err) })

	c.mu.Lock()
	delete(c.dialing, ep.Index)
	switch {
	case err != nil:
		pd.err = fmt.Errorf("dial endpoint %d: %w", ep.Index, err)
	case c.closed:
		pd.err = fmt.Errorf("dial endpoint %d: %w", ep.Index, solana.ErrClientClosed)
	default:
		c.ws[ep.Index] = ws
		pd.ws = ws
	}
	c.mu.Unlock()
	close(pd.done)

	if err == nil && pd.err != nil {
		ws.Close()
	}
	return pd.ws, pd.err
}

// RPC returns the RPC client of ep.
func (c *Connections) RPC(ep *pool.Endpoint) solana.RPCClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rpc, ok := c.rpc[ep.Index]; ok {
		return rpc
	}
	rpc := c.newRPC(ep)
	c.rpc[ep.Index] = rpc
	return rpc
}

// Close closes every streaming connection.
func (c *Connections) Close() error {
	c.mu.Lock()
	conns := c.ws
	c.ws = make(map[int]solana.WSClient)
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for _, ws := range conns {
		if err := ws.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
