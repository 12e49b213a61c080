package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned for operations on a closed client.
var ErrClientClosed = errors.New("client closed")

// notificationBuffer bounds the per-subscription queue.
const notificationBuffer = 1000

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// RequestTimeout bounds the wait for a subscribe/unsubscribe reply.
	RequestTimeout time.Duration
	// Commitment used for account subscriptions.
	Commitment string
	// OnError is called for connection-level failures. Errors that belong
	// to a single subscription are delivered on its channel instead.
	// It must not block.
	OnError func(error)
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		RequestTimeout:    30 * time.Second,
		Commitment:        CommitmentConfirmed,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64
	nextKey   atomic.Uint64

	// subs maps client-local key to subscription; bySubID maps the
	// node's subscription id to that key. The node id changes on resubscribe.
	subs    map[uint64]*accountSub
	bySubID map[int64]uint64
	subsMu  sync.RWMutex

	// pending maps request ID to the caller waiting for the reply
	pending   map[uint64]*pendingRequest
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// Compile-time interface check.
var _ WSClient = (*WSClientImpl)(nil)

type accountSub struct {
	key    uint64
	pubkey string
	subID  int64 // guarded by WSClientImpl.subsMu

	ch       chan AccountNotification
	done     chan struct{}
	doneOnce sync.Once
}

func (s *accountSub) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *accountSub) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type wsReply struct {
	result json.RawMessage
	err    *RPCError
}

type pendingRequest struct {
	reply chan wsReply
	// sub is set for accountSubscribe requests; the mapping is installed
	// by the reader before any later notification is dispatched.
	sub *accountSub
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
// Request/response URLs (http://, https://) are converted to their streaming form.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.Commitment == "" {
		cfg.Commitment = CommitmentConfirmed
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	c := &WSClientImpl{
		endpoint: WSEndpoint(endpoint),
		config:   cfg,
		subs:     make(map[uint64]*accountSub),
		bySubID:  make(map[int64]uint64),
		pending:  make(map[uint64]*pendingRequest),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Endpoint returns the streaming endpoint the client is connected to.
func (c *WSClientImpl) Endpoint() string {
	return c.endpoint
}

// connect establishes WebSocket connection.
func (c *WSClientImpl) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.conn = conn
	return nil
}

func (c *WSClientImpl) reportError(err error) {
	if c.config.OnError != nil && err != nil {
		c.config.OnError(err)
	}
}

// SubscribeAccount subscribes to balance changes of an account.
func (c *WSClientImpl) SubscribeAccount(ctx context.Context, pubkey string) (*AccountSubscription, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	sub := &accountSub{
		key:    c.nextKey.Add(1),
		pubkey: pubkey,
		ch:     make(chan AccountNotification, notificationBuffer),
		done:   make(chan struct{}),
	}

	if err := c.subscribe(ctx, sub); err != nil {
		c.removeSub(sub.key)
		return nil, err
	}

	return NewAccountSubscription(sub.key, pubkey, sub.ch, sub.done), nil
}

// subscribe sends accountSubscribe for sub and waits for the node's id.
func (c *WSClientImpl) subscribe(ctx context.Context, sub *accountSub) error {
	params := []interface{}{
		sub.pubkey,
		map[string]string{
			"encoding":   "base64",
			"commitment": c.config.Commitment,
		},
	}

	_, err := c.request(ctx, "accountSubscribe", params, sub)
	if err != nil {
		return fmt.Errorf("accountSubscribe %s: %w", sub.pubkey, err)
	}
	return nil
}

// Unsubscribe removes the subscription and closes its Done channel.
func (c *WSClientImpl) Unsubscribe(ctx context.Context, s *AccountSubscription) error {
	if s == nil {
		return nil
	}

	subID, ok := c.removeSub(s.Key())
	if !ok || c.closed.Load() {
		return nil
	}

	result, err := c.request(ctx, "accountUnsubscribe", []interface{}{subID}, nil)
	if err != nil {
		return fmt.Errorf("accountUnsubscribe %s: %w", s.Pubkey, err)
	}

	var removed bool
	if err := json.Unmarshal(result, &removed); err == nil && !removed {
		return fmt.Errorf("accountUnsubscribe %s: node reported unknown subscription %d", s.Pubkey, subID)
	}
	return nil
}

// removeSub drops a subscription locally. It reports the node id the
// subscription was last registered under.
func (c *WSClientImpl) removeSub(key uint64) (int64, bool) {
	c.subsMu.Lock()
	sub, ok := c.subs[key]
	var subID int64
	if ok {
		subID = sub.subID
		delete(c.subs, key)
		if c.bySubID[subID] == key {
			delete(c.bySubID, subID)
		}
		sub.stop()
	}
	c.subsMu.Unlock()

	if !ok {
		return 0, false
	}
	return subID, true
}

// request writes a JSON-RPC request and waits for its reply.
func (c *WSClientImpl) request(ctx context.Context, method string, params []interface{}, sub *accountSub) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	pr := &pendingRequest{reply: make(chan wsReply, 1), sub: sub}
	c.pendingMu.Lock()
	c.pending[reqID] = pr
	c.pendingMu.Unlock()

	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		forget()
		return nil, fmt.Errorf("not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()

	if err != nil {
		forget()
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.RequestTimeout)
	defer timer.Stop()

	select {
	case reply := <-pr.reply:
		if reply.err != nil {
			return nil, reply.err
		}
		return reply.result, nil
	case <-timer.C:
		forget()
		return nil, fmt.Errorf("%s timeout after %s", method, c.config.RequestTimeout)
	case <-c.done:
		return nil, ErrClientClosed
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

// Close closes the WebSocket connection and ends every subscription.
func (c *WSClientImpl) Close() error {
	if c.closed.Swap(true) {
		return nil // Already closed
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for key, sub := range c.subs {
		sub.stop()
		delete(c.subs, key)
	}
	c.bySubID = make(map[int64]uint64)
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	c.pending = make(map[uint64]*pendingRequest)
	c.pendingMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop owns the connection: it dispatches messages and, after a read
// failure, redials until it succeeds or the client is closed.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err == nil {
			c.handleMessage(message)
			continue
		}
		if c.closed.Load() {
			return
		}

		c.reportError(fmt.Errorf("websocket read: %w", err))
		c.dropConn(conn)
		c.failPending(fmt.Errorf("connection lost: %w", err))

		if !c.redial() {
			return
		}
		// Replies to the resubscribe requests arrive through this loop.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.resubscribeAll()
		}()
	}
}

// dropConn closes conn if it is still the current connection.
func (c *WSClientImpl) dropConn(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	conn.Close()
}

// failPending completes every outstanding request with err.
func (c *WSClientImpl) failPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]*pendingRequest)
	c.pendingMu.Unlock()

	for _, pr := range pending {
		pr.reply <- wsReply{err: &RPCError{Code: -1, Message: err.Error()}}
	}
}

// redial reconnects with exponential backoff. It returns false once the
// client is closed.
func (c *WSClientImpl) redial() bool {
	delay := c.config.ReconnectDelay
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
		err := c.connect(ctx)
		cancel()
		if err == nil {
			if c.closed.Load() {
				c.connMu.Lock()
				c.conn.Close()
				c.connMu.Unlock()
				return false
			}
			return true
		}
		c.reportError(fmt.Errorf("websocket reconnect: %w", err))

		delay *= 2
		if delay > c.config.MaxReconnectDelay {
			delay = c.config.MaxReconnectDelay
		}
	}
}

// resubscribeAll re-registers every live subscription on the new connection.
// Subscriptions keep their channels; only the node id changes.
func (c *WSClientImpl) resubscribeAll() {
	c.subsMu.RLock()
	subs := make([]*accountSub, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subsMu.RUnlock()

	for _, sub := range subs {
		if c.closed.Load() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.config.RequestTimeout)
		err := c.subscribe(ctx, sub)
		cancel()

		if err != nil {
			c.reportError(fmt.Errorf("resubscribe: %w", err))
		}
	}
}

// handleMessage processes incoming WebSocket message.
func (c *WSClientImpl) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.reportError(fmt.Errorf("decode message: %w", err))
		return
	}

	if env.ID != nil {
		c.handleReply(*env.ID, &env)
		return
	}

	if env.Method == "accountNotification" {
		c.handleAccountNotification(env.Params)
	}
}

// handleReply completes a pending request.
func (c *WSClientImpl) handleReply(id uint64, env *wsEnvelope) {
	c.pendingMu.Lock()
	pr, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		// Late reply to an abandoned request; nobody else will see the error.
		if env.Error != nil {
			c.reportError(env.Error)
		}
		return
	}

	if env.Error == nil && pr.sub != nil {
		var subID int64
		if err := json.Unmarshal(env.Result, &subID); err != nil {
			pr.reply <- wsReply{err: &RPCError{Code: -1, Message: "invalid subscription id: " + string(env.Result)}}
			return
		}
		c.bindSub(pr.sub, subID)
	}

	pr.reply <- wsReply{result: env.Result, err: env.Error}
}

// bindSub installs the node id for sub, replacing a previous binding.
func (c *WSClientImpl) bindSub(sub *accountSub, subID int64) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	// removeSub stops under the same lock, so a late reply cannot
	// re-insert a removed subscription.
	if sub.stopped() {
		return
	}
	if old, ok := c.subs[sub.key]; ok && old == sub && c.bySubID[sub.subID] == sub.key {
		delete(c.bySubID, sub.subID)
	}
	sub.subID = subID
	c.subs[sub.key] = sub
	c.bySubID[subID] = sub.key
}

// handleAccountNotification dispatches a balance change to its subscriber.
func (c *WSClientImpl) handleAccountNotification(raw json.RawMessage) {
	var params wsNotificationParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.reportError(fmt.Errorf("decode accountNotification: %w", err))
		return
	}

	c.subsMu.RLock()
	sub, ok := c.subs[c.bySubID[params.Subscription]]
	c.subsMu.RUnlock()

	if !ok {
		return
	}

	notif := AccountNotification{}
	var result wsAccountResult
	if err := json.Unmarshal(params.Result, &result); err != nil {
		notif.Err = fmt.Errorf("decode account %s: %w", sub.pubkey, err)
	} else {
		if result.Context != nil {
			notif.Slot = result.Context.Slot
		}
		if result.Value != nil {
			notif.Lamports = result.Value.Lamports
		}
	}

	// Block until delivered; never drop events for a live subscription
	select {
	case sub.ch <- notif:
	case <-sub.done:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				// A dead connection is picked up by the reader
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope covers both replies (id set) and notifications (method set).
type wsEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint64         `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
	Params  json.RawMessage `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type wsAccountResult struct {
	Context *wsContext      `json:"context"`
	Value   *wsAccountValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsAccountValue struct {
	Lamports   uint64      `json:"lamports"`
	Owner      string      `json:"owner"`
	Executable bool        `json:"executable"`
	Data       interface{} `json:"data"`
}
