package sweeper

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sweeper/internal/forward"
	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/keys/keystest"
	"solana-sweeper/internal/monitor"
	"solana-sweeper/internal/notify"
	"solana-sweeper/internal/observability"
	"solana-sweeper/internal/pool"
	"solana-sweeper/internal/registry"
	"solana-sweeper/internal/solana"
	"solana-sweeper/internal/solana/stub"
	"solana-sweeper/internal/storage"
	"solana-sweeper/internal/storage/memory"
)

const owner = "1001"

var discard = log.New(io.Discard, "", 0)

type harness struct {
	svc      *Service
	sessions *memory.SessionStore
	sweeps   *memory.SweepStore
	notifier *notify.Recorder
	rpc      *stub.RPCClient

	mu sync.Mutex
	ws map[int]*stub.WSClient
}

func newHarness(t *testing.T, endpoints int, sessions *memory.SessionStore) *harness {
	t.Helper()

	urls := make([]string, endpoints)
	for i := range urls {
		urls[i] = "https://rpc" + string(rune('a'+i)) + ".example.com"
	}
	p := pool.New(urls, 4)

	if sessions == nil {
		sessions = memory.NewSessionStore()
	}
	h := &harness{
		sessions: sessions,
		sweeps:   memory.NewSweepStore(),
		notifier: &notify.Recorder{},
		rpc:      stub.NewRPCClient(),
		ws:       make(map[int]*stub.WSClient),
	}

	fwd, err := forward.New(forward.Config{
		RetryDelay:     time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}, discard)
	require.NoError(t, err)

	dial := func(_ context.Context, ep *pool.Endpoint, _ func(error)) (solana.WSClient, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		ws := stub.NewWSClient()
		h.ws[ep.Index] = ws
		return ws, nil
	}

	eps := make([]*pool.Endpoint, p.Len())
	for i := range eps {
		eps[i] = p.Endpoint(i)
	}

	manager := monitor.NewManager(monitor.ManagerOptions{
		Connections: monitor.NewConnections(dial, func(*pool.Endpoint) solana.RPCClient { return h.rpc }),
		Processor: monitor.NewProcessor(monitor.ProcessorOptions{
			Forwarder: fwd,
			Notifier:  h.notifier,
			Sweeps:    h.sweeps,
			Logger:    discard,
		}),
		Health: monitor.NewHealth(eps, monitor.DefaultErrorThreshold),
		Logger: discard,
	})

	h.svc = New(Options{
		Registry:       registry.New(p),
		Manager:        manager,
		Sessions:       sessions,
		Sweeps:         h.sweeps,
		Notifier:       h.notifier,
		Destination:    fwd.Destination(),
		ReportInterval: time.Hour,
		Logger:         discard,
	})
	t.Cleanup(func() { h.svc.Close() })
	return h
}

func (h *harness) stream(i int) *stub.WSClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ws[i]
}

func lines(creds []keys.Credential) string {
	return strings.Join(keystest.Lines(creds), "\n")
}

func droppedTotal(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, observability.DefaultMetrics.DroppedForCapacity.Write(&m))
	return m.GetCounter().GetValue()
}

func TestAddAccounts_CapacityScenario(t *testing.T) {
	h := newHarness(t, 2, nil)
	ctx := context.Background()
	creds := keystest.Generate("svc-capacity", 10)
	dropped := droppedTotal(t)

	res, err := h.svc.AddAccounts(ctx, owner, lines(creds))
	require.NoError(t, err)

	assert.Equal(t, 10, res.Valid)
	assert.Equal(t, 8, res.Monitored)
	assert.Equal(t, 8, res.Live)
	assert.Equal(t, 2, res.DroppedForCapacity)
	assert.Contains(t, res.Text, "8 of 10")
	assert.Equal(t, dropped+2, droppedTotal(t))

	saved, err := h.sessions.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, saved, 8)
	for i, r := range saved {
		assert.Equal(t, creds[i].PublicKey, r.PublicKey)
	}

	session, err := h.sessions.FindLastOpenSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, session.Owner)
	assert.Equal(t, 8, session.AccountCount)

	sessionMsgs := h.notifier.OfKind(notify.KindSession)
	require.Len(t, sessionMsgs, 1)
	assert.Equal(t, owner, sessionMsgs[0].Owner)
}

func TestAddAccounts_RejectsGarbage(t *testing.T) {
	h := newHarness(t, 1, nil)

	_, err := h.svc.AddAccounts(context.Background(), owner, "hello\nmy wallet key\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoValidCredentials)
	assert.Contains(t, Reply(err), "2 line(s) checked")
}

func TestAddAccounts_NoEndpoints(t *testing.T) {
	h := newHarness(t, 0, nil)

	_, err := h.svc.AddAccounts(context.Background(), owner, lines(keystest.Generate("svc-noep", 1)))
	assert.ErrorIs(t, err, pool.ErrNoEndpointsConfigured)
	assert.Equal(t, NoEndpointsText, Reply(err))
}

func TestAddAccounts_FilteredSummary(t *testing.T) {
	h := newHarness(t, 1, nil)
	creds := keystest.Generate("svc-filter", 2)

	res, err := h.svc.AddAccounts(context.Background(), owner, "# my keys\n"+lines(creds))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Rejected)
	assert.Contains(t, res.Text, "Total lines: 3")
	assert.Contains(t, res.Text, "Monitoring started for 2 wallets")
}

func TestAddAccounts_SecondBatchKeepsFirst(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()
	creds := keystest.Generate("svc-second", 3)

	_, err := h.svc.AddAccounts(ctx, owner, lines(creds[:2]))
	require.NoError(t, err)

	res, err := h.svc.AddAccounts(ctx, owner, lines(creds[1:]))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 3, res.Monitored)

	saved, err := h.sessions.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, saved, 3)
}

func TestStopAccounts(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()
	creds := keystest.Generate("svc-stop", 3)

	_, err := h.svc.AddAccounts(ctx, owner, lines(creds))
	require.NoError(t, err)

	target := creds[1].PublicKey
	res, err := h.svc.StopAccounts(ctx, owner, []string{target[:10], "", "nomatch-selector-that-is-long"})
	require.NoError(t, err)

	assert.Equal(t, []string{target}, res.Stopped)
	assert.Equal(t, []string{"nomatch-selector-that-is-long"}, res.NotFound)
	assert.Equal(t, 2, res.Remaining)
	assert.False(t, res.StoppedAll)
	assert.Contains(t, res.Text, keys.ShortKey(target, 8, 4))
	assert.Contains(t, res.Text, "nomatch-selector-tha...")
	assert.False(t, h.stream(0).Subscribed(target))

	saved, err := h.sessions.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, creds[0].PublicKey, saved[0].PublicKey)
	assert.Equal(t, creds[2].PublicKey, saved[1].PublicKey)
}

func TestStopAccounts_LastStopsSession(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()
	cred := keystest.One("svc-last")

	_, err := h.svc.AddAccounts(ctx, owner, cred.Encoded)
	require.NoError(t, err)

	res, err := h.svc.StopAccounts(ctx, owner, []string{cred.PublicKey})
	require.NoError(t, err)
	assert.True(t, res.StoppedAll)
	assert.Contains(t, res.Text, notify.StoppedAllText)

	_, err = h.sessions.FindLastOpenSession(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = h.svc.StopAccounts(ctx, owner, []string{cred.PublicKey})
	assert.ErrorIs(t, err, ErrNothingMonitored)
}

func TestStopAccounts_NoSelectors(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()

	_, err := h.svc.AddAccounts(ctx, owner, keystest.One("svc-nosel").Encoded)
	require.NoError(t, err)

	_, err = h.svc.StopAccounts(ctx, owner, []string{" ", ""})
	assert.ErrorIs(t, err, ErrNoSelectors)
}

func TestStopAllAndResume(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()
	creds := keystest.Generate("svc-resume", 2)

	_, err := h.svc.AddAccounts(ctx, owner, lines(creds))
	require.NoError(t, err)

	assert.Equal(t, 2, h.svc.StopAll(ctx, owner))
	status, err := h.svc.Status(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, status.Accounts)
	assert.Contains(t, status.Text, "2 saved wallet(s)")

	res, err := h.svc.Resume(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	assert.Equal(t, 2, res.Monitored)
	assert.Equal(t, 2, res.Live)

	session, err := h.sessions.FindLastOpenSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, session.Owner)
}

func TestResume_NothingSaved(t *testing.T) {
	h := newHarness(t, 1, nil)

	_, err := h.svc.Resume(context.Background(), owner)
	assert.ErrorIs(t, err, ErrNothingToResume)
	assert.Equal(t, NothingToResume, Reply(err))
}

func TestAutoResume(t *testing.T) {
	sessions := memory.NewSessionStore()
	ctx := context.Background()

	first := newHarness(t, 1, sessions)
	_, err := first.svc.AddAccounts(ctx, owner, lines(keystest.Generate("svc-auto", 3)))
	require.NoError(t, err)
	require.NoError(t, first.svc.Close())

	second := newHarness(t, 1, sessions)
	resumed, err := second.svc.AutoResume(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, resumed)

	status, err := second.svc.Status(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, status.Accounts, 3)
	assert.Empty(t, second.notifier.OfKind(notify.KindSession), "auto-resume is silent")
}

func TestAutoResume_NoSession(t *testing.T) {
	h := newHarness(t, 1, nil)

	resumed, err := h.svc.AutoResume(context.Background())
	require.NoError(t, err)
	assert.Empty(t, resumed)
}

func TestClear(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()

	_, err := h.svc.AddAccounts(ctx, owner, lines(keystest.Generate("svc-clear", 2)))
	require.NoError(t, err)

	n, err := h.svc.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	saved, err := h.sessions.LoadAccounts(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, saved)

	_, err = h.svc.Resume(ctx, owner)
	assert.ErrorIs(t, err, ErrNothingToResume)
}

// failingClearStore fails ClearAccounts and delegates everything else.
type failingClearStore struct {
	storage.SessionStore
}

func (failingClearStore) ClearAccounts(context.Context, string) (int, error) {
	return 0, errors.New("disk full")
}

func TestClear_StopsMonitoringWhenStoreFails(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()

	creds := keystest.Generate("svc-clear-fail", 2)
	_, err := h.svc.AddAccounts(ctx, owner, lines(creds))
	require.NoError(t, err)
	require.Equal(t, 2, h.svc.manager.Len())

	h.svc.sessions = failingClearStore{h.sessions}

	_, err = h.svc.Clear(ctx, owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, 0, h.svc.manager.Len())
	for _, c := range creds {
		assert.False(t, h.svc.manager.Watching(c.PublicKey))
	}
}

func TestStatus_WithSweep(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()
	cred := keystest.One("svc-status")

	_, err := h.svc.AddAccounts(ctx, owner, cred.Encoded)
	require.NoError(t, err)

	require.True(t, h.stream(0).Push(cred.PublicKey, solana.AccountNotification{Slot: 5, Lamports: 1_000_000}))
	// The baseline is updated last, after the ledger insert.
	acct, ok := h.svc.registry.Get(owner, cred.PublicKey)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return acct.LastBalance() == 1_000_000
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, h.notifier.OfKind(notify.KindForwardSuccess), 1)

	status, err := h.svc.Status(ctx, owner)
	require.NoError(t, err)

	require.Len(t, status.Accounts, 1)
	assert.Equal(t, cred.PublicKey, status.Accounts[0].PublicKey)
	assert.Equal(t, uint64(1_000_000), status.Accounts[0].LastBalance)
	assert.Equal(t, monitor.DefaultErrorThreshold, status.Threshold)
	assert.Equal(t, forward.DefaultDestination, status.Destination)
	require.NotNil(t, status.Stats)
	assert.Equal(t, 1, status.Stats.Active)
	require.Len(t, status.RecentSweeps, 1)
	assert.Equal(t, uint64(995_000), status.RecentSweeps[0].Amount)

	assert.Contains(t, status.Text, cred.PublicKey)
	assert.Contains(t, status.Text, forward.DefaultDestination)
	assert.Contains(t, status.Text, "Errors: 0/5")
}

func TestWelcomeAndHelp(t *testing.T) {
	h := newHarness(t, 1, nil)
	ctx := context.Background()

	assert.Contains(t, h.svc.Welcome(ctx, owner), "/add_wallets")
	assert.NotContains(t, h.svc.Welcome(ctx, owner), "saved wallet")

	_, err := h.svc.AddAccounts(ctx, owner, keystest.One("svc-welcome").Encoded)
	require.NoError(t, err)
	assert.Contains(t, h.svc.Welcome(ctx, owner), "You have 1 saved wallet(s)")

	assert.Contains(t, h.svc.Help(), "/clear_wallets")
}

func TestReply_Fallback(t *testing.T) {
	assert.Equal(t, "❌ boom", Reply(errors.New("boom")))
}
