// Package sweeper implements the operator commands on top of the registry,
// the subscription manager and the session store.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/monitor"
	"solana-sweeper/internal/notify"
	"solana-sweeper/internal/observability"
	"solana-sweeper/internal/pool"
	"solana-sweeper/internal/registry"
	"solana-sweeper/internal/storage"
)

// RecentSweepsLimit is the number of ledger entries shown by Status.
const RecentSweepsLimit = 10

// Command errors. Each carries a ready reply text through Reply.
var (
	ErrNoValidCredentials = errors.New("no valid credentials")
	ErrNothingToResume    = errors.New("no saved accounts to resume")
	ErrNothingMonitored   = errors.New("no accounts are monitored")
	ErrNoSelectors        = errors.New("no selectors given")
)

// Reply returns the operator-facing text of a command error.
func Reply(err error) string {
	var noKeys *NoValidCredentialsError
	switch {
	case errors.As(err, &noKeys):
		return noValidKeysText(noKeys.Lines)
	case errors.Is(err, pool.ErrNoEndpointsConfigured):
		return NoEndpointsText
	case errors.Is(err, ErrNothingToResume):
		return NothingToResume
	case errors.Is(err, ErrNothingMonitored):
		return NothingMonitored
	case errors.Is(err, ErrNoSelectors):
		return NoSelectorsText
	default:
		return "❌ " + err.Error()
	}
}

// NoValidCredentialsError reports a submission without a single usable key.
type NoValidCredentialsError struct {
	Lines int
}

func (e *NoValidCredentialsError) Error() string {
	return fmt.Sprintf("%v in %d line(s)", ErrNoValidCredentials, e.Lines)
}

func (e *NoValidCredentialsError) Unwrap() error {
	return ErrNoValidCredentials
}

// Options configures a Service.
type Options struct {
	Registry *registry.Registry
	Manager  *monitor.Manager
	Sessions storage.SessionStore
	Sweeps   storage.SweepStore // optional
	Notifier notify.Notifier

	Destination    string
	ReportInterval time.Duration
	Logger         *log.Logger
}

// Service executes operator commands. Each owner has one monitoring
// session; starting it again replaces the previous one.
type Service struct {
	registry    *registry.Registry
	manager     *monitor.Manager
	sessions    storage.SessionStore
	sweeps      storage.SweepStore
	notifier    notify.Notifier
	destination string
	interval    time.Duration
	logger      *log.Logger

	// Serializes commands so a restart never interleaves with a stop.
	mu        sync.Mutex
	reporters map[string]*monitor.Reporter
}

// New creates a Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog(logger)
	}

	return &Service{
		registry:    opts.Registry,
		manager:     opts.Manager,
		sessions:    opts.Sessions,
		sweeps:      opts.Sweeps,
		notifier:    notifier,
		destination: opts.Destination,
		interval:    opts.ReportInterval,
		logger:      logger,
		reporters:   make(map[string]*monitor.Reporter),
	}
}

// AddResult is the outcome of AddAccounts.
type AddResult struct {
	Lines              int    `json:"lines"`
	Valid              int    `json:"valid"`
	Rejected           int    `json:"rejected"`
	Duplicates         int    `json:"duplicates"`
	Added              int    `json:"added"`
	DroppedForCapacity int    `json:"dropped_for_capacity"`
	Monitored          int    `json:"monitored"`
	Live               int    `json:"live"`
	Text               string `json:"text"`
}

// AddAccounts registers the credentials found in text for owner, persists
// the owner's full account set and restarts monitoring of it.
func (s *Service) AddAccounts(ctx context.Context, owner, text string) (*AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.registry.Register(owner, text)
	if err != nil {
		return nil, err
	}

	valid := len(reg.Accepted) + reg.Duplicates + reg.DroppedForCapacity
	if valid == 0 {
		return nil, &NoValidCredentialsError{Lines: reg.Lines}
	}

	if reg.DroppedForCapacity > 0 {
		observability.RecordDropped(reg.DroppedForCapacity)
	}

	accounts := s.registry.Accounts(owner)
	s.save(ctx, owner, accounts)

	live := s.restart(ctx, owner, accounts)
	started := notify.StartedText(len(accounts), len(accounts)+reg.DroppedForCapacity)
	s.send(ctx, owner, started)

	res := &AddResult{
		Lines:              reg.Lines,
		Valid:              valid,
		Rejected:           reg.Rejected,
		Duplicates:         reg.Duplicates,
		Added:              len(reg.Accepted),
		DroppedForCapacity: reg.DroppedForCapacity,
		Monitored:          len(accounts),
		Live:               live,
	}

	var parts []string
	if reg.Rejected > 0 {
		parts = append(parts, filteredText(reg.Lines, valid))
	}
	parts = append(parts, started)
	res.Text = strings.Join(parts, "\n\n")

	s.logger.Printf("owner %s: added %d, monitoring %d (%d live)", owner, res.Added, res.Monitored, live)
	return res, nil
}

// ResumeResult is the outcome of Resume.
type ResumeResult struct {
	Saved     int    `json:"saved"`
	Monitored int    `json:"monitored"`
	Live      int    `json:"live"`
	Text      string `json:"text"`
}

// Resume restarts monitoring of owner's saved accounts.
func (s *Service) Resume(ctx context.Context, owner string) (*ResumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.resume(ctx, owner)
	if err != nil {
		return nil, err
	}
	s.send(ctx, owner, res.Text)
	return res, nil
}

// AutoResume silently resumes the most recently started open session.
// It reports the resumed owner, or "" when there was nothing to resume.
func (s *Service) AutoResume(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.sessions.FindLastOpenSession(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find open session: %w", err)
	}

	res, err := s.resume(ctx, session.Owner)
	if errors.Is(err, ErrNothingToResume) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	s.logger.Printf("auto-resumed owner %s: %d/%d accounts", session.Owner, res.Monitored, res.Saved)
	return session.Owner, nil
}

func (s *Service) resume(ctx context.Context, owner string) (*ResumeResult, error) {
	if s.registry.Pool().Len() == 0 {
		return nil, pool.ErrNoEndpointsConfigured
	}

	records, err := s.sessions.LoadAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNothingToResume
	}

	s.stopOwner(owner)

	secrets := make([]string, len(records))
	for i, r := range records {
		secrets[i] = r.Secret
	}
	if _, err := s.registry.Restore(owner, secrets); err != nil {
		return nil, err
	}

	// Reopens the session; records beyond capacity stay saved.
	if _, err := s.sessions.SaveAccounts(ctx, owner, records); err != nil {
		s.logger.Printf("owner %s: reopen session: %v", owner, err)
	}

	accounts := s.registry.Accounts(owner)
	live := s.restart(ctx, owner, accounts)

	return &ResumeResult{
		Saved:     len(records),
		Monitored: len(accounts),
		Live:      live,
		Text:      notify.StartedText(len(accounts), len(records)),
	}, nil
}

// AccountStatus is one monitored account in a status report.
type AccountStatus struct {
	PublicKey   string    `json:"public_key"`
	Endpoint    int       `json:"endpoint"`
	Retired     bool      `json:"retired"`
	LastBalance uint64    `json:"last_balance"`
	AddedAt     time.Time `json:"added_at"`
}

// StatusReport describes owner's monitoring state.
type StatusReport struct {
	Owner        string                   `json:"owner"`
	Accounts     []AccountStatus          `json:"accounts"`
	Endpoints    []monitor.EndpointHealth `json:"endpoints"`
	Threshold    int                      `json:"threshold"`
	Destination  string                   `json:"destination"`
	Stats        *domain.AccountStats     `json:"stats,omitempty"`
	RecentSweeps []*domain.SweepRecord    `json:"recent_sweeps,omitempty"`
	Text         string                   `json:"text"`
}

// Status reports owner's accounts, endpoint health, store statistics and
// recent sweeps. Storage failures leave the corresponding parts empty.
func (s *Service) Status(ctx context.Context, owner string) (*StatusReport, error) {
	r := &StatusReport{
		Owner:       owner,
		Threshold:   s.manager.Health().Threshold(),
		Destination: s.destination,
		Endpoints:   s.manager.Snapshot().Endpoints,
	}

	for _, a := range s.registry.Accounts(owner) {
		r.Accounts = append(r.Accounts, AccountStatus{
			PublicKey:   a.PublicKey(),
			Endpoint:    a.Endpoint.Index,
			Retired:     a.Retired(),
			LastBalance: a.LastBalance(),
			AddedAt:     a.AddedAt,
		})
	}

	stats, err := s.sessions.Stats(ctx, owner)
	if err != nil {
		s.logger.Printf("owner %s: stats: %v", owner, err)
	} else {
		r.Stats = stats
	}

	if s.sweeps != nil {
		sweeps, err := s.sweeps.ListByOwner(ctx, owner, RecentSweepsLimit)
		if err != nil {
			s.logger.Printf("owner %s: recent sweeps: %v", owner, err)
		} else {
			r.RecentSweeps = sweeps
		}
	}

	r.Text = statusText(r)
	return r, nil
}

// StopResult is the outcome of StopAccounts.
type StopResult struct {
	Stopped    []string `json:"stopped"`
	NotFound   []string `json:"not_found"`
	Remaining  int      `json:"remaining"`
	StoppedAll bool     `json:"stopped_all"`
	Text       string   `json:"text"`
}

// StopAccounts stops the first account matching each selector. Stopping the
// last account ends the session.
func (s *Service) StopAccounts(ctx context.Context, owner string, selectors []string) (*StopResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry.Len(owner) == 0 {
		return nil, ErrNothingMonitored
	}

	var cleaned []string
	for _, sel := range selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			cleaned = append(cleaned, sel)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoSelectors
	}

	stop := s.registry.Stop(owner, cleaned)
	res := &StopResult{NotFound: stop.NotFound}
	for _, a := range stop.Stopped {
		pk := a.PublicKey()
		s.manager.Stop(pk)
		res.Stopped = append(res.Stopped, pk)
	}

	if len(res.Stopped) > 0 {
		if err := s.sessions.DeactivateAccounts(ctx, owner, res.Stopped); err != nil {
			s.logger.Printf("owner %s: deactivate accounts: %v", owner, err)
		}
	}

	res.Remaining = s.registry.Len(owner)
	res.Text = stopText(res.Stopped, res.NotFound, res.Remaining)

	if len(res.Stopped) > 0 && res.Remaining == 0 {
		s.stopAll(ctx, owner)
		s.send(ctx, owner, notify.StoppedAllText)
		res.StoppedAll = true
		res.Text += "\n\n" + notify.StoppedAllText
	}
	return res, nil
}

// StopAll stops every account of owner and closes the session. Saved
// accounts are kept for Resume. It returns the number of stopped accounts.
func (s *Service) StopAll(ctx context.Context, owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.stopAll(ctx, owner)
	s.send(ctx, owner, notify.StoppedAllText)
	return n
}

func (s *Service) stopAll(ctx context.Context, owner string) int {
	n := s.stopOwner(owner)
	if err := s.sessions.MarkSessionStopped(ctx, owner); err != nil {
		s.logger.Printf("owner %s: mark session stopped: %v", owner, err)
	}
	s.logger.Printf("owner %s: stopped %d account(s)", owner, n)
	return n
}

// Clear deletes owner's saved accounts and stops monitoring. It returns the
// number of deleted records.
func (s *Service) Clear(ctx context.Context, owner string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Monitoring stops even when the store cannot be cleared.
	s.stopAll(ctx, owner)
	n, err := s.sessions.ClearAccounts(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("clear accounts: %w", err)
	}
	return n, nil
}

// Welcome returns the greeting with the number of saved accounts.
func (s *Service) Welcome(ctx context.Context, owner string) string {
	saved := 0
	stats, err := s.sessions.Stats(ctx, owner)
	if err != nil {
		s.logger.Printf("owner %s: stats: %v", owner, err)
	} else {
		saved = stats.Active
	}
	return welcomeText(saved)
}

// Help returns the command overview.
func (s *Service) Help() string {
	return HelpText
}

// Close stops reporting and monitoring. Sessions stay open so the next
// process resumes them.
func (s *Service) Close() error {
	s.mu.Lock()
	reporters := s.reporters
	s.reporters = make(map[string]*monitor.Reporter)
	s.mu.Unlock()

	for _, r := range reporters {
		r.Stop()
	}
	return s.manager.Close()
}

// restart stops owner's watches and starts them again from a zero
// baseline with fresh endpoint health, then schedules the report.
func (s *Service) restart(ctx context.Context, owner string, accounts []*registry.Account) int {
	for _, a := range accounts {
		s.manager.Stop(a.PublicKey())
	}
	if s.manager.Len() == 0 {
		s.manager.StopAll()
	}

	live := s.manager.Start(ctx, accounts)

	r, ok := s.reporters[owner]
	if !ok {
		r = monitor.NewReporter(s.interval, func() monitor.Snapshot { return s.snapshot(owner) }, s.notifier, s.logger)
		s.reporters[owner] = r
	}
	r.Start(owner)
	return live
}

// stopOwner ends every watch and the report of owner and forgets its
// accounts. Endpoint health resets once nothing is watched.
func (s *Service) stopOwner(owner string) int {
	if r, ok := s.reporters[owner]; ok {
		r.Stop()
		delete(s.reporters, owner)
	}

	accounts := s.registry.Clear(owner)
	for _, a := range accounts {
		s.manager.Stop(a.PublicKey())
	}
	if s.manager.Len() == 0 {
		s.manager.StopAll()
	}
	return len(accounts)
}

// snapshot is the report view of owner.
func (s *Service) snapshot(owner string) monitor.Snapshot {
	var snap monitor.Snapshot
	for _, a := range s.registry.Accounts(owner) {
		snap.Total++
		if a.Retired() {
			snap.Retired++
		}
	}
	snap.Active = snap.Total - snap.Retired
	return snap
}

func (s *Service) save(ctx context.Context, owner string, accounts []*registry.Account) {
	records := make([]domain.CredentialRecord, len(accounts))
	for i, a := range accounts {
		records[i] = domain.CredentialRecord{
			Secret:    a.Credential.Encoded,
			PublicKey: a.PublicKey(),
			Owner:     owner,
			Position:  i,
			Active:    true,
			CreatedAt: a.AddedAt,
		}
	}
	if _, err := s.sessions.SaveAccounts(ctx, owner, records); err != nil {
		s.logger.Printf("owner %s: save accounts: %v", owner, err)
	}
}

func (s *Service) send(ctx context.Context, owner, text string) {
	err := notify.Send(context.WithoutCancel(ctx), s.notifier, notify.Message{
		Owner: owner,
		Kind:  notify.KindSession,
		Text:  text,
	})
	if err != nil {
		s.logger.Printf("owner %s: notify: %v", owner, err)
	}
}
