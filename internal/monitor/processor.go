package monitor

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"solana-sweeper/internal/domain"
	"solana-sweeper/internal/forward"
	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/notify"
	"solana-sweeper/internal/observability"
	"solana-sweeper/internal/registry"
	"solana-sweeper/internal/solana"
	"solana-sweeper/internal/storage"
)

// DefaultForwardTimeout bounds a forward started by an event, including
// confirmation.
const DefaultForwardTimeout = 2 * time.Minute

// Forwarder executes a sweep. *forward.Forwarder implements it.
type Forwarder interface {
	Forward(ctx context.Context, rpc solana.RPCClient, cred keys.Credential, observed uint64) (*forward.Result, error)
	Destination() string
}

// ProcessorOptions configures a Processor.
type ProcessorOptions struct {
	Forwarder      Forwarder
	Notifier       notify.Notifier
	Sweeps         storage.SweepStore // optional ledger
	ForwardTimeout time.Duration
	Logger         *log.Logger
}

// Processor applies the deposit rule to account events.
type Processor struct {
	forwarder      Forwarder
	notifier       notify.Notifier
	sweeps         storage.SweepStore
	forwardTimeout time.Duration
	logger         *log.Logger
	now            func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	timeout := opts.ForwardTimeout
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLog(opts.Logger)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Processor{
		forwarder:      opts.Forwarder,
		notifier:       notifier,
		sweeps:         opts.Sweeps,
		forwardTimeout: timeout,
		logger:         logger,
		now:            time.Now,
	}
}

// Handle processes one balance event of acct. On a deposit it notifies the
// owner and forwards synchronously, so the next event of the same account
// waits for the outcome. The observed balance always becomes the new
// baseline. It reports whether the event was a deposit.
func (p *Processor) Handle(ctx context.Context, acct *registry.Account, rpc solana.RPCClient, n solana.AccountNotification) (deposit bool) {
	observability.RecordNotification()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("panic handling event for %s: %v", acct.PublicKey(), r)
		}
	}()
	defer acct.SetLastBalance(n.Lamports)

	last := acct.LastBalance()
	if !IsDeposit(last, n.Lamports) {
		return false
	}

	received := n.Lamports - last
	pk := acct.PublicKey()
	detectedAt := p.now()
	observability.RecordDeposit(detectedAt.Unix())
	p.logger.Printf("%s: received %s SOL at slot %d", notify.ShortWallet(pk), notify.FormatSOL(received, 9), n.Slot)

	// Outcome reporting must survive a stop issued while the forward runs.
	bg := context.WithoutCancel(ctx)
	p.send(bg, notify.Message{
		Owner:    acct.Owner,
		Kind:     notify.KindDeposit,
		Text:     notify.DepositText(pk, received),
		Account:  pk,
		Lamports: received,
	})

	fctx, cancel := context.WithTimeout(bg, p.forwardTimeout)
	defer cancel()

	res, err := p.forwarder.Forward(fctx, rpc, acct.Credential, n.Lamports)
	p.complete(bg, acct, n.Lamports, detectedAt, res, err)
	return true
}

func (p *Processor) complete(ctx context.Context, acct *registry.Account, observed uint64, detectedAt time.Time, res *forward.Result, err error) {
	pk := acct.PublicKey()
	latency := p.now().Sub(detectedAt)

	rec := &domain.SweepRecord{
		ID:          uuid.NewString(),
		Owner:       acct.Owner,
		Account:     pk,
		Destination: p.forwarder.Destination(),
		Observed:    observed,
		LatencyMs:   latency.Milliseconds(),
		CreatedAt:   p.now().UTC(),
	}

	if err != nil {
		reason := forward.ReasonOf(err)
		var failure *forward.Failure
		if errors.As(err, &failure) {
			rec.Signature = failure.Signature
		}
		if reason == "" {
			reason = forward.ReasonSubmissionRejected
		}
		rec.Status = domain.SweepFailed
		rec.Reason = string(reason)

		p.logger.Printf("%s: forward failed: %v", notify.ShortWallet(pk), err)
		observability.RecordForward(string(domain.SweepFailed), 0, latency.Seconds(), p.now().Unix())
		p.send(ctx, notify.Message{
			Owner:     acct.Owner,
			Kind:      notify.KindForwardFailure,
			Text:      notify.ForwardFailureText(pk),
			Account:   pk,
			Lamports:  observed,
			Signature: rec.Signature,
		})
	} else {
		rec.Status = domain.SweepSucceeded
		rec.Amount = res.Amount
		rec.Signature = res.Signature

		p.logger.Printf("%s: forwarded %s SOL in %s (%s)", notify.ShortWallet(pk), notify.FormatSOL(res.Amount, 9), latency, res.Signature)
		observability.RecordForward(string(domain.SweepSucceeded), res.Amount, latency.Seconds(), p.now().Unix())
		p.send(ctx, notify.Message{
			Owner:     acct.Owner,
			Kind:      notify.KindForwardSuccess,
			Text:      notify.ForwardSuccessText(pk, res.Amount, latency, res.Signature),
			Account:   pk,
			Lamports:  res.Amount,
			Signature: res.Signature,
		})
	}

	if p.sweeps != nil {
		if err := p.sweeps.Insert(ctx, rec); err != nil {
			p.logger.Printf("record sweep for %s: %v", notify.ShortWallet(pk), err)
		}
	}
}

func (p *Processor) send(ctx context.Context, msg notify.Message) {
	if err := notify.Send(ctx, p.notifier, msg); err != nil {
		p.logger.Printf("notify %s for %s: %v", msg.Kind, msg.Owner, err)
	}
}
