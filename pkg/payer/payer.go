package payer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/bursar/pkg/cards"
	"github.com/yurifrl/bursar/pkg/config"
	"github.com/yurifrl/bursar/pkg/portal"
)

// Payer drives one payment run against one session. It owns the session for
// the run's duration and submits strictly one payment at a time: the
// paid-so-far derivation depends on the balance moving only under its feet.
type Payer struct {
	cfg     *config.Config
	logger  *log.Logger
	session portal.Session

	// Captured once per run; initialBalance never changes after capture and
	// payPerCard is recomputed only on a fresh run.
	initialBalance decimal.Decimal
	payPerCard     decimal.Decimal
}

// Options selects where cards come from for a run.
type Options struct {
	// ForceManual skips the batch file entirely.
	ForceManual bool
	// ManualIn/ManualOut carry the interactive prompts (stdin/stdout in the
	// CLI, buffers in tests).
	ManualIn  io.Reader
	ManualOut io.Writer
}

func New(cfg *config.Config, logger *log.Logger, session portal.Session) *Payer {
	return &Payer{
		cfg:     cfg,
		logger:  logger,
		session: session,
	}
}

// Run executes the full loop: discover the fee, capture the starting
// balance, pick a card source and pay until a stop condition lands. A batch
// that fails to load is the one recovered error (manual entry takes over);
// every session error ends the run, with no retry and no second attempt for
// the same card.
func (p *Payer) Run(ctx context.Context, opts Options) error {
	fee, err := p.session.DiscoverFeePercent(ctx)
	if err != nil {
		return fmt.Errorf("failed to discover fee percent: %w", err)
	}
	p.payPerCard = AmountPerCard(p.cfg.AmountPerCard, fee)
	p.logger.Info("fee discovered", "feePercent", fee, "amountPerCard", p.payPerCard)

	p.initialBalance, err = p.session.RemainingBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read starting balance: %w", err)
	}
	p.logger.Info("starting balance", "balance", p.initialBalance)

	if err := p.processCards(ctx, p.pickSource(opts)); err != nil {
		return err
	}
	return p.finish()
}

// pickSource loads the configured batch, falling back to manual entry when
// there is no usable batch file.
func (p *Payer) pickSource(opts Options) cards.Source {
	manual := cards.NewManualSource(opts.ManualIn, opts.ManualOut, p.cfg.ZipCode)
	if opts.ForceManual {
		p.logger.Info("manual entry requested")
		return manual
	}

	path := cards.ResolveBatchPath("", p.cfg.CardsCSV)
	batch, err := cards.LoadFile(path, p.cfg.ZipCode, p.logger)
	if err != nil {
		p.logger.Warn("no usable card batch, switching to manual entry", "path", path, "error", err)
		return manual
	}

	p.logger.Info("loaded card batch", "path", path, "cards", len(batch))
	return cards.FromSlice(batch)
}

type stopReason int

const (
	keepGoing stopReason = iota
	targetReached
	wouldExceedTarget
)

// evalStop applies the pre-payment target check against a freshly observed
// balance. Pure; recomputed on every observation, never cached.
func evalStop(initial, balance, target, payPerCard decimal.Decimal) stopReason {
	paidSoFar := initial.Sub(balance)
	remaining := target.Sub(paidSoFar)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return targetReached
	}
	if remaining.LessThan(payPerCard) {
		return wouldExceedTarget
	}
	return keepGoing
}

func (p *Payer) processCards(ctx context.Context, source cards.Source) error {
	for {
		// External interrupts land between payments, never mid-submission.
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.cfg.TargetConfigured() {
			balance, err := p.session.RemainingBalance(ctx)
			if err != nil {
				return fmt.Errorf("failed to read balance: %w", err)
			}
			paidSoFar := p.initialBalance.Sub(balance)
			switch evalStop(p.initialBalance, balance, p.cfg.TargetPayment, p.payPerCard) {
			case targetReached:
				p.logger.Info("target reached", "paidSoFar", paidSoFar, "target", p.cfg.TargetPayment)
				return nil
			case wouldExceedTarget:
				p.logger.Info("stopping: next payment would exceed target",
					"remainingToTarget", p.cfg.TargetPayment.Sub(paidSoFar),
					"amountPerCard", p.payPerCard)
				return nil
			}
		}

		card, err := source.Next()
		if err != nil {
			if errors.Is(err, cards.ErrNoMoreCards) {
				p.logger.Info("out of cards, run complete")
				return nil
			}
			return err
		}

		newBalance, err := p.session.SubmitPayment(ctx, card, p.payPerCard)
		if err != nil {
			return fmt.Errorf("payment failed for card %s: %w", card.Masked(), err)
		}
		p.logProgress(newBalance)

		if newBalance.LessThanOrEqual(decimal.Zero) {
			p.logger.Info("balance paid in full", "balance", newBalance)
			return nil
		}
	}
}

func (p *Payer) logProgress(balance decimal.Decimal) {
	paidSoFar := p.initialBalance.Sub(balance)
	kv := []any{"paidSoFar", paidSoFar, "balance", balance}
	if p.cfg.TargetConfigured() {
		remaining := p.cfg.TargetPayment.Sub(paidSoFar)
		kv = append(kv,
			"remainingToTarget", remaining,
			"paymentsLeft", EstimatePayments(remaining, p.payPerCard))
	}
	p.logger.Info("payment applied", kv...)
}

func (p *Payer) finish() error {
	if p.cfg.KeepSessionOpen() {
		p.logger.Info("leaving session open for inspection")
		return nil
	}
	p.logger.Info("closing session")
	if err := p.session.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}
