package payer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/bursar/pkg/config"
	"github.com/yurifrl/bursar/pkg/models"
	"github.com/yurifrl/bursar/pkg/portal"
)

type submission struct {
	card   *models.Card
	amount decimal.Decimal
}

// mockSession tracks balance like the real portal would: every accepted
// payment shrinks it by the submitted amount.
type mockSession struct {
	balance decimal.Decimal
	fee     decimal.Decimal

	submissions []submission
	closed      int

	SubmitFn func(card *models.Card, amount decimal.Decimal) (decimal.Decimal, error)
}

func (m *mockSession) DiscoverFeePercent(ctx context.Context) (decimal.Decimal, error) {
	return m.fee, nil
}

func (m *mockSession) RemainingBalance(ctx context.Context) (decimal.Decimal, error) {
	return m.balance, nil
}

func (m *mockSession) SubmitPayment(ctx context.Context, card *models.Card, amount decimal.Decimal) (decimal.Decimal, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(card, amount)
	}
	m.submissions = append(m.submissions, submission{card: card, amount: amount})
	m.balance = m.balance.Sub(amount)
	return m.balance, nil
}

func (m *mockSession) Close() error {
	m.closed++
	return nil
}

var _ portal.Session = (*mockSession)(nil)

func writeBatch(t *testing.T, cards int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("number,expMonth,expYear,cvv\n")
	for i := 0; i < cards; i++ {
		b.WriteString("4111111111111111,12,25,123\n")
	}
	path := filepath.Join(t.TempDir(), "batch.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("failed to write batch: %v", err)
	}
	return path
}

func testConfig(cardsCSV string) *config.Config {
	return &config.Config{
		PortalURL:     "https://portal.example.edu",
		AmountPerCard: decimal.NewFromInt(200),
		ZipCode:       "94720",
		Username:      "student",
		Password:      "hunter2",
		CardsCSV:      cardsCSV,
		Headless:      true,
	}
}

func batchOpts() Options {
	return Options{ManualIn: strings.NewReader(""), ManualOut: &bytes.Buffer{}}
}

func TestRunBatchUntilExhausted(t *testing.T) {
	session := &mockSession{balance: decimal.NewFromInt(1000)}
	p := New(testConfig(writeBatch(t, 3)), log.Default(), session)

	if err := p.Run(context.Background(), batchOpts()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(session.submissions) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(session.submissions))
	}
	for i, s := range session.submissions {
		if !s.amount.Equal(decimal.NewFromInt(200)) {
			t.Errorf("payment %d amount = %s, want 200 (zero fee)", i, s.amount)
		}
		if s.card.Zip != "94720" {
			t.Errorf("payment %d zip = %q", i, s.card.Zip)
		}
	}
	if !session.balance.Equal(decimal.NewFromInt(400)) {
		t.Errorf("balance = %s, want 400", session.balance)
	}
	if session.closed != 1 {
		t.Errorf("session closed %d times, want 1", session.closed)
	}
}

func TestRunAppliesFeeToAmount(t *testing.T) {
	session := &mockSession{
		balance: decimal.NewFromInt(1000),
		fee:     decimal.RequireFromString("2.85"),
	}
	p := New(testConfig(writeBatch(t, 1)), log.Default(), session)

	if err := p.Run(context.Background(), batchOpts()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(session.submissions) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(session.submissions))
	}
	if got := session.submissions[0].amount; !got.Equal(decimal.RequireFromString("194.46")) {
		t.Errorf("submitted %s, want 194.46", got)
	}
}

func TestRunStopsWhenPaidInFull(t *testing.T) {
	session := &mockSession{balance: decimal.NewFromInt(400)}
	p := New(testConfig(writeBatch(t, 5)), log.Default(), session)

	if err := p.Run(context.Background(), batchOpts()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(session.submissions) != 2 {
		t.Errorf("expected 2 payments before the balance hit zero, got %d", len(session.submissions))
	}
}

func TestRunStopsBeforeExceedingTarget(t *testing.T) {
	cfg := testConfig(writeBatch(t, 5))
	cfg.TargetPayment = decimal.NewFromInt(500)
	cfg.HasTarget = true

	session := &mockSession{balance: decimal.NewFromInt(1000)}
	p := New(cfg, log.Default(), session)

	if err := p.Run(context.Background(), batchOpts()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// After two 200 payments, 100 remains to the 500 target: less than one
	// more payment, so the run stops with cards left over.
	if len(session.submissions) != 2 {
		t.Errorf("expected 2 payments, got %d", len(session.submissions))
	}
	if !session.balance.Equal(decimal.NewFromInt(600)) {
		t.Errorf("balance = %s, want 600", session.balance)
	}
}

func TestRunFailsFastOnRejection(t *testing.T) {
	calls := 0
	session := &mockSession{balance: decimal.NewFromInt(1000)}
	session.SubmitFn = func(card *models.Card, amount decimal.Decimal) (decimal.Decimal, error) {
		calls++
		return decimal.Zero, &portal.RejectedError{Reason: "card declined"}
	}

	p := New(testConfig(writeBatch(t, 3)), log.Default(), session)
	err := p.Run(context.Background(), batchOpts())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rejected *portal.RejectedError
	if !errors.As(err, &rejected) {
		t.Errorf("error should wrap RejectedError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("rejected card was attempted %d times, want exactly 1 (no retry, no skip)", calls)
	}
	if session.closed != 0 {
		t.Errorf("failed run should not close the session, got %d closes", session.closed)
	}
}

func TestRunFallsBackToManualEntry(t *testing.T) {
	cfg := testConfig(filepath.Join(t.TempDir(), "missing.csv"))
	session := &mockSession{balance: decimal.NewFromInt(1000)}
	p := New(cfg, log.Default(), session)

	input := strings.Join([]string{"4111111111111111", "03/23", "123", "done"}, "\n")
	var out bytes.Buffer
	err := p.Run(context.Background(), Options{ManualIn: strings.NewReader(input), ManualOut: &out})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(session.submissions) != 1 {
		t.Fatalf("expected 1 manual payment, got %d", len(session.submissions))
	}
	if session.submissions[0].card.ExpMonth != "03" {
		t.Errorf("manual card month = %q", session.submissions[0].card.ExpMonth)
	}
	if !strings.Contains(out.String(), "Card Number") {
		t.Errorf("manual prompts missing from output: %q", out.String())
	}
}

func TestRunForcedManualSkipsBatch(t *testing.T) {
	// A perfectly good batch is ignored when manual entry is forced.
	cfg := testConfig(writeBatch(t, 3))
	session := &mockSession{balance: decimal.NewFromInt(1000)}
	p := New(cfg, log.Default(), session)

	err := p.Run(context.Background(), Options{
		ForceManual: true,
		ManualIn:    strings.NewReader("done\n"),
		ManualOut:   &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(session.submissions) != 0 {
		t.Errorf("expected no payments, got %d", len(session.submissions))
	}
}

func TestRunKeepsSessionOpen(t *testing.T) {
	cfg := testConfig(writeBatch(t, 1))
	cfg.Headless = false

	session := &mockSession{balance: decimal.NewFromInt(1000)}
	p := New(cfg, log.Default(), session)

	if err := p.Run(context.Background(), batchOpts()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if session.closed != 0 {
		t.Errorf("non-headless run should keep the session open, got %d closes", session.closed)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := &mockSession{balance: decimal.NewFromInt(1000)}
	p := New(testConfig(writeBatch(t, 3)), log.Default(), session)

	if err := p.Run(ctx, batchOpts()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(session.submissions) != 0 {
		t.Errorf("cancelled run should not submit, got %d payments", len(session.submissions))
	}
}

func TestEvalStop(t *testing.T) {
	initial := decimal.NewFromInt(1000)
	target := decimal.NewFromInt(500)
	payPerCard := decimal.NewFromInt(200)

	cases := []struct {
		balance string
		want    stopReason
	}{
		// paidSoFar 400, remaining 100 < 200: the next payment would
		// overshoot the target.
		{"600", wouldExceedTarget},
		// paidSoFar 700 >= target, regardless of payPerCard.
		{"300", targetReached},
		{"1000", keepGoing},
		{"800", keepGoing},
		{"500", targetReached},
	}
	for _, c := range cases {
		got := evalStop(initial, decimal.RequireFromString(c.balance), target, payPerCard)
		if got != c.want {
			t.Errorf("evalStop with balance %s = %d, want %d", c.balance, got, c.want)
		}
	}
}
