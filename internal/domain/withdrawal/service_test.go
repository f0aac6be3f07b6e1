package withdrawal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/internal/platform/notification"
	"github.com/docavailable/admin-api/pkg/pagination"
)

type mockWallet struct {
	id       int64
	doctorID int64
	balance  decimal.Decimal
}

// mockRepo is an in-memory store. failOn names a method that returns an
// injected error.
type mockRepo struct {
	mu         sync.Mutex
	requests   map[int64]*Request
	wallets    map[int64]*mockWallet
	ledger     []LedgerEntry
	nextWallet int64
	failOn     string
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		requests:   make(map[int64]*Request),
		wallets:    make(map[int64]*mockWallet),
		nextWallet: 1,
	}
}

var errInjected = errors.New("injected store failure")

func (m *mockRepo) fail(method string) error {
	if m.failOn == method {
		return errInjected
	}
	return nil
}

func (m *mockRepo) List(_ context.Context, status string, limit, offset int) ([]Request, error) {
	if err := m.fail("List"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Request
	for _, r := range m.requests {
		if status == "" || status == "all" || r.Status == status {
			out = append(out, *r)
		}
	}
	if limit <= 0 {
		return out, nil
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (m *mockRepo) Count(ctx context.Context, status string) (int, error) {
	items, err := m.List(ctx, status, 1<<30, 0)
	return len(items), err
}

func (m *mockRepo) LockRequest(_ context.Context, id int64) (*Request, error) {
	if err := m.fail("LockRequest"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) MarkCompleted(_ context.Context, id, paidBy int64, at time.Time) error {
	if err := m.fail("MarkCompleted"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.requests[id]
	if r == nil || r.Status != StatusPending {
		return ErrNotPending
	}
	r.Status = StatusCompleted
	r.PaidBy = &paidBy
	r.PaidAt = &at
	r.UpdatedAt = at
	return nil
}

func (m *mockRepo) MarkFailed(_ context.Context, id int64, at time.Time) error {
	if err := m.fail("MarkFailed"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.requests[id]
	if r == nil || r.Status != StatusPending {
		return ErrNotPending
	}
	r.Status = StatusFailed
	r.UpdatedAt = at
	return nil
}

func (m *mockRepo) EnsureWallet(_ context.Context, doctorID int64, _ time.Time) (int64, error) {
	if err := m.fail("EnsureWallet"); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[doctorID]; ok {
		return w.id, nil
	}
	w := &mockWallet{id: m.nextWallet, doctorID: doctorID, balance: decimal.Zero}
	m.nextWallet++
	m.wallets[doctorID] = w
	return w.id, nil
}

func (m *mockRepo) DebitWallet(_ context.Context, walletID int64, amount decimal.Decimal, _ time.Time) (decimal.Decimal, error) {
	if err := m.fail("DebitWallet"); err != nil {
		return decimal.Zero, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.id == walletID {
			w.balance = w.balance.Sub(amount)
			return w.balance, nil
		}
	}
	return decimal.Zero, errors.New("wallet not found")
}

func (m *mockRepo) AppendLedger(_ context.Context, e *LedgerEntry) error {
	if err := m.fail("AppendLedger"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.ledger) + 1)
	m.ledger = append(m.ledger, *e)
	return nil
}

func (m *mockRepo) seedWallet(doctorID int64, balance string) {
	m.wallets[doctorID] = &mockWallet{id: m.nextWallet, doctorID: doctorID, balance: decimal.RequireFromString(balance)}
	m.nextWallet++
}

func (m *mockRepo) balance(doctorID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[doctorID]; ok {
		return w.balance
	}
	return decimal.Zero
}

type repoState struct {
	requests map[int64]Request
	wallets  map[int64]mockWallet
	ledger   []LedgerEntry
	next     int64
}

func (m *mockRepo) snapshot() repoState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := repoState{
		requests: make(map[int64]Request, len(m.requests)),
		wallets:  make(map[int64]mockWallet, len(m.wallets)),
		ledger:   append([]LedgerEntry(nil), m.ledger...),
		next:     m.nextWallet,
	}
	for id, r := range m.requests {
		s.requests[id] = *r
	}
	for id, w := range m.wallets {
		s.wallets[id] = *w
	}
	return s
}

func (m *mockRepo) restore(s repoState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = make(map[int64]*Request, len(s.requests))
	for id, r := range s.requests {
		r := r
		m.requests[id] = &r
	}
	m.wallets = make(map[int64]*mockWallet, len(s.wallets))
	for id, w := range s.wallets {
		w := w
		m.wallets[id] = &w
	}
	m.ledger = s.ledger
	m.nextWallet = s.next
}

// mockTx serializes units of work, standing in for the row lock, and
// restores the repo when fn fails.
type mockTx struct {
	mu   sync.Mutex
	repo *mockRepo
}

func (t *mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	before := t.repo.snapshot()
	if err := fn(ctx); err != nil {
		t.repo.restore(before)
		return err
	}
	return nil
}

type stubResolver struct {
	id    *int64
	err   error
	calls int
}

func (r *stubResolver) ResolveAdminUserID(_ context.Context, _, _ string) (*int64, error) {
	r.calls++
	return r.id, r.err
}

func int64p(v int64) *int64 { return &v }

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *mockRepo
	resolver *stubResolver
	email    *notification.MockEmailSender
}

func newFixture() *fixture {
	repo := newMockRepo()
	resolver := &stubResolver{id: int64p(3)}
	email := &notification.MockEmailSender{}
	notifier := notification.NewNotifier(notification.NewTemplateEngine(), email)

	svc := NewService(repo, &mockTx{repo: repo}, resolver, notifier, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	svc.spawn = func(f func()) { f() }
	return &fixture{svc: svc, repo: repo, resolver: resolver, email: email}
}

func (f *fixture) addRequest(id, doctorID int64, amount, method string) {
	f.repo.requests[id] = &Request{
		ID:            id,
		DoctorID:      doctorID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "MWK",
		PaymentMethod: method,
		Status:        StatusPending,
		CreatedAt:     fixedNow.Add(-time.Hour),
		Doctor:        Doctor{FirstName: "Chikondi", LastName: "Banda", Email: "banda@example.test"},
	}
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != kind {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func TestComplete_MobileMoneyScenario(t *testing.T) {
	f := newFixture()
	f.addRequest(7, 12, "150.00", "mobile_money")
	f.repo.seedWallet(12, "500.00")

	out, err := f.svc.Complete(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := f.repo.requests[7]
	if req.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", req.Status)
	}
	if req.PaidBy == nil || *req.PaidBy != 3 {
		t.Errorf("expected paid_by 3, got %v", req.PaidBy)
	}
	if req.PaidAt == nil || !req.PaidAt.Equal(fixedNow) {
		t.Errorf("expected paid_at %v, got %v", fixedNow, req.PaidAt)
	}
	if got := f.repo.balance(12); !got.Equal(decimal.RequireFromString("350.00")) {
		t.Errorf("expected balance 350.00, got %s", got)
	}
	if !out.Balance.Equal(decimal.RequireFromString("350")) {
		t.Errorf("settlement balance = %s", out.Balance)
	}

	if len(f.repo.ledger) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(f.repo.ledger))
	}
	e := f.repo.ledger[0]
	if e.Type != LedgerDebit || !e.Amount.Equal(decimal.RequireFromString("150")) || e.Status != StatusCompleted {
		t.Errorf("unexpected ledger entry %+v", e)
	}
	if !strings.Contains(e.Description, "Mobile Money") {
		t.Errorf("description %q should name the payment method", e.Description)
	}
}

func TestComplete_CreatesWalletAndAllowsNegative(t *testing.T) {
	f := newFixture()
	f.addRequest(1, 20, "75.50", "bank_transfer")

	if _, err := f.svc.Complete(context.Background(), 1, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.repo.balance(20); !got.Equal(decimal.RequireFromString("-75.50")) {
		t.Errorf("expected -75.50, got %s", got)
	}
	if f.repo.ledger[0].Description != "Withdrawal processed - Bank Transfer" {
		t.Errorf("unexpected description %q", f.repo.ledger[0].Description)
	}
}

func TestComplete_SecondCallIsConflict(t *testing.T) {
	f := newFixture()
	f.addRequest(7, 12, "150.00", "mobile_money")
	f.repo.seedWallet(12, "500.00")

	if _, err := f.svc.Complete(context.Background(), 7, 3); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, err := f.svc.Complete(context.Background(), 7, 3)
	expectKind(t, err, apperr.KindConflict)

	if got := f.repo.balance(12); !got.Equal(decimal.RequireFromString("350")) {
		t.Errorf("balance debited twice: %s", got)
	}
	if len(f.repo.ledger) != 1 {
		t.Errorf("expected 1 ledger entry, got %d", len(f.repo.ledger))
	}
}

func TestComplete_SequentialSum(t *testing.T) {
	f := newFixture()
	f.repo.seedWallet(12, "1000.00")
	amounts := []string{"10.25", "99.99", "0.01", "250.00", "40.75"}
	sum := decimal.Zero
	for i, a := range amounts {
		f.addRequest(int64(i+1), 12, a, "other")
		sum = sum.Add(decimal.RequireFromString(a))
	}

	for i := range amounts {
		if _, err := f.svc.Complete(context.Background(), int64(i+1), 3); err != nil {
			t.Fatalf("completion %d: %v", i+1, err)
		}
	}

	want := decimal.RequireFromString("1000.00").Sub(sum)
	if got := f.repo.balance(12); !got.Equal(want) {
		t.Errorf("expected %s, got %s", want, got)
	}
	if len(f.repo.ledger) != len(amounts) {
		t.Fatalf("expected %d ledger entries, got %d", len(amounts), len(f.repo.ledger))
	}
	for _, e := range f.repo.ledger {
		if e.Type != LedgerDebit {
			t.Errorf("entry %d has type %s", e.ID, e.Type)
		}
		if e.Description != "Withdrawal processed - Mzunguko" {
			t.Errorf("unexpected description %q", e.Description)
		}
	}
}

func TestComplete_RollsBackOnFailure(t *testing.T) {
	for _, step := range []string{"MarkCompleted", "EnsureWallet", "DebitWallet", "AppendLedger"} {
		t.Run(step, func(t *testing.T) {
			f := newFixture()
			f.addRequest(7, 12, "150.00", "mobile_money")
			f.repo.seedWallet(12, "500.00")
			f.repo.failOn = step

			_, err := f.svc.Complete(context.Background(), 7, 3)
			expectKind(t, err, apperr.KindStore)

			req := f.repo.requests[7]
			if req.Status != StatusPending || req.PaidBy != nil {
				t.Errorf("request mutated: status=%s paid_by=%v", req.Status, req.PaidBy)
			}
			if got := f.repo.balance(12); !got.Equal(decimal.RequireFromString("500")) {
				t.Errorf("balance changed to %s", got)
			}
			if len(f.repo.ledger) != 0 {
				t.Errorf("ledger has %d entries", len(f.repo.ledger))
			}
			if len(f.email.Calls()) != 0 {
				t.Error("no notification expected for a rolled back settlement")
			}
		})
	}
}

func TestComplete_ConcurrentCallersSerialize(t *testing.T) {
	f := newFixture()
	f.addRequest(7, 12, "150.00", "mobile_money")
	f.repo.seedWallet(12, "500.00")

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Complete(context.Background(), 7, 3)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !apperr.Is(err, apperr.KindConflict) {
			t.Errorf("expected conflict, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly one success, got %d", succeeded)
	}
	if got := f.repo.balance(12); !got.Equal(decimal.RequireFromString("350")) {
		t.Errorf("expected 350, got %s", got)
	}
	if len(f.repo.ledger) != 1 {
		t.Errorf("expected 1 ledger entry, got %d", len(f.repo.ledger))
	}
}

func TestComplete_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Complete(context.Background(), 404, 3)
	expectKind(t, err, apperr.KindNotFound)
}

func TestFail(t *testing.T) {
	f := newFixture()
	f.addRequest(1, 12, "20.00", "mobile_money")
	f.repo.seedWallet(12, "100.00")

	req, err := f.svc.Fail(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Status != StatusFailed || f.repo.requests[1].Status != StatusFailed {
		t.Error("request not failed")
	}
	if f.repo.requests[1].PaidBy != nil {
		t.Error("paid_by must stay empty on failure")
	}
	if got := f.repo.balance(12); !got.Equal(decimal.RequireFromString("100")) {
		t.Errorf("wallet changed to %s", got)
	}
	if len(f.repo.ledger) != 0 {
		t.Error("failure must not write the ledger")
	}

	_, err = f.svc.Fail(context.Background(), 1)
	expectKind(t, err, apperr.KindConflict)
}

func TestTerminalStatesAreFinal(t *testing.T) {
	f := newFixture()
	f.addRequest(1, 12, "20.00", "mobile_money")
	f.addRequest(2, 12, "20.00", "mobile_money")

	if _, err := f.svc.Complete(context.Background(), 1, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Fail(context.Background(), 2); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Fail(context.Background(), 1)
	expectKind(t, err, apperr.KindConflict)
	_, err = f.svc.Complete(context.Background(), 2, 3)
	expectKind(t, err, apperr.KindConflict)
}

func TestUpdateStatus_Validation(t *testing.T) {
	for _, status := range []string{"", "pending", "COMPLETED", "approved"} {
		t.Run(status, func(t *testing.T) {
			f := newFixture()
			f.addRequest(1, 12, "20.00", "mobile_money")

			err := f.svc.UpdateStatus(context.Background(), 1, status, "3", "ops@example.test")
			expectKind(t, err, apperr.KindInvalidArgument)
			if !strings.Contains(err.Error(), `Must be "completed" or "failed"`) {
				t.Errorf("unexpected message %q", err.Error())
			}
			if f.resolver.calls != 0 {
				t.Error("resolver should not run for an invalid status")
			}
			if f.repo.requests[1].Status != StatusPending {
				t.Error("request mutated")
			}
		})
	}
}

func TestUpdateStatus_ResolverFailureBlocksMutation(t *testing.T) {
	f := newFixture()
	f.addRequest(1, 12, "20.00", "mobile_money")
	f.resolver.id = nil
	f.resolver.err = apperr.Invalid("Admin not found")

	err := f.svc.UpdateStatus(context.Background(), 1, StatusCompleted, "999", "")
	expectKind(t, err, apperr.KindInvalidArgument)
	if f.repo.requests[1].Status != StatusPending || len(f.repo.wallets) != 0 {
		t.Error("nothing may change when the admin cannot be resolved")
	}
}

func TestUpdateStatus_UnattributedCompletionRejected(t *testing.T) {
	f := newFixture()
	f.addRequest(1, 12, "20.00", "mobile_money")
	f.resolver.id = nil

	err := f.svc.UpdateStatus(context.Background(), 1, StatusCompleted, "", "")
	expectKind(t, err, apperr.KindInvalidArgument)
	if f.repo.requests[1].Status != StatusPending {
		t.Error("request mutated")
	}
}

func TestUpdateStatus_FailedSkipsResolver(t *testing.T) {
	f := newFixture()
	f.addRequest(1, 12, "20.00", "mobile_money")
	f.resolver.id = nil

	if err := f.svc.UpdateStatus(context.Background(), 1, StatusFailed, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.resolver.calls != 0 {
		t.Error("failing a request needs no admin attribution")
	}
}

func TestComplete_NotifiesDoctor(t *testing.T) {
	f := newFixture()
	f.addRequest(7, 12, "150.00", "mobile_money")

	if _, err := f.svc.Complete(context.Background(), 7, 3); err != nil {
		t.Fatal(err)
	}
	calls := f.email.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if calls[0].To != "banda@example.test" {
		t.Errorf("sent to %q", calls[0].To)
	}
	if calls[0].Subject != "Your withdrawal of MWK 150.00 has been processed" {
		t.Errorf("unexpected subject %q", calls[0].Subject)
	}
	if !strings.Contains(calls[0].Body, "Mobile Money") || !strings.Contains(calls[0].Body, "#7") {
		t.Errorf("unexpected body %q", calls[0].Body)
	}
}

func TestComplete_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture()
	f.addRequest(7, 12, "150.00", "mobile_money")
	f.email.ShouldFail = true
	f.email.FailError = "smtp unavailable"

	if _, err := f.svc.Complete(context.Background(), 7, 3); err != nil {
		t.Fatalf("notification failure surfaced: %v", err)
	}
	if f.repo.requests[7].Status != StatusCompleted {
		t.Error("settlement should stand when mail fails")
	}
}

func TestComplete_NoEmailSkipsNotification(t *testing.T) {
	f := newFixture()
	f.addRequest(7, 12, "150.00", "mobile_money")
	f.repo.requests[7].Doctor = Doctor{}

	if _, err := f.svc.Complete(context.Background(), 7, 3); err != nil {
		t.Fatal(err)
	}
	if len(f.email.Calls()) != 0 {
		t.Error("no email expected for a doctor without an address")
	}
}

func TestComplete_NotifiesAsynchronously(t *testing.T) {
	repo := newMockRepo()
	email := &notification.MockEmailSender{Sent: make(chan notification.EmailCall, 1)}
	svc := NewService(repo, &mockTx{repo: repo}, &stubResolver{id: int64p(3)},
		notification.NewNotifier(notification.NewTemplateEngine(), email), zerolog.Nop())
	f := &fixture{svc: svc, repo: repo, email: email}
	f.addRequest(7, 12, "150.00", "mobile_money")

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.Complete(ctx, 7, 3); err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case call := <-email.Sent:
		if call.To != "banda@example.test" {
			t.Errorf("sent to %q", call.To)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestList(t *testing.T) {
	f := newFixture()
	f.addRequest(1, 12, "20.00", "mobile_money")
	f.addRequest(2, 12, "30.00", "bank_transfer")
	f.repo.requests[2].Status = StatusFailed

	listing, err := f.svc.List(context.Background(), "pending", pagination.Params{Page: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if listing.TotalCount != 1 || len(listing.Items) != 1 || listing.Items[0].ID != 1 {
		t.Errorf("unexpected listing %+v", listing)
	}

	_, err = f.svc.List(context.Background(), "paid", pagination.Params{Page: 1, Limit: 10})
	expectKind(t, err, apperr.KindInvalidArgument)

	f.repo.failOn = "List"
	_, err = f.svc.List(context.Background(), "", pagination.Params{Page: 1, Limit: 10})
	expectKind(t, err, apperr.KindStore)
}

func TestList_EmptyIsNotNull(t *testing.T) {
	f := newFixture()
	listing, err := f.svc.List(context.Background(), "", pagination.Params{Page: 1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if listing.Items == nil {
		t.Error("expected an empty slice")
	}
}

type blockingNotifier struct {
	release chan struct{}
	sent    chan string
}

func (b *blockingNotifier) Notify(ctx context.Context, templateID, recipient string, data map[string]string) error {
	<-b.release
	b.sent <- recipient
	return nil
}

func TestDrain_WaitsForPendingNotification(t *testing.T) {
	repo := newMockRepo()
	notifier := &blockingNotifier{release: make(chan struct{}), sent: make(chan string, 1)}
	svc := NewService(repo, &mockTx{repo: repo}, &stubResolver{id: int64p(3)}, notifier, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	f := &fixture{svc: svc, repo: repo}
	f.addRequest(7, 12, "150.00", "bank_transfer")
	repo.seedWallet(12, "500.00")

	if _, err := svc.Complete(context.Background(), 7, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected drain to time out while the mail is blocked, got %v", err)
	}

	close(notifier.release)
	if err := svc.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	select {
	case got := <-notifier.sent:
		if got != "banda@example.test" {
			t.Errorf("unexpected recipient %q", got)
		}
	default:
		t.Fatal("expected the notification to finish before drain returned")
	}
}

func TestDrain_NothingPending(t *testing.T) {
	f := newFixture()
	if err := f.svc.Drain(context.Background()); err != nil {
		t.Fatalf("expected immediate return, got %v", err)
	}
}
