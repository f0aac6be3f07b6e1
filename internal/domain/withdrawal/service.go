package withdrawal

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/internal/platform/db"
	"github.com/docavailable/admin-api/internal/platform/notification"
	"github.com/docavailable/admin-api/pkg/pagination"
)

// AdminResolver maps the admin named on a completion to a user id. A nil id
// with a nil error means nobody could be attributed.
type AdminResolver interface {
	ResolveAdminUserID(ctx context.Context, completedBy, callerEmail string) (*int64, error)
}

type Notifier interface {
	Notify(ctx context.Context, templateID, recipient string, data map[string]string) error
}

const notifyTimeout = 30 * time.Second

type Service struct {
	repo     Repository
	tx       db.TxRunner
	admins   AdminResolver
	notifier Notifier
	logger   zerolog.Logger

	now      func() time.Time
	spawn    func(func())
	// inflight counts notifications started by the default spawn.
	inflight sync.WaitGroup
}

// NewService wires the settlement workflow. notifier may be nil.
func NewService(repo Repository, tx db.TxRunner, admins AdminResolver, notifier Notifier, logger zerolog.Logger) *Service {
	s := &Service{
		repo:     repo,
		tx:       tx,
		admins:   admins,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	s.spawn = s.track
	return s
}

func (s *Service) track(f func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		f()
	}()
}

// Drain blocks until pending notifications finish or ctx is done.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var listStatuses = map[string]bool{
	"":              true,
	"all":           true,
	StatusPending:   true,
	StatusCompleted: true,
	StatusFailed:    true,
}

// List returns one page of requests. A zero pg.Limit returns all of them.
func (s *Service) List(ctx context.Context, status string, pg pagination.Params) (*Listing, error) {
	if !listStatuses[status] {
		return nil, apperr.Invalid("Invalid status filter")
	}

	total, err := s.repo.Count(ctx, status)
	if err != nil {
		return nil, apperr.Store("failed to count withdrawal requests", err)
	}
	items, err := s.repo.List(ctx, status, pg.Limit, pg.Offset())
	if err != nil {
		return nil, apperr.Store("failed to list withdrawal requests", err)
	}
	if items == nil {
		items = []Request{}
	}

	page := pagination.NewPage(pg, total)
	if pg.Limit <= 0 && total > 0 {
		page.TotalPages = 1
	}
	return &Listing{
		Items:       items,
		TotalCount:  page.TotalCount,
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
	}, nil
}

// UpdateStatus validates the target status, attributes a completion to an
// admin and settles the request.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status, completedBy, callerEmail string) error {
	if !ValidTargetStatus(status) {
		return apperr.Invalid(`Invalid status. Must be "completed" or "failed"`)
	}

	if status == StatusFailed {
		_, err := s.Fail(ctx, id)
		return err
	}

	paidBy, err := s.admins.ResolveAdminUserID(ctx, completedBy, callerEmail)
	if err != nil {
		return err
	}
	if paidBy == nil {
		return apperr.Invalid("Could not determine the admin completing this request")
	}
	_, err = s.Complete(ctx, id, *paidBy)
	return err
}

// Complete marks a pending request completed, debits the doctor's wallet and
// appends one ledger entry, all in one transaction. The doctor is notified
// after commit; notification failures are only logged.
func (s *Service) Complete(ctx context.Context, id, paidBy int64) (*Settlement, error) {
	now := s.now().UTC()

	var out *Settlement
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrNotPending
		}

		if err := s.repo.MarkCompleted(ctx, id, paidBy, now); err != nil {
			return err
		}
		walletID, err := s.repo.EnsureWallet(ctx, req.DoctorID, now)
		if err != nil {
			return err
		}
		balance, err := s.repo.DebitWallet(ctx, walletID, req.Amount, now)
		if err != nil {
			return err
		}
		entry := &LedgerEntry{
			WalletID:    walletID,
			Type:        LedgerDebit,
			Amount:      req.Amount,
			Description: ledgerDescription(req.PaymentMethod),
			Status:      StatusCompleted,
			CreatedAt:   now,
		}
		if err := s.repo.AppendLedger(ctx, entry); err != nil {
			return err
		}

		req.Status = StatusCompleted
		req.PaidBy = &paidBy
		req.PaidAt = &now
		req.UpdatedAt = now
		out = &Settlement{Request: req, Balance: balance, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, settlementError(err)
	}

	s.logger.Info().
		Int64("withdrawal_id", id).
		Int64("doctor_id", out.Request.DoctorID).
		Int64("paid_by", paidBy).
		Str("amount", out.Request.Amount.StringFixed(2)).
		Str("balance", out.Balance.StringFixed(2)).
		Msg("withdrawal completed")

	s.notifyProcessed(ctx, out.Request)
	return out, nil
}

// Fail marks a pending request failed. Wallets are untouched.
func (s *Service) Fail(ctx context.Context, id int64) (*Request, error) {
	now := s.now().UTC()

	var out *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return ErrNotPending
		}
		if err := s.repo.MarkFailed(ctx, id, now); err != nil {
			return err
		}
		req.Status = StatusFailed
		req.UpdatedAt = now
		out = req
		return nil
	})
	if err != nil {
		return nil, settlementError(err)
	}

	s.logger.Info().Int64("withdrawal_id", id).Msg("withdrawal failed")
	return out, nil
}

func settlementError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Withdrawal request not found")
	case errors.Is(err, ErrNotPending):
		return apperr.Conflict("Withdrawal request has already been processed")
	default:
		return apperr.Store("failed to settle withdrawal request", err)
	}
}

func (s *Service) notifyProcessed(ctx context.Context, req *Request) {
	if s.notifier == nil {
		return
	}
	if req.Doctor.Email == "" {
		s.logger.Warn().Int64("withdrawal_id", req.ID).Msg("doctor has no email, skipping notification")
		return
	}

	data := map[string]string{
		"doctor_name":    req.Doctor.withDefaults().LastName,
		"request_id":     strconv.FormatInt(req.ID, 10),
		"amount":         req.Amount.StringFixed(2),
		"currency":       req.Currency,
		"payment_method": HumanizeMethod(req.PaymentMethod),
		"paid_at":        req.PaidAt.Format("2 January 2006 15:04 MST"),
	}
	recipient := req.Doctor.Email
	detached := db.Detach(ctx)

	s.spawn(func() {
		ctx, cancel := context.WithTimeout(detached, notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, notification.TemplateWithdrawalProcessed, recipient, data); err != nil {
			s.logger.Error().Err(err).
				Int64("withdrawal_id", req.ID).
				Str("recipient", recipient).
				Msg("failed to send withdrawal notification")
		}
	})
}
