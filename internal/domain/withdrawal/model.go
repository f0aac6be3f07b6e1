package withdrawal

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	LedgerDebit  = "debit"
	LedgerCredit = "credit"
)

// Doctor is the joined identity of the requesting doctor. Fields hold the
// stored values; placeholders are applied only when rendering.
type Doctor struct {
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number"`
}

const (
	unknownFirstName = "Unknown"
	unknownLastName  = "Doctor"
	unknownEmail     = "No email"
)

// withDefaults fills the placeholders the dashboard shows for a missing user.
func (d Doctor) withDefaults() Doctor {
	if d.FirstName == "" {
		d.FirstName = unknownFirstName
	}
	if d.LastName == "" {
		d.LastName = unknownLastName
	}
	if d.Email == "" {
		d.Email = unknownEmail
	}
	return d
}

// Request is a doctor's payout request.
type Request struct {
	ID             int64
	DoctorID       int64
	Amount         decimal.Decimal
	Currency       string
	PaymentMethod  string
	PaymentDetails json.RawMessage
	Status         string
	PaidBy         *int64
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Doctor         Doctor
}

// requestJSON is the listing shape. Amount is a JSON number.
type requestJSON struct {
	ID             int64           `json:"id"`
	DoctorID       int64           `json:"doctor_id"`
	Amount         json.Number     `json:"amount"`
	Currency       string          `json:"currency"`
	PaymentMethod  string          `json:"payment_method"`
	PaymentDetails json.RawMessage `json:"payment_details"`
	Status         string          `json:"status"`
	PaidBy         *int64          `json:"paid_by"`
	PaidAt         *time.Time      `json:"paid_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Doctor         Doctor          `json:"doctor"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	details := r.PaymentDetails
	if len(details) == 0 {
		details = json.RawMessage("null")
	}
	return json.Marshal(requestJSON{
		ID:             r.ID,
		DoctorID:       r.DoctorID,
		Amount:         json.Number(r.Amount.StringFixed(2)),
		Currency:       r.Currency,
		PaymentMethod:  r.PaymentMethod,
		PaymentDetails: details,
		Status:         r.Status,
		PaidBy:         r.PaidBy,
		PaidAt:         r.PaidAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Doctor:         r.Doctor.withDefaults(),
	})
}

// LedgerEntry is one append-only wallet transaction.
type LedgerEntry struct {
	ID          int64
	WalletID    int64
	Type        string
	Amount      decimal.Decimal
	Description string
	Status      string
	CreatedAt   time.Time
}

// Settlement is the outcome of a completed withdrawal.
type Settlement struct {
	Request *Request
	Balance decimal.Decimal
	Entry   *LedgerEntry
}

// HumanizeMethod renders a payment method for ledger descriptions and mail.
func HumanizeMethod(method string) string {
	switch method {
	case "bank_transfer":
		return "Bank Transfer"
	case "mobile_money":
		return "Mobile Money"
	default:
		return "Mzunguko"
	}
}

func ledgerDescription(method string) string {
	return "Withdrawal processed - " + HumanizeMethod(method)
}

// ValidTargetStatus reports whether status is a settlement outcome.
func ValidTargetStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Listing is one page of withdrawal requests.
type Listing struct {
	Items       []Request
	TotalCount  int
	TotalPages  int
	CurrentPage int
}
