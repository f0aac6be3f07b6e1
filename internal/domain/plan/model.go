package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type Plan struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Description  *string         `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Duration     int             `json:"duration"`
	TextSessions int             `json:"text_sessions"`
	VoiceCalls   int             `json:"voice_calls"`
	VideoCalls   int             `json:"video_calls"`
	Features     json.RawMessage `json:"features"`
	Status       int             `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Update is a normalized full replacement of a plan's editable fields.
type Update struct {
	Name         string          `validate:"required"`
	Description  *string
	Price        decimal.Decimal
	Currency     string          `validate:"oneof=USD MWK"`
	Duration     int             `validate:"gte=1"`
	TextSessions int             `validate:"gte=0"`
	VoiceCalls   int             `validate:"gte=0"`
	VideoCalls   int             `validate:"gte=0"`
	Features     json.RawMessage
	Status       int
}

const (
	DefaultCurrency = "USD"
	DefaultDuration = 30
	DefaultStatus   = 1
)

const (
	msgRequired     = "Name and price are required"
	msgBadPrice     = "Price must be a valid number"
	msgBadCurrency  = "Currency must be USD or MWK"
	msgBadStatus    = "Status must be an integer"
	msgBadAllotment = "Duration and session allotments must be non-negative integers"
)

type inputError string

func (e inputError) Error() string { return string(e) }

// updateBody keeps the loosely typed fields raw; the dashboard sends
// prices and statuses both as numbers and as strings.
type updateBody struct {
	Name         string          `json:"name"`
	Description  *string         `json:"description"`
	Price        json.RawMessage `json:"price"`
	Currency     string          `json:"currency"`
	Duration     json.RawMessage `json:"duration"`
	TextSessions json.RawMessage `json:"text_sessions"`
	VoiceCalls   json.RawMessage `json:"voice_calls"`
	VideoCalls   json.RawMessage `json:"video_calls"`
	Features     json.RawMessage `json:"features"`
	Status       json.RawMessage `json:"status"`
}

// ParseUpdate decodes and normalizes a PUT body. Missing allotments become
// zero, a missing duration 30, a missing status 1 and non-array features
// an empty list. A status of 0 is kept.
func ParseUpdate(body []byte) (*Update, error) {
	var b updateBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	if b.Name == "" || falsy(b.Price) {
		return nil, inputError(msgRequired)
	}
	price, ok := parsePrice(b.Price)
	if !ok {
		return nil, inputError(msgBadPrice)
	}

	u := &Update{
		Name:        b.Name,
		Description: b.Description,
		Price:       price,
		Currency:    strings.ToUpper(b.Currency),
		Features:    normalizeFeatures(b.Features),
	}
	if u.Description != nil && *u.Description == "" {
		u.Description = nil
	}
	if u.Currency == "" {
		u.Currency = DefaultCurrency
	}

	var err error
	if u.Duration, err = intOr(b.Duration, DefaultDuration); err != nil {
		return nil, inputError(msgBadAllotment)
	}
	for _, f := range []struct {
		raw json.RawMessage
		dst *int
	}{
		{b.TextSessions, &u.TextSessions},
		{b.VoiceCalls, &u.VoiceCalls},
		{b.VideoCalls, &u.VideoCalls},
	} {
		if *f.dst, err = intOr(f.raw, 0); err != nil {
			return nil, inputError(msgBadAllotment)
		}
	}
	if u.Status, err = parseInt(b.Status, DefaultStatus); err != nil {
		return nil, inputError(msgBadStatus)
	}

	if err := validate.Struct(u); err != nil {
		return nil, validationError(err)
	}
	return u, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	switch verrs[0].StructField() {
	case "Name":
		return inputError(msgRequired)
	case "Currency":
		return inputError(msgBadCurrency)
	default:
		return inputError(msgBadAllotment)
	}
}

// falsy mirrors what the dashboard treats as an absent value.
func falsy(raw json.RawMessage) bool {
	switch s := string(bytes.TrimSpace(raw)); s {
	case "", "null", "false", `""`, "0":
		return true
	default:
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && f == 0
	}
}

func parsePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		return d, err == nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(n.String())
	return d, err == nil
}

func absent(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`:
		return true
	}
	return false
}

// intOr parses a number or numeric string, falling back to def for an
// absent, null, empty or zero value.
func intOr(raw json.RawMessage, def int) (int, error) {
	if falsy(raw) {
		return def, nil
	}
	return parseInt(raw, def)
}

// parseInt truncates a number or numeric string. Only an absent value
// yields def; zero is kept.
func parseInt(raw json.RawMessage, def int) (int, error) {
	if absent(raw) {
		return def, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, errors.New("not an integer")
	}
	return int(math.Trunc(f)), nil
}

func normalizeFeatures(raw json.RawMessage) json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return json.RawMessage("[]")
	}
	out, err := json.Marshal(list)
	if err != nil {
		return json.RawMessage("[]")
	}
	return out
}
