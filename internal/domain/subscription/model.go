package subscription

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

type User struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type Subscription struct {
	ID                    int64      `json:"id"`
	UserID                int64      `json:"user_id"`
	PlanID                *int64     `json:"plan_id"`
	PlanName              *string    `json:"plan_name"`
	PlanPrice             *string    `json:"plan_price"`
	PlanCurrency          *string    `json:"plan_currency"`
	Status                int        `json:"status"`
	IsActive              bool       `json:"is_active"`
	StartDate             *time.Time `json:"start_date"`
	EndDate               *time.Time `json:"end_date"`
	TextSessionsRemaining int        `json:"text_sessions_remaining"`
	AppointmentsRemaining int        `json:"appointments_remaining"`
	VoiceCallsRemaining   int        `json:"voice_calls_remaining"`
	VideoCallsRemaining   int        `json:"video_calls_remaining"`
	CreatedAt             time.Time  `json:"created_at"`
	User                  User       `json:"user"`
}

// Counters is the row returned after a counter patch.
type Counters struct {
	ID                    int64   `json:"id"`
	TextSessionsRemaining int     `json:"text_sessions_remaining"`
	VoiceCallsRemaining   int     `json:"voice_calls_remaining"`
	VideoCallsRemaining   int     `json:"video_calls_remaining"`
	AppointmentsRemaining int     `json:"appointments_remaining"`
	PlanName              *string `json:"plan_name"`
}

// ActiveState is the row returned after toggling a subscription.
type ActiveState struct {
	ID       int64 `json:"id"`
	IsActive bool  `json:"is_active"`
}

// CounterFields are the patchable columns, in update order.
var CounterFields = []string{
	"text_sessions_remaining",
	"voice_calls_remaining",
	"video_calls_remaining",
	"appointments_remaining",
}

// CounterPatch holds the counters present in a request body.
type CounterPatch map[string]int

const (
	StatusAll      = "all"
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Filter struct {
	Search string
	Status string
}

// Caller-facing patch validation messages.
const (
	msgNoFields   = "No fields to update"
	msgBadCounter = "All remaining counts must be non-negative integers"
)

type patchError string

func (e patchError) Error() string { return string(e) }

// ParseCounterPatch reads the counter fields out of a JSON object. Keys
// other than the counters are ignored. A present key with a null, string,
// fractional or negative value rejects the whole patch.
func ParseCounterPatch(body []byte) (CounterPatch, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	present := 0
	for _, f := range CounterFields {
		if _, ok := raw[f]; ok {
			present++
		}
	}
	if present == 0 {
		return nil, patchError(msgNoFields)
	}

	patch := make(CounterPatch, present)
	for _, f := range CounterFields {
		v, ok := raw[f]
		if !ok {
			continue
		}
		n, ok := v.(json.Number)
		if !ok {
			return nil, patchError(msgBadCounter)
		}
		count, ok := nonNegativeInt(n)
		if !ok {
			return nil, patchError(msgBadCounter)
		}
		patch[f] = count
	}
	return patch, nil
}

func nonNegativeInt(n json.Number) (int, bool) {
	if i, err := n.Int64(); err == nil {
		return int(i), i >= 0 && i <= math.MaxInt32
	}
	// 3.0 and 3e2 are integers too.
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < 0 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}
