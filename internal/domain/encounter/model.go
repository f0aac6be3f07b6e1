package encounter

import (
	"strings"
	"time"
)

// SourceType names the table an encounter row came from.
type SourceType string

const (
	SourceAppointment SourceType = "appointment"
	SourceTextSession SourceType = "text_session"
	SourceCallSession SourceType = "call_session"
)

// Sources lists every source in union order.
var Sources = []SourceType{SourceAppointment, SourceTextSession, SourceCallSession}

func ParseSourceType(s string) (SourceType, bool) {
	for _, src := range Sources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// Label is the human name used in response messages.
func (s SourceType) Label() string {
	switch s {
	case SourceAppointment:
		return "Appointment"
	case SourceTextSession:
		return "Text session"
	case SourceCallSession:
		return "Call session"
	default:
		return "Encounter"
	}
}

// Statuses is the vocabulary accepted on status updates. Any member is
// accepted for any source.
var Statuses = map[string]bool{
	"pending":   true,
	"confirmed": true,
	"completed": true,
	"cancelled": true,
	"active":    true,
	"ended":     true,
}

// CallTypes are the type filter values that select call sessions.
var CallTypes = map[string]bool{
	"voice": true,
	"video": true,
	"call":  true,
}

// Participant is the display identity of a doctor or patient.
type Participant struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Variant is one of ScheduledAppointment, TextSession or CallSession.
type Variant interface {
	Source() SourceType
	Project() Encounter
	participants() (doctor, patient Participant)
	createdAt() time.Time
	key() int64
	variant()
}

type ScheduledAppointment struct {
	ID               int64
	DoctorID         int64
	PatientID        int64
	AppointmentType  *string
	Status           *string
	ScheduledDate    *string
	ScheduledTime    *string
	DurationMinutes  *int
	Reason           *string
	CreatedAt        time.Time
	ActualStartTime  *time.Time
	ActualEndTime    *time.Time
	SessionsDeducted *int
	Doctor           Participant
	Patient          Participant
}

type TextSession struct {
	ID           int64
	DoctorID     int64
	PatientID    int64
	Status       *string
	Description  *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	SessionsUsed *int
	Doctor       Participant
	Patient      Participant
}

type CallSession struct {
	ID           int64
	DoctorID     int64
	PatientID    int64
	CallType     *string
	Status       *string
	Reason       *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
	CallDuration *int
	SessionsUsed *int
	Doctor       Participant
	Patient      Participant
}

func (ScheduledAppointment) Source() SourceType { return SourceAppointment }
func (TextSession) Source() SourceType          { return SourceTextSession }
func (CallSession) Source() SourceType          { return SourceCallSession }

func (ScheduledAppointment) variant() {}
func (TextSession) variant()          {}
func (CallSession) variant()          {}

func (a ScheduledAppointment) participants() (Participant, Participant) { return a.Doctor, a.Patient }
func (t TextSession) participants() (Participant, Participant)          { return t.Doctor, t.Patient }
func (c CallSession) participants() (Participant, Participant)          { return c.Doctor, c.Patient }

func (a ScheduledAppointment) createdAt() time.Time { return a.CreatedAt }
func (t TextSession) createdAt() time.Time          { return t.CreatedAt }
func (c CallSession) createdAt() time.Time          { return c.CreatedAt }

func (a ScheduledAppointment) key() int64 { return a.ID }
func (t TextSession) key() int64          { return t.ID }
func (c CallSession) key() int64          { return c.ID }

// Encounter is the unified projection returned by the listing. Fields a
// variant does not have are present and null.
type Encounter struct {
	ID               int64       `json:"id"`
	DoctorID         int64       `json:"doctor_id"`
	PatientID        int64       `json:"patient_id"`
	AppointmentType  string      `json:"appointment_type"`
	Status           string      `json:"status"`
	ScheduledDate    *string     `json:"scheduled_date"`
	ScheduledTime    *string     `json:"scheduled_time"`
	Duration         *int        `json:"duration"`
	Notes            string      `json:"notes"`
	CreatedAt        time.Time   `json:"created_at"`
	SourceType       SourceType  `json:"source_type"`
	SessionID        *int64      `json:"session_id"`
	SessionStatus    *string     `json:"session_status"`
	SessionStartedAt *time.Time  `json:"session_started_at"`
	SessionEndedAt   *time.Time  `json:"session_ended_at"`
	CallDuration     *int        `json:"call_duration"`
	SessionsUsed     *int        `json:"sessions_used"`
	Doctor           Participant `json:"doctor"`
	Patient          Participant `json:"patient"`
}

func (a ScheduledAppointment) Project() Encounter {
	return Encounter{
		ID:               a.ID,
		DoctorID:         a.DoctorID,
		PatientID:        a.PatientID,
		AppointmentType:  deref(a.AppointmentType),
		Status:           deref(a.Status),
		ScheduledDate:    a.ScheduledDate,
		ScheduledTime:    a.ScheduledTime,
		Duration:         a.DurationMinutes,
		Notes:            deref(a.Reason),
		CreatedAt:        a.CreatedAt,
		SourceType:       SourceAppointment,
		SessionStartedAt: a.ActualStartTime,
		SessionEndedAt:   a.ActualEndTime,
		SessionsUsed:     a.SessionsDeducted,
		Doctor:           a.Doctor,
		Patient:          a.Patient,
	}
}

func (t TextSession) Project() Encounter {
	id := t.ID
	status := deref(t.Status)
	return Encounter{
		ID:               t.ID,
		DoctorID:         t.DoctorID,
		PatientID:        t.PatientID,
		AppointmentType:  "text",
		Status:           status,
		Notes:            deref(t.Description),
		CreatedAt:        t.CreatedAt,
		SourceType:       SourceTextSession,
		SessionID:        &id,
		SessionStatus:    &status,
		SessionStartedAt: t.StartedAt,
		SessionEndedAt:   t.EndedAt,
		SessionsUsed:     t.SessionsUsed,
		Doctor:           t.Doctor,
		Patient:          t.Patient,
	}
}

func (c CallSession) Project() Encounter {
	id := c.ID
	status := deref(c.Status)
	return Encounter{
		ID:               c.ID,
		DoctorID:         c.DoctorID,
		PatientID:        c.PatientID,
		AppointmentType:  deref(c.CallType),
		Status:           status,
		Duration:         c.CallDuration,
		Notes:            deref(c.Reason),
		CreatedAt:        c.CreatedAt,
		SourceType:       SourceCallSession,
		SessionID:        &id,
		SessionStatus:    &status,
		SessionStartedAt: c.StartedAt,
		SessionEndedAt:   c.EndedAt,
		CallDuration:     c.CallDuration,
		SessionsUsed:     c.SessionsUsed,
		Doctor:           c.Doctor,
		Patient:          c.Patient,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Filter selects encounters. Empty Status and Type mean "all".
type Filter struct {
	Search string
	Status string
	Type   string
}

const All = "all"

func (f Filter) normalized() Filter {
	f.Search = strings.TrimSpace(f.Search)
	if f.Status == "" {
		f.Status = All
	}
	if f.Type == "" {
		f.Type = All
	}
	return f
}

// sourcePlan is how the type filter applies to one source: whether the
// source takes part at all, and which value its own type column must equal.
type sourcePlan struct {
	Include    bool
	TypeEquals string
}

// planFor encodes the type matrix. Text sessions have no type column: a
// "text" filter admits all of them and any other concrete type excludes
// them. Call sessions only answer to voice, video and call.
func (f Filter) planFor(src SourceType) sourcePlan {
	t := f.normalized().Type
	if t == All {
		return sourcePlan{Include: true}
	}
	switch src {
	case SourceAppointment:
		return sourcePlan{Include: true, TypeEquals: t}
	case SourceTextSession:
		return sourcePlan{Include: t == "text"}
	case SourceCallSession:
		if CallTypes[t] {
			return sourcePlan{Include: true, TypeEquals: t}
		}
		return sourcePlan{}
	default:
		return sourcePlan{}
	}
}

// Admits reports whether v passes f. It is the in-memory statement of the
// predicate the store evaluates in SQL.
func (f Filter) Admits(v Variant) bool {
	f = f.normalized()
	plan := f.planFor(v.Source())
	if !plan.Include {
		return false
	}

	var status, typ *string
	switch x := v.(type) {
	case ScheduledAppointment:
		status, typ = x.Status, x.AppointmentType
	case TextSession:
		status = x.Status
	case CallSession:
		status, typ = x.Status, x.CallType
	}

	if f.Status != All && (status == nil || *status != f.Status) {
		return false
	}
	if plan.TypeEquals != "" && (typ == nil || *typ != plan.TypeEquals) {
		return false
	}
	if f.Search != "" {
		doctor, patient := v.participants()
		if !matchesSearch(f.Search, doctor, patient) {
			return false
		}
	}
	return true
}

func matchesSearch(search string, people ...Participant) bool {
	needle := strings.ToLower(search)
	for _, p := range people {
		for _, field := range []string{p.FirstName, p.LastName, p.Email} {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
	}
	return false
}

// Less orders variants newest first, then by id descending, then by source.
func Less(a, b Variant) bool {
	ta, tb := a.createdAt(), b.createdAt()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	if a.key() != b.key() {
		return a.key() > b.key()
	}
	return a.Source() < b.Source()
}

// StatusChange is the row echoed back by a status update.
type StatusChange struct {
	ID              int64   `json:"id"`
	Status          string  `json:"status"`
	AppointmentType *string `json:"appointment_type,omitempty"`
	CallType        *string `json:"call_type,omitempty"`
}

// Listing is one page of the unified feed.
type Listing struct {
	Items       []Encounter
	TotalCount  int
	TotalPages  int
	CurrentPage int
}
