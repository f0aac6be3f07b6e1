package encounter

import (
	"encoding/json"
	"testing"
	"time"
)

func strp(s string) *string { return &s }
func intp(i int) *int       { return &i }

var (
	drBanda = Participant{FirstName: "Jane", LastName: "Banda", Email: "jane.banda@docavailable.test"}
	ptPhiri = Participant{FirstName: "Peter", LastName: "Phiri", Email: "peter@example.test"}
)

func TestParseSourceType(t *testing.T) {
	for _, src := range Sources {
		got, ok := ParseSourceType(string(src))
		if !ok || got != src {
			t.Errorf("ParseSourceType(%q) = %q, %v", src, got, ok)
		}
	}
	if _, ok := ParseSourceType("appointments"); ok {
		t.Error("table names are not source types")
	}
}

func TestSourceType_Label(t *testing.T) {
	tests := map[SourceType]string{
		SourceAppointment: "Appointment",
		SourceTextSession: "Text session",
		SourceCallSession: "Call session",
	}
	for src, want := range tests {
		if got := src.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", src, got, want)
		}
	}
}

func TestFilter_PlanFor(t *testing.T) {
	tests := []struct {
		typ                     string
		appointment, text, call sourcePlan
	}{
		{"", sourcePlan{Include: true}, sourcePlan{Include: true}, sourcePlan{Include: true}},
		{"all", sourcePlan{Include: true}, sourcePlan{Include: true}, sourcePlan{Include: true}},
		{"text", sourcePlan{Include: true, TypeEquals: "text"}, sourcePlan{Include: true}, sourcePlan{}},
		{"voice", sourcePlan{Include: true, TypeEquals: "voice"}, sourcePlan{}, sourcePlan{Include: true, TypeEquals: "voice"}},
		{"video", sourcePlan{Include: true, TypeEquals: "video"}, sourcePlan{}, sourcePlan{Include: true, TypeEquals: "video"}},
		{"call", sourcePlan{Include: true, TypeEquals: "call"}, sourcePlan{}, sourcePlan{Include: true, TypeEquals: "call"}},
		{"in_person", sourcePlan{Include: true, TypeEquals: "in_person"}, sourcePlan{}, sourcePlan{}},
	}

	for _, tt := range tests {
		t.Run("type="+tt.typ, func(t *testing.T) {
			f := Filter{Type: tt.typ}
			if got := f.planFor(SourceAppointment); got != tt.appointment {
				t.Errorf("appointment plan = %+v, want %+v", got, tt.appointment)
			}
			if got := f.planFor(SourceTextSession); got != tt.text {
				t.Errorf("text session plan = %+v, want %+v", got, tt.text)
			}
			if got := f.planFor(SourceCallSession); got != tt.call {
				t.Errorf("call session plan = %+v, want %+v", got, tt.call)
			}
		})
	}
}

func TestFilter_Admits(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	textAppt := ScheduledAppointment{ID: 1, AppointmentType: strp("text"), Status: strp("confirmed"), CreatedAt: base, Doctor: drBanda, Patient: ptPhiri}
	text := TextSession{ID: 1, Status: strp("active"), CreatedAt: base, Doctor: drBanda, Patient: ptPhiri}
	voice := CallSession{ID: 1, CallType: strp("voice"), Status: strp("active"), CreatedAt: base, Doctor: drBanda, Patient: ptPhiri}
	untypedCall := CallSession{ID: 2, Status: strp("active"), CreatedAt: base, Doctor: drBanda, Patient: ptPhiri}

	tests := []struct {
		name string
		f    Filter
		v    Variant
		want bool
	}{
		{"all admits text session", Filter{}, text, true},
		{"text admits every text session", Filter{Type: "text"}, text, true},
		{"text admits text appointment", Filter{Type: "text"}, textAppt, true},
		{"text never admits a call", Filter{Type: "text"}, voice, false},
		{"voice excludes text sessions", Filter{Type: "voice"}, text, false},
		{"voice admits voice call", Filter{Type: "voice"}, voice, true},
		{"video rejects voice call", Filter{Type: "video"}, voice, false},
		{"call type needs a value", Filter{Type: "voice"}, untypedCall, false},
		{"status mismatch", Filter{Status: "ended"}, voice, false},
		{"status match", Filter{Status: "active"}, voice, true},
		{"search doctor last name", Filter{Search: "banda"}, text, true},
		{"search patient email", Filter{Search: "EXAMPLE.test"}, voice, true},
		{"search miss", Filter{Search: "mwale"}, voice, false},
		{"blank search admits all", Filter{Search: " \t "}, voice, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Admits(tt.v); got != tt.want {
				t.Errorf("Admits = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProject_ScheduledAppointment(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := ScheduledAppointment{
		ID:               5,
		DoctorID:         2,
		PatientID:        9,
		AppointmentType:  strp("video"),
		Status:           strp("confirmed"),
		ScheduledDate:    strp("2026-03-04"),
		ScheduledTime:    strp("10:30:00"),
		DurationMinutes:  intp(30),
		CreatedAt:        created,
		SessionsDeducted: intp(1),
		Doctor:           drBanda,
		Patient:          ptPhiri,
	}
	e := a.Project()
	if e.SourceType != SourceAppointment || e.AppointmentType != "video" || e.Status != "confirmed" {
		t.Errorf("unexpected projection: %+v", e)
	}
	if e.Notes != "" {
		t.Errorf("nil reason should project to empty notes, got %q", e.Notes)
	}
	if e.SessionID != nil || e.SessionStatus != nil || e.CallDuration != nil {
		t.Error("appointment projection must leave session fields null")
	}
	if e.Duration == nil || *e.Duration != 30 || e.SessionsUsed == nil || *e.SessionsUsed != 1 {
		t.Error("duration and sessions_used not carried over")
	}
}

func TestProject_TextSession(t *testing.T) {
	ts := TextSession{ID: 11, Status: strp("active"), Description: strp("rash"), Doctor: drBanda, Patient: ptPhiri}
	e := ts.Project()
	if e.AppointmentType != "text" || e.SourceType != SourceTextSession || e.Notes != "rash" {
		t.Errorf("unexpected projection: %+v", e)
	}
	if e.SessionID == nil || *e.SessionID != 11 || e.SessionStatus == nil || *e.SessionStatus != "active" {
		t.Error("session id/status should echo the row")
	}
	if e.ScheduledDate != nil || e.ScheduledTime != nil || e.Duration != nil || e.CallDuration != nil {
		t.Error("text session projection must leave schedule and call fields null")
	}
}

func TestProject_CallSession(t *testing.T) {
	cs := CallSession{ID: 3, CallType: strp("voice"), Status: nil, Reason: strp("follow-up"), CallDuration: intp(420)}
	e := cs.Project()
	if e.AppointmentType != "voice" || e.Status != "" || e.Notes != "follow-up" {
		t.Errorf("unexpected projection: %+v", e)
	}
	if e.Duration == nil || *e.Duration != 420 || e.CallDuration == nil || *e.CallDuration != 420 {
		t.Error("call duration should fill duration and call_duration")
	}
}

func TestEncounter_JSONFieldPresence(t *testing.T) {
	data, err := json.Marshal(TextSession{ID: 1}.Project())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"id", "doctor_id", "patient_id", "appointment_type", "status", "scheduled_date",
		"scheduled_time", "duration", "notes", "created_at", "source_type", "session_id",
		"session_status", "session_started_at", "session_ended_at", "call_duration",
		"sessions_used", "doctor", "patient",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if m["scheduled_date"] != nil {
		t.Errorf("scheduled_date should be null, got %v", m["scheduled_date"])
	}
}

func TestLess(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := TextSession{ID: 1, CreatedAt: t0.Add(time.Minute)}
	older := CallSession{ID: 9, CreatedAt: t0}
	sameTimeHigherID := ScheduledAppointment{ID: 10, CreatedAt: t0}
	sameTimeSameIDAppt := ScheduledAppointment{ID: 9, CreatedAt: t0}

	if !Less(newer, older) || Less(older, newer) {
		t.Error("newer rows sort first")
	}
	if !Less(sameTimeHigherID, older) {
		t.Error("ties break on id descending")
	}
	if !Less(sameTimeSameIDAppt, older) || Less(older, sameTimeSameIDAppt) {
		t.Error("equal time and id break on source type")
	}
}
