package subscription

import (
	"strings"
	"testing"
)

func TestParseCounterPatch(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    CounterPatch
		wantErr string
	}{
		{"single field", `{"text_sessions_remaining": 4}`, CounterPatch{"text_sessions_remaining": 4}, ""},
		{"all fields", `{"text_sessions_remaining":1,"voice_calls_remaining":2,"video_calls_remaining":3,"appointments_remaining":0}`,
			CounterPatch{"text_sessions_remaining": 1, "voice_calls_remaining": 2, "video_calls_remaining": 3, "appointments_remaining": 0}, ""},
		{"unknown keys ignored", `{"plan_name":"Gold","voice_calls_remaining":9}`, CounterPatch{"voice_calls_remaining": 9}, ""},
		{"integral float", `{"video_calls_remaining": 3.0}`, CounterPatch{"video_calls_remaining": 3}, ""},
		{"exponent", `{"video_calls_remaining": 2e1}`, CounterPatch{"video_calls_remaining": 20}, ""},
		{"empty object", `{}`, nil, msgNoFields},
		{"only unknown keys", `{"status": 1}`, nil, msgNoFields},
		{"negative", `{"text_sessions_remaining": -1}`, nil, msgBadCounter},
		{"fraction", `{"text_sessions_remaining": 1.5}`, nil, msgBadCounter},
		{"string", `{"text_sessions_remaining": "3"}`, nil, msgBadCounter},
		{"null", `{"text_sessions_remaining": null}`, nil, msgBadCounter},
		{"bool", `{"text_sessions_remaining": true}`, nil, msgBadCounter},
		{"one bad rejects all", `{"text_sessions_remaining": 2, "voice_calls_remaining": -2}`, nil, msgBadCounter},
		{"too large", `{"text_sessions_remaining": 99999999999}`, nil, msgBadCounter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCounterPatch([]byte(tt.body))
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("expected %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %d, want %d", k, got[k], v)
				}
			}
		})
	}
}

func TestParseCounterPatch_MalformedJSON(t *testing.T) {
	_, err := ParseCounterPatch([]byte(`{"text_sessions_remaining":`))
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if _, ok := err.(patchError); ok {
		t.Error("decode errors are not validation messages")
	}
}

func TestUpdateSQL_OnlyWhitelistedColumns(t *testing.T) {
	q, args := updateSQL(CounterPatch{"appointments_remaining": 5, "text_sessions_remaining": 1})
	if !strings.Contains(q, "SET text_sessions_remaining = $1, appointments_remaining = $2, updated_at = NOW() WHERE id = $3") {
		t.Errorf("unexpected query %s", q)
	}
	if len(args) != 2 || args[0] != 1 || args[1] != 5 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestWhereFor(t *testing.T) {
	where, args := whereFor(Filter{Search: "50%", Status: StatusInactive})
	if !strings.Contains(where, "u.email ILIKE $1") || !strings.Contains(where, "s.is_active = false") {
		t.Errorf("unexpected where %s", where)
	}
	if len(args) != 1 || args[0] != `%50\%%` {
		t.Errorf("unexpected args %v", args)
	}

	where, args = whereFor(Filter{Status: StatusAll})
	if where != "" || len(args) != 0 {
		t.Errorf("expected no predicate, got %q %v", where, args)
	}
}
