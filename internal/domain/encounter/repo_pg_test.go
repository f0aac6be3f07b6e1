package encounter

import (
	"strings"
	"testing"
)

func TestUnionSQL_ExcludesSources(t *testing.T) {
	tests := []struct {
		typ     string
		tables  []string
		missing []string
	}{
		{"all", []string{"FROM appointments", "FROM text_sessions", "FROM call_sessions"}, nil},
		{"text", []string{"FROM appointments", "FROM text_sessions"}, []string{"FROM call_sessions"}},
		{"voice", []string{"FROM appointments", "FROM call_sessions"}, []string{"FROM text_sessions"}},
		{"in_person", []string{"FROM appointments"}, []string{"FROM text_sessions", "FROM call_sessions"}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			var u unionArgs
			q := unionSQL(Filter{Type: tt.typ}, &u)
			for _, want := range tt.tables {
				if !strings.Contains(q, want) {
					t.Errorf("expected %q in query", want)
				}
			}
			for _, bad := range tt.missing {
				if strings.Contains(q, bad) {
					t.Errorf("did not expect %q in query", bad)
				}
			}
		})
	}
}

func TestUnionSQL_BlankSearchIsNoFilter(t *testing.T) {
	var u unionArgs
	q := unionSQL(Filter{Search: "   "}, &u)
	if len(u.args) != 0 || strings.Contains(q, "ILIKE") {
		t.Errorf("blank search should not bind a pattern: args=%v", u.args)
	}

	u = unionArgs{}
	unionSQL(Filter{Search: "  banda "}, &u)
	if len(u.args) != 1 || u.args[0] != "%banda%" {
		t.Errorf("search should be trimmed before binding: %v", u.args)
	}
}

func TestUnionSQL_ParametersAreShared(t *testing.T) {
	var u unionArgs
	q := unionSQL(Filter{Search: "50%_off", Status: "active", Type: "voice"}, &u)

	if len(u.args) != 3 {
		t.Fatalf("expected 3 bound args, got %d: %v", len(u.args), u.args)
	}
	if u.args[0] != `%50\%\_off%` {
		t.Errorf("search pattern not escaped: %v", u.args[0])
	}
	if u.args[1] != "active" || u.args[2] != "voice" {
		t.Errorf("unexpected args %v", u.args)
	}
	if strings.Count(q, "a.status = $2") != 1 || strings.Count(q, "cs.status = $2") != 1 {
		t.Error("status predicate should reuse $2 in each branch")
	}
	if !strings.Contains(q, "a.appointment_type = $3") || !strings.Contains(q, "cs.call_type = $3") {
		t.Error("type predicate should reuse $3")
	}
	if strings.Contains(q, "'active'") || strings.Contains(q, "'voice'") {
		t.Error("filter values must never be inlined")
	}
}

func TestUnionSQL_NoPredicates(t *testing.T) {
	var u unionArgs
	q := unionSQL(Filter{}, &u)
	if len(u.args) != 0 {
		t.Errorf("expected no args, got %v", u.args)
	}
	if strings.Contains(q, "WHERE") {
		t.Error("unfiltered union should have no WHERE clause")
	}
	if strings.Count(q, "UNION ALL") != 2 {
		t.Error("expected three branches")
	}
}

func TestEscapeLike(t *testing.T) {
	tests := map[string]string{
		"banda": "banda",
		"100%":  `100\%`,
		"a_b":   `a\_b`,
		`back\s`: `back\\s`,
	}
	for in, want := range tests {
		if got := escapeLike(in); got != want {
			t.Errorf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}
