package encounter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docavailable/admin-api/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// sourceSQL holds the per-table expressions that line up into the union's
// columns. NULL stands in for a column the table does not have.
type sourceSQL struct {
	table, alias       string
	typeCol            string
	projType           string
	scheduledDate      string
	scheduledTime      string
	duration           string
	notes              string
	startedAt, endedAt string
	sessionsUsed       string
}

var sources = map[SourceType]sourceSQL{
	SourceAppointment: {
		table:         "appointments",
		alias:         "a",
		typeCol:       "a.appointment_type",
		projType:      "a.appointment_type::text",
		scheduledDate: "a.appointment_date::text",
		scheduledTime: "a.appointment_time::text",
		duration:      "a.duration_minutes::integer",
		notes:         "a.reason::text",
		startedAt:     "a.actual_start_time",
		endedAt:       "a.actual_end_time",
		sessionsUsed:  "a.sessions_deducted::integer",
	},
	SourceTextSession: {
		table:         "text_sessions",
		alias:         "ts",
		projType:      "NULL::text",
		scheduledDate: "NULL::text",
		scheduledTime: "NULL::text",
		duration:      "NULL::integer",
		notes:         "ts.description::text",
		startedAt:     "ts.started_at",
		endedAt:       "ts.ended_at",
		sessionsUsed:  "ts.sessions_used::integer",
	},
	SourceCallSession: {
		table:         "call_sessions",
		alias:         "cs",
		typeCol:       "cs.call_type",
		projType:      "cs.call_type::text",
		scheduledDate: "NULL::text",
		scheduledTime: "NULL::text",
		duration:      "cs.call_duration::integer",
		notes:         "cs.reason::text",
		startedAt:     "cs.started_at",
		endedAt:       "cs.ended_at",
		sessionsUsed:  "cs.sessions_used::integer",
	},
}

// unionArgs collects positional parameters shared by every branch of the
// union. Each distinct value is bound once and referenced by number.
type unionArgs struct {
	args []interface{}
	refs map[string]string
}

func (u *unionArgs) ref(name string, v interface{}) string {
	if u.refs == nil {
		u.refs = make(map[string]string)
	}
	if ref, ok := u.refs[name]; ok {
		return ref
	}
	u.args = append(u.args, v)
	ref := fmt.Sprintf("$%d", len(u.args))
	u.refs[name] = ref
	return ref
}

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// whereFor renders the predicate for one branch, or reports that the branch
// is excluded by the type filter.
func whereFor(src SourceType, f Filter, u *unionArgs) (string, bool) {
	plan := f.planFor(src)
	if !plan.Include {
		return "", false
	}
	s := sources[src]

	var conds []string
	if f.Search != "" {
		p := u.ref("search", "%"+escapeLike(f.Search)+"%")
		conds = append(conds, fmt.Sprintf(`(d.first_name ILIKE %[1]s OR d.last_name ILIKE %[1]s OR d.email ILIKE %[1]s
			OR p.first_name ILIKE %[1]s OR p.last_name ILIKE %[1]s OR p.email ILIKE %[1]s)`, p))
	}
	if f.Status != All {
		conds = append(conds, fmt.Sprintf("%s.status = %s", s.alias, u.ref("status", f.Status)))
	}
	if plan.TypeEquals != "" {
		conds = append(conds, fmt.Sprintf("%s = %s", s.typeCol, u.ref("type", plan.TypeEquals)))
	}

	if len(conds) == 0 {
		return "", true
	}
	return "WHERE " + strings.Join(conds, " AND "), true
}

func selectFor(src SourceType, where string) string {
	s := sources[src]
	return fmt.Sprintf(`SELECT %[1]s.id::bigint AS id, %[1]s.doctor_id::bigint AS doctor_id, %[1]s.patient_id::bigint AS patient_id,
			%[3]s AS type, %[1]s.status::text AS status,
			%[4]s AS scheduled_date, %[5]s AS scheduled_time, %[6]s AS duration, %[7]s AS notes,
			%[1]s.created_at AS created_at, %[8]s AS started_at, %[9]s AS ended_at, %[10]s AS sessions_used,
			COALESCE(d.first_name, '') AS doctor_first_name, COALESCE(d.last_name, '') AS doctor_last_name, COALESCE(d.email, '') AS doctor_email,
			COALESCE(p.first_name, '') AS patient_first_name, COALESCE(p.last_name, '') AS patient_last_name, COALESCE(p.email, '') AS patient_email,
			'%[11]s'::text AS source_type
		FROM %[2]s %[1]s
		JOIN users d ON %[1]s.doctor_id = d.id
		JOIN users p ON %[1]s.patient_id = p.id
		%[12]s`,
		s.alias, s.table, s.projType,
		s.scheduledDate, s.scheduledTime, s.duration, s.notes,
		s.startedAt, s.endedAt, s.sessionsUsed,
		string(src), where)
}

// unionSQL builds the UNION ALL of every included branch. It returns an
// empty string when the filter excludes all sources.
func unionSQL(f Filter, u *unionArgs) string {
	f = f.normalized()
	var parts []string
	for _, src := range Sources {
		where, ok := whereFor(src, f, u)
		if !ok {
			continue
		}
		parts = append(parts, selectFor(src, where))
	}
	return strings.Join(parts, "\n\t\tUNION ALL\n\t\t")
}

func (r *repoPG) Count(ctx context.Context, f Filter) (int, error) {
	var u unionArgs
	union := unionSQL(f, &u)
	if union == "" {
		return 0, nil
	}

	var total int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM (`+union+`) AS combined`, u.args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count encounters: %w", err)
	}
	return total, nil
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]Variant, error) {
	var u unionArgs
	union := unionSQL(f, &u)
	if union == "" {
		return nil, nil
	}

	limitRef := u.ref("limit", limit)
	offsetRef := u.ref("offset", offset)
	q := `SELECT * FROM (` + union + `) AS combined
		ORDER BY created_at DESC, id DESC, source_type
		LIMIT ` + limitRef + ` OFFSET ` + offsetRef

	rows, err := r.conn(ctx).Query(ctx, q, u.args...)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	var out []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type unionRow struct {
	id, doctorID, patientID      int64
	typ, status                  *string
	scheduledDate, scheduledTime *string
	duration                     *int
	notes                        *string
	createdAt                    time.Time
	startedAt, endedAt           *time.Time
	sessionsUsed                 *int
	doctor, patient              Participant
	source                       string
}

func scanVariant(rows pgx.Rows) (Variant, error) {
	var r unionRow
	if err := rows.Scan(
		&r.id, &r.doctorID, &r.patientID,
		&r.typ, &r.status,
		&r.scheduledDate, &r.scheduledTime, &r.duration, &r.notes,
		&r.createdAt, &r.startedAt, &r.endedAt, &r.sessionsUsed,
		&r.doctor.FirstName, &r.doctor.LastName, &r.doctor.Email,
		&r.patient.FirstName, &r.patient.LastName, &r.patient.Email,
		&r.source,
	); err != nil {
		return nil, fmt.Errorf("scan encounter: %w", err)
	}

	switch SourceType(r.source) {
	case SourceAppointment:
		return ScheduledAppointment{
			ID:               r.id,
			DoctorID:         r.doctorID,
			PatientID:        r.patientID,
			AppointmentType:  r.typ,
			Status:           r.status,
			ScheduledDate:    r.scheduledDate,
			ScheduledTime:    r.scheduledTime,
			DurationMinutes:  r.duration,
			Reason:           r.notes,
			CreatedAt:        r.createdAt,
			ActualStartTime:  r.startedAt,
			ActualEndTime:    r.endedAt,
			SessionsDeducted: r.sessionsUsed,
			Doctor:           r.doctor,
			Patient:          r.patient,
		}, nil
	case SourceTextSession:
		return TextSession{
			ID:           r.id,
			DoctorID:     r.doctorID,
			PatientID:    r.patientID,
			Status:       r.status,
			Description:  r.notes,
			CreatedAt:    r.createdAt,
			StartedAt:    r.startedAt,
			EndedAt:      r.endedAt,
			SessionsUsed: r.sessionsUsed,
			Doctor:       r.doctor,
			Patient:      r.patient,
		}, nil
	case SourceCallSession:
		return CallSession{
			ID:           r.id,
			DoctorID:     r.doctorID,
			PatientID:    r.patientID,
			CallType:     r.typ,
			Status:       r.status,
			Reason:       r.notes,
			CreatedAt:    r.createdAt,
			StartedAt:    r.startedAt,
			EndedAt:      r.endedAt,
			CallDuration: r.duration,
			SessionsUsed: r.sessionsUsed,
			Doctor:       r.doctor,
			Patient:      r.patient,
		}, nil
	default:
		return nil, fmt.Errorf("scan encounter: unknown source %q", r.source)
	}
}

func (r *repoPG) UpdateStatus(ctx context.Context, src SourceType, id int64, status string) (*StatusChange, error) {
	var (
		q    string
		sc   StatusChange
		dest []interface{}
	)
	switch src {
	case SourceAppointment:
		q = `UPDATE appointments SET status = $1, updated_at = NOW() WHERE id = $2
			RETURNING id, status, appointment_type`
		dest = []interface{}{&sc.ID, &sc.Status, &sc.AppointmentType}
	case SourceTextSession:
		q = `UPDATE text_sessions SET status = $1, updated_at = NOW() WHERE id = $2
			RETURNING id, status`
		dest = []interface{}{&sc.ID, &sc.Status}
	case SourceCallSession:
		q = `UPDATE call_sessions SET status = $1, updated_at = NOW() WHERE id = $2
			RETURNING id, status, call_type`
		dest = []interface{}{&sc.ID, &sc.Status, &sc.CallType}
	default:
		return nil, fmt.Errorf("update status: unknown source %q", src)
	}

	err := r.conn(ctx).QueryRow(ctx, q, status, id).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update %s status: %w", src, err)
	}
	return &sc, nil
}
