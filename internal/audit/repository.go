package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sources of a command.
const (
	SourceAPI = "api"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// responseLimit truncates stored replies.
	responseLimit = 4096

	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrCommandRequired is returned by Create for an entry without command text.
var ErrCommandRequired = errors.New("audit: command is required")

// Entry is one command audit record.
type Entry struct {
	ID         string    `json:"id"`
	VehicleID  string    `json:"vehicle_id"`
	Command    string    `json:"command"`
	Parameters string    `json:"parameters,omitempty"`
	CommandID  string    `json:"command_id,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Source     string    `json:"source"`
	Outcome    string    `json:"outcome"`
	Success    bool      `json:"success"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which entries to return.
type Filter struct {
	Command string // optional: exact command text
	Outcome string // optional: replied, timed_out, expired, canceled, rejected
	Subject string // optional: token subject
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains one page of entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the command audit operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in the command_log table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new command audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts an entry. ID, Source and CreatedAt are filled in if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if strings.TrimSpace(e.Command) == "" {
		return ErrCommandRequired
	}
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:8]
	}
	if e.Source == "" {
		e.Source = SourceAPI
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if len(e.Response) > responseLimit {
		e.Response = e.Response[:responseLimit]
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_log (id, vehicle_id, command, parameters, command_id, subject, source,
		                          outcome, success, response, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.VehicleID, e.Command,
		nullableString(e.Parameters), nullableString(e.CommandID), nullableString(e.Subject),
		e.Source, e.Outcome, e.Success,
		nullableString(e.Response), nullableString(e.Error),
		e.DurationMS, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	filter.Limit = min(filter.Limit, maxLimit)
	filter.Offset = max(filter.Offset, 0)

	var conditions []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{"command", filter.Command},
		{"outcome", filter.Outcome},
		{"subject", filter.Subject},
	} {
		if c.value != "" {
			conditions = append(conditions, c.column+" = ?")
			args = append(args, c.value)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	//nolint:gosec // WHERE built from fixed column names and ? placeholders
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM command_log "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command log: %w", err)
	}

	//nolint:gosec // WHERE built from fixed column names and ? placeholders
	query := `SELECT id, vehicle_id, command, parameters, command_id, subject, source,
	                 outcome, success, response, error, duration_ms, created_at
	          FROM command_log ` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command log: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var params, commandID, subject, response, errText sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.VehicleID, &e.Command, &params, &commandID, &subject, &e.Source,
			&e.Outcome, &e.Success, &response, &errText, &e.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		e.Parameters = params.String
		e.CommandID = commandID.String
		e.Subject = subject.String
		e.Response = response.String
		e.Error = errText.String

		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command log: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
