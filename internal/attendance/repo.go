package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the attendance ledger backed by Postgres. The unique index on
// (user_id, check_in_day) makes Insert the authoritative guard against two
// check-ins on the same day; Close is a conditional update so a second
// check-out matches zero rows.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Filter narrows admin listings.
type Filter struct {
	UserID string
	From   *time.Time
	To     *time.Time
}

const sessionColumns = `id, user_id, check_in_time, check_out_time, status, verification_method, verification_success, latitude, longitude, note, created_at`

// FindForDay returns the user's session for the given calendar day, nil when
// none exists.
func (r *Repository) FindForDay(ctx context.Context, userID string, day time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE user_id = $1 AND check_in_day = $2
	`, userID, day)
	return scanOptional(row)
}

// FindOpenForDay returns the user's session for the day only if it has no
// check-out yet.
func (r *Repository) FindOpenForDay(ctx context.Context, userID string, day time.Time) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM attendance_sessions
		WHERE user_id = $1 AND check_in_day = $2 AND check_out_time IS NULL
	`, userID, day)
	return scanOptional(row)
}

// Insert writes a new session. A concurrent insert for the same (user, day)
// loses against the unique index and surfaces as ErrAlreadyCheckedIn.
func (r *Repository) Insert(ctx context.Context, s Session, day time.Time) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions
			(id, user_id, check_in_time, check_in_day, status, verification_method, verification_success, latitude, longitude, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''))
		RETURNING created_at
	`, s.ID, s.UserID, s.CheckInTime, day, s.Status, s.VerificationMethod, s.VerificationSuccess, s.Latitude, s.Longitude, s.Note)
	if err := row.Scan(&s.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Session{}, ErrAlreadyCheckedIn
		}
		return Session{}, err
	}
	return s, nil
}

// Close sets the check-out time, verification outcome and note on the open
// session. The WHERE clause refuses sessions that are already closed, so the
// check-out transition happens at most once.
func (r *Repository) Close(ctx context.Context, id string, checkOut time.Time, verified bool, note string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_sessions
		SET check_out_time = $2, verification_success = $3, note = NULLIF($4,'')
		WHERE id = $1 AND check_out_time IS NULL
		RETURNING `+sessionColumns+`
	`, id, checkOut, verified, note)
	s, err := scanOptional(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoOpenCheckIn
	}
	return s, nil
}

// ListForUser returns the user's sessions, newest first, optionally bounded by
// an inclusive check-in time range.
func (r *Repository) ListForUser(ctx context.Context, userID string, from, to *time.Time) ([]Session, error) {
	return r.list(ctx, Filter{UserID: userID, From: from, To: to}, false)
}

// ListAll returns sessions across users with user details joined in, for the
// admin view.
func (r *Repository) ListAll(ctx context.Context, f Filter) ([]Session, error) {
	return r.list(ctx, f, true)
}

func (r *Repository) list(ctx context.Context, f Filter, joinUsers bool) ([]Session, error) {
	query := `SELECT s.id, s.user_id, s.check_in_time, s.check_out_time, s.status, s.verification_method, s.verification_success, s.latitude, s.longitude, s.note, s.created_at`
	if joinUsers {
		query += `, u.name, u.email`
	}
	query += ` FROM attendance_sessions s`
	if joinUsers {
		query += ` JOIN users u ON u.id = s.user_id`
	}

	args := []any{}
	clauses := []string{}
	if f.UserID != "" {
		args = append(args, f.UserID)
		clauses = append(clauses, fmt.Sprintf("s.user_id = $%d", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		clauses = append(clauses, fmt.Sprintf("s.check_in_time >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		clauses = append(clauses, fmt.Sprintf("s.check_in_time <= $%d", len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY s.check_in_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Session
	for rows.Next() {
		var s Session
		var note sql.NullString
		dest := []any{&s.ID, &s.UserID, &s.CheckInTime, &s.CheckOutTime, &s.Status, &s.VerificationMethod, &s.VerificationSuccess, &s.Latitude, &s.Longitude, &note, &s.CreatedAt}
		if joinUsers {
			dest = append(dest, &s.UserName, &s.UserEmail)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		s.Note = note.String
		res = append(res, s)
	}
	return res, rows.Err()
}

func scanOptional(row *sql.Row) (*Session, error) {
	var s Session
	var note sql.NullString
	err := row.Scan(&s.ID, &s.UserID, &s.CheckInTime, &s.CheckOutTime, &s.Status, &s.VerificationMethod, &s.VerificationSuccess, &s.Latitude, &s.Longitude, &note, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Note = note.String
	return &s, nil
}
