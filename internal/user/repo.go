package user

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Store is the persistence surface the services need.
type Store interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByNameFold(ctx context.Context, name string) (*User, error)
	SetFaceTemplate(ctx context.Context, userID, templateID string) error
	UpdateProfile(ctx context.Context, id string, name, email *string) (*User, error)
	List(ctx context.Context) ([]User, error)
}

// Repository persists users in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, email, password_hash, role, face_template_id, is_active, created_at, updated_at`

// Create inserts a new user. Email uniqueness is enforced by the database.
func (r *Repository) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	u.IsActive = true
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, face_template_id, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.FaceTemplateID, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

// FindByID returns a user by id, nil when absent.
func (r *Repository) FindByID(ctx context.Context, id string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail returns a user by email, nil when absent.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByNameFold returns the user whose name matches case-insensitively, nil
// when absent. Duplicate names resolve to the oldest account so the result is
// deterministic.
func (r *Repository) FindByNameFold(ctx context.Context, name string) (*User, error) {
	return r.findOne(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE LOWER(name) = LOWER($1)
		ORDER BY created_at ASC
		LIMIT 1
	`, name)
}

// SetFaceTemplate stores the enrolled template id. The id is written at most
// once; a concurrent enrollment that lost the race gets ErrTemplateSet.
func (r *Repository) SetFaceTemplate(ctx context.Context, userID, templateID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET face_template_id = $2, updated_at = NOW()
		WHERE id = $1 AND face_template_id IS NULL
	`, userID, templateID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTemplateSet
	}
	return nil
}

// ErrTemplateSet is returned when a face template id is already persisted.
var ErrTemplateSet = errors.New("face template already set")

// UpdateProfile updates name and/or email and returns the fresh record.
func (r *Repository) UpdateProfile(ctx context.Context, id string, name, email *string) (*User, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			updated_at = NOW()
		WHERE id = $1
	`, id, name, email)
	if isUniqueViolation(err) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	u, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// List returns all users ordered by creation time.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*User, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	var u User
	if err := scanUser(row, &u); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner, u *User) error {
	return s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.FaceTemplateID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
