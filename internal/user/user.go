package user

import (
	"errors"
	"time"
)

// Roles recognized by the API.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("user not found")
)

// User is an account that can authenticate and own attendance sessions.
// FaceTemplateID references the template enrolled with the external face
// provider; it is set once at first enrollment and reused afterwards.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	Role           string    `json:"role"`
	FaceTemplateID *string   `json:"face_template_id,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasFaceTemplate reports whether the user has an enrolled face template.
func (u *User) HasFaceTemplate() bool {
	return u != nil && u.FaceTemplateID != nil && *u.FaceTemplateID != ""
}
