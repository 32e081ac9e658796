package user

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"absenin/internal/metrics"
)

// Enroller is the slice of the face gateway the user service needs.
type Enroller interface {
	Enroll(ctx context.Context, name, photoPath string) (string, error)
	AddSample(ctx context.Context, templateID, photoPath string) error
}

// Service handles accounts and face enrollment.
type Service struct {
	store Store
	faces Enroller
}

// NewService builds a Service.
func NewService(store Store, faces Enroller) *Service {
	return &Service{store: store, faces: faces}
}

// Register creates an account with a bcrypt-hashed password. Face enrollment
// is a separate step: the provider needs a photo to create a template.
func (s *Service) Register(ctx context.Context, name, email, password, role string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Name: name, Email: email, PasswordHash: string(hash), Role: role}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks credentials and returns the account.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnrollFace registers the photo with the face provider for this user. A user
// with a template gets another sample added to it; otherwise a new template is
// enrolled under the stored display name and its id persisted. The stored name
// is used verbatim so that identification results join back to the account.
func (s *Service) EnrollFace(ctx context.Context, u *User, photoPath string) error {
	if u.HasFaceTemplate() {
		if err := s.faces.AddSample(ctx, *u.FaceTemplateID, photoPath); err != nil {
			metrics.Enrollments.WithLabelValues("error").Inc()
			return err
		}
		metrics.Enrollments.WithLabelValues("ok").Inc()
		return nil
	}
	templateID, err := s.faces.Enroll(ctx, u.Name, photoPath)
	if err != nil {
		metrics.Enrollments.WithLabelValues("error").Inc()
		return err
	}
	metrics.Enrollments.WithLabelValues("ok").Inc()
	if err := s.store.SetFaceTemplate(ctx, u.ID, templateID); err != nil {
		// The remote template exists but the local id was not stored. It can
		// never match a verify call, so it is orphaned rather than dangerous.
		log.Printf("persist template id for user %s failed (remote template %s orphaned): %v", u.ID, templateID, err)
		return err
	}
	u.FaceTemplateID = &templateID
	return nil
}

// RegisterFaceByEmail is the public enrollment flow. An existing account gets
// the photo added to its profile; an unknown email creates an account with a
// random throwaway password and a fresh template.
func (s *Service) RegisterFaceByEmail(ctx context.Context, name, email, photoPath string) (*User, bool, error) {
	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if err := s.EnrollFace(ctx, existing, photoPath); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	templateID, err := s.faces.Enroll(ctx, name, photoPath)
	if err != nil {
		metrics.Enrollments.WithLabelValues("error").Inc()
		return nil, false, err
	}
	metrics.Enrollments.WithLabelValues("ok").Inc()
	hash, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Name:           name,
		Email:          email,
		PasswordHash:   string(hash),
		Role:           RoleUser,
		FaceTemplateID: &templateID,
	}
	if err := s.store.Create(ctx, u); err != nil {
		log.Printf("create user for %s failed (remote template %s orphaned): %v", email, templateID, err)
		return nil, false, err
	}
	return u, true, nil
}

// UpdateProfile changes name and/or email.
func (s *Service) UpdateProfile(ctx context.Context, id string, name, email *string) (*User, error) {
	return s.store.UpdateProfile(ctx, id, name, email)
}

// List returns all accounts (admin use).
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}
