package attendance

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"absenin/internal/faceclient"
	"absenin/internal/metrics"
	"absenin/internal/user"
)

// Check-ins at or after this local hour are marked late.
const lateHour = 9

// FaceGateway is the slice of the face provider the policy engine needs.
type FaceGateway interface {
	Identify(ctx context.Context, photoPath string) ([]faceclient.Candidate, error)
	Verify(ctx context.Context, templateID, photoPath string) (bool, error)
}

// Ledger is the persistence surface for attendance sessions.
type Ledger interface {
	FindForDay(ctx context.Context, userID string, day time.Time) (*Session, error)
	FindOpenForDay(ctx context.Context, userID string, day time.Time) (*Session, error)
	Insert(ctx context.Context, s Session, day time.Time) (Session, error)
	Close(ctx context.Context, id string, checkOut time.Time, verified bool, note string) (*Session, error)
	ListForUser(ctx context.Context, userID string, from, to *time.Time) ([]Session, error)
	ListAll(ctx context.Context, f Filter) ([]Session, error)
}

// Directory resolves recognized labels to accounts (public flow).
type Directory interface {
	FindByNameFold(ctx context.Context, name string) (*user.User, error)
}

// Service is the attendance policy engine: it decides whether a photo
// submission becomes a check-in or check-out, for whom, and with what status.
type Service struct {
	ledger Ledger
	faces  FaceGateway
	users  Directory
	now    func() time.Time
}

// NewService builds the engine.
func NewService(ledger Ledger, faces FaceGateway, users Directory) *Service {
	return &Service{ledger: ledger, faces: faces, users: users, now: time.Now}
}

// CheckInInput carries the optional check-in attributes.
type CheckInInput struct {
	Latitude  *float64
	Longitude *float64
	Note      string
}

// CheckIn records a new session for an authenticated user. Verification
// succeeds when the top identification candidate carries the user's name;
// a failed or errored verification is recorded, not rejected.
func (s *Service) CheckIn(ctx context.Context, u *user.User, photoPath string, in CheckInInput) (Session, error) {
	now := s.now()
	day := dayOf(now)

	// Fast path; the unique index on the insert below is the real guard.
	existing, err := s.ledger.FindForDay(ctx, u.ID, day)
	if err != nil {
		return Session{}, err
	}
	if existing != nil {
		return Session{}, ErrAlreadyCheckedIn
	}

	verified := false
	candidates, err := s.faces.Identify(ctx, photoPath)
	if err != nil {
		log.Printf("check-in identify for user %s: %v", u.ID, err)
		metrics.RecognitionFailures.Inc()
	} else if best, ok := faceclient.BestCandidate(candidates); ok {
		verified = strings.EqualFold(best.Name, u.Name)
	}

	return s.record(ctx, u.ID, now, day, verified, in)
}

// CheckOut closes today's open session for an authenticated user. With an
// enrolled template a 1:1 verification runs; without one the outcome stays
// unverified. The note is appended to any existing note, never overwritten.
func (s *Service) CheckOut(ctx context.Context, u *user.User, photoPath, note string) (Session, error) {
	now := s.now()
	open, err := s.ledger.FindOpenForDay(ctx, u.ID, dayOf(now))
	if err != nil {
		return Session{}, err
	}
	if open == nil {
		return Session{}, ErrNoOpenCheckIn
	}

	verified := false
	if u.HasFaceTemplate() {
		ok, err := s.faces.Verify(ctx, *u.FaceTemplateID, photoPath)
		if err != nil {
			log.Printf("check-out verify for user %s: %v", u.ID, err)
			metrics.RecognitionFailures.Inc()
		} else {
			verified = ok
		}
	}

	return s.close(ctx, open, now, verified, note)
}

// PublicCheckIn identifies the user from the photo alone and then applies the
// same session rules as CheckIn. A resolved identity counts as verified.
func (s *Service) PublicCheckIn(ctx context.Context, photoPath string, in CheckInInput) (Session, *user.User, error) {
	u, err := s.ResolveIdentity(ctx, photoPath)
	if err != nil {
		return Session{}, nil, err
	}

	now := s.now()
	day := dayOf(now)
	existing, err := s.ledger.FindForDay(ctx, u.ID, day)
	if err != nil {
		return Session{}, nil, err
	}
	if existing != nil {
		return Session{}, nil, ErrAlreadyCheckedIn
	}

	sess, err := s.record(ctx, u.ID, now, day, true, in)
	if err != nil {
		return Session{}, nil, err
	}
	return sess, u, nil
}

// PublicCheckOut identifies the user from the photo alone and closes today's
// open session.
func (s *Service) PublicCheckOut(ctx context.Context, photoPath, note string) (Session, *user.User, error) {
	u, err := s.ResolveIdentity(ctx, photoPath)
	if err != nil {
		return Session{}, nil, err
	}

	now := s.now()
	open, err := s.ledger.FindOpenForDay(ctx, u.ID, dayOf(now))
	if err != nil {
		return Session{}, nil, err
	}
	if open == nil {
		return Session{}, nil, ErrNoOpenCheckIn
	}

	sess, err := s.close(ctx, open, now, true, note)
	if err != nil {
		return Session{}, nil, err
	}
	return sess, u, nil
}

// ResolveIdentity maps a photo to a known account via the top identification
// candidate's label. It returns exactly one user or ErrFaceNotRecognized;
// provider faults resolve to not-recognized so no session is ever created on
// an errored recognition.
func (s *Service) ResolveIdentity(ctx context.Context, photoPath string) (*user.User, error) {
	candidates, err := s.faces.Identify(ctx, photoPath)
	if err != nil {
		log.Printf("public identify: %v", err)
		metrics.RecognitionFailures.Inc()
		return nil, ErrFaceNotRecognized
	}
	best, ok := faceclient.BestCandidate(candidates)
	if !ok {
		return nil, ErrFaceNotRecognized
	}
	u, err := s.users.FindByNameFold(ctx, best.Name)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrFaceNotRecognized
	}
	return u, nil
}

// History returns the caller's sessions within an optional inclusive range.
func (s *Service) History(ctx context.Context, userID string, from, to *time.Time) ([]Session, error) {
	return s.ledger.ListForUser(ctx, userID, from, to)
}

// All returns sessions across users (admin).
func (s *Service) All(ctx context.Context, f Filter) ([]Session, error) {
	return s.ledger.ListAll(ctx, f)
}

func (s *Service) record(ctx context.Context, userID string, now, day time.Time, verified bool, in CheckInInput) (Session, error) {
	sess := Session{
		UserID:              userID,
		CheckInTime:         now,
		Status:              statusFor(now),
		VerificationMethod:  MethodFace,
		VerificationSuccess: verified,
		Latitude:            in.Latitude,
		Longitude:           in.Longitude,
		Note:                in.Note,
	}
	created, err := s.ledger.Insert(ctx, sess, day)
	if err != nil {
		return Session{}, err
	}
	metrics.CheckIns.WithLabelValues(string(created.Status), strconv.FormatBool(verified)).Inc()
	return created, nil
}

func (s *Service) close(ctx context.Context, open *Session, now time.Time, verified bool, note string) (Session, error) {
	closed, err := s.ledger.Close(ctx, open.ID, now, verified, appendNote(open.Note, note))
	if err != nil {
		return Session{}, err
	}
	metrics.CheckOuts.WithLabelValues(strconv.FormatBool(verified)).Inc()
	return *closed, nil
}

// statusFor applies the fixed late policy to a check-in timestamp.
func statusFor(t time.Time) Status {
	if t.Hour() >= lateHour {
		return StatusLate
	}
	return StatusPresent
}

// dayOf truncates to local midnight; the calendar day is the session key.
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// appendNote joins a new note onto an existing one with "; ". An empty new
// note leaves the existing note untouched.
func appendNote(existing, add string) string {
	if add == "" {
		return existing
	}
	if existing == "" {
		return add
	}
	return existing + "; " + add
}
