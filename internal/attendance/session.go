package attendance

import (
	"errors"
	"time"
)

// Status of an attendance session, decided at check-in.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Method records how the session was verified.
type Method string

const (
	MethodFace   Method = "face"
	MethodManual Method = "manual"
)

// Domain conflicts surfaced to handlers as 400s.
var (
	ErrAlreadyCheckedIn  = errors.New("already checked in today")
	ErrNoOpenCheckIn     = errors.New("no open check-in found for today")
	ErrFaceNotRecognized = errors.New("face not recognized")
)

// Session is the attendance record for one user on one calendar day.
// Lifecycle: created by check-in (OPEN), closed exactly once by check-out.
type Session struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	CheckInTime         time.Time  `json:"check_in_time"`
	CheckOutTime        *time.Time `json:"check_out_time,omitempty"`
	Status              Status     `json:"status"`
	VerificationMethod  Method     `json:"verification_method"`
	VerificationSuccess bool       `json:"verification_success"`
	Latitude            *float64   `json:"latitude,omitempty"`
	Longitude           *float64   `json:"longitude,omitempty"`
	Note                string     `json:"note,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`

	// Joined from users for admin listings.
	UserName  string `json:"user_name,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
}

// Open reports whether the session awaits a check-out.
func (s *Session) Open() bool {
	return s != nil && s.CheckOutTime == nil
}
