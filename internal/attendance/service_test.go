package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"absenin/internal/faceclient"
	"absenin/internal/user"
)

// mockLedger is a mock implementation of Ledger.
type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) FindForDay(ctx context.Context, userID string, day time.Time) (*Session, error) {
	args := m.Called(ctx, userID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *mockLedger) FindOpenForDay(ctx context.Context, userID string, day time.Time) (*Session, error) {
	args := m.Called(ctx, userID, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *mockLedger) Insert(ctx context.Context, s Session, day time.Time) (Session, error) {
	args := m.Called(ctx, s, day)
	return args.Get(0).(Session), args.Error(1)
}

func (m *mockLedger) Close(ctx context.Context, id string, checkOut time.Time, verified bool, note string) (*Session, error) {
	args := m.Called(ctx, id, checkOut, verified, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *mockLedger) ListForUser(ctx context.Context, userID string, from, to *time.Time) ([]Session, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Session), args.Error(1)
}

func (m *mockLedger) ListAll(ctx context.Context, f Filter) ([]Session, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Session), args.Error(1)
}

// mockGateway is a mock implementation of FaceGateway.
type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Identify(ctx context.Context, photoPath string) ([]faceclient.Candidate, error) {
	args := m.Called(ctx, photoPath)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]faceclient.Candidate), args.Error(1)
}

func (m *mockGateway) Verify(ctx context.Context, templateID, photoPath string) (bool, error) {
	args := m.Called(ctx, templateID, photoPath)
	return args.Bool(0), args.Error(1)
}

// mockDirectory is a mock implementation of Directory.
type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) FindByNameFold(ctx context.Context, name string) (*user.User, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func newTestService(now time.Time) (*Service, *mockLedger, *mockGateway, *mockDirectory) {
	ledger := new(mockLedger)
	faces := new(mockGateway)
	users := new(mockDirectory)
	svc := NewService(ledger, faces, users)
	svc.now = func() time.Time { return now }
	return svc, ledger, faces, users
}

func localTime(hour, min int) time.Time {
	return time.Date(2024, 3, 11, hour, min, 0, 0, time.Local)
}

func alice() *user.User {
	return &user.User{ID: "u-alice", Name: "Alice", Email: "alice@example.com"}
}

func TestCheckInPresentAndVerified(t *testing.T) {
	now := localTime(8, 30)
	svc, ledger, faces, _ := newTestService(now)
	day := dayOf(now)

	ledger.On("FindForDay", mock.Anything, "u-alice", day).Return(nil, nil)
	faces.On("Identify", mock.Anything, "photo.jpg").Return([]faceclient.Candidate{
		{Name: "Alice", Probability: 0.9},
	}, nil)
	ledger.On("Insert", mock.Anything, mock.MatchedBy(func(s Session) bool {
		return s.UserID == "u-alice" &&
			s.Status == StatusPresent &&
			s.VerificationSuccess &&
			s.VerificationMethod == MethodFace
	}), day).Return(Session{ID: "s1", UserID: "u-alice", Status: StatusPresent, VerificationSuccess: true}, nil)

	sess, err := svc.CheckIn(context.Background(), alice(), "photo.jpg", CheckInInput{})
	assert.NoError(t, err)
	assert.Equal(t, StatusPresent, sess.Status)
	assert.True(t, sess.VerificationSuccess)
	ledger.AssertExpectations(t)
	faces.AssertExpectations(t)
}

func TestCheckInStatusByHour(t *testing.T) {
	tests := []struct {
		name string
		hour int
		min  int
		want Status
	}{
		{"early morning", 6, 0, StatusPresent},
		{"just before nine", 8, 59, StatusPresent},
		{"nine sharp", 9, 0, StatusLate},
		{"mid morning", 10, 15, StatusLate},
		{"end of day", 23, 59, StatusLate},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := localTime(tc.hour, tc.min)
			svc, ledger, faces, _ := newTestService(now)
			day := dayOf(now)

			ledger.On("FindForDay", mock.Anything, "u-alice", day).Return(nil, nil)
			faces.On("Identify", mock.Anything, mock.Anything).Return([]faceclient.Candidate{}, nil)
			ledger.On("Insert", mock.Anything, mock.MatchedBy(func(s Session) bool {
				return s.Status == tc.want
			}), day).Return(Session{Status: tc.want}, nil)

			sess, err := svc.CheckIn(context.Background(), alice(), "photo.jpg", CheckInInput{})
			assert.NoError(t, err)
			assert.Equal(t, tc.want, sess.Status)
		})
	}
}

func TestCheckInRejectsSecondSameDay(t *testing.T) {
	now := localTime(10, 0)
	svc, ledger, _, _ := newTestService(now)

	ledger.On("FindForDay", mock.Anything, "u-alice", dayOf(now)).Return(&Session{ID: "s1"}, nil)

	_, err := svc.CheckIn(context.Background(), alice(), "photo.jpg", CheckInInput{})
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
	ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckInRecordsFailedVerification(t *testing.T) {
	now := localTime(8, 0)

	t.Run("provider error", func(t *testing.T) {
		svc, ledger, faces, _ := newTestService(now)
		ledger.On("FindForDay", mock.Anything, "u-alice", dayOf(now)).Return(nil, nil)
		faces.On("Identify", mock.Anything, mock.Anything).Return(nil, faceclient.ErrRecognitionFailed)
		ledger.On("Insert", mock.Anything, mock.MatchedBy(func(s Session) bool {
			return !s.VerificationSuccess
		}), dayOf(now)).Return(Session{}, nil)

		_, err := svc.CheckIn(context.Background(), alice(), "photo.jpg", CheckInInput{})
		assert.NoError(t, err)
		ledger.AssertExpectations(t)
	})

	t.Run("name mismatch", func(t *testing.T) {
		svc, ledger, faces, _ := newTestService(now)
		ledger.On("FindForDay", mock.Anything, "u-alice", dayOf(now)).Return(nil, nil)
		faces.On("Identify", mock.Anything, mock.Anything).Return([]faceclient.Candidate{
			{Name: "Bob", Probability: 0.95},
		}, nil)
		ledger.On("Insert", mock.Anything, mock.MatchedBy(func(s Session) bool {
			return !s.VerificationSuccess
		}), dayOf(now)).Return(Session{}, nil)

		_, err := svc.CheckIn(context.Background(), alice(), "photo.jpg", CheckInInput{})
		assert.NoError(t, err)
		ledger.AssertExpectations(t)
	})
}

func TestCheckInMatchesTopCandidateCaseInsensitive(t *testing.T) {
	now := localTime(8, 0)
	svc, ledger, faces, _ := newTestService(now)

	ledger.On("FindForDay", mock.Anything, "u-alice", dayOf(now)).Return(nil, nil)
	faces.On("Identify", mock.Anything, mock.Anything).Return([]faceclient.Candidate{
		{Name: "bob", Probability: 0.4},
		{Name: "ALICE", Probability: 0.8},
	}, nil)
	ledger.On("Insert", mock.Anything, mock.MatchedBy(func(s Session) bool {
		return s.VerificationSuccess
	}), dayOf(now)).Return(Session{VerificationSuccess: true}, nil)

	sess, err := svc.CheckIn(context.Background(), alice(), "photo.jpg", CheckInInput{})
	assert.NoError(t, err)
	assert.True(t, sess.VerificationSuccess)
}

func TestCheckOutAppendsNote(t *testing.T) {
	now := localTime(17, 0)
	svc, ledger, faces, _ := newTestService(now)
	u := alice()
	tpl := "tpl-1"
	u.FaceTemplateID = &tpl

	open := &Session{ID: "s1", UserID: u.ID, Note: "on-site"}
	ledger.On("FindOpenForDay", mock.Anything, u.ID, dayOf(now)).Return(open, nil)
	faces.On("Verify", mock.Anything, "tpl-1", "photo.jpg").Return(true, nil)
	ledger.On("Close", mock.Anything, "s1", now, true, "on-site; left early").
		Return(&Session{ID: "s1", Note: "on-site; left early", CheckOutTime: &now, VerificationSuccess: true}, nil)

	sess, err := svc.CheckOut(context.Background(), u, "photo.jpg", "left early")
	assert.NoError(t, err)
	assert.Equal(t, "on-site; left early", sess.Note)
	ledger.AssertExpectations(t)
}

func TestCheckOutEmptyNoteKeepsExisting(t *testing.T) {
	now := localTime(17, 0)
	svc, ledger, _, _ := newTestService(now)
	u := alice() // no template, verify is skipped

	open := &Session{ID: "s1", UserID: u.ID, Note: "on-site"}
	ledger.On("FindOpenForDay", mock.Anything, u.ID, dayOf(now)).Return(open, nil)
	ledger.On("Close", mock.Anything, "s1", now, false, "on-site").
		Return(&Session{ID: "s1", Note: "on-site", CheckOutTime: &now}, nil)

	sess, err := svc.CheckOut(context.Background(), u, "photo.jpg", "")
	assert.NoError(t, err)
	assert.Equal(t, "on-site", sess.Note)
	assert.False(t, sess.VerificationSuccess)
}

func TestCheckOutWithoutOpenSession(t *testing.T) {
	now := localTime(17, 0)
	svc, ledger, _, _ := newTestService(now)

	ledger.On("FindOpenForDay", mock.Anything, "u-alice", dayOf(now)).Return(nil, nil)

	_, err := svc.CheckOut(context.Background(), alice(), "photo.jpg", "bye")
	assert.ErrorIs(t, err, ErrNoOpenCheckIn)
	ledger.AssertNotCalled(t, "Close", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckOutVerifyErrorIsLenient(t *testing.T) {
	now := localTime(17, 0)
	svc, ledger, faces, _ := newTestService(now)
	u := alice()
	tpl := "tpl-1"
	u.FaceTemplateID = &tpl

	open := &Session{ID: "s1", UserID: u.ID}
	ledger.On("FindOpenForDay", mock.Anything, u.ID, dayOf(now)).Return(open, nil)
	faces.On("Verify", mock.Anything, "tpl-1", mock.Anything).Return(false, faceclient.ErrRecognitionFailed)
	ledger.On("Close", mock.Anything, "s1", now, false, "").
		Return(&Session{ID: "s1", CheckOutTime: &now}, nil)

	_, err := svc.CheckOut(context.Background(), u, "photo.jpg", "")
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestPublicCheckInUnrecognizedFace(t *testing.T) {
	now := localTime(8, 0)
	svc, ledger, faces, users := newTestService(now)

	faces.On("Identify", mock.Anything, mock.Anything).Return([]faceclient.Candidate{}, nil)

	_, _, err := svc.PublicCheckIn(context.Background(), "photo.jpg", CheckInInput{})
	assert.ErrorIs(t, err, ErrFaceNotRecognized)
	ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "FindByNameFold", mock.Anything, mock.Anything)
}

func TestPublicCheckInProviderFault(t *testing.T) {
	now := localTime(8, 0)
	svc, ledger, faces, _ := newTestService(now)

	faces.On("Identify", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	_, _, err := svc.PublicCheckIn(context.Background(), "photo.jpg", CheckInInput{})
	assert.ErrorIs(t, err, ErrFaceNotRecognized)
	ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublicCheckInResolvesTopCandidate(t *testing.T) {
	now := localTime(8, 30)
	svc, ledger, faces, users := newTestService(now)
	day := dayOf(now)

	faces.On("Identify", mock.Anything, mock.Anything).Return([]faceclient.Candidate{
		{Name: "Bob", Probability: 0.5},
		{Name: "alice", Probability: 0.9},
	}, nil)
	users.On("FindByNameFold", mock.Anything, "alice").Return(alice(), nil)
	ledger.On("FindForDay", mock.Anything, "u-alice", day).Return(nil, nil)
	ledger.On("Insert", mock.Anything, mock.MatchedBy(func(s Session) bool {
		return s.UserID == "u-alice" && s.VerificationSuccess && s.Status == StatusPresent
	}), day).Return(Session{UserID: "u-alice", VerificationSuccess: true, Status: StatusPresent}, nil)

	sess, u, err := svc.PublicCheckIn(context.Background(), "photo.jpg", CheckInInput{})
	assert.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.True(t, sess.VerificationSuccess)
}

func TestPublicCheckInUnknownLabel(t *testing.T) {
	now := localTime(8, 0)
	svc, ledger, faces, users := newTestService(now)

	faces.On("Identify", mock.Anything, mock.Anything).Return([]faceclient.Candidate{
		{Name: "Stranger", Probability: 0.99},
	}, nil)
	users.On("FindByNameFold", mock.Anything, "Stranger").Return(nil, nil)

	_, _, err := svc.PublicCheckIn(context.Background(), "photo.jpg", CheckInInput{})
	assert.ErrorIs(t, err, ErrFaceNotRecognized)
	ledger.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublicCheckOut(t *testing.T) {
	now := localTime(17, 30)
	svc, ledger, faces, users := newTestService(now)

	faces.On("Identify", mock.Anything, mock.Anything).Return([]faceclient.Candidate{
		{Name: "Alice", Probability: 0.9},
	}, nil)
	users.On("FindByNameFold", mock.Anything, "Alice").Return(alice(), nil)
	open := &Session{ID: "s1", UserID: "u-alice"}
	ledger.On("FindOpenForDay", mock.Anything, "u-alice", dayOf(now)).Return(open, nil)
	ledger.On("Close", mock.Anything, "s1", now, true, "").
		Return(&Session{ID: "s1", CheckOutTime: &now, VerificationSuccess: true}, nil)

	sess, u, err := svc.PublicCheckOut(context.Background(), "photo.jpg", "")
	assert.NoError(t, err)
	assert.Equal(t, "u-alice", u.ID)
	assert.NotNil(t, sess.CheckOutTime)
}

func TestAppendNote(t *testing.T) {
	tests := []struct {
		existing string
		add      string
		want     string
	}{
		{"", "", ""},
		{"", "B", "B"},
		{"A", "", "A"},
		{"A", "B", "A; B"},
		{"A; B", "C", "A; B; C"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, appendNote(tc.existing, tc.add))
	}
}

func TestDayOfLocalMidnight(t *testing.T) {
	now := localTime(23, 59)
	day := dayOf(now)
	assert.Equal(t, 0, day.Hour())
	assert.Equal(t, now.Year(), day.Year())
	assert.Equal(t, now.Month(), day.Month())
	assert.Equal(t, now.Day(), day.Day())
	assert.Equal(t, now.Location(), day.Location())
}
