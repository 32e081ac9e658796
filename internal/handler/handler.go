// Package handler wires the HTTP surface to the domain services.
package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"absenin/internal/attendance"
	"absenin/internal/config"
	"absenin/internal/faceclient"
	"absenin/internal/upload"
	"absenin/internal/user"
)

// Handler carries the dependencies shared by all endpoints.
type Handler struct {
	users      *user.Service
	attendance *attendance.Service
	uploads    *upload.Saver
	cfg        config.App
}

// New builds a Handler.
func New(users *user.Service, att *attendance.Service, uploads *upload.Saver, cfg config.App) *Handler {
	return &Handler{users: users, attendance: att, uploads: uploads, cfg: cfg}
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and answered with a generic 500 so internals never leak.
func writeError(c *gin.Context, err error) {
	switch {
	case upload.IsValidationError(err),
		errors.Is(err, attendance.ErrAlreadyCheckedIn),
		errors.Is(err, attendance.ErrNoOpenCheckIn),
		errors.Is(err, attendance.ErrFaceNotRecognized),
		errors.Is(err, user.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, user.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, faceclient.ErrEnrollmentFailed), errors.Is(err, faceclient.ErrRecognitionFailed):
		log.Printf("face provider error: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "face service unavailable"})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// savePhoto pulls the multipart photo field, validates it and stores it in
// the upload dir. The returned cleanup removes the file; callers defer it so
// every exit path releases the upload.
func (h *Handler) savePhoto(c *gin.Context) (string, func(), error) {
	fh, err := c.FormFile("photo")
	if err != nil {
		return "", nil, upload.ErrMissingPhoto
	}
	return h.uploads.Save(fh)
}

// checkInInput reads the optional check-in form fields.
func checkInInput(c *gin.Context) attendance.CheckInInput {
	in := attendance.CheckInInput{Note: c.PostForm("note")}
	if v := c.PostForm("latitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			in.Latitude = &f
		}
	}
	if v := c.PostForm("longitude"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			in.Longitude = &f
		}
	}
	return in
}

// parseDate accepts RFC3339 timestamps or bare dates for range filters.
func parseDate(s string) (*time.Time, bool) {
	if s == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, true
		}
	}
	return nil, false
}
