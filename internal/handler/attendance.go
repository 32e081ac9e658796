package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"absenin/internal/attendance"
	"absenin/internal/auth"
)

// CheckIn records today's check-in for the authenticated user.
func (h *Handler) CheckIn(c *gin.Context) {
	u := auth.CurrentUser(c)

	path, cleanup, err := h.savePhoto(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cleanup()

	sess, err := h.attendance.CheckIn(c.Request.Context(), u, path, checkInInput(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "check-in recorded", "attendance": sess})
}

// CheckOut closes today's open session for the authenticated user.
func (h *Handler) CheckOut(c *gin.Context) {
	u := auth.CurrentUser(c)

	path, cleanup, err := h.savePhoto(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cleanup()

	sess, err := h.attendance.CheckOut(c.Request.Context(), u, path, c.PostForm("note"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "check-out recorded", "attendance": sess})
}

// History lists the caller's sessions, optionally bounded by
// startDate/endDate.
func (h *Handler) History(c *gin.Context) {
	u := auth.CurrentUser(c)

	from, ok := parseDate(c.Query("startDate"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
		return
	}
	to, ok := parseDate(c.Query("endDate"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
		return
	}

	sessions, err := h.attendance.History(c.Request.Context(), u.ID, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"attendances": sessions})
}

// AllAttendance lists sessions across users with optional filters (admin).
func (h *Handler) AllAttendance(c *gin.Context) {
	from, ok := parseDate(c.Query("startDate"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate"})
		return
	}
	to, ok := parseDate(c.Query("endDate"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate"})
		return
	}

	f := attendance.Filter{UserID: c.Query("userId"), From: from, To: to}
	sessions, err := h.attendance.All(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, gin.H{"attendances": sessions})
}
