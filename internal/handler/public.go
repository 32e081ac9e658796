package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"absenin/internal/user"
)

// PublicCheckIn records a check-in identified by face alone.
func (h *Handler) PublicCheckIn(c *gin.Context) {
	path, cleanup, err := h.savePhoto(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cleanup()

	sess, u, err := h.attendance.PublicCheckIn(c.Request.Context(), path, checkInInput(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":    "check-in recorded",
		"user":       publicUser(u),
		"attendance": sess,
	})
}

// PublicCheckOut closes today's open session identified by face alone.
func (h *Handler) PublicCheckOut(c *gin.Context) {
	path, cleanup, err := h.savePhoto(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cleanup()

	sess, u, err := h.attendance.PublicCheckOut(c.Request.Context(), path, c.PostForm("note"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "check-out recorded",
		"user":       publicUser(u),
		"attendance": sess,
	})
}

// PublicRegisterFace enrolls a face for a new or existing account by email.
func (h *Handler) PublicRegisterFace(c *gin.Context) {
	name := c.PostForm("name")
	email := c.PostForm("email")
	if name == "" || email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and email are required"})
		return
	}

	path, cleanup, err := h.savePhoto(c)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cleanup()

	u, created, err := h.users.RegisterFaceByEmail(c.Request.Context(), name, email, path)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	message := "face added to existing profile"
	if created {
		status = http.StatusCreated
		message = "face registered"
	}
	c.JSON(status, gin.H{"message": message, "user": publicUser(u)})
}

// publicUser strips the account down to what the faceless endpoints reveal.
func publicUser(u *user.User) gin.H {
	return gin.H{"id": u.ID, "name": u.Name, "email": u.Email}
}
