package handlers

import (
	"net/http"
	"strings"

	"github.com/alimgiray/prpulse/internal/repositories"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userRepo *repositories.UserRepository
}

func NewUserHandler(userRepo *repositories.UserRepository) *UserHandler {
	return &UserHandler{userRepo: userRepo}
}

// ListUsers returns every observed author and reviewer
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userRepo.GetAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}

type updateEmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// UpdateEmail associates an email with a user so usage-metering
// records can be joined to them
func (h *UserHandler) UpdateEmail(c *gin.Context) {
	id := c.Param("id")

	var req updateEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	user, err := h.userRepo.GetByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user: " + err.Error()})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.userRepo.UpdateEmail(id, email); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update email: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "email": email})
}
