package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicematch-service/internal/repositories"
)

// FriendHandler creates post-call friend requests. The rest of the friend
// request lifecycle belongs to the friends surface of the application.
type FriendHandler struct {
	friendRepo repositories.FriendRepository
}

// NewFriendHandler builds a FriendHandler.
func NewFriendHandler(friendRepo repositories.FriendRepository) *FriendHandler {
	return &FriendHandler{friendRepo: friendRepo}
}

// SendFriendRequest creates a pending request to the call partner. A
// duplicate gets its own 409 so the UI can say "already sent" instead of
// reporting a generic failure.
func (h *FriendHandler) SendFriendRequest(c *gin.Context) {
	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	if req.ReceiverID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot befriend yourself"})
		return
	}

	created, err := h.friendRepo.CreateFriendRequest(c.Request.Context(), userID, req.ReceiverID)
	if errors.Is(err, repositories.ErrDuplicateFriendRequest) {
		c.JSON(http.StatusConflict, gin.H{"error": "friend request already sent"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send friend request"})
		return
	}

	c.JSON(http.StatusCreated, created)
}
