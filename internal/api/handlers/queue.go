package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grassehh/pso-matchmaker-sub000/internal/service"
)

type QueueHandler struct {
	matchmakingService *service.MatchmakingService
}

func NewQueueHandler(matchmakingService *service.MatchmakingService) *QueueHandler {
	return &QueueHandler{
		matchmakingService: matchmakingService,
	}
}

type enterQueueRequest struct {
	PartyID    string `json:"partyId"`
	Ranked     bool   `json:"ranked"`
	AutoSearch *bool  `json:"autoSearch"`
}

// partyID resolves the party acting in this request: the token claim wins,
// then the request body, then the user's own ID (solo party).
func partyID(c *gin.Context, fromBody string) string {
	if id, exists := c.Get("partyId"); exists {
		return id.(string)
	}
	if fromBody != "" {
		return fromBody
	}
	userID, _ := c.Get("userId")
	return userID.(string)
}

// EnterQueue puts the caller's party into the matchmaking queue.
func (h *QueueHandler) EnterQueue(c *gin.Context) {
	var req enterQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	autoSearch := true
	if req.AutoSearch != nil {
		autoSearch = *req.AutoSearch
	}

	entry, err := h.matchmakingService.EnterQueue(c.Request.Context(), partyID(c, req.PartyID), req.Ranked, autoSearch)
	if err != nil {
		if errors.Is(err, service.ErrRosterNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Roster not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enter queue",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"entry": entry,
	})
}

// LeaveQueue withdraws the caller's party from the queue.
func (h *QueueHandler) LeaveQueue(c *gin.Context) {
	err := h.matchmakingService.LeaveQueue(c.Request.Context(), partyID(c, c.Query("partyId")))
	if err != nil {
		if errors.Is(err, service.ErrNotQueued) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Party is not queued",
			})
			return
		}
		if errors.Is(err, service.ErrAlreadyNegotiating) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Party is locked by an active challenge",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to leave queue",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Left the queue",
	})
}

// StartMixMatch splits a queued mix party into two sides and starts the match.
func (h *QueueHandler) StartMixMatch(c *gin.Context) {
	var req struct {
		PartyID string `json:"partyId"`
	}
	_ = c.ShouldBindJSON(&req)

	match, err := h.matchmakingService.StartMixMatch(c.Request.Context(), partyID(c, req.PartyID))
	if err != nil {
		if errors.Is(err, service.ErrNotQueued) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Party is not queued",
			})
			return
		}
		if errors.Is(err, service.ErrAlreadyNegotiating) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Party is locked by an active challenge",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to start mix match",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"match": match,
	})
}
