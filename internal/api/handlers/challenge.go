package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grassehh/pso-matchmaker-sub000/internal/service"
)

type ChallengeHandler struct {
	challengeService *service.ChallengeService
}

func NewChallengeHandler(challengeService *service.ChallengeService) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
	}
}

type proposeChallengeRequest struct {
	PartyID       string `json:"partyId"`
	TargetEntryID string `json:"targetEntryId" binding:"required"`
}

// Propose creates a challenge against a specific queued party.
func (h *ChallengeHandler) Propose(c *gin.Context) {
	var req proposeChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userID, _ := c.Get("userId")

	challenge, err := h.challengeService.Propose(c.Request.Context(), userID.(string), partyID(c, req.PartyID), req.TargetEntryID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTargetNotQueued):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Target party is not queued",
			})
		case errors.Is(err, service.ErrRosterNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Roster not found",
			})
		case errors.Is(err, service.ErrAlreadyNegotiating):
			c.JSON(http.StatusConflict, gin.H{
				"error": "A party is already negotiating another challenge",
			})
		case errors.Is(err, service.ErrSizeMismatch):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Party sizes do not match",
			})
		case errors.Is(err, service.ErrDuplicatePlayers):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Both parties share a player",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to propose challenge",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"challenge": challenge,
	})
}

type decideChallengeRequest struct {
	Accept bool `json:"accept"`
}

// Decide accepts or refuses a pending challenge.
func (h *ChallengeHandler) Decide(c *gin.Context) {
	id := c.Param("id")

	var req decideChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	match, err := h.challengeService.Decide(c.Request.Context(), id, req.Accept)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrChallengeNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Challenge not found",
			})
		case errors.Is(err, service.ErrTargetNotQueued):
			c.JSON(http.StatusConflict, gin.H{
				"error": "A party withdrew, challenge dissolved",
			})
		case errors.Is(err, service.ErrDuplicatePlayers):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Both parties share a player",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to decide challenge",
			})
		}
		return
	}

	if match == nil {
		c.JSON(http.StatusOK, gin.H{
			"message": "Challenge refused",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"match": match,
	})
}

// Cancel withdraws a pending challenge.
func (h *ChallengeHandler) Cancel(c *gin.Context) {
	id := c.Param("id")

	if err := h.challengeService.Cancel(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrChallengeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Challenge not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel challenge",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Challenge cancelled",
	})
}

type attachPromptRequest struct {
	PromptRef string `json:"promptRef" binding:"required"`
}

// AttachPrompt stores a presentation-layer message handle on the challenge.
func (h *ChallengeHandler) AttachPrompt(c *gin.Context) {
	id := c.Param("id")

	var req attachPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := h.challengeService.AttachPrompt(c.Request.Context(), id, req.PromptRef); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to attach prompt",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Prompt attached",
	})
}
