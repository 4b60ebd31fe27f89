package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/service"
)

type MatchHandler struct {
	votingService *service.VotingService
}

func NewMatchHandler(votingService *service.VotingService) *MatchHandler {
	return &MatchHandler{
		votingService: votingService,
	}
}

// GetMatch returns a match with its roster snapshots and vote state.
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id := c.Param("id")

	match, err := h.votingService.GetMatch(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrMatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Match not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get match",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"match": match,
	})
}

type submitVoteRequest struct {
	Side    models.Side    `json:"side" binding:"required"`
	Outcome models.Outcome `json:"outcome" binding:"required"`
}

// SubmitVote records the caller's outcome vote for one side.
func (h *MatchHandler) SubmitVote(c *gin.Context) {
	id := c.Param("id")

	var req submitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userID, _ := c.Get("userId")

	result, err := h.votingService.SubmitVote(c.Request.Context(), id, req.Side, userID.(string), req.Outcome)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMatchNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Match not found",
			})
		case errors.Is(err, service.ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid outcome",
			})
		case errors.Is(err, service.ErrVoterNotInMatch):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "You are not playing on that side",
			})
		case errors.Is(err, service.ErrAlreadyVoted):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Your side already voted",
			})
		case errors.Is(err, service.ErrAlreadyDecided):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Match is already decided",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to submit vote",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": result,
	})
}

type subRequestBody struct {
	Position string `json:"position" binding:"required"`
}

// RequestSub broadcasts a substitute call for a position in a live match.
func (h *MatchHandler) RequestSub(c *gin.Context) {
	id := c.Param("id")

	var req subRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	userID, _ := c.Get("userId")

	if err := h.votingService.RequestSub(c.Request.Context(), id, userID.(string), req.Position); err != nil {
		if errors.Is(err, service.ErrMatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Match not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to request substitute",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Substitute requested",
	})
}
