package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/service"
)

type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
}

func NewLeaderboardHandler(leaderboardService *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
	}
}

// GetPlayers returns the top players of a region for a position category.
func (h *LeaderboardHandler) GetPlayers(c *gin.Context) {
	region := models.Region(c.Param("region"))
	category := models.PositionCategory(c.DefaultQuery("category", string(models.CategoryMidfield)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	records, err := h.leaderboardService.TopPlayers(c.Request.Context(), region, category, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get leaderboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"region":   region,
		"category": category,
		"players":  records,
	})
}

// GetTeams returns the top-rated teams of a region.
func (h *LeaderboardHandler) GetTeams(c *gin.Context) {
	region := models.Region(c.Param("region"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	teams, err := h.leaderboardService.TopTeams(c.Request.Context(), region, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get leaderboard",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"region": region,
		"teams":  teams,
	})
}
