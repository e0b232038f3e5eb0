package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/volunteer-portal-go/pkg/models"
)

// VolunteerDashboard returns the calling volunteer's counters
func (h *Handler) VolunteerDashboard(c *gin.Context) {
	stats, err := h.Dashboard.Volunteer(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CoordinatorDashboard returns the calling coordinator's counters
func (h *Handler) CoordinatorDashboard(c *gin.Context) {
	stats, err := h.Dashboard.Coordinator(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetLeaderboard returns every volunteer ranked by points
func (h *Handler) GetLeaderboard(c *gin.Context) {
	entries, err := h.Leaderboard.Rank(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// RecalculatePoints reconciles cached points with approved proofs
func (h *Handler) RecalculatePoints(c *gin.Context) {
	updated, err := h.Leaderboard.RecomputeAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RecalculateResponse{Updated: updated})
}
