package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/volunteer-portal-go/pkg/catalog"
	"github.com/arnavshah/volunteer-portal-go/pkg/models"
)

// ListEvents returns all events, newest first
func (h *Handler) ListEvents(c *gin.Context) {
	events, err := h.Catalog.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GetEvent returns one event
func (h *Handler) GetEvent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	event, err := h.Catalog.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// ListCategories returns the fixed category list
func (h *Handler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, catalog.Categories)
}

// ListEventsByCategory filters events by category
func (h *Handler) ListEventsByCategory(c *gin.Context) {
	events, err := h.Catalog.ListByCategory(c.Request.Context(), c.Param("category"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// RegisterForEvent registers the calling volunteer
func (h *Handler) RegisterForEvent(c *gin.Context) {
	eventID, ok := idParam(c, "eventId")
	if !ok {
		return
	}
	reg, err := h.Ledger.Register(c.Request.Context(), currentAccount(c).ID, eventID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Successfully registered for event", "registration": reg})
}

// UnregisterFromEvent withdraws the calling volunteer
func (h *Handler) UnregisterFromEvent(c *gin.Context) {
	eventID, ok := idParam(c, "eventId")
	if !ok {
		return
	}
	if err := h.Ledger.Unregister(c.Request.Context(), currentAccount(c).ID, eventID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully unregistered from event"})
}

// RegisteredEvents lists the calling volunteer's registrations, newest first
func (h *Handler) RegisteredEvents(c *gin.Context) {
	regs, err := h.Ledger.ListForVolunteer(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]models.RegisteredEvent, len(regs))
	for i, r := range regs {
		out[i] = models.RegisteredEvent{
			RegistrationID: r.ID,
			Status:         r.Status,
			RegisteredAt:   r.RegisteredAt,
			Event:          r.Event,
		}
	}
	c.JSON(http.StatusOK, out)
}

// MyEvents lists events owned by the calling coordinator
func (h *Handler) MyEvents(c *gin.Context) {
	events, err := h.Catalog.ListByCoordinator(c.Request.Context(), currentAccount(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// CreateEvent adds an event owned by the calling coordinator
func (h *Handler) CreateEvent(c *gin.Context) {
	var req models.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := h.Catalog.Create(c.Request.Context(), currentAccount(c).ID, req.Input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

// UpdateEvent edits an event owned by the calling coordinator
func (h *Handler) UpdateEvent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	event, err := h.Catalog.Update(c.Request.Context(), currentAccount(c).ID, id, req.Input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// DeleteEvent removes an unreferenced event owned by the calling coordinator
func (h *Handler) DeleteEvent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.Delete(c.Request.Context(), currentAccount(c).ID, id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}
