package handler

import (
	"net/http"

	"github.com/deepak/photofind/internal/faces"
	"github.com/gin-gonic/gin"
)

// FacesHandler handles known-people endpoints.
type FacesHandler struct {
	store *faces.Store
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(store *faces.Store) *FacesHandler {
	return &FacesHandler{store: store}
}

// List handles GET /api/v1/faces.
func (h *FacesHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"people": h.store.ReferenceCounts(),
		"total":  len(h.store.KnownNames()),
	})
}

// Rescan handles POST /api/v1/faces/rescan. It picks up reference photos
// added to the known-faces directory since the last scan.
func (h *FacesHandler) Rescan(c *gin.Context) {
	computed, err := h.store.ScanAndUpdate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Rescan failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"computed": computed,
		"people":   h.store.ReferenceCounts(),
	})
}

// Remove handles DELETE /api/v1/faces/:name.
func (h *FacesHandler) Remove(c *gin.Context) {
	name := c.Param("name")
	if err := h.store.RemovePerson(name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to remove person: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"removed": name,
	})
}
