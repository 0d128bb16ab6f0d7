package handler

import (
	"net/http"
	"strconv"

	"github.com/deepak/photofind/internal/engine"
	"github.com/gin-gonic/gin"
)

const defaultLimit = 20

// SearchHandler handles search and library endpoints.
type SearchHandler struct {
	engine *engine.Engine
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - eng: search engine instance.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(eng *engine.Engine) *SearchHandler {
	return &SearchHandler{engine: eng}
}

// Search handles GET /api/v1/search.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'q' is required",
		})
		return
	}

	limit := parseLimit(c.Query("limit"))

	results, err := h.engine.Search(c.Request.Context(), query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Search failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

// ListPhotos handles GET /api/v1/photos, a queryless browse of the library.
func (h *SearchHandler) ListPhotos(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))

	results, err := h.engine.GetAllImages(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list photos: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
	})
}

// PhotoFile handles GET /api/v1/photos/file. It serves raw image bytes,
// but only for files that are actually part of the index.
func (h *SearchHandler) PhotoFile(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'path' is required",
		})
		return
	}

	indexed, err := h.engine.IsIndexed(c.Request.Context(), path)
	if err != nil || !indexed {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Photo is not indexed",
		})
		return
	}

	c.File(path)
}

// Stats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Stats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return limit
}
