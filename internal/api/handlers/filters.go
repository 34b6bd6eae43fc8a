package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lattice-im/lattice/internal/api/middleware"
	"github.com/lattice-im/lattice/internal/filter"
	"github.com/lattice-im/lattice/internal/types"
)

// FilterHandler stores and serves named sync filters so websocket clients
// can pass a short filter id instead of inline JSON.
type FilterHandler struct {
	store            *filter.Store
	maxTimelineLimit int
}

// NewFilterHandler creates a filter handler backed by store.
func NewFilterHandler(store *filter.Store, maxTimelineLimit int) *FilterHandler {
	return &FilterHandler{store: store, maxTimelineLimit: maxTimelineLimit}
}

// PostFilter handles POST /v1/user/filter
func (h *FilterHandler) PostFilter(c *gin.Context) {
	req, ok := middleware.GetRequester(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 64*1024))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	id, err := h.store.Add(c.Request.Context(), req.User.Localpart(), string(body), h.maxTimelineLimit)
	if err != nil {
		var appErr *types.Error
		if errors.As(err, &appErr) {
			c.JSON(http.StatusBadRequest, gin.H{"errcode": appErr.Code, "error": appErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store filter"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"filter_id": id})
}

// GetFilter handles GET /v1/user/filter/:id
func (h *FilterHandler) GetFilter(c *gin.Context) {
	req, ok := middleware.GetRequester(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	fc, err := h.store.Get(c.Request.Context(), req.User.Localpart(), c.Param("id"))
	if err != nil {
		if errors.Is(err, filter.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"errcode": types.CodeNotFound, "error": "No such filter"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load filter"})
		return
	}

	c.Data(http.StatusOK, "application/json", []byte(fc.JSON()))
}

// GetWhoAmI handles GET /v1/whoami
func GetWhoAmI(c *gin.Context) {
	req, ok := middleware.GetRequester(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":   req.User.String(),
		"device_id": req.DeviceID,
		"is_guest":  req.IsGuest,
	})
}
