package record

import (
	"net/http"

	"filmware-sync/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

// NewHandler creates a record handler with the given service
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// GetReportHeads handles GET /projects/:project/reports/:report/heads
func (h *Handler) GetReportHeads(c *gin.Context) {
	project, err := uuid.Parse(c.Param("project"))
	if err != nil {
		errors.HandleError(c, errors.ErrInvalidInput(err))
		return
	}
	report, err := uuid.Parse(c.Param("report"))
	if err != nil {
		errors.HandleError(c, errors.ErrInvalidInput(err))
		return
	}

	heads, err := h.service.ReportHeads(c.Request.Context(), project, report)
	if err != nil {
		errors.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, heads)
}
