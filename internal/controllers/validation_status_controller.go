package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/archops/governor/internal/orchestrator"
)

type validationStatusController struct{ svc orchestrator.Service }

func NewValidationStatusController(svc orchestrator.Service) *validationStatusController {
	return &validationStatusController{svc}
}

func (h *validationStatusController) Handle(c *gin.Context) {
	view, err := h.svc.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
