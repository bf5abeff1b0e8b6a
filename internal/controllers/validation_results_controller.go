package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/archops/governor/internal/orchestrator"
)

type validationResultsController struct{ svc orchestrator.Service }

func NewValidationResultsController(svc orchestrator.Service) *validationResultsController {
	return &validationResultsController{svc}
}

func (h *validationResultsController) Handle(c *gin.Context) {
	task, err := h.svc.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
