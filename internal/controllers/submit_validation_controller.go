package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/archops/governor/internal/orchestrator"
	"github.com/archops/governor/pkg/domain"
)

type submitValidationController struct{ svc orchestrator.Service }

func NewSubmitValidationController(svc orchestrator.Service) *submitValidationController {
	return &submitValidationController{svc}
}

type submitReq struct {
	Scope       []string `json:"scope" binding:"required"`
	Priority    string   `json:"priority,omitempty"`
	Description string   `json:"description,omitempty"`
	Input       string   `json:"input,omitempty"`
}

func (h *submitValidationController) Handle(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if len(req.Scope) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope is required"})
		return
	}
	req.Priority = strings.TrimSpace(req.Priority)

	id, err := h.svc.Submit(c.Request.Context(), orchestrator.SubmitRequest{
		Scope:       req.Scope,
		Priority:    req.Priority,
		Description: req.Description,
		Input:       req.Input,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoEligibleWorkers) {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"validationId": id, "status": domain.StatusPending})
}
