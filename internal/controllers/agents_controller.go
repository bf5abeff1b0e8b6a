package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/archops/governor/internal/registry"
	"github.com/archops/governor/pkg/domain"
)

type listAgentsController struct{ reg *registry.Registry }

func NewListAgentsController(reg *registry.Registry) *listAgentsController {
	return &listAgentsController{reg}
}

func (h *listAgentsController) Handle(c *gin.Context) {
	agents := h.reg.List()
	if kind := strings.TrimSpace(c.Query("kind")); kind != "" {
		filtered := agents[:0]
		for _, a := range agents {
			if string(a.Kind) == kind {
				filtered = append(filtered, a)
			}
		}
		agents = filtered
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents, "count": len(agents)})
}

type getAgentController struct{ reg *registry.Registry }

func NewGetAgentController(reg *registry.Registry) *getAgentController {
	return &getAgentController{reg}
}

func (h *getAgentController) Handle(c *gin.Context) {
	agent, err := h.reg.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

type registerAgentController struct{ reg *registry.Registry }

func NewRegisterAgentController(reg *registry.Registry) *registerAgentController {
	return &registerAgentController{reg}
}

type registerAgentReq struct {
	ID   string `json:"id,omitempty"`
	Kind string `json:"kind" binding:"required"`
	Name string `json:"name,omitempty"`
}

func (h *registerAgentController) Handle(c *gin.Context) {
	var req registerAgentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	kind := domain.AgentKind(strings.TrimSpace(req.Kind))
	if !domain.ValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown agent kind: " + req.Kind})
		return
	}
	agent, err := h.reg.Register(strings.TrimSpace(req.ID), kind, strings.TrimSpace(req.Name))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, agent)
}
