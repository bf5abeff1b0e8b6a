package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/archops/governor/internal/registry"
)

// agentLifecycleController handles start, stop and restart. The transition
// itself lives in the registry; controllers just pick the verb.
type agentLifecycleController struct {
	reg        *registry.Registry
	transition func(*registry.Registry, string) error
}

func NewStartAgentController(reg *registry.Registry) *agentLifecycleController {
	return &agentLifecycleController{reg: reg, transition: (*registry.Registry).Start}
}

func NewStopAgentController(reg *registry.Registry) *agentLifecycleController {
	return &agentLifecycleController{reg: reg, transition: (*registry.Registry).Stop}
}

func NewRestartAgentController(reg *registry.Registry) *agentLifecycleController {
	return &agentLifecycleController{reg: reg, transition: (*registry.Registry).Restart}
}

func (h *agentLifecycleController) Handle(c *gin.Context) {
	id := c.Param("id")
	if err := h.transition(h.reg, id); err != nil {
		respondError(c, err)
		return
	}
	agent, err := h.reg.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}
