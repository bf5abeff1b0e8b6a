package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/archops/governor/internal/orchestrator"
	"github.com/archops/governor/internal/registry"
	"github.com/archops/governor/pkg/domain"
)

// HealthChecker is implemented by the LLM providers.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type swarmStatusController struct {
	reg         *registry.Registry
	svc         orchestrator.Service
	llmProvider string
	llm         HealthChecker
}

func NewSwarmStatusController(reg *registry.Registry, svc orchestrator.Service, llmProvider string, llm HealthChecker) *swarmStatusController {
	return &swarmStatusController{reg: reg, svc: svc, llmProvider: llmProvider, llm: llm}
}

func (h *swarmStatusController) Handle(c *gin.Context) {
	agents := h.reg.List()

	byState := map[domain.AgentState]int{}
	var healthSum float64
	for _, a := range agents {
		byState[a.State]++
		healthSum += a.HealthScore
	}
	avgHealth := 0.0
	if len(agents) > 0 {
		avgHealth = healthSum / float64(len(agents))
	}

	out := gin.H{
		"agents":            len(agents),
		"byState":           byState,
		"averageHealth":     avgHealth,
		"activeValidations": h.svc.Active(),
	}

	if h.llm != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		llmStatus := gin.H{"provider": h.llmProvider, "healthy": true}
		if err := h.llm.Health(ctx); err != nil {
			llmStatus["healthy"] = false
			llmStatus["error"] = err.Error()
		}
		out["llm"] = llmStatus
	}

	c.JSON(http.StatusOK, out)
}
