package domain

import (
	"encoding"
	"time"
)

// AgentKind identifies the architecture domain an agent validates.
type AgentKind string

const (
	KindSolution       AgentKind = "solution"
	KindTechnical      AgentKind = "technical"
	KindSecurity       AgentKind = "security"
	KindData           AgentKind = "data"
	KindIntegration    AgentKind = "integration"
	KindInfrastructure AgentKind = "infrastructure"
	KindCosting        AgentKind = "costing"
	KindPortfolio      AgentKind = "portfolio"
	KindGeneric        AgentKind = "generic"
	KindBusiness       AgentKind = "business"
)

// Kinds lists every valid agent kind. Registration and scope parsing
// validate against this closed set.
func Kinds() []AgentKind {
	return []AgentKind{
		KindSolution, KindTechnical, KindSecurity, KindData, KindIntegration,
		KindInfrastructure, KindCosting, KindPortfolio, KindGeneric, KindBusiness,
	}
}

// ValidKind reports whether k belongs to the closed kind set.
func ValidKind(k AgentKind) bool {
	for _, v := range Kinds() {
		if v == k {
			return true
		}
	}
	return false
}

type AgentState string

const (
	StateIdle    AgentState = "IDLE"
	StateActive  AgentState = "ACTIVE"
	StateError   AgentState = "ERROR"
	StateStopped AgentState = "STOPPED"
)

// AgentMetrics accumulates per-agent dispatch bookkeeping.
type AgentMetrics struct {
	TotalDispatches     int       `json:"totalDispatches"`
	Succeeded           int       `json:"succeeded"`
	Failed              int       `json:"failed"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	AvgLatencySeconds   float64   `json:"avgLatencySeconds"`
	LastError           string    `json:"lastError,omitempty"`
	LastActivity        time.Time `json:"lastActivity,omitempty"`
}

// Agent is a snapshot of one validation worker. The registry hands out
// copies; callers never hold a live reference to registry state.
type Agent struct {
	ID          string       `json:"id"`
	Kind        AgentKind    `json:"kind"`
	Name        string       `json:"name"`
	State       AgentState   `json:"state"`
	HealthScore float64      `json:"healthScore"`
	Metrics     AgentMetrics `json:"metrics"`
	CreatedAt   time.Time    `json:"createdAt"`
}

var (
	_ encoding.BinaryMarshaler = AgentKind("")
	_ encoding.TextMarshaler   = AgentKind("")
	_ encoding.BinaryMarshaler = AgentState("")
	_ encoding.TextMarshaler   = AgentState("")
)

func (k AgentKind) MarshalBinary() ([]byte, error) { return []byte(string(k)), nil }
func (k AgentKind) MarshalText() ([]byte, error)   { return []byte(string(k)), nil }

func (s AgentState) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s AgentState) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }
