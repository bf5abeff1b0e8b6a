package domain

import (
	"encoding"
	"time"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "PENDING"
	StatusRunning   TaskStatus = "RUNNING"
	StatusCompleted TaskStatus = "COMPLETED"
	StatusFailed    TaskStatus = "FAILED"
)

// Terminal reports whether no further transition can leave this status.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Severity string

const (
	SeverityNone    Severity = "none"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// CheckResult is a single rule evaluation produced by a worker.
type CheckResult struct {
	RuleID          string   `json:"ruleId"`
	RuleName        string   `json:"ruleName"`
	Severity        Severity `json:"severity"`
	Message         string   `json:"message"`
	Recommendations []string `json:"recommendations,omitempty"`
	Frameworks      []string `json:"frameworks,omitempty"`
}

// Outcome is one worker's result for one validation task.
type Outcome struct {
	AgentID         string        `json:"agentId"`
	Kind            AgentKind     `json:"kind"`
	Severity        Severity      `json:"severity"`
	Detail          string        `json:"detail,omitempty"`
	Checks          []CheckResult `json:"checks,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
	Error           string        `json:"error,omitempty"`
	LatencySeconds  float64       `json:"latencySeconds"`
	CompletedAt     time.Time     `json:"completedAt"`
}

// Summary aggregates every worker outcome of a completed task.
type Summary struct {
	TotalValidations int      `json:"totalValidations"`
	Passed           int      `json:"passed"`
	Failed           int      `json:"failed"`
	Warnings         int      `json:"warnings"`
	RiskScore        float64  `json:"riskScore"`
	Recommendations  []string `json:"recommendations,omitempty"`
}

// ValidationTask tracks one governance-check request from submission to
// its terminal state. Results is keyed by agent id and only ever written
// for agents selected at submit time.
type ValidationTask struct {
	ID          string             `json:"id"`
	Scope       []AgentKind        `json:"scope"`
	Priority    string             `json:"priority,omitempty"`
	Description string             `json:"description,omitempty"`
	Status      TaskStatus         `json:"status"`
	Progress    int                `json:"progress"`
	Results     map[string]Outcome `json:"results,omitempty"`
	Summary     *Summary           `json:"summary,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	CompletedAt time.Time          `json:"completedAt,omitempty"`
}

var (
	_ encoding.BinaryMarshaler = TaskStatus("")
	_ encoding.TextMarshaler   = TaskStatus("")
	_ encoding.BinaryMarshaler = Severity("")
	_ encoding.TextMarshaler   = Severity("")
)

func (s TaskStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s TaskStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

func (s Severity) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s Severity) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }
