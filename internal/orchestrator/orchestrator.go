// Package orchestrator coordinates governance validations: it selects
// eligible agents from the registry, fans a request out to each of them,
// folds their outcomes into a summary and keeps the task snapshot in the
// repository current for asynchronous polling.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/archops/governor/internal/aggregate"
	"github.com/archops/governor/internal/metrics"
	"github.com/archops/governor/internal/registry"
	"github.com/archops/governor/internal/repository"
	"github.com/archops/governor/internal/workers"
	"github.com/archops/governor/pkg/domain"
)

// SubmitRequest carries one governance validation request.
type SubmitRequest struct {
	Scope       []string
	Priority    string
	Description string
	Input       string
}

// StatusView is the polling projection of a task.
type StatusView struct {
	ID       string            `json:"validationId"`
	Status   domain.TaskStatus `json:"status"`
	Progress int               `json:"progress"`
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Status(ctx context.Context, id string) (StatusView, error)
	Results(ctx context.Context, id string) (*domain.ValidationTask, error)

	// Active reports how many validations are currently running.
	Active() int
}

var priorities = map[string]struct{}{"low": {}, "medium": {}, "high": {}, "critical": {}}

type service struct {
	reg             *registry.Registry
	invoker         workers.Invoker
	repo            repository.TaskRepository
	logger          *slog.Logger
	now             func() time.Time
	dispatchTimeout time.Duration
	tracer          trace.Tracer
	active          atomic.Int64
}

func NewService(reg *registry.Registry, invoker workers.Invoker, repo repository.TaskRepository, logger *slog.Logger, now func() time.Time, dispatchTimeoutSeconds int) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if dispatchTimeoutSeconds <= 0 {
		dispatchTimeoutSeconds = 300
	}
	return &service{
		reg:             reg,
		invoker:         invoker,
		repo:            repo,
		logger:          logger,
		now:             now,
		dispatchTimeout: time.Duration(dispatchTimeoutSeconds) * time.Second,
		tracer:          otel.Tracer("governor/orchestrator"),
	}
}

// Submit validates the request, creates the task and returns its id
// without waiting for any dispatch: callers poll Status afterwards.
// Every requested kind must map to at least one active agent; the whole
// request is rejected otherwise rather than silently narrowing the scope.
func (s *service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	scope, err := parseScope(req.Scope)
	if err != nil {
		return "", err
	}
	priority := strings.ToLower(strings.TrimSpace(req.Priority))
	if priority == "" {
		priority = "medium"
	}
	if _, ok := priorities[priority]; !ok {
		return "", fmt.Errorf("invalid priority %q", req.Priority)
	}

	selected, err := s.reg.SelectActive(scope)
	if err != nil {
		return "", err
	}

	task := &domain.ValidationTask{
		ID:        uuid.NewString(),
		Scope:     scope,
		Priority:  priority,
		Status:    domain.StatusPending,
		Results:   make(map[string]domain.Outcome, len(selected)),
		CreatedAt: s.now(),
	}
	task.Description = strings.TrimSpace(req.Description)
	if err := s.repo.Save(ctx, task); err != nil {
		return "", err
	}

	task.Status = domain.StatusRunning
	if err := s.repo.Save(ctx, task); err != nil {
		return "", err
	}

	metrics.ValidationSubmittedTotal.WithLabelValues(priority).Inc()
	s.logger.Info("validation submitted", "id", task.ID, "scope", scope, "agents", len(selected))

	go s.run(task, selected, workers.Input{
		Description: task.Description,
		Payload:     req.Input,
		Priority:    priority,
	})
	return task.ID, nil
}

func (s *service) Status(ctx context.Context, id string) (StatusView, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{ID: t.ID, Status: t.Status, Progress: t.Progress}, nil
}

func (s *service) Results(ctx context.Context, id string) (*domain.ValidationTask, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.Status.Terminal() {
		return nil, fmt.Errorf("validation %s is %s: %w", id, t.Status, domain.ErrNotReady)
	}
	return t, nil
}

func (s *service) Active() int { return int(s.active.Load()) }

// run owns the task from Running to its terminal state. It is detached
// from the submitting request's context: an HTTP client going away must
// not cancel a validation in flight.
func (s *service) run(task *domain.ValidationTask, selected []domain.Agent, in workers.Input) {
	s.active.Add(1)
	defer s.active.Add(-1)

	ctx, span := s.tracer.Start(context.Background(), "validation.run",
		trace.WithAttributes(
			attribute.String("validation.id", task.ID),
			attribute.Int("validation.agents", len(selected)),
		),
	)
	defer span.End()

	var (
		mu        sync.Mutex
		completed int
		allOK     = true
	)
	var wg sync.WaitGroup
	for _, agent := range selected {
		wg.Add(1)
		go func(agent domain.Agent) {
			defer wg.Done()
			out, ok := s.dispatch(ctx, agent, in)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				allOK = false
			}
			task.Results[agent.ID] = out
			completed++
			task.Progress = 100 * completed / len(selected)
			// The terminal save after the join owns the 100% snapshot: a
			// persisted task must never read RUNNING at full progress.
			if completed < len(selected) {
				if err := s.repo.Save(ctx, task); err != nil {
					s.logger.Warn("snapshot save failed", "id", task.ID, "err", err)
				}
			}
		}(agent)
	}
	wg.Wait()

	// Fold outcomes in selection (scope) order so the aggregated
	// recommendation list is stable across identical requests.
	outcomes := make([]domain.Outcome, 0, len(selected))
	for _, agent := range selected {
		outcomes = append(outcomes, task.Results[agent.ID])
	}
	summary, err := aggregate.Build(outcomes)
	if err != nil {
		// Unreachable while Submit guarantees a non-empty selection.
		s.logger.Error("aggregation failed", "id", task.ID, "err", err)
		allOK = false
	}

	task.Summary = summary
	task.Progress = 100
	task.CompletedAt = s.now()
	if allOK {
		task.Status = domain.StatusCompleted
	} else {
		// A single failed dispatch fails the whole task; failures are
		// never hidden behind a green status.
		task.Status = domain.StatusFailed
	}
	if err := s.repo.Save(ctx, task); err != nil {
		s.logger.Error("final snapshot save failed", "id", task.ID, "err", err)
	}

	metrics.ValidationCompletedTotal.WithLabelValues(string(task.Status)).Inc()
	s.logger.Info("validation finished", "id", task.ID, "status", task.Status,
		"risk", riskOf(summary), "duration", task.CompletedAt.Sub(task.CreatedAt))
}

// dispatch runs one agent with a bounded timeout and returns its outcome
// plus whether the call itself succeeded. A worker that returns findings
// with severity=error still counts as a successful dispatch; only an
// execution failure (error return or timeout) does not.
func (s *service) dispatch(ctx context.Context, agent domain.Agent, in workers.Input) (domain.Outcome, bool) {
	dctx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	dctx, span := s.tracer.Start(dctx, "validation.dispatch",
		trace.WithAttributes(
			attribute.String("agent.id", agent.ID),
			attribute.String("agent.kind", string(agent.Kind)),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := s.invoker.Invoke(dctx, agent.Kind, in)
	latency := time.Since(start)

	out.AgentID = agent.ID
	out.Kind = agent.Kind
	out.LatencySeconds = latency.Seconds()
	out.CompletedAt = s.now()

	if err != nil {
		wErr := &domain.WorkerExecutionError{AgentID: agent.ID, Kind: agent.Kind, Err: err}
		if errors.Is(err, context.DeadlineExceeded) {
			wErr.Err = fmt.Errorf("failed-by-timeout after %s: %w", s.dispatchTimeout, err)
		}
		out.Severity = domain.SeverityError
		out.Error = wErr.Error()
		out.Checks = nil
		out.Recommendations = nil

		s.reg.RecordOutcome(agent.ID, false, latency, wErr.Error())
		metrics.DispatchTotal.WithLabelValues(string(agent.Kind), "error").Inc()
		metrics.DispatchLatencySeconds.WithLabelValues(string(agent.Kind)).Observe(latency.Seconds())
		s.logger.Warn("dispatch failed", "agent", agent.ID, "kind", agent.Kind, "err", err)
		return out, false
	}

	s.reg.RecordOutcome(agent.ID, true, latency, "")
	metrics.DispatchTotal.WithLabelValues(string(agent.Kind), "ok").Inc()
	metrics.DispatchLatencySeconds.WithLabelValues(string(agent.Kind)).Observe(latency.Seconds())
	return out, true
}

// parseScope validates against the closed kind set and dedupes while
// preserving request order.
func parseScope(raw []string) ([]domain.AgentKind, error) {
	if len(raw) == 0 {
		return nil, errors.New("scope must not be empty")
	}
	seen := make(map[domain.AgentKind]struct{}, len(raw))
	scope := make([]domain.AgentKind, 0, len(raw))
	for _, r := range raw {
		k := domain.AgentKind(strings.ToLower(strings.TrimSpace(r)))
		if !domain.ValidKind(k) {
			return nil, fmt.Errorf("unknown scope kind %q", r)
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		scope = append(scope, k)
	}
	return scope, nil
}

func riskOf(s *domain.Summary) float64 {
	if s == nil {
		return 0
	}
	return s.RiskScore
}
