// Package registry owns the fleet of validation agents: lifecycle state,
// health scores and dispatch metrics. It is constructed explicitly at
// startup and injected into the orchestrator; there is no package-level
// fleet.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archops/governor/internal/metrics"
	"github.com/archops/governor/pkg/domain"
)

// healthAlpha is the exponential-moving-average weight of the newest
// dispatch outcome when recomputing an agent's health score.
const healthAlpha = 0.2

// errorThreshold is the number of consecutive failed dispatches after
// which an Active agent is moved to Error and dropped from selection.
// Start or Restart brings it back.
const errorThreshold = 3

type entry struct {
	mu    sync.Mutex
	agent domain.Agent
}

type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry
	now    func() time.Time
}

// Seed describes one agent created at registry initialization.
type Seed struct {
	Kind domain.AgentKind `yaml:"kind"`
	Name string           `yaml:"name"`
}

// DefaultSeeds returns one agent per kind, the fleet a fresh deployment
// starts with when the config file does not list agents.
func DefaultSeeds() []Seed {
	kinds := domain.Kinds()
	seeds := make([]Seed, 0, len(kinds))
	for _, k := range kinds {
		seeds = append(seeds, Seed{Kind: k, Name: string(k) + " architecture agent"})
	}
	return seeds
}

// New builds a registry from static seeds. Seeded agents start Active so
// the fleet accepts work immediately after boot.
func New(seeds []Seed, now func() time.Time) (*Registry, error) {
	if now == nil {
		now = time.Now
	}
	r := &Registry{agents: make(map[string]*entry), now: now}
	for _, s := range seeds {
		a, err := r.Register("", s.Kind, s.Name)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", s.Kind, err)
		}
		if err := r.Start(a.ID); err != nil {
			return nil, fmt.Errorf("seed %s: %w", s.Kind, err)
		}
	}
	return r, nil
}

// Register adds a new agent in Idle state. An empty id is generated;
// a caller-supplied id that collides fails with ErrDuplicateID.
func (r *Registry) Register(id string, kind domain.AgentKind, name string) (domain.Agent, error) {
	if !domain.ValidKind(kind) {
		return domain.Agent{}, fmt.Errorf("register: unknown kind %q", kind)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(name) == "" {
		name = string(kind) + " agent"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; ok {
		return domain.Agent{}, fmt.Errorf("register %s: %w", id, domain.ErrDuplicateID)
	}
	a := domain.Agent{
		ID:          id,
		Kind:        kind,
		Name:        name,
		State:       domain.StateIdle,
		HealthScore: 100,
		CreatedAt:   r.now(),
	}
	r.agents[id] = &entry{agent: a}
	return a, nil
}

// Get returns a snapshot of one agent.
func (r *Registry) Get(id string) (domain.Agent, error) {
	e, err := r.lookup(id)
	if err != nil {
		return domain.Agent{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agent, nil
}

// List returns snapshots of every agent, ordered by kind then id so the
// output is stable across calls.
func (r *Registry) List() []domain.Agent {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]domain.Agent, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.agent)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Start transitions an agent to Active. Starting an already active agent
// is an InvalidTransition.
func (r *Registry) Start(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return startLocked(e, r.now())
}

// Stop transitions an agent to Stopped. Stopping an already stopped agent
// is an InvalidTransition.
func (r *Registry) Stop(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return stopLocked(e, r.now())
}

// Restart is stop-then-start under one lock: no intermediate state is
// observable through any other registry operation, and it succeeds from
// every lifecycle state.
func (r *Registry) Restart(id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.agent.State != domain.StateStopped {
		if err := stopLocked(e, r.now()); err != nil {
			return err
		}
	}
	return startLocked(e, r.now())
}

// SelectActive returns one Active agent per requested kind. When any kind
// has no active agent the whole selection fails with ErrNoEligibleWorkers;
// no domain is silently skipped.
func (r *Registry) SelectActive(kinds []domain.AgentKind) ([]domain.Agent, error) {
	all := r.List()
	byKind := make(map[domain.AgentKind][]domain.Agent)
	for _, a := range all {
		if a.State == domain.StateActive {
			byKind[a.Kind] = append(byKind[a.Kind], a)
		}
	}

	var selected []domain.Agent
	var missing []string
	for _, k := range kinds {
		candidates := byKind[k]
		if len(candidates) == 0 {
			missing = append(missing, string(k))
			continue
		}
		// Prefer the healthiest agent when a kind has several.
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.HealthScore > best.HealthScore {
				best = c
			}
		}
		selected = append(selected, best)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("kinds %s: %w", strings.Join(missing, ","), domain.ErrNoEligibleWorkers)
	}
	return selected, nil
}

// RecordOutcome folds one finished dispatch into the agent's metrics and
// recomputes its health score. An agent that fails errorThreshold
// dispatches in a row moves to Error; any other state change is operator
// driven.
func (r *Registry) RecordOutcome(id string, success bool, latency time.Duration, errMsg string) {
	e, err := r.lookup(id)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	m := &e.agent.Metrics
	m.TotalDispatches++
	if success {
		m.Succeeded++
		m.ConsecutiveFailures = 0
	} else {
		m.Failed++
		m.ConsecutiveFailures++
		m.LastError = errMsg
	}
	m.AvgLatencySeconds += (latency.Seconds() - m.AvgLatencySeconds) / float64(m.TotalDispatches)
	m.LastActivity = r.now()

	target := 0.0
	if success {
		target = 100.0
	}
	e.agent.HealthScore = (1-healthAlpha)*e.agent.HealthScore + healthAlpha*target

	if !success && m.ConsecutiveFailures >= errorThreshold && e.agent.State == domain.StateActive {
		transition(e, domain.StateError, r.now())
	}
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

func startLocked(e *entry, now time.Time) error {
	if e.agent.State == domain.StateActive {
		return fmt.Errorf("agent %s already active: %w", e.agent.ID, domain.ErrInvalidTransition)
	}
	// Starting an agent clears its failure streak.
	e.agent.Metrics.ConsecutiveFailures = 0
	transition(e, domain.StateActive, now)
	return nil
}

func stopLocked(e *entry, now time.Time) error {
	if e.agent.State == domain.StateStopped {
		return fmt.Errorf("agent %s already stopped: %w", e.agent.ID, domain.ErrInvalidTransition)
	}
	transition(e, domain.StateStopped, now)
	return nil
}

func transition(e *entry, to domain.AgentState, now time.Time) {
	e.agent.State = to
	e.agent.Metrics.LastActivity = now
	metrics.AgentTransitionsTotal.WithLabelValues(string(e.agent.Kind), string(to)).Inc()
}
