package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/archops/governor/internal/registry"
	"github.com/archops/governor/internal/repository"
	"github.com/archops/governor/internal/workers"
	"github.com/archops/governor/pkg/domain"
)

// fakeInvoker scripts per-kind behavior without any rule catalog or LLM.
type fakeInvoker struct {
	failKinds  map[domain.AgentKind]error
	warnKinds  map[domain.AgentKind]bool
	blockKinds map[domain.AgentKind]time.Duration
	recs       []string
	recsByKind map[domain.AgentKind][]string
}

func (f *fakeInvoker) Invoke(ctx context.Context, kind domain.AgentKind, in workers.Input) (domain.Outcome, error) {
	if d, ok := f.blockKinds[kind]; ok {
		select {
		case <-ctx.Done():
			return domain.Outcome{}, ctx.Err()
		case <-time.After(d):
		}
	}
	if err, ok := f.failKinds[kind]; ok {
		return domain.Outcome{}, err
	}
	sev := domain.SeverityNone
	if f.warnKinds[kind] {
		sev = domain.SeverityWarning
	}
	recs := f.recs
	if f.recsByKind != nil {
		recs = f.recsByKind[kind]
	}
	return domain.Outcome{Kind: kind, Severity: sev, Recommendations: recs}, nil
}

// recordingRepo captures the status/progress pair of every persisted
// snapshot on top of the real repository.
type recordingRepo struct {
	repository.TaskRepository
	mu    sync.Mutex
	saves []StatusView
}

func (r *recordingRepo) Save(ctx context.Context, task *domain.ValidationTask) error {
	r.mu.Lock()
	r.saves = append(r.saves, StatusView{ID: task.ID, Status: task.Status, Progress: task.Progress})
	r.mu.Unlock()
	return r.TaskRepository.Save(ctx, task)
}

func setupService(t *testing.T, inv workers.Invoker, timeoutSeconds int) (context.Context, *registry.Registry, Service) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg, err := registry.New(registry.DefaultSeeds(), nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	repo := repository.NewTaskRepository(rdb, time.UTC, nil)
	svc := NewService(reg, inv, repo, nil, nil, timeoutSeconds)
	return context.Background(), reg, svc
}

// waitTerminal polls Status until the task leaves Running, asserting that
// progress never decreases along the way.
func waitTerminal(t *testing.T, ctx context.Context, svc Service, id string) StatusView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	last := -1
	for time.Now().Before(deadline) {
		view, err := svc.Status(ctx, id)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if view.Progress < last {
			t.Fatalf("progress went backwards: %d -> %d", last, view.Progress)
		}
		last = view.Progress
		if view.Status.Terminal() {
			if view.Progress != 100 {
				t.Fatalf("terminal task must report progress 100, got %d", view.Progress)
			}
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("validation %s never reached a terminal state", id)
	return StatusView{}
}

func TestSubmitTwoKindsCompletes(t *testing.T) {
	ctx, _, svc := setupService(t, &fakeInvoker{recs: []string{"keep monitoring"}}, 30)

	id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"security", "data"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if id == "" {
		t.Fatal("expected a validation id")
	}

	view := waitTerminal(t, ctx, svc, id)
	if view.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", view.Status)
	}

	task, err := svc.Results(ctx, id)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(task.Results) != 2 {
		t.Fatalf("expected 2 per-agent results, got %d", len(task.Results))
	}
	if task.Summary == nil || task.Summary.TotalValidations != 2 {
		t.Fatalf("expected summary over 2 validations, got %+v", task.Summary)
	}
	if task.Summary.RiskScore != 0 {
		t.Fatalf("expected zero risk on clean pass, got %v", task.Summary.RiskScore)
	}
	if task.CompletedAt.IsZero() {
		t.Fatal("expected completedAt to be stamped")
	}
}

func TestSubmitEmptyScopeRejected(t *testing.T) {
	ctx, _, svc := setupService(t, &fakeInvoker{}, 30)
	if _, err := svc.Submit(ctx, SubmitRequest{}); err == nil {
		t.Fatal("expected error for empty scope")
	}
}

func TestSubmitUnknownKindRejected(t *testing.T) {
	ctx, _, svc := setupService(t, &fakeInvoker{}, 30)
	if _, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"nonexistent_kind"}}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestSubmitStoppedKindIsNoEligibleWorkers(t *testing.T) {
	ctx, reg, svc := setupService(t, &fakeInvoker{}, 30)
	for _, a := range reg.List() {
		if a.Kind == domain.KindCosting {
			if err := reg.Stop(a.ID); err != nil {
				t.Fatalf("stop: %v", err)
			}
		}
	}
	_, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"costing"}})
	if !errors.Is(err, domain.ErrNoEligibleWorkers) {
		t.Fatalf("expected ErrNoEligibleWorkers, got %v", err)
	}
}

func TestPartialFailureMarksTaskFailed(t *testing.T) {
	inv := &fakeInvoker{failKinds: map[domain.AgentKind]error{domain.KindData: errors.New("backend exploded")}}
	ctx, _, svc := setupService(t, inv, 30)

	id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"security", "data"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	view := waitTerminal(t, ctx, svc, id)
	if view.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED on partial failure, got %s", view.Status)
	}

	task, err := svc.Results(ctx, id)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(task.Results) != 2 {
		t.Fatalf("both outcomes must be recorded, got %d", len(task.Results))
	}
	var failed *domain.Outcome
	for _, o := range task.Results {
		if o.Kind == domain.KindData {
			failed = &o
			break
		}
	}
	if failed == nil || failed.Severity != domain.SeverityError || failed.Error == "" {
		t.Fatalf("expected error outcome for failed worker, got %+v", failed)
	}
	if task.Summary.Failed != 1 || task.Summary.Passed != 1 {
		t.Fatalf("unexpected summary: %+v", task.Summary)
	}
}

func TestDispatchTimeoutIsRecordedAsFailure(t *testing.T) {
	inv := &fakeInvoker{blockKinds: map[domain.AgentKind]time.Duration{domain.KindGeneric: 5 * time.Second}}
	ctx, _, svc := setupService(t, inv, 1)

	id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"generic"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	view := waitTerminal(t, ctx, svc, id)
	if view.Status != domain.StatusFailed {
		t.Fatalf("expected FAILED after timeout, got %s", view.Status)
	}
	task, _ := svc.Results(ctx, id)
	for _, o := range task.Results {
		if o.Error == "" {
			t.Fatalf("expected timeout error in outcome, got %+v", o)
		}
	}
}

func TestResultsBeforeTerminalIsNotReady(t *testing.T) {
	inv := &fakeInvoker{blockKinds: map[domain.AgentKind]time.Duration{domain.KindSecurity: 2 * time.Second}}
	ctx, _, svc := setupService(t, inv, 30)

	id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"security"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Results(ctx, id); !errors.Is(err, domain.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	waitTerminal(t, ctx, svc, id)
}

func TestStatusUnknownIdIsNotFound(t *testing.T) {
	ctx, _, svc := setupService(t, &fakeInvoker{}, 30)
	if _, err := svc.Status(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Results(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestScopeIsDeduped(t *testing.T) {
	ctx, _, svc := setupService(t, &fakeInvoker{}, 30)
	id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"security", "SECURITY", " security "}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, ctx, svc, id)
	task, err := svc.Results(ctx, id)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(task.Scope) != 1 || len(task.Results) != 1 {
		t.Fatalf("expected deduped scope, got scope=%v results=%d", task.Scope, len(task.Results))
	}
}

func TestSnapshotsNeverRunningAtFullProgress(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	reg, err := registry.New(registry.DefaultSeeds(), nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	rec := &recordingRepo{TaskRepository: repository.NewTaskRepository(rdb, time.UTC, nil)}
	svc := NewService(reg, &fakeInvoker{}, rec, nil, nil, 30)
	ctx := context.Background()

	id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"security", "data", "costing"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitTerminal(t, ctx, svc, id)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	terminal := false
	for i, s := range rec.saves {
		if s.Progress == 100 && !s.Status.Terminal() {
			t.Fatalf("save #%d persisted %s at progress 100", i+1, s.Status)
		}
		if s.Status.Terminal() {
			terminal = true
			if s.Progress != 100 {
				t.Fatalf("save #%d persisted terminal %s at progress %d", i+1, s.Status, s.Progress)
			}
		}
	}
	if !terminal {
		t.Fatal("no terminal snapshot was persisted")
	}
}

func TestRecommendationsFollowScopeOrder(t *testing.T) {
	inv := &fakeInvoker{recsByKind: map[domain.AgentKind][]string{
		domain.KindSecurity: {"rotate service credentials"},
		domain.KindData:     {"classify datasets"},
		domain.KindCosting:  {"set spend alerts"},
		domain.KindGeneric:  {"record the decision log"},
	}}
	ctx, _, svc := setupService(t, inv, 30)

	want := []string{
		"rotate service credentials",
		"classify datasets",
		"set spend alerts",
		"record the decision log",
	}
	for i := 0; i < 5; i++ {
		id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"security", "data", "costing", "generic"}})
		if err != nil {
			t.Fatalf("submit #%d: %v", i+1, err)
		}
		waitTerminal(t, ctx, svc, id)
		task, err := svc.Results(ctx, id)
		if err != nil {
			t.Fatalf("results #%d: %v", i+1, err)
		}
		if !reflect.DeepEqual(task.Summary.Recommendations, want) {
			t.Fatalf("submit #%d: recommendations out of scope order:\n got %v\nwant %v",
				i+1, task.Summary.Recommendations, want)
		}
	}
}

func TestWarningsFoldIntoRisk(t *testing.T) {
	inv := &fakeInvoker{warnKinds: map[domain.AgentKind]bool{domain.KindData: true}}
	ctx, _, svc := setupService(t, inv, 30)

	id, err := svc.Submit(ctx, SubmitRequest{Scope: []string{"security", "data"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	view := waitTerminal(t, ctx, svc, id)
	if view.Status != domain.StatusCompleted {
		t.Fatalf("warnings alone must not fail the task, got %s", view.Status)
	}
	task, _ := svc.Results(ctx, id)
	want := 100 * 1.0 / 6.0
	if task.Summary.RiskScore != want {
		t.Fatalf("expected risk %v, got %v", want, task.Summary.RiskScore)
	}
}
