// Package workers implements the worker execution capability the
// orchestrator dispatches to. A worker run evaluates the rule catalog for
// its kind against the validation input and, when a language-model backend
// is configured, attaches a free-text assessment.
package workers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/archops/governor/pkg/domain"
)

// Input is the opaque validation payload handed to a worker. Payload is
// typically text extracted from an uploaded architecture document.
type Input struct {
	Description string
	Payload     string
	Priority    string
}

// Invoker is the narrow contract between the orchestrator and worker
// implementations: possibly slow, possibly failing, returns a structured
// outcome.
type Invoker interface {
	Invoke(ctx context.Context, kind domain.AgentKind, in Input) (domain.Outcome, error)
}

// TextGenerator is the narrow LLM contract: prompt in, text or error out.
// Workers are its only consumer; the orchestrator never touches it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type ruleInvoker struct {
	llm    TextGenerator
	logger *slog.Logger
}

// NewRuleInvoker builds the default invoker. llm may be nil; rule results
// then stand alone.
func NewRuleInvoker(llm TextGenerator, logger *slog.Logger) Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ruleInvoker{llm: llm, logger: logger}
}

func (w *ruleInvoker) Invoke(ctx context.Context, kind domain.AgentKind, in Input) (domain.Outcome, error) {
	rules, ok := catalog[kind]
	if !ok {
		return domain.Outcome{}, fmt.Errorf("no rule catalog for kind %q", kind)
	}
	if err := ctx.Err(); err != nil {
		return domain.Outcome{}, err
	}

	out := domain.Outcome{Kind: kind, Severity: domain.SeverityNone}
	passed := 0
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return domain.Outcome{}, err
		}
		check := r.eval(in)
		out.Checks = append(out.Checks, check)
		if check.Severity == domain.SeverityNone {
			passed++
		} else {
			out.Recommendations = append(out.Recommendations, check.Recommendations...)
		}
		out.Severity = maxSeverity(out.Severity, check.Severity)
	}
	out.Detail = fmt.Sprintf("%s validation: %d/%d checks passed", kind, passed, len(rules))

	if w.llm != nil {
		assessment, err := w.llm.Generate(ctx, assessmentPrompt(kind, in))
		if err != nil {
			// The rule results stand on their own; a failed enrichment is
			// logged, not fatal.
			w.logger.Warn("llm assessment unavailable", "kind", kind, "err", err)
		} else if assessment != "" {
			out.Detail += "\n\nassessment: " + assessment
		}
	}
	return out, nil
}

func assessmentPrompt(kind domain.AgentKind, in Input) string {
	return fmt.Sprintf(
		"You are a %s architecture reviewer. In at most three sentences, assess the following proposal.\n\nDescription: %s\n\n%s",
		kind, in.Description, in.Payload,
	)
}

func maxSeverity(a, b domain.Severity) domain.Severity {
	rank := map[domain.Severity]int{domain.SeverityNone: 0, domain.SeverityWarning: 1, domain.SeverityError: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
