package aggregate

import (
	"errors"
	"reflect"
	"testing"

	"github.com/archops/governor/pkg/domain"
)

func outcome(sev domain.Severity, recs ...string) domain.Outcome {
	return domain.Outcome{AgentID: "a", Kind: domain.KindGeneric, Severity: sev, Recommendations: recs}
}

func TestBuildRejectsEmpty(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestBuildAllPassedIsZeroRisk(t *testing.T) {
	s, err := Build([]domain.Outcome{
		outcome(domain.SeverityNone),
		outcome(domain.SeverityNone),
		outcome(domain.SeverityNone),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.RiskScore != 0 {
		t.Fatalf("expected risk 0, got %v", s.RiskScore)
	}
	if s.TotalValidations != 3 || s.Passed != 3 || s.Failed != 0 || s.Warnings != 0 {
		t.Fatalf("unexpected counts: %+v", s)
	}
}

func TestBuildAllFailedIsMaxRisk(t *testing.T) {
	s, err := Build([]domain.Outcome{
		outcome(domain.SeverityError),
		outcome(domain.SeverityError),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if s.RiskScore != 100 {
		t.Fatalf("expected risk 100, got %v", s.RiskScore)
	}
	if s.Failed != 2 {
		t.Fatalf("expected 2 failed, got %d", s.Failed)
	}
}

func TestBuildMixedWeights(t *testing.T) {
	// 1 failed (3) + 1 warning (1) over 3 outcomes: 100*4/9.
	s, err := Build([]domain.Outcome{
		outcome(domain.SeverityError),
		outcome(domain.SeverityWarning),
		outcome(domain.SeverityNone),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := 100 * 4.0 / 9.0
	if s.RiskScore != want {
		t.Fatalf("expected risk %v, got %v", want, s.RiskScore)
	}
	if s.Passed != 1 || s.Failed != 1 || s.Warnings != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
}

func TestBuildDedupesRecommendationsInOrder(t *testing.T) {
	s, err := Build([]domain.Outcome{
		outcome(domain.SeverityWarning, "rotate keys", "enable mfa"),
		outcome(domain.SeverityNone, "enable mfa", "tag resources"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []string{"rotate keys", "enable mfa", "tag resources"}
	if !reflect.DeepEqual(s.Recommendations, want) {
		t.Fatalf("expected %v, got %v", want, s.Recommendations)
	}
}
