// Package aggregate folds per-worker outcomes into a task summary. It is
// pure: no clock, no I/O, no dependency on the registry or repository.
package aggregate

import (
	"errors"

	"github.com/archops/governor/pkg/domain"
)

// ErrEmpty is returned when Build is called with no outcomes; a summary
// over zero validations is undefined.
var ErrEmpty = errors.New("aggregate: no outcomes")

// Risk weighting: a failed outcome counts 3, a warning counts 1, and the
// sum is normalized so that all-failed maps to 100. The weights are a
// stable policy knob; tests pin them.
const (
	failWeight = 3
	warnWeight = 1
)

// Build computes the summary for a finished validation task.
func Build(outcomes []domain.Outcome) (*domain.Summary, error) {
	if len(outcomes) == 0 {
		return nil, ErrEmpty
	}

	s := &domain.Summary{TotalValidations: len(outcomes)}
	weighted := 0
	for _, o := range outcomes {
		switch o.Severity {
		case domain.SeverityError:
			s.Failed++
			weighted += failWeight
		case domain.SeverityWarning:
			s.Warnings++
			weighted += warnWeight
		default:
			s.Passed++
		}
	}

	s.RiskScore = clamp(100 * float64(weighted) / float64(failWeight*s.TotalValidations))
	s.Recommendations = dedupe(outcomes)
	return s, nil
}

// dedupe concatenates recommendations by exact string match, first
// occurrence wins, order preserved.
func dedupe(outcomes []domain.Outcome) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, o := range outcomes {
		for _, rec := range o.Recommendations {
			if _, ok := seen[rec]; ok {
				continue
			}
			seen[rec] = struct{}{}
			out = append(out, rec)
		}
	}
	return out
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
