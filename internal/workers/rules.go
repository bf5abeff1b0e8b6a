package workers

import (
	"strings"

	"github.com/archops/governor/pkg/domain"
)

// rule is a single heuristic check over the validation input.
type rule struct {
	eval func(Input) domain.CheckResult
}

// requireMention passes when the input covers at least one of the terms
// and degrades to sev when it does not.
func requireMention(id, name string, terms []string, sev domain.Severity, missingMsg string, recs []string, frameworks []string) rule {
	return rule{eval: func(in Input) domain.CheckResult {
		c := domain.CheckResult{RuleID: id, RuleName: name, Frameworks: frameworks, Severity: domain.SeverityNone}
		if containsAny(in, terms) {
			c.Message = name + " covered"
			return c
		}
		c.Severity = sev
		c.Message = missingMsg
		c.Recommendations = recs
		return c
	}}
}

// forbidMention fails with sev when the input contains any of the terms.
func forbidMention(id, name string, terms []string, sev domain.Severity, foundMsg string, recs []string, frameworks []string) rule {
	return rule{eval: func(in Input) domain.CheckResult {
		c := domain.CheckResult{RuleID: id, RuleName: name, Frameworks: frameworks, Severity: domain.SeverityNone}
		if !containsAny(in, terms) {
			c.Message = name + " clear"
			return c
		}
		c.Severity = sev
		c.Message = foundMsg
		c.Recommendations = recs
		return c
	}}
}

func containsAny(in Input, terms []string) bool {
	text := strings.ToLower(in.Description + "\n" + in.Payload)
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// catalog maps each agent kind to its checks. The rule ids follow the
// original governance rule naming so findings stay correlatable across
// reports.
var catalog = map[domain.AgentKind][]rule{
	domain.KindSecurity: {
		requireMention("SEC_001", "Encryption coverage",
			[]string{"encryption", "encrypted", "tls", "kms"},
			domain.SeverityWarning,
			"proposal does not address encryption at rest or in transit",
			[]string{"Document encryption at rest and in transit"},
			[]string{"NIST", "ISO_27001"}),
		requireMention("SEC_002", "Access control coverage",
			[]string{"authentication", "authorization", "rbac", "iam", "oauth"},
			domain.SeverityWarning,
			"proposal does not describe authentication or authorization",
			[]string{"Define an authentication and authorization model"},
			[]string{"NIST", "OWASP"}),
		forbidMention("SEC_003", "Credential hygiene",
			[]string{"plaintext password", "hardcoded secret", "hardcoded credential"},
			domain.SeverityError,
			"proposal references credentials stored in the clear",
			[]string{"Move credentials to a managed secret store"},
			[]string{"OWASP"}),
	},
	domain.KindData: {
		requireMention("DATA_001", "Data classification",
			[]string{"data classification", "classified", "sensitivity"},
			domain.SeverityWarning,
			"data assets are not classified by sensitivity",
			[]string{"Classify data assets by sensitivity"},
			[]string{"GDPR"}),
		requireMention("DATA_002", "Retention policy",
			[]string{"retention", "archival", "deletion policy"},
			domain.SeverityWarning,
			"no data retention or deletion policy stated",
			[]string{"Define retention and deletion windows per data class"},
			[]string{"GDPR", "SOX"}),
	},
	domain.KindCosting: {
		requireMention("COST_001", "Budget definition",
			[]string{"budget", "cost estimate", "tco"},
			domain.SeverityWarning,
			"no budget or cost estimate attached to the proposal",
			[]string{"Attach a monthly cost estimate including operational costs"},
			nil),
		forbidMention("COST_002", "Unbounded spend",
			[]string{"unbounded cost", "over budget"},
			domain.SeverityError,
			"proposal acknowledges unbounded or exceeded spend",
			[]string{"Set spend alerts and hard budget caps"},
			nil),
	},
	domain.KindTechnical: {
		requireMention("TECH_001", "Technology standards",
			[]string{"standard", "reference architecture", "approved stack"},
			domain.SeverityWarning,
			"proposal does not reference approved technology standards",
			[]string{"Map components to the approved technology catalog"},
			[]string{"TOGAF"}),
		forbidMention("TECH_002", "Deprecated technology",
			[]string{"end-of-life", "end of life", "deprecated"},
			domain.SeverityError,
			"proposal depends on end-of-life or deprecated technology",
			[]string{"Plan migration off deprecated components"},
			[]string{"TOGAF"}),
	},
	domain.KindSolution: {
		requireMention("SOL_001", "Requirements traceability",
			[]string{"requirement", "acceptance criteria", "user story"},
			domain.SeverityWarning,
			"solution is not traceable to stated requirements",
			[]string{"Trace each component to a business requirement"},
			[]string{"TOGAF", "ISO_42010"}),
		forbidMention("SOL_002", "Single point of failure",
			[]string{"single point of failure", "no failover"},
			domain.SeverityError,
			"solution admits a single point of failure",
			[]string{"Introduce redundancy for critical components"},
			nil),
	},
	domain.KindIntegration: {
		requireMention("INT_001", "API contracts",
			[]string{"api contract", "openapi", "schema", "versioning"},
			domain.SeverityWarning,
			"integrations lack documented contracts or versioning",
			[]string{"Publish versioned API contracts for every integration"},
			nil),
		forbidMention("INT_002", "Point-to-point coupling",
			[]string{"point-to-point", "point to point"},
			domain.SeverityWarning,
			"integration style is point-to-point coupled",
			[]string{"Route integrations through a shared contract layer"},
			nil),
	},
	domain.KindInfrastructure: {
		requireMention("INFRA_001", "Redundancy",
			[]string{"multi-az", "multi az", "redundancy", "replica"},
			domain.SeverityWarning,
			"infrastructure has no stated redundancy",
			[]string{"Deploy across at least two availability zones"},
			[]string{"AWS_WELL_ARCHITECTED"}),
		requireMention("INFRA_002", "Backup and recovery",
			[]string{"backup", "disaster recovery", "rpo", "rto"},
			domain.SeverityWarning,
			"no backup or disaster-recovery plan stated",
			[]string{"Define RPO/RTO targets and a tested recovery plan"},
			[]string{"AWS_WELL_ARCHITECTED"}),
	},
	domain.KindPortfolio: {
		requireMention("PORT_001", "Portfolio overlap",
			[]string{"portfolio", "existing system", "overlap analysis"},
			domain.SeverityWarning,
			"no analysis of overlap with the existing application portfolio",
			[]string{"Check for capability overlap with existing applications"},
			[]string{"TOGAF"}),
	},
	domain.KindGeneric: {
		rule{eval: func(in Input) domain.CheckResult {
			c := domain.CheckResult{RuleID: "GEN_001", RuleName: "Document completeness", Severity: domain.SeverityNone, Message: "Document completeness sufficient"}
			if len(strings.TrimSpace(in.Payload)) < 80 {
				c.Severity = domain.SeverityWarning
				c.Message = "validation input is too thin for a meaningful review"
				c.Recommendations = []string{"Provide the full architecture document as validation input"}
			}
			return c
		}},
	},
	domain.KindBusiness: {
		requireMention("BIZ_001", "Capability alignment",
			[]string{"business capability", "business goal", "objective"},
			domain.SeverityWarning,
			"proposal is not tied to a business capability or goal",
			[]string{"State the business capability this change serves"},
			[]string{"TOGAF"}),
		requireMention("BIZ_002", "Stakeholder signoff",
			[]string{"stakeholder", "sign-off", "signoff", "approved by"},
			domain.SeverityWarning,
			"no stakeholder review or sign-off recorded",
			[]string{"Record stakeholder sign-off before implementation"},
			nil),
	},
}
