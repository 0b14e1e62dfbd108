// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package verifier checks delegated work against pluggable rules and turns
// the outcome into a verdict and a reward.
package verifier

import (
	"github.com/a2afabric/fabric/fabric"
)

// Built-in rule types. Custom types register their own handlers.
const (
	TypeFileExists    = "file_exists"
	TypeFileContent   = "file_content"
	TypeCodeQuality   = "code_quality"
	TypeDocumentation = "documentation"
)

// RuleStatus is the outcome of evaluating one rule.
type RuleStatus string

const (
	RulePassed  RuleStatus = "PASSED"
	RuleFailed  RuleStatus = "FAILED"
	RulePartial RuleStatus = "PARTIAL"
	RuleSkipped RuleStatus = "SKIPPED"
	RuleError   RuleStatus = "ERROR"
)

// Rule is one verification criterion.
type Rule struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Criteria []string `json:"criteria,omitempty"`
	Weight   float64  `json:"weight"`
	Required bool     `json:"required"`
}

// Result is the evaluation of one rule.
type Result struct {
	RuleID      string     `json:"rule_id"`
	Status      RuleStatus `json:"status"`
	Score       float64    `json:"score"` // 0..100
	Details     string     `json:"details,omitempty"`
	Suggestions []string   `json:"suggestions,omitempty"`
}

// Input is what rules evaluate against: the deliverable root on disk and
// the delegation being verified.
type Input struct {
	TaskID fabric.TaskID
	Root   string // directory holding the submitted deliverables
}

// Quality buckets derived from the weighted score.
type Quality string

const (
	QualityExcellent  Quality = "excellent"
	QualityGood       Quality = "good"
	QualityAcceptable Quality = "acceptable"
	QualityPoor       Quality = "poor"
)

func qualityOf(score float64) Quality {
	switch {
	case score >= 90:
		return QualityExcellent
	case score >= 75:
		return QualityGood
	case score >= 60:
		return QualityAcceptable
	default:
		return QualityPoor
	}
}

// Verdict is the overall outcome for a delegation.
type Verdict struct {
	TaskID  fabric.TaskID `json:"task_id"`
	Status  RuleStatus    `json:"status"` // PASSED, PARTIAL or FAILED
	Score   float64       `json:"score"`
	Quality Quality       `json:"quality"`
	Results []Result      `json:"results"`
}

// Passed reports whether the verdict gates an escrow release.
func (v *Verdict) Passed() bool { return v.Status == RulePassed }
