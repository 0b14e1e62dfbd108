// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package verifier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolve joins a criterion path under the input root, refusing escapes.
func resolve(in Input, rel string) (string, bool) {
	p := filepath.Join(in.Root, filepath.Clean("/"+rel))
	return p, strings.HasPrefix(p, filepath.Clean(in.Root)+string(filepath.Separator)) || p == filepath.Clean(in.Root)
}

// checkFileExists passes when every criterion path exists under the root.
func checkFileExists(rule Rule, in Input) Result {
	if len(rule.Criteria) == 0 {
		return Result{Status: RuleSkipped, Details: "no paths to check"}
	}
	var missing []string
	for _, rel := range rule.Criteria {
		p, ok := resolve(in, rel)
		if !ok {
			return Result{Status: RuleError, Details: "path escapes deliverable root: " + rel}
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) == 0 {
		return Result{Status: RulePassed, Score: 100}
	}
	found := len(rule.Criteria) - len(missing)
	res := Result{
		Score:       float64(found) / float64(len(rule.Criteria)) * 100,
		Details:     fmt.Sprintf("%d of %d expected files missing", len(missing), len(rule.Criteria)),
		Suggestions: []string{"add missing files: " + strings.Join(missing, ", ")},
	}
	if found == 0 {
		res.Status = RuleFailed
	} else {
		res.Status = RulePartial
	}
	return res
}

// checkFileContent expects criteria of the form "path:substring" and scores
// the fraction of substrings present in their files.
func checkFileContent(rule Rule, in Input) Result {
	if len(rule.Criteria) == 0 {
		return Result{Status: RuleSkipped, Details: "no content criteria"}
	}
	var hits int
	var misses []string
	for _, c := range rule.Criteria {
		rel, want, ok := strings.Cut(c, ":")
		if !ok {
			return Result{Status: RuleError, Details: "criterion not of form path:substring: " + c}
		}
		p, okPath := resolve(in, rel)
		if !okPath {
			return Result{Status: RuleError, Details: "path escapes deliverable root: " + rel}
		}
		data, err := os.ReadFile(p)
		if err != nil {
			misses = append(misses, c)
			continue
		}
		if strings.Contains(string(data), want) {
			hits++
		} else {
			misses = append(misses, c)
		}
	}
	score := float64(hits) / float64(len(rule.Criteria)) * 100
	res := Result{Score: score}
	switch {
	case hits == len(rule.Criteria):
		res.Status = RulePassed
	case hits == 0:
		res.Status = RuleFailed
	default:
		res.Status = RulePartial
	}
	if len(misses) > 0 {
		res.Details = fmt.Sprintf("%d of %d content checks failed", len(misses), len(rule.Criteria))
		res.Suggestions = []string{"unmatched criteria: " + strings.Join(misses, "; ")}
	}
	return res
}

// checkCodeQuality applies cheap static checks to the criterion files:
// non-empty, no merge-conflict markers, no lines past 500 chars. Each
// finding costs points.
func checkCodeQuality(rule Rule, in Input) Result {
	if len(rule.Criteria) == 0 {
		return Result{Status: RuleSkipped, Details: "no files to check"}
	}
	score := 100.0
	var findings []string
	for _, rel := range rule.Criteria {
		p, ok := resolve(in, rel)
		if !ok {
			return Result{Status: RuleError, Details: "path escapes deliverable root: " + rel}
		}
		data, err := os.ReadFile(p)
		if err != nil {
			score -= 40
			findings = append(findings, rel+": unreadable")
			continue
		}
		if len(strings.TrimSpace(string(data))) == 0 {
			score -= 40
			findings = append(findings, rel+": empty")
			continue
		}
		if strings.Contains(string(data), "<<<<<<<") || strings.Contains(string(data), ">>>>>>>") {
			score -= 30
			findings = append(findings, rel+": merge conflict markers")
		}
		for i, line := range strings.Split(string(data), "\n") {
			if len(line) > 500 {
				score -= 10
				findings = append(findings, fmt.Sprintf("%s:%d: line longer than 500 chars", rel, i+1))
				break
			}
		}
	}
	if score < 0 {
		score = 0
	}
	res := Result{Score: score, Suggestions: findings}
	switch {
	case score >= 90:
		res.Status = RulePassed
	case score >= 60:
		res.Status = RulePartial
	default:
		res.Status = RuleFailed
	}
	return res
}

// checkDocumentation looks for a documentation file among the criteria
// (default README.md) with some substance.
func checkDocumentation(rule Rule, in Input) Result {
	paths := rule.Criteria
	if len(paths) == 0 {
		paths = []string{"README.md"}
	}
	const minDocLen = 200
	for _, rel := range paths {
		p, ok := resolve(in, rel)
		if !ok {
			return Result{Status: RuleError, Details: "path escapes deliverable root: " + rel}
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		text := strings.TrimSpace(string(data))
		if len(text) >= minDocLen {
			return Result{Status: RulePassed, Score: 100}
		}
		return Result{
			Status:      RulePartial,
			Score:       float64(len(text)) / minDocLen * 100,
			Details:     fmt.Sprintf("%s is only %d chars", rel, len(text)),
			Suggestions: []string{"expand the documentation"},
		}
	}
	return Result{
		Status:      RuleFailed,
		Details:     "no documentation file found",
		Suggestions: []string{"add " + strings.Join(paths, " or ")},
	}
}
