// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package verifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2afabric/fabric/errs"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestFileExists(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "out/report.txt", "done")

	in := Input{TaskID: "task-1", Root: root}

	res := checkFileExists(Rule{Criteria: []string{"out/report.txt"}}, in)
	assert.Equal(t, RulePassed, res.Status)
	assert.Equal(t, 100.0, res.Score)

	res = checkFileExists(Rule{Criteria: []string{"out/report.txt", "missing.txt"}}, in)
	assert.Equal(t, RulePartial, res.Status)
	assert.Equal(t, 50.0, res.Score)

	res = checkFileExists(Rule{Criteria: []string{"missing.txt"}}, in)
	assert.Equal(t, RuleFailed, res.Status)

	res = checkFileExists(Rule{}, in)
	assert.Equal(t, RuleSkipped, res.Status)

	// traversal outside the root is an error, not a lookup
	res = checkFileExists(Rule{Criteria: []string{"../../etc/passwd"}}, in)
	assert.NotEqual(t, RulePassed, res.Status)
}

func TestFileContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\nfunc main() {}\n")

	in := Input{Root: root}

	res := checkFileContent(Rule{Criteria: []string{"main.go:package main", "main.go:func main"}}, in)
	assert.Equal(t, RulePassed, res.Status)

	res = checkFileContent(Rule{Criteria: []string{"main.go:package main", "main.go:nope"}}, in)
	assert.Equal(t, RulePartial, res.Status)
	assert.Equal(t, 50.0, res.Score)

	res = checkFileContent(Rule{Criteria: []string{"main.go-no-colon"}}, in)
	assert.Equal(t, RuleError, res.Status)
}

func TestCodeQuality(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "clean.go", "package x\n\nfunc F() {}\n")
	writeFile(t, root, "conflicted.go", "package x\n<<<<<<< HEAD\n")
	writeFile(t, root, "empty.go", "   \n")

	in := Input{Root: root}

	res := checkCodeQuality(Rule{Criteria: []string{"clean.go"}}, in)
	assert.Equal(t, RulePassed, res.Status)

	res = checkCodeQuality(Rule{Criteria: []string{"conflicted.go"}}, in)
	assert.Equal(t, RulePartial, res.Status)
	assert.Equal(t, 70.0, res.Score)

	res = checkCodeQuality(Rule{Criteria: []string{"empty.go", "missing.go"}}, in)
	assert.Equal(t, RuleFailed, res.Status)
}

func TestDocumentation(t *testing.T) {
	root := t.TempDir()
	in := Input{Root: root}

	res := checkDocumentation(Rule{}, in)
	assert.Equal(t, RuleFailed, res.Status)

	writeFile(t, root, "README.md", "short")
	res = checkDocumentation(Rule{}, in)
	assert.Equal(t, RulePartial, res.Status)

	long := make([]byte, 0, 300)
	for i := 0; i < 30; i++ {
		long = append(long, []byte("documentation ")...)
	}
	writeFile(t, root, "README.md", string(long))
	res = checkDocumentation(Rule{}, in)
	assert.Equal(t, RulePassed, res.Status)
}

func TestEvaluateVerdict(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "report.txt", "all done")
	e := NewEngine()
	in := Input{TaskID: "task-1", Root: root}

	verdict, err := e.Evaluate(in, []Rule{
		{ID: "r1", Type: TypeFileExists, Criteria: []string{"report.txt"}, Weight: 1, Required: true},
		{ID: "r2", Type: TypeFileContent, Criteria: []string{"report.txt:done"}, Weight: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, RulePassed, verdict.Status)
	assert.Equal(t, 100.0, verdict.Score)
	assert.Equal(t, QualityExcellent, verdict.Quality)
	assert.True(t, verdict.Passed())
	assert.Len(t, verdict.Results, 2)
}

func TestEvaluateRequiredFailureOverrides(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "report.txt", "all done")
	e := NewEngine()
	in := Input{Root: root}

	// high weighted score, but a required rule failed
	verdict, err := e.Evaluate(in, []Rule{
		{ID: "r1", Type: TypeFileExists, Criteria: []string{"report.txt"}, Weight: 1},
		{ID: "r2", Type: TypeFileExists, Criteria: []string{"missing.txt"}, Weight: 0.01, Required: true},
	})
	require.NoError(t, err)
	assert.Equal(t, RuleFailed, verdict.Status)
	assert.Greater(t, verdict.Score, 90.0)
}

func TestEvaluatePartialAndFailedBands(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "x")
	e := NewEngine()
	in := Input{Root: root}

	// 2 of 3 files -> 66.7 weighted -> PARTIAL
	writeFile(t, root, "b.txt", "x")
	verdict, err := e.Evaluate(in, []Rule{
		{ID: "r1", Type: TypeFileExists, Criteria: []string{"a.txt", "b.txt", "c.txt"}, Weight: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, RulePartial, verdict.Status)
	assert.Equal(t, QualityAcceptable, verdict.Quality)

	verdict, err = e.Evaluate(in, []Rule{
		{ID: "r1", Type: TypeFileExists, Criteria: []string{"c.txt", "d.txt"}, Weight: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, RuleFailed, verdict.Status)
	assert.Equal(t, QualityPoor, verdict.Quality)
}

func TestEvaluateUnknownTypeAndCustomHandler(t *testing.T) {
	e := NewEngine()
	in := Input{Root: t.TempDir()}

	verdict, err := e.Evaluate(in, []Rule{
		{ID: "r1", Type: "telepathy", Weight: 1},
	})
	require.NoError(t, err)
	// an errored optional rule leaves no scored results
	assert.Equal(t, RuleError, verdict.Results[0].Status)
	assert.Equal(t, RuleFailed, verdict.Status)

	// required + error forces failure
	verdict, err = e.Evaluate(in, []Rule{
		{ID: "r1", Type: "telepathy", Weight: 0, Required: true},
		{ID: "r2", Type: TypeFileExists, Criteria: []string{"x"}, Weight: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, RuleFailed, verdict.Status)

	e.Register("always-90", func(Rule, Input) Result {
		return Result{Status: RulePassed, Score: 90}
	})
	verdict, err = e.Evaluate(in, []Rule{{ID: "r1", Type: "always-90", Weight: 1}})
	require.NoError(t, err)
	assert.Equal(t, RulePassed, verdict.Status)
	assert.Equal(t, 90.0, verdict.Score)
}

func TestEvaluateValidation(t *testing.T) {
	e := NewEngine()
	in := Input{Root: t.TempDir()}

	_, err := e.Evaluate(in, nil)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	_, err = e.Evaluate(in, []Rule{{ID: "r1", Type: TypeFileExists, Weight: 1.5}})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestReward(t *testing.T) {
	tests := []struct {
		name    string
		formula RewardFormula
		base    uint64
		score   float64
		want    uint64
	}{
		{"linear mid", RewardLinear, 100, 80, 80},
		{"linear with 10% bonus", RewardLinear, 100, 92, 102},
		{"linear with 20% bonus", RewardLinear, 100, 96, 116},
		{"exponential", RewardExponential, 100, 80, 64},
		{"exponential full", RewardExponential, 100, 100, 120},
		{"tiered top", RewardTiered, 100, 91, 110},
		{"tiered good", RewardTiered, 100, 80, 85},
		{"tiered acceptable", RewardTiered, 100, 65, 60},
		{"tiered poor", RewardTiered, 100, 40, 0},
		{"zero base", RewardLinear, 0, 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reward(tt.formula, tt.base, tt.score)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Reward(RewardLinear, 100, 101)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
	_, err = Reward("bogus", 100, 50)
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}
