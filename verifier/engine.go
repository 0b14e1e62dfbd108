// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package verifier

import (
	"sync"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
)

var logger = log.WithContext("pkg", "verifier")

var metricVerdicts = metrics.LazyLoadCounterVec("verifier_verdict_count", []string{"status"})

// Handler evaluates one rule against the input.
type Handler func(rule Rule, in Input) Result

// Engine dispatches rules to type handlers and aggregates verdicts.
type Engine struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewEngine creates an engine with the built-in handlers registered.
func NewEngine() *Engine {
	e := &Engine{handlers: make(map[string]Handler)}
	e.Register(TypeFileExists, checkFileExists)
	e.Register(TypeFileContent, checkFileContent)
	e.Register(TypeCodeQuality, checkCodeQuality)
	e.Register(TypeDocumentation, checkDocumentation)
	return e
}

// Register installs a handler for a rule type, replacing any existing one.
func (e *Engine) Register(ruleType string, h Handler) {
	e.mu.Lock()
	e.handlers[ruleType] = h
	e.mu.Unlock()
}

func (e *Engine) handler(ruleType string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[ruleType]
	return h, ok
}

// Evaluate runs every rule and folds the results into a verdict.
//
// The weighted score averages PASSED, PARTIAL and FAILED results by rule
// weight; SKIPPED and ERROR results carry no weight. Any required rule
// that fails (or errors) forces an overall FAILED verdict.
func (e *Engine) Evaluate(in Input, rules []Rule) (*Verdict, error) {
	if len(rules) == 0 {
		return nil, errs.New(errs.InvalidArgument, "no rules to evaluate")
	}

	verdict := &Verdict{TaskID: in.TaskID}
	var weightSum, scoreSum float64
	requiredFailed := false

	for _, rule := range rules {
		if rule.Weight < 0 || rule.Weight > 1 {
			return nil, errs.Errorf(errs.InvalidArgument, "rule %s: weight %v out of [0,1]", rule.ID, rule.Weight)
		}
		res := e.evaluateRule(rule, in)
		verdict.Results = append(verdict.Results, res)

		switch res.Status {
		case RuleSkipped, RuleError:
			if rule.Required && res.Status == RuleError {
				requiredFailed = true
			}
		default:
			weightSum += rule.Weight
			scoreSum += res.Score * rule.Weight
			if rule.Required && res.Status == RuleFailed {
				requiredFailed = true
			}
		}
	}

	if weightSum > 0 {
		verdict.Score = scoreSum / weightSum
	}
	verdict.Quality = qualityOf(verdict.Score)

	switch {
	case requiredFailed:
		verdict.Status = RuleFailed
	case verdict.Score >= 90:
		verdict.Status = RulePassed
	case verdict.Score >= 60:
		verdict.Status = RulePartial
	default:
		verdict.Status = RuleFailed
	}

	metricVerdicts().AddWithLabel(1, map[string]string{"status": string(verdict.Status)})
	logger.Debug("verdict", "task", in.TaskID, "status", verdict.Status, "score", verdict.Score)
	return verdict, nil
}

func (e *Engine) evaluateRule(rule Rule, in Input) Result {
	h, ok := e.handler(rule.Type)
	if !ok {
		return Result{
			RuleID:  rule.ID,
			Status:  RuleError,
			Details: "no handler for rule type " + rule.Type,
		}
	}
	res := h(rule, in)
	res.RuleID = rule.ID
	if res.Score < 0 {
		res.Score = 0
	} else if res.Score > 100 {
		res.Score = 100
	}
	return res
}
