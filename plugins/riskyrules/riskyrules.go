// Package riskyrules assigns a risk or trust score to rules based on their
// source/target type buckets and permission sets, reporting any rule
// scoring at or above a configured threshold.
package riskyrules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/rule"
	"github.com/aalto-ssg/selint/internal/score"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
)

// Name is the plugin's registry name.
const Name = "risky_rules"

// Register returns the Plugin descriptor for the orchestrator's registry.
func Register() sourcepolicy.Plugin {
	return sourcepolicy.Plugin{
		Name:              Name,
		RequiredRuleTypes: append(append([]string{}, mapper.AVRuleTypes...), "type_transition"),
		Run:               Run,
	}
}

// Run scores every in-scope rule in p.Mapping and returns a "score: rule"
// line for each one scoring at or above cfg.ScoreThreshold, sorted per
// cfg.ReverseSort.
func Run(p *sourcepolicy.Policy, cfg config.PluginConfig) ([]string, error) {
	mode := score.Mode(cfg.ScoringSystem)
	if !mode.IsValid() {
		return nil, fmt.Errorf("riskyrules: invalid scoring_system %q", cfg.ScoringSystem)
	}
	scorer, err := score.New(mode, score.Buckets{
		Types:        cfg.Types,
		Perms:        cfg.Perms,
		ScoreRisk:    cfg.ScoreRisk,
		ScoreTrust:   cfg.ScoreTrust,
		Capabilities: cfg.Capabilities,
		MaximumScore: cfg.MaximumScore,
	})
	if err != nil {
		return nil, err
	}

	ignored := make(map[string]bool, len(cfg.IgnoredRules))
	for _, r := range cfg.IgnoredRules {
		ignored[r] = true
	}

	var out []string
	for _, rules := range p.Mapping.Rules {
		for _, mr := range rules {
			if mr.FileLine.HasPrefixAny(cfg.RuleIgnorePaths) {
				continue
			}
			if !hasSupportedPrefix(mr.Rule, cfg.SupportedRuleTypes) {
				continue
			}
			if ignored[mr.Rule] {
				continue
			}
			parsed, err := rule.Factory(mr.Rule)
			if err != nil {
				continue
			}
			s, err := scorer.Score(parsed)
			if err != nil {
				continue
			}
			if s >= cfg.ScoreThreshold {
				out = append(out, fmt.Sprintf("%.2f: %s", s, mr))
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if cfg.ReverseSort {
			return out[i] > out[j]
		}
		return out[i] < out[j]
	})
	return out, nil
}

func hasSupportedPrefix(rule string, supported []string) bool {
	if len(supported) == 0 {
		return true
	}
	for _, s := range supported {
		if strings.HasPrefix(rule, s) {
			return true
		}
	}
	return false
}
