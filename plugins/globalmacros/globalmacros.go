// Package globalmacros suggests where a cluster of open-coded permissions
// could be replaced by one or more global_macros permission macros, using
// the set-cover engine to find the minimal covering combination.
package globalmacros

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/setcover"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
)

// Name is the plugin's registry name.
const Name = "global_macros"

// Register returns the Plugin descriptor for the orchestrator's registry.
func Register() sourcepolicy.Plugin {
	return sourcepolicy.Plugin{
		Name:              Name,
		RequiredRuleTypes: mapper.AVRuleTypes,
		Run:               Run,
	}
}

// Run builds the candidate permission-macro dictionary from macros defined
// in a "global_macros" file, then for every RUTC in the policy's mapping
// that has at least one non-ignored contributor, fits the accumulated
// permission set against the candidates and reports full and partial
// matches.
func Run(p *sourcepolicy.Policy, cfg config.PluginConfig) ([]string, error) {
	ctx := context.Background()
	candidates := make(map[string][]string)
	for name, m := range p.Catalog.Macros {
		if !strings.HasSuffix(m.File, "global_macros") {
			continue
		}
		if contains(cfg.MacroIgnore, name) {
			continue
		}
		body, err := m.Expand(ctx, nil)
		if err != nil {
			continue
		}
		candidates[name] = strings.Fields(body)
	}

	ignored := make(map[string]bool, len(cfg.UsagesIgnore))
	for _, u := range cfg.UsagesIgnore {
		ignored[u] = true
	}

	usedMacrosByLine := make(map[mapper.FileLine]bool)
	for _, call := range p.Calls {
		usedMacrosByLine[mapper.NewFileLine(call.File, call.Line)] = true
	}

	var fullReports, partialReports []string
	seen := make(map[string]bool)

	for rutc, rules := range p.Mapping.Rules {
		rtype, _, _, _, err := rutc.Split()
		if err != nil || !isOneOf(rtype, mapper.AVRuleTypes) {
			continue
		}
		permset := make(map[string]bool)
		var contributingLines []mapper.FileLine
		for _, mr := range rules {
			if mr.FileLine.HasPrefixAny(cfg.RuleIgnorePaths) {
				continue
			}
			contributingLines = append(contributingLines, mr.FileLine)
			for _, perm := range permsOf(mr.Rule) {
				permset[perm] = true
			}
		}
		if len(permset) == 0 {
			continue
		}
		target := make([]string, 0, len(permset))
		for perm := range permset {
			target = append(target, perm)
		}
		sort.Strings(target)

		key := strings.Join(target, ",")
		if seen[key] {
			continue
		}
		seen[key] = true

		winner, partial := setcover.Fit(candidates, target)

		if len(winner) > 0 {
			var names []string
			for _, w := range winner {
				if ignored[w] {
					continue
				}
				names = append(names, w)
			}
			if len(names) > 0 {
				fullReports = append(fullReports, fmt.Sprintf(
					"suggest replacing permission set %v (used at %v) with macro(s) %v",
					target, contributingLines, names))
			}
		} else if len(partial) > 0 {
			alreadyUsed := false
			for _, fl := range contributingLines {
				if usedMacrosByLine[fl] {
					alreadyUsed = true
				}
			}
			if !alreadyUsed {
				limit := cfg.SuggestionMaxNo
				if limit <= 0 || limit > len(partial) {
					limit = len(partial)
				}
				partialReports = append(partialReports, fmt.Sprintf(
					"partial match for permission set %v (used at %v): candidates %v",
					target, contributingLines, partial[:limit]))
			}
		}
	}

	sort.Strings(fullReports)
	sort.Strings(partialReports)
	return append(fullReports, partialReports...), nil
}

func permsOf(rule string) []string {
	idx := strings.LastIndexByte(rule, ':')
	if idx < 0 {
		return nil
	}
	tail := strings.TrimSuffix(strings.TrimSpace(rule[idx+1:]), ";")
	sp := strings.IndexByte(tail, ' ')
	if sp < 0 {
		return nil
	}
	permBlock := strings.TrimSpace(tail[sp+1:])
	permBlock = strings.Trim(permBlock, "{}")
	return strings.Fields(permBlock)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func isOneOf(s string, set []string) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
