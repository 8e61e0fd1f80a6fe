// Package userneverallows verifies a set of user-defined neverallow
// constraints against the policy's mapped rules, reporting any rule that
// grants permissions a configured neverallow forbids.
package userneverallows

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
)

// Name is the plugin's registry name.
const Name = "user_neverallows"

// Register returns the Plugin descriptor for the orchestrator's registry.
func Register() sourcepolicy.Plugin {
	return sourcepolicy.Plugin{
		Name:              Name,
		RequiredRuleTypes: mapper.AVRuleTypes,
		Run:               Run,
	}
}

// Run expands every configured NEVERALLOWS rule into its cross-product
// (reusing the policy's own attribute/type/class universe), strips the
// leading "never" to align it to an allow-shaped RUTC key, and reports any
// overlap between forbidden and granted permissions for the matching RUTC.
func Run(p *sourcepolicy.Policy, cfg config.PluginConfig) ([]string, error) {
	universe := &mapper.Universe{
		Types:      p.Types,
		Attributes: p.Attributes,
		Classes:    p.Classes,
	}

	forbidden := make(map[mapper.RUTC]map[string]bool)
	for _, neverallowText := range cfg.Neverallows {
		blocks, err := mapper.Tokenize(neverallowText)
		if err != nil {
			continue
		}
		expanded, err := universe.ExpandRule(blocks)
		if err != nil {
			continue
		}
		for rutc, full := range expanded {
			rtype, source, target, class, err := rutc.Split()
			if err != nil {
				continue
			}
			allowRUTC := mapper.NewRUTC(strings.TrimPrefix(rtype, "never"), source, target, class)
			perms := permsOf(full)
			if forbidden[allowRUTC] == nil {
				forbidden[allowRUTC] = make(map[string]bool)
			}
			for _, perm := range perms {
				forbidden[allowRUTC][perm] = true
			}
		}
	}

	var out []string
	for rutc, rules := range p.Mapping.Rules {
		bad, ok := forbidden[rutc]
		if !ok {
			continue
		}
		allowed := make(map[string]bool)
		for _, mr := range rules {
			for _, perm := range permsOf(mr.Rule) {
				allowed[perm] = true
			}
		}
		var violated []string
		for perm := range allowed {
			if bad[perm] {
				violated = append(violated, perm)
			}
		}
		if len(violated) == 0 {
			continue
		}
		sort.Strings(violated)
		var contributors []string
		for _, mr := range rules {
			contributors = append(contributors, mr.String())
		}
		out = append(out, fmt.Sprintf("neverallow violation for %s: forbidden perms %v granted by %v",
			rutc, violated, contributors))
	}
	sort.Strings(out)
	return out, nil
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
