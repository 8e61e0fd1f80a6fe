// Package unnecessaryrules reports rules missing from a policy in three
// ways: a configured rule that has no associated companion rules from a
// tuple, a rule touching a configured "debug type", and a rule granting
// some permission from a set without granting the permissions required to
// go with it (either on the same class or on a companion class).
package unnecessaryrules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/macromatch"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
)

// Name is the plugin's registry name.
const Name = "unnecessary_rules"

// Register returns the Plugin descriptor for the orchestrator's registry.
func Register() sourcepolicy.Plugin {
	return sourcepolicy.Plugin{
		Name:              Name,
		RequiredRuleTypes: append(append([]string{}, mapper.AVRuleTypes...), mapper.TERuleTypes...),
		Run:               Run,
	}
}

// Run runs all three functionalities and concatenates their reports.
func Run(p *sourcepolicy.Policy, cfg config.PluginConfig) ([]string, error) {
	var out []string
	out = append(out, checkTuples(p, cfg)...)
	out = append(out, checkDebugTypes(p, cfg)...)
	out = append(out, checkRequiredPerms(p, cfg)...)
	return out, nil
}

// checkTuples implements functionality 1: for every configured rule tuple,
// find every ground rule matching the tuple's first (possibly
// placeholder-bearing) rule, then verify every other rule in the tuple is
// present, substituting the same argument bindings if the first rule used
// placeholders.
func checkTuples(p *sourcepolicy.Policy, cfg config.PluginConfig) []string {
	ignoredRules := make(map[string]bool, len(cfg.IgnoredRules))
	for _, r := range cfg.IgnoredRules {
		ignoredRules[r] = true
	}

	var out []string
	for _, tuple := range cfg.RulesTuples {
		if len(tuple) < 2 {
			continue
		}
		head := tuple[0]
		if !hasSupportedPrefix(head) {
			continue
		}

		var matched []string
		var extractor *macromatch.ArgExtractor
		hasPlaceholder := strings.Contains(head, "@@ARG")
		if hasPlaceholder {
			var err error
			extractor, err = macromatch.NewArgExtractor(head)
			if err != nil {
				continue
			}
			results, err := macromatch.QueryCandidates(p.Mapping, head, cfg.RuleIgnorePaths)
			if err != nil {
				continue
			}
			for _, mr := range results {
				matched = append(matched, mr.Rule)
			}
		} else if ruleSatisfied(p, head) {
			matched = []string{head}
		}

		for _, r := range matched {
			if ignoredRules[r] {
				continue
			}
			var args map[string]string
			if hasPlaceholder {
				a, err := extractor.Extract(r)
				if err != nil {
					continue
				}
				args = a
			}

			var missing []string
			for _, companion := range tuple[1:] {
				if !hasSupportedPrefix(companion) {
					continue
				}
				necRule := companion
				if hasPlaceholder {
					necRule = substituteArgs(companion, args)
				}
				if !ruleSatisfied(p, necRule) {
					missing = append(missing, necRule)
				}
			}
			if len(missing) == 0 {
				continue
			}
			out = append(out, fmt.Sprintf("rule %q is missing associated rule(s): %v", r, missing))
		}
	}
	sort.Strings(out)
	return out
}

// ruleSatisfied reports whether necRule is already covered by the policy's
// mapping: for AV rules, the accumulated permission set of the matching
// RUTC must be a superset of necRule's own permission set; for TE rules an
// exact textual match is required.
func ruleSatisfied(p *sourcepolicy.Policy, necRule string) bool {
	blocks, err := mapper.Tokenize(necRule)
	if err != nil {
		return true // malformed companion rule, nothing to report
	}
	rutc := mapper.NewRUTC(blocks[0], blocks[1], blocks[2], blocks[3])
	rules, ok := p.Mapping.Rules[rutc]
	if !ok {
		return false
	}
	if isOneOf(blocks[0], mapper.AVRuleTypes) {
		want := setWords(blocks[4])
		have := make(map[string]bool)
		for _, mr := range rules {
			mrBlocks, err := mapper.Tokenize(mr.Rule)
			if err != nil || len(mrBlocks) != 5 {
				continue
			}
			for _, perm := range setWords(mrBlocks[4]) {
				have[perm] = true
			}
		}
		for _, w := range want {
			if !have[w] {
				return false
			}
		}
		return true
	}
	for _, mr := range rules {
		if mr.Rule == necRule {
			return true
		}
	}
	return false
}

func substituteArgs(rule string, args map[string]string) string {
	for k, v := range args {
		rule = strings.ReplaceAll(rule, "@@"+strings.ToUpper(k)+"@@", v)
	}
	return rule
}

// checkDebugTypes implements functionality 2: report every rule whose RUTC
// contains a configured debug type substring.
func checkDebugTypes(p *sourcepolicy.Policy, cfg config.PluginConfig) []string {
	ignoredRules := make(map[string]bool, len(cfg.IgnoredRules))
	for _, r := range cfg.IgnoredRules {
		ignoredRules[r] = true
	}

	var out []string
	for rutc, rules := range p.Mapping.Rules {
		for _, dbt := range cfg.DebugTypes {
			if dbt == "" || !strings.Contains(string(rutc), dbt) {
				continue
			}
			for _, mr := range rules {
				if ignoredRules[mr.Rule] {
					continue
				}
				out = append(out, fmt.Sprintf("rule contains debug type %q: %s", dbt, mr.Rule))
			}
		}
	}
	sort.Strings(out)
	return out
}

// checkRequiredPerms implements functionality 3: for every allow RUTC whose
// class has a configured RequiredPerms entry, accumulate its granted
// permissions and, if they intersect AtLeastOneOf without covering
// Required, check whether the companion classes in Extra make up the gap
// (every one of them must grant its listed permissions for the same source
// and target); if not, or if Extra is empty, report the shortfall.
func checkRequiredPerms(p *sourcepolicy.Policy, cfg config.PluginConfig) []string {
	ignoredRules := make(map[string]bool, len(cfg.IgnoredRules))
	for _, r := range cfg.IgnoredRules {
		ignoredRules[r] = true
	}

	var out []string
	for rutc, rules := range p.Mapping.Rules {
		rtype, source, target, class, err := rutc.Split()
		if err != nil || rtype != "allow" {
			continue
		}
		reqs, ok := cfg.RequiredPerms[class]
		if !ok {
			continue
		}
		found := accumulatePerms(rules, cfg.RuleIgnorePaths)
		if found == nil {
			continue
		}
		if !intersects(found, reqs.AtLeastOneOf) || supersetOf(found, reqs.Required) {
			continue
		}

		allExtrasGranted := len(reqs.Extra) > 0
		for extraClass, need := range reqs.Extra {
			extraRUTC := mapper.NewRUTC(rtype, source, target, extraClass)
			extraRules, ok := p.Mapping.Rules[extraRUTC]
			if !ok {
				allExtrasGranted = false
				break
			}
			extraFound := accumulatePerms(extraRules, cfg.RuleIgnorePaths)
			if extraFound == nil || !supersetOf(extraFound, need) {
				allExtrasGranted = false
				break
			}
		}
		if allExtrasGranted {
			continue
		}

		resStr := renderRule(rutc, found)
		if ignoredRules[resStr] {
			continue
		}
		var missing []string
		for _, r := range reqs.Required {
			if !found[r] {
				missing = append(missing, r)
			}
		}
		sort.Strings(missing)
		out = append(out, fmt.Sprintf("rule %q grants permissions %v but requires %v too (or a companion rule over: %v)",
			resStr, sortedKeysOf(found), missing, reqs.Extra))
	}
	sort.Strings(out)
	return out
}

func accumulatePerms(rules []mapper.MappedRule, ignorePaths []string) map[string]bool {
	found := make(map[string]bool)
	for _, mr := range rules {
		if mr.FileLine.HasPrefixAny(ignorePaths) {
			return nil
		}
		blocks, err := mapper.Tokenize(mr.Rule)
		if err != nil || len(blocks) != 5 {
			continue
		}
		for _, perm := range setWords(blocks[4]) {
			found[perm] = true
		}
	}
	return found
}

func renderRule(rutc mapper.RUTC, perms map[string]bool) string {
	words := sortedKeysOf(perms)
	if len(words) > 1 {
		return fmt.Sprintf("%s %s;", rutc, "{ "+strings.Join(words, " ")+" }")
	}
	return fmt.Sprintf("%s %s;", rutc, strings.Join(words, ""))
}

func sortedKeysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func intersects(have map[string]bool, want []string) bool {
	for _, w := range want {
		if have[w] {
			return true
		}
	}
	return false
}

func supersetOf(have map[string]bool, want []string) bool {
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

func setWords(s string) []string {
	s = strings.TrimPrefix(s, "~")
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func hasSupportedPrefix(line string) bool {
	for _, t := range mapper.SupportedRuleTypes {
		if strings.HasPrefix(line, t+" ") {
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
