// Package temacros analyses usage of te_macros-style macros and suggests
// new macro calls where a cluster of already-present AV and TE rules
// matches a macro's placeholder-expanded body closely enough.
package temacros

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/macro"
	"github.com/aalto-ssg/selint/internal/macromatch"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
)

// Name is the plugin's registry name.
const Name = "te_macros"

// Register returns the Plugin descriptor for the orchestrator's registry.
func Register() sourcepolicy.Plugin {
	return sourcepolicy.Plugin{
		Name:              Name,
		RequiredRuleTypes: append(append([]string{}, mapper.AVRuleTypes...), mapper.TERuleTypes...),
		Run:               Run,
	}
}

// Run expands every te_macros macro not explicitly ignored using numbered
// placeholder arguments, fans the resulting rule body out over class and
// permission sets, then tries to fit ground rules from the policy's mapping
// against the placeholder rules, forking a new Suggestion whenever a rule
// conflicts with an already-bound argument. Suggestions scoring at or above
// cfg.SuggestionThreshold are reported, except those dominated by another
// suggestion and those whose usage string already appears in p.Calls.
func Run(p *sourcepolicy.Policy, cfg config.PluginConfig) ([]string, error) {
	ctx := context.Background()
	universe := &mapper.Universe{
		Types:      p.Types,
		Attributes: p.Attributes,
		Classes:    p.Classes,
	}
	ignoreSet := make(map[string]bool, len(cfg.MacroIgnore))
	for _, n := range cfg.MacroIgnore {
		ignoreSet[n] = true
	}

	var selected []*macro.Macro
	for _, m := range p.Catalog.Macros {
		if strings.HasSuffix(m.File, "te_macros") && !ignoreSet[m.Name] {
			selected = append(selected, m)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return selected[i].Name < selected[j].Name })

	observed := make(map[string]bool, len(p.Calls))
	for _, call := range p.Calls {
		if call.Macro != nil {
			observed[fmt.Sprintf("%s(%s)", call.Macro.Name, strings.Join(call.Args, ", "))] = true
		}
	}

	var out []string
	for _, m := range selected {
		placeholderRules, err := expandWithPlaceholders(ctx, m, universe)
		if err != nil || len(placeholderRules) == 0 {
			continue
		}

		seed, err := macromatch.NewSuggestion(m.Name, m.Nargs(), placeholderRules)
		if err != nil {
			continue
		}
		suggestions := []*macromatch.Suggestion{seed}

		candidates := make(map[string]bool)
		var order []string
		for _, pr := range placeholderRules {
			results, err := macromatch.QueryCandidates(p.Mapping, pr, cfg.RuleIgnorePaths)
			if err != nil {
				continue
			}
			for _, mr := range results {
				if !candidates[mr.Rule] {
					candidates[mr.Rule] = true
					order = append(order, mr.Rule)
				}
			}
		}

		for _, res := range order {
			var forks []*macromatch.Suggestion
			for _, sug := range suggestions {
				if err := sug.AddRule(res); err == nil {
					continue
				}
				forked, err := sug.ForkAndFit(res)
				if err == nil && forked != nil {
					forks = append(forks, forked)
				}
			}
			suggestions = dedupAppend(suggestions, forks)
		}

		argOrder := make([]string, m.Nargs())
		for i := range argOrder {
			argOrder[i] = "arg" + strconv.Itoa(i)
		}
		for _, sug := range suggestions {
			if sug.Score() < cfg.SuggestionThreshold {
				continue
			}
			if isDominated(sug, suggestions) || observed[sug.Usage(argOrder)] {
				continue
			}
			out = append(out, fmt.Sprintf("%.2f: you could use %s in place of: %v",
				sug.Score(), sug.Usage(argOrder), sug.Rules()))
		}
	}

	sort.Strings(out)
	return out, nil
}

// expandWithPlaceholders expands m with "@@ARGn@@" placeholders, then
// flattens the result's class and, for AV rules, permission sets into one
// placeholder rule per concrete class.
func expandWithPlaceholders(ctx context.Context, m *macro.Macro, universe *mapper.Universe) ([]string, error) {
	args := make([]string, m.Nargs())
	for i := range args {
		args[i] = fmt.Sprintf("@@ARG%d@@", i)
	}
	body, err := m.Expand(ctx, args)
	if err != nil {
		return nil, err
	}

	var rules []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !hasSupportedPrefix(line) {
			continue
		}
		blocks, err := mapper.Tokenize(line)
		if err != nil {
			continue
		}
		rtype := blocks[0]
		switch {
		case isOneOf(rtype, mapper.AVRuleTypes):
			classes, err := universe.ExpandBlock(blocks[3], mapper.RoleClass, "")
			if err != nil {
				continue
			}
			colon := strings.Index(line, ":")
			if colon < 0 {
				continue
			}
			for _, class := range classes {
				permset, err := universe.ExpandBlock(blocks[4], mapper.RolePerms, class)
				if err != nil {
					continue
				}
				nl := line[:colon+1] + class + " " + renderPerms(permset) + ";"
				rules = append(rules, nl)
			}
		case isOneOf(rtype, mapper.TERuleTypes):
			classes, err := universe.ExpandBlock(blocks[3], mapper.RoleClass, "")
			if err != nil {
				continue
			}
			colon := strings.Index(line, ":")
			if colon < 0 {
				continue
			}
			tail := blocks[4]
			if len(blocks) == 6 {
				tail += " " + blocks[5]
			}
			for _, class := range classes {
				nl := line[:colon+1] + class + " " + tail + ";"
				rules = append(rules, nl)
			}
		}
	}
	return rules, nil
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

func renderPerms(perms []string) string {
	if len(perms) > 1 {
		sort.Strings(perms)
		return "{ " + strings.Join(perms, " ") + " }"
	}
	if len(perms) == 1 {
		return perms[0]
	}
	return "{ }"
}

// dedupAppend merges newly-forked suggestions into the existing set,
// dropping any fork whose accepted rule set duplicates one already present.
func dedupAppend(existing []*macromatch.Suggestion, forks []*macromatch.Suggestion) []*macromatch.Suggestion {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s.Key()] = true
	}
	for _, f := range forks {
		if seen[f.Key()] {
			continue
		}
		seen[f.Key()] = true
		existing = append(existing, f)
	}
	return existing
}

// isDominated reports whether sug's accepted rules are a strict subset of
// some other candidate's, in which case the more complete suggestion alone
// is worth reporting.
func isDominated(sug *macromatch.Suggestion, all []*macromatch.Suggestion) bool {
	for _, other := range all {
		if other == sug {
			continue
		}
		if sug.IsSubsetOf(other) {
			return true
		}
	}
	return false
}
