// Package report renders a set of plugin findings as human-readable text,
// grouped by the plugin that produced them.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/aalto-ssg/selint/internal/sourcepolicy"
)

// Write renders findings to w, one section per plugin, plugins and findings
// both sorted for deterministic output.
func Write(w io.Writer, findings []sourcepolicy.Finding) error {
	byPlugin := make(map[string][]string)
	for _, f := range findings {
		byPlugin[f.Plugin] = append(byPlugin[f.Plugin], f.Text)
	}

	names := make([]string, 0, len(byPlugin))
	for name := range byPlugin {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		texts := byPlugin[name]
		sort.Strings(texts)
		if _, err := fmt.Fprintf(w, "== %s (%d) ==\n", name, len(texts)); err != nil {
			return err
		}
		for _, t := range texts {
			if _, err := fmt.Fprintf(w, "  %s\n", t); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	if len(findings) == 0 {
		_, err := fmt.Fprintln(w, "no findings")
		return err
	}
	return nil
}

// Summary returns a one-line "N findings across M plugins" string for
// verbose progress output.
func Summary(findings []sourcepolicy.Finding) string {
	plugins := make(map[string]bool)
	for _, f := range findings {
		plugins[f.Plugin] = true
	}
	return fmt.Sprintf("%d findings across %d plugin(s)", len(findings), len(plugins))
}
