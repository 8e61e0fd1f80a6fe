// Package mapper implements the rule mapper: block tokenization, attribute
// and set expansion, cross-product rule expansion, and the ground-rule to
// file:line mapping that the rest of the analysis engine queries.
package mapper

import (
	"fmt"
	"strings"
)

// RUTC is a "rule up to class" key: the canonical prefix
// "<rtype> <source> <target>:<class>" shared by every ground rule expanded
// from the same family of source rules. Every rule has exactly one RUTC.
type RUTC string

// NewRUTC builds a RUTC from its four components.
func NewRUTC(rtype, source, target, class string) RUTC {
	return RUTC(fmt.Sprintf("%s %s %s:%s", rtype, source, target, class))
}

// Split breaks a RUTC back into its rtype, source, target and class.
// It is the inverse of NewRUTC and is used by plugins that need to
// re-derive a synthetic RUTC (e.g. unnecessary_rules' "other class" check).
func (r RUTC) Split() (rtype, source, target, class string, err error) {
	s := string(r)
	firstSpace := strings.IndexByte(s, ' ')
	if firstSpace < 0 {
		return "", "", "", "", fmt.Errorf("mapper: malformed RUTC %q: no rtype separator", s)
	}
	rtype = s[:firstSpace]
	rest := s[firstSpace+1:]
	secondSpace := strings.IndexByte(rest, ' ')
	if secondSpace < 0 {
		return "", "", "", "", fmt.Errorf("mapper: malformed RUTC %q: no source separator", s)
	}
	source = rest[:secondSpace]
	tail := rest[secondSpace+1:]
	colon := strings.LastIndexByte(tail, ':')
	if colon < 0 {
		return "", "", "", "", fmt.Errorf("mapper: malformed RUTC %q: no class separator", s)
	}
	target = tail[:colon]
	class = tail[colon+1:]
	return rtype, source, target, class, nil
}

// FileLine identifies a single source line as "path:line".
type FileLine string

// NewFileLine builds a FileLine from a path and a 1-based line number.
func NewFileLine(path string, line int) FileLine {
	return FileLine(fmt.Sprintf("%s:%d", path, line))
}

// File returns the path portion of the FileLine.
func (f FileLine) File() string {
	s := string(f)
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return s
	}
	return s[:idx]
}

// HasPrefixAny reports whether f's file portion begins with any of prefixes,
// used to implement ignore-path filtering throughout the plugins.
func (f FileLine) HasPrefixAny(prefixes []string) bool {
	file := f.File()
	for _, p := range prefixes {
		if strings.HasPrefix(file, p) {
			return true
		}
	}
	return false
}

// MappedRule is a ground rule paired with the origin of the source rule
// that, after expansion, produced it.
type MappedRule struct {
	// Rule is the fully expanded ground rule text, e.g. "allow a b:file read;".
	Rule string
	// FileLine is the origin of the unexpanded source rule.
	FileLine FileLine
	// Source is the verbatim, unexpanded source rule text.
	Source string
}

func (m MappedRule) String() string {
	return fmt.Sprintf("%s: %s", m.FileLine, m.Rule)
}

// Mapping holds the two multi-maps described by the data model: every
// ground rule grouped by its RUTC, and every original rule string grouped
// by the file:line it was written on.
type Mapping struct {
	Rules map[RUTC][]MappedRule
	Lines map[FileLine][]string
}

// NewMapping returns an empty Mapping ready for population.
func NewMapping() *Mapping {
	return &Mapping{
		Rules: make(map[RUTC][]MappedRule),
		Lines: make(map[FileLine][]string),
	}
}

// AddExpansion records that the source rule at fl, with verbatim text
// sourceText, expanded to the ground rules in expanded (a RUTC -> full rule
// text map). It appends one MappedRule per expansion and one line entry.
func (m *Mapping) AddExpansion(fl FileLine, sourceText string, expanded map[RUTC]string) {
	m.Lines[fl] = append(m.Lines[fl], sourceText)
	for rutc, full := range expanded {
		m.Rules[rutc] = append(m.Rules[rutc], MappedRule{
			Rule:     full,
			FileLine: fl,
			Source:   sourceText,
		})
	}
}
