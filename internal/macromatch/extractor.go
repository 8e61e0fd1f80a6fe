// Package macromatch implements the macro reconstruction engine: given a
// macro's placeholder-expanded rule body, it discovers argument bindings
// consistent with the observed rule database and ranks the resulting
// suggestions.
package macromatch

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/aalto-ssg/selint/internal/mapper"
)

// ValidArgPattern is the regex fragment matching one SELinux identifier,
// used both to build per-argument capture groups and to build the "at
// least this argument" predicate queries in te_macros-style reconstruction.
const ValidArgPattern = `[A-Za-z0-9_]+`

var placeholderTokenRe = regexp.MustCompile(`@@ARG(\d+)@@`)

// ErrNoMatch is returned by ArgExtractor.Extract when the candidate rule
// does not match the placeholder template's shape at all.
var ErrNoMatch = errors.New("macromatch: candidate rule does not match placeholder template")

// ErrInconsistentArg is returned when the same argN placeholder occurs more
// than once in a template and the candidate rule supplies conflicting
// values for it.
var ErrInconsistentArg = errors.New("macromatch: inconsistent value for repeated argument placeholder")

// ArgExtractor matches candidate ground-rule strings against one
// placeholder rule (a rule containing @@ARGN@@ tokens in place of concrete
// values) and extracts the argument bindings that make it match.
type ArgExtractor struct {
	template string
	blocks   []string
}

// NewArgExtractor builds an ArgExtractor for a single placeholder rule.
func NewArgExtractor(templateRule string) (*ArgExtractor, error) {
	blocks, err := mapper.Tokenize(templateRule)
	if err != nil {
		return nil, fmt.Errorf("macromatch: tokenizing template %q: %w", templateRule, err)
	}
	return &ArgExtractor{template: templateRule, blocks: blocks}, nil
}

// Extract matches rule against the template and returns the argN -> value
// bindings implied by the match, or ErrNoMatch / ErrInconsistentArg.
func (e *ArgExtractor) Extract(rule string) (map[string]string, error) {
	blocks, err := mapper.Tokenize(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}
	if len(blocks) != len(e.blocks) {
		return nil, ErrNoMatch
	}
	if blocks[0] != e.blocks[0] {
		return nil, ErrNoMatch
	}

	args := make(map[string]string)

	// Target block (index 2) self-handling: if the template's target is
	// the literal "self", the candidate's target must equal its own
	// source rather than being matched positionally.
	if e.blocks[2] == "self" {
		if blocks[2] != blocks[1] {
			return nil, ErrNoMatch
		}
	}

	for i := 1; i < len(e.blocks); i++ {
		if i == 2 && e.blocks[2] == "self" {
			continue
		}
		if err := matchBlock(e.blocks[i], blocks[i], args); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// matchBlock matches one template block against one candidate block. If the
// template block contains placeholders, it is compiled into a regex whose
// groups are bound to argN; injectivity (repeated argN must agree) is
// enforced against the args map already accumulated.
func matchBlock(template, candidate string, args map[string]string) error {
	if !strings.Contains(template, "@@ARG") {
		if isSetBlock(template) || isSetBlock(candidate) {
			if err := matchSetSuperset(template, candidate); err != nil {
				return err
			}
			return nil
		}
		if template != candidate {
			return ErrNoMatch
		}
		return nil
	}

	pattern, argNames := compileBlockPattern(template)
	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return fmt.Errorf("macromatch: compiling pattern for %q: %w", template, err)
	}
	m := re.FindStringSubmatch(candidate)
	if m == nil {
		return ErrNoMatch
	}
	for i, name := range argNames {
		val := m[i+1]
		if existing, ok := args[name]; ok {
			if existing != val {
				return ErrInconsistentArg
			}
			continue
		}
		args[name] = val
	}
	return nil
}

// compileBlockPattern turns a block containing @@ARGN@@ tokens into a
// regexp pattern with one capture group per placeholder occurrence, plus
// the ordered list of argN names (lowercase, without "@@"/"@@") those
// groups correspond to.
func compileBlockPattern(template string) (pattern string, argNames []string) {
	var b strings.Builder
	last := 0
	for _, loc := range placeholderTokenRe.FindAllStringSubmatchIndex(template, -1) {
		start, end := loc[0], loc[1]
		b.WriteString(regexp.QuoteMeta(template[last:start]))
		b.WriteString("(" + ValidArgPattern + ")")
		argNames = append(argNames, "arg"+template[loc[2]:loc[3]])
		last = end
	}
	b.WriteString(regexp.QuoteMeta(template[last:]))
	return b.String(), argNames
}

func isSetBlock(s string) bool {
	return strings.ContainsAny(s, "{}")
}

// matchSetSuperset requires that, when template and candidate are
// interpreted as (possibly complemented) `{ ... }` sets or bare atoms, the
// candidate's set is a superset of the template's concrete (non-placeholder)
// requirements.
func matchSetSuperset(template, candidate string) error {
	tWords := setWords(template)
	cWords := setWords(candidate)
	cSet := make(map[string]bool, len(cWords))
	for _, w := range cWords {
		cSet[w] = true
	}
	for _, w := range tWords {
		if strings.Contains(w, "@@ARG") {
			continue
		}
		if !cSet[w] {
			return ErrNoMatch
		}
	}
	return nil
}

func setWords(s string) []string {
	s = strings.TrimPrefix(s, "~")
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return nil
	}
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.TrimPrefix(f, "-"))
	}
	return out
}
