package macromatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrRuleNotInMacro is returned by AddRule when a candidate rule matches no
// placeholder slot of the macro at all. Callers use this, as opposed to
// ErrSlotConflict, to decide whether to stop considering the rule for this
// macro entirely rather than attempting ForkAndFit.
var ErrRuleNotInMacro = errors.New("macromatch: rule does not belong to this macro")

// ErrSlotConflict is returned by AddRule when a candidate rule would match
// a slot but either that slot is already filled, or it would bind an
// argument to a value inconsistent with one already fixed by this
// suggestion. Callers should retry via ForkAndFit.
var ErrSlotConflict = errors.New("macromatch: rule conflicts with this suggestion")

// Suggestion is a partially filled binding of a macro's placeholder rules
// to concrete ground rules discovered in the policy.
type Suggestion struct {
	macroName        string
	nargs            int
	placeholderRules []string
	extractors       map[string]*ArgExtractor
	filled           map[string]string // placeholder rule -> matched concrete rule
	args             map[string]string // argN -> value
	score            float64
}

// NewSuggestion creates an empty Suggestion for a macro with the given name,
// arity, and ordered list of placeholder rule strings (one per supported
// rule emitted by the macro body, already fanned out to a single class
// each).
func NewSuggestion(macroName string, nargs int, placeholderRules []string) (*Suggestion, error) {
	extractors := make(map[string]*ArgExtractor, len(placeholderRules))
	for _, r := range placeholderRules {
		e, err := NewArgExtractor(r)
		if err != nil {
			return nil, err
		}
		extractors[r] = e
	}
	return &Suggestion{
		macroName:        macroName,
		nargs:            nargs,
		placeholderRules: placeholderRules,
		extractors:       extractors,
		filled:           make(map[string]string),
		args:             make(map[string]string),
	}, nil
}

// Score returns (filled_placeholders/|L|) * (known_args/k).
func (s *Suggestion) Score() float64 { return s.score }

// Rules returns the concrete rules accepted so far, in placeholder order.
func (s *Suggestion) Rules() []string {
	out := make([]string, 0, len(s.filled))
	for _, r := range s.placeholderRules {
		if v, ok := s.filled[r]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Key is a stable identity for deduplicating suggestions: the sorted set of
// accepted concrete rules.
func (s *Suggestion) Key() string {
	rules := s.Rules()
	sorted := append([]string{}, rules...)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

func (s *Suggestion) recomputeScore() {
	known := len(s.args)
	s.score = (float64(len(s.filled)) / float64(len(s.placeholderRules))) * (float64(known) / float64(s.nargs))
}

// AddRule attempts to fit rule into an unclaimed placeholder slot of s. The
// first slot that both accepts the rule's shape and is arg-consistent with
// the already-filled slots wins, filling the slot and returning nil.
//
// If every slot that could structurally match rule is already taken,
// AddRule returns ErrSlotConflict. If no slot matches the rule's shape at
// all, it returns ErrRuleNotInMacro.
func (s *Suggestion) AddRule(rule string) error {
	alreadyTaken := false
	for _, placeholder := range s.placeholderRules {
		if _, taken := s.filled[placeholder]; taken {
			if _, err := s.extractors[placeholder].Extract(rule); err == nil || errors.Is(err, ErrInconsistentArg) {
				alreadyTaken = true
			}
			continue
		}
		extracted, err := s.extractors[placeholder].Extract(rule)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		if errors.Is(err, ErrInconsistentArg) {
			alreadyTaken = true
			continue
		}
		if err != nil {
			continue
		}
		conflict := false
		for k, v := range extracted {
			if existing, ok := s.args[k]; ok && existing != v {
				conflict = true
				break
			}
		}
		if conflict {
			alreadyTaken = true
			continue
		}
		s.filled[placeholder] = rule
		for k, v := range extracted {
			s.args[k] = v
		}
		s.recomputeScore()
		return nil
	}
	if alreadyTaken {
		return fmt.Errorf("%w: slot already taken by a previous rule for %q", ErrSlotConflict, rule)
	}
	return fmt.Errorf("%w: %q", ErrRuleNotInMacro, rule)
}

// ForkAndFit creates a new Suggestion for the same macro and placeholder
// set, seeded with rule, then replays this suggestion's already-accepted
// rules in their existing order, silently dropping any that now conflict
// with rule. It returns nil, ErrRuleNotInMacro if rule does not belong to
// this macro at all (the fork is pointless).
func (s *Suggestion) ForkAndFit(rule string) (*Suggestion, error) {
	fork, err := NewSuggestion(s.macroName, s.nargs, s.placeholderRules)
	if err != nil {
		return nil, err
	}
	if err := fork.AddRule(rule); err != nil {
		if errors.Is(err, ErrRuleNotInMacro) {
			return nil, ErrRuleNotInMacro
		}
		// A conflict here can't happen against an empty suggestion; treat
		// defensively as "doesn't belong".
		return nil, ErrRuleNotInMacro
	}
	for _, old := range s.Rules() {
		if old == rule {
			continue
		}
		if err := fork.AddRule(old); err != nil {
			continue
		}
	}
	return fork, nil
}

// Usage renders "macroName(arg0, arg1, ...)" using bound args or a literal
// placeholder for any slot not yet filled.
func (s *Suggestion) Usage(argOrder []string) string {
	parts := make([]string, len(argOrder))
	for i, a := range argOrder {
		if v, ok := s.args[a]; ok {
			parts[i] = v
		} else {
			parts[i] = "<MISSING_ARG>"
		}
	}
	return fmt.Sprintf("%s(%s)", s.macroName, strings.Join(parts, ", "))
}

// IsSubsetOf reports whether s's accepted rule set is a strict subset of
// other's, used by the de-duplication pass to discard dominated
// suggestions.
func (s *Suggestion) IsSubsetOf(other *Suggestion) bool {
	mine := s.Rules()
	theirs := make(map[string]bool, len(other.Rules()))
	for _, r := range other.Rules() {
		theirs[r] = true
	}
	if len(mine) >= len(theirs) {
		return false
	}
	for _, r := range mine {
		if !theirs[r] {
			return false
		}
	}
	return true
}
