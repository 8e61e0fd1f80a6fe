package mapper

import (
	"fmt"
	"strings"
)

// Tokenize splits a single, semicolon-terminated, whitespace-normalized rule
// string into its ordered blocks: [rtype, source, target, class,
// perms-or-default [, objname]].
//
// It is a straight character-scan port of the reference tokenizer: it
// tracks curly-bracket nesting (flattened to a single level - nested braces
// merge into their enclosing block), a pending complement ('~') flag, and
// treats ':' as the separator between target and class.
func Tokenize(rule string) ([]string, error) {
	s := strings.TrimSpace(rule)
	s = strings.TrimSuffix(s, ";")
	s = strings.ReplaceAll(s, ":", " ")

	if strings.Count(s, "{") != strings.Count(s, "}") {
		return nil, fmt.Errorf("mapper: malformed rule %q: unbalanced braces", rule)
	}

	rtypeEnd := strings.IndexByte(s, ' ')
	if rtypeEnd < 0 {
		return nil, fmt.Errorf("mapper: malformed rule %q: no rule type", rule)
	}
	blocks := []string{s[:rtypeEnd]}
	rest := s[rtypeEnd+1:]

	var (
		nestLvl        int
		complementNext bool
		pendingSimple  strings.Builder
		pendingSet     strings.Builder
		havePendingSet bool
	)

	flushSimple := func() {
		if pendingSimple.Len() > 0 {
			text := pendingSimple.String()
			if complementNext {
				text = "~" + text
				complementNext = false
			}
			blocks = append(blocks, text)
			pendingSimple.Reset()
		}
	}

	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch {
		case c == '~':
			if nestLvl > 0 {
				return nil, fmt.Errorf("mapper: malformed rule %q: nested complement not allowed", rule)
			}
			if i+1 >= len(rest) || !isComplementable(rest[i+1]) {
				return nil, fmt.Errorf("mapper: malformed rule %q: '~' must be followed by a letter or '{'", rule)
			}
			complementNext = true
		case c == '{':
			if nestLvl == 0 {
				flushSimple()
				havePendingSet = true
				pendingSet.Reset()
				if complementNext {
					pendingSet.WriteString("~{")
					complementNext = false
				} else {
					pendingSet.WriteByte('{')
				}
			} else {
				pendingSet.WriteByte('{')
			}
			nestLvl++
		case c == '}':
			nestLvl--
			if nestLvl < 0 {
				return nil, fmt.Errorf("mapper: malformed rule %q: unmatched '}'", rule)
			}
			pendingSet.WriteByte('}')
			if nestLvl == 0 {
				blocks = append(blocks, pendingSet.String())
				havePendingSet = false
				pendingSet.Reset()
			}
		case c == ' ':
			if nestLvl > 0 {
				// Collapse consecutive spaces inside a set.
				set := pendingSet.String()
				if len(set) > 0 && set[len(set)-1] != ' ' {
					pendingSet.WriteByte(' ')
				}
			} else {
				flushSimple()
			}
		default:
			if nestLvl > 0 {
				pendingSet.WriteByte(c)
			} else {
				pendingSimple.WriteByte(c)
			}
		}
	}
	if nestLvl != 0 {
		return nil, fmt.Errorf("mapper: malformed rule %q: unmatched '{'", rule)
	}
	if havePendingSet {
		blocks = append(blocks, pendingSet.String())
	}
	flushSimple()

	if len(blocks) != 5 && len(blocks) != 6 {
		return nil, fmt.Errorf("mapper: malformed rule %q: expected 5 or 6 blocks, got %d", rule, len(blocks))
	}
	return blocks, nil
}

func isComplementable(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '{'
}
