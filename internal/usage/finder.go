// Package usage implements the macro usage finder: it scans TE files for
// macro invocations and parses their (possibly nested) argument lists.
package usage

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/aalto-ssg/selint/internal/macro"
	"github.com/sirupsen/logrus"
)

// Call is a reference from a specific file:line to a macro, with the exact
// argument strings supplied. A Call is never compared across files/lines
// even if textually identical.
type Call struct {
	Macro     *macro.Macro
	File      string
	Line      int
	Args      []string
	Multiline bool
}

// FindUsages scans every .te file in files for invocations of the macros in
// cat, returning one Call per occurrence. Invalid usages are logged at Warn
// and skipped; FindUsages only fails on an unreadable file.
func FindUsages(files []string, cat *macro.Catalog, log *logrus.Logger) ([]Call, error) {
	if log == nil {
		log = logrus.New()
	}
	var calls []Call
	for _, path := range files {
		if !strings.HasSuffix(path, ".te") {
			continue
		}
		fileCalls, err := findUsagesInFile(path, cat, log)
		if err != nil {
			return nil, err
		}
		calls = append(calls, fileCalls...)
	}
	return calls, nil
}

func findUsagesInFile(path string, cat *macro.Catalog, log *logrus.Logger) ([]Call, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("usage: opening %s: %w", path, err)
	}
	defer f.Close()

	var calls []Call
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := stripComment(sc.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}
		calls = append(calls, findUsagesInLine(line, path, lineNo, cat, log)...)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("usage: reading %s: %w", path, err)
	}
	return calls, nil
}

func findUsagesInLine(line, path string, lineNo int, cat *macro.Catalog, log *logrus.Logger) []Call {
	var calls []Call
	rest := line
	offset := 0
	for len(rest) > 0 {
		name, nameStart, nameEnd := nextCandidateWord(rest)
		if name == "" {
			break
		}
		m, ok := cat.Macros[name]
		if !ok {
			rest = rest[nameEnd:]
			offset += nameEnd
			continue
		}
		afterName := rest[nameEnd:]
		trimmedAfter := strings.TrimLeft(afterName, " \t")
		if !strings.HasPrefix(trimmedAfter, "(") {
			rest = rest[nameEnd:]
			offset += nameEnd
			continue
		}
		// Multiline quoted usage: NAME(`...
		if strings.HasPrefix(trimmedAfter, "(`") && !strings.Contains(trimmedAfter, "')") {
			placeholderArgs := make([]string, m.Nargs())
			for i := range placeholderArgs {
				placeholderArgs[i] = "<multiline>"
			}
			calls = append(calls, Call{
				Macro:     m,
				File:      path,
				Line:      lineNo,
				Args:      placeholderArgs,
				Multiline: true,
			})
			break
		}

		parenStart := strings.Index(afterName, "(")
		argStr, consumed, err := splitArgs(afterName[parenStart:])
		if err != nil {
			log.WithField("origin", fmt.Sprintf("%s:%d", path, lineNo)).Warnf("usage: invalid usage of %q: %v", name, err)
			rest = rest[nameEnd:]
			offset += nameEnd
			continue
		}
		if len(argStr) != m.Nargs() {
			log.WithField("origin", fmt.Sprintf("%s:%d", path, lineNo)).
				Warnf("usage: %q called with %d args, expected %d", name, len(argStr), m.Nargs())
			rest = rest[nameEnd+parenStart+consumed:]
			offset += nameEnd + parenStart + consumed
			continue
		}
		calls = append(calls, Call{
			Macro: m,
			File:  path,
			Line:  lineNo,
			Args:  argStr,
		})
		advance := nameEnd + parenStart + consumed
		if advance <= 0 {
			advance = nameEnd
		}
		rest = rest[advance:]
		offset += advance
	}
	return calls
}

// nextCandidateWord finds the next run of identifier characters in s,
// returning the word and its [start,end) offsets. It is the Go analogue of
// splitting on `\W+` while remembering where the match occurred.
func nextCandidateWord(s string) (word string, start, end int) {
	i := 0
	for i < len(s) && !isIdentChar(s[i]) {
		i++
	}
	if i >= len(s) {
		return "", 0, len(s)
	}
	j := i
	for j < len(s) && isIdentChar(s[j]) {
		j++
	}
	return s[i:j], i, j
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func stripComment(line string) string {
	idx := strings.IndexByte(line, '#')
	if idx < 0 {
		return line
	}
	return line[:idx]
}

// splitArgs parses a parenthesized argument list starting at s[0] == '('.
// It respects nested parentheses, curly braces, and M4 quotes (`...'), and
// treats commas as separators only at the outermost nesting level. It
// returns the parsed arguments and the number of bytes of s consumed
// (through the matching closing paren), or an error on mismatched
// brackets/quotes/parens.
func splitArgs(s string) ([]string, int, error) {
	if len(s) == 0 || s[0] != '(' {
		return nil, 0, fmt.Errorf("usage: expected '(' at start of argument list")
	}
	var (
		args       []string
		cur        strings.Builder
		parenDepth int
		curlyDepth int
		quoteDepth int
	)
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '`':
			quoteDepth++
			cur.WriteByte(c)
		case c == '\'' && quoteDepth > 0:
			quoteDepth--
			cur.WriteByte(c)
		case c == '(':
			parenDepth++
			if parenDepth > 1 {
				cur.WriteByte(c)
			}
		case c == ')':
			parenDepth--
			if parenDepth < 0 {
				return nil, 0, fmt.Errorf("usage: unmatched ')'")
			}
			if parenDepth == 0 {
				trimmed := strings.TrimSpace(cur.String())
				if trimmed != "" || len(args) > 0 {
					args = append(args, trimmed)
				}
				return args, i + 1, nil
			}
			cur.WriteByte(c)
		case c == '{':
			curlyDepth++
			cur.WriteByte(c)
		case c == '}':
			curlyDepth--
			if curlyDepth < 0 {
				return nil, 0, fmt.Errorf("usage: unmatched '}'")
			}
			cur.WriteByte(c)
		case c == ',' && parenDepth == 1 && curlyDepth == 0 && quoteDepth == 0:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		case c == ' ' && parenDepth <= 1 && curlyDepth == 0 && quoteDepth == 0:
			// Drop insignificant whitespace outside brackets/quotes.
		default:
			cur.WriteByte(c)
		}
		i++
	}
	return nil, 0, fmt.Errorf("usage: unterminated argument list")
}
