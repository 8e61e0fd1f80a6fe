package mapper

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	syncFileRe = regexp.MustCompile(`^#line ([0-9]+) "([^"]+)"`)
	syncLineRe = regexp.MustCompile(`^#line ([0-9]+)`)
)

// BuildMapping scans an assembled policy.conf (with "#line" sync markers
// emitted by "m4 -s") and returns the Mapping of ground rules to their
// origin file:line, using universe to resolve attribute, class and
// permission-set expansions.
//
// Rules that fail to tokenize or expand are logged at Warn and skipped;
// statements of an unsupported rule type are skipped without logging.
// BuildMapping itself only fails on an unreadable input stream.
func BuildMapping(r io.Reader, universe *Universe, log *logrus.Logger) (*Mapping, error) {
	if log == nil {
		log = logrus.New()
	}
	mapping := NewMapping()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	currentFile := ""
	currentLine := 0
	var group []string
	groupFile := currentFile
	groupLine := 0

	flushGroup := func() {
		if len(group) == 0 {
			return
		}
		joined := strings.Join(group, " ")
		joined = normalizeWhitespace(joined)
		processGroupedRules(joined, NewFileLine(groupFile, groupLine), universe, mapping, log)
		group = nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if m := syncFileRe.FindStringSubmatch(line); m != nil {
			flushGroup()
			currentFile = m[2]
			currentLine = atoiSafe(m[1]) - 1
			continue
		}
		if m := syncLineRe.FindStringSubmatch(line); m != nil {
			flushGroup()
			currentLine = atoiSafe(m[1]) - 1
			continue
		}

		currentLine++

		text := stripTrailingComment(line)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if len(group) == 0 {
			groupFile = currentFile
			groupLine = currentLine
		}
		group = append(group, text)
		if strings.HasSuffix(text, ";") {
			flushGroup()
		}
	}
	flushGroup()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mapping, nil
}

// processGroupedRules handles one or more ';'-terminated rules found on a
// single accumulated group (possibly spanning multiple source lines before
// the terminating ';'). Each semicolon-delimited rule is tokenized,
// expanded, and recorded independently, but all share the group's
// file:line origin.
func processGroupedRules(joined string, fl FileLine, universe *Universe, mapping *Mapping, log *logrus.Logger) {
	for _, rule := range splitRules(joined) {
		rule = strings.TrimSpace(rule)
		if rule == "" {
			continue
		}
		firstWord := rule
		if sp := strings.IndexByte(rule, ' '); sp >= 0 {
			firstWord = rule[:sp]
		}
		if !isOneOf(firstWord, SupportedRuleTypes) {
			continue
		}
		ruleText := rule
		if !strings.HasSuffix(ruleText, ";") {
			ruleText += ";"
		}
		blocks, err := Tokenize(ruleText)
		if err != nil {
			log.WithField("origin", fl).Warnf("mapper: skipping unparseable rule: %v", err)
			continue
		}
		expanded, err := universe.ExpandRule(blocks)
		if err != nil {
			log.WithField("origin", fl).Warnf("mapper: skipping rule that failed to expand: %v", err)
			continue
		}
		mapping.AddExpansion(fl, ruleText, expanded)
	}
}

// splitRules splits a string containing one or more ';'-terminated rules,
// preserving each rule's trailing ';'.
func splitRules(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if i < len(parts)-1 {
			p += ";"
		}
		out = append(out, p)
	}
	return out
}

func stripTrailingComment(line string) string {
	idx := strings.IndexByte(line, '#')
	if idx < 0 {
		return line
	}
	return line[:idx]
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
