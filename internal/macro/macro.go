// Package macro implements the macro catalog: parsing macro definition
// files into named, arity-checked Macro values with lazy, cached expansion.
package macro

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expander is the subset of internal/m4.Driver that the catalog needs. It is
// an interface so the catalog and its tests don't depend on a real m4
// binary being present.
type Expander interface {
	Expand(ctx context.Context, text string) (string, error)
	Dump(ctx context.Context, name string) (string, error)
}

// ErrArityMismatch is returned by Macro.Expand when the supplied argument
// count does not match the macro's arity. It is recoverable: callers treat
// it the same as a nil expansion.
var ErrArityMismatch = errors.New("macro: argument count does not match macro arity")

var dynamicOperators = []string{"ifelse(", "incr(", "decr(", "errprint("}

var placeholderRe = regexp.MustCompile(`@@ARG(\d+)@@`)

// templatePart is either a literal chunk of text or a positional argument
// reference, used to render a static macro's cached expansion template
// without Go having Python's str.format(*args).
type templatePart struct {
	literal string
	argIdx  int
	isArg   bool
}

// Macro is a named, possibly parameterized text substitution.
type Macro struct {
	Name     string
	File     string
	Args     []string
	Comments []string

	expander Expander

	classified   bool
	static       bool
	template     []templatePart
	singleResult string
	haveSingle   bool
}

// New builds a Macro. expander is used for dynamic expansions and the
// one-time static classification/templating pass.
func New(name, file string, args, comments []string, expander Expander) *Macro {
	return &Macro{
		Name:     name,
		File:     file,
		Args:     args,
		Comments: comments,
		expander: expander,
	}
}

// Nargs returns the macro's arity.
func (m *Macro) Nargs() int { return len(m.Args) }

// Dump returns the macro's raw M4 dumpdef text, for display purposes and
// for static/dynamic classification.
func (m *Macro) Dump(ctx context.Context) (string, error) {
	return m.expander.Dump(ctx, m.Name)
}

// Expand returns the macro's expansion. A macro of arity 0 is expanded by
// name once and the result cached; it takes no args. For other macros,
// args == nil returns the dump (display) form, explicitly avoiding
// expansion of macros that take numeric/placeholder arguments that could
// recurse. With the correct number of args it returns the substituted body.
// Any other argument count returns ErrArityMismatch.
func (m *Macro) Expand(ctx context.Context, args []string) (string, error) {
	if m.Nargs() == 0 {
		if len(args) != 0 {
			return "", ErrArityMismatch
		}
		if m.haveSingle {
			return m.singleResult, nil
		}
		out, err := m.expander.Expand(ctx, m.Name)
		if err != nil {
			return "", err
		}
		m.singleResult = out
		m.haveSingle = true
		return out, nil
	}

	if args == nil {
		return m.Dump(ctx)
	}
	if len(args) != m.Nargs() {
		return "", ErrArityMismatch
	}

	if err := m.classify(ctx); err != nil {
		return "", err
	}
	if !m.static {
		return m.expander.Expand(ctx, fmt.Sprintf("%s(%s)", m.Name, strings.Join(args, ",")))
	}
	return renderTemplate(m.template, args), nil
}

// classify performs the one-time static/dynamic determination and, for
// static macros, builds and caches the substitution template.
func (m *Macro) classify(ctx context.Context) error {
	if m.classified {
		return nil
	}
	dump, err := m.Dump(ctx)
	if err != nil {
		return err
	}
	m.static = true
	for _, op := range dynamicOperators {
		if strings.Contains(dump, op) {
			m.static = false
			break
		}
	}
	m.classified = true
	if !m.static {
		return nil
	}

	placeholderArgs := make([]string, m.Nargs())
	for i := range placeholderArgs {
		placeholderArgs[i] = fmt.Sprintf("@@ARG%d@@", i)
	}
	expansion, err := m.expander.Expand(ctx, fmt.Sprintf("%s(%s)", m.Name, strings.Join(placeholderArgs, ",")))
	if err != nil {
		return err
	}
	m.template = parseTemplate(expansion)
	return nil
}

func parseTemplate(expansion string) []templatePart {
	var parts []templatePart
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(expansion, -1) {
		start, end := loc[0], loc[1]
		if start > last {
			parts = append(parts, templatePart{literal: expansion[last:start]})
		}
		idxStr := expansion[loc[2]:loc[3]]
		idx, _ := strconv.Atoi(idxStr)
		parts = append(parts, templatePart{isArg: true, argIdx: idx})
		last = end
	}
	if last < len(expansion) {
		parts = append(parts, templatePart{literal: expansion[last:]})
	}
	return parts
}

func renderTemplate(parts []templatePart, args []string) string {
	var b strings.Builder
	for _, p := range parts {
		if p.isArg {
			if p.argIdx >= 0 && p.argIdx < len(args) {
				b.WriteString(args[p.argIdx])
			}
			continue
		}
		b.WriteString(p.literal)
	}
	return b.String()
}
