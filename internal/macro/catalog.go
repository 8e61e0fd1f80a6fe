package macro

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// defineRe matches a "define(`NAME'," form, used both to decide whether a
// file is a macro file and, for global-macros style files, to parse each
// one-line definition.
var defineRe = regexp.MustCompile(`define\(` + "`" + `([^']+)` + "'")

// globalMacroDefRe matches the single-line "define(`NAME', `BODY')" form.
var globalMacroDefRe = regexp.MustCompile("define\\(`([^']+)',\\s*`([^']*)'\\)")

// teMacroHeaderRe matches a te-macros style arity/arg declaration comment
// line: "# NAME(arg0, arg1, ...)".
var teMacroHeaderRe = regexp.MustCompile(`^#\s*([A-Za-z_][A-Za-z0-9_]*)\(([^)]*)\)\s*$`)

// Catalog is the set of macros discovered across a list of macro definition
// files, dispatched to a file-specific parser by filename.
type Catalog struct {
	Macros map[string]*Macro
}

// IsMacroFile reports whether path contains at least one "define(`NAME',"
// occurrence, the discovery rule from the component design.
func IsMacroFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("macro: reading %s: %w", path, err)
	}
	return defineRe.Match(data), nil
}

// BuildCatalog parses every file in files with its file-specific parser
// (dispatched by filename suffix, never discovered at runtime) and merges
// the resulting macros into one Catalog.
func BuildCatalog(ctx context.Context, files []string, expander Expander, log *logrus.Logger) (*Catalog, error) {
	if log == nil {
		log = logrus.New()
	}
	cat := &Catalog{Macros: make(map[string]*Macro)}
	for _, f := range files {
		isMacro, err := IsMacroFile(f)
		if err != nil {
			return nil, err
		}
		if !isMacro {
			continue
		}
		var macros map[string]*Macro
		switch {
		case strings.HasSuffix(f, "global_macros"):
			macros, err = parseGlobalMacrosFile(f, expander)
		case strings.HasSuffix(f, "te_macros"):
			macros, err = parseTEMacrosFile(f, expander)
		default:
			// Unknown macro-file shape: fall back to the global-macros
			// style parser, which tolerates any single-line define().
			macros, err = parseGlobalMacrosFile(f, expander)
		}
		if err != nil {
			log.WithField("origin", f).Warnf("macro: could not parse macro file: %v", err)
			continue
		}
		for name, m := range macros {
			cat.Macros[name] = m
		}
		log.WithField("origin", f).Debug("macro: parsed macro file")
	}
	return cat, nil
}

// parseGlobalMacrosFile parses the global-macros style: each definition is a
// one-line "define(`NAME', `BODY')" with arity 0.
func parseGlobalMacrosFile(path string, expander Expander) (map[string]*Macro, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	macros := make(map[string]*Macro)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		m := globalMacroDefRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		macros[name] = New(name, path, nil, nil, expander)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return macros, nil
}

// parseTEMacrosFile parses the te-macros style: macros are introduced by a
// "# NAME(arg0, arg1, ...)" header line. Blocks that don't match this shape
// are tolerated and skipped rather than failing the whole file, since the
// reference parser recovers by falling back to probing for plain define()
// forms.
func parseTEMacrosFile(path string, expander Expander) (map[string]*Macro, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	macros := make(map[string]*Macro)
	var comments []string
	var current *Macro
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if header := teMacroHeaderRe.FindStringSubmatch(trimmed); header != nil {
			name := header[1]
			var args []string
			if strings.TrimSpace(header[2]) != "" {
				for _, a := range strings.Split(header[2], ",") {
					args = append(args, strings.TrimSpace(a))
				}
			}
			current = New(name, path, args, nil, expander)
			macros[name] = current
			comments = nil
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if current != nil {
				current.Comments = append(current.Comments, strings.TrimPrefix(trimmed, "#"))
			} else {
				comments = append(comments, strings.TrimPrefix(trimmed, "#"))
			}
			continue
		}
		current = nil
		if trimmed == "" {
			comments = nil
			continue
		}
		if m := globalMacroDefRe.FindStringSubmatch(trimmed); m != nil {
			name := m[1]
			if _, ok := macros[name]; !ok {
				macros[name] = New(name, path, nil, append([]string{}, comments...), expander)
			}
			comments = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return macros, nil
}
