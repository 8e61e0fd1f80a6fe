package policybridge

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Decls holds the three tables the rule mapper needs as ground truth:
// attribute membership, the full type set, and each class's permission set
// (already including any inherited common permissions).
type Decls struct {
	Attributes map[string][]string
	Types      []string
	Classes    map[string][]string
}

// LoadDecls reads an assembled policy.conf and extracts attribute, type and
// class declarations. There is no third-party SELinux policy reader in the
// Go ecosystem, so this is a direct line-oriented scan of the declaration
// grammar checkpolicy accepts, in the same hand-rolled-field-splitting style
// used elsewhere in this repository for other declarative formats.
func LoadDecls(path string) (*Decls, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("policybridge: opening %s: %w", path, err)
	}
	defer f.Close()

	d := &Decls{
		Attributes: make(map[string][]string),
		Classes:    make(map[string][]string),
	}
	typeAttrs := make(map[string][]string) // attribute -> member types, built incrementally
	commons := make(map[string][]string)   // common name -> perms
	classCommon := make(map[string]string) // class -> common it inherits

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(stripComment(sc.Text()))
		if line == "" {
			continue
		}
		line = strings.TrimSuffix(line, ";")

		switch {
		case strings.HasPrefix(line, "attribute "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "attribute "))
			if _, ok := d.Attributes[name]; !ok {
				d.Attributes[name] = nil
			}

		case strings.HasPrefix(line, "type "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "type "))
			fields := splitCommaOrSpace(rest)
			if len(fields) == 0 {
				continue
			}
			typeName := fields[0]
			d.Types = append(d.Types, typeName)
			for _, attr := range fields[1:] {
				typeAttrs[attr] = append(typeAttrs[attr], typeName)
			}

		case strings.HasPrefix(line, "typeattribute "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "typeattribute "))
			fields := splitCommaOrSpace(rest)
			if len(fields) < 2 {
				continue
			}
			typeName := fields[0]
			for _, attr := range fields[1:] {
				typeAttrs[attr] = append(typeAttrs[attr], typeName)
			}

		case strings.HasPrefix(line, "common "):
			name, perms := parseBracedDecl(strings.TrimPrefix(line, "common "))
			if name != "" {
				commons[name] = perms
			}

		case strings.HasPrefix(line, "class "):
			rest := strings.TrimPrefix(line, "class ")
			name, inherits, perms := parseClassDecl(rest)
			if name == "" {
				continue
			}
			d.Classes[name] = perms
			if inherits != "" {
				classCommon[name] = inherits
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("policybridge: reading %s: %w", path, err)
	}

	for attr, types := range typeAttrs {
		d.Attributes[attr] = dedupe(types)
	}
	for cls, common := range classCommon {
		merged := append([]string{}, d.Classes[cls]...)
		merged = append(merged, commons[common]...)
		d.Classes[cls] = dedupe(merged)
	}
	return d, nil
}

func stripComment(line string) string {
	idx := strings.IndexByte(line, '#')
	if idx < 0 {
		return line
	}
	return line[:idx]
}

func splitCommaOrSpace(s string) []string {
	s = strings.ReplaceAll(s, ",", " ")
	return strings.Fields(s)
}

// parseBracedDecl parses "NAME { perm1 perm2 ... }" declarations (used for
// both "common NAME { ... }" and bare class perm lists).
func parseBracedDecl(s string) (name string, perms []string) {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return strings.TrimSpace(s), nil
	}
	name = strings.TrimSpace(s[:open])
	close := strings.LastIndexByte(s, '}')
	if close < open {
		return name, nil
	}
	perms = strings.Fields(s[open+1 : close])
	return name, perms
}

// parseClassDecl parses one of:
//
//	NAME
//	NAME { perm1 perm2 ... }
//	NAME inherits COMMON
//	NAME inherits COMMON { perm1 perm2 ... }
func parseClassDecl(s string) (name, inherits string, perms []string) {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "inherits"); idx >= 0 {
		name = strings.TrimSpace(s[:idx])
		rest := strings.TrimSpace(s[idx+len("inherits"):])
		if open := strings.IndexByte(rest, '{'); open >= 0 {
			inherits = strings.TrimSpace(rest[:open])
			if close := strings.LastIndexByte(rest, '}'); close > open {
				perms = strings.Fields(rest[open+1 : close])
			}
		} else {
			inherits = rest
		}
		return name, inherits, perms
	}
	name, perms = parseBracedDecl(s)
	return name, "", perms
}

func dedupe(xs []string) []string {
	seen := make(map[string]bool, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}
