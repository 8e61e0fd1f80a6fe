// Package rule provides the typed representation of AV rules and TE rules
// (including name transitions), built on top of the block tokenizer in
// internal/mapper.
package rule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aalto-ssg/selint/internal/mapper"
)

// Rule is satisfied by both AVRule and TERule.
type Rule interface {
	// UpToClass returns the RUTC prefix shared by every rule that differs
	// only in permission set (AV) or default type/object name (TE).
	UpToClass() mapper.RUTC
	String() string
}

// AVRule is an access-vector rule: (rtype, source, target-or-self, class,
// permission set). Equality is by all five fields with the permission set
// treated as an unordered set.
type AVRule struct {
	RType   string
	Source  string
	Target  string
	Class   string
	Permset map[string]bool
}

// UpToClass returns "<rtype> <source> <target>:<class>".
func (r AVRule) UpToClass() mapper.RUTC {
	return mapper.NewRUTC(r.RType, r.Source, r.Target, r.Class)
}

func (r AVRule) String() string {
	perms := make([]string, 0, len(r.Permset))
	for p := range r.Permset {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	var permStr string
	if len(perms) > 1 {
		permStr = "{ " + strings.Join(perms, " ") + " }"
	} else if len(perms) == 1 {
		permStr = perms[0]
	} else {
		permStr = "{ }"
	}
	return fmt.Sprintf("%s %s %s:%s %s;", r.RType, r.Source, r.Target, r.Class, permStr)
}

// Equal reports whether two AVRule values describe the same rule, comparing
// the permission set as an unordered set.
func (r AVRule) Equal(other AVRule) bool {
	if r.RType != other.RType || r.Source != other.Source || r.Target != other.Target || r.Class != other.Class {
		return false
	}
	if len(r.Permset) != len(other.Permset) {
		return false
	}
	for p := range r.Permset {
		if !other.Permset[p] {
			return false
		}
	}
	return true
}

// TERule is a type-enforcement rule: (rtype, source, target, class,
// default type, optional object name). IsNameTrans is true iff the object
// name is present.
type TERule struct {
	RType       string
	Source      string
	Target      string
	Class       string
	Deftype     string
	IsNameTrans bool
	Objname     string
}

// UpToClass returns "<rtype> <source> <target>:<class>".
func (r TERule) UpToClass() mapper.RUTC {
	return mapper.NewRUTC(r.RType, r.Source, r.Target, r.Class)
}

func (r TERule) String() string {
	if r.IsNameTrans {
		return fmt.Sprintf("%s %s %s:%s %s %s;", r.RType, r.Source, r.Target, r.Class, r.Deftype, r.Objname)
	}
	return fmt.Sprintf("%s %s %s:%s %s;", r.RType, r.Source, r.Target, r.Class, r.Deftype)
}

// Factory tokenizes a single rule string and returns either an AVRule or a
// TERule depending on its rule type, mirroring the reference
// rule_factory/rule_parser dispatch.
func Factory(s string) (Rule, error) {
	blocks, err := mapper.Tokenize(s)
	if err != nil {
		return nil, fmt.Errorf("rule: %w", err)
	}
	rtype := blocks[0]
	switch {
	case isOneOf(rtype, mapper.AVRuleTypes):
		if len(blocks) != 5 {
			return nil, fmt.Errorf("rule: AV rule %q requires 5 blocks, got %d", s, len(blocks))
		}
		permset := make(map[string]bool)
		for _, p := range strings.Fields(strings.Trim(blocks[4], "{}")) {
			permset[p] = true
		}
		return AVRule{
			RType:   rtype,
			Source:  blocks[1],
			Target:  blocks[2],
			Class:   blocks[3],
			Permset: permset,
		}, nil
	case isOneOf(rtype, mapper.TERuleTypes):
		if len(blocks) != 5 && len(blocks) != 6 {
			return nil, fmt.Errorf("rule: TE rule %q requires 5 or 6 blocks, got %d", s, len(blocks))
		}
		te := TERule{
			RType:   rtype,
			Source:  blocks[1],
			Target:  blocks[2],
			Class:   blocks[3],
			Deftype: blocks[4],
		}
		if len(blocks) == 6 {
			te.IsNameTrans = true
			te.Objname = blocks[5]
		}
		return te, nil
	default:
		return nil, fmt.Errorf("rule: unsupported rule type %q", rtype)
	}
}

// RuleSplitAfterClass splits s into its RUTC and the remainder after the
// class block. It rejects inputs whose class block is itself a set, since
// callers that need this split demand a single concrete class.
func RuleSplitAfterClass(s string) (mapper.RUTC, string, error) {
	blocks, err := mapper.Tokenize(s)
	if err != nil {
		return "", "", fmt.Errorf("rule: %w", err)
	}
	if len(blocks) < 4 {
		return "", "", fmt.Errorf("rule: %q has too few blocks to contain a class", s)
	}
	class := blocks[3]
	if strings.ContainsAny(class, "{}") {
		return "", "", fmt.Errorf("rule: %q has a class set, a single class is required", s)
	}
	rutc := mapper.NewRUTC(blocks[0], blocks[1], blocks[2], class)
	tail := strings.Join(blocks[4:], " ") + ";"
	return rutc, tail, nil
}

func isOneOf(s string, set []string) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}
