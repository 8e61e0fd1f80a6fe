package mapper

import (
	"fmt"
	"sort"
	"strings"
)

// AVRuleTypes lists the rule types mapped as access-vector rules.
var AVRuleTypes = []string{"allow", "auditallow", "dontaudit", "neverallow"}

// TERuleTypes lists the rule types mapped as type-enforcement rules.
var TERuleTypes = []string{"type_transition", "type_change", "type_member", "typebounds"}

// SupportedRuleTypes is the set of rule types the mapper expands. Only rules
// whose first token is in this set are considered part of the ground-rule
// mapping.
var SupportedRuleTypes = append(append([]string{}, AVRuleTypes...), TERuleTypes...)

func isOneOf(s string, set []string) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

// ExpandRule expands one tokenized source rule into the full cross-product
// of ground rules, keyed by RUTC. It mirrors the reference mapper's
// __expand_avrule / __expand_terule.
func (u *Universe) ExpandRule(blocks []string) (map[RUTC]string, error) {
	rtype := blocks[0]
	switch {
	case isOneOf(rtype, AVRuleTypes):
		return u.expandAVRule(blocks)
	case isOneOf(rtype, TERuleTypes):
		return u.expandTERule(blocks)
	default:
		return nil, fmt.Errorf("mapper: unsupported rule type %q", rtype)
	}
}

func (u *Universe) expandAVRule(blocks []string) (map[RUTC]string, error) {
	if len(blocks) != 5 {
		return nil, fmt.Errorf("mapper: AV rule requires 5 blocks, got %d", len(blocks))
	}
	rtype, sourceBlock, targetBlock, classBlock, permsBlock := blocks[0], blocks[1], blocks[2], blocks[3], blocks[4]

	sources, err := u.ExpandBlock(sourceBlock, RoleType, "")
	if err != nil {
		return nil, err
	}
	classes, err := u.ExpandBlock(classBlock, RoleClass, "")
	if err != nil {
		return nil, err
	}

	out := make(map[RUTC]string)
	isSelf := targetBlock == "self"

	var targets []string
	if !isSelf {
		targets, err = u.ExpandBlock(targetBlock, RoleType, "")
		if err != nil {
			return nil, err
		}
	}

	for _, class := range classes {
		perms, err := u.ExpandBlock(permsBlock, RolePerms, class)
		if err != nil {
			return nil, err
		}
		permStr := renderPermSet(perms)
		if isSelf {
			for _, src := range sources {
				rutc := NewRUTC(rtype, src, src, class)
				full := fmt.Sprintf("%s %s %s:%s %s;", rtype, src, src, class, permStr)
				out[rutc] = full
			}
		} else {
			for _, src := range sources {
				for _, tgt := range targets {
					rutc := NewRUTC(rtype, src, tgt, class)
					full := fmt.Sprintf("%s %s %s:%s %s;", rtype, src, tgt, class, permStr)
					out[rutc] = full
				}
			}
		}
	}
	return out, nil
}

func (u *Universe) expandTERule(blocks []string) (map[RUTC]string, error) {
	if len(blocks) != 5 && len(blocks) != 6 {
		return nil, fmt.Errorf("mapper: TE rule requires 5 or 6 blocks, got %d", len(blocks))
	}
	rtype, sourceBlock, targetBlock, classBlock, deftype := blocks[0], blocks[1], blocks[2], blocks[3], blocks[4]
	var objname string
	isNameTrans := len(blocks) == 6
	if isNameTrans {
		objname = blocks[5]
	}

	sources, err := u.ExpandBlock(sourceBlock, RoleType, "")
	if err != nil {
		return nil, err
	}
	targets, err := u.ExpandBlock(targetBlock, RoleType, "")
	if err != nil {
		return nil, err
	}
	classes, err := u.ExpandBlock(classBlock, RoleClass, "")
	if err != nil {
		return nil, err
	}

	out := make(map[RUTC]string)
	for _, src := range sources {
		for _, tgt := range targets {
			for _, class := range classes {
				rutc := NewRUTC(rtype, src, tgt, class)
				var full string
				if isNameTrans {
					full = fmt.Sprintf("%s %s %s:%s %s %s;", rtype, src, tgt, class, deftype, objname)
				} else {
					full = fmt.Sprintf("%s %s %s:%s %s;", rtype, src, tgt, class, deftype)
				}
				out[rutc] = full
			}
		}
	}
	return out, nil
}

func renderPermSet(perms []string) string {
	sort.Strings(perms)
	if len(perms) > 1 {
		return "{ " + strings.Join(perms, " ") + " }"
	}
	if len(perms) == 1 {
		return perms[0]
	}
	return "{ }"
}
