package mapper

import (
	"fmt"
	"sort"
	"strings"
)

// Role identifies which universe a block belongs to, since expansion rules
// differ for types, classes and permission sets.
type Role int

const (
	RoleType Role = iota
	RoleClass
	RolePerms
)

// Universe supplies the ground truth the expander needs: the full type set,
// the attribute -> member-types map, and the class -> permission-set map
// (already including inherited common permissions).
type Universe struct {
	Types      []string
	Attributes map[string][]string
	Classes    map[string][]string
}

func (u *Universe) allTypes() []string {
	return u.Types
}

func (u *Universe) allClasses() []string {
	out := make([]string, 0, len(u.Classes))
	for c := range u.Classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (u *Universe) isAttribute(name string) bool {
	_, ok := u.Attributes[name]
	return ok
}

// ExpandBlock expands a single tokenized block under the given role. forClass
// is required when role is RolePerms (the permission universe is
// class-specific).
func (u *Universe) ExpandBlock(block string, role Role, forClass string) ([]string, error) {
	switch {
	case strings.HasPrefix(block, "~{") || strings.HasPrefix(block, "{"):
		return u.expandSet(block, role, forClass)
	case strings.HasPrefix(block, "~") || block == "*":
		return u.expandComplementOrWildcard(block, role, forClass)
	default:
		return u.expandBare(block, role)
	}
}

func (u *Universe) expandSet(block string, role Role, forClass string) ([]string, error) {
	complemented := strings.HasPrefix(block, "~{")
	inner := strings.TrimPrefix(block, "~")
	inner = strings.TrimPrefix(inner, "{")
	inner = strings.TrimSuffix(inner, "}")
	words := strings.Fields(inner)

	add := make(map[string]bool)
	remove := make(map[string]bool)
	for _, w := range words {
		if strings.HasPrefix(w, "-") {
			name := strings.TrimPrefix(w, "-")
			remove[name] = true
			if role == RoleType && u.isAttribute(name) {
				for _, t := range u.Attributes[name] {
					remove[t] = true
				}
			}
		} else {
			add[w] = true
			if role == RoleType && u.isAttribute(w) {
				for _, t := range u.Attributes[w] {
					add[t] = true
				}
			}
		}
	}

	if complemented {
		universe, err := u.universeFor(role, forClass)
		if err != nil {
			return nil, err
		}
		result := make(map[string]bool, len(universe))
		for _, a := range universe {
			result[a] = true
		}
		for a := range add {
			if !remove[a] {
				delete(result, a)
			}
		}
		return sortedKeys(result), nil
	}

	result := make(map[string]bool, len(add))
	for a := range add {
		result[a] = true
	}
	for r := range remove {
		delete(result, r)
	}
	return sortedKeys(result), nil
}

func (u *Universe) expandComplementOrWildcard(block string, role Role, forClass string) ([]string, error) {
	universe, err := u.universeFor(role, forClass)
	if err != nil {
		return nil, err
	}
	if block == "*" {
		out := make([]string, len(universe))
		copy(out, universe)
		sort.Strings(out)
		return out, nil
	}
	inner := strings.TrimPrefix(block, "~")
	inner = strings.TrimPrefix(inner, "{")
	inner = strings.TrimSuffix(inner, "}")
	remove := make(map[string]bool)
	for _, w := range strings.Fields(inner) {
		remove[w] = true
	}
	result := make(map[string]bool, len(universe))
	for _, a := range universe {
		result[a] = true
	}
	for r := range remove {
		delete(result, r)
	}
	return sortedKeys(result), nil
}

func (u *Universe) expandBare(block string, role Role) ([]string, error) {
	if role == RoleType && u.isAttribute(block) {
		members := u.Attributes[block]
		result := make(map[string]bool, len(members)+1)
		result[block] = true
		for _, m := range members {
			result[m] = true
		}
		return sortedKeys(result), nil
	}
	return []string{block}, nil
}

func (u *Universe) universeFor(role Role, forClass string) ([]string, error) {
	switch role {
	case RoleType:
		return u.allTypes(), nil
	case RoleClass:
		return u.allClasses(), nil
	case RolePerms:
		if forClass == "" {
			return nil, fmt.Errorf("mapper: permission universe requested without a class")
		}
		perms, ok := u.Classes[forClass]
		if !ok {
			return nil, fmt.Errorf("mapper: unknown class %q", forClass)
		}
		return perms, nil
	default:
		return nil, fmt.Errorf("mapper: unknown role %d", role)
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
