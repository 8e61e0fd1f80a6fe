// Package setcover implements the set fitter: covering a target permission
// set with the fewest pre-defined permission sets, and scoring partial
// matches.
package setcover

import "sort"

// richSet tracks, for one candidate, how many elements of the target set it
// contains and the resulting coverage score.
type richSet struct {
	name    string
	values  map[string]bool
	tally   int
	nonzero bool
	score   float64
}

func (r *richSet) incr(elem string) {
	if r.values[elem] {
		r.tally++
		r.nonzero = true
		r.score = float64(r.tally) / float64(len(r.values))
	}
}

// Fit covers target with the candidates in candidates (name -> member
// list). It returns the winning full-match subset (names) that minimizes
// the leftover "extra" elements and, among ties, has the smallest
// cardinality, plus the partial-match candidate names (score in (0,1)) for
// the caller to consider separately.
//
// Each call builds fresh per-candidate tally state; Fit holds no state
// across calls.
func Fit(candidates map[string][]string, target []string) (winner []string, partial []string) {
	sets := make(map[string]*richSet, len(candidates))
	names := make([]string, 0, len(candidates))
	for name, values := range candidates {
		vm := make(map[string]bool, len(values))
		for _, v := range values {
			vm[v] = true
		}
		sets[name] = &richSet{name: name, values: vm}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, elem := range target {
		for _, name := range names {
			sets[name].incr(elem)
		}
	}

	var full []string
	for _, name := range names {
		s := sets[name]
		if !s.nonzero {
			continue
		}
		if s.score == 1.0 {
			full = append(full, name)
		} else {
			partial = append(partial, name)
		}
	}
	sort.Strings(full)
	sort.Strings(partial)

	if len(full) == 0 {
		return nil, partial
	}

	targetSet := make(map[string]bool, len(target))
	for _, t := range target {
		targetSet[t] = true
	}

	type combo struct {
		names []string
		extra int
	}
	var best *combo

	n := len(full)
	for mask := 1; mask < (1 << uint(n)); mask++ {
		union := make(map[string]bool)
		var members []string
		for i := 0; i < n; i++ {
			if mask&(1<<uint(i)) != 0 {
				members = append(members, full[i])
				for v := range sets[full[i]].values {
					union[v] = true
				}
			}
		}
		extra := 0
		for t := range targetSet {
			if !union[t] {
				extra++
			}
		}
		// "extra" also counts elements the union contributes beyond the
		// target; the reference only cares about target - union, so we
		// only count the deficit above.
		c := combo{names: members, extra: extra}
		if best == nil || c.extra < best.extra || (c.extra == best.extra && len(c.names) < len(best.names)) {
			best = &c
		}
	}
	sort.Strings(best.names)
	return best.names, partial
}
