package macromatch

import (
	"strings"

	"github.com/aalto-ssg/selint/internal/mapper"
)

// QueryCandidates finds every ground rule in mapping whose text matches the
// shape of placeholderRule (built via NewArgExtractor), honoring
// ignore-path filtering: a result is dropped unless at least one of its
// contributing origins lies outside ignorePaths, and for AV rules the
// accumulated permissions of the non-ignored contributors alone must still
// satisfy the placeholder's permission requirement.
func QueryCandidates(mapping *mapper.Mapping, placeholderRule string, ignorePaths []string) ([]mapper.MappedRule, error) {
	extractor, err := NewArgExtractor(placeholderRule)
	if err != nil {
		return nil, err
	}

	isAV := false
	shape := extractor
	if blocks, err := mapper.Tokenize(placeholderRule); err == nil && len(blocks) > 0 {
		isAV = isAVRuleType(blocks[0])
		if isAV && len(blocks) == 5 && !strings.Contains(blocks[4], "@@ARG") {
			// Permissions are checked per RUTC below, against the accumulated
			// set, so individual rules are matched on shape only.
			shape, err = NewArgExtractor(blocks[0] + " " + blocks[1] + " " + blocks[2] + ":" + blocks[3] + " { };")
			if err != nil {
				return nil, err
			}
		}
	}

	byRUTC := make(map[mapper.RUTC][]mapper.MappedRule)
	var order []mapper.RUTC
	for _, rules := range mapping.Rules {
		for _, mr := range rules {
			if _, err := shape.Extract(mr.Rule); err != nil {
				continue
			}
			blocks, err := mapper.Tokenize(mr.Rule)
			if err != nil {
				continue
			}
			rutc := mapper.NewRUTC(blocks[0], blocks[1], blocks[2], blocks[3])
			if _, ok := byRUTC[rutc]; !ok {
				order = append(order, rutc)
			}
			byRUTC[rutc] = append(byRUTC[rutc], mr)
		}
	}

	var out []mapper.MappedRule
	for _, rutc := range order {
		group := byRUTC[rutc]
		nonIgnored := make([]mapper.MappedRule, 0, len(group))
		for _, mr := range group {
			if !mr.FileLine.HasPrefixAny(ignorePaths) {
				nonIgnored = append(nonIgnored, mr)
			}
		}
		if len(nonIgnored) == 0 {
			continue
		}
		if !isAV {
			out = append(out, nonIgnored...)
			continue
		}
		if coversPermRequirement(placeholderRule, nonIgnored) {
			out = append(out, nonIgnored...)
		}
	}
	return out, nil
}

func isAVRuleType(rtype string) bool {
	for _, t := range mapper.AVRuleTypes {
		if t == rtype {
			return true
		}
	}
	return false
}

// coversPermRequirement reports whether the accumulated permission set of
// contributors alone satisfies the permission block of placeholderRule.
func coversPermRequirement(placeholderRule string, contributors []mapper.MappedRule) bool {
	tBlocks, err := mapper.Tokenize(placeholderRule)
	if err != nil || len(tBlocks) != 5 {
		return true
	}
	required := setWords(tBlocks[4])
	if len(required) == 0 {
		return true
	}
	accumulated := make(map[string]bool)
	for _, mr := range contributors {
		cBlocks, err := mapper.Tokenize(mr.Rule)
		if err != nil || len(cBlocks) != 5 {
			continue
		}
		for _, p := range setWords(cBlocks[4]) {
			accumulated[p] = true
		}
	}
	for _, r := range required {
		if strings.Contains(r, "@@ARG") {
			continue
		}
		if !accumulated[r] {
			return false
		}
	}
	return true
}
