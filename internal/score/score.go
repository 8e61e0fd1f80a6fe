// Package score implements the scorer: risk/trust scoring of rules from
// type and permission buckets, with per-mode normalization and thresholds.
package score

import (
	"fmt"

	"github.com/aalto-ssg/selint/internal/rule"
)

// Mode enumerates the five supported scoring systems.
type Mode string

const (
	ModeRisk    Mode = "risk"
	ModeTrustHL Mode = "trust_hl"
	ModeTrustLH Mode = "trust_lh"
	ModeTrustHH Mode = "trust_hh"
	ModeTrustLL Mode = "trust_ll"
)

// IsValid reports whether m is one of the five recognized scoring systems.
func (m Mode) IsValid() bool {
	switch m {
	case ModeRisk, ModeTrustHL, ModeTrustLH, ModeTrustHH, ModeTrustLL:
		return true
	}
	return false
}

// Buckets is the configuration a Scorer needs: named type buckets shared by
// both scoring families, per-bucket risk and trust scores, permission
// buckets used only by risk mode, the capability-class score table, and the
// normalization maximum.
type Buckets struct {
	Types        map[string][]string // bucket name -> member type names
	Perms        map[string][]string // bucket name -> member permission names (risk mode only)
	ScoreRisk    map[string]float64
	ScoreTrust   map[string]float64
	Capabilities map[string]float64 // class name -> capability score
	MaximumScore float64
}

// Scorer scores rules under one configured Mode.
type Scorer struct {
	Mode    Mode
	Buckets Buckets
}

// New validates mode and returns a ready Scorer.
func New(mode Mode, buckets Buckets) (*Scorer, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("score: invalid scoring system %q", mode)
	}
	return &Scorer{Mode: mode, Buckets: buckets}, nil
}

func (s *Scorer) bucketOf(name string) (string, bool) {
	for bucket, members := range s.Buckets.Types {
		for _, m := range members {
			if m == name {
				return bucket, true
			}
		}
	}
	return "", false
}

// positionScore returns the contribution of a single type at a given position
// ("H" or "L" for trust modes; ignored for risk).
func (s *Scorer) positionScore(typeName string, isSourcePosition bool) float64 {
	bucket, ok := s.bucketOf(typeName)
	if !ok {
		return 0
	}
	switch s.Mode {
	case ModeRisk:
		return s.Buckets.ScoreRisk[bucket]
	case ModeTrustHL:
		if isSourcePosition {
			return s.Buckets.ScoreTrust[bucket]
		}
		return s.Buckets.MaximumScore/2 - s.Buckets.ScoreTrust[bucket]
	case ModeTrustLH:
		if isSourcePosition {
			return s.Buckets.MaximumScore/2 - s.Buckets.ScoreTrust[bucket]
		}
		return s.Buckets.ScoreTrust[bucket]
	case ModeTrustHH:
		return s.Buckets.ScoreTrust[bucket]
	case ModeTrustLL:
		return s.Buckets.MaximumScore/2 - s.Buckets.ScoreTrust[bucket]
	}
	return 0
}

// Score dispatches to ScoreAV or ScoreTE by the rule's concrete type.
func (s *Scorer) Score(r rule.Rule) (float64, error) {
	switch v := r.(type) {
	case rule.AVRule:
		return s.ScoreAV(v), nil
	case rule.TERule:
		return s.ScoreTE(v), nil
	default:
		return 0, fmt.Errorf("score: unsupported rule type %T", r)
	}
}

// ScoreAV scores an AV rule: additive source/target buckets (capability
// classes substitute the class's own capability score for the target
// bucket, since "self" targets are meaningless), then in risk mode a
// multiplicative permission-bucket coefficient, normalized by
// MaximumScore.
func (s *Scorer) ScoreAV(r rule.AVRule) float64 {
	total := s.positionScore(r.Source, true)

	if capScore, ok := s.Buckets.Capabilities[r.Class]; ok {
		total += capScore
	} else {
		total += s.positionScore(r.Target, false)
	}

	if s.Mode == ModeRisk {
		var permCoeff float64
		for bucket, members := range s.Buckets.Perms {
			if intersects(members, r.Permset) {
				if c := s.Buckets.ScoreRisk[bucket]; c > permCoeff {
					permCoeff = c
				}
			}
		}
		if permCoeff != 0 {
			total *= permCoeff
		}
	}

	if s.Buckets.MaximumScore == 0 {
		return 0
	}
	return total / s.Buckets.MaximumScore
}

// ScoreTE scores a TE rule: the target type is meaningless for transitions,
// so the deftype is scored in its place.
func (s *Scorer) ScoreTE(r rule.TERule) float64 {
	total := s.positionScore(r.Source, true)
	total += s.positionScore(r.Deftype, false)
	if s.Buckets.MaximumScore == 0 {
		return 0
	}
	return total / s.Buckets.MaximumScore
}

func intersects(bucket []string, permset map[string]bool) bool {
	for _, p := range bucket {
		if permset[p] {
			return true
		}
	}
	return false
}
