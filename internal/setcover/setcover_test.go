package setcover

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFit_SingleFullMatch(t *testing.T) {
	candidates := map[string][]string{
		"read_file_perms": {"open", "read", "getattr"},
	}
	winner, partial := Fit(candidates, []string{"open", "read", "getattr"})
	assert.Equal(t, []string{"read_file_perms"}, winner)
	assert.Empty(t, partial)
}

func TestFit_PrefersSmallestFullCover(t *testing.T) {
	candidates := map[string][]string{
		"broad":     {"open", "read", "getattr", "write", "ioctl"},
		"exact":     {"open", "read", "getattr"},
		"unrelated": {"lock", "append"},
	}
	winner, _ := Fit(candidates, []string{"open", "read", "getattr"})
	assert.Equal(t, []string{"exact"}, winner)
}

func TestFit_CombinesTwoCandidatesForFullCover(t *testing.T) {
	candidates := map[string][]string{
		"a": {"open", "read"},
		"b": {"getattr"},
	}
	winner, _ := Fit(candidates, []string{"open", "read", "getattr"})
	assert.ElementsMatch(t, []string{"a", "b"}, winner)
}

func TestFit_PartialMatchOnly(t *testing.T) {
	candidates := map[string][]string{
		"close_match": {"open", "read", "write"},
	}
	winner, partial := Fit(candidates, []string{"open", "read"})
	assert.Empty(t, winner)
	assert.Equal(t, []string{"close_match"}, partial)
}

func TestFit_NoOverlapIsIgnored(t *testing.T) {
	candidates := map[string][]string{
		"irrelevant": {"lock", "append"},
	}
	winner, partial := Fit(candidates, []string{"open", "read"})
	assert.Empty(t, winner)
	assert.Empty(t, partial)
}

func TestFit_EmptyCandidates(t *testing.T) {
	winner, partial := Fit(map[string][]string{}, []string{"open"})
	assert.Nil(t, winner)
	assert.Nil(t, partial)
}
