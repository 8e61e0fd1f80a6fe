package mapper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildUniverse() *Universe {
	return &Universe{
		Types: []string{"untrusted_app", "init", "file_type"},
		Classes: map[string][]string{
			"file": {"read", "write"},
		},
	}
}

func TestBuildMapping_TracksSyncLines(t *testing.T) {
	input := `#line 1 "domain.te"
allow untrusted_app file_type:file read;
#line 10 "other.te"
allow init file_type:file write;
`
	mapping, err := BuildMapping(strings.NewReader(input), buildUniverse(), nil)
	require.NoError(t, err)

	rutc1 := NewRUTC("allow", "untrusted_app", "file_type", "file")
	require.Contains(t, mapping.Rules, rutc1)
	assert.Equal(t, FileLine("domain.te:1"), mapping.Rules[rutc1][0].FileLine)

	rutc2 := NewRUTC("allow", "init", "file_type", "file")
	require.Contains(t, mapping.Rules, rutc2)
	assert.Equal(t, FileLine("other.te:10"), mapping.Rules[rutc2][0].FileLine)
}

func TestBuildMapping_MultipleRulesOnOneLine(t *testing.T) {
	input := `#line 1 "domain.te"
allow untrusted_app file_type:file read; allow init file_type:file write;
`
	mapping, err := BuildMapping(strings.NewReader(input), buildUniverse(), nil)
	require.NoError(t, err)

	assert.Contains(t, mapping.Rules, NewRUTC("allow", "untrusted_app", "file_type", "file"))
	assert.Contains(t, mapping.Rules, NewRUTC("allow", "init", "file_type", "file"))
	assert.Equal(t, []string{"allow untrusted_app file_type:file read;", "allow init file_type:file write;"}, mapping.Lines["domain.te:1"], "both rules recorded on the shared source line, in order")
}

func TestBuildMapping_RuleSpanningMultipleLines(t *testing.T) {
	input := `#line 1 "domain.te"
allow untrusted_app
  file_type:file
  read;
`
	mapping, err := BuildMapping(strings.NewReader(input), buildUniverse(), nil)
	require.NoError(t, err)
	assert.Contains(t, mapping.Rules, NewRUTC("allow", "untrusted_app", "file_type", "file"))
}

func TestBuildMapping_SkipsUnsupportedRuleTypes(t *testing.T) {
	input := `#line 1 "domain.te"
type file_type;
allow untrusted_app file_type:file read;
`
	mapping, err := BuildMapping(strings.NewReader(input), buildUniverse(), nil)
	require.NoError(t, err)
	assert.Len(t, mapping.Rules, 1)
}

func TestBuildMapping_SkipsTrailingComments(t *testing.T) {
	input := `#line 1 "domain.te"
allow untrusted_app file_type:file read; # why we need this
`
	mapping, err := BuildMapping(strings.NewReader(input), buildUniverse(), nil)
	require.NoError(t, err)
	assert.Contains(t, mapping.Rules, NewRUTC("allow", "untrusted_app", "file_type", "file"))
}

func TestBuildMapping_SkipsUnparseableRuleWithoutFailing(t *testing.T) {
	input := `#line 1 "domain.te"
allow untrusted_app { file_type:file read;
allow init file_type:file write;
`
	_, err := BuildMapping(strings.NewReader(input), buildUniverse(), nil)
	assert.NoError(t, err, "malformed rules are logged and skipped, not fatal")
}
