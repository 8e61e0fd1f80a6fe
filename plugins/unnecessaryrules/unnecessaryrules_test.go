package unnecessaryrules

import (
	"testing"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addRule(mapping *mapper.Mapping, file string, line int, rule string) {
	blocks, err := mapper.Tokenize(rule)
	if err != nil {
		panic(err)
	}
	rutc := mapper.NewRUTC(blocks[0], blocks[1], blocks[2], blocks[3])
	mapping.AddExpansion(mapper.NewFileLine(file, line), rule, map[mapper.RUTC]string{rutc: rule})
}

func TestCheckTuples_ReportsMissingCompanion(t *testing.T) {
	mapping := mapper.NewMapping()
	addRule(mapping, "domain.te", 1, "allow untrusted_app file_type:file open;")
	p := &sourcepolicy.Policy{Mapping: mapping}

	cfg := config.PluginConfig{
		RulesTuples: [][]string{
			{"allow untrusted_app file_type:file open;", "allow untrusted_app file_type:file read;"},
		},
	}
	out := checkTuples(p, cfg)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "missing associated rule")
}

func TestCheckTuples_NoReportWhenCompanionPresent(t *testing.T) {
	mapping := mapper.NewMapping()
	addRule(mapping, "domain.te", 1, "allow untrusted_app file_type:file open;")
	addRule(mapping, "domain.te", 2, "allow untrusted_app file_type:file read;")
	p := &sourcepolicy.Policy{Mapping: mapping}

	cfg := config.PluginConfig{
		RulesTuples: [][]string{
			{"allow untrusted_app file_type:file open;", "allow untrusted_app file_type:file read;"},
		},
	}
	out := checkTuples(p, cfg)
	assert.Empty(t, out)
}

func TestCheckTuples_PlaceholderTupleSubstitutesArgs(t *testing.T) {
	mapping := mapper.NewMapping()
	addRule(mapping, "domain.te", 1, "allow untrusted_app file_type:file open;")
	p := &sourcepolicy.Policy{Mapping: mapping}

	cfg := config.PluginConfig{
		RulesTuples: [][]string{
			{"allow @@ARG0@@ file_type:file open;", "allow @@ARG0@@ file_type:file getattr;"},
		},
	}
	out := checkTuples(p, cfg)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "untrusted_app")
	assert.Contains(t, out[0], "getattr")
}

func TestCheckDebugTypes_ReportsMatchingRUTC(t *testing.T) {
	mapping := mapper.NewMapping()
	addRule(mapping, "domain.te", 1, "allow untrusted_app debug_type:file read;")
	p := &sourcepolicy.Policy{Mapping: mapping}

	out := checkDebugTypes(p, config.PluginConfig{DebugTypes: []string{"debug_type"}})
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "debug_type")
}

func TestCheckRequiredPerms_FlagsShortfallWithoutCompanionClass(t *testing.T) {
	mapping := mapper.NewMapping()
	addRule(mapping, "domain.te", 1, "allow untrusted_app file_type:file open;")
	p := &sourcepolicy.Policy{Mapping: mapping}

	cfg := config.PluginConfig{
		RequiredPerms: map[string]config.RequiredPerms{
			"file": {
				AtLeastOneOf: []string{"open"},
				Required:     []string{"open", "getattr"},
			},
		},
	}
	out := checkRequiredPerms(p, cfg)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "getattr")
}

func TestCheckRequiredPerms_SatisfiedByCompanionClass(t *testing.T) {
	mapping := mapper.NewMapping()
	addRule(mapping, "domain.te", 1, "allow untrusted_app file_type:file open;")
	addRule(mapping, "domain.te", 2, "allow untrusted_app file_type:dir search;")
	p := &sourcepolicy.Policy{Mapping: mapping}

	cfg := config.PluginConfig{
		RequiredPerms: map[string]config.RequiredPerms{
			"file": {
				AtLeastOneOf: []string{"open"},
				Required:     []string{"open", "getattr"},
				Extra:        map[string][]string{"dir": {"search"}},
			},
		},
	}
	out := checkRequiredPerms(p, cfg)
	assert.Empty(t, out)
}

func TestRuleSatisfied_AVPermSuperset(t *testing.T) {
	mapping := mapper.NewMapping()
	addRule(mapping, "domain.te", 1, "allow untrusted_app file_type:file { read write };")
	p := &sourcepolicy.Policy{Mapping: mapping}

	assert.True(t, ruleSatisfied(p, "allow untrusted_app file_type:file read;"))
	assert.False(t, ruleSatisfied(p, "allow untrusted_app file_type:file execute;"))
}
