package globalmacros

import (
	"context"
	"testing"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/macro"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
	"github.com/aalto-ssg/selint/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExpander serves fixed dump/expansion text for zero-arg macros, enough
// to exercise the candidate-building path without a real m4 binary.
type fakeExpander struct {
	bodies map[string]string
}

func (f *fakeExpander) Expand(ctx context.Context, text string) (string, error) {
	return f.bodies[text], nil
}

func (f *fakeExpander) Dump(ctx context.Context, name string) (string, error) {
	return f.bodies[name], nil
}

func buildPolicy(t *testing.T) *sourcepolicy.Policy {
	t.Helper()
	expander := &fakeExpander{bodies: map[string]string{
		"r_file_perms": "read getattr open",
	}}
	catalog := &macro.Catalog{Macros: map[string]*macro.Macro{
		"r_file_perms": macro.New("r_file_perms", "policy/global_macros", nil, nil, expander),
	}}

	mapping := mapper.NewMapping()
	mapping.AddExpansion(
		mapper.NewFileLine("domain.te", 3),
		"allow untrusted_app file_type:file { read getattr open };",
		map[mapper.RUTC]string{
			mapper.NewRUTC("allow", "untrusted_app", "file_type", "file"): "allow untrusted_app file_type:file { read getattr open };",
		},
	)

	return &sourcepolicy.Policy{
		Catalog: catalog,
		Mapping: mapping,
		Calls:   []usage.Call{},
	}
}

func TestRun_SuggestsFullCoverMacro(t *testing.T) {
	p := buildPolicy(t)
	out, err := Run(p, config.PluginConfig{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "r_file_perms")
}

func TestRun_RespectsMacroIgnore(t *testing.T) {
	p := buildPolicy(t)
	out, err := Run(p, config.PluginConfig{MacroIgnore: []string{"r_file_perms"}})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_RespectsRuleIgnorePaths(t *testing.T) {
	p := buildPolicy(t)
	out, err := Run(p, config.PluginConfig{RuleIgnorePaths: []string{"domain.te"}})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRun_PartialMatchSkippedWhenMacroAlreadyUsedAtLine(t *testing.T) {
	p := buildPolicy(t)
	// Drop one permission so the candidate is only a partial match, then
	// mark that source line as already having a macro call on it.
	mapping := mapper.NewMapping()
	fl := mapper.NewFileLine("domain.te", 3)
	mapping.AddExpansion(fl, "allow untrusted_app file_type:file { read getattr };",
		map[mapper.RUTC]string{
			mapper.NewRUTC("allow", "untrusted_app", "file_type", "file"): "allow untrusted_app file_type:file { read getattr };",
		})
	p.Mapping = mapping
	p.Calls = []usage.Call{{File: "domain.te", Line: 3, Macro: p.Catalog.Macros["r_file_perms"]}}

	out, err := Run(p, config.PluginConfig{})
	require.NoError(t, err)
	assert.Empty(t, out, "partial match should be suppressed when a macro is already called on that line")
}
