// Package config loads SELint's top-level and per-plugin configuration from
// TOML, expanding shell-glob file lists and resolving ignore paths relative
// to BASE_DIR_GLOBAL.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
)

// ErrConfigRead is wrapped by errors from reading a config file.
var ErrConfigRead = fmt.Errorf("config: read error")

// ErrConfigParse is wrapped by errors from decoding a config file's TOML.
var ErrConfigParse = fmt.Errorf("config: parse error")

// Config is the top-level analyzer configuration (spec.md §6).
type Config struct {
	BaseDirGlobal string   `toml:"base_dir_global"`
	PolicyDirs    []string `toml:"policy_dirs"`
	TEFilesDirs   []string `toml:"tefiles_dirs"`

	PolicyFiles           []string `toml:"policy_files"`
	PolicyFilesStaticPre  []string `toml:"policyfiles_static_pre"`
	PolicyFilesStaticTE   []string `toml:"policyfiles_static_te"`
	PolicyFilesStaticPost []string `toml:"policyfiles_static_post"`

	ExtraDefs []string `toml:"extra_defs"`
	Verbosity int      `toml:"verbosity"`

	// EnableExpensiveReconstruction gates TE-macro reconstruction (design
	// note i): when false, cmd/selint leaves the te_macros plugin out of the
	// run entirely, so an operator can skip that costly pass on large trees.
	EnableExpensiveReconstruction bool `toml:"enable_expensive_reconstruction"`
	// MapNeverallows is decoded from map_neverallows (design note iii) and
	// defaults to true, matching the reference implementation's
	// map_neverallows=True. Nothing reads it: the mapper always includes
	// neverallow rules in the mapped rule set.
	MapNeverallows bool `toml:"map_neverallows"`

	Plugins map[string]PluginConfig `toml:"plugin"`
}

// RequiredPerms is the schema decided for design note (ii):
// class -> (at-least-one-of, required, {extra-class -> required}).
type RequiredPerms struct {
	AtLeastOneOf []string            `toml:"at_least_one_of"`
	Required     []string            `toml:"required"`
	Extra        map[string][]string `toml:"extra"`
}

// PluginConfig carries the per-plugin keys from spec.md §6. Not every
// plugin uses every field.
type PluginConfig struct {
	RuleIgnorePaths     []string `toml:"rule_ignore_paths"`
	SupportedRuleTypes  []string `toml:"supported_rule_types"`
	IgnoredRules        []string `toml:"ignored_rules"`
	UsagesIgnore        []string `toml:"usages_ignore"`
	SuggestionThreshold float64  `toml:"suggestion_threshold"`
	SuggestionMaxNo     int      `toml:"suggestion_max_no"`

	Types          map[string][]string `toml:"types"`
	Perms          map[string][]string `toml:"perms"`
	Score          map[string]float64  `toml:"score"`
	ScoreRisk      map[string]float64  `toml:"score_risk"`
	ScoreTrust     map[string]float64  `toml:"score_trust"`
	Capabilities   map[string]float64  `toml:"capabilities"`
	MaximumScore   float64             `toml:"maximum_score"`
	ScoreThreshold float64             `toml:"score_threshold"`
	ScoringSystem  string              `toml:"scoring_system"`
	ReverseSort    bool                `toml:"reverse_sort"`

	MacroIgnore []string `toml:"macro_ignore"`
	Neverallows []string `toml:"neverallows"`

	RulesTuples   [][]string               `toml:"rules_tuples"`
	DebugTypes    []string                 `toml:"debug_types"`
	RequiredPerms map[string]RequiredPerms `toml:"required_perms"`
}

// Default returns a Config with the spec-mandated defaults applied.
func Default() Config {
	return Config{
		BaseDirGlobal:                 "~/workspace",
		EnableExpensiveReconstruction: true,
		MapNeverallows:                true,
		Plugins:                       make(map[string]PluginConfig),
	}
}

// Load reads and decodes a TOML config file, applying defaults for any
// field the file doesn't set.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigRead, path, err)
	}
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, path, err)
	}
	return &cfg, nil
}

// ResolvedFileList expands BASE_DIR_GLOBAL against the PolicyFilesStatic*
// groups (supporting shell globs) and appends every .te file discovered
// under TEFilesDirs, in the canonical order: pre, then TE files, then any
// statically-listed TE files, then post, then the glob-expanded
// PolicyFiles.
func (c *Config) ResolvedFileList() ([]string, error) {
	base, err := expandHome(c.BaseDirGlobal)
	if err != nil {
		return nil, err
	}

	var out []string
	appendGlobs := func(patterns []string) error {
		for _, p := range patterns {
			matches, err := doublestar.Glob(os.DirFS(base), p)
			if err != nil {
				return fmt.Errorf("config: expanding glob %q: %w", p, err)
			}
			if len(matches) == 0 {
				// No match is not fatal here; a statically-listed file
				// might be a literal path rather than a glob.
				out = append(out, filepath.Join(base, p))
				continue
			}
			for _, m := range matches {
				out = append(out, filepath.Join(base, m))
			}
		}
		return nil
	}

	if err := appendGlobs(c.PolicyFilesStaticPre); err != nil {
		return nil, err
	}
	for _, dir := range c.TEFilesDirs {
		teFiles, err := findTEFiles(filepath.Join(base, dir))
		if err != nil {
			return nil, err
		}
		out = append(out, teFiles...)
	}
	if err := appendGlobs(c.PolicyFilesStaticTE); err != nil {
		return nil, err
	}
	if err := appendGlobs(c.PolicyFilesStaticPost); err != nil {
		return nil, err
	}
	if err := appendGlobs(c.PolicyFiles); err != nil {
		return nil, err
	}
	return out, nil
}

func findTEFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".te") {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("config: scanning %s for .te files: %w", dir, err)
	}
	return out, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// IgnorePaths resolves a plugin's RuleIgnorePaths to absolute paths rooted
// at BaseDirGlobal.
func (c *Config) IgnorePaths(p PluginConfig) ([]string, error) {
	base, err := expandHome(c.BaseDirGlobal)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(p.RuleIgnorePaths))
	for _, ip := range p.RuleIgnorePaths {
		out = append(out, filepath.Join(base, ip))
	}
	return out, nil
}
