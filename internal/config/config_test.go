package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.BaseDirGlobal != "~/workspace" {
		t.Errorf("BaseDirGlobal = %q, want ~/workspace", cfg.BaseDirGlobal)
	}
	if !cfg.EnableExpensiveReconstruction {
		t.Error("EnableExpensiveReconstruction should default to true")
	}
	if !cfg.MapNeverallows {
		t.Error("MapNeverallows should default to true")
	}
	if cfg.Plugins == nil {
		t.Error("Plugins map should be initialized, not nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if !errors.Is(err, ErrConfigRead) {
		t.Errorf("Load() error = %v, want wrapping ErrConfigRead", err)
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("this is not valid = = toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrConfigParse) {
		t.Errorf("Load() error = %v, want wrapping ErrConfigParse", err)
	}
}

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selint.toml")
	contents := `
base_dir_global = "/tmp/workspace"
verbosity = 2
enable_expensive_reconstruction = false

[plugin.risky_rules]
scoring_system = "risk"
maximum_score = 100.0
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.BaseDirGlobal != "/tmp/workspace" {
		t.Errorf("BaseDirGlobal = %q, want /tmp/workspace", cfg.BaseDirGlobal)
	}
	if cfg.EnableExpensiveReconstruction {
		t.Error("EnableExpensiveReconstruction should have been overridden to false")
	}
	if !cfg.MapNeverallows {
		t.Error("MapNeverallows should still default to true when unset in the file")
	}
	plugin, ok := cfg.Plugins["risky_rules"]
	if !ok {
		t.Fatal("expected plugin.risky_rules section to decode")
	}
	if plugin.ScoringSystem != "risk" || plugin.MaximumScore != 100.0 {
		t.Errorf("risky_rules plugin config = %+v", plugin)
	}
}

func TestResolvedFileList_OrderAndGlobs(t *testing.T) {
	base := t.TempDir()
	mustWrite := func(rel string) {
		full := filepath.Join(base, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte("# te\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("pre/security_classes")
	mustWrite("te/domain.te")
	mustWrite("te/sub/other.te")
	mustWrite("post/genfs_contexts")

	cfg := &Config{
		BaseDirGlobal:         base,
		PolicyFilesStaticPre:  []string{"pre/security_classes"},
		TEFilesDirs:           []string{"te"},
		PolicyFilesStaticPost: []string{"post/genfs_contexts"},
	}

	files, err := cfg.ResolvedFileList()
	if err != nil {
		t.Fatalf("ResolvedFileList() error: %v", err)
	}
	if len(files) != 4 {
		t.Fatalf("ResolvedFileList() returned %d files, want 4: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "security_classes" {
		t.Errorf("expected pre files first, got %v", files[0])
	}
	if filepath.Base(files[len(files)-1]) != "genfs_contexts" {
		t.Errorf("expected post files last, got %v", files[len(files)-1])
	}
}

func TestIgnorePaths_ResolvesAgainstBase(t *testing.T) {
	cfg := &Config{BaseDirGlobal: "/policy/root"}
	resolved, err := cfg.IgnorePaths(PluginConfig{RuleIgnorePaths: []string{"external/vendor", "prebuilts"}})
	if err != nil {
		t.Fatalf("IgnorePaths() error: %v", err)
	}
	want := []string{"/policy/root/external/vendor", "/policy/root/prebuilts"}
	if len(resolved) != len(want) {
		t.Fatalf("IgnorePaths() = %v, want %v", resolved, want)
	}
	for i := range want {
		if resolved[i] != want[i] {
			t.Errorf("IgnorePaths()[%d] = %q, want %q", i, resolved[i], want[i])
		}
	}
}
