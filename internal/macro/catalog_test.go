package macro

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIsMacroFile(t *testing.T) {
	dir := t.TempDir()
	macroFile := filepath.Join(dir, "global_macros")
	if err := os.WriteFile(macroFile, []byte("define(`r_file_perms', `read getattr open')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	plainFile := filepath.Join(dir, "domain.te")
	if err := os.WriteFile(plainFile, []byte("allow a b:file read;\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := IsMacroFile(macroFile)
	if err != nil || !ok {
		t.Errorf("IsMacroFile(%s) = %v, %v, want true, nil", macroFile, ok, err)
	}
	ok, err = IsMacroFile(plainFile)
	if err != nil || ok {
		t.Errorf("IsMacroFile(%s) = %v, %v, want false, nil", plainFile, ok, err)
	}
}

func TestBuildCatalog_GlobalMacrosFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "global_macros")
	contents := "define(`r_file_perms', `read getattr open')\n" +
		"define(`rw_file_perms', `read write getattr open')\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := BuildCatalog(nil, []string{path}, nil, nil)
	if err != nil {
		t.Fatalf("BuildCatalog() error: %v", err)
	}
	if len(cat.Macros) != 2 {
		t.Fatalf("BuildCatalog() found %d macros, want 2", len(cat.Macros))
	}
	m, ok := cat.Macros["r_file_perms"]
	if !ok {
		t.Fatal("expected r_file_perms to be discovered")
	}
	if m.Nargs() != 0 {
		t.Errorf("r_file_perms.Nargs() = %d, want 0", m.Nargs())
	}
}

func TestBuildCatalog_TEMacrosFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "te_macros")
	contents := "# domain_rw_file(domain)\n" +
		"# Grants read/write on files of the domain's own type.\n" +
		"define(`domain_rw_file', `allow $1 self:file { read write };')\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cat, err := BuildCatalog(nil, []string{path}, nil, nil)
	if err != nil {
		t.Fatalf("BuildCatalog() error: %v", err)
	}
	m, ok := cat.Macros["domain_rw_file"]
	if !ok {
		t.Fatal("expected domain_rw_file to be discovered")
	}
	if m.Nargs() != 1 {
		t.Errorf("domain_rw_file.Nargs() = %d, want 1", m.Nargs())
	}
	if len(m.Comments) != 1 {
		t.Errorf("domain_rw_file.Comments = %v, want 1 entry", m.Comments)
	}
}

func TestBuildCatalog_SkipsNonMacroFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain.te")
	if err := os.WriteFile(path, []byte("allow a b:file read;\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := BuildCatalog(nil, []string{path}, nil, nil)
	if err != nil {
		t.Fatalf("BuildCatalog() error: %v", err)
	}
	if len(cat.Macros) != 0 {
		t.Errorf("BuildCatalog() found %d macros in a non-macro file, want 0", len(cat.Macros))
	}
}
