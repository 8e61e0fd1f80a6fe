package macro

import (
	"context"
	"testing"
)

type fakeExpander struct {
	bodies map[string]string
}

func (f *fakeExpander) Expand(ctx context.Context, text string) (string, error) {
	return f.bodies[text], nil
}

func (f *fakeExpander) Dump(ctx context.Context, name string) (string, error) {
	return f.bodies[name], nil
}

func TestMacro_ZeroArgExpandIsCachedAfterFirstCall(t *testing.T) {
	calls := 0
	expander := &countingExpander{fakeExpander: fakeExpander{bodies: map[string]string{"r_file_perms": "read getattr open"}}, calls: &calls}
	m := New("r_file_perms", "global_macros", nil, nil, expander)

	got, err := m.Expand(context.Background(), nil)
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if got != "read getattr open" {
		t.Errorf("Expand() = %q", got)
	}
	if _, err := m.Expand(context.Background(), nil); err != nil {
		t.Fatalf("second Expand() error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expander.Expand called %d times, want 1 (cached)", calls)
	}
}

type countingExpander struct {
	fakeExpander
	calls *int
}

func (c *countingExpander) Expand(ctx context.Context, text string) (string, error) {
	*c.calls++
	return c.fakeExpander.Expand(ctx, text)
}

func TestMacro_DumpFormWithNilArgs(t *testing.T) {
	expander := &fakeExpander{bodies: map[string]string{
		"domain_rw_file": "allow $1 self:file { read write };",
	}}
	m := New("domain_rw_file", "te_macros", []string{"domain"}, nil, expander)

	got, err := m.Expand(context.Background(), nil)
	if err != nil {
		t.Fatalf("Expand(nil) error: %v", err)
	}
	if got != "allow $1 self:file { read write };" {
		t.Errorf("Expand(nil) = %q, want the raw dump form", got)
	}
}

func TestMacro_ArityMismatch(t *testing.T) {
	m := New("domain_rw_file", "te_macros", []string{"domain"}, nil, &fakeExpander{})
	_, err := m.Expand(context.Background(), []string{"a", "b"})
	if err != ErrArityMismatch {
		t.Errorf("Expand() error = %v, want ErrArityMismatch", err)
	}
}

func TestMacro_StaticMacroRendersFromTemplate(t *testing.T) {
	expander := &fakeExpander{bodies: map[string]string{
		"domain_rw_file":                "allow $1 self:file { read write };",
		"domain_rw_file(@@ARG0@@)":      "allow @@ARG0@@ self:file { read write };",
		"domain_rw_file(untrusted_app)": "allow untrusted_app self:file { read write };",
	}}
	m := New("domain_rw_file", "te_macros", []string{"domain"}, nil, expander)

	got, err := m.Expand(context.Background(), []string{"untrusted_app"})
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	want := "allow untrusted_app self:file { read write };"
	if got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func TestMacro_DynamicMacroBypassesTemplate(t *testing.T) {
	expander := &fakeExpander{bodies: map[string]string{
		"pick_type":    "ifelse($1, `a', `type_a', `type_b')",
		"pick_type(x)": "type_b",
	}}
	m := New("pick_type", "te_macros", []string{"arg"}, nil, expander)

	got, err := m.Expand(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if got != "type_b" {
		t.Errorf("Expand() = %q, want type_b (dynamic macros bypass the template cache)", got)
	}
}
