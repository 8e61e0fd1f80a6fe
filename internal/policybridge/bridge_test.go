package policybridge

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// withEmptyPATH forces exec.LookPath to fail to find m4, exercising Compile's
// failure path without depending on whether m4 happens to be installed.
func withEmptyPATH(t *testing.T) {
	t.Helper()
	old, had := os.LookupEnv("PATH")
	os.Setenv("PATH", t.TempDir())
	t.Cleanup(func() {
		if had {
			os.Setenv("PATH", old)
		} else {
			os.Unsetenv("PATH")
		}
	})
}

func TestCompile_MissingM4Binary(t *testing.T) {
	withEmptyPATH(t)
	dir := t.TempDir()

	_, err := Compile(context.Background(), []string{"domain.te"}, nil, dir)
	assert.Error(t, err)
}
