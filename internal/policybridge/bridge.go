// Package policybridge runs m4 over the ordered policy file list to produce
// a policy.conf, and loads the declarations checkpolicy needs (attributes,
// types, classes) out of the result.
package policybridge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Compile runs "m4 -D<defs> -s <files...>" and writes stdout to a
// policy.conf file under dir, returning its path. Compile failure is fatal
// per the component design: the caller should treat a non-nil error as
// unrecoverable.
func Compile(ctx context.Context, files []string, extraDefs []string, dir string) (string, error) {
	args := []string{}
	for _, def := range extraDefs {
		args = append(args, "-D", def)
	}
	args = append(args, "-s")
	args = append(args, files...)

	cmd := exec.CommandContext(ctx, "m4", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("policybridge: m4 compile failed: %w: %s", err, stderr.String())
	}

	out := dir + "/policy.conf"
	if err := os.WriteFile(out, stdout.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("policybridge: writing policy.conf: %w", err)
	}
	return out, nil
}
