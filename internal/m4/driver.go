// Package m4 wraps the external m4(1) binary behind a freeze-file-backed
// expander, so that repeated expansions against the same macro definitions
// don't pay the cost of re-parsing them every time.
package m4

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Driver runs m4 over a frozen set of macro definitions. It owns a scratch
// directory (managed if the Driver created it, pass-through otherwise), a
// freeze file, and a single reused scratch file.
//
// A Driver is not reentrant: concurrent callers must not share one Driver
// across goroutines without external synchronization, since Expand and Dump
// both write through the same scratch file.
type Driver struct {
	log *logrus.Logger

	tmpdir        string
	tmpdirManaged bool
	freezeFile    string
	scratchFile   string
}

// NewDriver builds a freeze file from files (plus extraDefs passed as
// "m4 -D" definitions) and returns a ready-to-use Driver. If tmpdir is
// empty, the Driver creates and owns a temporary directory, removed on
// Close; otherwise the caller retains ownership of tmpdir.
//
// Freeze-file creation failure is fatal and is returned as an error.
func NewDriver(ctx context.Context, log *logrus.Logger, files []string, extraDefs []string, tmpdir string) (*Driver, error) {
	if log == nil {
		log = logrus.New()
	}
	d := &Driver{log: log}

	if tmpdir == "" {
		dir, err := os.MkdirTemp("", "selint-m4-")
		if err != nil {
			return nil, fmt.Errorf("m4: creating scratch directory: %w", err)
		}
		d.tmpdir = dir
		d.tmpdirManaged = true
	} else {
		d.tmpdir = tmpdir
	}

	d.freezeFile = filepath.Join(d.tmpdir, "freezefile")
	d.scratchFile = filepath.Join(d.tmpdir, "scratch")

	args := []string{}
	for _, def := range extraDefs {
		args = append(args, "-D", def)
	}
	args = append(args, "-s")
	args = append(args, files...)
	args = append(args, "-F", d.freezeFile)

	cmd := exec.CommandContext(ctx, "m4", args...)
	cmd.Stdout = nil
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		d.cleanup()
		return nil, fmt.Errorf("m4: freeze file creation failed: %w: %s", err, stderr.String())
	}
	return d, nil
}

// Expand writes text to the scratch file, runs "m4 -R <freeze> <scratch>"
// and returns stdout. A per-call failure is recoverable: it is logged as a
// warning and returns ("", nil) rather than propagating the error, matching
// the expansion contract the rest of the analysis engine depends on.
func (d *Driver) Expand(ctx context.Context, text string) (string, error) {
	if err := os.WriteFile(d.scratchFile, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("m4: writing scratch file: %w", err)
	}
	out, err := d.run(ctx)
	if err != nil {
		d.log.WithError(err).Warn("m4: expansion failed, treating as no expansion")
		return "", nil
	}
	return out, nil
}

// Dump writes "dumpdef(`name')" to the scratch file, runs m4, and returns
// the dump text with its leading "name:" line stripped.
func (d *Driver) Dump(ctx context.Context, name string) (string, error) {
	text := fmt.Sprintf("dumpdef(`%s')", name)
	if err := os.WriteFile(d.scratchFile, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("m4: writing scratch file: %w", err)
	}
	out, err := d.run(ctx)
	if err != nil {
		return "", fmt.Errorf("m4: dump of %q failed: %w", name, err)
	}
	prefix := name + ":"
	if idx := strings.Index(out, "\n"); idx >= 0 && strings.HasPrefix(out, prefix) {
		return out[idx+1:], nil
	}
	return strings.TrimPrefix(out, prefix), nil
}

func (d *Driver) run(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "m4", "-R", d.freezeFile, d.scratchFile)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// Close releases the scratch file, freeze file, and (if managed) the
// temporary directory, on every exit path. It satisfies io.Closer.
func (d *Driver) Close() error {
	d.cleanup()
	return nil
}

func (d *Driver) cleanup() {
	if d.tmpdirManaged && d.tmpdir != "" {
		os.RemoveAll(d.tmpdir)
		return
	}
	if d.scratchFile != "" {
		os.Remove(d.scratchFile)
	}
	if d.freezeFile != "" {
		os.Remove(d.freezeFile)
	}
}
