// Package sourcepolicy implements the orchestrator: it drives the M4
// driver, macro catalog, usage finder, policy compiler bridge and rule
// mapper in order, and exposes the assembled SourcePolicy aggregate to a
// static registry of plugins.
package sourcepolicy

import (
	"context"
	"fmt"
	"os"

	"github.com/aalto-ssg/selint/internal/m4"
	"github.com/aalto-ssg/selint/internal/macro"
	"github.com/aalto-ssg/selint/internal/mapper"
	"github.com/aalto-ssg/selint/internal/policybridge"
	"github.com/aalto-ssg/selint/internal/usage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Policy is the SourcePolicy aggregate: it owns the macro catalog, macro
// calls, the attribute/type/class tables, and the ground-rule mapping. The
// transient policy.conf is removed before Load returns.
type Policy struct {
	RunID string

	Catalog *macro.Catalog
	Calls   []usage.Call

	Attributes map[string][]string
	Types      []string
	Classes    map[string][]string

	Mapping *mapper.Mapping

	driver *m4.Driver
	log    *logrus.Logger
}

// Options configures one orchestrator run.
type Options struct {
	Files     []string // ordered, absolute paths
	ExtraDefs []string
	Log       *logrus.Logger
}

// Load runs C1 through C5 in order and returns the assembled Policy. Any
// leaf failure aborts the whole load and is wrapped with its error kind.
func Load(ctx context.Context, opts Options) (*Policy, error) {
	log := opts.Log
	if log == nil {
		log = logrus.New()
	}
	if len(opts.Files) == 0 {
		return nil, fmt.Errorf("%w: no policy files supplied", ErrConfiguration)
	}

	tmpdir, err := os.MkdirTemp("", "selint-policy-")
	if err != nil {
		return nil, fmt.Errorf("%w: creating working directory: %v", ErrConfiguration, err)
	}

	driver, err := m4.NewDriver(ctx, log, opts.Files, opts.ExtraDefs, "")
	if err != nil {
		os.RemoveAll(tmpdir)
		return nil, fmt.Errorf("%w: %v", ErrSubprocess, err)
	}

	catalog, err := macro.BuildCatalog(ctx, opts.Files, driver, log)
	if err != nil {
		driver.Close()
		os.RemoveAll(tmpdir)
		return nil, fmt.Errorf("%w: building macro catalog: %v", ErrMacro, err)
	}

	calls, err := usage.FindUsages(opts.Files, catalog, log)
	if err != nil {
		driver.Close()
		os.RemoveAll(tmpdir)
		return nil, fmt.Errorf("%w: finding macro usages: %v", ErrMacro, err)
	}

	policyConfPath, err := policybridge.Compile(ctx, opts.Files, opts.ExtraDefs, tmpdir)
	if err != nil {
		driver.Close()
		os.RemoveAll(tmpdir)
		return nil, fmt.Errorf("%w: %v", ErrSubprocess, err)
	}

	decls, err := policybridge.LoadDecls(policyConfPath)
	if err != nil {
		driver.Close()
		os.RemoveAll(tmpdir)
		return nil, fmt.Errorf("%w: loading policy declarations: %v", ErrSubprocess, err)
	}

	universe := &mapper.Universe{
		Types:      decls.Types,
		Attributes: decls.Attributes,
		Classes:    decls.Classes,
	}

	f, err := os.Open(policyConfPath)
	if err != nil {
		driver.Close()
		os.RemoveAll(tmpdir)
		return nil, fmt.Errorf("%w: reopening policy.conf: %v", ErrMapping, err)
	}
	defer f.Close()

	mapping, err := mapper.BuildMapping(f, universe, log)
	if err != nil {
		driver.Close()
		os.RemoveAll(tmpdir)
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}

	os.RemoveAll(tmpdir)

	return &Policy{
		RunID:      uuid.NewString(),
		Catalog:    catalog,
		Calls:      calls,
		Attributes: decls.Attributes,
		Types:      decls.Types,
		Classes:    decls.Classes,
		Mapping:    mapping,
		driver:     driver,
		log:        log,
	}, nil
}

// Close releases the M4 driver's scratch resources.
func (p *Policy) Close() error {
	if p.driver != nil {
		return p.driver.Close()
	}
	return nil
}

// Logger returns the logger this Policy was loaded with, for plugins that
// want to emit findings at matching verbosity.
func (p *Policy) Logger() *logrus.Logger {
	return p.log
}
