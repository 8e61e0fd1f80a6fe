package sourcepolicy

import (
	"sync"

	"github.com/aalto-ssg/selint/internal/config"
)

// Finding is a single reportable result from a plugin.
type Finding struct {
	Plugin string
	Text   string
}

// Plugin is the (name, required-rule-types, run-fn) shape the design notes
// describe: the host enumerates plugins at configuration time and never
// discovers code at runtime.
type Plugin struct {
	Name              string
	RequiredRuleTypes []string
	Run               func(p *Policy, cfg config.PluginConfig) ([]string, error)
}

// Registry is a static, ordered list of plugins.
type Registry struct {
	plugins []Plugin
}

// NewRegistry builds a Registry from an explicit plugin list.
func NewRegistry(plugins ...Plugin) *Registry {
	return &Registry{plugins: append([]Plugin{}, plugins...)}
}

// Run invokes every registered plugin against p, isolating failures: a
// panicking or erroring plugin is logged and skipped, never preventing the
// rest from running. The mapping is read-only by this point, so plugins run
// concurrently; results are reassembled in registration order regardless of
// completion order, keeping output deterministic.
func (r *Registry) Run(p *Policy, cfg *config.Config) []Finding {
	perPlugin := make([][]Finding, len(r.plugins))
	var wg sync.WaitGroup
	for i, plugin := range r.plugins {
		wg.Add(1)
		go func(i int, plugin Plugin) {
			defer wg.Done()
			pluginCfg := cfg.Plugins[plugin.Name]
			perPlugin[i] = r.runOne(p, plugin, pluginCfg)
		}(i, plugin)
	}
	wg.Wait()

	var findings []Finding
	for _, fs := range perPlugin {
		findings = append(findings, fs...)
	}
	return findings
}

func (r *Registry) runOne(p *Policy, plugin Plugin, cfg config.PluginConfig) (out []Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			p.Logger().WithField("plugin", plugin.Name).
				Errorf("%v: plugin panicked: %v", ErrPlugin, rec)
		}
	}()

	texts, err := plugin.Run(p, cfg)
	if err != nil {
		p.Logger().WithField("plugin", plugin.Name).
			Errorf("%v: %v", ErrPlugin, err)
		return nil
	}
	for _, t := range texts {
		out = append(out, Finding{Plugin: plugin.Name, Text: t})
	}
	return out
}

