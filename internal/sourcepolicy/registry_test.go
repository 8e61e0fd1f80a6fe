package sourcepolicy

import (
	"io"
	"testing"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testPolicy() *Policy {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Policy{log: log}
}

func TestRegistry_RunCollectsFindingsFromEveryPlugin(t *testing.T) {
	p := testPolicy()
	reg := NewRegistry(
		Plugin{Name: "a", Run: func(p *Policy, cfg config.PluginConfig) ([]string, error) {
			return []string{"finding-a1", "finding-a2"}, nil
		}},
		Plugin{Name: "b", Run: func(p *Policy, cfg config.PluginConfig) ([]string, error) {
			return []string{"finding-b1"}, nil
		}},
	)
	findings := reg.Run(p, &config.Config{Plugins: map[string]config.PluginConfig{}})
	assert.Len(t, findings, 3)
}

func TestRegistry_RunSkipsErroringPlugin(t *testing.T) {
	p := testPolicy()
	reg := NewRegistry(
		Plugin{Name: "broken", Run: func(p *Policy, cfg config.PluginConfig) ([]string, error) {
			return nil, assert.AnError
		}},
		Plugin{Name: "ok", Run: func(p *Policy, cfg config.PluginConfig) ([]string, error) {
			return []string{"fine"}, nil
		}},
	)
	findings := reg.Run(p, &config.Config{Plugins: map[string]config.PluginConfig{}})
	assert.Len(t, findings, 1)
	assert.Equal(t, "ok", findings[0].Plugin)
}

func TestRegistry_RunIsolatesPanickingPlugin(t *testing.T) {
	p := testPolicy()
	reg := NewRegistry(
		Plugin{Name: "panicky", Run: func(p *Policy, cfg config.PluginConfig) ([]string, error) {
			panic("boom")
		}},
		Plugin{Name: "survivor", Run: func(p *Policy, cfg config.PluginConfig) ([]string, error) {
			return []string{"still here"}, nil
		}},
	)
	assert.NotPanics(t, func() {
		findings := reg.Run(p, &config.Config{Plugins: map[string]config.PluginConfig{}})
		assert.Len(t, findings, 1)
		assert.Equal(t, "survivor", findings[0].Plugin)
	})
}

func TestRegistry_RunPassesPerPluginConfig(t *testing.T) {
	p := testPolicy()
	var seen config.PluginConfig
	reg := NewRegistry(
		Plugin{Name: "risky_rules", Run: func(p *Policy, cfg config.PluginConfig) ([]string, error) {
			seen = cfg
			return nil, nil
		}},
	)
	reg.Run(p, &config.Config{Plugins: map[string]config.PluginConfig{
		"risky_rules": {ScoringSystem: "risk"},
	}})
	assert.Equal(t, "risk", seen.ScoringSystem)
}
