package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aalto-ssg/selint/internal/config"
	"github.com/aalto-ssg/selint/internal/report"
	"github.com/aalto-ssg/selint/internal/sourcepolicy"
	"github.com/aalto-ssg/selint/plugins/globalmacros"
	"github.com/aalto-ssg/selint/plugins/riskyrules"
	"github.com/aalto-ssg/selint/plugins/temacros"
	"github.com/aalto-ssg/selint/plugins/unnecessaryrules"
	"github.com/aalto-ssg/selint/plugins/userneverallows"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "selint",
		Short: "Analyze SEAndroid source policy trees",
		Long: `selint loads a SEAndroid source policy tree, expands its M4 macros,
builds the ground-rule mapping, and runs a set of analysis plugins over it:
risky rule scoring, permission-macro and TE-macro suggestions, and
user-defined neverallow verification.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML configuration file (required)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose progress output")
	rootCmd.MarkPersistentFlagRequired("config")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run every analysis plugin",
		Long:  "Load the policy tree and run the full plugin registry over it",
		Run:   runPlugins(allPlugins),
	}

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "Score rules for risk or trust",
		Long:  "Run only the risky_rules plugin",
		Run:   runPlugins(func(cfg *config.Config) []sourcepolicy.Plugin { return []sourcepolicy.Plugin{riskyrules.Register()} }),
	}

	suggestCmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest macro usages",
		Long:  "Run the global_macros and te_macros suggesters",
		Run: runPlugins(func(cfg *config.Config) []sourcepolicy.Plugin {
			plugins := []sourcepolicy.Plugin{globalmacros.Register()}
			if cfg.EnableExpensiveReconstruction {
				plugins = append(plugins, temacros.Register())
			} else if verbose {
				fmt.Println("ℹ skipping te_macros reconstruction: enable_expensive_reconstruction is false")
			}
			return plugins
		}),
	}

	neverallowCmd := &cobra.Command{
		Use:   "neverallow",
		Short: "Check user-defined neverallow constraints",
		Long:  "Run only the user_neverallows plugin",
		Run: runPlugins(func(cfg *config.Config) []sourcepolicy.Plugin {
			return []sourcepolicy.Plugin{userneverallows.Register()}
		}),
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("selint version 0.1.0")
		},
	}

	rootCmd.AddCommand(analyzeCmd, scoreCmd, suggestCmd, neverallowCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// allPlugins is the full static registry, enumerated here rather than
// discovered at runtime.
func allPlugins(cfg *config.Config) []sourcepolicy.Plugin {
	plugins := []sourcepolicy.Plugin{
		riskyrules.Register(),
		globalmacros.Register(),
		userneverallows.Register(),
		unnecessaryrules.Register(),
	}
	if cfg.EnableExpensiveReconstruction {
		plugins = append(plugins, temacros.Register())
	} else if verbose {
		fmt.Println("ℹ skipping te_macros reconstruction: enable_expensive_reconstruction is false")
	}
	return plugins
}

// runPlugins builds a cobra Run closure that loads config and policy, runs
// the plugins selected by pick, and renders the findings to stdout.
func runPlugins(pick func(*config.Config) []sourcepolicy.Plugin) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		log := logrus.New()

		if verbose {
			fmt.Printf("⟳ Loading configuration from %s...\n", configPath)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Configuration error: %v\n", err)
			os.Exit(1)
		}
		setLogLevel(log, cfg.Verbosity)

		files, err := cfg.ResolvedFileList()
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Error resolving policy file list: %v\n", err)
			os.Exit(1)
		}
		if verbose {
			fmt.Printf("✓ Resolved %d policy files\n", len(files))
			fmt.Println("⟳ Expanding macros and building the rule mapping...")
		}

		ctx := context.Background()
		policy, err := sourcepolicy.Load(ctx, sourcepolicy.Options{
			Files:     files,
			ExtraDefs: cfg.ExtraDefs,
			Log:       log,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Failed to load policy: %v\n", err)
			os.Exit(1)
		}
		defer policy.Close()
		if verbose {
			fmt.Printf("✓ Loaded policy (run %s): %d rule groups\n", policy.RunID, len(policy.Mapping.Rules))
			fmt.Println("⟳ Running plugins...")
		}

		registry := sourcepolicy.NewRegistry(pick(cfg)...)
		findings := registry.Run(policy, cfg)
		if verbose {
			fmt.Printf("✓ %s\n\n", report.Summary(findings))
		}

		if err := report.Write(os.Stdout, findings); err != nil {
			fmt.Fprintf(os.Stderr, "✗ Failed to render report: %v\n", err)
			os.Exit(1)
		}
	}
}

func setLogLevel(log *logrus.Logger, verbosity int) {
	switch {
	case verbosity <= 1:
		log.SetLevel(logrus.ErrorLevel)
	case verbosity == 2:
		log.SetLevel(logrus.WarnLevel)
	case verbosity == 3:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.DebugLevel)
	}
}
