// Package cli builds the modmount command tree: one cobra root command
// running the engine by default, plus gen-config/show-config/storage/
// modules subcommands.
package cli

import (
	"fmt"
	"os"

	"github.com/modmount/modmount/internal/pkg/config"
	"github.com/modmount/modmount/internal/pkg/engine"
	"github.com/modmount/modmount/pkg/sylog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configFile  string
	moduleDir   string
	tempDir     string
	mountSource string
	verbose     bool
	partitions  []string
)

// cfg is the effective configuration for the current invocation: loaded
// from configFile, then overridden by any persistent flag the user set
// explicitly.
var cfg *config.File

// persistentFlags holds RootCmd's persistent flag set, captured in init so
// loadEffectiveConfig can consult it without referring to RootCmd itself
// (referring to RootCmd here would create an initialization cycle, since
// RootCmd's literal embeds loadEffectiveConfig).
var persistentFlags *pflag.FlagSet

// RootCmd is the modmount command tree's entry point.
var RootCmd = &cobra.Command{
	Use:   "modmount",
	Short: "Compose on-device module content into the live filesystem",
	Long: `modmount synchronizes enabled module content into a staging mount and
composes it over the live filesystem, preferring OverlayFS per partition and
falling back to a bind-mount magic-mount tree where OverlayFS cannot apply.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEffectiveConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Verbose {
			sylog.SetLevel(int(sylog.VerboseLevel))
		}
		return engine.Run(cfg)
	},
}

func init() {
	pf := RootCmd.PersistentFlags()
	persistentFlags = pf
	pf.StringVarP(&configFile, "config", "c", "/data/adb/modmount/modmount.toml", "path to the TOML configuration file")
	pf.StringVarP(&moduleDir, "moduledir", "m", "", "override the configured module metadata directory")
	pf.StringVarP(&tempDir, "tempdir", "t", "", "override the configured staging base directory")
	pf.StringVarP(&mountSource, "mountsource", "s", "", "override the configured overlay mount source string")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	pf.StringSliceVarP(&partitions, "partitions", "p", nil, "extra partitions beyond the built-in set")

	RootCmd.AddCommand(genConfigCmd, showConfigCmd, storageCmd, modulesCmd)
}

// loadEffectiveConfig loads configFile then layers any persistent flag the
// user explicitly set on top.
func loadEffectiveConfig() error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg = loaded

	flags := persistentFlags
	if flags.Changed("moduledir") {
		cfg.ModuleDir = moduleDir
	}
	if flags.Changed("tempdir") {
		cfg.TempDir = tempDir
	}
	if flags.Changed("mountsource") {
		cfg.MountSource = mountSource
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("partitions") {
		cfg.Partitions = partitions
	}
	return nil
}

// Execute runs the command tree, returning the process exit code:
// 0 on success, 1 on any fatal error.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "modmount:", err)
		return 1
	}
	return 0
}
