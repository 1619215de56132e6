package cli

import (
	"fmt"
	"os"

	"github.com/modmount/modmount/internal/pkg/config"
	"github.com/spf13/cobra"
)

var genConfigOutput string

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Write a fully-populated default configuration file",
	Long:  `gen-config writes a commented default TOML configuration, one key per line, to the path given by -o.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if genConfigOutput == "" {
			return fmt.Errorf("gen-config requires -o <path>")
		}
		return config.WriteDefault(genConfigOutput)
	},
}

func init() {
	genConfigCmd.Flags().StringVarP(&genConfigOutput, "output", "o", "", "path to write the generated configuration to")
}

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Print the effective configuration as TOML",
	Long:  `show-config loads the configuration file plus any CLI overrides and prints the result as TOML to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}
