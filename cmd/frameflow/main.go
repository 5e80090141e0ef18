// frameflow runs pipeline descriptions built from the built-in node types.
//
// Usage:
//
//	frameflow run -p <pipeline.json> [--steps N] [--metrics]
//	frameflow dot -p <pipeline.json> [--live]
//
// Every flag can also be set in a config file (--config) or through a
// FRAMEFLOW_ prefixed environment variable, e.g. FRAMEFLOW_STEPS=10.
package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "frameflow",
		Short: "Run frame streaming pipelines",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cmd)
		},
	}
	root.Version = version

	f := root.PersistentFlags()
	f.String("config", "", "Config file (YAML, TOML or JSON)")
	f.StringP("pipeline", "p", "", "Pipeline description (JSON)")
	f.String("log-level", "warn", "Log level")

	root.AddCommand(newRunCmd(v))
	root.AddCommand(newDotCmd(v))
	return root
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	v.SetEnvPrefix("FRAMEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", file, err)
		}
	}

	level, err := log.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(level)
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
