package main

import (
	"errors"
	"fmt"

	"github.com/nirosys/frameflow/graph"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDotCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dot",
		Short: "Write a pipeline in Graphviz DOT format",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeDot(cmd, v)
		},
	}
	cmd.Flags().Bool("live", false, "Render the built nodes instead of the description")
	return cmd
}

func writeDot(cmd *cobra.Command, v *viper.Viper) error {
	path := v.GetString("pipeline")
	if path == "" {
		return errors.New("a pipeline is required (-p)")
	}

	if !v.GetBool("live") {
		g, err := graph.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return g.WriteDot(cmd.OutOrStdout())
	}

	rt, err := newRuntime(v)
	if err != nil {
		return err
	}
	defer rt.Shutdown()
	p, err := rt.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return p.WriteDot(cmd.OutOrStdout())
}
