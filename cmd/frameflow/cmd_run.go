package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/nirosys/frameflow"
	"github.com/nirosys/frameflow/nodes"

	log "github.com/sirupsen/logrus"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Step a pipeline and print one line per record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, v)
		},
	}
	f := cmd.Flags()
	f.Int("steps", 0, "Stop after this many records (0 runs until the stream ends)")
	f.Bool("metrics", false, "Log stream and streamer metrics when done")
	f.String("mode", "process_all", "Default streaming mode (process_all, newest_only)")
	f.Int("depth", 1, "Default hand-off depth of streamers")
	return cmd
}

func runtimeConfig(v *viper.Viper) (*frameflow.Config, error) {
	cfg := *frameflow.DefaultConfig
	switch strings.ToLower(v.GetString("mode")) {
	case "", "process_all":
		cfg.Streamer.Mode = frameflow.ModeProcessAll
	case "newest_only":
		cfg.Streamer.Mode = frameflow.ModeNewestOnly
	default:
		return nil, fmt.Errorf("unknown mode '%s'", v.GetString("mode"))
	}
	if v.IsSet("depth") {
		cfg.Streamer.Depth = v.GetInt("depth")
	}
	return &cfg, nil
}

func newRuntime(v *viper.Viper) (*frameflow.Runtime, error) {
	cfg, err := runtimeConfig(v)
	if err != nil {
		return nil, err
	}
	rt, err := frameflow.NewRuntime(cfg)
	if err != nil {
		return nil, err
	}
	if err := nodes.Register(rt); err != nil {
		return nil, err
	}
	return rt, nil
}

func runPipeline(cmd *cobra.Command, v *viper.Viper) error {
	path := v.GetString("pipeline")
	if path == "" {
		return errors.New("a pipeline is required (-p)")
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
	ds, err := p.NewDataStream()
	if err != nil {
		return err
	}
	defer ds.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	limit := v.GetInt("steps")
	steps := 0
	for rec, err := range ds.All(ctx) {
		if errors.Is(err, context.Canceled) {
			log.WithField("op", "frameflow:cli.run").Info("interrupted")
			break
		} else if err != nil {
			return err
		}

		vals := make([]string, len(rec))
		for i, u := range rec {
			vals[i] = u.String()
		}
		fmt.Fprintf(out, "%d: %s\n", steps, strings.Join(vals, " "))

		steps++
		if limit > 0 && steps >= limit {
			break
		}
	}

	if v.GetBool("metrics") {
		rt.EmitMetrics(ds)
	}
	return nil
}
