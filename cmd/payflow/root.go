package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "payflow",
		Short:         "Payment enrichment worker and transaction poller",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "optional dotenv file read before the environment")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newPollOnceCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	return cmd
}

// load reads the configuration and builds the root logger from it.
func (o *rootOptions) load(out io.Writer) (*config.Config, zerolog.Logger, error) {
	bootstrap := newLogger(out, "info", "json")
	cfg, err := config.NewConfig(o.envFile, bootstrap)
	if err != nil {
		return nil, bootstrap, err
	}
	return cfg, newLogger(out, cfg.Log.Level, cfg.Log.Format), nil
}

func newLogger(out io.Writer, level, format string) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "payflow").Logger()
}
