package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-throttle/config"
	"github.com/KOMKZ/go-yogan-throttle/di"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// flag name -> configuration key; only flags the user set override files and env
var flagBindings = map[string]string{
	"redis-addr":    "redis.addr",
	"log-level":     "logger.level",
	"addr":          "server.addr",
	"base-limit":    "limiter.base_limit",
	"max-limit":     "limiter.max_limit",
	"metrics":       "telemetry.metrics.enabled",
	"telemetry":     "telemetry.enabled",
	"otlp-endpoint": "telemetry.exporter.endpoint",
}

type rootOptions struct {
	configPath string
	configFile string
	envPrefix  string
	version    string
}

func (o *rootOptions) containerOptions(flags *pflag.FlagSet) di.Options {
	source := config.NewFlagSource(flags, 100)
	for name, key := range flagBindings {
		if flags.Lookup(name) != nil {
			source.Bind(name, key)
		}
	}
	return di.Options{
		ConfigPath: o.configPath,
		ConfigFile: o.configFile,
		EnvPrefix:  o.envPrefix,
		Flags:      source,
	}
}

// NewRootCommand throttled root command with serve and status subcommands
func NewRootCommand(version string) *cobra.Command {
	opts := &rootOptions{version: version}

	root := &cobra.Command{
		Use:           "throttled",
		Short:         "Adaptive Redis pool and per-identity rate limiter",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config-path", "./configs", "directory holding config.yaml and <env>.yaml")
	pf.StringVarP(&opts.configFile, "config", "c", "", "explicit config file (overrides --config-path files)")
	pf.StringVar(&opts.envPrefix, "env-prefix", "THROTTLE", "environment variable prefix")
	pf.String("redis-addr", "", "redis address (redis.addr)")
	pf.String("log-level", "", "log level (logger.level)")
	pf.Int("base-limit", 0, "requests per window for a new identity (limiter.base_limit)")
	pf.Int("max-limit", 0, "requests per window for the heaviest identities (limiter.max_limit)")

	root.AddCommand(newServeCommand(opts), newStatusCommand(opts))
	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := New(opts.containerOptions(cmd.Flags())).WithVersion(opts.version)
			return app.Run()
		},
	}

	f := cmd.Flags()
	f.String("addr", "", "listen address (server.addr)")
	f.Bool("telemetry", false, "enable tracing (telemetry.enabled)")
	f.Bool("metrics", false, "enable metrics export (telemetry.metrics.enabled)")
	f.String("otlp-endpoint", "", "otlp collector endpoint (telemetry.exporter.endpoint)")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var output string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status <identity>",
		Short: "Print the current quota of an identity without consuming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "text" && output != "json" {
				return fmt.Errorf("unknown output format %q", output)
			}

			container := di.NewContainer(opts.containerOptions(cmd.Flags()))
			defer func() { _ = container.Shutdown(context.Background()) }()
			if err := container.Setup(); err != nil {
				return err
			}
			lim, err := container.Limiter()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			status, err := lim.Status(ctx, args[0])
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			_, err = fmt.Fprintf(out, "identity:  %s\nlimit:     %d\ncount:     %d\nremaining: %d\nreset_at:  %s\nretry_in:  %s\n",
				status.Identity, status.Limit, status.Count, status.Remaining,
				status.ResetAt.UTC().Format(time.RFC3339), status.RetryAfter)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "redis timeout")
	return cmd
}
