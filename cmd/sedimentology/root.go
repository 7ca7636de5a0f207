package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/orca-so/sedimentology/app/admin"
	"github.com/orca-so/sedimentology/app/dispatcher"
	"github.com/orca-so/sedimentology/app/processor"
	"github.com/orca-so/sedimentology/app/sequencer"
	"github.com/orca-so/sedimentology/pkg/config"
	"github.com/orca-so/sedimentology/pkg/rpc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Launcher starts a role and blocks until ctx is canceled.
type Launcher interface {
	Sequencer(ctx context.Context, cfg sequencer.Config)
	Dispatcher(ctx context.Context, cfg dispatcher.Config)
	Processor(ctx context.Context, cfg processor.Config)
	Admin(ctx context.Context, cfg admin.Config)
}

type appLauncher struct{}

func (appLauncher) Sequencer(ctx context.Context, cfg sequencer.Config) {
	sequencer.Initialize(ctx, cfg).Start(ctx)
}

func (appLauncher) Dispatcher(ctx context.Context, cfg dispatcher.Config) {
	dispatcher.Initialize(ctx, cfg).Start(ctx)
}

func (appLauncher) Processor(ctx context.Context, cfg processor.Config) {
	processor.Initialize(ctx, cfg).Start(ctx)
}

func (appLauncher) Admin(ctx context.Context, cfg admin.Config) {
	admin.Initialize(ctx, cfg).Start(ctx)
}

// newRootCommand builds the CLI. Every flag can also be set through the
// environment (--rpc-url <-> RPC_URL) or a YAML file passed with --config.
func newRootCommand(l Launcher) *cobra.Command {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfgFile string
	defaults := config.Default()

	root := &cobra.Command{
		Use:           "sedimentology",
		Short:         "Whirlpool block ingestion pipeline",
		Long:          color.CyanString("sedimentology - ingest Orca Whirlpool instructions from Solana blocks into PostgreSQL"),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.StringSlice("rpc-url", defaults.RPCEndpoints, "Solana JSON-RPC endpoints, tried in order")
	pf.Int("rpc-rps", defaults.RPCRPS, "requests per second across all endpoints")
	pf.Duration("rpc-timeout", defaults.RPCTimeout, "timeout of one RPC call")
	pf.String("commitment", string(defaults.Commitment), "commitment of block reads (finalized|confirmed)")
	pf.BoolP("confirmed", "C", false, "shorthand for --commitment=confirmed")

	root.AddCommand(
		sequencerCommand(v, l, false),
		sequencerCommand(v, l, true),
		dispatcherCommand(v, l),
		processorCommand(v, l),
		adminCommand(v, l),
		versionCommand(),
	)
	return root
}

// commonConfig reads the flags every RPC-facing role shares.
func commonConfig(v *viper.Viper) (config.Common, error) {
	c := config.Default()
	c.RPCEndpoints = splitList(v.GetStringSlice("rpc-url"))
	if len(c.RPCEndpoints) == 0 {
		return c, fmt.Errorf("--rpc-url is required")
	}
	c.RPCRPS = v.GetInt("rpc-rps")
	c.RPCTimeout = v.GetDuration("rpc-timeout")
	c.MetricsListen = v.GetString("metrics-listen")

	commitment := rpc.Commitment(v.GetString("commitment"))
	if v.GetBool("confirmed") {
		commitment = rpc.Confirmed
	}
	switch commitment {
	case rpc.Finalized, rpc.Confirmed:
	default:
		return c, fmt.Errorf("unsupported commitment %q", commitment)
	}
	c.Commitment = commitment
	return c, nil
}

// splitList accepts repeated flags as well as comma separated values, the
// only form an environment variable can carry.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func banner(role string) {
	_, _ = color.New(color.FgCyan, color.Bold).Fprintf(os.Stderr, "sedimentology %s (%s)\n", role, getVersion())
}
