package main

import (
	"time"

	"github.com/orca-so/sedimentology/app/admin"
	"github.com/orca-so/sedimentology/app/admin/types"
	"github.com/orca-so/sedimentology/app/dispatcher"
	"github.com/orca-so/sedimentology/app/processor"
	"github.com/orca-so/sedimentology/app/processor/activity"
	"github.com/orca-so/sedimentology/app/sequencer"
	"github.com/orca-so/sedimentology/pkg/config"
	"github.com/orca-so/sedimentology/pkg/temporal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func sequencerCommand(v *viper.Viper, l Launcher, backfill bool) *cobra.Command {
	use, mode := "sequencer", pipeline.ModeForward
	short := "Admit new finalized slots into the pending queue"
	if backfill {
		use, mode = "backfill-sequencer", pipeline.ModeBackfill
		short = "Admit historical slots of a backfill campaign into the pending queue"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			common, err := commonConfig(v)
			if err != nil {
				return err
			}
			cfg := sequencer.Config{
				Common:           common,
				Mode:             mode,
				Interval:         v.GetDuration("interval"),
				MaxQueuedSlots:   v.GetInt64("max-queued-slots"),
				NewSlotsPerFetch: v.GetUint64("new-slots-per-fetch"),
				StartSlot:        v.GetUint64("start-slot"),
				StartHeight:      v.GetUint64("start-height"),
			}
			if backfill {
				cfg.MaxBlockHeight = v.GetUint64("max-block-height")
			}
			banner(use)
			l.Sequencer(cmd.Context(), cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.Duration("interval", 10*time.Second, "schedule tick")
	f.Int64("max-queued-slots", 10000, "skip a run while this many slots are pending")
	f.Uint64("new-slots-per-fetch", 200, "slots admitted per run at most")
	f.Uint64("start-slot", 0, "seed the watermark at this slot when none exists")
	f.Uint64("start-height", 0, "block height of --start-slot")
	f.String("metrics-listen", "", "address of the /metrics endpoint, disabled when empty")
	if backfill {
		f.Uint64("max-block-height", 0, "ceiling of the backfill campaign, required with --start-slot")
	}
	return cmd
}

func dispatcherCommand(v *viper.Viper, l Launcher) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "Start processing workflows for pending slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := dispatcher.Config{
				Common:           config.Default(),
				Interval:         v.GetDuration("interval"),
				ScheduleInterval: v.GetDuration("schedule-interval"),
				ProcessorMax:     v.GetInt("processor-max"),
				Parallelism:      v.GetInt("parallelism"),
			}
			cfg.MetricsListen = v.GetString("metrics-listen")
			banner("dispatcher")
			l.Dispatcher(cmd.Context(), cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.Duration("interval", 10*time.Second, "dispatch pass interval")
	f.Duration("schedule-interval", 10*time.Second, "tick of the sequencer schedules")
	f.Int("processor-max", 1000, "processing workflows in flight at most")
	f.Int("parallelism", 32, "concurrent workflow starts")
	f.String("metrics-listen", "", "address of the /metrics endpoint, disabled when empty")
	return cmd
}

func processorCommand(v *viper.Viper, l Launcher) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processor",
		Short: "Decode pending slots and commit them to the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			common, err := commonConfig(v)
			if err != nil {
				return err
			}
			cfg := processor.Config{
				Common:      common,
				Concurrency: v.GetInt("concurrency"),
				LRUSize:     v.GetInt("lru-size"),
				Checkpoint:  v.GetBool("checkpoint"),
				ProgramID:   v.GetString("program-id"),
			}
			banner("processor")
			l.Processor(cmd.Context(), cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.Int("concurrency", 10, "slots processed at once")
	f.Int("lru-size", activity.DefaultRegistryCacheSize, "entries of each address registry cache")
	f.Bool("checkpoint", true, "advance the ingestion checkpoint after each commit")
	f.String("program-id", "", "Whirlpool program id (mainnet when empty)")
	f.String("metrics-listen", "", "address of the /metrics endpoint, disabled when empty")
	return cmd
}

func adminCommand(v *viper.Viper, l Launcher) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Serve the status API and sweep the checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := admin.Config{
				Database:       config.Default().Database,
				Listen:         v.GetString("listen"),
				MetricsListen:  v.GetString("metrics-listen"),
				CheckpointCron: v.GetString("checkpoint-cron"),
			}
			banner("admin")
			l.Admin(cmd.Context(), cfg)
			return nil
		},
	}

	f := cmd.Flags()
	f.String("listen", ":3000", "address of the API")
	f.String("metrics-listen", ":9090", "address of the /metrics endpoint, disabled when empty")
	f.String("checkpoint-cron", types.DefaultCheckpointCron, "cron spec (with seconds) of the checkpoint sweep")
	return cmd
}
