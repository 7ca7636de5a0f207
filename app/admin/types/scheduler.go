package types

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultCheckpointCron runs the sweep every 30 seconds.
const DefaultCheckpointCron = "*/30 * * * * *"

// SetupScheduler sets up the cron scheduler.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger, cronSpec string) error {
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))
	a.CronSpec = cronSpec

	_, err := a.Cron.AddFunc(cronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := a.SweepCheckpoint(rctx); err != nil {
			logger.Error(err, "checkpoint sweep failed")
		}
	})
	return err
}

// SweepCheckpoint advances the ingestion checkpoint and refreshes the queue
// depth gauges. Processors advance the checkpoint after each commit; the
// sweep covers processors running with --checkpoint=false.
func (a *App) SweepCheckpoint(ctx context.Context) error {
	slot, moved, err := a.AdminDB.AdvanceCheckpoint(ctx)
	if err != nil {
		return err
	}
	if moved {
		a.Logger.Info("Checkpoint advanced", zap.Uint64("slot", slot))
	}

	stats, err := a.AdminDB.Stats(ctx)
	if err != nil {
		return err
	}
	a.Metrics.ObserveQueueDepth("live", stats.QueuedLive)
	a.Metrics.ObserveQueueDepth("backfill", stats.QueuedBackfill)
	return nil
}

// CronLogger routes cron's logging through zap.
func CronLogger(logger *zap.Logger) cron.Logger {
	return cronLogger{logger.Sugar()}
}

type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
