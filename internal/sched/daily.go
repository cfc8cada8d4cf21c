package sched

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleSweeper drops all session mappings not created today.
type StaleSweeper interface {
	SweepStale() (int, error)
}

// ThreadResetLoop sleeps until each next midnight in loc, then sweeps
// every thread mapping from the previous day. On sweep failure it
// retries after an hour instead of waiting for the following midnight.
func ThreadResetLoop(ctx context.Context, sweeper StaleSweeper, loc *time.Location, logger *zap.Logger) error {
	for {
		now := time.Now().In(loc)
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)

		logger.Info("waiting for daily thread reset",
			zap.Time("at", midnight),
			zap.Duration("in", time.Until(midnight)))
		if err := sleepUntil(ctx, midnight); err != nil {
			return err
		}

		deleted, err := sweeper.SweepStale()
		if err != nil {
			logger.Error("daily thread reset failed", zap.Error(err))
			if err := sleepUntil(ctx, time.Now().Add(time.Hour)); err != nil {
				return err
			}
			continue
		}
		logger.Info("daily thread reset done", zap.Int("threads_reset", deleted))
	}
}

// ReportSender builds and delivers the aggregated daily report.
type ReportSender interface {
	SendDailyReport(ctx context.Context) error
}

const reportPoll = 30 * time.Second

// ReportLoop polls the wall clock and fires the admin report once when
// it reaches the target hour and minute in loc. The cooldown sleep
// after firing keeps the report from repeating within the same minute.
func ReportLoop(ctx context.Context, sender ReportSender, hour, minute int, loc *time.Location, logger *zap.Logger) error {
	return Run(ctx, logger, "daily_report", reportPoll, func(ctx context.Context) error {
		now := time.Now().In(loc)
		if now.Hour() != hour || now.Minute() != minute {
			return nil
		}

		if err := sender.SendDailyReport(ctx); err != nil {
			return err
		}
		logger.Info("daily report sent")
		return sleepUntil(ctx, now.Add(time.Minute))
	})
}
