// services/scheduler.go
package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const maintenanceInterval = time.Minute

// StartMaintenanceScheduler runs the periodic jobs: expired ban sweep and
// ledger reconciliation. The caller owns Shutdown.
func StartMaintenanceScheduler(ctx context.Context, players *PlayerService, settlement *SettlementService, log *zap.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	// Every minute: lift bans whose expiry has passed
	if _, err := sched.NewJob(
		gocron.DurationJob(maintenanceInterval),
		gocron.NewTask(func() {
			n, err := players.SweepExpiredBans(ctx)
			if err != nil {
				log.Error("[Scheduler] ban sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				log.Info("[Scheduler] lifted expired bans", zap.Int64("players", n))
			}
		}),
		gocron.WithName("ban-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	// Every minute: rewrite ledger rows missing after a failed append
	if _, err := sched.NewJob(
		gocron.DurationJob(maintenanceInterval),
		gocron.NewTask(func() {
			if _, err := settlement.ReconcileLedger(ctx); err != nil {
				log.Error("[Scheduler] ledger reconciliation failed", zap.Error(err))
			}
		}),
		gocron.WithName("ledger-reconciliation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return nil, err
	}

	sched.Start()
	return sched, nil
}
