// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartMaintenanceScheduler runs the two housekeeping jobs: marking stale
// active sessions expired and finalizing prize pools whose period has ended.
// Correctness never depends on either job — reads already treat old sessions
// as expired, and pool finalization is advisory to payout tooling.
func StartMaintenanceScheduler(sessions *SessionService, pools *PrizePoolService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: expire stale sessions
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			n, err := sessions.ExpireStaleSessions()
			if err != nil {
				log.Printf("[Scheduler] session expiry failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("✅ Expired %d stale sessions", n)
			}
		}),
	)

	// Every 10 minutes: finalize pools for ended periods
	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			n, err := pools.FinalizeEndedPools()
			if err != nil {
				log.Printf("[Scheduler] pool finalization failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("✅ Finalized %d ended prize pools", n)
			}
		}),
	)
}
