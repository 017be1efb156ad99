package supervisor

import (
	"log/slog"
	"time"
)

// watchTimeout races the budget against workload exit. If the budget
// wins and the completion accepts it, the process group is cleaned up
// from here. stop ends the watcher early.
func watchTimeout(budget time.Duration, exited, stop <-chan struct{}, c *completion, cleanup *Cleanup, logger *slog.Logger) {
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case <-exited:
	case <-stop:
	case <-timer.C:
		if c.Fire(CauseTimedOut) {
			logger.Warn("workload_timeout", "budget", budget.String())
			cleanup.Run()
		}
	}
}
