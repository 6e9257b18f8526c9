package updater

import (
	"context"
	"ddnsguard/log"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrRestartRequested ends the loop so a supervisor can restart the process
// on new code.
var ErrRestartRequested = errors.New("restart requested")

type Cycler interface {
	RunCycle(ctx context.Context) Outcome
}

type Loop struct {
	Cycle Cycler
	// Interval between cycle starts. Zero runs a single cycle.
	Interval time.Duration
	// BeforeCycle runs synchronously ahead of each cycle. Returning
	// ErrRestartRequested stops the loop; other errors are logged.
	BeforeCycle func(ctx context.Context) error
	AfterCycle  func(ctx context.Context, o Outcome)
}

// Run executes cycles until ctx is cancelled, and returns nil in that case.
// Cycles never overlap.
func (l *Loop) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if l.Interval > 0 {
		ticker := time.NewTicker(l.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			log.S(ctx).Infow("shutting down")
			return nil
		}

		cCtx := log.SWith(ctx, "cycle", cycle)

		if l.BeforeCycle != nil {
			if err := l.BeforeCycle(cCtx); errors.Is(err, ErrRestartRequested) {
				log.S(cCtx).Infow("restart requested, stopping loop")
				return err
			} else if err != nil {
				log.S(cCtx).Warnw("pre-cycle check failed", zap.Error(err))
			}
		}

		o := l.Cycle.RunCycle(cCtx)
		log.S(cCtx).Debugw("cycle finished", "action", o.Action, "elapsed", o.Elapsed)

		if l.AfterCycle != nil {
			l.AfterCycle(cCtx, o)
		}

		if tick == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			log.S(ctx).Infow("shutting down")
			return nil
		case <-tick:
		}
	}
}
