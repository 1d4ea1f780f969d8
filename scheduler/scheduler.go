// Package scheduler wires the periodic janitor jobs: the archive
// retention sweep and the event log cleanup. Jobs are best-effort
// periodic triggers; every operation they invoke is also reachable on
// demand through the API.
package scheduler

import (
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/go-co-op/gocron/v2"

	"github.com/onyxcmd/onyxd/archive"
	"github.com/onyxcmd/onyxd/config"
	"github.com/onyxcmd/onyxd/optimizer"
)

type Scheduler struct {
	inner gocron.Scheduler
}

// New builds the scheduler with the daily jobs registered but not yet
// running.
func New(arc *archive.Archive, opt *optimizer.Optimizer) (*Scheduler, error) {
	loc, err := time.LoadLocation(config.Get().System.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: invalid timezone")
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: failed to create scheduler")
	}

	_, err = s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(func() {
			if res, err := arc.Sweep(); err != nil {
				log.WithError(err).Error("scheduled archive sweep failed")
			} else if res.Expired > 0 || res.Purged > 0 {
				log.WithFields(log.Fields{"expired": res.Expired, "purged": res.Purged}).Info("archive sweep completed")
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: failed to register archive sweep")
	}

	_, err = s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(4, 0, 0))),
		gocron.NewTask(func() {
			if removed, err := opt.CleanLogs(); err != nil {
				log.WithError(err).Error("scheduled log cleanup failed")
			} else if removed > 0 {
				log.WithField("removed", removed).Info("log cleanup completed")
			}
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: failed to register log cleanup")
	}

	return &Scheduler{inner: s}, nil
}

// Start begins executing jobs on their schedules.
func (s *Scheduler) Start() {
	s.inner.Start()
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (s *Scheduler) Stop() error {
	return errors.WrapIf(s.inner.Shutdown(), "scheduler: failed to shut down")
}
