// Package recurrence runs the periodic sweep that spawns concrete
// transactions from due recurring templates.
//
// The sweep is an explicit scheduled job, deliberately decoupled from any
// read endpoint. Safety against concurrent sweeps comes from the ledger's
// compare-and-swap claim, not from the trigger mechanism, so running two
// instances of the service is harmless.
package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/avoronkov/hearthshare/internal/ledger"
	"github.com/avoronkov/hearthshare/pkg/logger"
)

// Clock supplies the current time. The scheduler compares dates only, in
// UTC; tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Ledger is the slice of the ledger service the scheduler needs.
type Ledger interface {
	DueTemplates(ctx context.Context, asOf time.Time) ([]*ledger.Transaction, error)
	SpawnTemplate(ctx context.Context, tmpl *ledger.Transaction) (bool, error)
}

// Scheduler periodically sweeps recurring templates.
type Scheduler struct {
	ledger Ledger
	clock  Clock
	log    *logger.Logger
	cron   *cron.Cron
}

// NewScheduler creates a scheduler. A nil clock defaults to the system
// clock.
func NewScheduler(l Ledger, clock Clock, log *logger.Logger) *Scheduler {
	if clock == nil {
		clock = systemClock{}
	}
	return &Scheduler{
		ledger: l,
		clock:  clock,
		log:    log.WithField("component", "recurrence"),
	}
}

// Sweep processes every template due as of the clock's current day: each
// one spawns a concrete instance and advances (or, for "once" intervals,
// retires). A template claimed by a concurrent sweeper is skipped, not an
// error. Returns the number of instances spawned.
//
// A template that missed several occurrences advances one occurrence per
// sweep; successive sweeps drain the backlog.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	today := s.clock.Now()

	templates, err := s.ledger.DueTemplates(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("listing due templates: %w", err)
	}

	spawned := 0
	for _, tmpl := range templates {
		ok, err := s.ledger.SpawnTemplate(ctx, tmpl)
		if err != nil {
			s.log.Error("failed to spawn recurring instance",
				"template_id", tmpl.ID,
				"household_id", tmpl.HouseholdID,
				"error", err,
			)
			continue
		}
		if !ok {
			s.log.Debug("template claimed by concurrent sweep", "template_id", tmpl.ID)
			continue
		}
		spawned++
		s.log.Info("spawned recurring instance",
			"template_id", tmpl.ID,
			"household_id", tmpl.HouseholdID,
			"interval", string(tmpl.RecurrenceInterval),
		)
	}

	return spawned, nil
}

// Start schedules the sweep to run at the given interval until Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, every time.Duration) error {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.log.Error("recurrence sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling recurrence sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.Info("recurrence sweep scheduled", "interval", every.String())
	return nil
}

// Stop halts the periodic sweep and waits for a running one to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
