// Package reminder runs the background delivery loop: it polls the store
// for due reminders, resolves recipients and sends the text to their chat.
package reminder

import (
	"context"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"studybot/db"
)

const (
	defaultInterval    = 60 * time.Second
	defaultMaxAttempts = 5
)

// Store is the persisted due-queue.
type Store interface {
	DueReminders(now time.Time) ([]db.Reminder, error)
	DeleteReminder(id int) error
	RecordFailure(id int) (int16, error)
	BuryReminder(id int) error
}

// Directory resolves a reminder's recipient to a deliverable chat.
type Directory interface {
	UserByUsername(username string) (*db.User, error)
}

// Sink delivers the notification text.
type Sink interface {
	Send(chatID int64, text string) error
}

// Scheduler is started once per process and runs until its context is
// cancelled. It must not be run concurrently with itself.
type Scheduler struct {
	store       Store
	dir         Directory
	sink        Sink
	logger      *zap.SugaredLogger
	clk         clock.Clock
	interval    time.Duration
	maxAttempts int16
}

func NewScheduler(store Store, dir Directory, sink Sink, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		store:       store,
		dir:         dir,
		sink:        sink,
		logger:      logger,
		clk:         clock.New(),
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycle()
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

// runCycle drains everything currently due. A reminder is deleted only
// after a confirmed send; a failed send is retried on later cycles until
// the attempt bound, then dead-lettered. One reminder's fault never aborts
// the rest of the cycle.
func (s *Scheduler) runCycle() {
	due, err := s.store.DueReminders(s.clk.Now())
	if err != nil {
		// store trouble is retryable; skip the cycle instead of crashing
		s.logger.Errorw("failed fetching due reminders", "err", err)
		return
	}

	for _, r := range due {
		s.deliver(r)
	}
}

func (s *Scheduler) deliver(r db.Reminder) {
	u, err := s.dir.UserByUsername(r.Username)
	if err != nil {
		s.logger.Errorw("failed resolving recipient", "reminder", r.ID, "err", err)
		return
	}
	if u == nil {
		// recipient may register later; keep the reminder for the next cycle
		s.logger.Warnw("recipient not found, will retry", "reminder", r.ID, "username", r.Username)
		return
	}

	if err := s.sink.Send(u.ChatID, r.Text); err != nil {
		s.logger.Errorw("failed delivering reminder", "reminder", r.ID, "err", err)

		attempts, err := s.store.RecordFailure(r.ID)
		if err != nil {
			s.logger.Errorw("failed recording delivery failure", "reminder", r.ID, "err", err)
			return
		}
		if attempts >= s.maxAttempts {
			s.logger.Warnw("reminder dead-lettered", "reminder", r.ID, "attempts", attempts)
			if err := s.store.BuryReminder(r.ID); err != nil {
				s.logger.Errorw("failed burying reminder", "reminder", r.ID, "err", err)
			}
		}
		return
	}

	if err := s.store.DeleteReminder(r.ID); err != nil {
		// delivered but not deleted; the next cycle resends, which is the
		// at-least-once side of the tradeoff
		s.logger.Errorw("failed deleting delivered reminder", "reminder", r.ID, "err", err)
	}
}
