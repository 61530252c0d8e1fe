// Package reminder announces due reminders on a fixed poll.
package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/rbright/jarvis/internal/store"
	"github.com/robfig/cron/v3"
)

// Interval is the poll period as a cron descriptor.
const Interval = "@every 30s"

// Store is the persistence the scanner and the reminder command need.
type Store interface {
	AddReminder(ctx context.Context, text string, due time.Time) (int64, error)
	DueReminders(ctx context.Context, now time.Time) ([]store.Reminder, error)
	MarkReminderDone(ctx context.Context, id int64) error
}

// Announcer speaks a line.
type Announcer interface {
	Say(text string)
}

// Observer counts announced reminders. Nil-safe.
type Observer interface {
	RecordReminder(ctx context.Context)
}

type Scanner struct {
	store    Store
	announce Announcer
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

func NewScanner(st Store, announce Announcer, logger *slog.Logger, observer Observer) *Scanner {
	return &Scanner{
		store:    st,
		announce: announce,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Tick announces every due reminder and marks each done after announcing.
// A crash between the two re-announces on the next tick.
func (s *Scanner) Tick(ctx context.Context) int {
	due, err := s.store.DueReminders(ctx, s.now())
	if err != nil {
		s.logError("load due reminders", err)
		return 0
	}

	announced := 0
	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		s.announce.Say("Reminder: " + r.Text)
		announced++
		if s.observer != nil {
			s.observer.RecordReminder(ctx)
		}
		if err := s.store.MarkReminderDone(ctx, r.ID); err != nil {
			s.logError("mark reminder done", err, "id", r.ID)
		}
	}
	return announced
}

// Run ticks once immediately, then on Interval until ctx ends.
func (s *Scanner) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(Interval, func() { s.Tick(ctx) }); err != nil {
		return err
	}

	s.Tick(ctx)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scanner) logError(msg string, err error, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Error(msg, append(args, "error", err.Error())...)
}
