// Package scheduler runs the periodic auto-save pass over the watch list.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cwlogd/internal/bus"
	"cwlogd/internal/chatwork"
	"cwlogd/internal/fetch"
	"cwlogd/internal/store"
)

const dateLayout = "2006-01-02"

// Clock abstracts wall-clock time so tests can simulate elapsed days.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// RangeFetcher is the fetch surface the scheduler needs.
type RangeFetcher interface {
	FetchRange(ctx context.Context, token string, roomID chatwork.RoomID, start, end time.Time) (*fetch.Result, error)
}

// Outcome reports what happened to one overdue room during a pass. Rooms
// that were not due do not appear.
type Outcome struct {
	RoomID   chatwork.RoomID
	RoomName string
	Count    int
	Err      error
}

// Options bound the scheduler's behavior.
type Options struct {
	WatchCap     int
	LogCap       int
	RoomDelay    time.Duration // pause between per-room fetches
	InitialDelay time.Duration // pause after startup before the first pass
	Period       time.Duration // interval between periodic passes
}

// Scheduler decides, per watch entry, whether a catch-up save is due and
// runs it. Passes are sequential, one room at a time, to respect the
// upstream rate limit; a failure on one room never aborts the rest.
type Scheduler struct {
	db      *store.DB
	fetcher RangeFetcher
	bus     *bus.Bus
	logger  *zap.Logger
	clock   Clock
	loc     *time.Location
	opts    Options

	cancel context.CancelFunc
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a scheduler. A nil clock means the system clock.
func New(db *store.DB, fetcher RangeFetcher, b *bus.Bus, logger *zap.Logger, clock Clock, loc *time.Location, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		db:      db,
		fetcher: fetcher,
		bus:     b,
		logger:  logger,
		clock:   clock,
		loc:     loc,
		opts:    opts,
		sleep:   sleepCtx,
	}
}

// Start begins the periodic pass loop: one pass after the initial delay,
// then one per period.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the pass loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	initial := time.NewTimer(s.opts.InitialDelay)
	defer initial.Stop()
	select {
	case <-initial.C:
		s.runAndLog(ctx)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runAndLog(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	outcomes, err := s.RunPass(ctx)
	if err != nil {
		s.logger.Error("auto-save pass failed", zap.Error(err))
		return
	}
	saved := 0
	for _, o := range outcomes {
		if o.Err == nil {
			saved++
		}
	}
	if len(outcomes) > 0 {
		s.logger.Info("auto-save pass finished",
			zap.Int("due", len(outcomes)),
			zap.Int("saved", saved),
		)
	}
}

// RunPass examines every watch entry and performs a catch-up fetch for
// each overdue room. The returned outcomes cover exactly the rooms that
// were due. A missing API token skips the pass entirely.
func (s *Scheduler) RunPass(ctx context.Context) ([]Outcome, error) {
	token, err := s.db.GetSetting(store.SettingAPIToken)
	if err != nil {
		return nil, err
	}
	if token == "" {
		s.logger.Info("auto-save pass skipped, no API token stored")
		return nil, nil
	}

	entries, err := s.db.ListWatches()
	if err != nil {
		return nil, err
	}
	if s.opts.WatchCap > 0 && len(entries) > s.opts.WatchCap {
		entries = entries[:s.opts.WatchCap]
	}

	today := dateOnly(s.clock.Now().In(s.loc))
	yesterday := today.AddDate(0, 0, -1)

	var outcomes []Outcome
	first := true
	for _, e := range entries {
		start, due := s.catchUpStart(e, today)
		if !due || start.After(yesterday) {
			continue
		}

		if !first {
			if err := s.sleep(ctx, s.opts.RoomDelay); err != nil {
				return outcomes, err
			}
		}
		first = false

		outcome := Outcome{RoomID: e.RoomID, RoomName: e.RoomName}
		res, err := s.fetcher.FetchRange(ctx, token, e.RoomID, start, yesterday)
		if err != nil {
			// Per-room isolation: record and move on.
			s.logger.Error("auto-save failed",
				zap.String("room_id", e.RoomID.String()),
				zap.String("room_name", e.RoomName),
				zap.Error(err),
			)
			s.bus.Publish(bus.Event{
				Kind: "autosave.failed",
				At:   s.clock.Now(),
				Payload: map[string]string{
					"room_id": e.RoomID.String(),
					"error":   err.Error(),
				},
			})
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}

		entry := store.LogEntry{
			ID:           uuid.New().String(),
			RoomID:       e.RoomID,
			RoomName:     e.RoomName,
			StartDate:    start.Format(dateLayout),
			EndDate:      yesterday.Format(dateLayout),
			Content:      res.Text,
			MessageCount: res.Count,
			SavedAt:      s.clock.Now().UnixMilli(),
			IsAutoSave:   true,
		}
		if err := s.db.AppendLog(entry, s.opts.LogCap); err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}
		if err := s.db.MarkCaughtUp(e.RoomID, yesterday.Format(dateLayout)); err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.Count = res.Count
		outcomes = append(outcomes, outcome)
		s.logger.Info("auto-save completed",
			zap.String("room_id", e.RoomID.String()),
			zap.String("room_name", e.RoomName),
			zap.Int("messages", res.Count),
		)
		s.bus.Publish(bus.Event{
			Kind: "autosave.saved",
			At:   s.clock.Now(),
			Payload: map[string]string{
				"room_id": e.RoomID.String(),
				"log_id":  entry.ID,
			},
		})
	}
	return outcomes, nil
}

// catchUpStart computes whether an entry is overdue and, if so, the first
// day of its catch-up window. The window always ends at yesterday.
func (s *Scheduler) catchUpStart(e store.WatchEntry, today time.Time) (time.Time, bool) {
	if e.LastCatchUp == "" {
		// Never ran: cover the most recent interval up to yesterday.
		return today.AddDate(0, 0, -e.IntervalDays+1), true
	}
	last, err := time.ParseInLocation(dateLayout, e.LastCatchUp, s.loc)
	if err != nil {
		s.logger.Warn("invalid catch-up date, treating as never run",
			zap.String("room_id", e.RoomID.String()),
			zap.String("last_catch_up", e.LastCatchUp),
		)
		return today.AddDate(0, 0, -e.IntervalDays+1), true
	}
	if daysBetween(last, today) <= e.IntervalDays {
		return time.Time{}, false
	}
	return last.AddDate(0, 0, 1), true
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts whole calendar days from a to b. Rounding absorbs
// DST offsets.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours()/24 + 0.5)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
