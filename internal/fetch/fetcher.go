// Package fetch drives the window splitter and the upstream client into a
// single formatted transcript for a room and date range.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"cwlogd/internal/chatwork"
	"cwlogd/internal/common"
	"cwlogd/internal/transcript"
	"cwlogd/internal/window"
)

// MessageLister is the upstream surface the fetcher needs.
type MessageLister interface {
	ListMessages(ctx context.Context, token string, roomID chatwork.RoomID) ([]chatwork.Message, error)
}

// Result is a completed fetch: the formatted transcript, the message
// count after dedup, and whether the result may be truncated by the
// upstream page cap.
type Result struct {
	Text      string
	Count     int
	Truncated bool
}

// Fetcher collects, deduplicates, sorts and formats room messages over a
// date range. Upstream calls within one fetch are sequential and spaced
// by the rate-limit delay; they are never issued concurrently.
type Fetcher struct {
	client   MessageLister
	spanDays int
	delay    time.Duration
	loc      *time.Location
	logger   *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a fetcher. spanDays bounds each fetch window; delay is the
// pause between consecutive upstream calls.
func New(client MessageLister, spanDays int, delay time.Duration, loc *time.Location, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Fetcher{
		client:   client,
		spanDays: spanDays,
		delay:    delay,
		loc:      loc,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// FetchRange retrieves, deduplicates and formats all messages for roomID
// whose send time falls within [start, end] (end taken as 23:59:59 of its
// calendar day). All-or-nothing: an upstream failure on any window
// discards results from earlier windows.
func (f *Fetcher) FetchRange(ctx context.Context, token string, roomID chatwork.RoomID, start, end time.Time) (*Result, error) {
	if token == "" || roomID == "" || start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: token, room and date range are all required", common.ErrValidation)
	}

	windows := window.Split(start, end, f.spanDays)
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: start date is after end date", common.ErrValidation)
	}

	var collected []chatwork.Message
	for i, w := range windows {
		if i > 0 {
			if err := f.sleep(ctx, f.delay); err != nil {
				return nil, err
			}
		}

		page, err := f.listWithRetry(ctx, token, roomID)
		if err != nil {
			return nil, err
		}

		startMs, endMs := w.Start.UnixMilli(), w.End.UnixMilli()
		kept := 0
		for _, m := range page {
			ms := m.SendTime * 1000
			if ms >= startMs && ms <= endMs {
				collected = append(collected, m)
				kept++
			}
		}
		f.logger.Debug("fetched window",
			zap.String("room_id", roomID.String()),
			zap.Time("window_start", w.Start),
			zap.Time("window_end", w.End),
			zap.Int("page_size", len(page)),
			zap.Int("kept", kept),
		)
	}

	unique := dedupe(collected)
	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].SendTime < unique[j].SendTime
	})

	return &Result{
		Text:      transcript.Render(unique, f.loc),
		Count:     len(unique),
		Truncated: len(unique) == chatwork.PageCap,
	}, nil
}

// listWithRetry retries transport failures with bounded exponential
// backoff. Auth and fetch errors are never retried.
func (f *Fetcher) listWithRetry(ctx context.Context, token string, roomID chatwork.RoomID) ([]chatwork.Message, error) {
	var page []chatwork.Message
	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var listErr error
		page, listErr = f.client.ListMessages(ctx, token, roomID)
		if errors.Is(listErr, common.ErrNetwork) {
			return retry.RetryableError(listErr)
		}
		return listErr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// dedupe keeps the first occurrence of each message id. Duplicate ids
// across windows carry identical content, so order of encounter does not
// matter.
func dedupe(msgs []chatwork.Message) []chatwork.Message {
	seen := make(map[string]struct{}, len(msgs))
	unique := make([]chatwork.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		unique = append(unique, m)
	}
	return unique
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
