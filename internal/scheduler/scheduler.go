// Package scheduler polls followed board catalogs and adds threads matched
// by watch filters to the chat's watch list.
package scheduler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"chanwatch_bot/internal/bot"
	"chanwatch_bot/internal/fetcher"
	"chanwatch_bot/internal/filter"
	"chanwatch_bot/internal/model"
	"chanwatch_bot/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Scheduler periodically checks board catalogs and sends notifications.
type Scheduler struct {
	store   storage.Storage
	fetcher *fetcher.Fetcher
	engine  *filter.Engine
	sender  Sender
	limiter *rate.Limiter
	log     *slog.Logger
	tick    time.Duration
}

// New creates a Scheduler with the default HTTP client. sendRate caps
// outgoing notifications per second.
func New(store storage.Storage, engine *filter.Engine, sender Sender, sendRate int, log *slog.Logger) *Scheduler {
	return NewWithFetcher(store, fetcher.New(http.DefaultClient), engine, sender, sendRate, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store storage.Storage, f *fetcher.Fetcher, engine *filter.Engine, sender Sender, sendRate int, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		fetcher: f,
		engine:  engine,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(max(sendRate, 1)), 1),
		log:     log,
		tick:    1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	boards, err := s.store.ListDueBoards(ctx)
	if err != nil {
		s.log.Error("list due boards", "error", err)
		return
	}

	for _, sub := range boards {
		if ctx.Err() != nil {
			return
		}
		s.processBoard(ctx, sub)
	}
}

func (s *Scheduler) processBoard(ctx context.Context, sub model.BoardSubscription) {
	s.log.Debug("checking board", "board_id", sub.ID, "board", sub.Board.String())

	posts, err := s.fetcher.FetchCatalog(ctx, sub.Board, sub.URL)
	if err != nil {
		s.log.Error("fetch catalog", "board_id", sub.ID, "url", sub.URL, "error", err)
		s.updateLastCheck(ctx, sub.ID)
		return
	}

	rules, err := s.store.ListRules(ctx, sub.ChatID)
	if err != nil {
		s.log.Error("list rules", "chat_id", sub.ChatID, "error", err)
		s.updateLastCheck(ctx, sub.ID)
		return
	}
	watch := filter.WatchRules(rules)

	sent := 0
	for _, post := range posts {
		rule, ok := s.firstMatch(watch, post)
		if !ok {
			continue
		}

		w := &model.WatchedThread{
			ChatID:   sub.ChatID,
			Board:    sub.Board,
			ThreadNo: post.ThreadNo,
			Subject:  post.Subject,
			Link:     post.Link,
			RuleID:   rule.ID,
		}
		added, err := s.store.WatchThread(ctx, w)
		if err != nil {
			s.log.Error("watch thread", "board_id", sub.ID, "thread_no", post.ThreadNo, "error", err)
			continue
		}
		if !added {
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		s.sender.SendMessage(sub.ChatID, bot.FormatWatchNotification(post, rule))
		sent++
	}

	if sent > 0 {
		s.log.Info("sent notifications", "board_id", sub.ID, "board", sub.Board.String(), "count", sent)
	}

	s.updateLastCheck(ctx, sub.ID)
}

func (s *Scheduler) firstMatch(rules []model.FilterRule, post model.Post) (model.FilterRule, bool) {
	for _, r := range rules {
		if s.engine.MatchPost(r, post) {
			return r, true
		}
	}
	return model.FilterRule{}, false
}

func (s *Scheduler) updateLastCheck(ctx context.Context, boardID int64) {
	if err := s.store.SetBoardLastCheck(ctx, boardID, time.Now()); err != nil {
		s.log.Error("update last check", "board_id", boardID, "error", err)
	}
}
