// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"chanwatch_bot/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateRule(ctx context.Context, r *model.FilterRule) error
	GetRule(ctx context.Context, id int64) (*model.FilterRule, error)
	ListRules(ctx context.Context, chatID int64) ([]model.FilterRule, error)
	UpdateRule(ctx context.Context, r *model.FilterRule) error
	SetRuleEnabled(ctx context.Context, id int64, enabled bool) error
	MoveRule(ctx context.Context, id int64, position int) error
	DeleteRule(ctx context.Context, id int64) error
	CountRules(ctx context.Context, chatID int64) (int, error)

	CreateBoard(ctx context.Context, b *model.BoardSubscription) error
	GetBoard(ctx context.Context, id int64) (*model.BoardSubscription, error)
	ListBoards(ctx context.Context, chatID int64) ([]model.BoardSubscription, error)
	ListDueBoards(ctx context.Context) ([]model.BoardSubscription, error)
	UpdateBoard(ctx context.Context, b *model.BoardSubscription) error
	SetBoardLastCheck(ctx context.Context, id int64, at time.Time) error
	DeleteBoard(ctx context.Context, id int64) error

	WatchThread(ctx context.Context, w *model.WatchedThread) (bool, error)
	IsWatched(ctx context.Context, chatID int64, board model.BoardDescriptor, threadNo int64) (bool, error)
	GetWatched(ctx context.Context, id int64) (*model.WatchedThread, error)
	ListWatched(ctx context.Context, chatID int64) ([]model.WatchedThread, error)
	UnwatchThread(ctx context.Context, id int64) error

	Close() error
}
