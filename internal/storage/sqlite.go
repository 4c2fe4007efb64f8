package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"chanwatch_bot/internal/model"
	"chanwatch_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const ruleColumns = `id, chat_id, position, enabled, pattern, type, action, color,
	all_boards, apply_to_replies, only_on_op, apply_to_saved, created_at`

// CreateRule appends a rule to the end of its chat's list and populates
// its ID, Position and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, r *model.FilterRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var position int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM filter_rules WHERE chat_id = ?`, r.ChatID,
	).Scan(&position)
	if err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO filter_rules (chat_id, position, enabled, pattern, type, action, color,
		     all_boards, apply_to_replies, only_on_op, apply_to_saved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ChatID, position, boolToInt(r.Enabled), r.Pattern, int(r.Type), int(r.Action), r.Color,
		boolToInt(r.AllBoards), boolToInt(r.ApplyToReplies), boolToInt(r.OnlyOnOP), boolToInt(r.ApplyToSaved), now,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	if err := insertRuleBoards(ctx, tx, id, r.Boards); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.ID = id
	r.Position = position
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetRule returns a single rule by its ID.
func (s *SQLite) GetRule(ctx context.Context, id int64) (*model.FilterRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM filter_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if err != nil {
		return nil, err
	}

	boards, err := s.ruleBoards(ctx, `WHERE rule_id = ?`, id)
	if err != nil {
		return nil, err
	}
	r.Boards = boards[id]
	return &r, nil
}

// ListRules returns all rules of a chat ordered by position.
func (s *SQLite) ListRules(ctx context.Context, chatID int64) ([]model.FilterRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM filter_rules WHERE chat_id = ? ORDER BY position, id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}

	var rules []model.FilterRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	_ = rows.Close()

	boards, err := s.ruleBoards(ctx,
		`WHERE rule_id IN (SELECT id FROM filter_rules WHERE chat_id = ?)`, chatID)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Boards = boards[rules[i].ID]
	}
	return rules, nil
}

// UpdateRule persists the editable fields of an existing rule.
// Position, chat and enabled state are left untouched.
func (s *SQLite) UpdateRule(ctx context.Context, r *model.FilterRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE filter_rules SET pattern = ?, type = ?, action = ?, color = ?,
		     all_boards = ?, apply_to_replies = ?, only_on_op = ?, apply_to_saved = ?
		 WHERE id = ?`,
		r.Pattern, int(r.Type), int(r.Action), r.Color,
		boolToInt(r.AllBoards), boolToInt(r.ApplyToReplies), boolToInt(r.OnlyOnOP), boolToInt(r.ApplyToSaved),
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update rule %d: %w", r.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_rule_boards WHERE rule_id = ?`, r.ID); err != nil {
		return fmt.Errorf("delete rule boards: %w", err)
	}
	if err := insertRuleBoards(ctx, tx, r.ID, r.Boards); err != nil {
		return err
	}
	return tx.Commit()
}

// SetRuleEnabled enables or disables a rule.
func (s *SQLite) SetRuleEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE filter_rules SET enabled = ? WHERE id = ?`, boolToInt(enabled), id,
	)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("set rule %d enabled: %w", id, err)
	}
	return nil
}

// MoveRule moves a rule to a 1-based position within its chat's list,
// shifting the rules in between. Out of range positions are clamped.
func (s *SQLite) MoveRule(ctx context.Context, id int64, position int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var chatID int64
	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT chat_id, position FROM filter_rules WHERE id = ?`, id,
	).Scan(&chatID, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("move rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load rule position: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM filter_rules WHERE chat_id = ?`, chatID,
	).Scan(&count); err != nil {
		return fmt.Errorf("count rules: %w", err)
	}
	position = max(1, min(position, count))

	switch {
	case position < current:
		_, err = tx.ExecContext(ctx,
			`UPDATE filter_rules SET position = position + 1
			 WHERE chat_id = ? AND position >= ? AND position < ?`,
			chatID, position, current,
		)
	case position > current:
		_, err = tx.ExecContext(ctx,
			`UPDATE filter_rules SET position = position - 1
			 WHERE chat_id = ? AND position > ? AND position <= ?`,
			chatID, current, position,
		)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("shift rules: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE filter_rules SET position = ? WHERE id = ?`, position, id,
	); err != nil {
		return fmt.Errorf("set rule position: %w", err)
	}
	return tx.Commit()
}

// CountRules returns the number of rules a chat has.
func (s *SQLite) CountRules(ctx context.Context, chatID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM filter_rules WHERE chat_id = ?`, chatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return n, nil
}

// DeleteRule removes a rule and closes the gap in its chat's positions.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var chatID int64
	var position int
	err = tx.QueryRowContext(ctx,
		`SELECT chat_id, position FROM filter_rules WHERE id = ?`, id,
	).Scan(&chatID, &position)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load rule position: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_rule_boards WHERE rule_id = ?`, id); err != nil {
		return fmt.Errorf("delete rule boards: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE filter_rules SET position = position - 1 WHERE chat_id = ? AND position > ?`,
		chatID, position,
	); err != nil {
		return fmt.Errorf("compact positions: %w", err)
	}
	return tx.Commit()
}

func insertRuleBoards(ctx context.Context, tx *sql.Tx, ruleID int64, boards []model.BoardDescriptor) error {
	for _, b := range boards {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO filter_rule_boards (rule_id, site, code) VALUES (?, ?, ?)`,
			ruleID, b.Site, b.Code,
		); err != nil {
			return fmt.Errorf("insert rule board %s: %w", b, err)
		}
	}
	return nil
}

// ruleBoards loads board scopes keyed by rule ID; where filters filter_rule_boards.
func (s *SQLite) ruleBoards(ctx context.Context, where string, args ...any) (map[int64][]model.BoardDescriptor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, site, code FROM filter_rule_boards `+where+` ORDER BY rule_id, site, code`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query rule boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64][]model.BoardDescriptor)
	for rows.Next() {
		var id int64
		var b model.BoardDescriptor
		if err := rows.Scan(&id, &b.Site, &b.Code); err != nil {
			return nil, fmt.Errorf("scan rule board: %w", err)
		}
		out[id] = append(out[id], b)
	}
	return out, rows.Err()
}

const boardColumns = `id, chat_id, site, code, url, interval_minutes, is_active, last_check_at, created_at`

// CreateBoard inserts a new board subscription and populates its ID and CreatedAt.
func (s *SQLite) CreateBoard(ctx context.Context, b *model.BoardSubscription) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (chat_id, site, code, url, interval_minutes, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ChatID, b.Board.Site, b.Board.Code, b.URL, b.IntervalMinutes, boolToInt(b.IsActive), now,
	)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetBoard returns a single board subscription by its ID.
func (s *SQLite) GetBoard(ctx context.Context, id int64) (*model.BoardSubscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE id = ?`, id)
	return scanBoard(row)
}

// ListBoards returns all board subscriptions of the given chat.
func (s *SQLite) ListBoards(ctx context.Context, chatID int64) ([]model.BoardSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+boardColumns+` FROM boards WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanBoards(rows)
}

// ListDueBoards returns all active board subscriptions that are due for checking.
func (s *SQLite) ListDueBoards(ctx context.Context) ([]model.BoardSubscription, error) {
	now := time.Now().UTC().Format(timeLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+boardColumns+`
		 FROM boards
		 WHERE is_active = 1
		   AND (last_check_at IS NULL
		        OR datetime(last_check_at, '+' || interval_minutes || ' minutes') <= datetime(?))
		 ORDER BY id`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("query due boards: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanBoards(rows)
}

// UpdateBoard persists changes to an existing board subscription.
func (s *SQLite) UpdateBoard(ctx context.Context, b *model.BoardSubscription) error {
	var lastCheck *string
	if b.LastCheckAt != nil {
		v := b.LastCheckAt.UTC().Format(timeLayout)
		lastCheck = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE boards SET url = ?, interval_minutes = ?, is_active = ?, last_check_at = ?
		 WHERE id = ?`,
		b.URL, b.IntervalMinutes, boolToInt(b.IsActive), lastCheck, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return nil
}

// SetBoardLastCheck records when a board catalog was last polled, leaving
// the other subscription settings untouched.
func (s *SQLite) SetBoardLastCheck(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE boards SET last_check_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("set board last check: %w", err)
	}
	return nil
}

// DeleteBoard removes a board subscription and the threads it put on the
// chat's watch list.
func (s *SQLite) DeleteBoard(ctx context.Context, id int64) error {
	b, err := s.GetBoard(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM watched_threads WHERE chat_id = ? AND site = ? AND code = ?`,
		b.ChatID, b.Board.Site, b.Board.Code,
	); err != nil {
		return fmt.Errorf("delete watched_threads: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return tx.Commit()
}

// WatchThread adds a thread to a chat's watch list. It reports false when
// the thread was already watched.
func (s *SQLite) WatchThread(ctx context.Context, w *model.WatchedThread) (bool, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watched_threads (chat_id, site, code, thread_no, subject, link, rule_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ChatID, w.Board.Site, w.Board.Code, w.ThreadNo, w.Subject, w.Link, w.RuleID, now,
	)
	if err != nil {
		return false, fmt.Errorf("watch thread: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("last insert id: %w", err)
	}
	w.ID = id
	w.CreatedAt, _ = time.Parse(timeLayout, now)
	return true, nil
}

// IsWatched checks whether a thread is on the chat's watch list.
func (s *SQLite) IsWatched(ctx context.Context, chatID int64, board model.BoardDescriptor, threadNo int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM watched_threads WHERE chat_id = ? AND site = ? AND code = ? AND thread_no = ?`,
		chatID, board.Site, board.Code, threadNo,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check watched: %w", err)
	}
	return count > 0, nil
}

const watchedColumns = `id, chat_id, site, code, thread_no, subject, link, rule_id, created_at`

// GetWatched returns a single watched thread by its ID.
func (s *SQLite) GetWatched(ctx context.Context, id int64) (*model.WatchedThread, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+watchedColumns+` FROM watched_threads WHERE id = ?`, id)
	w, err := scanWatched(row)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWatched returns the chat's watch list, oldest first.
func (s *SQLite) ListWatched(ctx context.Context, chatID int64) ([]model.WatchedThread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+watchedColumns+` FROM watched_threads WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query watched: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.WatchedThread
	for rows.Next() {
		w, err := scanWatched(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// UnwatchThread removes a thread from the watch list.
func (s *SQLite) UnwatchThread(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watched_threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("unwatch thread: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRule(row scannable) (model.FilterRule, error) {
	var r model.FilterRule
	var typ, action int
	var enabled, allBoards, replies, onlyOP, saved int
	var created string
	err := row.Scan(&r.ID, &r.ChatID, &r.Position, &enabled, &r.Pattern, &typ, &action, &r.Color,
		&allBoards, &replies, &onlyOP, &saved, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("scan rule: %w", ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("scan rule: %w", err)
	}
	r.Type = model.FilterType(typ)
	r.Action = model.FilterAction(action)
	r.Enabled = enabled == 1
	r.AllBoards = allBoards == 1
	r.ApplyToReplies = replies == 1
	r.OnlyOnOP = onlyOP == 1
	r.ApplyToSaved = saved == 1
	r.CreatedAt, _ = time.Parse(timeLayout, created)
	return r, nil
}

func scanBoard(row scannable) (*model.BoardSubscription, error) {
	var b model.BoardSubscription
	var isActive int
	var lastCheck, created sql.NullString
	err := row.Scan(&b.ID, &b.ChatID, &b.Board.Site, &b.Board.Code, &b.URL, &b.IntervalMinutes,
		&isActive, &lastCheck, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan board: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan board: %w", err)
	}
	b.IsActive = isActive == 1
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		b.LastCheckAt = &t
	}
	if created.Valid {
		b.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &b, nil
}

func scanBoards(rows *sql.Rows) ([]model.BoardSubscription, error) {
	var boards []model.BoardSubscription
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, *b)
	}
	return boards, rows.Err()
}

func scanWatched(row scannable) (model.WatchedThread, error) {
	var w model.WatchedThread
	var created string
	err := row.Scan(&w.ID, &w.ChatID, &w.Board.Site, &w.Board.Code, &w.ThreadNo, &w.Subject, &w.Link,
		&w.RuleID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return w, fmt.Errorf("scan watched thread: %w", ErrNotFound)
	}
	if err != nil {
		return w, fmt.Errorf("scan watched thread: %w", err)
	}
	w.CreatedAt, _ = time.Parse(timeLayout, created)
	return w, nil
}
