package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"chanwatch_bot/internal/filter"
	"chanwatch_bot/internal/model"
	"chanwatch_bot/internal/storage"
)

const (
	maxRulesPerChat        = 200
	defaultIntervalMinutes = 15
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to ChanWatch Bot!

Keep an ordered list of post filters and get notified when new threads match your watch filters.

Quick start:
1. /addboard g https://boards.example.com/g/index.rss - follow a board catalog
2. /addfilter -a watch "desktop thread" - watch threads by subject or comment
3. /filters - review your filters

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Filters (checked top to bottom, first match wins):
/filters - list filters
/filter <id> - filter details
/addfilter [flags] <pattern> - add a filter
/editfilter <id> [flags] [pattern] - change a filter
/rmfilter <id> - delete a filter
/enable <id>, /disable <id> - switch a filter on or off
/move <id> <position> - reorder a filter
/testfilter <id> <text> - test a filter against sample text

Patterns: words (any may match, * is a wildcard), "exact phrase", or /regex/flags.

Flags:
-t, --type tripcode,name,comment,id,subject,filename,country,hash
-a, --action hide|color|remove|watch|avoid
-c, --color #rrggbb
-b, --boards all | g,v,4chan/b
--replies, --op, --saved

Boards and watch list:
/boards - list followed boards
/addboard <board> <rss_url> - follow a board catalog
/rmboard <id> - stop following a board
/interval <id> <min> - set check interval (1-1440)
/pause <id>, /resume <id> - pause or resume checks
/check <id> - dry run your filters on the current catalog
/watched - list watched threads
/unwatch <id> - remove a watched thread`)
}

func (b *Bot) ownedRule(ctx context.Context, chatID, id int64) (*model.FilterRule, bool) {
	rule, err := b.store.GetRule(ctx, id)
	if err != nil || rule.ChatID != chatID {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("get rule", "rule_id", id, "error", err)
		}
		b.reply(chatID, fmt.Sprintf("Filter #%d not found.", id))
		return nil, false
	}
	return rule, true
}

func (b *Bot) ownedBoard(ctx context.Context, chatID, id int64) (*model.BoardSubscription, bool) {
	sub, err := b.store.GetBoard(ctx, id)
	if err != nil || sub.ChatID != chatID {
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("get board", "board_id", id, "error", err)
		}
		b.reply(chatID, fmt.Sprintf("Board #%d not found.", id))
		return nil, false
	}
	return sub, true
}

func (b *Bot) handleFilters(ctx context.Context, chatID int64) {
	rules, err := b.store.ListRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRuleList(rules))
}

func (b *Bot) handleFilter(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /filter <id>")
		return
	}
	rule, ok := b.ownedRule(ctx, chatID, id)
	if !ok {
		return
	}
	b.replyWithKeyboard(chatID, FormatRuleInfo(rule), ruleKeyboard(rule))
}

func (b *Bot) handleAddFilter(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /addfilter [flags] <pattern>. See /help for flags.")
		return
	}
	parsed, err := ParseRuleArgs(args, b.cfg.DefaultSite)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	count, err := b.store.CountRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if count >= maxRulesPerChat {
		b.reply(chatID, fmt.Sprintf("Filter limit reached (%d). Remove a filter first.", maxRulesPerChat))
		return
	}

	existing, err := b.store.ListRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	rule := parsed.NewRule(chatID)
	if res := filter.Validate(b.engine, rule, slices.Values(existing)); !res.OK() {
		b.log.Debug("filter rejected", "chat_id", chatID, "reason", res.Err())
		b.reply(chatID, FormatValidation(res))
		return
	}

	if err := b.store.CreateRule(ctx, &rule); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.log.Info("filter added", "chat_id", chatID, "rule_id", rule.ID)
	b.replyWithKeyboard(chatID, "Filter added.\n\n"+FormatRuleInfo(&rule), ruleKeyboard(&rule))
}

func (b *Bot) handleEditFilter(ctx context.Context, chatID int64, args string) {
	id, rest, err := ParseEditArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	parsed, err := ParseRuleArgs(rest, b.cfg.DefaultSite)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	rule, ok := b.ownedRule(ctx, chatID, id)
	if !ok {
		return
	}
	parsed.ApplyTo(rule)

	existing, err := b.store.ListRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if res := filter.Validate(b.engine, *rule, slices.Values(existing)); !res.OK() {
		b.reply(chatID, FormatValidation(res))
		return
	}

	if err := b.store.UpdateRule(ctx, rule); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "Filter updated.\n\n"+FormatRuleInfo(rule))
}

func (b *Bot) handleRmFilter(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmfilter <id>")
		return
	}
	rule, ok := b.ownedRule(ctx, chatID, id)
	if !ok {
		return
	}
	if err := b.store.DeleteRule(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting filter: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Filter #%d %s deleted.", id, rule.Pattern))
}

func (b *Bot) handleSetEnabled(ctx context.Context, chatID int64, args string, enabled bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		if enabled {
			b.reply(chatID, "Usage: /enable <id>")
		} else {
			b.reply(chatID, "Usage: /disable <id>")
		}
		return
	}
	rule, ok := b.ownedRule(ctx, chatID, id)
	if !ok {
		return
	}
	b.setEnabled(ctx, chatID, rule, enabled)
}

func (b *Bot) setEnabled(ctx context.Context, chatID int64, rule *model.FilterRule, enabled bool) {
	if err := b.store.SetRuleEnabled(ctx, rule.ID, enabled); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	b.reply(chatID, fmt.Sprintf("Filter #%d %s %s.", rule.ID, rule.Pattern, state))
}

func (b *Bot) handleMove(ctx context.Context, chatID int64, args string) {
	id, pos, err := ParseMoveArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if _, ok := b.ownedRule(ctx, chatID, id); !ok {
		return
	}
	if err := b.store.MoveRule(ctx, id, pos); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	rules, err := b.store.ListRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRuleList(rules))
}

func (b *Bot) handleTestFilter(ctx context.Context, chatID int64, args string) {
	id, text, err := ParseTestArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	rule, ok := b.ownedRule(ctx, chatID, id)
	if !ok {
		return
	}
	res := filter.MatchesSample(b.engine, *rule, text, rule.Pattern)
	b.reply(chatID, fmt.Sprintf("Filter #%d %s: %s.", rule.ID, rule.Pattern, res))
}

func (b *Bot) handleBoards(ctx context.Context, chatID int64) {
	boards, err := b.store.ListBoards(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(boards) == 0 {
		b.reply(chatID, FormatBoardList(boards))
		return
	}
	b.replyWithKeyboard(chatID, FormatBoardList(boards), boardKeyboard(boards))
}

func (b *Bot) handleAddBoard(ctx context.Context, chatID int64, args string) {
	board, url, err := ParseBoardArgs(args, b.cfg.DefaultSite)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	existing, err := b.store.ListBoards(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	for _, s := range existing {
		if s.Board == board {
			b.reply(chatID, fmt.Sprintf("Board %s is already followed as #%d.", board, s.ID))
			return
		}
	}

	posts, err := b.fetcher.FetchCatalog(ctx, board, url)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch catalog: %v", err))
		return
	}

	sub := &model.BoardSubscription{
		ChatID:          chatID,
		Board:           board,
		URL:             url,
		IntervalMinutes: defaultIntervalMinutes,
		IsActive:        true,
	}
	if err := b.store.CreateBoard(ctx, sub); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save board: %v", err))
		return
	}
	b.log.Info("board added", "chat_id", chatID, "board_id", sub.ID, "board", board.String())
	b.reply(chatID, fmt.Sprintf("Board added!\n#%d %s (every %d min), %d thread(s) in catalog.",
		sub.ID, sub.Board, sub.IntervalMinutes, len(posts)))
}

func (b *Bot) handleRmBoard(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmboard <id>")
		return
	}
	sub, ok := b.ownedBoard(ctx, chatID, id)
	if !ok {
		return
	}
	if err := b.store.DeleteBoard(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting board: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Board #%d %s removed.", id, sub.Board))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	sub, ok := b.ownedBoard(ctx, chatID, id)
	if !ok {
		return
	}
	sub.IntervalMinutes = mins
	if err := b.store.UpdateBoard(ctx, sub); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Board #%d interval set to %d min.", id, mins))
}

func (b *Bot) handleSetActive(ctx context.Context, chatID int64, args string, active bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		if active {
			b.reply(chatID, "Usage: /resume <id>")
		} else {
			b.reply(chatID, "Usage: /pause <id>")
		}
		return
	}
	sub, ok := b.ownedBoard(ctx, chatID, id)
	if !ok {
		return
	}
	sub.IsActive = active
	if err := b.store.UpdateBoard(ctx, sub); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	state := "resumed"
	if !active {
		state = "paused"
	}
	b.reply(chatID, fmt.Sprintf("Board #%d %s %s.", id, sub.Board, state))
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /check <id>")
		return
	}
	sub, ok := b.ownedBoard(ctx, chatID, id)
	if !ok {
		return
	}

	posts, err := b.fetcher.FetchCatalog(ctx, sub.Board, sub.URL)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch: %v", err))
		return
	}
	rules, err := b.store.ListRules(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	decisions := b.engine.Apply(posts, rules)
	watched := make(map[int64]bool)
	for _, d := range decisions {
		ok, err := b.store.IsWatched(ctx, chatID, sub.Board, d.Post.ThreadNo)
		if err != nil {
			b.log.Error("check watched", "chat_id", chatID, "thread_no", d.Post.ThreadNo, "error", err)
			continue
		}
		watched[d.Post.ThreadNo] = ok
	}
	b.reply(chatID, FormatCheckResult(sub, posts, decisions, watched))
}

func (b *Bot) handleWatched(ctx context.Context, chatID int64) {
	threads, err := b.store.ListWatched(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatWatchedList(threads))
}

func (b *Bot) handleUnwatch(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /unwatch <id>")
		return
	}
	w, err := b.store.GetWatched(ctx, id)
	if err != nil || w.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Watched thread #%d not found.", id))
		return
	}
	if err := b.store.UnwatchThread(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Stopped watching %s No.%d.", w.Board, w.ThreadNo))
}
