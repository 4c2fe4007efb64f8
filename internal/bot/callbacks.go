package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chanwatch_bot/internal/model"
)

const (
	cmdCheck    = "check"
	cmdFilters  = "filters"
	cmdRmFilter = "rmfilter"
	cmdRmBoard  = "rmboard"
	cbToggle    = "toggle"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, idStr, ok := strings.Cut(data, ":")
	if !ok {
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return
	}

	var userID int64
	var username string
	if cb.From != nil {
		userID, username = cb.From.ID, cb.From.UserName
	}
	b.log.Info("callback",
		"action", action,
		"id", id,
		"chat_id", chatID,
		"user_id", userID,
		"username", username,
	)

	switch action {
	case cmdFilters:
		b.handleFilters(ctx, chatID)
	case cmdCheck:
		b.handleCheck(ctx, chatID, idStr)
	case cbToggle:
		b.handleToggle(ctx, chatID, id)
	case cmdRmFilter:
		b.handleRmFilter(ctx, chatID, idStr)
	case cmdRmBoard:
		b.handleRmBoard(ctx, chatID, idStr)
	}
}

func (b *Bot) handleToggle(ctx context.Context, chatID, id int64) {
	rule, ok := b.ownedRule(ctx, chatID, id)
	if !ok {
		return
	}
	b.setEnabled(ctx, chatID, rule, !rule.Enabled)
}

func ruleKeyboard(r *model.FilterRule) tgbotapi.InlineKeyboardMarkup {
	toggle := "Disable"
	if !r.Enabled {
		toggle = "Enable"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, fmt.Sprintf("%s:%d", cbToggle, r.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("%s:%d", cmdRmFilter, r.ID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("All filters", cmdFilters+":0"),
		),
	)
}

func boardKeyboard(boards []model.BoardSubscription) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(boards))
	for _, s := range boards {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Check "+s.Board.String(), fmt.Sprintf("%s:%d", cmdCheck, s.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Remove", fmt.Sprintf("%s:%d", cmdRmBoard, s.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
