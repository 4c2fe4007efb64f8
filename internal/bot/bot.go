// Package bot implements the Telegram interface for managing filters,
// boards and the watch list.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chanwatch_bot/internal/config"
	"chanwatch_bot/internal/fetcher"
	"chanwatch_bot/internal/filter"
	"chanwatch_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	engine  *filter.Engine
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, filter engine and config.
func New(token string, store storage.Storage, engine *filter.Engine, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		engine:  engine,
		cfg:     cfg,
		fetcher: fetcher.New(http.DefaultClient),
		log:     log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery != nil {
				if update.CallbackQuery.From == nil || !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdFilters:
		b.handleFilters(ctx, chatID)
	case "filter":
		b.handleFilter(ctx, chatID, args)
	case "addfilter":
		b.handleAddFilter(ctx, chatID, args)
	case "editfilter":
		b.handleEditFilter(ctx, chatID, args)
	case cmdRmFilter:
		b.handleRmFilter(ctx, chatID, args)
	case "enable":
		b.handleSetEnabled(ctx, chatID, args, true)
	case "disable":
		b.handleSetEnabled(ctx, chatID, args, false)
	case "move":
		b.handleMove(ctx, chatID, args)
	case "testfilter":
		b.handleTestFilter(ctx, chatID, args)
	case "boards":
		b.handleBoards(ctx, chatID)
	case "addboard":
		b.handleAddBoard(ctx, chatID, args)
	case cmdRmBoard:
		b.handleRmBoard(ctx, chatID, args)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case "pause":
		b.handleSetActive(ctx, chatID, args, false)
	case "resume":
		b.handleSetActive(ctx, chatID, args, true)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	case "watched":
		b.handleWatched(ctx, chatID)
	case "unwatch":
		b.handleUnwatch(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
