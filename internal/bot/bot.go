// Package bot implements the Telegram command layer and notification sender.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"property_agent/internal/config"
	"property_agent/internal/model"
	"property_agent/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Runner executes an ingestion cycle on demand.
type Runner interface {
	RunOnce(ctx context.Context) (model.RunReport, error)
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	runner  Runner
	siteURL string
	loc     *time.Location
	now     func() time.Time
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		siteURL: cfg.Source.SiteURL,
		loc:     cfg.Location(),
		now:     time.Now,
		log:     log,
	}, nil
}

// SetRunner wires the ingestion cycle used by /listings and /run.
func (b *Bot) SetRunner(r Runner) {
	b.runner = r
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
		case update := <-updates:
			if update.CallbackQuery != nil {
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

// SendMessage sends a Markdown notification to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) replyMarkdown(chatID int64, text string) {
	if err := b.SendMessage(chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) today() string {
	return b.now().In(b.loc).Format(model.DateLayout)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	var user *tgbotapi.User
	if msg.From != nil {
		user = msg.From
	} else {
		user = &tgbotapi.User{ID: chatID}
	}

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", user.ID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID, user)
	case "help":
		b.handleHelp(chatID)
	case cmdSetPrice:
		b.handleSetPrice(ctx, chatID, user, args)
	case cmdSetLocation:
		b.handleSetLocation(ctx, chatID, user, args)
	case "mypreferences":
		b.handleMyPreferences(ctx, chatID, user.ID)
	case "clearpreferences":
		b.handleClearPreferences(chatID, user.ID)
	case cmdListings:
		b.handleListings(ctx, chatID, user.ID)
	case "run":
		b.handleRun(ctx, chatID, user.ID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
