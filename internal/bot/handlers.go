package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"property_agent/internal/filter"
	"property_agent/internal/model"
	"property_agent/internal/storage"
)

const listingsCap = 15

const opportunityNote = "⚡ No Court Reserve and 🏦 Bank Reserve properties are always sent regardless of your price range."

func (b *Bot) handleStart(ctx context.Context, chatID int64, user *tgbotapi.User) {
	if err := b.register(ctx, chatID, user); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	name := user.FirstName
	if name == "" {
		name = "there"
	}
	b.reply(chatID, fmt.Sprintf(`👋 Welcome, %s!

I monitor Sale in Execution property lists and notify you when a property matches your preferences.

Quick start:
1. /setprice 500000 1500000 — set a price range
2. /setlocation Roodepoort, Krugersdorp — set location keywords
3. /mypreferences — view current settings
4. /listings — show upcoming properties

Use /help for the full command reference.`, name))
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Preferences:
/setprice <min> <max> — set price range (rand, no R symbol)
/setlocation <kw1, kw2, ...> — set location keywords
/mypreferences — show your current preferences
/clearpreferences — reset all preferences

Listings:
/listings — show upcoming properties matching your preferences

Operators:
/run — run a check now

`+opportunityNote)
}

func (b *Bot) handleSetPrice(ctx context.Context, chatID int64, user *tgbotapi.User, args string) {
	minPrice, maxPrice, err := ParsePriceArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	if err := b.register(ctx, chatID, user); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	pref := model.Preference{SubscriberID: user.ID, MinPrice: &minPrice, MaxPrice: &maxPrice}
	if err := b.store.UpsertPreference(ctx, pref); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("✅ Price range set: %s – %s\n\n%s", Rand(minPrice), Rand(maxPrice), opportunityNote))
}

func (b *Bot) handleSetLocation(ctx context.Context, chatID int64, user *tgbotapi.User, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /setlocation <keyword1, keyword2, ...>\nExample: /setlocation Roodepoort, Krugersdorp")
		return
	}
	keywords := filter.NormalizeKeywords(args)
	if len(keywords) == 0 {
		b.reply(chatID, "No valid keywords provided.")
		return
	}

	if err := b.register(ctx, chatID, user); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if err := b.store.UpsertPreference(ctx, model.Preference{SubscriberID: user.ID, Keywords: keywords}); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("✅ Location keywords set: %s", joinKeywords(keywords)))
}

func (b *Bot) handleMyPreferences(ctx context.Context, chatID, userID int64) {
	pref, err := b.preference(ctx, userID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatPreference(pref))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Show listings", fmt.Sprintf("%s:%d", cmdListings, userID)),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send preferences", "error", err)
	}
}

func (b *Bot) handleClearPreferences(chatID, userID int64) {
	msg := tgbotapi.NewMessage(chatID, "Clear your preferences? You will stop receiving filtered notifications.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, clear", fmt.Sprintf("%s:%d", cbClear, userID)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop:0"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send clear confirmation", "error", err)
	}
}

func (b *Bot) clearPreferences(ctx context.Context, chatID, userID int64) {
	if err := b.store.ClearPreference(ctx, userID); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, "✅ Preferences cleared.")
}

// handleListings shows upcoming catalogued lots filtered by the caller's
// preference. An empty catalogue triggers an ingestion cycle first.
func (b *Bot) handleListings(ctx context.Context, chatID, userID int64) {
	pref, err := b.preference(ctx, userID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	props, err := b.store.ListUpcomingProperties(ctx, b.today())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	source := "from cache"
	if len(props) == 0 {
		if b.runner == nil {
			b.reply(chatID, "No upcoming sale lists found at this time.")
			return
		}
		b.reply(chatID, "🔍 No cached data found, checking for new sale lists now. Please wait...")
		if _, err := b.runner.RunOnce(ctx); err != nil {
			b.reply(chatID, fmt.Sprintf("❌ Check failed: %v", err))
			return
		}
		props, err = b.store.ListUpcomingProperties(ctx, b.today())
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		if len(props) == 0 {
			b.reply(chatID, "No upcoming sale lists found at this time.")
			return
		}
		source = "freshly fetched"
	}

	filtered := props
	note := ""
	if pref != nil {
		var matched []model.Property
		for _, p := range props {
			if filter.Match(p, *pref) {
				matched = append(matched, p)
			}
		}
		filtered = matched
		note = " matching your preferences"
	}

	total := len(filtered)
	if total == 0 {
		b.reply(chatID, "No properties match your current preferences.\nUse /clearpreferences to see all listings.")
		return
	}

	shown := min(total, listingsCap)
	b.reply(chatID, fmt.Sprintf("📋 %d %s%s (showing first %d, %s):", total, pluralize(total, "property", "properties"), note, shown, source))
	for _, p := range filtered[:shown] {
		b.replyMarkdown(chatID, FormatProperty(p, b.siteURL))
	}
}

func (b *Bot) handleRun(ctx context.Context, chatID, userID int64) {
	if !b.cfg.IsAdmin(userID) {
		b.reply(chatID, "This command is restricted to operators.")
		return
	}
	if b.runner == nil {
		b.reply(chatID, "Ingestion is not configured.")
		return
	}

	b.reply(chatID, "⏳ Running a check now...")
	report, err := b.runner.RunOnce(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("❌ Check failed: %v", err))
		return
	}
	b.reply(chatID, FormatRunReport(report))
}

func (b *Bot) register(ctx context.Context, chatID int64, user *tgbotapi.User) error {
	name := user.UserName
	if name == "" {
		name = user.FirstName
	}
	return b.store.UpsertUser(ctx, &model.User{ID: user.ID, ChatID: chatID, DisplayName: name})
}

// preference returns the caller's active preference, or nil when none is set.
func (b *Bot) preference(ctx context.Context, userID int64) (*model.Preference, error) {
	pref, err := b.store.GetPreference(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return pref, err
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
