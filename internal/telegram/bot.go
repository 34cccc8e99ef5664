package telegram

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/viper"

	"github.com/blackcoin/backend/internal/services"
)

// Bot handles Telegram webhook updates. Commands are a second caller of the
// ledger and verification cores next to the HTTP API; all command handlers
// reply with a message and never mutate state outside the services.
type Bot struct {
	api    *tgbotapi.BotAPI
	db     *sql.DB
	ledger *services.LedgerService
}

func NewBot(api *tgbotapi.BotAPI, db *sql.DB, ledger *services.LedgerService) *Bot {
	return &Bot{
		api:    api,
		db:     db,
		ledger: ledger,
	}
}

// InitAPI creates the bot client from config. Returns nil when no token is
// configured so the HTTP surface can run without the bot.
func InitAPI() *tgbotapi.BotAPI {
	token := viper.GetString("telegram.bot_token")
	if token == "" {
		log.Println("Telegram bot token not configured, continuing without bot")
		return nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("Telegram bot init failed, continuing without bot: %v", err)
		return nil
	}

	log.Printf("Telegram bot authorized as @%s", api.Self.UserName)
	return api
}

// RegisterWebhook points Telegram at our webhook endpoint.
func (b *Bot) RegisterWebhook() error {
	webhookURL := viper.GetString("telegram.webhook_url")
	if webhookURL == "" {
		return fmt.Errorf("telegram.webhook_url not configured")
	}

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return err
	}
	if _, err := b.api.Request(wh); err != nil {
		return err
	}

	log.Printf("[BOT] Webhook registered at %s", webhookURL)
	return nil
}

// WebhookHandler decodes a Telegram update and dispatches the command.
func (b *Bot) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("[BOT] Invalid webhook payload: %v", err)
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	b.handleUpdate(r.Context(), update)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	msg := update.Message
	log.Printf("[BOT] /%s from telegram user %d", msg.Command(), msg.From.ID)

	switch msg.Command() {
	case "start":
		b.handleStart(msg)
	case "balance":
		b.handleBalance(ctx, msg)
	case "send_points":
		b.handleSendPoints(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /balance or /send_points <id> <amount>.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message) {
	frontendURL := viper.GetString("frontend.url")
	button := tgbotapi.InlineKeyboardButton{
		Text:   "Open BlackCoin",
		WebApp: &tgbotapi.WebAppInfo{URL: frontendURL},
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, "Welcome to BlackCoin! Tap the button below to open the app.")
	reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(button))
	if _, err := b.api.Send(reply); err != nil {
		log.Printf("[BOT] Failed to send start reply: %v", err)
	}
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	userID, err := b.resolveUser(ctx, msg.From.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "No BlackCoin account linked to this Telegram user yet. Use /start to sign up.")
		return
	}

	account, err := b.ledger.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			b.reply(msg.Chat.ID, "No account found.")
			return
		}
		log.Printf("[BOT] Balance lookup failed for user %d: %v", userID, err)
		b.reply(msg.Chat.ID, "Something went wrong, try again later.")
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("Balance: %d pts\nWallet: %s", account.Points, account.Wallet.String()))
}

func (b *Bot) handleSendPoints(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 2 {
		b.reply(msg.Chat.ID, "Usage: /send_points <recipient id> <amount>")
		return
	}

	recipientID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(msg.Chat.ID, "Recipient id must be a number.")
		return
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		b.reply(msg.Chat.ID, "Amount must be a number.")
		return
	}

	senderID, err := b.resolveUser(ctx, msg.From.ID)
	if err != nil {
		b.reply(msg.Chat.ID, "No BlackCoin account linked to this Telegram user yet. Use /start to sign up.")
		return
	}

	result, err := b.ledger.Transfer(ctx, senderID, recipientID, amount, "telegram transfer")
	if err != nil {
		b.reply(msg.Chat.ID, transferErrorMessage(err))
		return
	}

	b.reply(msg.Chat.ID, fmt.Sprintf("Sent %d pts to %d. New balance: %d pts.",
		result.Amount, result.RecipientID, result.SenderBalance))
}

func transferErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		return "Recipient not found."
	case errors.Is(err, services.ErrSameAccount):
		return "You cannot send points to yourself."
	case errors.Is(err, services.ErrInvalidAmount):
		return "Amount must be a positive number."
	case errors.Is(err, services.ErrInsufficientBalance):
		return "Insufficient balance."
	default:
		return "Transfer failed, try again later."
	}
}

func (b *Bot) resolveUser(ctx context.Context, telegramID int64) (int64, error) {
	var userID int64
	err := b.db.QueryRowContext(ctx, `SELECT id FROM users WHERE telegram_id = $1`, telegramID).Scan(&userID)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("[BOT] Failed to send reply to chat %d: %v", chatID, err)
	}
}
