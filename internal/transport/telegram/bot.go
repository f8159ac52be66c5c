// Package telegram implements transport.Transport over the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ghostbot/internal/logging"
	"ghostbot/internal/transport"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MaxDownloadBytes caps file downloads from the Bot API file endpoint.
const MaxDownloadBytes = 20 << 20

// Bot is a Telegram transport.
type Bot struct {
	api  *tgbotapi.BotAPI
	http *http.Client
}

var _ transport.Transport = (*Bot)(nil)

// Config configures a Bot.
type Config struct {
	Token string
	Debug bool
	// HTTPClient is used for file downloads. Defaults to a 60s client.
	HTTPClient *http.Client
}

// New authenticates with the Bot API.
func New(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: empty bot token")
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	api.Debug = cfg.Debug
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logging.Transport("Authorized as @%s", api.Self.UserName)
	return &Bot{api: api, http: client}, nil
}

// Username returns the bot's handle.
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Updates starts long polling. The channel closes after StopUpdates.
func (b *Bot) Updates(timeoutSeconds int) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSeconds
	return b.api.GetUpdatesChan(u)
}

// StopUpdates ends long polling.
func (b *Bot) StopUpdates() {
	b.api.StopReceivingUpdates()
}

// Send implements transport.Transport.
func (b *Bot) Send(ctx context.Context, chatID int64, msg transport.Message) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	cfg.ParseMode = string(msg.ParseMode)
	if kb := inlineKeyboard(msg.Keyboard); kb != nil {
		cfg.ReplyMarkup = *kb
	}
	sent, err := b.api.Send(cfg)
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("telegram: send: %w", err)
	}
	return transport.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit implements transport.Transport. "message is not modified" is success.
func (b *Bot) Edit(ctx context.Context, ref transport.MessageRef, msg transport.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, msg.Text)
	cfg.ParseMode = string(msg.ParseMode)
	cfg.ReplyMarkup = inlineKeyboard(msg.Keyboard)
	if _, err := b.api.Request(cfg); err != nil {
		return classify("edit", err)
	}
	return nil
}

// Delete implements transport.Transport.
func (b *Bot) Delete(ctx context.Context, ref transport.MessageRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return classify("delete", err)
	}
	return nil
}

// SendPhoto implements transport.Transport.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, photo []byte, caption transport.Message) (transport.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return transport.MessageRef{}, err
	}
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.jpg", Bytes: photo})
	cfg.Caption = caption.Text
	cfg.ParseMode = string(caption.ParseMode)
	sent, err := b.api.Send(cfg)
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("telegram: send photo: %w", err)
	}
	return transport.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// SetCommands implements transport.Transport.
func (b *Bot) SetCommands(ctx context.Context, commands []transport.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmds := make([]tgbotapi.BotCommand, len(commands))
	for i, c := range commands {
		cmds[i] = tgbotapi.BotCommand{Command: c.Name, Description: c.Description}
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		return fmt.Errorf("telegram: set commands: %w", err)
	}
	return nil
}

// AnswerCallback implements transport.Transport.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

// Download fetches a file by id from the Bot API file endpoint.
func (b *Bot) Download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram: resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram: download: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("telegram: download: %w", err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, fmt.Errorf("telegram: download exceeds %d bytes", MaxDownloadBytes)
	}
	return data, nil
}

func inlineKeyboard(kb transport.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		rows = append(rows, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// classify maps Bot API edit/delete failures onto transport semantics.
func classify(op string, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "message is not modified"):
		return nil
	case strings.Contains(msg, "message to edit not found"),
		strings.Contains(msg, "message to delete not found"),
		strings.Contains(msg, "message can't be deleted"):
		return fmt.Errorf("telegram: %s: %w", op, transport.ErrNotFound)
	}
	return fmt.Errorf("telegram: %s: %w", op, err)
}
