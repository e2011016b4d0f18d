package telegram

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/stitchbot/internal/delivery"
	"github.com/user/stitchbot/internal/types"
)

var _ delivery.Sender = (*Adapter)(nil)

// SendText sends a plain text reply, split at the Telegram message limit.
// Send failures are logged; a lost reply never fails the job.
func (a *Adapter) SendText(chat types.ChatID, text string) error {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(int64(chat), part)
		if _, err := a.bot.Send(msg); err != nil {
			slog.Warn("send message error", "chat_id", int64(chat), "error", err)
		}
	}
	return nil
}

// SendPhoto uploads a local image.
func (a *Adapter) SendPhoto(chat types.ChatID, path string) error {
	if _, err := a.bot.Send(tgbotapi.NewPhoto(int64(chat), tgbotapi.FilePath(path))); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// SendVideo uploads a local video.
func (a *Adapter) SendVideo(chat types.ChatID, path string) error {
	if _, err := a.bot.Send(tgbotapi.NewVideo(int64(chat), tgbotapi.FilePath(path))); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// SendMediaGroup uploads between two and ten local files as one album.
func (a *Adapter) SendMediaGroup(chat types.ChatID, items []delivery.Item) error {
	group := tgbotapi.NewMediaGroup(int64(chat), mediaGroupFiles(items))
	if _, err := a.bot.SendMediaGroup(group); err != nil {
		return fmt.Errorf("send media group: %w", err)
	}
	return nil
}

func mediaGroupFiles(items []delivery.Item) []interface{} {
	files := make([]interface{}, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case types.KindVideo:
			files = append(files, tgbotapi.NewInputMediaVideo(tgbotapi.FilePath(item.Path)))
		default:
			files = append(files, tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(item.Path)))
		}
	}
	return files
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
