// Package telegram is the long-polling Telegram transport. It turns updates
// into inbound events for the gateway and implements the outbound Sender and
// the file Fetcher used by the command router.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/stitchbot/internal/bot"
	"github.com/user/stitchbot/internal/gateway"
	"github.com/user/stitchbot/internal/types"
)

const (
	maxTelegramMessage = 4096
	defaultPollTimeout = 30
	source             = "telegram"
)

// Adapter bridges Telegram to the gateway.
type Adapter struct {
	bot         *tgbotapi.BotAPI
	gateway     *gateway.Gateway
	downloader  *downloader
	pollTimeout int
}

// New creates a Telegram adapter. pollTimeout is the long-poll timeout in
// seconds; zero selects the default.
func New(token string, gw *gateway.Gateway, pollTimeout int) (*Adapter, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Adapter{
		bot:         api,
		gateway:     gw,
		downloader:  newDownloader(&http.Client{Timeout: 5 * time.Minute}, gateway.DefaultRetryPolicy()),
		pollTimeout: pollTimeout,
	}, nil
}

// Username is the bot account name reported by Telegram.
func (a *Adapter) Username() string {
	return a.bot.Self.UserName
}

// Start begins long-polling for Telegram updates. It returns when ctx is done.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.pollTimeout

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			a.handleMessage(ctx, update.Message)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	event, ok := toEvent(msg)
	if !ok {
		return
	}
	chatID := event.ChatID

	err := a.gateway.HandleInbound(ctx, event, gateway.WithOnError(func(err error) {
		if errors.Is(err, bot.ErrUnsupportedAttachment) {
			a.SendText(chatID, "Unsupported message. Send photos or videos.")
			return
		}
		a.SendText(chatID, "Sorry, something went wrong. Please try again.")
	}))
	if err != nil {
		slog.Warn("handle inbound error", "user_id", event.UserID.String(), "error", err)
		if errors.Is(err, gateway.ErrQueueFull) {
			a.SendText(chatID, "I'm busy with your earlier files. Please wait a moment and resend.")
			return
		}
		a.SendText(chatID, "Sorry, I encountered an error processing your message.")
	}
}

// toEvent converts a Telegram message into an inbound event. Messages without
// a sender, or with nothing the router understands, are dropped.
func toEvent(msg *tgbotapi.Message) (*types.InboundEvent, bool) {
	if msg.From == nil || msg.Chat == nil {
		return nil, false
	}
	event := &types.InboundEvent{
		Source: source,
		UserID: types.UserID(msg.From.ID),
		ChatID: types.ChatID(msg.Chat.ID),
	}

	switch {
	case msg.IsCommand():
		event.Command = msg.Command()
		event.Args = msg.CommandArguments()
	case len(msg.Photo) > 0:
		event.Attachment = largestPhoto(msg.Photo)
	case msg.Video != nil:
		event.Attachment = &types.Attachment{
			Type:     types.AttachmentVideo,
			FileID:   msg.Video.FileID,
			UniqueID: msg.Video.FileUniqueID,
			FileName: msg.Video.FileName,
			MimeType: msg.Video.MimeType,
			Size:     int64(msg.Video.FileSize),
		}
	case msg.Document != nil:
		event.Attachment = &types.Attachment{
			Type:     types.AttachmentDocument,
			FileID:   msg.Document.FileID,
			UniqueID: msg.Document.FileUniqueID,
			FileName: msg.Document.FileName,
			MimeType: msg.Document.MimeType,
			Size:     int64(msg.Document.FileSize),
		}
	case msg.Text != "":
		event.Text = msg.Text
	default:
		return nil, false
	}
	return event, true
}

// largestPhoto picks the highest resolution size Telegram offers.
func largestPhoto(sizes []tgbotapi.PhotoSize) *types.Attachment {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return &types.Attachment{
		Type:     types.AttachmentPhoto,
		FileID:   best.FileID,
		UniqueID: best.FileUniqueID,
		Size:     int64(best.FileSize),
	}
}
