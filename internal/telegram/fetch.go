package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/stitchbot/internal/bot"
	"github.com/user/stitchbot/internal/gateway"
)

var _ bot.Fetcher = (*Adapter)(nil)

// Fetch resolves a Telegram file id and opens its download stream.
func (a *Adapter) Fetch(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := a.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, err)
	}
	return a.downloader.get(ctx, file.Link(a.bot.Token))
}

// downloader performs HTTP GETs with retries on transient failures.
type downloader struct {
	client *http.Client
	retry  *gateway.RetryPolicy
}

func newDownloader(client *http.Client, retry *gateway.RetryPolicy) *downloader {
	return &downloader{client: client, retry: retry}
}

func (d *downloader) get(ctx context.Context, url string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := d.retry.ExecuteContext(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("invalid download request: %w", err)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return &gateway.StatusError{Op: "download", Code: resp.StatusCode}
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
