package delivery

import (
	"fmt"
	"log/slog"

	"github.com/user/stitchbot/internal/media"
	"github.com/user/stitchbot/internal/types"
)

// MaxAlbumSize is the most items the transport accepts in one media group.
const MaxAlbumSize = 10

// Item is one entry of a media group.
type Item struct {
	Kind types.MediaKind
	Path string
}

// Sender is the outbound half of the chat transport.
type Sender interface {
	SendText(chat types.ChatID, text string) error
	SendPhoto(chat types.ChatID, path string) error
	SendVideo(chat types.ChatID, path string) error
	SendMediaGroup(chat types.ChatID, items []Item) error
}

// Dispatcher decides which outbound calls carry a merge result or an album.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher creates a Dispatcher sending through sender.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// SendResult sends a merged artifact as a photo or a video.
func (d *Dispatcher) SendResult(chat types.ChatID, res media.Result) error {
	return d.sendSingle(chat, Item{Kind: res.Kind, Path: res.Path})
}

func (d *Dispatcher) sendSingle(chat types.ChatID, item Item) error {
	switch item.Kind {
	case types.KindPhoto:
		return d.sender.SendPhoto(chat, item.Path)
	case types.KindVideo:
		return d.sender.SendVideo(chat, item.Path)
	}
	return fmt.Errorf("cannot send %s: unknown media kind", item.Path)
}

// AlbumItems classifies files by extension, dropping anything that is
// neither a photo nor a video. Order is preserved.
func AlbumItems(files []string) []Item {
	items := make([]Item, 0, len(files))
	for _, f := range files {
		kind := types.KindOf(f)
		if kind == types.KindUnknown {
			slog.Debug("excluding file from album", "path", f)
			continue
		}
		items = append(items, Item{Kind: kind, Path: f})
	}
	return items
}

// SendAlbum sends files as consecutive media groups of at most MaxAlbumSize
// items. A trailing group of one is sent as a single photo or video since
// media groups need at least two items. Returns the number of items sent.
func (d *Dispatcher) SendAlbum(chat types.ChatID, files []string) (int, error) {
	sent := 0
	for _, chunk := range Chunk(AlbumItems(files), MaxAlbumSize) {
		var err error
		if len(chunk) == 1 {
			err = d.sendSingle(chat, chunk[0])
		} else {
			err = d.sender.SendMediaGroup(chat, chunk)
		}
		if err != nil {
			return sent, fmt.Errorf("send album batch: %w", err)
		}
		sent += len(chunk)
	}
	return sent, nil
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var chunks [][]T
	for len(items) > 0 {
		end := min(size, len(items))
		chunks = append(chunks, items[:end:end])
		items = items[end:]
	}
	return chunks
}
