// Package bot routes chat commands and attachments to the session registry,
// the staging store, the merge engine and the delivery dispatcher.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/user/stitchbot/internal/delivery"
	"github.com/user/stitchbot/internal/gateway"
	"github.com/user/stitchbot/internal/media"
	"github.com/user/stitchbot/internal/state"
	"github.com/user/stitchbot/internal/types"
)

// ErrUnsupportedAttachment is returned for events carrying neither a command
// nor a usable attachment.
var ErrUnsupportedAttachment = errors.New("unsupported attachment")

// Fetcher downloads a transport-held file.
type Fetcher interface {
	Fetch(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Merger produces one artifact from an ordered file list.
type Merger interface {
	Process(ctx context.Context, files []string, mode types.Mode) (media.Result, error)
}

// Router handles one inbound event at a time for a user. It is the gateway
// processor; the gateway guarantees events for the same user never overlap.
type Router struct {
	sessions   types.SessionStore
	staging    types.StagingStore
	journal    types.OutcomeJournal
	engine     Merger
	dispatcher *delivery.Dispatcher
	sender     delivery.Sender
	fetcher    Fetcher
	timeout    time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithJournal records every /end outcome.
func WithJournal(j types.OutcomeJournal) Option {
	return func(r *Router) { r.journal = j }
}

// WithMergeTimeout bounds a single merge. Zero means no limit.
func WithMergeTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// NewRouter wires a Router.
func NewRouter(sessions types.SessionStore, staging types.StagingStore, engine Merger, sender delivery.Sender, fetcher Fetcher, opts ...Option) *Router {
	r := &Router{
		sessions:   sessions,
		staging:    staging,
		engine:     engine,
		dispatcher: delivery.NewDispatcher(sender),
		sender:     sender,
		fetcher:    fetcher,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process is the gateway.Queue processor.
func (r *Router) Process(job *gateway.Job) error {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return r.Handle(ctx, job.ID, job.Event)
}

// Handle dispatches a single event.
func (r *Router) Handle(ctx context.Context, jobID types.JobID, ev *types.InboundEvent) error {
	if ev.Attachment != nil {
		return r.handleAttachment(ctx, ev)
	}
	if ev.Command == "" {
		if ev.Text == "" {
			return ErrUnsupportedAttachment
		}
		return r.reply(ev, "Send photos or videos, then /end to merge them. /help lists the commands.")
	}

	if mode, ok := types.ParseMode(ev.Command); ok {
		r.sessions.SetMode(ev.UserID, mode)
		return r.reply(ev, fmt.Sprintf("Mode set to %s.", mode))
	}

	switch ev.Command {
	case "start", "help":
		return r.reply(ev, usageText)
	case "end":
		return r.handleEnd(ctx, jobID, ev)
	case "clear":
		if err := r.clear(ev.UserID); err != nil {
			return err
		}
		return r.reply(ev, "Queue cleared.")
	case "status":
		return r.handleStatus(ctx, ev)
	default:
		return r.reply(ev, "Unknown command. Available: /start, /vertical, /horizontal, /long, /album, /end, /clear, /status")
	}
}

const usageText = `Welcome! I merge the images or videos you send me.

1. Choose a mode: /vertical (or /long) stacks top to bottom, /horizontal joins left to right, /album (default) sends everything back as grouped albums.
2. Send photos or videos. Do not mix the two when stitching.
3. Send /end to merge.
4. Send /clear to empty the queue.`

func (r *Router) handleAttachment(ctx context.Context, ev *types.InboundEvent) error {
	att := ev.Attachment
	if att.FileID == "" || att.UniqueID == "" {
		return ErrUnsupportedAttachment
	}
	r.sessions.Ensure(ev.UserID)

	body, err := r.fetcher.Fetch(ctx, att.FileID)
	if err != nil {
		return fmt.Errorf("download %s: %w", att.UniqueID, err)
	}
	defer body.Close()

	path, err := r.staging.Save(ev.UserID, att.UniqueID, att.Extension(), body)
	if err != nil {
		return err
	}

	count, err := r.sessions.AppendFile(ev.UserID, path)
	if errors.Is(err, state.ErrMixedKinds) {
		if rmErr := r.staging.RemoveFile(ev.UserID, path); rmErr != nil {
			slog.Warn("failed to remove rejected file", "path", path, "error", rmErr)
		}
		return r.reply(ev, "This queue already holds a different media type. Send /end or /clear first, or switch to /album.")
	}
	if err != nil {
		return err
	}
	slog.Debug("file queued", "user_id", ev.UserID.String(), "path", path, "count", count)
	return r.reply(ev, fmt.Sprintf("Received file %d. Send /end to merge.", count))
}

func (r *Router) handleEnd(ctx context.Context, jobID types.JobID, ev *types.InboundEvent) error {
	sess, ok := r.sessions.Snapshot(ev.UserID)
	if !ok || len(sess.Files) == 0 {
		return r.reply(ev, "You have not sent any files yet.")
	}

	outcome := &types.Outcome{
		UserID: ev.UserID,
		JobID:  jobID,
		At:     time.Now(),
		Mode:   sess.Mode,
		Kind:   sess.Kind,
		Files:  len(sess.Files),
	}
	// Staged files are dropped whatever happens; a failed merge must be resent.
	defer func() {
		if err := r.clear(ev.UserID); err != nil {
			slog.Error("failed to clear staging after merge", "user_id", ev.UserID.String(), "error", err)
		}
		r.record(ctx, outcome)
	}()

	if sess.Mode == types.ModeAlbum {
		return r.sendAlbum(ev, sess, outcome)
	}

	if err := r.reply(ev, fmt.Sprintf("Processing %d files, please wait...", len(sess.Files))); err != nil {
		slog.Warn("failed to send progress reply", "error", err)
	}

	mergeCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		mergeCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	res, err := r.engine.Process(mergeCtx, sess.Files, sess.Mode)
	if err != nil {
		outcome.Failure = string(media.FailureKindOf(err))
		outcome.Error = err.Error()
		return r.replyFailure(ev, err)
	}

	if res.LayoutIgnored {
		if err := r.reply(ev, "Videos are joined end to end; vertical and horizontal layouts apply to images only."); err != nil {
			slog.Warn("failed to send layout notice", "error", err)
		}
	}
	if err := r.dispatcher.SendResult(ev.ChatID, res); err != nil {
		outcome.Error = err.Error()
		return fmt.Errorf("send result: %w", err)
	}
	outcome.Success = true
	slog.Info("merge delivered", "user_id", ev.UserID.String(), "mode", string(sess.Mode), "files", len(sess.Files), "kind", string(res.Kind))
	return nil
}

func (r *Router) sendAlbum(ev *types.InboundEvent, sess types.Session, outcome *types.Outcome) error {
	sent, err := r.dispatcher.SendAlbum(ev.ChatID, sess.Files)
	if err != nil {
		outcome.Error = err.Error()
		return err
	}
	if sent == 0 {
		outcome.Failure = string(media.FailureUnsupportedType)
		return r.reply(ev, "None of the queued files are photos or videos.")
	}
	outcome.Success = true
	slog.Info("album delivered", "user_id", ev.UserID.String(), "files", sent)
	return nil
}

func (r *Router) replyFailure(ev *types.InboundEvent, err error) error {
	var failure *media.Failure
	if errors.As(err, &failure) {
		switch failure.Kind {
		case media.FailureEmptyInput:
			return r.reply(ev, "You have not sent any files yet.")
		case media.FailureUnsupportedType:
			return r.reply(ev, "Unsupported file type. Send JPG, PNG or WebP images, or MP4, MOV or AVI videos.")
		case media.FailureDecode:
			slog.Warn("merge decode failure", "user_id", ev.UserID.String(), "error", err)
			return r.reply(ev, "Merge failed: the files could not be read. They may be corrupt.")
		}
	}
	slog.Error("merge failed", "user_id", ev.UserID.String(), "error", err)
	return r.reply(ev, "Merge failed. Please send the files again.")
}

func (r *Router) handleStatus(ctx context.Context, ev *types.InboundEvent) error {
	sess := r.sessions.Ensure(ev.UserID)
	merges := int64(0)
	if r.journal != nil {
		n, err := r.journal.Count(ctx, ev.UserID)
		if err != nil {
			slog.Warn("failed to read journal", "user_id", ev.UserID.String(), "error", err)
		}
		merges = n
	}
	return r.reply(ev, fmt.Sprintf("Mode: %s\nQueued files: %d\nCompleted merges: %d", sess.Mode, len(sess.Files), merges))
}

func (r *Router) clear(user types.UserID) error {
	r.sessions.Clear(user)
	if err := r.staging.Clear(user); err != nil {
		return fmt.Errorf("clear staging: %w", err)
	}
	return nil
}

func (r *Router) record(ctx context.Context, outcome *types.Outcome) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(ctx, outcome); err != nil {
		slog.Warn("failed to record outcome", "user_id", outcome.UserID.String(), "error", err)
	}
}

func (r *Router) reply(ev *types.InboundEvent, text string) error {
	return r.sender.SendText(ev.ChatID, text)
}
