// Package delivery resolves link targets into chat sends.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"filegate-bot/internal/db"
)

const (
	// MaxBatchFiles caps how many files a single delivery fans out to.
	MaxBatchFiles = 100
	// MaxChannelBatchPosts caps the width of a channel post range, enforced
	// both when the range is created and again when it is delivered.
	MaxChannelBatchPosts = 200

	captionLimit    = 1024
	captionTruncate = 1020
)

// Settings keys the resolver consults.
const (
	SettingCaption           = "caption"
	SettingAutoDeleteSeconds = "autodelete_seconds"
)

var ErrRangeTooWide = fmt.Errorf("range exceeds %d posts", MaxChannelBatchPosts)
var ErrBadRange = errors.New("range start must not exceed end")
var ErrNotChannelAdmin = errors.New("bot is not an admin in the source channel")

// RateLimitError is returned by a Sender when the API throttles us.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Sender is the slice of the Bot API the resolver sends through.
type Sender interface {
	SendFile(ctx context.Context, chatID int64, f db.File, caption string) (int, error)
	CopyMessage(ctx context.Context, chatID, fromChatID int64, messageID int) (int, error)
	DeleteMessage(chatID int64, messageID int) error
	BotIsAdmin(ctx context.Context, chatID int64) (bool, error)
}

// Store is the slice of persistence the resolver reads.
type Store interface {
	GetFile(id uint) (*db.File, error)
	GetBatch(id uint) (*db.Batch, error)
	BatchFiles(batchID uint) ([]db.File, error)
	GetMessage(id uint) (*db.StoredMessage, error)
	GetChannelBatch(id uint) (*db.ChannelBatch, error)
	MarkLinkUsed(code string) error
	GetSetting(key string) (string, error)
}

// Timers schedules the auto-delete of delivered messages.
type Timers interface {
	ScheduleOnce(key string, delay time.Duration, fn func())
}

type Resolver struct {
	sender Sender
	store  Store
	timers Timers
}

func NewResolver(sender Sender, store Store, timers Timers) *Resolver {
	return &Resolver{sender: sender, store: store, timers: timers}
}

// ValidateRange checks an inclusive channel post range before it is stored.
func ValidateRange(start, end int) error {
	if start > end {
		return ErrBadRange
	}
	if end-start+1 > MaxChannelBatchPosts {
		return ErrRangeTooWide
	}
	return nil
}

// Caption returns the configured caption trimmed to the API limit.
func (r *Resolver) Caption() string {
	caption, err := r.store.GetSetting(SettingCaption)
	if err != nil {
		slog.Error("caption lookup failed", "error", err)
		return ""
	}
	// The API limit counts characters, so truncate on runes to avoid
	// splitting a multi-byte one.
	if runes := []rune(caption); len(runes) > captionLimit {
		caption = string(runes[:captionTruncate]) + "..."
	}
	return caption
}

// Deliver resolves the link's target and sends it to chatID. Returns how
// many messages were delivered. Access checks happen before this point; the
// resolver only moves content.
func (r *Resolver) Deliver(ctx context.Context, chatID int64, link *db.Link) (int, error) {
	var sent []int
	var err error

	switch link.TargetType {
	case db.TargetFile:
		sent, err = r.deliverFile(ctx, chatID, link.TargetID)
	case db.TargetBatch:
		sent, err = r.deliverBatch(ctx, chatID, link.TargetID)
	case db.TargetMessage:
		sent, err = r.deliverMessage(ctx, chatID, link.TargetID)
	case db.TargetChannelBatch:
		sent, err = r.deliverChannelBatch(ctx, chatID, link.TargetID)
	default:
		return 0, fmt.Errorf("unknown target type %q", link.TargetType)
	}
	if err != nil {
		return len(sent), err
	}
	if len(sent) == 0 {
		return 0, nil
	}

	if err := r.store.MarkLinkUsed(link.Code); err != nil {
		slog.Error("link usage update failed", "code", link.Code, "error", err)
	}
	r.scheduleAutoDelete(chatID, sent)
	return len(sent), nil
}

func (r *Resolver) deliverFile(ctx context.Context, chatID int64, fileID uint) ([]int, error) {
	f, err := r.store.GetFile(fileID)
	if err != nil {
		return nil, err
	}
	msgID, err := r.sendFileRetry(ctx, chatID, *f, r.Caption())
	if err != nil {
		return nil, err
	}
	return []int{msgID}, nil
}

func (r *Resolver) deliverBatch(ctx context.Context, chatID int64, batchID uint) ([]int, error) {
	if _, err := r.store.GetBatch(batchID); err != nil {
		return nil, err
	}
	files, err := r.store.BatchFiles(batchID)
	if err != nil {
		return nil, err
	}
	if len(files) > MaxBatchFiles {
		files = files[:MaxBatchFiles]
	}

	caption := r.Caption()
	var sent []int
	for _, f := range files {
		msgID, err := r.sendFileRetry(ctx, chatID, f, caption)
		if err != nil {
			slog.Error("batch item send failed", "file_id", f.ID, "error", err)
			continue
		}
		sent = append(sent, msgID)
	}
	return sent, nil
}

func (r *Resolver) deliverMessage(ctx context.Context, chatID int64, msgID uint) ([]int, error) {
	m, err := r.store.GetMessage(msgID)
	if err != nil {
		return nil, err
	}
	id, err := r.copyRetry(ctx, chatID, m.FromChatID, m.MessageID)
	if err != nil {
		return nil, err
	}
	return []int{id}, nil
}

// deliverChannelBatch copies every post in the stored range. The range is
// re-validated and the bot's admin status in the source channel re-checked
// on every delivery, since both can drift after the link was created. Gaps
// in the channel (deleted posts) are skipped rather than aborting the whole
// run.
func (r *Resolver) deliverChannelBatch(ctx context.Context, chatID int64, cbID uint) ([]int, error) {
	cb, err := r.store.GetChannelBatch(cbID)
	if err != nil {
		return nil, err
	}
	if err := ValidateRange(cb.StartMsgID, cb.EndMsgID); err != nil {
		return nil, err
	}

	admin, err := r.sender.BotIsAdmin(ctx, cb.ChannelID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, ErrNotChannelAdmin
	}

	var sent []int
	for msgID := cb.StartMsgID; msgID <= cb.EndMsgID; msgID++ {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		id, err := r.copyRetry(ctx, chatID, cb.ChannelID, msgID)
		if err != nil {
			slog.Debug("channel post copy failed", "channel_id", cb.ChannelID, "message_id", msgID, "error", err)
			continue
		}
		sent = append(sent, id)
	}
	return sent, nil
}

// sendFileRetry sends once, honoring a single rate-limit backoff.
func (r *Resolver) sendFileRetry(ctx context.Context, chatID int64, f db.File, caption string) (int, error) {
	msgID, err := r.sender.SendFile(ctx, chatID, f, caption)
	if wait, ok := retryAfter(err); ok {
		if err := sleepCtx(ctx, wait); err != nil {
			return 0, err
		}
		msgID, err = r.sender.SendFile(ctx, chatID, f, caption)
		return msgID, err
	}
	return msgID, err
}

func (r *Resolver) copyRetry(ctx context.Context, chatID, fromChatID int64, messageID int) (int, error) {
	id, err := r.sender.CopyMessage(ctx, chatID, fromChatID, messageID)
	if wait, ok := retryAfter(err); ok {
		if err := sleepCtx(ctx, wait); err != nil {
			return 0, err
		}
		id, err = r.sender.CopyMessage(ctx, chatID, fromChatID, messageID)
		return id, err
	}
	return id, err
}

func retryAfter(err error) (time.Duration, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter, true
	}
	return 0, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scheduleAutoDelete arms a deletion timer per delivered message when the
// auto-delete setting is on.
func (r *Resolver) scheduleAutoDelete(chatID int64, msgIDs []int) {
	raw, err := r.store.GetSetting(SettingAutoDeleteSeconds)
	if err != nil || raw == "" {
		return
	}
	var seconds int64
	if _, err := fmt.Sscanf(raw, "%d", &seconds); err != nil || seconds <= 0 {
		return
	}

	delay := time.Duration(seconds) * time.Second
	for _, msgID := range msgIDs {
		id := msgID
		key := fmt.Sprintf("autodel-%d-%d", chatID, id)
		r.timers.ScheduleOnce(key, delay, func() {
			if err := r.sender.DeleteMessage(chatID, id); err != nil {
				slog.Debug("auto-delete failed", "chat_id", chatID, "message_id", id, "error", err)
			}
		})
	}
}
