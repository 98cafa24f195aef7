package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/db"
	"filegate-bot/internal/delivery"
)

const (
	joinRequestPageSize = 100
	joinRequestMaxPages = 2
)

// Transport adapts the Bot API client to the narrow interfaces the
// membership gate and the delivery resolver consume.
type Transport struct {
	bot *tgbotapi.BotAPI
}

func NewTransport(bot *tgbotapi.BotAPI) *Transport {
	return &Transport{bot: bot}
}

func (t *Transport) ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	member, err := t.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

// BotIsAdmin reports whether the bot itself holds an admin role in the chat.
func (t *Transport) BotIsAdmin(ctx context.Context, chatID int64) (bool, error) {
	status, err := t.ChatMemberStatus(ctx, chatID, t.bot.Self.ID)
	if err != nil {
		return false, err
	}
	return status == "administrator" || status == "creator", nil
}

type joinRequestEntry struct {
	User struct {
		ID int64 `json:"id"`
	} `json:"user"`
}

// PendingJoinRequest scans the channel's outstanding join requests for
// userID. When the channel was registered through a bot-created invite
// link, that link's queue is scanned first since the user almost always
// arrived through it.
func (t *Transport) PendingJoinRequest(ctx context.Context, chatID, userID int64, inviteLink string) (bool, error) {
	if strings.HasPrefix(inviteLink, "http") {
		found, err := t.scanJoinRequests(ctx, chatID, userID, inviteLink)
		if err == nil && found {
			return true, nil
		}
	}
	return t.scanJoinRequests(ctx, chatID, userID, "")
}

func (t *Transport) scanJoinRequests(ctx context.Context, chatID, userID int64, inviteLink string) (bool, error) {
	var offset int64
	for page := 0; page < joinRequestMaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		params := tgbotapi.Params{
			"chat_id": strconv.FormatInt(chatID, 10),
			"limit":   strconv.Itoa(joinRequestPageSize),
		}
		if inviteLink != "" {
			params["invite_link"] = inviteLink
		}
		if offset > 0 {
			params["offset_user_id"] = strconv.FormatInt(offset, 10)
		}

		resp, err := t.bot.MakeRequest("getChatJoinRequests", params)
		if err != nil {
			return false, err
		}

		var entries []joinRequestEntry
		if err := json.Unmarshal(resp.Result, &entries); err != nil {
			return false, fmt.Errorf("decode join requests: %w", err)
		}
		if len(entries) == 0 {
			return false, nil
		}
		for _, e := range entries {
			if e.User.ID == userID {
				return true, nil
			}
		}
		if len(entries) < joinRequestPageSize {
			return false, nil
		}
		offset = entries[len(entries)-1].User.ID + 1
	}
	return false, nil
}

func (t *Transport) SendFile(ctx context.Context, chatID int64, f db.File, caption string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fileID := tgbotapi.FileID(f.TgFileID)
	var msg tgbotapi.Chattable
	switch f.FileType {
	case "photo":
		cfg := tgbotapi.NewPhoto(chatID, fileID)
		cfg.Caption = caption
		msg = cfg
	case "video":
		cfg := tgbotapi.NewVideo(chatID, fileID)
		cfg.Caption = caption
		msg = cfg
	case "audio":
		cfg := tgbotapi.NewAudio(chatID, fileID)
		cfg.Caption = caption
		msg = cfg
	case "animation":
		cfg := tgbotapi.NewAnimation(chatID, fileID)
		cfg.Caption = caption
		msg = cfg
	default:
		cfg := tgbotapi.NewDocument(chatID, fileID)
		cfg.Caption = caption
		msg = cfg
	}

	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, asRateLimit(err)
	}
	return sent.MessageID, nil
}

func (t *Transport) CopyMessage(ctx context.Context, chatID, fromChatID int64, messageID int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := t.bot.CopyMessage(tgbotapi.NewCopyMessage(chatID, fromChatID, messageID))
	if err != nil {
		return 0, asRateLimit(err)
	}
	return res.MessageID, nil
}

func (t *Transport) DeleteMessage(chatID int64, messageID int) error {
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

// asRateLimit converts an API throttle response into the resolver's
// backoff signal.
func asRateLimit(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return &delivery.RateLimitError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	return err
}

// ResolveChat looks up a chat by numeric id or @username.
func (t *Transport) ResolveChat(ref string) (*tgbotapi.Chat, error) {
	cfg := tgbotapi.ChatInfoConfig{}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		cfg.ChatID = id
	} else {
		cfg.SuperGroupUsername = "@" + strings.TrimPrefix(ref, "@")
	}
	chat, err := t.bot.GetChat(cfg)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// CreateInviteLink creates an invite link for the channel. With joinRequest
// set, joins arrive as approval requests instead of direct members.
func (t *Transport) CreateInviteLink(chatID int64, name string, joinRequest bool) (string, error) {
	resp, err := t.bot.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:         tgbotapi.ChatConfig{ChatID: chatID},
		Name:               name,
		CreatesJoinRequest: joinRequest,
	})
	if err != nil {
		return "", err
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("decode invite link: %w", err)
	}
	return link.InviteLink, nil
}
