package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/db"
)

// handleForceCh manages the required-channel list. Bare /forcech starts the
// guided add flow; subcommands handle the rest.
func (s *Service) handleForceCh(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		s.sessions.Set(msg.From.ID, &Session{State: StateAwaitChannelRef})
		s.reply(msg.Chat.ID, `📢 Adding a required channel.

Forward me any post from the channel, or send its @username or -100... id.
The bot must be an admin there. /cancel aborts.`)
		return
	}

	switch args[0] {
	case "list":
		s.listForceChannels(msg.Chat.ID)
	case "del", "remove":
		if len(args) != 2 {
			s.reply(msg.Chat.ID, "Usage: /forcech del <channel_id>")
			return
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			s.handleError(msg.Chat.ID, ErrInvalidInputf("bad channel id %q", args[1]))
			return
		}
		removed, err := s.repo.RemoveForceChannel(id)
		if err != nil {
			s.handleError(msg.Chat.ID, ErrDatabasef("channel remove: %v", err))
			return
		}
		if !removed {
			s.reply(msg.Chat.ID, "No such channel in the list.")
			return
		}
		s.reply(msg.Chat.ID, "✅ Channel removed.")
	case "clear", "reset":
		if err := s.repo.ClearForceChannels(); err != nil {
			s.handleError(msg.Chat.ID, ErrDatabasef("channel clear: %v", err))
			return
		}
		s.reply(msg.Chat.ID, "✅ Required-channel list cleared.")
	default:
		s.reply(msg.Chat.ID, "Usage: /forcech [list | del <channel_id> | clear]")
	}
}

func (s *Service) listForceChannels(chatID int64) {
	channels, err := s.repo.ListForceChannels()
	if err != nil {
		s.handleError(chatID, ErrDatabasef("channel list: %v", err))
		return
	}
	if len(channels) == 0 {
		s.reply(chatID, "No required channels configured.")
		return
	}

	var b strings.Builder
	b.WriteString("📢 Required channels:\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ch := range channels {
		title := ch.Title
		if title == "" {
			title = strconv.FormatInt(ch.ChannelID, 10)
		}
		fmt.Fprintf(&b, "• %s (%d) — %s mode\n", title, ch.ChannelID, ch.Mode)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 "+title, CallbackChannelRemove.WithID(ch.ChannelID)),
		))
	}

	out := tgbotapi.NewMessage(chatID, b.String())
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := s.bot.Send(out); err != nil {
		slog.Error("channel list send failed", "chat_id", chatID, "error", err)
	}
}

// collectChannelRef resolves the channel reference the admin supplied and
// asks for the gating mode.
func (s *Service) collectChannelRef(msg *tgbotapi.Message, sess *Session) bool {
	var ch *db.ForceChannel

	if msg.ForwardFromChat != nil {
		ch = &db.ForceChannel{
			ChannelID: msg.ForwardFromChat.ID,
			Title:     msg.ForwardFromChat.Title,
			Username:  msg.ForwardFromChat.UserName,
		}
	} else if ref := strings.TrimSpace(msg.Text); ref != "" {
		chat, err := s.tr.ResolveChat(ref)
		if err != nil {
			s.reply(msg.Chat.ID, "I can't see that channel. Make sure I'm an admin there, then try again.")
			return true
		}
		ch = &db.ForceChannel{
			ChannelID: chat.ID,
			Title:     chat.Title,
			Username:  chat.UserName,
		}
	} else {
		s.reply(msg.Chat.ID, "Forward a post from the channel or send its @username / id.")
		return true
	}

	ch.AddedBy = msg.From.ID
	sess.Channel = ch
	sess.State = StateAwaitMode

	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("👥 Must join", CallbackChannelMode.WithID(db.ModeDirect)),
		tgbotapi.NewInlineKeyboardButtonData("📨 Join request is enough", CallbackChannelMode.WithID(db.ModeRequest)),
	))
	out := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("Channel: %s\n\nHow should access be gated?", ch.Title))
	out.ReplyMarkup = markup
	if _, err := s.bot.Send(out); err != nil {
		slog.Error("mode prompt failed", "chat_id", msg.Chat.ID, "error", err)
	}
	return true
}

func (s *Service) handleChannelModeCallback(callback *tgbotapi.CallbackQuery) {
	if !s.isAdmin(callback.From.ID) {
		s.answerCallback(callback.ID, "Admins only.")
		return
	}

	sess := s.sessions.Get(callback.From.ID)
	if sess.State != StateAwaitMode || sess.Channel == nil {
		s.answerCallback(callback.ID, "This prompt is stale. Start over with /forcech.")
		return
	}

	mode := strings.TrimPrefix(callback.Data, CallbackChannelMode.String())
	if mode != db.ModeDirect && mode != db.ModeRequest {
		s.answerCallback(callback.ID, "Unknown mode.")
		return
	}

	ch := sess.Channel
	ch.Mode = mode

	// Private channels need an invite link for the join prompt. Request
	// mode always gets its own link so joins arrive as requests.
	if mode == db.ModeRequest || ch.Username == "" {
		link, err := s.tr.CreateInviteLink(ch.ChannelID, "access gate", mode == db.ModeRequest)
		if err != nil {
			s.answerCallback(callback.ID, "Couldn't create an invite link. Am I an admin there?")
			slog.Error("invite link create failed", "channel_id", ch.ChannelID, "error", err)
			return
		}
		ch.InviteLink = link
	}

	if err := s.repo.AddForceChannel(ch); err != nil {
		s.answerCallback(callback.ID, "Saving failed, try again.")
		slog.Error("channel save failed", "channel_id", ch.ChannelID, "error", err)
		return
	}

	s.sessions.Reset(callback.From.ID)
	s.answerCallback(callback.ID, "Saved.")
	if callback.Message != nil {
		edit := tgbotapi.NewEditMessageText(callback.Message.Chat.ID, callback.Message.MessageID,
			fmt.Sprintf("✅ %s added in %s mode.", ch.Title, mode))
		s.bot.Send(edit)
	}
}

func (s *Service) handleChannelRemoveCallback(callback *tgbotapi.CallbackQuery) {
	if !s.isAdmin(callback.From.ID) {
		s.answerCallback(callback.ID, "Admins only.")
		return
	}

	raw := strings.TrimPrefix(callback.Data, CallbackChannelRemove.String())
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.answerCallback(callback.ID, "Bad channel id.")
		return
	}

	removed, err := s.repo.RemoveForceChannel(id)
	if err != nil {
		s.answerCallback(callback.ID, "Removal failed.")
		return
	}
	if !removed {
		s.answerCallback(callback.ID, "Already gone.")
		return
	}
	s.answerCallback(callback.ID, "Removed.")
	if callback.Message != nil {
		s.listForceChannels(callback.Message.Chat.ID)
	}
}

// handleForceChDebug explains a user's state against every channel, check
// by check.
func (s *Service) handleForceChDebug(ctx context.Context, msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	userID := msg.From.ID
	if arg != "" {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			s.reply(msg.Chat.ID, "Usage: /forcechdebug [user_id]")
			return
		}
		userID = id
	}

	res, err := s.gate.Evaluate(ctx, userID)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrRemotef("membership evaluation: %v", err))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Access state for %d\n\nOverall: %s\n", userID, passEmoji(res.Passed))
	for _, d := range res.Details {
		fmt.Fprintf(&b, "\nChannel %d (%s mode)\n", d.ChannelID, d.Mode)
		fmt.Fprintf(&b, "  joined: %v\n", d.Joined)
		if d.Mode == db.ModeRequest {
			fmt.Fprintf(&b, "  join request: %v\n", d.Requested)
		}
		fmt.Fprintf(&b, "  passed: %s\n", passEmoji(d.Passed))
		if d.MemberErr != "" {
			fmt.Fprintf(&b, "  member lookup error: %s\n", d.MemberErr)
		}
		if d.RequestErr != "" {
			fmt.Fprintf(&b, "  request lookup error: %s\n", d.RequestErr)
		}
	}
	if len(res.Details) == 0 {
		b.WriteString("\nNo channels configured, or the user bypasses the policy.")
	}
	s.reply(msg.Chat.ID, b.String())
}

func passEmoji(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}
