package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/db"
	"filegate-bot/internal/delivery"
	"filegate-bot/internal/metrics"
	"filegate-bot/internal/security"
)

func (s *Service) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	payload := msg.CommandArguments()
	if payload == "" {
		s.reply(msg.Chat.ID, fmt.Sprintf("Hi %s! 👋\n\nSend me a content link, or use /help to see what I can do.", msg.From.FirstName))
		return
	}

	code, ok := normalizeStartCode(payload)
	if !ok {
		s.reply(msg.Chat.ID, "That link looks malformed. Ask for a fresh one.")
		return
	}

	s.openCode(ctx, msg.Chat.ID, msg.From.ID, code)
}

// openCode resolves a start payload into either a content delivery or a
// premium token redemption.
func (s *Service) openCode(ctx context.Context, chatID, userID int64, code string) {
	link, err := s.repo.GetLink(code)
	if err == db.ErrNotFound {
		// Longer payloads are one-time premium tokens.
		if grant, rerr := s.repo.RedeemToken(code, userID); rerr == nil {
			until, aerr := s.repo.AddPremiumSeconds(userID, grant)
			if aerr != nil {
				s.handleError(chatID, ErrDatabasef("premium grant after token: %v", aerr))
				return
			}
			s.reply(chatID, fmt.Sprintf("🎉 Premium code accepted! Your premium is active until %s.", formatUnix(until)))
			return
		}
		s.reply(chatID, "This link doesn't exist or was removed.")
		return
	}
	if err != nil {
		s.handleError(chatID, ErrDatabasef("link lookup: %v", err))
		return
	}

	s.deliverGated(ctx, chatID, userID, link)
}

// deliverGated runs the access checks and delivers the link's content when
// they pass.
func (s *Service) deliverGated(ctx context.Context, chatID, userID int64, link *db.Link) {
	res, err := s.gate.Evaluate(ctx, userID)
	if err != nil {
		s.handleError(chatID, ErrRemotef("membership evaluation: %v", err))
		return
	}
	if !res.Passed {
		metrics.MembershipChecksTotal.WithLabelValues("denied").Inc()
		metrics.DeliveriesTotal.WithLabelValues("denied_membership").Inc()
		s.sendJoinPrompt(chatID, link.Code, res.Missing)
		return
	}
	metrics.MembershipChecksTotal.WithLabelValues("passed").Inc()

	if link.Access == db.AccessPremium && !s.isAdmin(userID) {
		active, err := s.repo.IsPremiumActive(userID)
		if err != nil {
			s.handleError(chatID, ErrDatabasef("premium lookup: %v", err))
			return
		}
		if !active {
			metrics.DeliveriesTotal.WithLabelValues("denied_premium").Inc()
			s.reply(chatID, "⭐ This content is premium-only.\n\nUse /pay to buy premium or /redeem if you have a code.")
			return
		}
	}

	n, err := s.resolver.Deliver(ctx, chatID, link)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, delivery.ErrNotChannelAdmin):
			s.handleError(chatID, ErrPermission(
				"I can't access the source channel for this content right now. The administrator has been notified.",
				fmt.Sprintf("bot lost admin in source channel for link %s", link.Code)))
		case errors.Is(err, delivery.ErrRangeTooWide), errors.Is(err, delivery.ErrBadRange):
			s.handleError(chatID, ErrInvalidInputf("stored range invalid for link %s: %v", link.Code, err))
		default:
			slog.Error("delivery failed", "code", link.Code, "user_id", userID, "error", err)
			s.reply(chatID, "Couldn't deliver this content right now. Try again later.")
		}
		return
	}
	if n == 0 {
		metrics.DeliveriesTotal.WithLabelValues("empty").Inc()
		s.reply(chatID, "This link has no content behind it anymore.")
		return
	}
	metrics.DeliveriesTotal.WithLabelValues("delivered").Inc()
}

// sendJoinPrompt lists the channels the user still has to join, with a
// recheck button that retries the same link.
func (s *Service) sendJoinPrompt(chatID int64, code string, missing []db.ForceChannel) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ch := range missing {
		title := ch.Title
		if title == "" {
			title = fmt.Sprintf("Channel %d", ch.ChannelID)
		}
		url := ch.InviteLink
		if url == "" && ch.Username != "" {
			url = "https://t.me/" + ch.Username
		}
		if url == "" {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL("📢 "+title, url),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ I've joined", CallbackRecheck.WithID(code)),
	))

	msg := tgbotapi.NewMessage(chatID, "🔒 To unlock this content, join the channel(s) below, then tap the button.")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := s.bot.Send(msg); err != nil {
		slog.Error("join prompt failed", "chat_id", chatID, "error", err)
	}
}

func (s *Service) handleRecheckCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	code := strings.TrimPrefix(callback.Data, CallbackRecheck.String())
	if !security.ValidCode(code) {
		s.answerCallback(callback.ID, "This link is stale.")
		return
	}

	link, err := s.repo.GetLink(code)
	if err != nil {
		s.answerCallback(callback.ID, "This link no longer exists.")
		return
	}

	userID := callback.From.ID
	res, err := s.gate.Evaluate(ctx, userID)
	if err != nil {
		s.answerCallback(callback.ID, "Check failed, try again.")
		return
	}
	if !res.Passed {
		s.answerCallback(callback.ID, "You haven't joined all channels yet.")
		return
	}

	s.answerCallback(callback.ID, "Unlocked! 🎉")
	if callback.Message != nil {
		if err := s.tr.DeleteMessage(callback.Message.Chat.ID, callback.Message.MessageID); err != nil {
			slog.Debug("join prompt cleanup failed", "error", err)
		}
		s.deliverGated(ctx, callback.Message.Chat.ID, userID, link)
	}
}

// normalizeStartCode extracts a bare code from whatever the user pasted:
// full deep links, codes with invisible characters, or the code itself.
func normalizeStartCode(raw string) (string, bool) {
	code := strings.TrimSpace(raw)
	if i := strings.LastIndex(code, "start="); i >= 0 {
		code = code[i+len("start="):]
	}
	code = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u2060':
			return -1
		}
		return r
	}, code)
	if !security.ValidCode(code) {
		return "", false
	}
	return code, true
}

