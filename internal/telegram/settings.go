package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/delivery"
)

func (s *Service) handleSetCaption(msg *tgbotapi.Message) {
	caption := strings.TrimSpace(msg.CommandArguments())
	if caption == "" {
		s.reply(msg.Chat.ID, "Usage: /setcaption <text>\nThe text is attached to every delivered file.")
		return
	}
	if err := s.repo.SetSetting(delivery.SettingCaption, caption); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("caption save: %v", err))
		return
	}
	s.reply(msg.Chat.ID, "✅ Caption saved.")
}

func (s *Service) handleRemoveCaption(msg *tgbotapi.Message) {
	if err := s.repo.ClearSetting(delivery.SettingCaption); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("caption clear: %v", err))
		return
	}
	s.reply(msg.Chat.ID, "✅ Caption removed.")
}

// handleSetTime configures auto-delete for delivered content. Zero turns it
// off.
func (s *Service) handleSetTime(msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		s.reply(msg.Chat.ID, "Usage: /settime <duration>\nExamples: 30m, 12h, 1d. Use 0 or off to disable.")
		return
	}

	var seconds int64
	if arg != "0" && arg != "off" {
		var err error
		seconds, err = parseDurationArg(arg)
		if err != nil {
			s.handleError(msg.Chat.ID, ErrInvalidInputf("bad duration %q: %v", arg, err))
			return
		}
	}

	if err := s.repo.SetSetting(delivery.SettingAutoDeleteSeconds, strconv.FormatInt(seconds, 10)); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("autodelete save: %v", err))
		return
	}
	if seconds == 0 {
		s.reply(msg.Chat.ID, "✅ Auto-delete disabled.")
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("✅ Delivered content now self-destructs after %s.", formatDuration(time.Duration(seconds)*time.Second)))
}

func (s *Service) handleSetPay(msg *tgbotapi.Message) {
	reply, err := s.applySetPay(strings.Fields(msg.CommandArguments()))
	if err != nil {
		s.handleError(msg.Chat.ID, err)
		return
	}
	s.reply(msg.Chat.ID, reply)
}

// applySetPay runs a /setpay subcommand against settings and returns the
// confirmation text. The bare <upi_id> [name] form is kept as shorthand for
// the upi and name subcommands.
func (s *Service) applySetPay(args []string) (string, *BotError) {
	if len(args) == 0 {
		return "Usage: /setpay view | upi <id> | name <payee> | clearupi\nShorthand: /setpay <upi_id> [payee name]", nil
	}

	switch args[0] {
	case "view":
		upiID, _ := s.repo.GetSetting(settingUpiID)
		if upiID == "" {
			return "Payments are not configured. Set a destination with /setpay upi <id>.", nil
		}
		upiName, _ := s.repo.GetSetting(settingUpiName)
		if upiName == "" {
			upiName = "(not set)"
		}
		return fmt.Sprintf("💳 Payment destination\n\nUPI id: %s\nPayee name: %s", upiID, upiName), nil
	case "clearupi":
		if err := s.repo.ClearSetting(settingUpiID); err != nil {
			return "", ErrDatabasef("upi clear: %v", err)
		}
		if err := s.repo.ClearSetting(settingUpiName); err != nil {
			return "", ErrDatabasef("upi name clear: %v", err)
		}
		return "✅ Payment destination cleared. /pay is disabled until a new one is set.", nil
	case "upi":
		if len(args) != 2 {
			return "Usage: /setpay upi <id>", nil
		}
		return s.saveUpi(args[1], nil)
	case "name":
		if len(args) < 2 {
			return "Usage: /setpay name <payee name>", nil
		}
		name := strings.Join(args[1:], " ")
		if err := s.repo.SetSetting(settingUpiName, name); err != nil {
			return "", ErrDatabasef("upi name save: %v", err)
		}
		return fmt.Sprintf("✅ Payee name set to %s.", name), nil
	default:
		return s.saveUpi(args[0], args[1:])
	}
}

func (s *Service) saveUpi(upiID string, nameParts []string) (string, *BotError) {
	if !strings.Contains(upiID, "@") {
		return "", ErrInvalidInputf("UPI id %q has no handle part", upiID)
	}
	if err := s.repo.SetSetting(settingUpiID, upiID); err != nil {
		return "", ErrDatabasef("upi save: %v", err)
	}
	if len(nameParts) > 0 {
		if err := s.repo.SetSetting(settingUpiName, strings.Join(nameParts, " ")); err != nil {
			return "", ErrDatabasef("upi name save: %v", err)
		}
	}
	return fmt.Sprintf("✅ Payments now go to %s.", upiID), nil
}

func (s *Service) handleStats(msg *tgbotapi.Message) {
	stats, err := s.repo.CollectStats()
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("stats: %v", err))
		return
	}

	s.reply(msg.Chat.ID, fmt.Sprintf(`📊 Stats

Users: %d (premium: %d)
Stored files: %d
Links: %d
Required channels: %d
Open payments: %d`,
		stats.Users, stats.PremiumUsers, stats.Files, stats.Links,
		stats.Channels, stats.OpenPayments))
}

// handleBroadcast copies the replied-to message to every known user.
func (s *Service) handleBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	if msg.ReplyToMessage == nil {
		s.reply(msg.Chat.ID, "Reply to the message you want to broadcast with /broadcast.")
		return
	}

	userIDs, err := s.repo.ListUserIDs()
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("user list: %v", err))
		return
	}

	src := msg.ReplyToMessage
	sent, failed := 0, 0
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		_, err := s.tr.CopyMessage(ctx, userID, src.Chat.ID, src.MessageID)
		if wait, ok := retryAfterDuration(err); ok {
			time.Sleep(wait)
			_, err = s.tr.CopyMessage(ctx, userID, src.Chat.ID, src.MessageID)
		}
		if err != nil {
			failed++
			continue
		}
		sent++
	}

	slog.Info("broadcast finished", "sent", sent, "failed", failed)
	s.reply(msg.Chat.ID, fmt.Sprintf("📣 Broadcast done. Delivered: %d, failed: %d.", sent, failed))
}

func retryAfterDuration(err error) (time.Duration, bool) {
	var rle *delivery.RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter, true
	}
	return 0, false
}

func (s *Service) handleAddAdmin(msg *tgbotapi.Message) {
	if msg.From.ID != s.cfg.OwnerID {
		s.reply(msg.Chat.ID, "Only the owner can manage admins.")
		return
	}
	arg := strings.TrimSpace(msg.CommandArguments())
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		s.reply(msg.Chat.ID, "Usage: /addadmin <user_id>")
		return
	}

	if err := s.repo.AddAdmin(userID, msg.From.ID); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("admin add: %v", err))
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("✅ %d is now an admin.", userID))
}

func (s *Service) handleRemoveAdmin(msg *tgbotapi.Message) {
	if msg.From.ID != s.cfg.OwnerID {
		s.reply(msg.Chat.ID, "Only the owner can manage admins.")
		return
	}
	arg := strings.TrimSpace(msg.CommandArguments())
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		s.reply(msg.Chat.ID, "Usage: /removeadmin <user_id>")
		return
	}

	if err := s.repo.RemoveAdmin(userID); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("admin remove: %v", err))
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("✅ %d is no longer an admin.", userID))
}
