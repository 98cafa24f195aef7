package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/db"
	"filegate-bot/internal/security"
)

func (s *Service) handlePlan(msg *tgbotapi.Message) {
	until, err := s.repo.GetPremiumUntil(msg.From.ID)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("premium lookup: %v", err))
		return
	}

	now := time.Now().Unix()
	if until <= now {
		s.reply(msg.Chat.ID, "You don't have premium. ⭐\n\nUse /pay to buy it or /redeem if you have a code.")
		return
	}

	left := time.Duration(until-now) * time.Second
	s.reply(msg.Chat.ID, fmt.Sprintf("⭐ Premium active!\n\nExpires: %s\nTime left: %s", formatUnix(until), formatDuration(left)))
}

func (s *Service) handleRedeem(msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		s.reply(msg.Chat.ID, "Usage: /redeem <code>")
		return
	}
	if !security.ValidCode(arg) {
		s.reply(msg.Chat.ID, "That code looks malformed.")
		return
	}

	grant, err := s.repo.RedeemToken(arg, msg.From.ID)
	if err == db.ErrTokenInvalid {
		s.reply(msg.Chat.ID, "This code is invalid or was already used.")
		return
	}
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("token redeem: %v", err))
		return
	}

	until, err := s.repo.AddPremiumSeconds(msg.From.ID, grant)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("premium grant after token: %v", err))
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("🎉 Code accepted! Premium active until %s.", formatUnix(until)))
}

func (s *Service) handleAddPremium(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		s.reply(msg.Chat.ID, "Usage: /addpremium <user_id> <duration>\nDuration examples: 30d, 12h, 7 (days)")
		return
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrInvalidInputf("bad user id %q", args[0]))
		return
	}
	seconds, err := parseDurationArg(args[1])
	if err != nil {
		s.handleError(msg.Chat.ID, ErrInvalidInputf("bad duration %q: %v", args[1], err))
		return
	}

	until, err := s.repo.AddPremiumSeconds(userID, seconds)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("premium grant: %v", err))
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("✅ Premium for %d extended until %s.", userID, formatUnix(until)))
	s.reply(userID, fmt.Sprintf("🎁 You've been granted premium until %s!", formatUnix(until)))
}

func (s *Service) handleRemovePremium(msg *tgbotapi.Message) {
	arg := strings.TrimSpace(msg.CommandArguments())
	userID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		s.reply(msg.Chat.ID, "Usage: /removepremium <user_id>")
		return
	}

	if err := s.repo.SetPremiumUntil(userID, 0); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("premium revoke: %v", err))
		return
	}
	s.reply(msg.Chat.ID, fmt.Sprintf("✅ Premium revoked for %d.", userID))
}

// maxGenCodes caps how many one-day codes a single /gencode mints.
const maxGenCodes = 20

func (s *Service) handleGenCode(msg *tgbotapi.Message) {
	count, seconds, err := parseGenCodeArg(msg.CommandArguments())
	if err != nil {
		s.handleError(msg.Chat.ID, ErrInvalidInputf("bad /gencode argument %q: %v", msg.CommandArguments(), err))
		return
	}

	var lines []string
	for i := 0; i < count; i++ {
		token, err := security.NewToken()
		if err != nil {
			s.handleError(msg.Chat.ID, ErrDatabasef("token generation: %v", err))
			return
		}
		if err := s.repo.CreateToken(&db.Token{Token: token, CreatedBy: msg.From.ID, GrantSeconds: seconds}); err != nil {
			s.handleError(msg.Chat.ID, ErrDatabasef("token create: %v", err))
			return
		}
		lines = append(lines, fmt.Sprintf("%s\n%s", token, s.deepLink(token)))
	}

	s.reply(msg.Chat.ID, fmt.Sprintf(`🎟 %d one-time premium code(s), %s each. Redeem with /redeem <code> or via the link.

%s`, count, formatDuration(time.Duration(seconds)*time.Second), strings.Join(lines, "\n\n")))
}

// parseGenCodeArg reads /gencode's argument. A bare number mints that many
// one-day codes, clamped to maxGenCodes; a suffixed duration ("12h", "30d")
// mints a single code of that length. No argument mints one one-day code.
func parseGenCodeArg(arg string) (count int, seconds int64, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 1, 86400, nil
	}
	if n, convErr := strconv.Atoi(arg); convErr == nil {
		if n < 1 {
			return 0, 0, fmt.Errorf("count must be positive")
		}
		if n > maxGenCodes {
			n = maxGenCodes
		}
		return n, 86400, nil
	}
	seconds, err = parseDurationArg(arg)
	if err != nil {
		return 0, 0, err
	}
	return 1, seconds, nil
}

// parseDurationArg accepts "30d", "12h", "45m" or a bare day count.
func parseDurationArg(arg string) (int64, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" {
		return 0, fmt.Errorf("empty duration")
	}

	mult := int64(86400)
	num := arg
	switch {
	case strings.HasSuffix(arg, "d"):
		num = strings.TrimSuffix(arg, "d")
	case strings.HasSuffix(arg, "h"):
		mult = 3600
		num = strings.TrimSuffix(arg, "h")
	case strings.HasSuffix(arg, "m"):
		mult = 60
		num = strings.TrimSuffix(arg, "m")
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n * mult, nil
}

func formatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("02 Jan 2006 15:04 UTC")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
