package telegram

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/config"
	"filegate-bot/internal/db"
	"filegate-bot/internal/delivery"
	"filegate-bot/internal/membership"
	"filegate-bot/internal/metrics"
	"filegate-bot/internal/payments"
	"filegate-bot/internal/scheduler"
)

type Service struct {
	bot      *tgbotapi.BotAPI
	tr       *Transport
	repo     *db.Repository
	cfg      *config.Config
	gate     *membership.Gate
	resolver *delivery.Resolver
	payments *payments.Manager
	sched    *scheduler.Scheduler
	sessions *Sessions
}

func New(cfg *config.Config, repo *db.Repository, sched *scheduler.Scheduler) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	// Long-polling needs any leftover webhook gone.
	_, err = bot.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		slog.Warn("Failed to delete webhook", "error", err)
	} else {
		slog.Info("Webhook removed, using long-polling")
	}

	slog.Info("Authorized as telegram bot", "username", bot.Self.UserName)

	tr := NewTransport(bot)
	service := &Service{
		bot:      bot,
		tr:       tr,
		repo:     repo,
		cfg:      cfg,
		gate:     membership.NewGate(tr, repo, cfg.OwnerID),
		resolver: delivery.NewResolver(tr, repo, sched),
		payments: payments.NewManager(repo, sched),
		sched:    sched,
		sessions: NewSessions(),
	}
	service.payments.OnExpired = service.onPaymentExpired

	if err := service.setCommands(); err != nil {
		slog.Warn("Failed to set command menu", "error", err)
	}

	return service, nil
}

func (s *Service) setCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: CmdStart.String(), Description: "Open a content link"},
		{Command: CmdPlan.String(), Description: "Show your premium status"},
		{Command: CmdPay.String(), Description: "Buy premium"},
		{Command: CmdRedeem.String(), Description: "Redeem a premium code"},
		{Command: CmdHelp.String(), Description: "How this bot works"},
	}
	_, err := s.bot.Request(tgbotapi.NewSetMyCommands(commands...))
	return err
}

func (s *Service) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := s.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			s.handleUpdate(ctx, upd)
		}
	}
}

func (s *Service) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		metrics.UpdatesTotal.WithLabelValues("message").Inc()
		s.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		metrics.UpdatesTotal.WithLabelValues("callback").Inc()
		s.handleCallbackQuery(ctx, upd.CallbackQuery)
	case upd.ChatJoinRequest != nil:
		metrics.UpdatesTotal.WithLabelValues("join_request").Inc()
		s.handleChatJoinRequest(upd.ChatJoinRequest)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil || !msg.Chat.IsPrivate() {
		return
	}

	if err := s.repo.UpsertUser(msg.From.ID, msg.From.FirstName, msg.From.UserName); err != nil {
		slog.Error("user upsert failed", "user_id", msg.From.ID, "error", err)
	}

	if msg.IsCommand() {
		s.handleCommand(ctx, msg)
		return
	}

	// Admins in a collecting flow get their media swallowed by the flow.
	if s.isAdmin(msg.From.ID) && s.handleSessionMessage(msg) {
		return
	}

	if s.isAdmin(msg.From.ID) && hasIngestableContent(msg) {
		s.handleIngest(msg)
		return
	}

	if msg.Text != "" {
		s.handleUserText(msg)
	}
}

func (s *Service) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := Command(msg.Command())

	if !cmd.IsValid() {
		s.reply(msg.Chat.ID, "Unknown command. Try /help.")
		return
	}

	if cmd.IsAdminOnly() && !s.isAdmin(msg.From.ID) {
		s.reply(msg.Chat.ID, "You are not allowed to use this command.")
		return
	}

	switch cmd {
	case CmdStart:
		s.handleStart(ctx, msg)
	case CmdHelp:
		s.handleHelp(msg)
	case CmdPlan:
		s.handlePlan(msg)
	case CmdPay:
		s.handlePay(msg)
	case CmdRedeem:
		s.handleRedeem(msg)
	case CmdGetLink:
		s.handleGetLink(msg)
	case CmdBatch:
		s.handleBatchStart(msg)
	case CmdDone:
		s.handleCustomBatchDone(msg)
	case CmdCustomBatch:
		s.handleCustomBatch(msg)
	case CmdForceCh:
		s.handleForceCh(msg)
	case CmdForceChDebug:
		s.handleForceChDebug(ctx, msg)
	case CmdAddPremium:
		s.handleAddPremium(msg)
	case CmdRemovePremium:
		s.handleRemovePremium(msg)
	case CmdGenCode:
		s.handleGenCode(msg)
	case CmdSetCaption:
		s.handleSetCaption(msg)
	case CmdRemoveCaption:
		s.handleRemoveCaption(msg)
	case CmdSetTime:
		s.handleSetTime(msg)
	case CmdSetPay:
		s.handleSetPay(msg)
	case CmdStats:
		s.handleStats(msg)
	case CmdBroadcast:
		s.handleBroadcast(ctx, msg)
	case CmdAddAdmin:
		s.handleAddAdmin(msg)
	case CmdRemoveAdmin:
		s.handleRemoveAdmin(msg)
	case CmdCancel:
		s.sessions.Reset(msg.From.ID)
		s.reply(msg.Chat.ID, "Cancelled.")
	}
}

func (s *Service) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	data := callback.Data

	switch {
	case strings.HasPrefix(data, CallbackPayPlan.String()):
		s.handlePayPlanCallback(callback)
	case strings.HasPrefix(data, CallbackPayApprove.String()),
		strings.HasPrefix(data, CallbackPayReject.String()):
		s.handlePayDecisionCallback(callback)
	case strings.HasPrefix(data, CallbackRecheck.String()):
		s.handleRecheckCallback(ctx, callback)
	case strings.HasPrefix(data, CallbackChannelMode.String()):
		s.handleChannelModeCallback(callback)
	case strings.HasPrefix(data, CallbackChannelRemove.String()):
		s.handleChannelRemoveCallback(callback)
	}
}

// handleChatJoinRequest caches join requests as they arrive, so request-mode
// checks can pass without hitting the API.
func (s *Service) handleChatJoinRequest(req *tgbotapi.ChatJoinRequest) {
	if err := s.repo.AddJoinRequest(req.Chat.ID, req.From.ID); err != nil {
		slog.Error("join request cache write failed",
			"channel_id", req.Chat.ID, "user_id", req.From.ID, "error", err)
		return
	}
	slog.Info("join request observed", "channel_id", req.Chat.ID, "user_id", req.From.ID)
}

// SweepStalePayments expires payment requests whose timers were lost,
// typically across a restart. Wired as a recurring job.
func (s *Service) SweepStalePayments() {
	s.payments.SweepStale()
}

// isAdmin treats the owner as an implicit admin.
func (s *Service) isAdmin(userID int64) bool {
	if userID == s.cfg.OwnerID {
		return true
	}
	ok, err := s.repo.IsAdmin(userID)
	if err != nil {
		slog.Error("admin lookup failed", "user_id", userID, "error", err)
		return false
	}
	return ok
}

func (s *Service) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.bot.Send(msg); err != nil {
		slog.Error("reply failed", "chat_id", chatID, "error", err)
	}
}

func (s *Service) answerCallback(callbackID, text string) {
	if _, err := s.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		slog.Error("callback answer failed", "error", err)
	}
}

func (s *Service) handleHelp(msg *tgbotapi.Message) {
	text := `This bot delivers content behind access links.

/start <code> — open a content link
/plan — show your premium status
/pay — buy premium
/redeem <code> — redeem a premium code

Open a link you received and follow the prompts. Some content
requires joining our channels first, some requires premium.`

	if s.isAdmin(msg.From.ID) {
		text += `

Admin commands:
send any file — get shareable links for it
/batch — link a range of channel posts
/custombatch ... /done — group several files into one link
/forcech — manage required channels
/forcechdebug <user_id> — explain a user's access state
/addpremium <user_id> <duration> — grant premium
/removepremium <user_id> — revoke premium
/gencode [count|duration] — mint one-time premium codes
/setcaption <text>, /removecaption — delivery caption
/settime <duration> — auto-delete delivered content
/setpay <upi_id> [name] — payment details
/stats, /broadcast, /addadmin, /removeadmin`
	}
	s.reply(msg.Chat.ID, text)
}
