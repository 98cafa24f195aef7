package telegram

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/db"
	"filegate-bot/internal/metrics"
	"filegate-bot/internal/payments"
)

// Settings keys for the payment destination.
const (
	settingUpiID   = "upi_id"
	settingUpiName = "upi_name"
)

func (s *Service) handlePay(msg *tgbotapi.Message) {
	upiID, err := s.repo.GetSetting(settingUpiID)
	if err != nil || upiID == "" {
		s.reply(msg.Chat.ID, "Payments aren't configured yet. Contact the administrator.")
		return
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, p := range s.payments.Plans() {
		label := fmt.Sprintf("%d day(s) — ₹%d", p.Days, p.Amount)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, CallbackPayPlan.WithID(p.Key)),
		))
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, "⭐ Premium plans\n\nPick one, pay via UPI, then send me the UTR number of your payment.")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := s.bot.Send(out); err != nil {
		slog.Error("plan menu failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (s *Service) handlePayPlanCallback(callback *tgbotapi.CallbackQuery) {
	planKey := strings.TrimPrefix(callback.Data, CallbackPayPlan.String())
	userID := callback.From.ID
	chatID := userID
	if callback.Message != nil {
		chatID = callback.Message.Chat.ID
	}

	req, err := s.payments.Create(userID, planKey)
	switch err {
	case nil:
	case payments.ErrUnknownPlan:
		s.answerCallback(callback.ID, "That plan no longer exists.")
		return
	case payments.ErrUnderReview:
		s.answerCallback(callback.ID, "Your previous payment is still under review.")
		return
	case payments.ErrAlreadyActive:
		s.answerCallback(callback.ID, "You already have an active payment request.")
		return
	default:
		s.answerCallback(callback.ID, "Couldn't start the payment. Try again.")
		slog.Error("payment create failed", "user_id", userID, "error", err)
		return
	}
	s.answerCallback(callback.ID, "")
	metrics.PaymentsTotal.WithLabelValues(db.PaymentPending).Inc()

	upiID, _ := s.repo.GetSetting(settingUpiID)
	upiName, _ := s.repo.GetSetting(settingUpiName)
	uri := buildUpiURI(upiID, upiName, req.Amount)

	details := fmt.Sprintf(`💳 Payment request #%d

Plan: %d day(s) for ₹%d
Pay to: %s
UPI link: %s

⏱ You have %s. After paying, send me the UTR number here.
The request expires automatically if unpaid.`,
		req.ID, req.PlanDays, req.Amount, upiID, uri, formatDuration(payments.Window))

	detailsMsg, err := s.bot.Send(tgbotapi.NewMessage(chatID, details))
	if err != nil {
		slog.Error("payment details send failed", "chat_id", chatID, "error", err)
		return
	}

	qrMsgID := 0
	qr := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(qrImageURL(uri)))
	qr.Caption = fmt.Sprintf("Scan to pay ₹%d", req.Amount)
	if qrMsg, err := s.bot.Send(qr); err != nil {
		slog.Warn("QR send failed", "chat_id", chatID, "error", err)
	} else {
		qrMsgID = qrMsg.MessageID
	}

	if err := s.repo.SetPaymentUIMessages(req.ID, chatID, detailsMsg.MessageID, qrMsgID); err != nil {
		slog.Error("payment UI bookkeeping failed", "request_id", req.ID, "error", err)
	}
}

// handleUserText treats plain text from a user with an open payment request
// as the UTR of their payment. While the request is under review the text
// replaces the earlier reference.
func (s *Service) handleUserText(msg *tgbotapi.Message) {
	open, err := s.repo.LatestOpenPaymentRequest(msg.From.ID)
	if err == db.ErrNotFound {
		s.reply(msg.Chat.ID, "Send me a content link, or use /help.")
		return
	}
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("payment lookup: %v", err))
		return
	}
	utr := strings.TrimSpace(msg.Text)
	if len(utr) < 6 || len(utr) > 64 {
		s.reply(msg.Chat.ID, "That doesn't look like a UTR number. Send the reference number from your payment app.")
		return
	}

	resubmit := open.Status == db.PaymentSubmitted
	req, err := s.payments.SubmitUTR(msg.From.ID, utr)
	if err == payments.ErrNoOpenRequest {
		s.reply(msg.Chat.ID, "Your payment request expired. Start again with /pay.")
		return
	}
	if err != nil {
		s.handleError(msg.Chat.ID, ErrPaymentf("utr submit: %v", err))
		return
	}

	if resubmit {
		s.reply(msg.Chat.ID, "✅ UTR updated. Your payment is being verified with the new reference.")
	} else {
		metrics.PaymentsTotal.WithLabelValues(db.PaymentSubmitted).Inc()
		s.reply(msg.Chat.ID, "✅ Got it! Your payment is being verified. You'll be notified once it's approved.")
	}
	s.notifyAdminsOfPayment(req, utr)
}

// adminMsgRef locates one admin's copy of a payment review card.
type adminMsgRef struct {
	ChatID int64 `json:"chat_id"`
	MsgID  int   `json:"msg_id"`
}

func payMsgsKey(id uint) string {
	return fmt.Sprintf("paymsgs-%d", id)
}

// notifyAdminsOfPayment fans the review card out to the owner and every
// admin, remembering each message so all copies can be updated when one
// admin decides.
func (s *Service) notifyAdminsOfPayment(req *db.PaymentRequest, utr string) {
	adminIDs, err := s.repo.ListAdminIDs()
	if err != nil {
		slog.Error("admin list failed", "error", err)
	}
	targets := append([]int64{s.cfg.OwnerID}, adminIDs...)

	text := fmt.Sprintf(`💰 Payment review #%d

User: %d
Plan: %d day(s) for ₹%d
UTR: %s`,
		req.ID, req.UserID, req.PlanDays, req.Amount, utr)

	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Approve", CallbackPayApprove.WithID(req.ID)),
		tgbotapi.NewInlineKeyboardButtonData("❌ Reject", CallbackPayReject.WithID(req.ID)),
	))

	var refs []adminMsgRef
	seen := make(map[int64]bool)
	for _, adminID := range targets {
		if adminID == 0 || seen[adminID] {
			continue
		}
		seen[adminID] = true

		msg := tgbotapi.NewMessage(adminID, text)
		msg.ReplyMarkup = markup
		sent, err := s.bot.Send(msg)
		if err != nil {
			slog.Warn("admin notify failed", "admin_id", adminID, "error", err)
			continue
		}
		refs = append(refs, adminMsgRef{ChatID: adminID, MsgID: sent.MessageID})
	}

	if raw, err := json.Marshal(refs); err == nil {
		if err := s.repo.SetSetting(payMsgsKey(req.ID), string(raw)); err != nil {
			slog.Error("review card bookkeeping failed", "request_id", req.ID, "error", err)
		}
	}
}

func (s *Service) handlePayDecisionCallback(callback *tgbotapi.CallbackQuery) {
	if !s.isAdmin(callback.From.ID) {
		s.answerCallback(callback.ID, "Admins only.")
		return
	}

	approve := strings.HasPrefix(callback.Data, CallbackPayApprove.String())
	var rawID string
	if approve {
		rawID = strings.TrimPrefix(callback.Data, CallbackPayApprove.String())
	} else {
		rawID = strings.TrimPrefix(callback.Data, CallbackPayReject.String())
	}
	id64, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		s.answerCallback(callback.ID, "Bad request id.")
		return
	}
	id := uint(id64)

	var req *db.PaymentRequest
	var outcome string
	if approve {
		var until int64
		req, until, err = s.payments.Approve(id, callback.From.ID)
		if err == nil {
			outcome = fmt.Sprintf("✅ Approved by %d", callback.From.ID)
			metrics.PaymentsTotal.WithLabelValues(db.PaymentProcessed).Inc()
			s.reply(req.UserID, fmt.Sprintf("🎉 Payment approved! Premium active until %s.", formatUnix(until)))
		}
	} else {
		req, err = s.payments.Reject(id, callback.From.ID)
		if err == nil {
			outcome = fmt.Sprintf("❌ Rejected by %d", callback.From.ID)
			metrics.PaymentsTotal.WithLabelValues(db.PaymentRejected).Inc()
			s.reply(req.UserID, "❌ Your payment was rejected. If you believe this is a mistake, contact the administrator.")
		}
	}

	if err == payments.ErrNotOpen {
		s.answerCallback(callback.ID, "Already handled by another admin.")
		return
	}
	if err != nil {
		s.answerCallback(callback.ID, "Decision failed, try again.")
		slog.Error("payment decision failed", "request_id", id, "error", err)
		return
	}

	s.answerCallback(callback.ID, "Done.")
	s.syncReviewCards(id, outcome)
	s.cleanupPaymentUI(req)
}

// syncReviewCards rewrites every admin's copy of the review card with the
// final outcome and drops the buttons.
func (s *Service) syncReviewCards(id uint, outcome string) {
	raw, err := s.repo.GetSetting(payMsgsKey(id))
	if err != nil || raw == "" {
		return
	}
	var refs []adminMsgRef
	if err := json.Unmarshal([]byte(raw), &refs); err != nil {
		slog.Error("review card refs decode failed", "request_id", id, "error", err)
		return
	}

	for _, ref := range refs {
		edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MsgID,
			fmt.Sprintf("💰 Payment #%d\n\n%s", id, outcome))
		if _, err := s.bot.Send(edit); err != nil {
			slog.Debug("review card edit failed", "chat_id", ref.ChatID, "error", err)
		}
	}
	s.repo.ClearSetting(payMsgsKey(id))
}

// cleanupPaymentUI deletes the details and QR messages from the user's chat
// once the request is resolved.
func (s *Service) cleanupPaymentUI(req *db.PaymentRequest) {
	if req == nil || req.UserChatID == nil {
		return
	}
	chatID := *req.UserChatID
	for _, msgID := range []*int64{req.DetailsMsgID, req.QrMsgID} {
		if msgID == nil || *msgID == 0 {
			continue
		}
		if err := s.tr.DeleteMessage(chatID, int(*msgID)); err != nil {
			slog.Debug("payment UI cleanup failed", "chat_id", chatID, "message_id", *msgID, "error", err)
		}
	}
	if err := s.repo.ClearPaymentUIMessages(req.ID); err != nil && err != db.ErrNotFound {
		slog.Debug("payment UI bookkeeping cleanup failed", "request_id", req.ID, "error", err)
	}
}

// onPaymentExpired tears down the payment UI when the window runs out.
func (s *Service) onPaymentExpired(req *db.PaymentRequest) {
	metrics.PaymentsTotal.WithLabelValues(db.PaymentExpired).Inc()
	s.cleanupPaymentUI(req)
	s.repo.ClearSetting(payMsgsKey(req.ID))
	s.reply(req.UserID, "⏱ Your payment request expired. Start again with /pay whenever you're ready.")
}

// buildUpiURI assembles a upi: deep link for the configured payee.
func buildUpiURI(upiID, name string, amount int) string {
	v := url.Values{}
	v.Set("pa", upiID)
	if name != "" {
		v.Set("pn", name)
	}
	v.Set("am", strconv.Itoa(amount))
	v.Set("cu", "INR")
	return "upi://pay?" + v.Encode()
}

// qrImageURL renders the UPI link as a scannable image.
func qrImageURL(data string) string {
	return "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data=" + url.QueryEscape(data)
}
