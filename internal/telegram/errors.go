package telegram

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/metrics"
)

// Error codes used across handlers.
const (
	ErrInvalidInput     = "INVALID_INPUT"
	ErrDatabaseError    = "DATABASE_ERROR"
	ErrPermissionDenied = "PERMISSION_DENIED"
	ErrNotFound         = "NOT_FOUND"
	ErrRemoteError      = "REMOTE_ERROR"
	ErrPaymentError     = "PAYMENT_ERROR"
)

// BotError carries a machine code, an operator-facing message and a
// user-facing message.
type BotError struct {
	Code        string
	Message     string
	UserMessage string
	Details     string
}

func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

func NewBotError(code, message, userMessage, details string) *BotError {
	return &BotError{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		Details:     details,
	}
}

// handleError logs the failure, replies to the user and forwards the
// details to the owner.
func (s *Service) handleError(chatID int64, err error) {
	slog.Error("Bot error occurred", "error", err)

	botErr, ok := err.(*BotError)
	if !ok {
		botErr = &BotError{
			Code:        "UNKNOWN_ERROR",
			Message:     "Unknown error occurred",
			UserMessage: "Something went wrong. Please try again later.",
			Details:     err.Error(),
		}
	}
	metrics.HandlerErrorsTotal.WithLabelValues(botErr.Code).Inc()

	s.sendErrorReport(botErr)
	s.reply(chatID, "❌ "+botErr.UserMessage)
}

// sendErrorReport forwards the error details to the owner.
func (s *Service) sendErrorReport(botErr *BotError) {
	if s.cfg.OwnerID == 0 {
		return
	}

	report := fmt.Sprintf(`🚨 Bot error:

Code: %s
Message: %s
Details: %s

Shown to user: %s`,
		botErr.Code,
		botErr.Message,
		botErr.Details,
		botErr.UserMessage,
	)

	msg := tgbotapi.NewMessage(s.cfg.OwnerID, report)
	s.bot.Send(msg)
}

func ErrInvalidInputf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrInvalidInput,
		"Invalid input provided",
		"That doesn't look right. Check the format and try again.",
		fmt.Sprintf(details, args...),
	)
}

func ErrDatabasef(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrDatabaseError,
		"Database operation failed",
		"Storage error. Please try again later.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPermission(userMessage, details string) *BotError {
	return NewBotError(
		ErrPermissionDenied,
		"Permission denied",
		userMessage,
		details,
	)
}

func ErrNotFoundf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrNotFound,
		"Entity not found",
		"Nothing found for that link or id.",
		fmt.Sprintf(details, args...),
	)
}

func ErrRemotef(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrRemoteError,
		"Telegram API call failed",
		"Telegram is not responding. Please try again later.",
		fmt.Sprintf(details, args...),
	)
}

func ErrPaymentf(details string, args ...interface{}) *BotError {
	return NewBotError(
		ErrPaymentError,
		"Payment processing failed",
		"Payment error. Contact the administrator.",
		fmt.Sprintf(details, args...),
	)
}
