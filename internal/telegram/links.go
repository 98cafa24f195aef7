package telegram

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/db"
	"filegate-bot/internal/delivery"
	"filegate-bot/internal/security"
)

// hasIngestableContent reports whether an admin message carries something we
// can put behind a link: a media file or a forwarded channel post.
func hasIngestableContent(msg *tgbotapi.Message) bool {
	if _, ok := extractFile(msg); ok {
		return true
	}
	return msg.ForwardFromChat != nil && msg.ForwardFromMessageID != 0
}

// extractFile pulls the remote file handle out of a media message.
func extractFile(msg *tgbotapi.Message) (*db.File, bool) {
	switch {
	case msg.Document != nil:
		return &db.File{
			TgFileID:     msg.Document.FileID,
			FileUniqueID: msg.Document.FileUniqueID,
			FileType:     "document",
			FileName:     msg.Document.FileName,
		}, true
	case msg.Video != nil:
		return &db.File{
			TgFileID:     msg.Video.FileID,
			FileUniqueID: msg.Video.FileUniqueID,
			FileType:     "video",
			FileName:     msg.Video.FileName,
		}, true
	case msg.Audio != nil:
		return &db.File{
			TgFileID:     msg.Audio.FileID,
			FileUniqueID: msg.Audio.FileUniqueID,
			FileType:     "audio",
			FileName:     msg.Audio.FileName,
		}, true
	case msg.Animation != nil:
		return &db.File{
			TgFileID:     msg.Animation.FileID,
			FileUniqueID: msg.Animation.FileUniqueID,
			FileType:     "animation",
			FileName:     msg.Animation.FileName,
		}, true
	case len(msg.Photo) > 0:
		// Telegram sends every thumbnail size; the last entry is the
		// original.
		p := msg.Photo[len(msg.Photo)-1]
		return &db.File{
			TgFileID:     p.FileID,
			FileUniqueID: p.FileUniqueID,
			FileType:     "photo",
		}, true
	}
	return nil, false
}

// handleIngest turns an admin's media or forwarded post into a stored
// target with a fresh pair of links.
func (s *Service) handleIngest(msg *tgbotapi.Message) {
	if f, ok := extractFile(msg); ok {
		f.AddedBy = msg.From.ID
		if err := s.repo.SaveFile(f); err != nil {
			s.handleError(msg.Chat.ID, ErrDatabasef("file save: %v", err))
			return
		}
		s.issueLinks(msg.Chat.ID, msg.From.ID, db.TargetFile, f.ID)
		return
	}

	stored := &db.StoredMessage{
		FromChatID: msg.ForwardFromChat.ID,
		MessageID:  msg.ForwardFromMessageID,
		AddedBy:    msg.From.ID,
	}
	if err := s.repo.SaveMessage(stored); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("message save: %v", err))
		return
	}
	s.issueLinks(msg.Chat.ID, msg.From.ID, db.TargetMessage, stored.ID)
}

// issueLinks creates the normal and premium link for a target and replies
// with both deep links.
func (s *Service) issueLinks(chatID, createdBy int64, targetType string, targetID uint) {
	var codes [2]string
	for i, access := range []string{db.AccessNormal, db.AccessPremium} {
		code, err := security.NewCode()
		if err != nil {
			s.handleError(chatID, ErrDatabasef("code generation: %v", err))
			return
		}
		link := &db.Link{
			Code:       code,
			TargetType: targetType,
			TargetID:   targetID,
			Access:     access,
			CreatedBy:  createdBy,
		}
		if err := s.repo.CreateLink(link); err != nil {
			s.handleError(chatID, ErrDatabasef("link create: %v", err))
			return
		}
		codes[i] = code
	}

	text := fmt.Sprintf(`✅ Links ready.

🔗 Normal:
%s

⭐ Premium-only:
%s`,
		s.deepLink(codes[0]), s.deepLink(codes[1]))
	s.reply(chatID, text)
}

func (s *Service) deepLink(code string) string {
	name := s.cfg.BotName
	if s.bot != nil && s.bot.Self.UserName != "" {
		name = s.bot.Self.UserName
	}
	return fmt.Sprintf("https://t.me/%s?start=%s", name, code)
}

func (s *Service) handleGetLink(msg *tgbotapi.Message) {
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			s.handleError(msg.Chat.ID, ErrInvalidInputf("bad file id %q", arg))
			return
		}
		if _, err := s.repo.GetFile(uint(id)); err != nil {
			s.handleError(msg.Chat.ID, ErrNotFoundf("no stored file with id %d", id))
			return
		}
		s.issueLinks(msg.Chat.ID, msg.From.ID, db.TargetFile, uint(id))
		return
	}

	if msg.ReplyToMessage == nil || !hasIngestableContent(msg.ReplyToMessage) {
		s.reply(msg.Chat.ID, "Reply to a file (or forwarded channel post) with /getlink, use /getlink <file_id> for a stored file, or just send me the file directly.")
		return
	}
	reply := *msg.ReplyToMessage
	reply.From = msg.From
	reply.Chat = msg.Chat
	s.handleIngest(&reply)
}

func (s *Service) handleBatchStart(msg *tgbotapi.Message) {
	s.sessions.Set(msg.From.ID, &Session{State: StateAwaitRangeStart})
	s.reply(msg.Chat.ID, "📡 Forward me the FIRST post of the range from the source channel. /cancel aborts.")
}

func (s *Service) handleCustomBatch(msg *tgbotapi.Message) {
	s.sessions.Set(msg.From.ID, &Session{State: StateCollectingBatch})
	s.reply(msg.Chat.ID, fmt.Sprintf("🧩 Batch started. Send me the files one by one (up to %d), then /done. /cancel aborts.", delivery.MaxBatchFiles))
}

func (s *Service) handleCustomBatchDone(msg *tgbotapi.Message) {
	sess := s.sessions.Get(msg.From.ID)
	if sess.State != StateCollectingBatch {
		s.reply(msg.Chat.ID, "No batch in progress. Start one with /custombatch.")
		return
	}
	if len(sess.FileIDs) == 0 {
		s.reply(msg.Chat.ID, "The batch is empty. Send some files first, or /cancel.")
		return
	}

	b, err := s.repo.CreateBatch(msg.From.ID, sess.FileIDs)
	if err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("batch create: %v", err))
		return
	}
	s.sessions.Reset(msg.From.ID)
	s.issueLinks(msg.Chat.ID, msg.From.ID, db.TargetBatch, b.ID)
}

// handleSessionMessage advances whichever multi-step flow the admin is in.
// Returns false when the message should fall through to normal handling.
func (s *Service) handleSessionMessage(msg *tgbotapi.Message) bool {
	sess := s.sessions.Get(msg.From.ID)

	switch sess.State {
	case StateCollectingBatch:
		return s.collectBatchFile(msg, sess)
	case StateAwaitRangeStart:
		return s.collectRangeStart(msg, sess)
	case StateAwaitRangeEnd:
		return s.collectRangeEnd(msg, sess)
	case StateAwaitChannelRef:
		return s.collectChannelRef(msg, sess)
	}
	return false
}

func (s *Service) collectBatchFile(msg *tgbotapi.Message, sess *Session) bool {
	f, ok := extractFile(msg)
	if !ok {
		s.reply(msg.Chat.ID, "Send a file, or finish with /done.")
		return true
	}
	if len(sess.FileIDs) >= delivery.MaxBatchFiles {
		s.reply(msg.Chat.ID, fmt.Sprintf("Batch is full (%d files). Finish with /done.", delivery.MaxBatchFiles))
		return true
	}

	f.AddedBy = msg.From.ID
	if err := s.repo.SaveFile(f); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("file save: %v", err))
		return true
	}
	sess.FileIDs = append(sess.FileIDs, f.ID)
	s.reply(msg.Chat.ID, fmt.Sprintf("Added (%d in batch). Send more or /done.", len(sess.FileIDs)))
	return true
}

func (s *Service) collectRangeStart(msg *tgbotapi.Message, sess *Session) bool {
	if msg.ForwardFromChat == nil || msg.ForwardFromMessageID == 0 {
		s.reply(msg.Chat.ID, "That isn't a forwarded channel post. Forward the FIRST post of the range.")
		return true
	}
	sess.RangeChannelID = msg.ForwardFromChat.ID
	sess.RangeStart = msg.ForwardFromMessageID
	sess.State = StateAwaitRangeEnd
	s.reply(msg.Chat.ID, "Got it. Now forward the LAST post of the range.")
	return true
}

func (s *Service) collectRangeEnd(msg *tgbotapi.Message, sess *Session) bool {
	if msg.ForwardFromChat == nil || msg.ForwardFromMessageID == 0 {
		s.reply(msg.Chat.ID, "That isn't a forwarded channel post. Forward the LAST post of the range.")
		return true
	}
	if msg.ForwardFromChat.ID != sess.RangeChannelID {
		s.reply(msg.Chat.ID, "Both posts must come from the same channel. Forward the LAST post again.")
		return true
	}

	start, end := sess.RangeStart, msg.ForwardFromMessageID
	if err := delivery.ValidateRange(start, end); err != nil {
		s.reply(msg.Chat.ID, fmt.Sprintf("Bad range: %v. Forward the LAST post again, or /cancel.", err))
		return true
	}

	cb := &db.ChannelBatch{
		ChannelID:  sess.RangeChannelID,
		StartMsgID: start,
		EndMsgID:   end,
		CreatedBy:  msg.From.ID,
	}
	if err := s.repo.CreateChannelBatch(cb); err != nil {
		s.handleError(msg.Chat.ID, ErrDatabasef("channel batch create: %v", err))
		return true
	}
	s.sessions.Reset(msg.From.ID)
	slog.Info("channel batch created", "channel_id", cb.ChannelID, "start", start, "end", end)
	s.issueLinks(msg.Chat.ID, msg.From.ID, db.TargetChannelBatch, cb.ID)
	return true
}
