package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"filegate-bot/internal/db"
	"filegate-bot/internal/scheduler"
)

type sentFile struct {
	chatID  int64
	fileID  string
	caption string
}

type copied struct {
	chatID     int64
	fromChatID int64
	messageID  int
}

type fakeSender struct {
	files   []sentFile
	copies  []copied
	deleted []int

	failCopyAt map[int]bool
	limitOnce  bool
	notAdmin   bool
	nextMsgID  int
}

func (f *fakeSender) BotIsAdmin(_ context.Context, _ int64) (bool, error) {
	return !f.notAdmin, nil
}

func (f *fakeSender) SendFile(_ context.Context, chatID int64, file db.File, caption string) (int, error) {
	if f.limitOnce {
		f.limitOnce = false
		return 0, &RateLimitError{RetryAfter: time.Millisecond}
	}
	f.files = append(f.files, sentFile{chatID, file.TgFileID, caption})
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *fakeSender) CopyMessage(_ context.Context, chatID, fromChatID int64, messageID int) (int, error) {
	if f.failCopyAt[messageID] {
		return 0, errors.New("message to copy not found")
	}
	f.copies = append(f.copies, copied{chatID, fromChatID, messageID})
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *fakeSender) DeleteMessage(_ int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func setupResolver(t *testing.T) (*Resolver, *fakeSender, *db.Repository) {
	repo, err := db.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	sched := scheduler.NewScheduler()
	t.Cleanup(sched.Stop)
	sender := &fakeSender{}
	return NewResolver(sender, repo, sched), sender, repo
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		wantErr    error
	}{
		{"single post", 5, 5, nil},
		{"max width", 1, MaxChannelBatchPosts, nil},
		{"too wide", 1, MaxChannelBatchPosts + 1, ErrRangeTooWide},
		{"inverted", 10, 5, ErrBadRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateRange(tt.start, tt.end); err != tt.wantErr {
				t.Errorf("ValidateRange(%d, %d) = %v, want %v", tt.start, tt.end, err, tt.wantErr)
			}
		})
	}
}

func TestDeliverFile(t *testing.T) {
	r, sender, repo := setupResolver(t)

	f := &db.File{TgFileID: "fid", FileType: "video", AddedBy: 1}
	if err := repo.SaveFile(f); err != nil {
		t.Fatalf("save file: %v", err)
	}
	link := &db.Link{Code: "c1", TargetType: db.TargetFile, TargetID: f.ID, Access: db.AccessNormal, CreatedBy: 1}
	if err := repo.CreateLink(link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	n, err := r.Deliver(context.Background(), 42, link)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n != 1 || len(sender.files) != 1 {
		t.Errorf("expected 1 send, got n=%d sends=%d", n, len(sender.files))
	}
	if sender.files[0].chatID != 42 || sender.files[0].fileID != "fid" {
		t.Errorf("unexpected send: %+v", sender.files[0])
	}

	got, _ := repo.GetLink("c1")
	if got.Uses != 1 {
		t.Errorf("expected usage recorded, got %d", got.Uses)
	}
}

func TestDeliverFileAppliesCaption(t *testing.T) {
	r, sender, repo := setupResolver(t)

	if err := repo.SetSetting(SettingCaption, "join @channel"); err != nil {
		t.Fatalf("set caption: %v", err)
	}
	f := &db.File{TgFileID: "fid", FileType: "document", AddedBy: 1}
	repo.SaveFile(f)
	link := &db.Link{Code: "c1", TargetType: db.TargetFile, TargetID: f.ID, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	if _, err := r.Deliver(context.Background(), 42, link); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sender.files[0].caption != "join @channel" {
		t.Errorf("expected caption applied, got %q", sender.files[0].caption)
	}
}

func TestCaptionTruncated(t *testing.T) {
	r, _, repo := setupResolver(t)

	// Multi-byte runes must not be split by the cut.
	long := strings.Repeat("д", 2000)
	if err := repo.SetSetting(SettingCaption, long); err != nil {
		t.Fatalf("set caption: %v", err)
	}
	got := r.Caption()
	if n := utf8.RuneCountInString(got); n != captionTruncate+3 {
		t.Errorf("expected %d chars, got %d", captionTruncate+3, n)
	}
	if !utf8.ValidString(got) {
		t.Error("truncation produced invalid UTF-8")
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("expected ellipsis suffix")
	}
}

func TestDeliverBatchOrderAndCap(t *testing.T) {
	r, sender, repo := setupResolver(t)

	var ids []uint
	for i := 0; i < MaxBatchFiles+20; i++ {
		f := &db.File{TgFileID: "fid", FileType: "photo", AddedBy: 1}
		if err := repo.SaveFile(f); err != nil {
			t.Fatalf("save file: %v", err)
		}
		ids = append(ids, f.ID)
	}
	b, err := repo.CreateBatch(1, ids)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	link := &db.Link{Code: "c1", TargetType: db.TargetBatch, TargetID: b.ID, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	n, err := r.Deliver(context.Background(), 42, link)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n != MaxBatchFiles {
		t.Errorf("expected delivery capped at %d, got %d", MaxBatchFiles, n)
	}
	if len(sender.files) != MaxBatchFiles {
		t.Errorf("expected %d sends, got %d", MaxBatchFiles, len(sender.files))
	}
}

func TestDeliverChannelBatchSkipsGaps(t *testing.T) {
	r, sender, repo := setupResolver(t)
	sender.failCopyAt = map[int]bool{12: true}

	cb := &db.ChannelBatch{ChannelID: -100, StartMsgID: 10, EndMsgID: 14, CreatedBy: 1}
	if err := repo.CreateChannelBatch(cb); err != nil {
		t.Fatalf("create channel batch: %v", err)
	}
	link := &db.Link{Code: "c1", TargetType: db.TargetChannelBatch, TargetID: cb.ID, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	n, err := r.Deliver(context.Background(), 42, link)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 copies with one gap, got %d", n)
	}
	for _, c := range sender.copies {
		if c.messageID == 12 {
			t.Error("deleted post must be skipped, not retried into the result")
		}
		if c.fromChatID != -100 || c.chatID != 42 {
			t.Errorf("unexpected copy: %+v", c)
		}
	}
}

func TestDeliverChannelBatchRequiresAdmin(t *testing.T) {
	r, sender, repo := setupResolver(t)
	sender.notAdmin = true

	cb := &db.ChannelBatch{ChannelID: -100, StartMsgID: 10, EndMsgID: 14, CreatedBy: 1}
	if err := repo.CreateChannelBatch(cb); err != nil {
		t.Fatalf("create channel batch: %v", err)
	}
	link := &db.Link{Code: "c1", TargetType: db.TargetChannelBatch, TargetID: cb.ID, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	if _, err := r.Deliver(context.Background(), 42, link); !errors.Is(err, ErrNotChannelAdmin) {
		t.Fatalf("expected ErrNotChannelAdmin, got %v", err)
	}
	if len(sender.copies) != 0 {
		t.Errorf("no posts may be copied without admin rights, copied %d", len(sender.copies))
	}
	got, _ := repo.GetLink("c1")
	if got.Uses != 0 {
		t.Errorf("refused delivery must not count a use, got %d", got.Uses)
	}
}

func TestDeliverChannelBatchRejectsOversizedRange(t *testing.T) {
	r, sender, repo := setupResolver(t)

	// A stored range wider than the cap is refused at delivery, not
	// silently trimmed.
	cb := &db.ChannelBatch{ChannelID: -100, StartMsgID: 1, EndMsgID: MaxChannelBatchPosts + 1, CreatedBy: 1}
	if err := repo.CreateChannelBatch(cb); err != nil {
		t.Fatalf("create channel batch: %v", err)
	}
	link := &db.Link{Code: "c1", TargetType: db.TargetChannelBatch, TargetID: cb.ID, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	if _, err := r.Deliver(context.Background(), 42, link); !errors.Is(err, ErrRangeTooWide) {
		t.Fatalf("expected ErrRangeTooWide, got %v", err)
	}
	if len(sender.copies) != 0 {
		t.Errorf("oversized range must not deliver anything, copied %d", len(sender.copies))
	}
}

func TestDeliverMissingBatch(t *testing.T) {
	r, _, repo := setupResolver(t)

	link := &db.Link{Code: "c1", TargetType: db.TargetBatch, TargetID: 777, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	if _, err := r.Deliver(context.Background(), 42, link); err != db.ErrNotFound {
		t.Fatalf("expected ErrNotFound for a missing batch, got %v", err)
	}
}

func TestDeliverRetriesAfterRateLimit(t *testing.T) {
	r, sender, repo := setupResolver(t)
	sender.limitOnce = true

	f := &db.File{TgFileID: "fid", FileType: "video", AddedBy: 1}
	repo.SaveFile(f)
	link := &db.Link{Code: "c1", TargetType: db.TargetFile, TargetID: f.ID, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	n, err := r.Deliver(context.Background(), 42, link)
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n != 1 || len(sender.files) != 1 {
		t.Errorf("expected one successful send after backoff, got n=%d", n)
	}
}

func TestDeliverUnknownTarget(t *testing.T) {
	r, _, _ := setupResolver(t)
	link := &db.Link{Code: "c1", TargetType: "bogus", TargetID: 1}
	if _, err := r.Deliver(context.Background(), 42, link); err == nil {
		t.Error("expected error for unknown target type")
	}
}

func TestDeliverMissingTargetDoesNotCountUse(t *testing.T) {
	r, _, repo := setupResolver(t)

	link := &db.Link{Code: "c1", TargetType: db.TargetFile, TargetID: 12345, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	if _, err := r.Deliver(context.Background(), 42, link); err != db.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, _ := repo.GetLink("c1")
	if got.Uses != 0 {
		t.Errorf("failed delivery must not count a use, got %d", got.Uses)
	}
}

func TestAutoDelete(t *testing.T) {
	r, sender, repo := setupResolver(t)

	if err := repo.SetSetting(SettingAutoDeleteSeconds, "0"); err != nil {
		t.Fatalf("set autodelete: %v", err)
	}
	f := &db.File{TgFileID: "fid", FileType: "video", AddedBy: 1}
	repo.SaveFile(f)
	link := &db.Link{Code: "c1", TargetType: db.TargetFile, TargetID: f.ID, Access: db.AccessNormal, CreatedBy: 1}
	repo.CreateLink(link)

	if _, err := r.Deliver(context.Background(), 42, link); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	// Zero disables the feature.
	time.Sleep(20 * time.Millisecond)
	if len(sender.deleted) != 0 {
		t.Errorf("autodelete of 0 must be off, deleted %v", sender.deleted)
	}
}
