package telegram

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"filegate-bot/internal/config"
	"filegate-bot/internal/db"
	"filegate-bot/internal/payments"
	"filegate-bot/internal/scheduler"
)

func setupTestService(t *testing.T) (*Service, *db.Repository) {
	cfg := &config.Config{
		BotToken: "test_token",
		OwnerID:  999,
		BotName:  "testbot",
	}

	repo, err := db.NewRepository(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	if err := repo.AutoMigrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	sched := scheduler.NewScheduler()
	t.Cleanup(sched.Stop)

	service := &Service{
		repo:     repo,
		cfg:      cfg,
		payments: payments.NewManager(repo, sched),
		sched:    sched,
		sessions: NewSessions(),
	}
	return service, repo
}

func TestCommandValidity(t *testing.T) {
	valid := []Command{CmdStart, CmdHelp, CmdPlan, CmdPay, CmdRedeem,
		CmdGetLink, CmdBatch, CmdDone, CmdCustomBatch, CmdForceCh,
		CmdForceChDebug, CmdAddPremium, CmdRemovePremium, CmdGenCode,
		CmdSetCaption, CmdRemoveCaption, CmdSetTime, CmdSetPay,
		CmdStats, CmdBroadcast, CmdAddAdmin, CmdRemoveAdmin, CmdCancel}
	for _, c := range valid {
		if !c.IsValid() {
			t.Errorf("command %q should be valid", c)
		}
	}
	for _, c := range []Command{"", "bogus", "startx"} {
		if c.IsValid() {
			t.Errorf("command %q should be invalid", c)
		}
	}
}

func TestAdminOnlyCommands(t *testing.T) {
	public := []Command{CmdStart, CmdHelp, CmdPlan, CmdPay, CmdRedeem, CmdCancel}
	for _, c := range public {
		if c.IsAdminOnly() {
			t.Errorf("command %q must be available to everyone", c)
		}
	}
	admin := []Command{CmdGetLink, CmdBatch, CmdForceCh, CmdAddPremium,
		CmdGenCode, CmdBroadcast, CmdStats, CmdSetPay}
	for _, c := range admin {
		if !c.IsAdminOnly() {
			t.Errorf("command %q must be admin-only", c)
		}
	}
}

func TestCallbackPrefixWithID(t *testing.T) {
	got := CallbackPayApprove.WithID(uint(42))
	if got != "pay_ok_42" {
		t.Errorf("WithID = %q, want pay_ok_42", got)
	}
	if !strings.HasPrefix(got, CallbackPayApprove.String()) {
		t.Error("WithID must keep the prefix")
	}
}

func TestNormalizeStartCode(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"bare code", "abcDEF123456", "abcDEF123456", true},
		{"full deep link", "https://t.me/testbot?start=abcDEF123456", "abcDEF123456", true},
		{"surrounding space", "  abcDEF123456  ", "abcDEF123456", true},
		{"invisible chars", "abc\u200bDEF\ufeff123456", "abcDEF123456", true},
		{"too short", "abc", "", false},
		{"bad chars", "abc def+123456", "", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := normalizeStartCode(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("normalizeStartCode(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseGenCodeArg(t *testing.T) {
	tests := []struct {
		in       string
		count    int
		seconds  int64
		wantErr  bool
	}{
		{"", 1, 86400, false},
		{"1", 1, 86400, false},
		{"5", 5, 86400, false},
		{"20", 20, 86400, false},
		{"100", maxGenCodes, 86400, false},
		{"12h", 1, 12 * 3600, false},
		{"30d", 1, 30 * 86400, false},
		{"0", 0, 0, true},
		{"-3", 0, 0, true},
		{"junk", 0, 0, true},
	}
	for _, tt := range tests {
		count, seconds, err := parseGenCodeArg(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseGenCodeArg(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseGenCodeArg(%q): %v", tt.in, err)
			continue
		}
		if count != tt.count || seconds != tt.seconds {
			t.Errorf("parseGenCodeArg(%q) = (%d, %d), want (%d, %d)",
				tt.in, count, seconds, tt.count, tt.seconds)
		}
	}
}

func TestApplySetPay(t *testing.T) {
	s, repo := setupTestService(t)

	if _, err := s.applySetPay([]string{"noatsign"}); err == nil {
		t.Error("UPI id without a handle part must be rejected")
	}

	if _, err := s.applySetPay([]string{"shop@upi", "Shop", "Name"}); err != nil {
		t.Fatalf("shorthand form: %v", err)
	}
	if got, _ := repo.GetSetting(settingUpiID); got != "shop@upi" {
		t.Errorf("expected upi id saved, got %q", got)
	}
	if got, _ := repo.GetSetting(settingUpiName); got != "Shop Name" {
		t.Errorf("expected payee name saved, got %q", got)
	}

	view, err := s.applySetPay([]string{"view"})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !strings.Contains(view, "shop@upi") || !strings.Contains(view, "Shop Name") {
		t.Errorf("view must show the destination, got %q", view)
	}

	if _, err := s.applySetPay([]string{"upi", "other@bank"}); err != nil {
		t.Fatalf("upi subcommand: %v", err)
	}
	if got, _ := repo.GetSetting(settingUpiID); got != "other@bank" {
		t.Errorf("expected upi id replaced, got %q", got)
	}
	if _, err := s.applySetPay([]string{"name", "New", "Payee"}); err != nil {
		t.Fatalf("name subcommand: %v", err)
	}
	if got, _ := repo.GetSetting(settingUpiName); got != "New Payee" {
		t.Errorf("expected payee name replaced, got %q", got)
	}

	if _, err := s.applySetPay([]string{"clearupi"}); err != nil {
		t.Fatalf("clearupi: %v", err)
	}
	if got, _ := repo.GetSetting(settingUpiID); got != "" {
		t.Errorf("expected upi id cleared, got %q", got)
	}
	if got, _ := repo.GetSetting(settingUpiName); got != "" {
		t.Errorf("expected payee name cleared, got %q", got)
	}
}

func TestParseDurationArg(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"30d", 30 * 86400, false},
		{"12h", 12 * 3600, false},
		{"45m", 45 * 60, false},
		{"7", 7 * 86400, false},
		{" 1D ", 86400, false},
		{"0", 0, true},
		{"-3d", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDurationArg(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDurationArg(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("parseDurationArg(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSessions(t *testing.T) {
	sessions := NewSessions()

	if st := sessions.State(1); st != StateIdle {
		t.Errorf("fresh user state = %s, want idle", st)
	}

	sessions.Set(1, &Session{State: StateCollectingBatch})
	if st := sessions.State(1); st != StateCollectingBatch {
		t.Errorf("state = %s, want collecting_batch", st)
	}

	sess := sessions.Get(1)
	sess.FileIDs = append(sess.FileIDs, 10)
	if got := sessions.Get(1); len(got.FileIDs) != 1 {
		t.Error("session mutation must be visible through Get")
	}

	sessions.Reset(1)
	if st := sessions.State(1); st != StateIdle {
		t.Errorf("state after reset = %s, want idle", st)
	}

	// Other users are independent.
	sessions.Set(2, &Session{State: StateAwaitChannelRef})
	if st := sessions.State(1); st != StateIdle {
		t.Error("sessions must be per-user")
	}
}

func TestIsAdmin(t *testing.T) {
	service, repo := setupTestService(t)

	if !service.isAdmin(999) {
		t.Error("owner must be an implicit admin")
	}
	if service.isAdmin(50) {
		t.Error("random user must not be admin")
	}

	if err := repo.AddAdmin(50, 999); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if !service.isAdmin(50) {
		t.Error("listed user must be admin")
	}
}

func TestDeepLink(t *testing.T) {
	service, _ := setupTestService(t)
	got := service.deepLink("abc123def456")
	if got != "https://t.me/testbot?start=abc123def456" {
		t.Errorf("deepLink = %q", got)
	}
}

func TestBuildUpiURI(t *testing.T) {
	got := buildUpiURI("shop@upi", "My Shop", 29)
	for _, part := range []string{"upi://pay?", "pa=shop%40upi", "pn=My+Shop", "am=29", "cu=INR"} {
		if !strings.Contains(got, part) {
			t.Errorf("UPI URI %q missing %q", got, part)
		}
	}

	noName := buildUpiURI("shop@upi", "", 9)
	if strings.Contains(noName, "pn=") {
		t.Errorf("empty payee name must be omitted: %q", noName)
	}
}

func TestQrImageURL(t *testing.T) {
	uri := buildUpiURI("shop@upi", "", 9)
	got := qrImageURL(uri)
	if !strings.HasPrefix(got, "https://api.qrserver.com/") {
		t.Errorf("unexpected QR host: %q", got)
	}
	if strings.Contains(got, "upi://") {
		t.Error("UPI URI must be escaped inside the QR URL")
	}
}

func TestExtractFile(t *testing.T) {
	tests := []struct {
		name     string
		msg      *tgbotapi.Message
		wantType string
		wantOK   bool
	}{
		{
			"document",
			&tgbotapi.Message{Document: &tgbotapi.Document{FileID: "f1", FileUniqueID: "u1", FileName: "a.pdf"}},
			"document", true,
		},
		{
			"video",
			&tgbotapi.Message{Video: &tgbotapi.Video{FileID: "f2", FileUniqueID: "u2"}},
			"video", true,
		},
		{
			"largest photo",
			&tgbotapi.Message{Photo: []tgbotapi.PhotoSize{
				{FileID: "small", FileUniqueID: "us"},
				{FileID: "big", FileUniqueID: "ub"},
			}},
			"photo", true,
		},
		{"plain text", &tgbotapi.Message{Text: "hi"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := extractFile(tt.msg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && f.FileType != tt.wantType {
				t.Errorf("type = %q, want %q", f.FileType, tt.wantType)
			}
			if tt.name == "largest photo" && f.TgFileID != "big" {
				t.Errorf("expected largest photo size, got %q", f.TgFileID)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * 24 * time.Hour, "30d 0h"},
		{26 * time.Hour, "1d 2h"},
		{90 * time.Minute, "1h 30m"},
		{5 * time.Minute, "5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
