package db

// Timestamps are unix seconds throughout; entitlement and payment deadlines
// are compared against time.Now().Unix() directly.

// User - known users and their premium entitlement
type User struct {
	UserID       int64 `gorm:"primaryKey"`
	FirstName    string
	Username     string
	PremiumUntil int64 `gorm:"not null;default:0"`
	CreatedAt    int64 `gorm:"not null"`
	LastSeen     int64 `gorm:"not null"`
}

// Admin - bot administrators (owner lives in config, not here)
type Admin struct {
	UserID  int64 `gorm:"primaryKey"`
	AddedBy int64 `gorm:"not null"`
	AddedAt int64 `gorm:"not null"`
}

// Setting - generic key/value surface (caption, autodelete, payment config)
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// ForceChannel - required-membership channels
type ForceChannel struct {
	ChannelID  int64  `gorm:"primaryKey"`
	Mode       string `gorm:"not null;default:direct;check:mode IN ('direct','request')"`
	InviteLink string
	Title      string
	Username   string
	AddedBy    int64 `gorm:"not null"`
	AddedAt    int64 `gorm:"not null"`
}

// ForceJoinRequest - write-once cache of observed pending join requests
type ForceJoinRequest struct {
	ChannelID int64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    int64 `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt int64 `gorm:"not null"`
}

// File - stored remote content handle (never the bytes themselves)
type File struct {
	ID           uint   `gorm:"primaryKey"`
	TgFileID     string `gorm:"not null"`
	FileUniqueID string `gorm:"index"`
	FileType     string `gorm:"not null"`
	FileName     string
	AddedBy      int64 `gorm:"not null"`
	AddedAt      int64 `gorm:"not null"`
}

// Batch - explicit multi-file group
type Batch struct {
	ID        uint  `gorm:"primaryKey"`
	CreatedBy int64 `gorm:"not null"`
	CreatedAt int64 `gorm:"not null"`
}

type BatchItem struct {
	BatchID uint `gorm:"primaryKey;autoIncrement:false"`
	FileID  uint `gorm:"primaryKey;autoIncrement:false"`
	Ord     int  `gorm:"not null"`
}

// StoredMessage - reference to a message delivered via copy
type StoredMessage struct {
	ID         uint  `gorm:"primaryKey"`
	FromChatID int64 `gorm:"not null"`
	MessageID  int   `gorm:"not null"`
	AddedBy    int64 `gorm:"not null"`
	AddedAt    int64 `gorm:"not null"`
}

// ChannelBatch - inclusive post-id range in a source channel
type ChannelBatch struct {
	ID         uint  `gorm:"primaryKey"`
	ChannelID  int64 `gorm:"not null"`
	StartMsgID int   `gorm:"not null"`
	EndMsgID   int   `gorm:"not null"`
	CreatedBy  int64 `gorm:"not null"`
	CreatedAt  int64 `gorm:"not null"`
}

// Link target types.
const (
	TargetFile         = "file"
	TargetBatch        = "batch"
	TargetMessage      = "msg"
	TargetChannelBatch = "chbatch"
)

// Link access tiers.
const (
	AccessNormal  = "normal"
	AccessPremium = "premium"
)

// Link - opaque code to content target mapping
type Link struct {
	Code       string `gorm:"primaryKey"`
	TargetType string `gorm:"not null"`
	TargetID   uint   `gorm:"not null"`
	Access     string `gorm:"not null;check:access IN ('normal','premium')"`
	CreatedBy  int64  `gorm:"not null"`
	CreatedAt  int64  `gorm:"not null"`
	LastUsedAt *int64
	Uses       int64 `gorm:"not null;default:0"`
}

// Token - one-time premium grant. UsedBy flips from NULL to a user id
// exactly once; that transition is the whole point of the entity.
type Token struct {
	Token        string `gorm:"primaryKey"`
	CreatedBy    int64  `gorm:"not null"`
	CreatedAt    int64  `gorm:"not null"`
	UsedBy       *int64
	UsedAt       *int64
	GrantSeconds int64 `gorm:"not null"`
}

// Payment request statuses. pending -> {submitted, expired},
// submitted -> {processed, rejected}; terminal states never change.
const (
	PaymentPending   = "pending"
	PaymentSubmitted = "submitted"
	PaymentProcessed = "processed"
	PaymentRejected  = "rejected"
	PaymentExpired   = "expired"
)

// PaymentRequest - manual-verification purchase request
type PaymentRequest struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   int64  `gorm:"not null;index"`
	PlanKey  string `gorm:"not null"`
	PlanDays int    `gorm:"not null"`
	Amount   int    `gorm:"not null"`
	Status   string `gorm:"not null;default:pending;check:status IN ('pending','submitted','processed','rejected','expired')"`
	UtrText  *string

	// Message references kept only so the UI can be cleaned up later.
	UserChatID   *int64
	DetailsMsgID *int64
	QrMsgID      *int64

	ExpiresAt   int64 `gorm:"not null"`
	CreatedAt   int64 `gorm:"not null"`
	UpdatedAt   int64 `gorm:"not null"`
	ProcessedBy *int64
	ProcessedAt *int64
}
