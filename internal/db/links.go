package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateLink stores a link, replacing any prior record under the same code
// in one statement.
func (r *Repository) CreateLink(l *Link) error {
	if l.CreatedAt == 0 {
		l.CreatedAt = time.Now().Unix()
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(l).Error
}

func (r *Repository) GetLink(code string) (*Link, error) {
	var l Link
	if err := r.db.First(&l, "code = ?", code).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

// MarkLinkUsed bumps the usage counter after a successful delivery.
func (r *Repository) MarkLinkUsed(code string) error {
	now := time.Now().Unix()
	return r.db.Model(&Link{}).Where("code = ?", code).Updates(map[string]any{
		"uses":         gorm.Expr("uses + 1"),
		"last_used_at": now,
	}).Error
}

func (r *Repository) CreateToken(t *Token) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	return r.db.Create(t).Error
}

// RedeemToken consumes a one-time token for userID and returns the grant
// duration in seconds. The flip from unused to used is a single conditional
// update, so concurrent redeemers cannot both win.
func (r *Repository) RedeemToken(token string, userID int64) (int64, error) {
	var t Token
	err := r.db.First(&t, "token = ?", token).Error
	if err == gorm.ErrRecordNotFound {
		return 0, ErrTokenInvalid
	}
	if err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	res := r.db.Model(&Token{}).
		Where("token = ? AND used_by IS NULL", token).
		Updates(map[string]any{"used_by": userID, "used_at": now})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected != 1 {
		return 0, ErrTokenInvalid
	}
	return t.GrantSeconds, nil
}
