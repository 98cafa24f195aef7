package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertUser records or refreshes a user seen in an update.
func (r *Repository) UpsertUser(userID int64, firstName, username string) error {
	now := time.Now().Unix()
	u := User{
		UserID:    userID,
		FirstName: firstName,
		Username:  username,
		CreatedAt: now,
		LastSeen:  now,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"first_name", "username", "last_seen"}),
	}).Create(&u).Error
}

func (r *Repository) GetUser(userID int64) (*User, error) {
	var u User
	if err := r.db.First(&u, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// IsPremiumActive reports whether the user's entitlement extends past now.
func (r *Repository) IsPremiumActive(userID int64) (bool, error) {
	until, err := r.GetPremiumUntil(userID)
	if err != nil {
		return false, err
	}
	return until > time.Now().Unix(), nil
}

func (r *Repository) GetPremiumUntil(userID int64) (int64, error) {
	var u User
	err := r.db.Select("premium_until").First(&u, "user_id = ?", userID).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return u.PremiumUntil, nil
}

// AddPremiumSeconds extends the entitlement from the later of the current
// expiry and now, so stacked grants never overlap each other.
func (r *Repository) AddPremiumSeconds(userID int64, seconds int64) (int64, error) {
	now := time.Now().Unix()
	var newUntil int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var u User
		err := tx.First(&u, "user_id = ?", userID).Error
		if err == gorm.ErrRecordNotFound {
			u = User{UserID: userID, CreatedAt: now, LastSeen: now}
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		base := u.PremiumUntil
		if base < now {
			base = now
		}
		newUntil = base + seconds
		return tx.Model(&User{}).Where("user_id = ?", userID).
			Update("premium_until", newUntil).Error
	})
	return newUntil, err
}

// SetPremiumUntil overwrites the expiry; pass 0 to revoke.
func (r *Repository) SetPremiumUntil(userID int64, until int64) error {
	res := r.db.Model(&User{}).Where("user_id = ?", userID).
		Update("premium_until", until)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		now := time.Now().Unix()
		return r.db.Create(&User{UserID: userID, PremiumUntil: until, CreatedAt: now, LastSeen: now}).Error
	}
	return nil
}

func (r *Repository) ListUserIDs() ([]int64, error) {
	var ids []int64
	err := r.db.Model(&User{}).Pluck("user_id", &ids).Error
	return ids, err
}

func (r *Repository) CountUsers() (int64, error) {
	var n int64
	err := r.db.Model(&User{}).Count(&n).Error
	return n, err
}

func (r *Repository) CountPremiumUsers() (int64, error) {
	var n int64
	err := r.db.Model(&User{}).Where("premium_until > ?", time.Now().Unix()).Count(&n).Error
	return n, err
}

func (r *Repository) IsAdmin(userID int64) (bool, error) {
	var n int64
	err := r.db.Model(&Admin{}).Where("user_id = ?", userID).Count(&n).Error
	return n > 0, err
}

func (r *Repository) AddAdmin(userID, addedBy int64) error {
	a := Admin{UserID: userID, AddedBy: addedBy, AddedAt: time.Now().Unix()}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error
}

func (r *Repository) RemoveAdmin(userID int64) error {
	return r.db.Delete(&Admin{}, "user_id = ?", userID).Error
}

func (r *Repository) ListAdminIDs() ([]int64, error) {
	var ids []int64
	err := r.db.Model(&Admin{}).Pluck("user_id", &ids).Error
	return ids, err
}

func (r *Repository) GetSetting(key string) (string, error) {
	var s Setting
	err := r.db.First(&s, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

func (r *Repository) SetSetting(key, value string) error {
	s := Setting{Key: key, Value: value}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&s).Error
}

func (r *Repository) ClearSetting(key string) error {
	return r.db.Delete(&Setting{}, "key = ?", key).Error
}
