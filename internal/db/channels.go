package db

import (
	"time"

	"gorm.io/gorm/clause"
)

// Force-channel modes.
const (
	ModeDirect  = "direct"
	ModeRequest = "request"
)

// AddForceChannel registers or replaces a required channel.
func (r *Repository) AddForceChannel(ch *ForceChannel) error {
	if ch.AddedAt == 0 {
		ch.AddedAt = time.Now().Unix()
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"mode", "invite_link", "title", "username", "added_by", "added_at"}),
	}).Create(ch).Error
}

func (r *Repository) RemoveForceChannel(channelID int64) (bool, error) {
	res := r.db.Delete(&ForceChannel{}, "channel_id = ?", channelID)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) ClearForceChannels() error {
	return r.db.Where("1 = 1").Delete(&ForceChannel{}).Error
}

func (r *Repository) ListForceChannels() ([]ForceChannel, error) {
	var chs []ForceChannel
	err := r.db.Order("added_at").Find(&chs).Error
	return chs, err
}

// AddJoinRequest caches an observed pending join request. Idempotent: the
// cache only ever grows for a (channel, user) pair.
func (r *Repository) AddJoinRequest(channelID, userID int64) error {
	req := ForceJoinRequest{ChannelID: channelID, UserID: userID, CreatedAt: time.Now().Unix()}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&req).Error
}

func (r *Repository) HasJoinRequest(channelID, userID int64) (bool, error) {
	var n int64
	err := r.db.Model(&ForceJoinRequest{}).
		Where("channel_id = ? AND user_id = ?", channelID, userID).Count(&n).Error
	return n > 0, err
}
