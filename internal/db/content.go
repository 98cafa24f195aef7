package db

import (
	"time"

	"gorm.io/gorm"
)

// SaveFile stores a file handle, reusing an existing row when the same
// remote file was already ingested.
func (r *Repository) SaveFile(f *File) error {
	if f.AddedAt == 0 {
		f.AddedAt = time.Now().Unix()
	}
	if f.FileUniqueID != "" {
		var existing File
		err := r.db.First(&existing, "file_unique_id = ?", f.FileUniqueID).Error
		if err == nil {
			*f = existing
			return nil
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
	}
	return r.db.Create(f).Error
}

func (r *Repository) GetFile(id uint) (*File, error) {
	var f File
	if err := r.db.First(&f, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// CreateBatch groups the given file ids, preserving order.
func (r *Repository) CreateBatch(createdBy int64, fileIDs []uint) (*Batch, error) {
	b := Batch{CreatedBy: createdBy, CreatedAt: time.Now().Unix()}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&b).Error; err != nil {
			return err
		}
		for i, fid := range fileIDs {
			item := BatchItem{BatchID: b.ID, FileID: fid, Ord: i}
			if err := tx.Create(&item).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) GetBatch(id uint) (*Batch, error) {
	var b Batch
	if err := r.db.First(&b, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// BatchFiles returns the batch contents in insertion order.
func (r *Repository) BatchFiles(batchID uint) ([]File, error) {
	var files []File
	err := r.db.
		Joins("JOIN batch_items ON batch_items.file_id = files.id").
		Where("batch_items.batch_id = ?", batchID).
		Order("batch_items.ord").
		Find(&files).Error
	return files, err
}

func (r *Repository) SaveMessage(m *StoredMessage) error {
	if m.AddedAt == 0 {
		m.AddedAt = time.Now().Unix()
	}
	return r.db.Create(m).Error
}

func (r *Repository) GetMessage(id uint) (*StoredMessage, error) {
	var m StoredMessage
	if err := r.db.First(&m, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *Repository) CreateChannelBatch(cb *ChannelBatch) error {
	if cb.CreatedAt == 0 {
		cb.CreatedAt = time.Now().Unix()
	}
	return r.db.Create(cb).Error
}

func (r *Repository) GetChannelBatch(id uint) (*ChannelBatch, error) {
	var cb ChannelBatch
	if err := r.db.First(&cb, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cb, nil
}

// Stats is a snapshot for the admin overview.
type Stats struct {
	Users        int64
	PremiumUsers int64
	Files        int64
	Links        int64
	Channels     int64
	OpenPayments int64
}

func (r *Repository) CollectStats() (*Stats, error) {
	var s Stats
	var err error
	if s.Users, err = r.CountUsers(); err != nil {
		return nil, err
	}
	if s.PremiumUsers, err = r.CountPremiumUsers(); err != nil {
		return nil, err
	}
	if err = r.db.Model(&File{}).Count(&s.Files).Error; err != nil {
		return nil, err
	}
	if err = r.db.Model(&Link{}).Count(&s.Links).Error; err != nil {
		return nil, err
	}
	if err = r.db.Model(&ForceChannel{}).Count(&s.Channels).Error; err != nil {
		return nil, err
	}
	err = r.db.Model(&PaymentRequest{}).
		Where("status IN ?", []string{PaymentPending, PaymentSubmitted}).
		Count(&s.OpenPayments).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}
