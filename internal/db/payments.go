package db

import (
	"time"

	"gorm.io/gorm"
)

func (r *Repository) CreatePaymentRequest(p *PaymentRequest) error {
	now := time.Now().Unix()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = PaymentPending
	}
	return r.db.Create(p).Error
}

func (r *Repository) GetPaymentRequest(id uint) (*PaymentRequest, error) {
	var p PaymentRequest
	if err := r.db.First(&p, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// LatestOpenPaymentRequest returns the user's newest non-terminal request,
// or ErrNotFound when every request has reached a terminal state.
func (r *Repository) LatestOpenPaymentRequest(userID int64) (*PaymentRequest, error) {
	var p PaymentRequest
	err := r.db.Where("user_id = ? AND status IN ?", userID,
		[]string{PaymentPending, PaymentSubmitted}).
		Order("id DESC").First(&p).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPaymentUTR records the proof reference and moves the request to
// submitted. A submitted request accepts a rewrite, so a user can correct a
// mistyped reference. Returns false once the request is resolved or expired.
func (r *Repository) SetPaymentUTR(id uint, utr string) (bool, error) {
	res := r.db.Model(&PaymentRequest{}).
		Where("id = ? AND status IN ?", id, []string{PaymentPending, PaymentSubmitted}).
		Updates(map[string]any{
			"status":     PaymentSubmitted,
			"utr_text":   utr,
			"updated_at": time.Now().Unix(),
		})
	return res.RowsAffected > 0, res.Error
}

// ExpirePaymentIfPending moves a request to expired only while it is still
// pending with no proof attached. A submitted request is never expired.
func (r *Repository) ExpirePaymentIfPending(id uint) (bool, error) {
	res := r.db.Model(&PaymentRequest{}).
		Where("id = ? AND status = ? AND (utr_text IS NULL OR utr_text = '')", id, PaymentPending).
		Updates(map[string]any{
			"status":     PaymentExpired,
			"updated_at": time.Now().Unix(),
		})
	return res.RowsAffected > 0, res.Error
}

// ApprovePaymentRequest moves a pending or submitted request to processed.
// Returns false when another decision already landed.
func (r *Repository) ApprovePaymentRequest(id uint, adminID int64) (bool, error) {
	return r.decidePayment(id, adminID, PaymentProcessed)
}

// RejectPaymentRequest moves a pending or submitted request to rejected.
func (r *Repository) RejectPaymentRequest(id uint, adminID int64) (bool, error) {
	return r.decidePayment(id, adminID, PaymentRejected)
}

func (r *Repository) decidePayment(id uint, adminID int64, status string) (bool, error) {
	now := time.Now().Unix()
	res := r.db.Model(&PaymentRequest{}).
		Where("id = ? AND status IN ?", id, []string{PaymentPending, PaymentSubmitted}).
		Updates(map[string]any{
			"status":       status,
			"processed_by": adminID,
			"processed_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected > 0, res.Error
}

// ListStalePendingPayments returns pending requests whose window already
// elapsed, typically because an expiry timer was lost to a restart.
func (r *Repository) ListStalePendingPayments() ([]PaymentRequest, error) {
	var out []PaymentRequest
	err := r.db.Where("status = ? AND expires_at < ?", PaymentPending, time.Now().Unix()).
		Find(&out).Error
	return out, err
}

// SetPaymentUIMessages records the chat messages shown for this request so
// they can be deleted once it resolves.
func (r *Repository) SetPaymentUIMessages(id uint, chatID int64, detailsMsgID, qrMsgID int) error {
	return r.db.Model(&PaymentRequest{}).Where("id = ?", id).Updates(map[string]any{
		"user_chat_id":   chatID,
		"details_msg_id": detailsMsgID,
		"qr_msg_id":      qrMsgID,
	}).Error
}

func (r *Repository) ClearPaymentUIMessages(id uint) error {
	return r.db.Model(&PaymentRequest{}).Where("id = ?", id).Updates(map[string]any{
		"details_msg_id": nil,
		"qr_msg_id":      nil,
	}).Error
}

// DeletePaymentRequest removes a request outright, used after an expired
// request's UI has been cleaned up.
func (r *Repository) DeletePaymentRequest(id uint) error {
	return r.db.Delete(&PaymentRequest{}, id).Error
}
