// Package payments runs the manual-verification purchase lifecycle.
package payments

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"filegate-bot/internal/db"
)

// Window is how long a request stays payable before it expires.
const Window = 5 * time.Minute

var (
	ErrUnknownPlan   = errors.New("unknown plan")
	ErrUnderReview   = errors.New("a payment is already under review")
	ErrAlreadyActive = errors.New("an unpaid payment request is already active")
	ErrNoOpenRequest = errors.New("no open payment request")
	ErrNotOpen       = errors.New("request already resolved")
)

// Plan is a purchasable premium tier.
type Plan struct {
	Key    string
	Days   int
	Amount int
}

// DefaultPlans mirrors the amounts shown on the payment screen.
func DefaultPlans() map[string]Plan {
	return map[string]Plan{
		"1d":  {Key: "1d", Days: 1, Amount: 9},
		"7d":  {Key: "7d", Days: 7, Amount: 29},
		"30d": {Key: "30d", Days: 30, Amount: 99},
	}
}

// Store is the persistence surface the manager drives.
type Store interface {
	CreatePaymentRequest(p *db.PaymentRequest) error
	GetPaymentRequest(id uint) (*db.PaymentRequest, error)
	LatestOpenPaymentRequest(userID int64) (*db.PaymentRequest, error)
	SetPaymentUTR(id uint, utr string) (bool, error)
	ExpirePaymentIfPending(id uint) (bool, error)
	ApprovePaymentRequest(id uint, adminID int64) (bool, error)
	RejectPaymentRequest(id uint, adminID int64) (bool, error)
	DeletePaymentRequest(id uint) error
	ListStalePendingPayments() ([]db.PaymentRequest, error)
	AddPremiumSeconds(userID int64, seconds int64) (int64, error)
}

// Timers arms and disarms the per-request expiry.
type Timers interface {
	ScheduleOnce(key string, delay time.Duration, fn func())
	Cancel(key string) bool
}

type Manager struct {
	store  Store
	timers Timers
	plans  map[string]Plan
	window time.Duration

	// OnExpired runs after a request expires, before its row is removed.
	// The chat layer uses it to tear down the payment UI.
	OnExpired func(p *db.PaymentRequest)
}

func NewManager(store Store, timers Timers) *Manager {
	return &Manager{
		store:  store,
		timers: timers,
		plans:  DefaultPlans(),
		window: Window,
	}
}

// Plans returns the purchasable tiers, cheapest first.
func (m *Manager) Plans() []Plan {
	out := make([]Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out
}

func (m *Manager) Plan(key string) (Plan, bool) {
	p, ok := m.plans[key]
	return p, ok
}

func timerKey(id uint) string {
	return fmt.Sprintf("pay-timeout-%d", id)
}

// Create opens a new pending request for userID. At most one non-terminal
// request may exist per user: a submitted request blocks outright, a live
// pending request blocks, and a stale pending request is expired and swept
// before the new one is created.
func (m *Manager) Create(userID int64, planKey string) (*db.PaymentRequest, error) {
	plan, ok := m.plans[planKey]
	if !ok {
		return nil, ErrUnknownPlan
	}

	open, err := m.store.LatestOpenPaymentRequest(userID)
	if err != nil && err != db.ErrNotFound {
		return nil, err
	}
	if open != nil {
		switch {
		case open.Status == db.PaymentSubmitted:
			return nil, ErrUnderReview
		case open.ExpiresAt > time.Now().Unix():
			return nil, ErrAlreadyActive
		default:
			// The window elapsed but the timer never fired, typically
			// after a restart. Sweep it now.
			m.expire(open.ID)
		}
	}

	p := &db.PaymentRequest{
		UserID:    userID,
		PlanKey:   plan.Key,
		PlanDays:  plan.Days,
		Amount:    plan.Amount,
		ExpiresAt: time.Now().Add(m.window).Unix(),
	}
	if err := m.store.CreatePaymentRequest(p); err != nil {
		return nil, err
	}

	m.timers.ScheduleOnce(timerKey(p.ID), m.window, func() { m.expire(p.ID) })
	slog.Info("payment request opened", "request_id", p.ID, "user_id", userID, "plan", plan.Key)
	return p, nil
}

// SubmitUTR attaches a payment reference to the user's open request and
// moves it to submitted, which freezes the expiry. Submitting again while
// under review overwrites the reference.
func (m *Manager) SubmitUTR(userID int64, utr string) (*db.PaymentRequest, error) {
	open, err := m.store.LatestOpenPaymentRequest(userID)
	if err == db.ErrNotFound {
		return nil, ErrNoOpenRequest
	}
	if err != nil {
		return nil, err
	}

	ok, err := m.store.SetPaymentUTR(open.ID, utr)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race against the expiry timer.
		return nil, ErrNoOpenRequest
	}
	m.timers.Cancel(timerKey(open.ID))

	slog.Info("payment proof submitted", "request_id", open.ID, "user_id", userID)
	return m.store.GetPaymentRequest(open.ID)
}

// Approve resolves a request in the user's favor and grants the plan's
// duration. Returns the request and the new entitlement expiry.
func (m *Manager) Approve(id uint, adminID int64) (*db.PaymentRequest, int64, error) {
	ok, err := m.store.ApprovePaymentRequest(id, adminID)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrNotOpen
	}
	m.timers.Cancel(timerKey(id))

	p, err := m.store.GetPaymentRequest(id)
	if err != nil {
		return nil, 0, err
	}
	until, err := m.store.AddPremiumSeconds(p.UserID, int64(p.PlanDays)*86400)
	if err != nil {
		return nil, 0, err
	}
	slog.Info("payment approved", "request_id", id, "admin_id", adminID, "premium_until", until)
	return p, until, nil
}

// Reject resolves a request against the user.
func (m *Manager) Reject(id uint, adminID int64) (*db.PaymentRequest, error) {
	ok, err := m.store.RejectPaymentRequest(id, adminID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotOpen
	}
	m.timers.Cancel(timerKey(id))

	slog.Info("payment rejected", "request_id", id, "admin_id", adminID)
	return m.store.GetPaymentRequest(id)
}

// SweepStale expires every pending request whose window elapsed. Runs at
// startup and periodically, catching timers lost to a restart.
func (m *Manager) SweepStale() {
	stale, err := m.store.ListStalePendingPayments()
	if err != nil {
		slog.Error("stale payment sweep failed", "error", err)
		return
	}
	for _, p := range stale {
		m.expire(p.ID)
	}
	if len(stale) > 0 {
		slog.Info("stale payment requests swept", "count", len(stale))
	}
}

// expire fires when the payment window elapses. The status transition is
// conditional, so a proof submitted in the same instant wins and the expiry
// becomes a no-op.
func (m *Manager) expire(id uint) {
	p, err := m.store.GetPaymentRequest(id)
	if err != nil {
		if err != db.ErrNotFound {
			slog.Error("payment expiry lookup failed", "request_id", id, "error", err)
		}
		return
	}

	ok, err := m.store.ExpirePaymentIfPending(id)
	if err != nil {
		slog.Error("payment expiry failed", "request_id", id, "error", err)
		return
	}
	if !ok {
		return
	}

	if m.OnExpired != nil {
		m.OnExpired(p)
	}
	if err := m.store.DeletePaymentRequest(id); err != nil {
		slog.Error("expired payment cleanup failed", "request_id", id, "error", err)
	}
	slog.Info("payment request expired", "request_id", id, "user_id", p.UserID)
}
