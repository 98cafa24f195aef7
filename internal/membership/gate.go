// Package membership decides whether a user satisfies the required-channel
// policy before content is released.
package membership

import (
	"context"
	"log/slog"
	"time"

	"filegate-bot/internal/db"
)

// Transport is the slice of the Bot API the gate needs.
type Transport interface {
	// ChatMemberStatus returns the member status string for userID in chatID.
	ChatMemberStatus(ctx context.Context, chatID, userID int64) (string, error)
	// PendingJoinRequest reports whether userID has an unresolved join
	// request for chatID, consulting the remote API. inviteLink scopes the
	// lookup when the channel was registered with one.
	PendingJoinRequest(ctx context.Context, chatID, userID int64, inviteLink string) (bool, error)
}

// Store is the slice of persistence the gate needs.
type Store interface {
	ListForceChannels() ([]db.ForceChannel, error)
	IsAdmin(userID int64) (bool, error)
	HasJoinRequest(channelID, userID int64) (bool, error)
	AddJoinRequest(channelID, userID int64) error
}

// ChannelCheck is the per-channel diagnostic record, surfaced by the debug
// command so operators can see why a user is blocked.
type ChannelCheck struct {
	ChannelID  int64
	Mode       string
	Joined     bool
	Requested  bool
	Passed     bool
	MemberErr  string
	RequestErr string
}

// Result is the outcome of a full policy evaluation.
type Result struct {
	Passed  bool
	Missing []db.ForceChannel
	Details []ChannelCheck
}

type Gate struct {
	tr         Transport
	store      Store
	ownerID    int64
	retryDelay time.Duration
	apiTimeout time.Duration
}

func NewGate(tr Transport, store Store, ownerID int64) *Gate {
	return &Gate{
		tr:         tr,
		store:      store,
		ownerID:    ownerID,
		retryDelay: 250 * time.Millisecond,
		apiTimeout: 4 * time.Second,
	}
}

// Evaluate checks userID against every registered channel. All channels must
// pass; an empty policy passes trivially. The owner and admins bypass the
// policy entirely.
func (g *Gate) Evaluate(ctx context.Context, userID int64) (*Result, error) {
	if userID == g.ownerID {
		return &Result{Passed: true}, nil
	}
	if admin, err := g.store.IsAdmin(userID); err != nil {
		return nil, err
	} else if admin {
		return &Result{Passed: true}, nil
	}

	channels, err := g.store.ListForceChannels()
	if err != nil {
		return nil, err
	}

	res := &Result{Passed: true}
	for _, ch := range channels {
		check := g.checkChannel(ctx, ch, userID)
		res.Details = append(res.Details, check)
		if !check.Passed {
			res.Passed = false
			res.Missing = append(res.Missing, ch)
		}
	}
	return res, nil
}

func (g *Gate) checkChannel(ctx context.Context, ch db.ForceChannel, userID int64) ChannelCheck {
	check := ChannelCheck{ChannelID: ch.ChannelID, Mode: ch.Mode}

	joined, memberErr := g.isJoined(ctx, ch.ChannelID, userID)
	check.Joined = joined
	if memberErr != nil {
		check.MemberErr = memberErr.Error()
	}

	// A real member passes regardless of mode.
	if joined {
		check.Passed = true
		return check
	}

	if ch.Mode != db.ModeRequest {
		return check
	}

	requested, reqErr := g.hasPendingRequest(ctx, ch, userID)
	check.Requested = requested
	check.Passed = requested
	if reqErr != nil {
		check.RequestErr = reqErr.Error()
	}
	return check
}

// isJoined resolves the member status, retrying once on a transient failure.
// An unresolved status counts as not joined.
func (g *Gate) isJoined(ctx context.Context, chatID, userID int64) (bool, error) {
	status, err := g.tr.ChatMemberStatus(ctx, chatID, userID)
	if err != nil {
		select {
		case <-time.After(g.retryDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
		status, err = g.tr.ChatMemberStatus(ctx, chatID, userID)
		if err != nil {
			return false, err
		}
	}
	switch status {
	case "left", "kicked":
		return false, nil
	}
	return true, nil
}

// hasPendingRequest checks the local cache first and falls back to the
// remote API. A remote hit is cached so repeated rechecks stay local.
func (g *Gate) hasPendingRequest(ctx context.Context, ch db.ForceChannel, userID int64) (bool, error) {
	cached, err := g.store.HasJoinRequest(ch.ChannelID, userID)
	if err != nil {
		slog.Error("join request cache lookup failed", "channel_id", ch.ChannelID, "error", err)
	} else if cached {
		return true, nil
	}

	apiCtx, cancel := context.WithTimeout(ctx, g.apiTimeout)
	defer cancel()

	found, err := g.tr.PendingJoinRequest(apiCtx, ch.ChannelID, userID, ch.InviteLink)
	if err != nil {
		return false, err
	}
	if found {
		if err := g.store.AddJoinRequest(ch.ChannelID, userID); err != nil {
			slog.Error("join request cache write failed", "channel_id", ch.ChannelID, "error", err)
		}
	}
	return found, nil
}
