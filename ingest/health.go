package ingest

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianhq/inboxd/store"
)

// DefaultAuthErrorThreshold is the number of consecutive auth failures after
// which a channel is flagged for reauthorization.
const DefaultAuthErrorThreshold = 5

// ReauthorizationNotice is emitted once when a channel crosses the
// auth-error threshold.
type ReauthorizationNotice struct {
	AccountID  int64          `json:"account_id"`
	ChannelID  int64          `json:"channel_id"`
	Platform   store.Platform `json:"platform"`
	PlatformID string         `json:"platform_id"`
	ErrorCount int            `json:"error_count"`
}

type Notifier interface {
	NotifyReauthorizationRequired(ctx context.Context, notice ReauthorizationNotice)
}

// LogNotifier is the fallback Notifier when no queue publisher is wired.
type LogNotifier struct{}

func (LogNotifier) NotifyReauthorizationRequired(ctx context.Context, notice ReauthorizationNotice) {
	zerolog.Ctx(ctx).Warn().
		Int64("channel_id", notice.ChannelID).
		Str("platform_id", notice.PlatformID).
		Int("error_count", notice.ErrorCount).
		Msg("channel requires reauthorization")
}

// ChannelHealth tracks authorization failures per channel and drives the
// reauthorization signal.
type ChannelHealth struct {
	Threshold int
	Notifier  Notifier
}

func NewChannelHealth(threshold int, notifier Notifier) *ChannelHealth {
	if threshold <= 0 {
		threshold = DefaultAuthErrorThreshold
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ChannelHealth{Threshold: threshold, Notifier: notifier}
}

// RecordAuthFailure increments the channel's auth-error counter. The
// notification fires once, on the crossing of the threshold.
func (h *ChannelHealth) RecordAuthFailure(ctx context.Context, ds store.Datastore, channel *store.Channel) error {
	count, err := ds.IncrementAuthErrorCount(ctx, channel.ID)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Warn().
		Int64("channel_id", channel.ID).
		Int("authorization_error_count", count).
		Msg("recorded channel authorization failure")

	if count >= h.Threshold && !channel.ReauthorizationRequired {
		if err := ds.MarkReauthorizationRequired(ctx, channel.ID); err != nil {
			return err
		}
		h.Notifier.NotifyReauthorizationRequired(ctx, ReauthorizationNotice{
			AccountID:  channel.AccountID,
			ChannelID:  channel.ID,
			Platform:   channel.Platform,
			PlatformID: channel.PlatformID,
			ErrorCount: count,
		})
	}
	return nil
}

// RecordAuthSuccess resets the counter and clears the reauthorization flag.
func (h *ChannelHealth) RecordAuthSuccess(ctx context.Context, ds store.Datastore, channelID int64) error {
	return ds.ResetAuthErrorCount(ctx, channelID)
}
