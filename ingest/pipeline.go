package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridianhq/inboxd/lock"
	"github.com/meridianhq/inboxd/store"
)

// Pipeline processes one canonical event end to end: channel lookup, contact
// resolution, conversation routing, and message materialization, all inside
// a single transaction guarded by a per-(inbox, sender) lock.
type Pipeline struct {
	DB           store.Datastore
	Locks        lock.Locker
	Resolver     *ContactResolver
	Router       *ConversationRouter
	Materializer *MessageMaterializer
	Health       *ChannelHealth
}

// Process handles one event. Returned errors are retryable; permanent
// conditions (unknown channel, duplicates, unsupported payloads) resolve to
// nil after logging.
func (p *Pipeline) Process(ctx context.Context, ev *IncomingEvent) error {
	log := zerolog.Ctx(ctx).With().
		Str("component", "pipeline").
		Str("platform", string(ev.Platform)).
		Str("source_id", ev.ExternalID).
		Logger()
	ctx = log.WithContext(ctx)

	channel, err := p.DB.GetChannelByPlatformID(ctx, ev.Platform, ev.PageID())
	if err != nil {
		return err
	}
	if channel == nil {
		log.Warn().Str("page_id", ev.PageID()).Msg("dropping event for unknown channel")
		return nil
	}
	inbox, err := p.DB.GetInboxByChannel(ctx, channel.ID)
	if err != nil {
		return err
	}
	if inbox == nil {
		log.Warn().Int64("channel_id", channel.ID).Msg("channel has no inbox, dropping event")
		return nil
	}

	release, err := p.Locks.Lock(ctx, fmt.Sprintf("%d:%s", inbox.ID, ev.ContactSourceID()))
	if err != nil {
		return err
	}
	defer release()

	err = p.runTxn(ctx, ev, channel, inbox)
	if errors.Is(err, store.ErrConflict) {
		// Lost a row-level race despite the lock (another node, or a stale
		// lock). One retry sees the winner's rows and takes the read path.
		log.Debug().Msg("storage conflict, retrying event once")
		err = p.runTxn(ctx, ev, channel, inbox)
	}
	if errors.Is(err, ErrAuthFailed) {
		// The counter bump must survive the rollback, so it runs on the
		// root datastore after the transaction is gone.
		if herr := p.Health.RecordAuthFailure(ctx, p.DB, channel); herr != nil {
			log.Err(herr).Msg("failed to record channel auth failure")
		}
		return err
	}
	return err
}

func (p *Pipeline) runTxn(ctx context.Context, ev *IncomingEvent, channel *store.Channel, inbox *store.Inbox) error {
	log := zerolog.Ctx(ctx)
	return p.DB.WithTxn(ctx, func(ds store.Datastore) error {
		_, ci, err := p.Resolver.Resolve(ctx, ds, ev, inbox, channel)
		if err != nil {
			return err
		}

		if UnsupportedAttachmentsOnly(ev) {
			// The contact commits, the message does not.
			log.Info().Msg("event carries only unsupported attachments, keeping contact only")
			return nil
		}

		var conversation *store.Conversation
		if ev.Echo {
			// Echoes append to existing conversations but never open one.
			conversation, err = ds.LatestConversation(ctx, inbox.ID, ci.ContactID)
			if err != nil {
				return err
			}
			if conversation == nil {
				log.Debug().Msg("echo with no conversation to land in, dropping")
				return nil
			}
		} else {
			conversation, err = p.Router.Route(ctx, ds, ev, inbox, ci)
			if err != nil {
				return err
			}
		}

		_, err = p.Materializer.Materialize(ctx, ds, ev, conversation, channel)
		return err
	})
}
