package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/meridianhq/inboxd/graphapi"
	"github.com/meridianhq/inboxd/store"
)

// ErrAuthFailed marks an event aborted because the channel's access token
// was rejected. The transaction rolls back; the caller bumps the channel's
// auth-error counter outside it and requeues the event.
var ErrAuthFailed = errors.New("platform rejected the channel access token")

// FallbackContactName is used when the sender has no public profile.
const FallbackContactName = "John Doe"

type ProfileFetcher interface {
	GetProfile(ctx context.Context, accessToken, userID string) (*graphapi.Profile, error)
}

// ContactResolver finds or creates the contact behind an event's sender.
type ContactResolver struct {
	Profiles ProfileFetcher
	Health   *ChannelHealth
}

// Resolve returns the contact and contact-inbox binding for the event,
// creating both on first sight of the sender. Profile lookup failures fall
// back to a default name except for auth errors, which abort the event.
func (r *ContactResolver) Resolve(ctx context.Context, ds store.Datastore, ev *IncomingEvent, inbox *store.Inbox, channel *store.Channel) (*store.Contact, *store.ContactInbox, error) {
	log := zerolog.Ctx(ctx).With().
		Str("component", "contact_resolver").
		Str("source_id", ev.ContactSourceID()).
		Logger()

	sourceID := ev.ContactSourceID()
	ci, err := ds.GetContactInbox(ctx, inbox.ID, sourceID)
	if err != nil {
		return nil, nil, err
	}
	if ci != nil {
		contact, err := ds.GetContact(ctx, ci.ContactID)
		if err != nil {
			return nil, nil, err
		}
		return contact, ci, nil
	}

	name := FallbackContactName
	avatarURL := ""
	profile, err := r.Profiles.GetProfile(ctx, channel.AccessToken, sourceID)
	switch {
	case err == nil:
		if profile != nil {
			if display := profile.DisplayName(); display != "" {
				name = display
			}
			avatarURL = profile.ProfilePic
		}
		if r.Health != nil {
			if err := r.Health.RecordAuthSuccess(ctx, ds, channel.ID); err != nil {
				return nil, nil, err
			}
		}
	case graphapi.IsAuthError(err):
		return nil, nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case graphapi.IsProfileNotAvailable(err):
		log.Info().Msg("sender has no public profile, using fallback name")
	case graphapi.IsDeletedResource(err):
		log.Info().Msg("profile source deleted, using fallback name")
	default:
		return nil, nil, err
	}

	contact := &store.Contact{AccountID: inbox.AccountID, Name: name, AvatarURL: avatarURL}
	if err := ds.CreateContact(ctx, contact); err != nil {
		return nil, nil, err
	}
	ci = &store.ContactInbox{ContactID: contact.ID, InboxID: inbox.ID, SourceID: sourceID}
	if err := ds.CreateContactInbox(ctx, ci); err != nil {
		// A conflict here means we lost a race on (inbox, source_id). The
		// unique index is authoritative; the pipeline retries the unit of
		// work once and the fresh lookup finds the winner's rows.
		return nil, nil, err
	}
	log.Info().Str("contact_name", name).Msg("created contact")
	return contact, ci, nil
}
