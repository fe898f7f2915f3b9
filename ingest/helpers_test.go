package ingest_test

import (
	"context"
	"sync"
	"time"

	"github.com/meridianhq/inboxd/graphapi"
	"github.com/meridianhq/inboxd/ingest"
	"github.com/meridianhq/inboxd/store"
)

type fakeProfiles struct {
	mu      sync.Mutex
	profile *graphapi.Profile
	err     error
	calls   int
}

func (f *fakeProfiles) GetProfile(ctx context.Context, accessToken, userID string) (*graphapi.Profile, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeStories struct {
	story *graphapi.Story
	err   error
	calls int
}

func (f *fakeStories) GetStory(ctx context.Context, accessToken, messageID string) (*graphapi.Story, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.story, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []ingest.ReauthorizationNotice
}

func (f *fakeNotifier) NotifyReauthorizationRequired(ctx context.Context, notice ingest.ReauthorizationNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notices)
}

func textEvent(platform store.Platform, senderID, pageID, mid, content string) *ingest.IncomingEvent {
	return &ingest.IncomingEvent{
		Platform:    platform,
		SenderID:    senderID,
		RecipientID: pageID,
		ExternalID:  mid,
		SentAt:      time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
		Content:     content,
	}
}

var authError = &graphapi.GraphError{
	Message:    "Error validating access token",
	Type:       "OAuthException",
	Code:       190,
	HTTPStatus: 401,
}

var noProfileError = &graphapi.GraphError{
	Message:    "No profile available for this user",
	Type:       "OAuthException",
	Code:       100,
	Subcode:    2018218,
	HTTPStatus: 400,
}

var deletedResourceError = &graphapi.GraphError{
	Message:    "The resource was deleted",
	Type:       "GraphMethodException",
	Subcode:    2534001,
	HTTPStatus: 400,
}
