package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/meridianhq/inboxd/store"
)

const maxWebhookBodySize = 1 << 20

type WebhookPublisher interface {
	PublishWebhook(ctx context.Context, platform store.Platform, payload json.RawMessage) error
}

type WebhookHandler struct {
	Publisher   WebhookPublisher
	VerifyToken string
}

// HandleVerify answers Meta's subscription handshake: echo hub.challenge
// when the verify token matches.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	query := r.URL.Query()
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != h.VerifyToken {
		log.Warn().Str("hub_mode", query.Get("hub.mode")).Msg("webhook verification rejected")
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	log.Info().Msg("webhook verification succeeded")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(query.Get("hub.challenge")))
}

// HandleEvent accepts a webhook delivery and enqueues it. Processing is
// asynchronous; the 200 only means the event is durably queued.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var probe struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		log.Warn().Err(err).Msg("undecodable webhook body")
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	var platform store.Platform
	switch probe.Object {
	case "page":
		platform = store.PlatformFacebook
	case "instagram":
		platform = store.PlatformInstagram
	default:
		log.Warn().Str("object", probe.Object).Msg("webhook for unknown object type")
		http.Error(w, "unknown object type", http.StatusBadRequest)
		return
	}

	if err := h.Publisher.PublishWebhook(r.Context(), platform, body); err != nil {
		log.Err(err).Msg("failed to enqueue webhook event")
		http.Error(w, "failed to enqueue", http.StatusInternalServerError)
		return
	}
	log.Debug().Str("platform", string(platform)).Msg("webhook event enqueued")
	w.WriteHeader(http.StatusOK)
}
