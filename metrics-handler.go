package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/meridianhq/inboxd/store"
)

type MetricsHandler struct {
	DB store.Datastore
}

// HandleSLAMetrics serves GET /api/v1/accounts/{accountID}/applied_slas/metrics.
// Requires a bearer token belonging to an administrator of the account.
func (h *MetricsHandler) HandleSLAMetrics(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	token, ok := bearerToken(r)
	if !ok {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	user, err := h.DB.GetTokenUser(r.Context(), token)
	if err != nil {
		log.Err(err).Msg("failed to look up access token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}

	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}
	if user.AccountID != accountID || user.Role != store.RoleAdministrator {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	query := r.URL.Query()
	since, err := parseTimeParam(query.Get("since"))
	if err != nil {
		http.Error(w, "invalid since parameter", http.StatusBadRequest)
		return
	}
	until, err := parseTimeParam(query.Get("until"))
	if err != nil {
		http.Error(w, "invalid until parameter", http.StatusBadRequest)
		return
	}
	if since != nil && until != nil && since.After(*until) {
		http.Error(w, "since must not be after until", http.StatusBadRequest)
		return
	}
	agentIDs, err := parseAgentIDs(query)
	if err != nil {
		http.Error(w, "invalid agent_ids parameter", http.StatusBadRequest)
		return
	}

	metrics, err := h.DB.SLAMetrics(r.Context(), accountID, since, until, agentIDs)
	if err != nil {
		log.Err(err).Int64("account_id", accountID).Msg("failed to compute SLA metrics")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// parseTimeParam accepts RFC 3339 timestamps or unix seconds.
func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		t := time.Unix(secs, 0).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

// parseAgentIDs accepts both agent_ids[]=1&agent_ids[]=2 and a single
// comma-separated agent_ids=1,2.
func parseAgentIDs(query map[string][]string) ([]int64, error) {
	values := query["agent_ids[]"]
	if len(values) == 0 {
		for _, raw := range query["agent_ids"] {
			values = append(values, strings.Split(raw, ",")...)
		}
	}
	var ids []int64
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
