package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// GetWeights handles GET /config/weights.
func (h *Handler) GetWeights(w http.ResponseWriter, r *http.Request) {
	weights, err := h.config.Weights(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"weights": weights})
}

// PutWeights handles PUT /config/weights.
func (h *Handler) PutWeights(w http.ResponseWriter, r *http.Request) {
	var req WeightsRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	prev, err := h.config.SetWeights(r.Context(), req.Weights, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"previous": prev,
		"weights":  req.Weights,
	})
}

// GetThresholds handles GET /config/thresholds.
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	t, err := h.config.Thresholds(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thresholds": t})
}

// PutThresholds handles PUT /config/thresholds. The body is the threshold object itself.
func (h *Handler) PutThresholds(w http.ResponseWriter, r *http.Request) {
	var req ThresholdsRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	t := req.Thresholds()
	prev, err := h.config.SetThresholds(r.Context(), t, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"previous":   prev,
		"thresholds": t,
	})
}

// GetList handles GET /config/lists/{type}.
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	lt, err := domain.ParseListType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.config.List(r.Context(), lt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":  lt,
		"items": items,
	})
}

// PutList handles PUT /config/lists/{type}.
func (h *Handler) PutList(w http.ResponseWriter, r *http.Request) {
	lt, err := domain.ParseListType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req ListRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	prev, err := h.config.SetList(r.Context(), lt, req.Items, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	current, err := h.config.List(r.Context(), lt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":     lt,
		"previous": prev,
		"items":    current,
	})
}

// ListRules handles GET /config/rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.Catalogue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": infos,
		"count": len(infos),
	})
}

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AlertFilter{
		MerchantID: q.Get("merchantId"),
		Severity:   domain.AlertSeverity(strings.ToUpper(q.Get("severity"))),
		Limit:      intParam(q.Get("limit")),
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "resolved must be true or false"})
			return
		}
		filter.Resolved = &resolved
	}

	alerts, err := h.svc.Alerts(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlert handles POST /alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req ResolveAlertRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	alert, err := h.svc.ResolveAlert(r.Context(), chi.URLParam(r, "id"), req.ResolutionNotes, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// AuditLogs handles GET /audit/logs. With merchantId it returns that merchant's full trail,
// otherwise the entries of the last `hours` (default 24), optionally of one action type.
func (h *Handler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"))

	var (
		entries []*domain.AuditLogEntry
		err     error
	)
	if id := q.Get("merchantId"); id != "" {
		entries, err = h.audit.MerchantTrail(r.Context(), id, limit)
	} else {
		action := domain.AuditAction(strings.ToUpper(q.Get("action")))
		entries, err = h.audit.Recent(r.Context(), action, intParam(q.Get("hours")), limit)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":  entries,
		"count": len(entries),
	})
}

// ConfigHistory handles GET /audit/config-history.
func (h *Handler) ConfigHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.audit.ConfigHistory(r.Context(), q.Get("key"), intParam(q.Get("limit")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	})
}

// DashboardStats handles GET /dashboard/stats.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
