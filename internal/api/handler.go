package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/opensource-finance/merchantrisk/internal/audit"
	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/logger"
	"github.com/opensource-finance/merchantrisk/internal/onboarding"
	"github.com/opensource-finance/merchantrisk/internal/riskconfig"
)

// UserIDHeader names the analyst credited in audit entries.
const UserIDHeader = "X-User-ID"

// Handler holds dependencies for API handlers.
type Handler struct {
	svc      *onboarding.Service
	config   *riskconfig.Store
	audit    *audit.Logger
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	log      *zap.Logger
	validate *validator.Validate
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		svc:      deps.Service,
		config:   deps.Config,
		audit:    audit.New(deps.Repo),
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		log:      logger.OrNop(deps.Log),
		validate: newValidator(),
		version:  deps.Version,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// Health reports the state of the backing services.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status := "healthy"

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(r.Context()) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(r.Context()) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(r.Context()) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns 503 until the repository answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

// Evaluate handles POST /evaluate. Nothing is stored.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	profile := req.profile()
	res, err := h.svc.Evaluate(r.Context(), &profile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"merchantId":   profile.MerchantID,
		"riskScore":    res.Score,
		"riskLevel":    res.Level,
		"reasons":      res.Reasons,
		"appliedRules": res.AppliedRules,
	})
}

// CreateMerchant handles POST /merchants.
func (h *Handler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req CreateMerchantRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.Create(r.Context(), req.merchant(), requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// ListMerchants handles GET /merchants.
func (h *Handler) ListMerchants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.MerchantFilter{
		Status:  domain.MerchantStatus(strings.ToUpper(q.Get("status"))),
		Country: q.Get("country"),
		Offset:  intParam(q.Get("offset")),
		Limit:   intParam(q.Get("limit")),
	}
	if lv := q.Get("riskLevel"); lv != "" {
		level, err := domain.ParseRiskLevel(lv)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		filter.RiskLevel = level
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status " + q.Get("status")})
		return
	}

	merchants, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"merchants": merchants,
		"count":     len(merchants),
	})
}

// GetMerchant handles GET /merchants/{id}.
func (h *Handler) GetMerchant(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// UpdateMerchant handles PUT /merchants/{id}.
func (h *Handler) UpdateMerchant(w http.ResponseWriter, r *http.Request) {
	var req UpdateMerchantRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), &req.MerchantPatch, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DeleteMerchant handles DELETE /merchants/{id}.
func (h *Handler) DeleteMerchant(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), requestMeta(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveMerchant handles POST /merchants/{id}/approve.
func (h *Handler) ApproveMerchant(w http.ResponseWriter, r *http.Request) {
	h.decideMerchant(w, r, h.svc.Approve)
}

// RejectMerchant handles POST /merchants/{id}/reject.
func (h *Handler) RejectMerchant(w http.ResponseWriter, r *http.Request) {
	h.decideMerchant(w, r, h.svc.Reject)
}

func (h *Handler) decideMerchant(w http.ResponseWriter, r *http.Request,
	decide func(ctx context.Context, id, notes string, meta domain.RequestMeta) (*domain.Merchant, error)) {
	var req DecisionRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	m, err := decide(r.Context(), chi.URLParam(r, "id"), strings.TrimSpace(req.Notes), requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ReassessAll handles POST /merchants/reassess.
func (h *Handler) ReassessAll(w http.ResponseWriter, r *http.Request) {
	var req ReassessAllRequest
	if err := h.decode(r, &req, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "bulk reassessment"
	}
	n, err := h.svc.ReassessAll(r.Context(), reason, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": n})
}

// GetRisk handles GET /merchants/{id}/risk. With ?reassess=true the merchant is reassessed first.
func (h *Handler) GetRisk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if reassess, _ := strconv.ParseBool(r.URL.Query().Get("reassess")); reassess {
		out, err := h.svc.Reassess(r.Context(), id, requestMeta(r))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := &onboarding.Outcome{Merchant: m}
	if latest, err := h.svc.Latest(r.Context(), id); err == nil {
		out.Assessment = latest
	} else if !errors.Is(err, domain.ErrNotFound) {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// RiskHistory handles GET /merchants/{id}/risk/history.
func (h *Handler) RiskHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.History(r.Context(), chi.URLParam(r, "id"), intParam(r.URL.Query().Get("limit")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": recs,
		"count":       len(recs),
	})
}

// OverrideRisk handles POST /merchants/{id}/risk/override.
func (h *Handler) OverrideRisk(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	level, err := domain.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.Override(r.Context(), chi.URLParam(r, "id"), level, req.Justification, requestMeta(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAssessment handles GET /assessments/{id}.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Assessment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ReplayAssessment handles GET /assessments/{id}/replay.
func (h *Handler) ReplayAssessment(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Replay(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// writeError maps the error taxonomy onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		logger.WithContext(r.Context(), h.log).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// requestMeta collects the caller details stored on audit entries.
func requestMeta(r *http.Request) domain.RequestMeta {
	return domain.RequestMeta{
		IPAddress: clientIP(r),
		Endpoint:  r.Method + " " + r.URL.Path,
		UserAgent: r.UserAgent(),
		UserID:    actorFrom(r),
	}
}

func actorFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
