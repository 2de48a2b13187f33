// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/stratus/internal/aggregate"
	"github.com/tomtom215/stratus/internal/auth"
	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/middleware"
	"github.com/tomtom215/stratus/internal/models"
)

// Service is the aggregation surface the handlers depend on.
// *aggregate.Aggregator satisfies it.
type Service interface {
	ListAccounts(ctx context.Context, validate bool) ([]models.AccountSummary, error)
	ValidateCredentials(ctx context.Context, profile string) models.CredentialStatus
	ResourceTypes() []models.ResourceType
	FetchResources(ctx context.Context, req aggregate.Request) (*models.AggregationResult, error)
	InvalidateUnit(unit models.FetchUnit) bool
	InvalidateAccount(accountID string) int
}

// Handler implements the HTTP endpoints.
type Handler struct {
	cfg     *config.Config
	service Service
	jwt     *auth.JWTManager
	admin   *auth.AdminChecker
	started time.Time
}

// NewHandler builds a Handler. jwt and admin may be nil when auth mode
// is "none"; the login endpoint then rejects all attempts.
func NewHandler(cfg *config.Config, service Service, jwt *auth.JWTManager, admin *auth.AdminChecker) *Handler {
	return &Handler{
		cfg:     cfg,
		service: service,
		jwt:     jwt,
		admin:   admin,
		started: time.Now(),
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login checks the admin credentials and issues a JWT.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.jwt == nil || h.admin == nil {
		respondError(w, r, http.StatusNotImplemented, "AUTH_DISABLED", "authentication is disabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed login body")
		return
	}

	if !h.admin.Check(req.Username, req.Password) {
		logging.Ctx(r.Context()).Warn().Str("username", req.Username).Msg("Failed login attempt")
		respondError(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
		return
	}

	token, err := h.jwt.GenerateToken(req.Username, "admin")
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "TOKEN_ERROR", "failed to issue token")
		return
	}

	respondJSON(w, r, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(h.cfg.Security.SessionTimeout),
	})
}

// Accounts lists configured profiles. ?validate=true checks each
// profile's credentials against STS.
func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	validate := r.URL.Query().Get("validate") == "true"

	summaries, err := h.service.ListAccounts(r.Context(), validate)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "PROFILE_ERROR", err.Error())
		return
	}
	respondJSON(w, r, http.StatusOK, summaries)
}

// ValidateProfile checks one profile's credentials. Validation failures
// are part of the payload, not HTTP errors: the check itself succeeded.
func (h *Handler) ValidateProfile(w http.ResponseWriter, r *http.Request) {
	profile := chi.URLParam(r, "profile")
	status := h.service.ValidateCredentials(r.Context(), profile)
	respondJSON(w, r, http.StatusOK, status)
}

// ResourceTypes lists the supported resource type identifiers.
func (h *Handler) ResourceTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, h.service.ResourceTypes())
}

// FetchResources runs an aggregation request.
func (h *Handler) FetchResources(w http.ResponseWriter, r *http.Request) {
	var req aggregate.Request
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
			return
		}
	}

	result, err := h.service.FetchResources(r.Context(), req)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	allCached := len(result.Units) > 0
	for _, outcome := range result.Units {
		if !outcome.FromCache {
			allCached = false
			break
		}
	}
	respondJSONWithMeta(w, r, http.StatusOK, result, models.Metadata{
		Timestamp: time.Now().UTC(),
		ElapsedMS: result.Duration.Milliseconds(),
		Cached:    allCached,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}

type invalidateRequest struct {
	AccountID string `json:"account_id,omitempty"`
	Region    string `json:"region,omitempty"`
	Type      string `json:"type,omitempty"`
}

type invalidateResponse struct {
	Removed int `json:"removed"`
}

// InvalidateCache drops cached units, either one exact unit or every
// unit of an account.
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body")
		return
	}
	if req.AccountID == "" {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "account_id is required")
		return
	}

	if req.Region == "" && req.Type == "" {
		removed := h.service.InvalidateAccount(req.AccountID)
		respondJSON(w, r, http.StatusOK, invalidateResponse{Removed: removed})
		return
	}

	rt, err := models.ParseResourceType(req.Type)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	unit := models.FetchUnit{AccountID: req.AccountID, Region: req.Region, Type: rt}
	removed := 0
	if h.service.InvalidateUnit(unit) {
		removed = 1
	}
	respondJSON(w, r, http.StatusOK, invalidateResponse{Removed: removed})
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Health reports liveness plus build information.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: config.Version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

// HealthLive is the kubernetes-style liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HealthReady reports readiness: profiles must be loadable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.service.ListAccounts(r.Context(), false); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, "NOT_READY", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
