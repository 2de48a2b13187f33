// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/stratus/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T, timeout time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret:      testSecret,
		SessionTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("NewJWTManager() error = %v", err)
	}
	return m
}

func TestNewJWTManagerRejectsWeakSecrets(t *testing.T) {
	tt := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"short", "tooshort"},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewJWTManager(&config.SecurityConfig{JWTSecret: tc.secret})
			if err == nil {
				t.Error("NewJWTManager() error = nil, want rejection")
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	m := newTestManager(t, time.Hour)

	token, err := m.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Username != "admin" || claims.Role != "admin" {
		t.Errorf("claims = %s/%s, want admin/admin", claims.Username, claims.Role)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	m := newTestManager(t, -time.Minute)

	token, err := m.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("ValidateToken() accepted an expired token")
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	m := newTestManager(t, time.Hour)
	token, err := m.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	tampered := token[:len(token)-4] + "xxxx"
	if _, err := m.ValidateToken(tampered); err == nil {
		t.Error("ValidateToken() accepted a tampered token")
	}

	other := newTestManager(t, time.Hour)
	other.secret = []byte(strings.Repeat("y", 32))
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("ValidateToken() accepted a token signed with a different secret")
	}
}

func TestAdminChecker(t *testing.T) {
	checker, err := NewAdminChecker("admin", "correct-horse-battery")
	if err != nil {
		t.Fatalf("NewAdminChecker() error = %v", err)
	}

	tt := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"valid", "admin", "correct-horse-battery", true},
		{"wrong password", "admin", "wrong", false},
		{"wrong username", "root", "correct-horse-battery", false},
		{"both wrong", "root", "wrong", false},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			if got := checker.Check(tc.username, tc.password); got != tc.want {
				t.Errorf("Check() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewAdminCheckerRejectsShortPassword(t *testing.T) {
	if _, err := NewAdminChecker("admin", "short"); err == nil {
		t.Error("NewAdminChecker() accepted a short password")
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	m := newTestManager(t, time.Hour)
	mw := NewMiddleware(m, ModeJWT)

	var gotClaims *Claims
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	token, _ := m.GenerateToken("admin", "admin")

	tt := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}

	if gotClaims == nil || gotClaims.Username != "admin" {
		t.Errorf("claims not propagated to handler: %+v", gotClaims)
	}
}

func TestAuthenticateModeNonePassesThrough(t *testing.T) {
	mw := NewMiddleware(nil, ModeNone)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without credentials", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	m := newTestManager(t, time.Hour)
	mw := NewMiddleware(m, ModeJWT)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := mw.Authenticate(mw.RequireRole("admin", inner))

	adminToken, _ := m.GenerateToken("admin", "admin")
	viewerToken, _ := m.GenerateToken("viewer", "viewer")

	tt := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"admin allowed", adminToken, http.StatusOK},
		{"viewer forbidden", viewerToken, http.StatusForbidden},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
