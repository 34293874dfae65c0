package httpapi

import (
	"net/http"
	"strings"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
	"shopledger/backend/internal/service"
)

// requireAuth resolves the bearer token through the service so that logged-out
// sessions and deactivated clients are rejected on every call.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, a.logger, apperr.Detail(apperr.ErrInvalidToken, "missing bearer token"))
			return
		}

		raw := strings.TrimSpace(authorization[len("Bearer "):])
		p, err := a.service.Authenticate(r.Context(), raw)
		if err != nil {
			writeError(w, a.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithPrincipal(r.Context(), p)))
	})
}

func (a *API) handleIssueOtp(w http.ResponseWriter, r *http.Request) {
	var req domain.IssueOtpRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	resp, err := a.service.IssueOtp(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (a *API) handleVerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyOtpRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if err := a.service.VerifyOtp(r.Context(), req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	resp, err := a.service.Register(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	resp, err := a.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := service.PrincipalFromContext(r.Context())
	if err := a.service.Logout(r.Context(), p.ClientID, p.SessionID); err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.service.ListDeviceSessions(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	client, err := a.service.GetProfile(r.Context())
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileUpdateRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	client, err := a.service.UpdateProfile(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

func (a *API) handleCustomerFields(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerFieldSettings
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	client, err := a.service.UpdateCustomerFieldSettings(r.Context(), req)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}
