package http

import (
	"net/http"

	"github.com/aussiebroadwan/portal/internal/auth/domain"
	"github.com/aussiebroadwan/portal/pkg/authsdk"
	"github.com/aussiebroadwan/portal/pkg/httpx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

type SessionHandler struct {
	Reconciler Reconciler
}

// HandleLogin godoc
//
//	@Summary		Sign in
//	@Description	Verifies the credentials with the identity provider and reconciles the user against the profile store.
//	@Description	A rejected attempt returns 401 with the user facing message in state.error.
//	@Tags			Session
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Signed in"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed body"
//	@Failure		401		{object}	authsdk.LoginResponse	"Rejected, see state.error"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limited"
//	@Router			/v1/session/login [post].
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		slogx.FromContext(r.Context()).Debug("invalid login body", "error", err)
		httpx.WriteError(w, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Request body must be a JSON object with email and password")
		return
	}

	ok := h.Reconciler.Login(r.Context(), req.Email, req.Password)

	code := http.StatusOK
	if !ok {
		code = http.StatusUnauthorized
	}
	httpx.WriteJSON(w, code, authsdk.LoginResponse{
		OK:    ok,
		State: toState(h.Reconciler.State()),
	})
}

// HandleLogout godoc
//
//	@Summary		Sign out
//	@Description	Signs out with the identity provider. When the provider refuses, the user stays signed in.
//	@Tags			Session
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse	"Signed out"
//	@Failure		429	{object}	authsdk.ErrorResponse	"Rate limited"
//	@Failure		502	{object}	authsdk.SessionResponse	"Provider sign-out failed, see state.error"
//	@Router			/v1/session/logout [post].
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Reconciler.Logout(r.Context())

	state := h.Reconciler.State()
	code := http.StatusOK
	if state.Error != "" {
		code = http.StatusBadGateway
	}
	httpx.WriteJSON(w, code, authsdk.SessionResponse{State: toState(state)})
}

// HandleGet godoc
//
//	@Summary		Current session
//	@Description	Returns the reconciled auth state.
//	@Tags			Session
//	@Produce		json
//	@Success		200	{object}	authsdk.SessionResponse
//	@Router			/v1/session [get].
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{State: toState(h.Reconciler.State())})
}

func toState(s domain.AuthState) authsdk.State {
	out := authsdk.State{
		Authenticated: s.Authenticated,
		Loading:       s.Loading,
		Error:         s.Error,
	}
	if s.User != nil {
		out.User = &authsdk.User{
			ID:       s.User.ID,
			Email:    s.User.Email,
			Role:     s.User.Role.String(),
			Name:     s.User.Name,
			Metadata: s.User.Metadata,
		}
	}
	return out
}
