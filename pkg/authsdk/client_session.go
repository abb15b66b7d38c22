package authsdk

import (
	"context"
	"net/http"
)

// Login asks the agent to sign in. A rejected attempt is not an error: the
// response has OK false and State.Error set.
func (c *SDKClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/session/login", LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK, http.StatusUnauthorized); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout asks the agent to sign out. When the provider refused, the user is
// still present in the returned state and State.Error is set.
func (c *SDKClient) Logout(ctx context.Context) (*State, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/session/logout", nil)
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK, http.StatusBadGateway); err != nil {
		return nil, err
	}
	return &out.State, nil
}

// GetSession returns the agent's current auth state.
func (c *SDKClient) GetSession(ctx context.Context) (*State, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/session", nil)
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out.State, nil
}
