package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/portal/pkg/authsdk"
	"github.com/aussiebroadwan/portal/pkg/httpx"
)

// ServiceName identifies the agent in probe responses.
const ServiceName = "portal-auth"

type probeInfo struct {
	started time.Time
	version string
}

func (p probeInfo) response(status string) authsdk.HealthResponse {
	return authsdk.HealthResponse{
		Service:   ServiceName,
		Status:    status,
		StartedAt: p.started.UTC().Format(time.RFC3339),
		Uptime:    time.Since(p.started).Round(time.Second).String(),
		Version:   p.version,
	}
}

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Answers 200 while the agent process is serving HTTP. It does not look at the profile store or the identity provider.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"service, status, started_at, uptime, version"
//	@Router			/livez [get].
func LivezHandler(info probeInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, info.response("ok"))
	}
}
