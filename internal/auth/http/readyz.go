package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/keyhouse/pkg/authsdk"
	"github.com/aussiebroadwan/keyhouse/pkg/httpx"
	"github.com/aussiebroadwan/keyhouse/pkg/kv"
)

// Pinger is the database half of the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStater reports the state of the key-value facade. *kv.Facade implements it.
type KVStater interface {
	State() kv.State
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe returning the status of the database and the key-value store.
//	@Description	A failed database ping returns 503. A key-value store running on its local fallback reports "degraded" with 200, since requests are still served.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, db Pinger, kvs KVStater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{Database: "ok", KV: kv.StateUp.String()}
		status := "ok"
		code := http.StatusOK

		if kvs != nil {
			if s := kvs.State(); s != kv.StateUp {
				checks.KV = s.String()
				status = "degraded"
			}
		}

		if err := db.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
