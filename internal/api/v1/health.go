package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gitionhq/gition-server/internal/versions"
)

// HealthRouter creates a router for health and version endpoints. These are
// unauthenticated and safe to expose to load balancers.
func HealthRouter() http.Handler {
	rr := NewRoutes(nil)
	r := chi.NewRouter()
	r.Get("/health", rr.getHealth)
	r.Get("/version", rr.getVersion)
	return r
}

func (rr *Routes) getHealth(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (rr *Routes) getVersion(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, http.StatusOK, versions.GetVersionInfo())
}
