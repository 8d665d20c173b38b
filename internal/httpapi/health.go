package httpapi

import (
	"net/http"
	"runtime"
	"time"
)

// version is the reported release version; bumped on release tagging.
const version = "0.1.0"

// health handles GET /health, following the teacher's HealthHandler
// pattern (internal/api/container.go) generalized to this system's
// dependency set: spec §6.3 has no database, so there is nothing to ping;
// the registry and dispatcher are in-process and always reachable once the
// process is up, so their status is reported alongside process metrics
// rather than probed.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	body := map[string]interface{}{
		"status": "healthy",
		"services": map[string]string{
			"sessionRegistry":   "ok",
			"webhookDispatcher": "ok",
		},
		"system": map[string]interface{}{
			"memoryAllocBytes": mem.Alloc,
			"goroutines":       runtime.NumGoroutine(),
		},
		"uptime":      time.Since(s.startedAt).Seconds(),
		"version":     version,
		"environment": string(s.cfg.Env),
	}

	writeJSON(w, http.StatusOK, body)
}
