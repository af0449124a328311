package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pullhook/internal/deploy"
	"pullhook/internal/security"

	"github.com/go-chi/chi/v5"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB
	RecentRunsLimit = 10        // Number of recent runs to return in status endpoint
)

// HandleWebhook handles GitHub webhook requests.
//
// The deploy runs synchronously: 200 is returned only after both external
// actions (source pull, service restart) have exited zero. A delivery
// replayed with the same body and signature is accepted again - there is no
// nonce or delivery-ID tracking.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")

	if err := security.ValidateAppName(appName); err != nil {
		s.Logger.Warn("Invalid app name in webhook request", "app", appName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid app name: %v", err)})
		return
	}

	a, err := s.Registry.Get(appName)
	if err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown app"})
		return
	}

	// ContentLength can be -1 if not set, so only the positive case is useful
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.respondJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "Invalid content type"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err, "app", appName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}

	// Verify signature before anything else touches the payload. Nothing
	// side-effecting runs past this point for an unauthenticated request.
	signature := SignatureFromRequest(r.Header.Get)
	if err := VerifySignature(body, signature, a.Secret, a.AllowSHA1); err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedAlgorithm):
			s.Logger.Warn("Unsupported signature algorithm", "app", appName)
			s.respondJSON(w, http.StatusNotImplemented, map[string]string{"error": "Unsupported signature algorithm"})
		default:
			s.Logger.Warn("Signature verification failed", "app", appName, "reason", err)
			s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		}
		return
	}

	// Event filtering. GitHub labels deliveries; a missing header (plain
	// curl delivery) is treated as a push.
	switch event := r.Header.Get("X-GitHub-Event"); event {
	case "", "push":
	case "ping":
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "pong"})
		return
	default:
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Ignoring non-push event"})
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		s.Logger.Error("Failed to parse JSON payload", "error", err, "app", appName)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	if len(payload) == 0 {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Missing payload, skipping"})
		return
	}

	ref, _ := payload["ref"].(string)
	commitHash, _ := payload["after"].(string)

	saga := deploy.NewSaga(a, s.Journal, s.Logger, s.ExposeOutput)
	if !saga.ShouldDeploy(ref) {
		s.respondJSON(w, http.StatusOK, map[string]string{"message": "Not target branch, skipping"})
		return
	}

	// Two deliveries racing on the same source tree and restart would
	// corrupt each other; the second one is turned away.
	if !s.LockManager.TryLock(appName) {
		s.Logger.Warn("Deploy already in progress, rejecting", "app", appName)

		if s.Journal != nil {
			if _, err := s.Journal.RecordRejected(r.Context(), appName, a.Branch, ref, "Deploy already in progress"); err != nil {
				s.Logger.Error("Failed to record rejection", "error", err, "app", appName)
			}
		}

		s.respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Deploy already in progress"})
		return
	}
	defer s.LockManager.Unlock(appName)

	response, statusCode := saga.Execute(r.Context(), ref, commitHash)

	if statusCode == http.StatusOK {
		s.Logger.Info("deploy completed", "app", appName, "status", "success")
	} else {
		s.Logger.Error("deploy failed", "app", appName, "status_code", statusCode)
	}

	s.respondJSON(w, statusCode, response)
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	appNames := s.Registry.List()

	response := map[string]interface{}{
		"status":    "ok",
		"apps":      appNames,
		"app_count": s.Registry.Count(),
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleStatus handles deploy status requests. The response includes the
// per-step breakdown of the latest run so a pull-succeeded/restart-failed
// partial deploy is visible.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")

	if err := security.ValidateAppName(appName); err != nil {
		s.Logger.Warn("Invalid app name in status request", "app", appName, "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Invalid app name: %v", err)})
		return
	}

	if _, err := s.Registry.Get(appName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown app"})
		return
	}

	if s.Journal == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Journal not available"})
		return
	}

	latest, err := s.Journal.GetLatestRun(r.Context(), appName)
	if err != nil {
		s.Logger.Error("Failed to get latest run", "error", err, "app", appName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deploy status"})
		return
	}

	recent, err := s.Journal.GetRunHistory(r.Context(), appName, RecentRunsLimit)
	if err != nil {
		s.Logger.Error("Failed to get run history", "error", err, "app", appName)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deploy status"})
		return
	}

	response := map[string]interface{}{
		"app":         appName,
		"latest_run":  latest,
		"recent_runs": recent,
	}

	if latest != nil {
		steps, err := s.Journal.GetRunSteps(r.Context(), latest.ID)
		if err != nil {
			s.Logger.Error("Failed to get run steps", "error", err, "app", appName)
		} else {
			response["latest_run_steps"] = steps
		}
	}

	s.respondJSON(w, http.StatusOK, response)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
