package handlers

import (
	"net/http"
	"time"

	"poster/internal/providers/replicate"
)

func (a *App) apiKeyPrefix() string {
	token := a.Config.ReplicateAPIToken
	if token == "" {
		return "not set"
	}
	if len(token) > 10 {
		token = token[:10]
	}
	return token + "..."
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"apiKeyConfigured": a.Config.HasReplicateCredentials(),
		"apiKeyPrefix":     a.apiKeyPrefix(),
		"environment":      a.Config.AppEnv,
		"timestamp":        a.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Test echoes request metadata so clients can check connectivity.
func (a *App) Test(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"message":   "API is working!",
		"timestamp": a.Now().UTC().Format(time.RFC3339Nano),
		"apiKeySet": a.Config.HasReplicateCredentials(),
		"method":    r.Method,
		"url":       r.URL.RequestURI(),
	})
}

type modelResult struct {
	Available     bool   `json:"available"`
	LatestVersion string `json:"latest_version,omitempty"`
	Version       string `json:"version,omitempty"`
	Error         string `json:"error,omitempty"`
}

// TestModels probes the primary and fallback models.
func (a *App) TestModels(w http.ResponseWriter, r *http.Request) {
	if a.Models == nil {
		a.json(w, http.StatusInternalServerError, map[string]string{"error": errNoCredentials.Error()})
		return
	}
	statuses, err := a.Models.ProbeModels(r.Context(), replicate.PrimaryProfile(), replicate.FallbackProfile())
	if err != nil {
		a.json(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	models := make(map[string]modelResult, len(statuses))
	for _, st := range statuses {
		res := modelResult{Available: st.Available, Version: st.Version, Error: st.Error}
		if st.Available {
			res.LatestVersion = st.LatestVersion
			if res.LatestVersion == "" {
				res.LatestVersion = "unknown"
			}
		}
		models[st.Model] = res
	}
	a.json(w, http.StatusOK, map[string]any{"models": models})
}
