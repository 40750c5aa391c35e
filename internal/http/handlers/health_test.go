package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"poster/internal/infra"
	"poster/internal/providers/replicate"
)

func TestHealthReportsKeyPrefix(t *testing.T) {
	app := testApp(t, App{})
	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	body := decodeBody(t, rr)
	if body["status"] != "ok" || body["apiKeyConfigured"] != true {
		t.Fatalf("body = %v", body)
	}
	if body["apiKeyPrefix"] != "r8_abcdefg..." {
		t.Fatalf("apiKeyPrefix = %v", body["apiKeyPrefix"])
	}
	if body["timestamp"] != "2025-10-06T09:00:00Z" {
		t.Fatalf("timestamp = %v", body["timestamp"])
	}

	app = testApp(t, App{Config: &infra.Config{}})
	rr = httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	body = decodeBody(t, rr)
	if body["apiKeyConfigured"] != false || body["apiKeyPrefix"] != "not set" {
		t.Fatalf("body = %v", body)
	}
}

func TestTestEchoesRequest(t *testing.T) {
	app := testApp(t, App{})
	rr := httptest.NewRecorder()
	app.Test(rr, httptest.NewRequest(http.MethodGet, "/api/test?x=1", nil))
	body := decodeBody(t, rr)
	if body["message"] != "API is working!" || body["method"] != "GET" || body["url"] != "/api/test?x=1" {
		t.Fatalf("body = %v", body)
	}
}

func TestTestModels(t *testing.T) {
	app := testApp(t, App{Models: stubProber{statuses: []replicate.ModelStatus{
		{Model: "black-forest-labs/flux-kontext-pro", Available: true, LatestVersion: "v2"},
		{Model: "black-forest-labs/flux-dev", Error: "replicate: status 404: not found"},
	}}})
	rr := httptest.NewRecorder()
	app.TestModels(rr, httptest.NewRequest(http.MethodGet, "/api/test-models", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	models := decodeBody(t, rr)["models"].(map[string]any)
	kontext := models["black-forest-labs/flux-kontext-pro"].(map[string]any)
	if kontext["available"] != true || kontext["latest_version"] != "v2" {
		t.Fatalf("kontext = %v", kontext)
	}
	dev := models["black-forest-labs/flux-dev"].(map[string]any)
	if dev["available"] != false || dev["error"] == nil {
		t.Fatalf("dev = %v", dev)
	}

	rr = httptest.NewRecorder()
	testApp(t, App{}).TestModels(rr, httptest.NewRequest(http.MethodGet, "/api/test-models", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured status = %d", rr.Code)
	}
}
