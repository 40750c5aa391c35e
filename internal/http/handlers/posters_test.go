package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/middleware"
	"poster/internal/pipeline"
	"poster/internal/session"
)

type stubPipeline struct {
	outcome *pipeline.Outcome
	err     error
	reqs    []pipeline.Request
}

func (p *stubPipeline) ProcessHeadshot(_ context.Context, req pipeline.Request) (*pipeline.Outcome, error) {
	p.reqs = append(p.reqs, req)
	return p.outcome, p.err
}

type memoryExports struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryExports) Write(_ context.Context, key string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return key, nil
}

func posterRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.I18N("en", nil))
	r.Post("/api/posters", app.CreatePoster)
	r.Route("/api/posters/{id}", func(r chi.Router) {
		r.Get("/", app.GetPoster)
		r.Delete("/", app.DeletePoster)
		r.Post("/headshot", app.UploadHeadshot)
		r.Put("/emojis", app.SetEmojis)
		r.Post("/emojis", app.AddEmoji)
		r.Delete("/emojis/{slot}", app.RemoveEmoji)
		r.Patch("/overlays/{key}", app.DragOverlay)
		r.Put("/photo-scale", app.SetPhotoScale)
		r.Put("/viewport", app.UpdateViewport)
		r.Get("/export", app.ExportPoster)
		r.Get("/bundle", app.BundlePoster)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func processedOutcome(t *testing.T) *pipeline.Outcome {
	t.Helper()
	img, err := imaging.EncodePNG(image.NewGray(image.Rect(0, 0, 400, 400)))
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	return &pipeline.Outcome{
		Image:        &domain.ProcessedImage{Original: img, Processed: img, Width: 400, Height: 400},
		PredictionID: "pred-1",
		Remote:       true,
	}
}

func createPoster(t *testing.T, h http.Handler) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/posters", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rr.Code)
	}
	id, _ := decodeBody(t, rr)["id"].(string)
	if id == "" {
		t.Fatalf("missing session id")
	}
	return id
}

func TestPosterLifecycle(t *testing.T) {
	pipe := &stubPipeline{outcome: processedOutcome(t)}
	exports := &memoryExports{}
	app := testApp(t, App{Pipeline: pipe, Sessions: session.NewStore(session.Options{}), Exports: exports})
	h := posterRouter(app)
	id := createPoster(t, h)
	base := "/api/posters/" + id

	rr := do(t, h, http.MethodGet, base+"/export", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("export without headshot status = %d", rr.Code)
	}

	rr = do(t, h, http.MethodPost, base+"/headshot", map[string]any{
		"imageDataUrl": pngDataURL(t, 16, 16), "removeBackground": false, "seed": "9",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("headshot status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	scene := body["scene"].(map[string]any)
	photo := scene["photo"].(map[string]any)
	if photo["bordered"] != true {
		t.Fatalf("photo with kept background must be bordered: %v", photo)
	}
	if got := pipe.reqs[0]; got.Seed == nil || *got.Seed != 9 || got.Locale != "en" {
		t.Fatalf("pipeline request = %+v", got)
	}

	rr = do(t, h, http.MethodPost, base+"/emojis", map[string]string{"emoji": "🔥"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add emoji status = %d body=%s", rr.Code, rr.Body.String())
	}
	if key := decodeBody(t, rr)["key"]; key != "emoji-0" {
		t.Fatalf("key = %v", key)
	}

	rr = do(t, h, http.MethodPatch, base+"/overlays/photo", map[string]float64{"x": 10, "y": 20})
	if rr.Code != http.StatusOK {
		t.Fatalf("drag status = %d", rr.Code)
	}
	photo = decodeBody(t, rr)["scene"].(map[string]any)["photo"].(map[string]any)
	if photo["x"] != 10.0 || photo["y"] != 20.0 || photo["moved"] != true {
		t.Fatalf("dragged photo = %v", photo)
	}

	rr = do(t, h, http.MethodGet, base+"/export", nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("export status = %d type = %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "blackweek-2025-custom-1759741200000.jpg") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	cfg, _, err := image.DecodeConfig(rr.Body)
	if err != nil || cfg.Width != 1600 || cfg.Height != 2132 {
		t.Fatalf("export = %dx%d, %v", cfg.Width, cfg.Height, err)
	}
	if len(exports.keys) != 1 || exports.keys[0] != "posters/"+id+"/blackweek-2025-custom-1759741200000.jpg" {
		t.Fatalf("export keys = %v", exports.keys)
	}

	rr = do(t, h, http.MethodGet, base+"/bundle", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("bundle status = %d", rr.Code)
	}
	data := rr.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open bundle: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "blackweek-2025-custom-1759741200000.jpg,original.png,processed.png" {
		t.Fatalf("bundle entries = %v", names)
	}

	rr = do(t, h, http.MethodDelete, base, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr = do(t, h, http.MethodGet, base, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rr.Code)
	}
}

func TestPosterEmojiEditsKeepOtherPositions(t *testing.T) {
	app := testApp(t, App{Sessions: session.NewStore(session.Options{})})
	h := posterRouter(app)
	base := "/api/posters/" + createPoster(t, h)

	rr := do(t, h, http.MethodPut, base+"/emojis", map[string]any{"emojis": []string{"🔥", "🚀", "🎉"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("set emojis status = %d body=%s", rr.Code, rr.Body.String())
	}
	before := emojiPositions(t, decodeBody(t, rr))

	rr = do(t, h, http.MethodDelete, base+"/emojis/1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rr.Code)
	}
	after := emojiPositions(t, decodeBody(t, rr))
	if len(after) != 2 {
		t.Fatalf("after = %v", after)
	}
	for _, slot := range []float64{0, 2} {
		if before[slot] != after[slot] {
			t.Fatalf("slot %v moved from %v to %v", slot, before[slot], after[slot])
		}
	}

	rr = do(t, h, http.MethodDelete, base+"/emojis/4", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("remove unknown slot status = %d", rr.Code)
	}

	rr = do(t, h, http.MethodPut, base+"/emojis", map[string]any{"emojis": []string{"1", "2", "3", "4", "5", "6"}})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("too many emojis status = %d", rr.Code)
	}
}

func TestPosterBareEmojiListKeepsSurvivorsInPlace(t *testing.T) {
	app := testApp(t, App{Sessions: session.NewStore(session.Options{})})
	h := posterRouter(app)
	base := "/api/posters/" + createPoster(t, h)

	rr := do(t, h, http.MethodPut, base+"/emojis", map[string]any{"emojis": []string{"🔥", "💎", "⭐"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("set emojis status = %d body=%s", rr.Code, rr.Body.String())
	}
	rr = do(t, h, http.MethodPatch, base+"/overlays/emoji-2", map[string]float64{"x": 300, "y": 300})
	if rr.Code != http.StatusOK {
		t.Fatalf("drag status = %d body=%s", rr.Code, rr.Body.String())
	}
	before := emojiPositions(t, decodeBody(t, rr))

	rr = do(t, h, http.MethodPut, base+"/emojis", map[string]any{"emojis": []string{"🔥", "⭐"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("shrink emojis status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	after := emojiPositions(t, body)
	if len(after) != 2 {
		t.Fatalf("after = %v", after)
	}
	if _, ok := after[1]; ok {
		t.Fatalf("slot 1 still present: %v", after)
	}
	if after[2] != [2]float64{300, 300} {
		t.Fatalf("⭐ at %v, want [300 300]", after[2])
	}
	if after[0] != before[0] {
		t.Fatalf("🔥 moved from %v to %v", before[0], after[0])
	}
	emojis := body["scene"].(map[string]any)["emojis"].([]any)
	if glyph := emojis[1].(map[string]any)["emoji"]; glyph != "⭐" {
		t.Fatalf("slot 2 glyph = %v", glyph)
	}
}

func emojiPositions(t *testing.T, body map[string]any) map[float64][2]float64 {
	t.Helper()
	out := make(map[float64][2]float64)
	emojis, _ := body["scene"].(map[string]any)["emojis"].([]any)
	for _, raw := range emojis {
		e := raw.(map[string]any)
		slot, ok := e["slot"].(float64)
		if !ok {
			t.Fatalf("emoji without slot: %v", e)
		}
		out[slot] = [2]float64{e["x"].(float64), e["y"].(float64)}
	}
	return out
}

func TestPosterHeadshotLocalisedFailure(t *testing.T) {
	pipe := &stubPipeline{err: pipeline.NewUserError("id", domain.KindMemoryExhausted, &domain.RemoteJobError{Kind: domain.KindMemoryExhausted})}
	app := testApp(t, App{Pipeline: pipe, Sessions: session.NewStore(session.Options{})})
	h := posterRouter(app)
	base := "/api/posters/" + createPoster(t, h)

	rr := do(t, h, http.MethodPost, base+"/headshot", map[string]any{"imageDataUrl": pngDataURL(t, 8, 8)}, "X-Locale", "id")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["message"] != "Layanan gambar sedang sibuk." || body["suggestion"] == "" {
		t.Fatalf("body = %v", body)
	}
	if pipe.reqs[0].Locale != "id" {
		t.Fatalf("locale = %q", pipe.reqs[0].Locale)
	}

	rr = do(t, h, http.MethodPost, base+"/headshot", map[string]any{"imageDataUrl": "not-an-image"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid upload status = %d", rr.Code)
	}
}

func TestPosterViewportAndScale(t *testing.T) {
	app := testApp(t, App{Sessions: session.NewStore(session.Options{})})
	h := posterRouter(app)
	base := "/api/posters/" + createPoster(t, h)

	rr := do(t, h, http.MethodPut, base+"/viewport", map[string]any{"width": 375, "height": 667, "containerWidth": 375, "trigger": "orientation"})
	if rr.Code != http.StatusOK {
		t.Fatalf("viewport status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["device"] != "mobile" {
		t.Fatalf("body = %v", body)
	}
	if scale := body["scale"].(float64); scale <= 0 || scale >= 1 {
		t.Fatalf("mobile scale = %v", scale)
	}

	rr = do(t, h, http.MethodPut, base+"/viewport", map[string]any{"width": 0, "height": 10})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid viewport status = %d", rr.Code)
	}

	if rr = do(t, h, http.MethodPut, base+"/photo-scale", map[string]float64{"scale": 1.5}); rr.Code != http.StatusOK {
		t.Fatalf("photo scale status = %d", rr.Code)
	}
	if rr = do(t, h, http.MethodPut, base+"/photo-scale", map[string]float64{"scale": 0}); rr.Code != http.StatusBadRequest {
		t.Fatalf("zero photo scale status = %d", rr.Code)
	}
	if rr = do(t, h, http.MethodPatch, base+"/overlays/emoji-3", map[string]float64{"x": 1, "y": 1}); rr.Code != http.StatusNotFound {
		t.Fatalf("drag missing emoji status = %d", rr.Code)
	}
	if rr = do(t, h, http.MethodPatch, base+"/overlays/photo", map[string]float64{"x": 1}); rr.Code != http.StatusBadRequest {
		t.Fatalf("drag without y status = %d", rr.Code)
	}
}

func TestPosterResetKeepsSession(t *testing.T) {
	app := testApp(t, App{Pipeline: &stubPipeline{outcome: processedOutcome(t)}, Sessions: session.NewStore(session.Options{})})
	h := posterRouter(app)
	base := "/api/posters/" + createPoster(t, h)
	do(t, h, http.MethodPost, base+"/headshot", map[string]any{"imageDataUrl": pngDataURL(t, 8, 8)})

	rr := do(t, h, http.MethodDelete, base+"?mode=reset", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rr.Code)
	}
	if decodeBody(t, rr)["hasHeadshot"] != false {
		t.Fatalf("expected headshot cleared")
	}
	if rr = do(t, h, http.MethodGet, base, nil); rr.Code != http.StatusOK {
		t.Fatalf("session gone after reset: %d", rr.Code)
	}
}
