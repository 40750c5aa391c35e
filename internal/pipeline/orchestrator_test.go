package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"poster/internal/domain"
	"poster/internal/imaging"
	"poster/internal/providers/background"
	"poster/internal/providers/replicate"
)

func photo(t *testing.T, w, h int) domain.Image {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	out, err := imaging.EncodeJPEG(img, 85)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	return out
}

type stubStylizer struct {
	primaryErr  error
	fallbackErr error
	seeds       []*int
	sources     []replicate.Source
	fallbacks   int
}

func (s *stubStylizer) SubmitAndAwait(_ context.Context, src replicate.Source, _ replicate.Profile, seed *int) (*replicate.Output, error) {
	s.seeds = append(s.seeds, seed)
	s.sources = append(s.sources, src)
	if s.primaryErr != nil {
		return nil, s.primaryErr
	}
	return &replicate.Output{URL: "https://cdn.example.com/primary.png", PredictionID: "p1", Attempts: 1}, nil
}

func (s *stubStylizer) Fallback(_ context.Context, src replicate.Source, _ *int) (*replicate.Output, error) {
	s.fallbacks++
	s.sources = append(s.sources, src)
	if s.fallbackErr != nil {
		return nil, s.fallbackErr
	}
	return &replicate.Output{URL: "https://cdn.example.com/fallback.jpg", PredictionID: "f1", Attempts: 1}, nil
}

type stubFetcher struct {
	urls []string
}

func (f *stubFetcher) Download(_ context.Context, url string) (domain.Image, error) {
	f.urls = append(f.urls, url)
	return domain.Image{Data: []byte("remote:" + url), MIME: "image/png"}, nil
}

type stubRemover struct {
	degrade bool
	calls   int
}

func (r *stubRemover) RemoveBackground(_ context.Context, img domain.Image) background.Result {
	r.calls++
	if r.degrade {
		return background.Result{Image: img, Degraded: true, Err: errors.New("remote unreachable")}
	}
	return background.Result{Image: domain.Image{Data: []byte("cutout"), MIME: "image/png"}}
}

func TestProcessHeadshotLocalFilterKeepsOriginalDimensions(t *testing.T) {
	orch := New(Options{})
	in := photo(t, 2000, 1500)

	out, err := orch.ProcessHeadshot(context.Background(), Request{Image: in})
	if err != nil {
		t.Fatalf("ProcessHeadshot returned error: %v", err)
	}
	if out.Image.Width != 2000 || out.Image.Height != 1500 {
		t.Fatalf("dimensions = %dx%d, want 2000x1500", out.Image.Width, out.Image.Height)
	}
	if !bytes.Equal(out.Image.Original.Data, in.Data) {
		t.Fatalf("original must be the untouched upload")
	}
	if bytes.Equal(out.Image.Processed.Data, in.Data) {
		t.Fatalf("processed must differ from original")
	}
	if out.Remote {
		t.Fatalf("local path must not report remote")
	}
	w, h, err := imaging.Measure(out.Image.Processed)
	if err != nil {
		t.Fatalf("Measure processed: %v", err)
	}
	if w != 1024 || h != 768 {
		t.Fatalf("processed dimensions = %dx%d, want 1024x768", w, h)
	}
}

func TestProcessHeadshotRemoteInlinesOutput(t *testing.T) {
	stylizer := &stubStylizer{}
	fetcher := &stubFetcher{}
	orch := New(Options{Stylizer: stylizer, Fetcher: fetcher})

	seed := 7
	out, err := orch.ProcessHeadshot(context.Background(), Request{Image: photo(t, 64, 64), Seed: &seed})
	if err != nil {
		t.Fatalf("ProcessHeadshot returned error: %v", err)
	}
	if string(out.Image.Processed.Data) != "remote:https://cdn.example.com/primary.png" {
		t.Fatalf("processed = %q", out.Image.Processed.Data)
	}
	if out.PredictionID != "p1" || out.UsedFallback || !out.Remote {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if stylizer.seeds[0] == nil || *stylizer.seeds[0] != 7 {
		t.Fatalf("seed not forwarded")
	}
}

func TestProcessHeadshotRegenerateDropsSeed(t *testing.T) {
	stylizer := &stubStylizer{}
	orch := New(Options{Stylizer: stylizer, Fetcher: &stubFetcher{}})
	seed := 7
	if _, err := orch.ProcessHeadshot(context.Background(), Request{Image: photo(t, 32, 32), Seed: &seed, Regenerate: true}); err != nil {
		t.Fatalf("ProcessHeadshot returned error: %v", err)
	}
	if stylizer.seeds[0] != nil {
		t.Fatalf("regenerate must submit without a seed")
	}
}

func TestProcessHeadshotFallsBackOnMemoryExhaustion(t *testing.T) {
	stylizer := &stubStylizer{primaryErr: &domain.RemoteJobError{Kind: domain.KindMemoryExhausted, FallbackAvailable: true}}
	fetcher := &stubFetcher{}
	orch := New(Options{Stylizer: stylizer, Fetcher: fetcher})

	out, err := orch.ProcessHeadshot(context.Background(), Request{Image: photo(t, 64, 64)})
	if err != nil {
		t.Fatalf("ProcessHeadshot returned error: %v", err)
	}
	if !out.UsedFallback || out.PredictionID != "f1" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if stylizer.fallbacks != 1 {
		t.Fatalf("fallbacks = %d, want 1", stylizer.fallbacks)
	}
	if !bytes.Equal(stylizer.sources[0].Image.Data, stylizer.sources[1].Image.Data) {
		t.Fatalf("fallback must reuse the prepared image")
	}
}

func TestProcessHeadshotLocalisesFailure(t *testing.T) {
	stylizer := &stubStylizer{primaryErr: &domain.RemoteJobError{Kind: domain.KindTimeout, JobID: "p1"}}
	orch := New(Options{Stylizer: stylizer, Fetcher: &stubFetcher{}})

	_, err := orch.ProcessHeadshot(context.Background(), Request{Image: photo(t, 32, 32), Locale: "id-ID"})
	var userErr *domain.UserError
	if !errors.As(err, &userErr) {
		t.Fatalf("expected UserError, got %v", err)
	}
	if userErr.Kind != domain.KindTimeout {
		t.Fatalf("Kind = %q", userErr.Kind)
	}
	if userErr.Message != "Pemrosesan memakan waktu terlalu lama." {
		t.Fatalf("Message = %q", userErr.Message)
	}
	var remote *domain.RemoteJobError
	if !errors.As(err, &remote) || remote.JobID != "p1" {
		t.Fatalf("underlying RemoteJobError lost")
	}
}

func TestProcessHeadshotRejectsUndecodableImage(t *testing.T) {
	_, err := New(Options{}).ProcessHeadshot(context.Background(), Request{Image: domain.Image{Data: []byte("not an image")}})
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("kind = %q, want validation_error", domain.KindOf(err))
	}
	if !errors.Is(err, domain.ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage in chain, got %v", err)
	}
}

func TestProcessHeadshotDegradedBackgroundContinues(t *testing.T) {
	remover := &stubRemover{degrade: true}
	stylizer := &stubStylizer{}
	orch := New(Options{Stylizer: stylizer, Fetcher: &stubFetcher{}, Remover: remover})
	in := photo(t, 32, 32)

	out, err := orch.ProcessHeadshot(context.Background(), Request{Image: in, RemoveBackground: true})
	if err != nil {
		t.Fatalf("ProcessHeadshot returned error: %v", err)
	}
	if !out.BackgroundDegraded || out.BackgroundRemoved {
		t.Fatalf("unexpected background flags %+v", out)
	}
	if !bytes.Equal(stylizer.sources[0].Image.Data, in.Data) {
		t.Fatalf("degraded removal must pass the original on")
	}
}

func TestProcessHeadshotUsesCutout(t *testing.T) {
	remover := &stubRemover{}
	stylizer := &stubStylizer{}
	orch := New(Options{Stylizer: stylizer, Fetcher: &stubFetcher{}, Remover: remover})

	out, err := orch.ProcessHeadshot(context.Background(), Request{Image: photo(t, 32, 32), RemoveBackground: true})
	if err != nil {
		t.Fatalf("ProcessHeadshot returned error: %v", err)
	}
	if !out.BackgroundRemoved || string(stylizer.sources[0].Image.Data) != "cutout" {
		t.Fatalf("cutout not forwarded to stylizer")
	}
}

func TestNewUserErrorDefaultsToEnglish(t *testing.T) {
	err := NewUserError("fr-FR", domain.KindNetwork, errors.New("boom"))
	if err.Message != "We could not reach the image service." {
		t.Fatalf("Message = %q", err.Message)
	}
	err = NewUserError("", "unknown_kind", nil)
	if err.Kind != domain.KindFailed || err.Message != "Failed to process image." {
		t.Fatalf("unexpected fallback message %+v", err)
	}
}
