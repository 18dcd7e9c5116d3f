package thumbnail

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plantboard/api/internal/render"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func decodeDataURL(t *testing.T, dataURL string) image.Image {
	t.Helper()
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		t.Fatalf("thumbnail is not a png data url: %.40q", dataURL)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode thumbnail png: %v", err)
	}
	return img
}

func newGenerator(t *testing.T, upstream http.HandlerFunc, maxWidth int) *Generator {
	t.Helper()
	server := httptest.NewServer(upstream)
	t.Cleanup(server.Close)
	return NewGenerator(render.NewClient(server.URL, time.Second, nil), maxWidth)
}

func TestGenerateResizesWideImages(t *testing.T) {
	wide := pngBytes(t, 1200, 300)
	gen := newGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(wide)
	}, 400)

	result := gen.Generate(context.Background(), "@startuml\nA->B\n@enduml")
	if result == nil {
		t.Fatal("expected thumbnail, got nil")
	}
	img := decodeDataURL(t, *result)
	if got := img.Bounds().Dx(); got != 400 {
		t.Fatalf("expected width 400, got %d", got)
	}
	if got := img.Bounds().Dy(); got != 100 {
		t.Fatalf("expected proportional height 100, got %d", got)
	}
}

func TestGenerateDoesNotUpscale(t *testing.T) {
	small := pngBytes(t, 120, 80)
	gen := newGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(small)
	}, 400)

	result := gen.Generate(context.Background(), "@startuml\nA->B\n@enduml")
	if result == nil {
		t.Fatal("expected thumbnail, got nil")
	}
	img := decodeDataURL(t, *result)
	if img.Bounds().Dx() != 120 || img.Bounds().Dy() != 80 {
		t.Fatalf("small image was rescaled to %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestGenerateReturnsNilOnUpstreamError(t *testing.T) {
	gen := newGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 400)

	if result := gen.Generate(context.Background(), "@startuml\nA->B\n@enduml"); result != nil {
		t.Fatalf("expected nil thumbnail on 503, got %.40q", *result)
	}
}

func TestGenerateReturnsNilOnGarbageImage(t *testing.T) {
	gen := newGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a png"))
	}, 400)

	if result := gen.Generate(context.Background(), "@startuml\nA->B\n@enduml"); result != nil {
		t.Fatalf("expected nil thumbnail for undecodable body, got %.40q", *result)
	}
}

func TestGenerateSkipsEmptyCode(t *testing.T) {
	called := false
	gen := newGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	}, 400)

	if result := gen.Generate(context.Background(), ""); result != nil {
		t.Fatal("expected nil thumbnail for empty code")
	}
	if called {
		t.Fatal("empty code must not hit the render service")
	}
}
