package api

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leafbox/leafbox-core/internal/media"
	"github.com/leafbox/leafbox-core/internal/plant"
)

// redPNG encodes a small solid red image.
func redPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 0xff, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a form with one file part.
func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("part.Write() error = %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart Close() error = %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, field, filename string, data []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestImages_UploadAndServe(t *testing.T) {
	env := testServer(t, false)
	data := redPNG(t)

	w := env.upload(t, "image", "monstera.png", data, "")
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", w.Code, w.Body)
	}
	up := decode[media.Upload](t, w)
	if !strings.HasSuffix(up.Image, ".png") || up.Color != "#ff0000" {
		t.Errorf("upload = %+v", up)
	}

	w = env.do(t, http.MethodGet, "/image/"+up.Image, "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("image status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), data) {
		t.Error("served image differs from upload")
	}
}

func TestImages_UploadRejected(t *testing.T) {
	env := testServer(t, false)

	tests := []struct {
		name     string
		field    string
		filename string
		data     []byte
		want     int
	}{
		{"missing image field", "photo", "a.png", redPNG(t), http.StatusBadRequest},
		{"unsupported type", "image", "notes.txt", []byte("hello"), http.StatusBadRequest},
		{"corrupt image", "image", "broken.png", []byte("not a png"), http.StatusBadRequest},
		{"too large", "image", "huge.png", make([]byte, testUploadLimit+1), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.upload(t, tt.field, tt.filename, tt.data, ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
		})
	}

	if w := env.do(t, http.MethodPost, "/upload", `{"image":"x"}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("JSON body status = %d, want 400", w.Code)
	}
}

func TestImages_UploadRequiresAuth(t *testing.T) {
	env := testServer(t, true)

	if w := env.upload(t, "image", "a.png", redPNG(t), ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", w.Code)
	}

	env.do(t, http.MethodPost, "/api/register", `{"username":"ana","password":"correct horse"}`, "")
	w := env.do(t, http.MethodPost, "/api/login", `{"username":"ana","password":"correct horse"}`, "")
	token := decode[loginResponse](t, w).Token
	if w := env.upload(t, "image", "a.png", redPNG(t), token); w.Code != http.StatusOK {
		t.Errorf("status with token = %d: %s", w.Code, w.Body)
	}
}

func TestImages_GetRejected(t *testing.T) {
	env := testServer(t, false)

	tests := []struct {
		path string
		want int
	}{
		{"/image/missing.png", http.StatusNotFound},
		{"/image/..%2Fconfig.png", http.StatusBadRequest},
		{"/image/settings.yaml", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := env.do(t, http.MethodGet, tt.path, "", ""); w.Code != tt.want {
			t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestPlants_Lookup(t *testing.T) {
	env := testServer(t, false)
	ctx := context.Background()
	common := "Basil"
	for _, info := range []*plant.Info{
		{LatinName: "Ocimum basilicum", CommonName: &common},
		{LatinName: "Aloe 100% vera"},
	} {
		if _, err := env.info.Add(ctx, info); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	w := env.do(t, http.MethodGet, "/api/plants/lookup/basil", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("lookup status = %d: %s", w.Code, w.Body)
	}
	if got := decode[[]plant.Info](t, w); len(got) != 1 || got[0].LatinName != "Ocimum basilicum" {
		t.Errorf("lookup = %+v", got)
	}

	w = env.do(t, http.MethodGet, "/api/plants/lookup/100%25", "", "")
	if got := decode[[]plant.Info](t, w); w.Code != http.StatusOK || len(got) != 1 {
		t.Errorf("lookup 100%% = %d %+v", w.Code, got)
	}

	w = env.do(t, http.MethodGet, "/api/plants/lookup/cactus", "", "")
	if got := decode[[]plant.Info](t, w); w.Code != http.StatusOK || len(got) != 0 {
		t.Errorf("lookup cactus = %d %+v", w.Code, got)
	}

	if w := env.do(t, http.MethodGet, "/api/plants/lookup/%20", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("blank lookup status = %d, want 400", w.Code)
	}
}
