package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/picfort/picfort/internal/config"
	"github.com/picfort/picfort/internal/upload"
)

type fakeUploader struct {
	lastReq   upload.Request
	asset     *upload.Asset
	uploadErr error
	deleteErr error
	deletedID string
}

func (f *fakeUploader) Upload(_ context.Context, _ *config.Config, req upload.Request) (*upload.Asset, error) {
	f.lastReq = req
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.asset, nil
}

func (f *fakeUploader) Delete(_ context.Context, _ *config.Config, id string) error {
	f.deletedID = id
	return f.deleteErr
}

type fakeBlocklist struct {
	blocked []string
}

func (f *fakeBlocklist) BlockIP(_ context.Context, ip string) error {
	f.blocked = append(f.blocked, ip)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func bearerToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": subject})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + signed
}

func newUploadEnv(svc *fakeUploader, blocklist *fakeBlocklist, cfg *config.Config) *echo.Echo {
	if cfg == nil {
		cfg = &config.Config{}
	}
	e := echo.New()
	NewUploadHandler(svc, blocklist, cfg, discardLogger()).Register(e)
	return e
}

func TestUploadReturnsAsset(t *testing.T) {
	t.Parallel()
	svc := &fakeUploader{asset: &upload.Asset{ID: "abc123", URL: "https://cdn.example.com/a.png"}}
	e := newUploadEnv(svc, nil, nil)

	body, ctype := multipartBody(t, map[string]string{"md5": "deadbeef"}, "image", "a.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	req.Header.Set(echo.HeaderAuthorization, bearerToken(t, "user-7"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["_id"] != "abc123" {
		t.Errorf("_id = %v", got["_id"])
	}
	if svc.lastReq.Identity != "user-7" {
		t.Errorf("identity = %q, want user-7", svc.lastReq.Identity)
	}
	if svc.lastReq.ClientMD5 != "deadbeef" {
		t.Errorf("client md5 = %q", svc.lastReq.ClientMD5)
	}
	if svc.lastReq.OriginalName != "a.png" {
		t.Errorf("original name = %q", svc.lastReq.OriginalName)
	}
}

func TestUploadRequiresAuth(t *testing.T) {
	t.Parallel()
	e := newUploadEnv(&fakeUploader{}, nil, nil)

	body, ctype := multipartBody(t, nil, "image", "a.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestUploadVerifiesTokenSignature(t *testing.T) {
	t.Parallel()
	svc := &fakeUploader{asset: &upload.Asset{ID: "abc123"}}
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	e := newUploadEnv(svc, nil, cfg)

	body, ctype := multipartBody(t, nil, "image", "a.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	req.Header.Set(echo.HeaderAuthorization, bearerToken(t, "user-7"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.lastReq.Identity != "user-7" {
		t.Errorf("identity = %q, want user-7", svc.lastReq.Identity)
	}

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-7"})
	raw, err := forged.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatal(err)
	}
	body, ctype = multipartBody(t, nil, "image", "a.png", []byte("img"))
	req = httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+raw)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for forged token", rec.Code)
	}
}

func TestUploadGuestUsesEmptyIdentity(t *testing.T) {
	t.Parallel()
	svc := &fakeUploader{asset: &upload.Asset{ID: "g1"}}
	e := newUploadEnv(svc, nil, nil)

	body, ctype := multipartBody(t, nil, "image", "a.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/upload/guest", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if svc.lastReq.Identity != "" {
		t.Errorf("identity = %q, want empty", svc.lastReq.Identity)
	}
}

func TestUploadMissingImageField(t *testing.T) {
	t.Parallel()
	e := newUploadEnv(&fakeUploader{}, nil, nil)

	body, ctype := multipartBody(t, map[string]string{"md5": "x"}, "", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/upload/guest", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "image") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUploadErrorMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &upload.Error{Kind: upload.KindValidation, Message: "bad format"}, http.StatusBadRequest},
		{"policy", &upload.Error{Kind: upload.KindPolicy, Message: "quota reached"}, http.StatusForbidden},
		{"moderation", &upload.Error{Kind: upload.KindModerationBlocked, Message: "blocked"}, http.StatusBadRequest},
		{"backend", &upload.Error{Kind: upload.KindTransientBackend, Message: "oss down"}, http.StatusInternalServerError},
		{"config", &upload.Error{Kind: upload.KindConfiguration, Message: "no backend"}, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newUploadEnv(&fakeUploader{uploadErr: tt.err}, nil, nil)

			body, ctype := multipartBody(t, nil, "image", "a.png", []byte("img"))
			req := httptest.NewRequest(http.MethodPost, "/upload/guest", body)
			req.Header.Set(echo.HeaderContentType, ctype)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Error == "" {
				t.Errorf("empty error body")
			}
		})
	}
}

func TestUploadModerationBlockFeedsBlocklist(t *testing.T) {
	t.Parallel()
	blocklist := &fakeBlocklist{}
	cfg := &config.Config{}
	cfg.Moderation.AutoBlack = true
	cfg.IP.Enabled = true
	svc := &fakeUploader{uploadErr: &upload.Error{Kind: upload.KindModerationBlocked, Message: "blocked"}}
	e := newUploadEnv(svc, blocklist, cfg)

	body, ctype := multipartBody(t, nil, "image", "a.png", []byte("img"))
	req := httptest.NewRequest(http.MethodPost, "/upload/guest", body)
	req.Header.Set(echo.HeaderContentType, ctype)
	req.RemoteAddr = "203.0.113.9:4711"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(blocklist.blocked) != 1 || blocklist.blocked[0] != "203.0.113.9" {
		t.Errorf("blocklist = %v", blocklist.blocked)
	}
}

func TestDeleteAsset(t *testing.T) {
	t.Parallel()
	svc := &fakeUploader{}
	e := echo.New()
	NewAssetHandler(svc, &config.Config{}, discardLogger()).Register(e)

	req := httptest.NewRequest(http.MethodDelete, "/assets/abc123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if svc.deletedID != "abc123" {
		t.Errorf("deleted id = %q", svc.deletedID)
	}
}

func TestDeleteUnknownAsset(t *testing.T) {
	t.Parallel()
	svc := &fakeUploader{deleteErr: upload.ErrAssetNotFound}
	e := echo.New()
	NewAssetHandler(svc, &config.Config{}, discardLogger()).Register(e)

	req := httptest.NewRequest(http.MethodDelete, "/assets/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
