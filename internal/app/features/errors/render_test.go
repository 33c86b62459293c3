// internal/app/features/errors/render_test.go
package errors_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	uierrors "github.com/dalemusser/ivrhub/internal/app/features/errors"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return body.Error.Code, body.Error.Message
}

func TestRenderUnauthorized_APICallerGetsEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/patients?page=2", nil)
	rec := httptest.NewRecorder()

	uierrors.RenderUnauthorized(rec, req, "/login")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	code, _ := decodeEnvelope(t, rec)
	if code != "unauthorized" {
		t.Fatalf("error code = %q, want unauthorized", code)
	}
}

func TestRenderUnauthorized_BrowserRedirectsToLoginWithReturn(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?status=pending", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := httptest.NewRecorder()

	uierrors.RenderUnauthorized(rec, req, "")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	loc := rec.Header().Get("Location")
	want := "/login?return=%2Forders%3Fstatus%3Dpending"
	if loc != want {
		t.Fatalf("Location = %q, want %q", loc, want)
	}
}

func TestRenderUnauthorized_HTMXGetsClientRedirect(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()

	uierrors.RenderUnauthorized(rec, req, "/login")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if got := rec.Header().Get("HX-Redirect"); got != "/login?return=%2Freports" {
		t.Fatalf("HX-Redirect = %q", got)
	}
}

func TestRenderForbidden_APICallerGetsMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()

	uierrors.RenderForbidden(rec, req, "Settings are admin only.", "/dashboard")

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusForbidden)
	}
	code, message := decodeEnvelope(t, rec)
	if code != "forbidden" {
		t.Fatalf("error code = %q, want forbidden", code)
	}
	if message != "Settings are admin only." {
		t.Fatalf("message = %q", message)
	}
}

func TestRenderForbidden_BrowserRedirectsToFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/portal-users", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()

	uierrors.RenderForbidden(rec, req, "Admins only.", "")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("Location = %q, want /dashboard", loc)
	}
}

func TestRenderForbidden_EmptyMessageGetsDefault(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	rec := httptest.NewRecorder()

	uierrors.RenderForbidden(rec, req, "", "/dashboard")

	_, message := decodeEnvelope(t, rec)
	if message == "" {
		t.Fatal("expected a default forbidden message")
	}
}
