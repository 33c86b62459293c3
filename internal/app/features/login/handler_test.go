package login_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/features/login"
	portalusers "github.com/dalemusser/ivrhub/internal/app/store/portalusers"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/app/system/authutil"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (*login.Handler, *mongo.Database) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager("test-session-key-for-testing-only", "test-session", "", 24*time.Hour, false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager failed: %v", err)
	}

	return login.NewHandler(db, sessionMgr, nil, 10*time.Minute, false, logger), db
}

// createAccount inserts a portal account with the given password.
func createAccount(t *testing.T, db *mongo.Database, email, password string, mut func(*models.PortalUser)) models.PortalUser {
	t.Helper()
	hash, err := authutil.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	u := models.PortalUser{
		FullName:     "Test Account",
		Email:        email,
		Role:         "admin",
		AuthMethod:   models.AuthMethodPassword,
		PasswordHash: hash,
	}
	if mut != nil {
		mut(&u)
	}
	ctx, cancel := testutil.TestContext()
	defer cancel()
	created, err := portalusers.New(db).Create(ctx, u)
	if err != nil {
		t.Fatalf("create account failed: %v", err)
	}
	return created
}

func postLogin(h *login.Handler, email, password, ret string) *httptest.ResponseRecorder {
	form := url.Values{}
	form.Set("email", email)
	form.Set("password", password)
	if ret != "" {
		form.Set("return", ret)
	}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleLoginPost(rec, req)
	return rec
}

func TestServeLogin_ReturnsLoginPage(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/login?return=/orders", nil)
	rec := httptest.NewRecorder()

	handler.ServeLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var page struct {
		Page      string `json:"page"`
		ReturnURL string `json:"return_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Page != "login" {
		t.Errorf("page: got %q, want %q", page.Page, "login")
	}
	if page.ReturnURL != "/orders" {
		t.Errorf("return_url: got %q, want %q", page.ReturnURL, "/orders")
	}
}

func TestHandleLoginPost_MissingCredentials(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := postLogin(handler, "", "", "")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHandleLoginPost_UnknownEmail(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := postLogin(handler, "nobody@example.com", "whatever", "")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestHandleLoginPost_WrongPassword(t *testing.T) {
	handler, db := newTestHandler(t)
	createAccount(t, db, "alice@example.com", "correct horse battery", nil)

	rec := postLogin(handler, "alice@example.com", "wrong password", "")

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_credentials") {
		t.Errorf("expected invalid_credentials error, got %s", rec.Body.String())
	}
}

func TestHandleLoginPost_DisabledAccount(t *testing.T) {
	handler, db := newTestHandler(t)
	createAccount(t, db, "gone@example.com", "correct horse battery", func(u *models.PortalUser) {
		u.Status = "disabled"
	})

	rec := postLogin(handler, "gone@example.com", "correct horse battery", "")

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleLoginPost_Success(t *testing.T) {
	handler, db := newTestHandler(t)
	createAccount(t, db, "carol@example.com", "correct horse battery", nil)

	rec := postLogin(handler, "carol@example.com", "correct horse battery", "")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d: %s", http.StatusSeeOther, rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location: got %q, want %q", loc, "/dashboard")
	}

	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == "test-session" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected a session cookie to be set")
	}
}

func TestHandleLoginPost_PreservesReturnURL(t *testing.T) {
	handler, db := newTestHandler(t)
	createAccount(t, db, "dave@example.com", "correct horse battery", nil)

	rec := postLogin(handler, "dave@example.com", "correct horse battery", "/patients")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/patients" {
		t.Errorf("Location: got %q, want %q", loc, "/patients")
	}
}

func TestHandleLoginPost_RejectsExternalReturnURL(t *testing.T) {
	handler, db := newTestHandler(t)
	createAccount(t, db, "erin@example.com", "correct horse battery", nil)

	rec := postLogin(handler, "erin@example.com", "correct horse battery", "https://evil.example.com/")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location: got %q, want fallback %q", loc, "/dashboard")
	}
}

func TestHandleLoginPost_MFARequiredRedirects(t *testing.T) {
	handler, db := newTestHandler(t)
	createAccount(t, db, "frank@example.com", "correct horse battery", func(u *models.PortalUser) {
		u.MFAEnabled = true
		u.MFAPhone = "555-0140"
	})

	rec := postLogin(handler, "frank@example.com", "correct horse battery", "")

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d: %s", http.StatusSeeOther, rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/login/mfa" {
		t.Errorf("Location: got %q, want %q", loc, "/login/mfa")
	}
}

func TestHandleLoginPost_MFAWithoutPhone(t *testing.T) {
	handler, db := newTestHandler(t)
	createAccount(t, db, "grace@example.com", "correct horse battery", func(u *models.PortalUser) {
		u.MFAEnabled = true
	})

	rec := postLogin(handler, "grace@example.com", "correct horse battery", "")

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}
}
