package login_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dalemusser/ivrhub/internal/app/store/mfacodes"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
)

// mfaAccount creates an MFA-enabled account plus a pending challenge and
// returns the account and the plaintext code.
func mfaAccount(t *testing.T, db *mongo.Database) (models.PortalUser, string) {
	t.Helper()
	u := createAccount(t, db, "mfa@example.com", "correct horse battery", func(u *models.PortalUser) {
		u.MFAEnabled = true
		u.MFAPhone = "555-0140"
	})
	store := mfacodes.New(db, 0)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	result, err := store.Create(ctx, u.ID, u.MFAPhone, mfacodes.ChannelIVRCall, false)
	if err != nil {
		t.Fatalf("create mfa challenge failed: %v", err)
	}
	return u, result.Code
}

// preMFARequest builds a request carrying the signed-in-but-unverified
// session the password step leaves behind.
func preMFARequest(method, target string, body string, u models.PortalUser) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return auth.WithTestUser(req, &auth.SessionUser{
		ID:          u.ID.Hex(),
		Name:        u.FullName,
		LoginID:     u.Email,
		Role:        u.Role,
		MFAVerified: false,
	})
}

func TestServeMFA_RedirectsAnonymous(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/login/mfa", nil)
	rec := httptest.NewRecorder()

	handler.ServeMFA(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d", http.StatusSeeOther, rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location: got %q, want %q", loc, "/login")
	}
}

func TestServeMFA_ShowsMaskedPhone(t *testing.T) {
	handler, db := newTestHandler(t)
	u, _ := mfaAccount(t, db)

	req := preMFARequest("GET", "/login/mfa", "", u)
	rec := httptest.NewRecorder()

	handler.ServeMFA(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var page struct {
		Page    string `json:"page"`
		Phone   string `json:"phone"`
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if page.Page != "login_mfa" {
		t.Errorf("page: got %q, want %q", page.Page, "login_mfa")
	}
	if page.Channel != mfacodes.ChannelIVRCall {
		t.Errorf("channel: got %q, want %q", page.Channel, mfacodes.ChannelIVRCall)
	}
	if !strings.HasSuffix(page.Phone, "0140") {
		t.Errorf("phone should keep last four digits, got %q", page.Phone)
	}
	if strings.Contains(page.Phone, "555") {
		t.Errorf("phone should be masked, got %q", page.Phone)
	}
}

func TestHandleMFAPost_InvalidCode(t *testing.T) {
	handler, db := newTestHandler(t)
	u, _ := mfaAccount(t, db)

	form := url.Values{}
	form.Set("code", "000000")
	req := preMFARequest("POST", "/login/mfa", form.Encode(), u)
	rec := httptest.NewRecorder()

	handler.HandleMFAPost(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_code") {
		t.Errorf("expected invalid_code error, got %s", rec.Body.String())
	}
}

func TestHandleMFAPost_Success(t *testing.T) {
	handler, db := newTestHandler(t)
	u, code := mfaAccount(t, db)

	form := url.Values{}
	form.Set("code", code)
	form.Set("return", "/orders")
	req := preMFARequest("POST", "/login/mfa", form.Encode(), u)
	rec := httptest.NewRecorder()

	handler.HandleMFAPost(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected status %d, got %d: %s", http.StatusSeeOther, rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/orders" {
		t.Errorf("Location: got %q, want %q", loc, "/orders")
	}
}

func TestHandleMFAPost_TooManyAttempts(t *testing.T) {
	handler, db := newTestHandler(t)
	u, _ := mfaAccount(t, db)

	form := url.Values{}
	form.Set("code", "000000")

	var rec *httptest.ResponseRecorder
	for i := 0; i <= mfacodes.MaxVerifyAttempts; i++ {
		req := preMFARequest("POST", "/login/mfa", form.Encode(), u)
		rec = httptest.NewRecorder()
		handler.HandleMFAPost(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d after exhausting attempts, got %d", http.StatusTooManyRequests, rec.Code)
	}
}

func TestHandleMFAResend_CountsResends(t *testing.T) {
	handler, db := newTestHandler(t)
	u, _ := mfaAccount(t, db)

	req := preMFARequest("POST", "/login/mfa/resend", "", u)
	rec := httptest.NewRecorder()

	handler.HandleMFAResend(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp struct {
		Resent      bool `json:"resent"`
		ResendCount int  `json:"resend_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Resent || resp.ResendCount != 1 {
		t.Errorf("expected resent=true count=1, got %+v", resp)
	}
}
