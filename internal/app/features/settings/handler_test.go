package settings_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	feature "github.com/dalemusser/ivrhub/internal/app/features/settings"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/ivrhub/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func newSettingsHandler(t *testing.T) *feature.Handler {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return feature.NewHandler(db, nil, nil, zap.NewNop())
}

func adminUser() *auth.SessionUser {
	return &auth.SessionUser{ID: "507f1f77bcf86cd799439081", Name: "Admin", Role: "admin"}
}

func routeRequest(h *feature.Handler, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/settings", h.ServeSettings)
	r.Post("/settings", h.HandleUpdate)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func postForm(h *feature.Handler, form url.Values, u *auth.SessionUser) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/settings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = auth.WithTestUser(req, u)
	return routeRequest(h, req)
}

func baseForm() url.Values {
	form := url.Values{}
	form.Set("greeting", "Welcome to the order line.")
	form.Set("support_phone", "+1 555 000 9999")
	form.Set("order_cutoff_hour", "15")
	form.Set("session_inactivity_mins", "30")
	form.Set("time_zone", "America/Chicago")
	return form
}

func TestServeSettings_DefaultsWhenUnset(t *testing.T) {
	handler := newSettingsHandler(t)

	req := auth.WithTestUser(httptest.NewRequest("GET", "/settings", nil), adminUser())
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var view struct {
		Settings models.IVRSettings `json:"settings"`
		HasLogo  bool               `json:"has_logo"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Settings.OrderCutoffHour != models.DefaultOrderCutoffHour {
		t.Errorf("cutoff: got %d, want default %d", view.Settings.OrderCutoffHour, models.DefaultOrderCutoffHour)
	}
	if view.Settings.SessionInactivityMins != models.DefaultSessionInactivityMins {
		t.Errorf("inactivity: got %d, want default %d", view.Settings.SessionInactivityMins, models.DefaultSessionInactivityMins)
	}
	if view.HasLogo {
		t.Error("expected no logo before any upload")
	}
}

func TestServeSettings_NonAdminForbidden(t *testing.T) {
	handler := newSettingsHandler(t)

	u := &auth.SessionUser{ID: "507f1f77bcf86cd799439082", Name: "Dan", Role: "distributor", HierarchyID: "regional-dist-1"}
	req := auth.WithTestUser(httptest.NewRequest("GET", "/settings", nil), u)
	rec := routeRequest(handler, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestHandleUpdate_SavesAndSanitizesGreeting(t *testing.T) {
	handler := newSettingsHandler(t)

	form := baseForm()
	form.Set("greeting", `<script>alert(1)</script><b>Thank you for calling.</b>`)
	form.Set("require_admin_mfa", "on")

	rec := postForm(handler, form, adminUser())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var view struct {
		Settings models.IVRSettings `json:"settings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if strings.Contains(view.Settings.Greeting, "<script>") {
		t.Errorf("greeting not sanitized: %q", view.Settings.Greeting)
	}
	if !strings.Contains(view.Settings.Greeting, "Thank you for calling.") {
		t.Errorf("greeting lost its content: %q", view.Settings.Greeting)
	}
	if !view.Settings.RequireAdminMFA {
		t.Error("expected require_admin_mfa to be on")
	}
	if view.Settings.UpdatedByName != "Admin" {
		t.Errorf("updated_by_name: got %q", view.Settings.UpdatedByName)
	}
}

func TestHandleUpdate_MFAToggleOffWhenUnchecked(t *testing.T) {
	handler := newSettingsHandler(t)

	form := baseForm()
	form.Set("require_admin_mfa", "on")
	if rec := postForm(handler, form, adminUser()); rec.Code != http.StatusOK {
		t.Fatalf("first save failed: %d: %s", rec.Code, rec.Body.String())
	}

	// A form post without the checkbox turns the requirement back off.
	rec := postForm(handler, baseForm(), adminUser())
	if rec.Code != http.StatusOK {
		t.Fatalf("second save failed: %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Settings models.IVRSettings `json:"settings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if view.Settings.RequireAdminMFA {
		t.Error("expected require_admin_mfa to be off after an unchecked save")
	}
}

func TestHandleUpdate_RejectsBadValues(t *testing.T) {
	handler := newSettingsHandler(t)

	cases := []struct {
		name  string
		field string
		value string
	}{
		{"cutoff above 23", "order_cutoff_hour", "24"},
		{"cutoff not a number", "order_cutoff_hour", "soon"},
		{"inactivity too low", "session_inactivity_mins", "1"},
		{"inactivity too high", "session_inactivity_mins", "100000"},
		{"unknown time zone", "time_zone", "Mars/Olympus_Mons"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := baseForm()
			form.Set(tc.field, tc.value)
			rec := postForm(handler, form, adminUser())
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleUpdate_NonAdminForbidden(t *testing.T) {
	handler := newSettingsHandler(t)

	u := &auth.SessionUser{ID: "507f1f77bcf86cd799439083", Name: "Frank", Role: "sales", HierarchyID: "sales-rep-1"}
	rec := postForm(handler, baseForm(), u)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}
