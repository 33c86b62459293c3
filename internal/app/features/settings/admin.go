// internal/app/features/settings/admin.go
package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/ivrhub/internal/app/system/limits"
	"github.com/dalemusser/ivrhub/internal/app/system/normalize"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/timezones"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxSettingsUpload caps the settings POST body: the form fields plus at
// most one logo file.
const maxSettingsUpload = limits.MaxSettingsFormSize + limits.MaxLogoUploadSize

// Session inactivity bounds in minutes.
const (
	minInactivityMins = 5
	maxInactivityMins = 720
)

// HandleUpdate handles POST /settings. The form replaces the whole settings
// document; the logo is kept unless a new file or remove_logo arrives.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	res := gates.RequireAdmin(w, r, "Settings are admin only.", "/dashboard")
	if !res.OK {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSettingsUpload)
	if err := r.ParseMultipartForm(maxSettingsUpload); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			// Plain form post without a logo file.
			if err := r.ParseForm(); err != nil {
				webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
				return
			}
		} else if strings.Contains(err.Error(), "request body too large") {
			webwrite.Error(w, http.StatusRequestEntityTooLarge, "too_large", "Request is too large. The logo limit is 5 MB.")
			return
		} else {
			webwrite.Error(w, http.StatusBadRequest, "bad_form", "Invalid form data.")
			return
		}
	}

	cutoff, err := strconv.Atoi(strings.TrimSpace(r.FormValue("order_cutoff_hour")))
	if err != nil || cutoff < 0 || cutoff > 23 {
		webwrite.Error(w, http.StatusBadRequest, "bad_cutoff", "The order cutoff must be an hour from 0 to 23.")
		return
	}
	inactivity, err := strconv.Atoi(strings.TrimSpace(r.FormValue("session_inactivity_mins")))
	if err != nil || inactivity < minInactivityMins || inactivity > maxInactivityMins {
		webwrite.Error(w, http.StatusBadRequest, "bad_inactivity",
			fmt.Sprintf("Session inactivity must be %d to %d minutes.", minInactivityMins, maxInactivityMins))
		return
	}
	tz := strings.TrimSpace(r.FormValue("time_zone"))
	if tz == "" {
		tz = models.DefaultTimeZone
	}
	if !timezones.Valid(tz) {
		webwrite.Error(w, http.StatusBadRequest, "bad_time_zone", "Unknown time zone.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	current, err := h.Settings.Get(ctx)
	if err != nil {
		h.Log.Error("load settings", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	next := models.IVRSettings{
		Greeting:              htmlsanitize.Sanitize(strings.TrimSpace(r.FormValue("greeting"))),
		SupportPhone:          normalize.Phone(r.FormValue("support_phone")),
		OrderCutoffHour:       cutoff,
		TimeZone:              tz,
		RequireAdminMFA:       r.FormValue("require_admin_mfa") != "",
		SessionInactivityMins: inactivity,
		LogoPath:              current.LogoPath,
		LogoName:              current.LogoName,
		UpdatedByID:           &res.UserID,
		UpdatedByName:         res.Name,
	}

	if r.FormValue("remove_logo") != "" && current.HasLogo() {
		if h.Storage != nil {
			if err := h.Storage.Delete(ctx, current.LogoPath); err != nil {
				h.Log.Warn("delete old logo", zap.String("path", current.LogoPath), zap.Error(err))
			}
		}
		next.LogoPath = ""
		next.LogoName = ""
	}

	file, header, fileErr := r.FormFile("logo")
	if fileErr == nil && header != nil && header.Size > 0 {
		defer file.Close()

		contentType := header.Header.Get("Content-Type")
		if !strings.HasPrefix(contentType, "image/") {
			webwrite.Error(w, http.StatusBadRequest, "bad_logo", "The logo must be an image file.")
			return
		}
		if h.Storage == nil {
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "File storage is not configured.")
			return
		}
		if current.HasLogo() {
			if err := h.Storage.Delete(ctx, current.LogoPath); err != nil {
				h.Log.Warn("delete old logo", zap.String("path", current.LogoPath), zap.Error(err))
			}
		}
		path, err := uploadLogo(ctx, h.Storage, header.Filename, file, contentType)
		if err != nil {
			h.Log.Error("upload logo", zap.Error(err))
			webwrite.Error(w, http.StatusInternalServerError, "server_error", "Failed to store the logo.")
			return
		}
		next.LogoPath = path
		next.LogoName = header.Filename
	}

	if err := h.Settings.Save(ctx, next); err != nil {
		h.Log.Error("save settings", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	h.Audit.SettingsUpdated(r.Context(), r, res.UserID, res.Role, settingsChangedFields(current, next))

	saved, err := h.Settings.Get(ctx)
	if err != nil {
		h.Log.Error("reload settings", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	h.writeView(w, r, saved)
}

func settingsChangedFields(old, upd models.IVRSettings) string {
	var fields []string
	if old.Greeting != upd.Greeting {
		fields = append(fields, "greeting")
	}
	if old.SupportPhone != upd.SupportPhone {
		fields = append(fields, "support_phone")
	}
	if old.OrderCutoffHour != upd.OrderCutoffHour {
		fields = append(fields, "order_cutoff_hour")
	}
	if old.TimeZone != upd.TimeZone {
		fields = append(fields, "time_zone")
	}
	if old.RequireAdminMFA != upd.RequireAdminMFA {
		fields = append(fields, "require_admin_mfa")
	}
	if old.SessionInactivityMins != upd.SessionInactivityMins {
		fields = append(fields, "session_inactivity_mins")
	}
	if old.LogoPath != upd.LogoPath {
		fields = append(fields, "logo")
	}
	return strings.Join(fields, ", ")
}

// uploadLogo stores a logo under logos/YYYY/MM/ with a short unique name.
func uploadLogo(ctx context.Context, store storage.Store, filename string, reader io.Reader, contentType string) (string, error) {
	now := time.Now().UTC()
	dateDir := fmt.Sprintf("logos/%04d/%02d", now.Year(), now.Month())
	uniqueName := fmt.Sprintf("%s%s", uuid.New().String()[:8], filepath.Ext(filename))
	path := filepath.ToSlash(filepath.Join(dateDir, uniqueName))

	opts := &storage.PutOptions{ContentType: contentType}
	if err := store.Put(ctx, path, reader, opts); err != nil {
		return "", fmt.Errorf("failed to upload logo: %w", err)
	}
	return path, nil
}
