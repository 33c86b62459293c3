// internal/app/features/patients/handler.go
package patients

import (
	"context"
	"maps"
	"net/http"

	"github.com/dalemusser/ivrhub/internal/app/policy/patientpolicy"
	patientstore "github.com/dalemusser/ivrhub/internal/app/store/patients"
	"github.com/dalemusser/ivrhub/internal/app/system/auditlog"
	"github.com/dalemusser/ivrhub/internal/app/system/gates"
	"github.com/dalemusser/ivrhub/internal/app/system/paging"
	"github.com/dalemusser/ivrhub/internal/app/system/timeouts"
	"github.com/dalemusser/ivrhub/internal/app/system/viewdata"
	"github.com/dalemusser/ivrhub/internal/app/system/webwrite"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"github.com/dalemusser/ivrhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Handler serves patient records. Every field on a patient is PHI: all
// routes sit behind the explicit PHI-access claim, and list visibility is
// limited to the caller's downline doctors.
type Handler struct {
	Log      *zap.Logger
	Svc      *hierarchy.Service
	Patients *patientstore.Store
	Audit    *auditlog.Logger
}

func NewHandler(db *mongo.Database, svc *hierarchy.Service, audit *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		Log:      logger,
		Svc:      svc,
		Patients: patientstore.New(db),
		Audit:    audit,
	}
}

type listPage struct {
	Viewer     viewdata.Viewer  `json:"viewer"`
	Page       string           `json:"page"`
	Patients   []models.Patient `json:"patients"`
	Total      int64            `json:"total"`
	Query      string           `json:"query,omitempty"`
	DoctorID   string           `json:"doctor_id,omitempty"`
	HasPrev    bool             `json:"has_prev"`
	HasNext    bool             `json:"has_next"`
	PrevCursor string           `json:"prev_cursor,omitempty"`
	NextCursor string           `json:"next_cursor,omitempty"`
	RangeStart int              `json:"range_start"`
	RangeEnd   int              `json:"range_end"`
}

// ServeList handles GET /patients (?q= last-name search, ?doctor= panel
// filter, ?after=/?before= keyset cursors).
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	res := gates.RequirePHIAccess(w, r, "/dashboard")
	if !res.OK {
		return
	}

	q := query.Search(r, "q")
	doctorID := query.Get(r, "doctor")
	after := query.Get(r, "after")
	before := query.Get(r, "before")
	start := paging.ParseStart(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	scope, err := patientpolicy.CanListPatients(ctx, h.Svc, r)
	if err != nil {
		h.Log.Error("resolve patient list scope", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !scope.CanList {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "You do not have access to patient records.")
		return
	}

	base := bson.M{}
	if !scope.AllDoctors {
		base["doctor_id"] = bson.M{"$in": scope.DoctorIDs}
	}
	if doctorID != "" {
		if !scope.Allows(doctorID) {
			webwrite.Error(w, http.StatusForbidden, "forbidden", "That doctor is outside your downline.")
			return
		}
		base["doctor_id"] = doctorID
	}

	var searchClause bson.M
	if fq := text.Fold(q); fq != "" {
		searchClause = bson.M{"last_name_ci": bson.M{"$gte": fq, "$lt": fq + "\uffff"}}
		maps.Copy(base, searchClause)
	}

	total, err := h.Patients.Count(ctx, base)
	if err != nil {
		h.Log.Error("count patients", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	sortField := "last_name_ci"
	cfg := paging.ConfigureKeyset(before, after)
	find := options.Find()
	cfg.ApplyToFind(find, sortField)

	f := maps.Clone(base)
	if ks := cfg.KeysetWindow(sortField); ks != nil {
		if searchClause != nil {
			delete(f, "last_name_ci")
			f["$and"] = []bson.M{searchClause, ks}
		} else {
			maps.Copy(f, ks)
		}
	}

	rows, err := h.Patients.Find(ctx, f, find)
	if err != nil {
		h.Log.Error("find patients", zap.Error(err))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	if cfg.Direction == paging.Backward {
		paging.Reverse(rows)
	}
	pageInfo := paging.TrimPage(&rows, before, after)
	rng := paging.ComputeRange(start, len(rows))

	prevCur, nextCur := paging.BuildCursors(rows,
		func(p models.Patient) string { return p.LastNameCI },
		func(p models.Patient) primitive.ObjectID { return p.ID })

	h.Audit.PHIViewed(r.Context(), r, res.UserID, primitive.NilObjectID, res.Role, "patient_list")

	webwrite.JSON(w, listPage{
		Viewer:     viewdata.NewViewer(r),
		Page:       "patients",
		Patients:   rows,
		Total:      total,
		Query:      q,
		DoctorID:   doctorID,
		HasPrev:    pageInfo.HasPrev,
		HasNext:    pageInfo.HasNext,
		PrevCursor: prevCur,
		NextCursor: nextCur,
		RangeStart: rng.Start,
		RangeEnd:   rng.End,
	})
}

// ServeDetail handles GET /patients/{id}.
func (h *Handler) ServeDetail(w http.ResponseWriter, r *http.Request) {
	res := gates.RequirePHIAccess(w, r, "/dashboard")
	if !res.OK {
		return
	}

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such patient.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	p, err := h.Patients.GetByID(ctx, id)
	if err == mongo.ErrNoDocuments {
		webwrite.Error(w, http.StatusNotFound, "not_found", "No such patient.")
		return
	}
	if err != nil {
		h.Log.Error("load patient", zap.Error(err), zap.String("id", id.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}

	ok, err := patientpolicy.CanViewPatient(ctx, h.Svc, r, p.DoctorID)
	if err != nil {
		h.Log.Error("check patient access", zap.Error(err), zap.String("id", id.Hex()))
		webwrite.Error(w, http.StatusInternalServerError, "server_error", "A server error occurred.")
		return
	}
	if !ok {
		webwrite.Error(w, http.StatusForbidden, "forbidden", "That patient is outside your downline.")
		return
	}

	h.Audit.PHIViewed(r.Context(), r, res.UserID, p.ID, res.Role, "patient_detail")
	webwrite.JSON(w, map[string]any{"patient": p})
}
