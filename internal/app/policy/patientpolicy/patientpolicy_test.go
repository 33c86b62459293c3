package patientpolicy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/dalemusser/ivrhub/internal/app/policy/patientpolicy"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"github.com/dalemusser/ivrhub/internal/domain/hierarchy"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seededService() *hierarchy.Service {
	return hierarchy.NewService(hierarchy.NewMemory(hierarchy.SeedUsers()...))
}

func requestAs(role, hierarchyID string, phi bool) *http.Request {
	req := httptest.NewRequest("GET", "/patients", nil)
	return auth.WithTestUser(req, &auth.SessionUser{
		ID:          primitive.NewObjectID().Hex(),
		Role:        role,
		HierarchyID: hierarchyID,
		PHIAccess:   phi,
	})
}

func TestCanListPatients_AdminSeesAll(t *testing.T) {
	svc := seededService()

	scope, err := patientpolicy.CanListPatients(context.Background(), svc, requestAs("admin", "", true))
	if err != nil {
		t.Fatalf("CanListPatients failed: %v", err)
	}
	if !scope.CanList || !scope.AllDoctors {
		t.Errorf("expected admin to list all doctors, got %+v", scope)
	}
}

func TestCanListPatients_NoPHIAccess(t *testing.T) {
	svc := seededService()

	scope, err := patientpolicy.CanListPatients(context.Background(), svc, requestAs("admin", "", false))
	if err != nil {
		t.Fatalf("CanListPatients failed: %v", err)
	}
	if scope.CanList {
		t.Error("expected no patient access without the PHI flag, even for admins")
	}
}

func TestCanListPatients_DistributorScopedToDownline(t *testing.T) {
	svc := seededService()

	scope, err := patientpolicy.CanListPatients(context.Background(), svc, requestAs("distributor", "regional-dist-1", true))
	if err != nil {
		t.Fatalf("CanListPatients failed: %v", err)
	}
	if !scope.CanList || scope.AllDoctors {
		t.Fatalf("expected downline-limited scope, got %+v", scope)
	}

	got := append([]string(nil), scope.DoctorIDs...)
	sort.Strings(got)
	want := []string{"D-001", "D-002", "D-003", "D-006"}
	if len(got) != len(want) {
		t.Fatalf("DoctorIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DoctorIDs = %v, want %v", got, want)
			break
		}
	}
}

func TestCanListPatients_DoctorSeesOnlySelf(t *testing.T) {
	svc := seededService()

	scope, err := patientpolicy.CanListPatients(context.Background(), svc, requestAs("doctor", "D-001", true))
	if err != nil {
		t.Fatalf("CanListPatients failed: %v", err)
	}
	if !scope.CanList || scope.AllDoctors {
		t.Fatalf("expected self-only scope, got %+v", scope)
	}
	if len(scope.DoctorIDs) != 1 || scope.DoctorIDs[0] != "D-001" {
		t.Errorf("DoctorIDs = %v, want [D-001]", scope.DoctorIDs)
	}
}

func TestCanListPatients_NoHierarchyLink(t *testing.T) {
	svc := seededService()

	scope, err := patientpolicy.CanListPatients(context.Background(), svc, requestAs("sales", "", true))
	if err != nil {
		t.Fatalf("CanListPatients failed: %v", err)
	}
	if scope.CanList {
		t.Error("expected no access for a sales account with no hierarchy link")
	}
}

func TestCanListPatients_NotSignedIn(t *testing.T) {
	svc := seededService()
	req := httptest.NewRequest("GET", "/patients", nil)

	scope, err := patientpolicy.CanListPatients(context.Background(), svc, req)
	if err != nil {
		t.Fatalf("CanListPatients failed: %v", err)
	}
	if scope.CanList {
		t.Error("expected no access for anonymous request")
	}
}

func TestListScope_Allows(t *testing.T) {
	scope := patientpolicy.ListScope{CanList: true, DoctorIDs: []string{"D-001", "D-002"}}

	if !scope.Allows("D-001") {
		t.Error("expected D-001 to be allowed")
	}
	if scope.Allows("D-004") {
		t.Error("expected D-004 to be refused")
	}

	all := patientpolicy.ListScope{CanList: true, AllDoctors: true}
	if !all.Allows("D-004") {
		t.Error("expected all-doctors scope to allow any doctor")
	}

	none := patientpolicy.ListScope{}
	if none.Allows("D-001") {
		t.Error("expected empty scope to refuse")
	}
}

func TestCanViewPatient_SalesRepDownline(t *testing.T) {
	svc := seededService()
	req := requestAs("sales", "sales-rep-1", true)

	ok, err := patientpolicy.CanViewPatient(context.Background(), svc, req, "D-001")
	if err != nil {
		t.Fatalf("CanViewPatient failed: %v", err)
	}
	if !ok {
		t.Error("expected sales-rep-1 to view their own doctor's patient")
	}

	ok, err = patientpolicy.CanViewPatient(context.Background(), svc, req, "D-004")
	if err != nil {
		t.Fatalf("CanViewPatient failed: %v", err)
	}
	if ok {
		t.Error("expected sales-rep-1 to be refused a patient outside their downline")
	}
}

func TestCanViewPatient_DoctorOwnPanelOnly(t *testing.T) {
	svc := seededService()
	req := requestAs("doctor", "D-002", true)

	ok, err := patientpolicy.CanViewPatient(context.Background(), svc, req, "D-002")
	if err != nil {
		t.Fatalf("CanViewPatient failed: %v", err)
	}
	if !ok {
		t.Error("expected a doctor to view their own patient")
	}

	ok, err = patientpolicy.CanViewPatient(context.Background(), svc, req, "D-001")
	if err != nil {
		t.Fatalf("CanViewPatient failed: %v", err)
	}
	if ok {
		t.Error("expected a doctor to be refused another doctor's patient")
	}
}

func TestCanImportPatients_LimitedToAdminAndAttendingDoctor(t *testing.T) {
	if !patientpolicy.CanImportPatients(requestAs("admin", "", true), "D-001") {
		t.Error("expected admin to import")
	}
	if !patientpolicy.CanImportPatients(requestAs("doctor", "D-001", true), "D-001") {
		t.Error("expected the attending doctor to import")
	}
	if patientpolicy.CanImportPatients(requestAs("doctor", "D-002", true), "D-001") {
		t.Error("expected another doctor to be refused")
	}
	if patientpolicy.CanImportPatients(requestAs("sales", "sales-rep-1", true), "D-001") {
		t.Error("expected a sales rep to be refused import")
	}
	if patientpolicy.CanImportPatients(requestAs("admin", "", false), "D-001") {
		t.Error("expected import to require the PHI flag")
	}
}
