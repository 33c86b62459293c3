package reportpolicy_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/ivrhub/internal/app/policy/reportpolicy"
	"github.com/dalemusser/ivrhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func requestAs(role, hierarchyID string) *http.Request {
	req := httptest.NewRequest("GET", "/reports", nil)
	return auth.WithTestUser(req, &auth.SessionUser{
		ID:          primitive.NewObjectID().Hex(),
		Role:        role,
		HierarchyID: hierarchyID,
	})
}

func TestCanViewReports_AdminWholeHierarchy(t *testing.T) {
	scope := reportpolicy.CanViewReports(requestAs("admin", ""))
	if !scope.CanView || !scope.AllHierarchy {
		t.Errorf("expected admin to report over the whole hierarchy, got %+v", scope)
	}
}

func TestCanViewReports_DistributorOwnSubtree(t *testing.T) {
	scope := reportpolicy.CanViewReports(requestAs("distributor", "regional-dist-1"))
	if !scope.CanView || scope.AllHierarchy {
		t.Fatalf("expected subtree scope, got %+v", scope)
	}
	if scope.RootID != "regional-dist-1" {
		t.Errorf("RootID = %q, want regional-dist-1", scope.RootID)
	}
}

func TestCanViewReports_DoctorOwnSubtree(t *testing.T) {
	scope := reportpolicy.CanViewReports(requestAs("doctor", "D-001"))
	if !scope.CanView || scope.RootID != "D-001" {
		t.Errorf("expected doctor scope rooted at D-001, got %+v", scope)
	}
}

func TestCanViewReports_NoHierarchyLink(t *testing.T) {
	scope := reportpolicy.CanViewReports(requestAs("sales", ""))
	if scope.CanView {
		t.Error("expected no report access for a sales account with no hierarchy link")
	}
}

func TestCanViewReports_NotSignedIn(t *testing.T) {
	scope := reportpolicy.CanViewReports(httptest.NewRequest("GET", "/reports", nil))
	if scope.CanView {
		t.Error("expected no report access for anonymous request")
	}
}

func TestCanExportReports_DoctorsExcluded(t *testing.T) {
	if !reportpolicy.CanExportReports(requestAs("admin", "")) {
		t.Error("expected admin to export")
	}
	if !reportpolicy.CanExportReports(requestAs("sales", "sales-rep-1")) {
		t.Error("expected sales to export")
	}
	if reportpolicy.CanExportReports(requestAs("doctor", "D-001")) {
		t.Error("expected doctors to be refused exports")
	}
}
