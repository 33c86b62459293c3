package timezones

import (
	"testing"

	"github.com/dalemusser/ivrhub/internal/domain/models"
)

func TestLoad(t *testing.T) {
	if err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestAll_ZonesCarryIDAndLabel(t *testing.T) {
	zones, err := All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(zones) == 0 {
		t.Fatal("All() returned no zones")
	}
	for _, z := range zones {
		if z.ID == "" {
			t.Error("zone has empty ID")
		}
		if z.Label == "" {
			t.Errorf("zone %q has empty label", z.ID)
		}
	}
}

func TestValid_SettingsFormZones(t *testing.T) {
	if err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		id   string
		want bool
	}{
		{models.DefaultTimeZone, true},
		{"America/New_York", true},
		{"UTC", true},
		{"Mars/Olympus_Mons", false},
		{"", false},
		{"central", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := Valid(tt.id); got != tt.want {
				t.Errorf("Valid(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestLabel_FallsBackToID(t *testing.T) {
	if err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := Label(models.DefaultTimeZone); got == "" {
		t.Errorf("Label(%q) returned empty string", models.DefaultTimeZone)
	}
	// Unknown ids echo back so stored territory zones render even when the
	// curated list shrinks.
	if got := Label("Atlantis/Lost_City"); got != "Atlantis/Lost_City" {
		t.Errorf("Label(unknown) = %q, want the id back", got)
	}
}

func TestGroups_SortedForTheTerritoryForm(t *testing.T) {
	groups, err := Groups()
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if len(groups) == 0 {
		t.Fatal("Groups() returned no groups")
	}

	for _, g := range groups {
		if g.Region == "" {
			t.Error("group has empty region")
		}
		if len(g.Zones) == 0 {
			t.Errorf("group %q has no zones", g.Region)
		}
		for i := 1; i < len(g.Zones); i++ {
			if g.Zones[i].Label < g.Zones[i-1].Label {
				t.Errorf("zones in %q out of order: %q after %q", g.Region, g.Zones[i].Label, g.Zones[i-1].Label)
			}
		}
	}
	for i := 1; i < len(groups); i++ {
		if groups[i].Region < groups[i-1].Region {
			t.Errorf("groups out of order: %q after %q", groups[i].Region, groups[i-1].Region)
		}
	}
}
