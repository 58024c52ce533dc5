package repair

import (
	"testing"

	"sitemedic/internal/models"
)

func TestBuildPlanGroupsPluginFindings(t *testing.T) {
	findings := []models.Finding{
		{Path: "/site/wp-content/plugins/evil/a.php", Severity: models.SeverityHigh, Kind: models.KindDangerousFunctions},
		{Path: "/site/wp-content/plugins/evil/b.php", Severity: models.SeverityHigh, Kind: models.KindObfuscation},
		{Path: "/site/wp-admin/hacked.php", Severity: models.SeverityHigh, Kind: models.KindDangerousFunctions},
		{Path: "/site/wp-content/uploads/blob.bin", Severity: models.SeverityMedium, Kind: models.KindHighEntropy},
		{Path: "/site/unreadable.php", Severity: models.SeverityLow, Kind: models.KindReadError},
	}

	plan := BuildPlan(findings, "/site")
	if len(plan) != 3 {
		t.Fatalf("plan = %+v", plan)
	}

	// Highest risk first: the quarantine of the high finding outside any
	// plugin, then the medium-risk steps.
	if plan[0].Kind != PlanQuarantineFile || plan[0].Path != "/site/wp-admin/hacked.php" || plan[0].Risk != models.SeverityHigh {
		t.Fatalf("plan[0] = %+v", plan[0])
	}

	var disable, quarantine *PlanItem
	for i := range plan[1:] {
		switch plan[1+i].Kind {
		case PlanDisable:
			disable = &plan[1+i]
		case PlanQuarantineFile:
			quarantine = &plan[1+i]
		}
	}
	if disable == nil || disable.Slug != "evil" || disable.ContentType != "plugins" || disable.Risk != models.SeverityMedium {
		t.Fatalf("disable step = %+v", disable)
	}
	if quarantine == nil || quarantine.Path != "/site/wp-content/uploads/blob.bin" {
		t.Fatalf("medium quarantine step = %+v", quarantine)
	}
}

func TestBuildPlanDeduplicatesPaths(t *testing.T) {
	findings := []models.Finding{
		{Path: "/site/x.php", Severity: models.SeverityHigh, Kind: models.KindDangerousFunctions},
		{Path: "/site/x.php", Severity: models.SeverityHigh, Kind: models.KindObfuscation},
	}
	plan := BuildPlan(findings, "/site")
	if len(plan) != 1 {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestBuildPlanThemeFindings(t *testing.T) {
	findings := []models.Finding{
		{Path: "/site/wp-content/themes/shady/functions.php", Severity: models.SeverityHigh, Kind: models.KindObfuscation},
	}
	plan := BuildPlan(findings, "/site")
	if len(plan) != 1 || plan[0].Kind != PlanDisable || plan[0].ContentType != "themes" || plan[0].Slug != "shady" {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestBuildPlanBareFileUnderPlugins(t *testing.T) {
	// A dropper placed directly in plugins/ has no slug directory to
	// disable, so it gets quarantined instead.
	findings := []models.Finding{
		{Path: "/site/wp-content/plugins/dropper.php", Severity: models.SeverityHigh, Kind: models.KindDangerousFunctions},
	}
	plan := BuildPlan(findings, "/site")
	if len(plan) != 1 || plan[0].Kind != PlanQuarantineFile {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestBuildPlanEmpty(t *testing.T) {
	if plan := BuildPlan(nil, "/site"); len(plan) != 0 {
		t.Fatalf("plan = %+v", plan)
	}
	findings := []models.Finding{
		{Path: "/site/a.php", Severity: models.SeverityLow, Kind: models.KindReadError},
	}
	if plan := BuildPlan(findings, "/site"); len(plan) != 0 {
		t.Fatalf("plan = %+v", plan)
	}
}
