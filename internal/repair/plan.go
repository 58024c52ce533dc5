package repair

import (
	"sort"
	"strings"

	"sitemedic/internal/models"
)

// Plan item kinds.
const (
	PlanQuarantineFile = "quarantine_file"
	PlanDisable        = "disable"
)

// PlanItem is one proposed remediation step. Nothing here mutates the
// remote site; the plan is a preview the caller executes explicitly.
type PlanItem struct {
	Kind        string `json:"kind"`
	Path        string `json:"path,omitempty"`
	Slug        string `json:"slug,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Risk        string `json:"risk"`
	Reason      string `json:"reason"`
}

// BuildPlan derives remediation steps from a scan's findings. High-severity
// hits inside a plugin or theme collapse into one disable step per slug;
// everything else actionable becomes a per-file quarantine. Read errors
// carry no remediation.
func BuildPlan(findings []models.Finding, wpRoot string) []PlanItem {
	var plan []PlanItem
	disabled := make(map[string]bool) // contentType/slug already planned
	quarantined := make(map[string]bool)

	for _, f := range findings {
		if f.Kind == models.KindReadError {
			continue
		}
		if f.Severity != models.SeverityHigh && f.Severity != models.SeverityMedium {
			continue
		}

		if f.Severity == models.SeverityHigh {
			if contentType, slug, ok := slugOf(f.Path, wpRoot); ok {
				key := contentType + "/" + slug
				if !disabled[key] {
					disabled[key] = true
					// Disabling a whole plugin or theme is reversible, so it
					// carries lower risk than quarantining the file itself.
					plan = append(plan, PlanItem{
						Kind:        PlanDisable,
						Slug:        slug,
						ContentType: contentType,
						Risk:        models.SeverityMedium,
						Reason:      f.Kind,
					})
				}
				continue
			}
		}

		if !quarantined[f.Path] {
			quarantined[f.Path] = true
			plan = append(plan, PlanItem{
				Kind:   PlanQuarantineFile,
				Path:   f.Path,
				Risk:   f.Severity,
				Reason: f.Kind,
			})
		}
	}

	// High-risk steps first, disables before quarantines within a tier.
	sort.SliceStable(plan, func(i, j int) bool {
		ri, rj := riskRank(plan[i].Risk), riskRank(plan[j].Risk)
		if ri != rj {
			return ri > rj
		}
		return plan[i].Kind == PlanDisable && plan[j].Kind != PlanDisable
	})
	return plan
}

// slugOf extracts the plugin or theme slug a path belongs to, if any.
func slugOf(path, wpRoot string) (contentType, slug string, ok bool) {
	rel := RelPath(path, wpRoot)
	for _, ct := range []string{"plugins", "themes"} {
		prefix := "wp-content/" + ct + "/"
		if !strings.HasPrefix(rel, prefix) {
			continue
		}
		rest := strings.TrimPrefix(rel, prefix)
		slug, _, _ = strings.Cut(rest, "/")
		if slug != "" && rest != slug {
			// A bare file directly under plugins/ has no slug directory
			// to disable; it falls through to quarantine.
			return ct, slug, true
		}
	}
	return "", "", false
}

func riskRank(sev string) int {
	switch sev {
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	}
	return 0
}
