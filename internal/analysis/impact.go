package analysis

import (
	"path/filepath"

	"semq/internal/git"
)

// ImpactReport splits units by whether a change touches them.
type ImpactReport struct {
	Affected  []Unit
	Unchanged []Unit
}

// AnalyzeImpact identifies the units that must be re-analysed after changes. Smart casts depend
// on every declaration of a package, so a change anywhere in a unit affects all of it. A deleted
// file affects the unit of its directory.
func AnalyzeImpact(units []Unit, changes []git.ChangedFile) *ImpactReport {
	changedFiles := make(map[string]bool)
	changedDirs := make(map[string]bool)
	for _, c := range changes {
		path := filepath.Clean(c.Path)
		if filepath.Ext(path) != ".go" {
			continue
		}
		changedFiles[path] = true
		if c.Deleted {
			changedDirs[filepath.Dir(path)] = true
		}
	}

	report := &ImpactReport{Affected: []Unit{}, Unchanged: []Unit{}}
	for _, u := range units {
		if isAffected(u, changedFiles, changedDirs) {
			report.Affected = append(report.Affected, u)
		} else {
			report.Unchanged = append(report.Unchanged, u)
		}
	}
	return report
}

func isAffected(u Unit, files, dirs map[string]bool) bool {
	if dirs[filepath.Clean(u.Dir)] {
		return true
	}
	for _, f := range u.Files {
		if files[filepath.Clean(f)] {
			return true
		}
	}
	return false
}
