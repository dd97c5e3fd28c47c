package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/mimo-os/runtime/procedure"
)

// validateVersion checks that a version string follows Semantic Versioning
// 2.0.0, with or without the 'v' prefix. MAJOR.MINOR.PATCH is required:
// StrictNewVersion rejects "1.0" rather than auto-completing it.
func validateVersion(version string) error {
	if version == "" {
		return fmt.Errorf("version is empty")
	}
	if version == VersionLatest {
		return fmt.Errorf("version %q is reserved", VersionLatest)
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(version, "v")); err != nil {
		return fmt.Errorf("invalid semantic version %q: %w", version, err)
	}
	return nil
}

// latestActive returns the active record with the highest semantic version,
// or nil when none qualifies. Records with unparseable versions are skipped;
// they can still be loaded explicitly.
func latestActive(records []*procedure.Procedure) *procedure.Procedure {
	type candidate struct {
		ver *semver.Version
		rec *procedure.Procedure
	}

	candidates := make([]candidate, 0, len(records))
	for _, rec := range records {
		if !rec.Active {
			continue
		}
		ver, err := semver.NewVersion(strings.TrimPrefix(rec.Version, "v"))
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{ver: ver, rec: rec})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ver.GreaterThan(candidates[j].ver)
	})
	return candidates[0].rec
}

// sortedStateNames returns state names in lexical order for stable
// violation reporting.
func sortedStateNames(def *procedure.Definition) []string {
	names := make([]string, 0, len(def.States))
	for name := range def.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
