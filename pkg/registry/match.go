package registry

import (
	"slices"

	"github.com/Masterminds/semver/v3"
	"github.com/platinummonkey/deptree/pkg/api"
)

// IsConcrete reports whether version names exactly one published version and
// can be fetched directly. "latest" counts as concrete: the registry resolves
// it server side.
func IsConcrete(version string) bool {
	if version == api.LatestVersion {
		return true
	}
	_, err := semver.StrictNewVersion(version)
	return err == nil
}

// LatestMatching returns the highest of versions that satisfies constraint.
// Entries that are not valid semver are ignored. The returned string is the
// entry exactly as it appeared in versions.
func LatestMatching(versions []string, constraint *semver.Constraints) (string, bool) {
	type candidate struct {
		raw string
		v   *semver.Version
	}

	candidates := make([]candidate, 0, len(versions))
	for _, raw := range versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{raw: raw, v: v})
	}

	slices.SortFunc(candidates, func(a, b candidate) int {
		return b.v.Compare(a.v)
	})

	for _, c := range candidates {
		if constraint.Check(c.v) {
			return c.raw, true
		}
	}
	return "", false
}
