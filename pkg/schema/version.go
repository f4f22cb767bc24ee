package schema

import (
	"strings"

	"golang.org/x/mod/semver"
)

// ValidateVersion checks that v is a full semantic version
// (MAJOR.MINOR.PATCH with optional pre-release and build metadata).
// Shorthands accepted by golang.org/x/mod/semver such as "1.2" and a leading
// "v" are rejected.
func ValidateVersion(field, v string) error {
	if v == "" {
		return Missing(field)
	}
	if strings.HasPrefix(v, "v") {
		return Invalid(field, "%q is not a valid semantic version", v)
	}
	sv := "v" + v
	if !semver.IsValid(sv) {
		return Invalid(field, "%q is not a valid semantic version", v)
	}
	core := v
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 {
		return Invalid(field, "%q is not a valid semantic version", v)
	}
	return nil
}

// CompareVersions orders two valid semantic versions like strings.Compare.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}
