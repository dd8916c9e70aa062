package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/platinummonkey/deptree/pkg/api"
)

// MaxNameLength is the longest name the public registry accepts for new packages.
// Longer legacy names are still resolvable.
const MaxNameLength = 214

var (
	blacklistedNames = map[string]bool{
		"node_modules": true,
		"favicon.ico":  true,
	}

	scopedNamePattern = regexp.MustCompile(`^(?:@([^/]+?)/)?([^/]+?)$`)
)

// NameProblems returns every rule a package name breaks, in rule order.
// An empty result means the name is valid for an existing package.
func NameProblems(name string) []string {
	var problems []string

	if name == "" {
		return []string{"name length must be greater than zero"}
	}
	if strings.HasPrefix(name, ".") {
		problems = append(problems, "name cannot start with a period")
	}
	if strings.HasPrefix(name, "_") {
		problems = append(problems, "name cannot start with an underscore")
	}
	if strings.TrimSpace(name) != name {
		problems = append(problems, "name cannot contain leading or trailing spaces")
	}
	if blacklistedNames[strings.ToLower(name)] {
		problems = append(problems, fmt.Sprintf("%s is a blacklisted name", strings.ToLower(name)))
	}

	if !isURLSafe(name) {
		match := scopedNamePattern.FindStringSubmatch(name)
		if match == nil || match[1] == "" || !isURLSafe(match[1]) || !isURLSafe(match[2]) {
			problems = append(problems, "name can only contain URL-friendly characters")
		}
	}

	return problems
}

// ValidateName checks a package name against the registry naming rules
func ValidateName(name string) error {
	problems := NameProblems(name)
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", api.ErrInvalidInput, problems[0])
	}
	return nil
}

// ValidateVersion checks a version specifier and returns it trimmed. It accepts
// the latest marker, a concrete version or a range.
func ValidateVersion(version string) (string, error) {
	trimmed := strings.TrimSpace(version)
	if trimmed == "" {
		return "", fmt.Errorf("%w: version must not be empty", api.ErrInvalidInput)
	}
	if trimmed == api.LatestVersion {
		return trimmed, nil
	}
	if _, err := semver.NewVersion(trimmed); err == nil {
		return trimmed, nil
	}
	if _, err := semver.NewConstraint(trimmed); err != nil {
		return "", fmt.Errorf("%w: %q is not a valid version or range", api.ErrInvalidInput, version)
	}
	return trimmed, nil
}

// ValidateRef validates both halves of a request and returns the normalised ref
func ValidateRef(name, version string) (api.PackageRef, error) {
	if err := ValidateName(name); err != nil {
		return api.PackageRef{}, err
	}
	v, err := ValidateVersion(version)
	if err != nil {
		return api.PackageRef{}, err
	}
	return api.PackageRef{Name: name, Version: v}, nil
}

// isURLSafe reports whether s survives URI component encoding unchanged
func isURLSafe(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("-_.!~*'()", r):
		default:
			return false
		}
	}
	return true
}
