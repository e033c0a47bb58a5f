// Package version decides whether a plugin may run against the current
// framework version.
//
// The check is intentionally coarse: only the major component is compared.
// Minor and patch differences never block loading. This is not semantic
// version range resolution.
package version

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

var (
	ErrInvalidVersion    = errors.New("version: not a valid semantic version")
	ErrPluginOutdated    = errors.New("version: plugin targets an older framework major version")
	ErrFrameworkOutdated = errors.New("version: plugin requires a newer framework major version")
)

// canonical turns "1.2.3" or "v1.2.3" into the "v1.2.3" form semver expects.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// NoRequirement reports whether required declares no framework requirement.
func NoRequirement(required string) bool {
	c := canonical(required)
	return strings.TrimSpace(required) == "" || c == "v0.0.0"
}

// Major returns the major component of v, e.g. "v2".
func Major(v string) (string, error) {
	c := canonical(v)
	if c == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return semver.Major(c), nil
}

// Check compares the plugin's required framework version with the running
// one and explains why loading must be blocked. It returns nil when the
// plugin may load.
func Check(required, actual string) error {
	if NoRequirement(required) {
		return nil
	}
	reqMajor, err := Major(required)
	if err != nil {
		return err
	}
	actMajor, err := Major(actual)
	if err != nil {
		return err
	}

	switch semver.Compare(reqMajor, actMajor) {
	case 0:
		return nil
	case -1:
		return fmt.Errorf("%w: requires %s, running %s", ErrPluginOutdated, required, actual)
	default:
		return fmt.Errorf("%w: requires %s, running %s", ErrFrameworkOutdated, required, actual)
	}
}

// IsBlocked reports whether a plugin requiring required must not be enabled
// on a framework running actual. Unparseable versions block.
func IsBlocked(required, actual string) bool {
	return Check(required, actual) != nil
}
