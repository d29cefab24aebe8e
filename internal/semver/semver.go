// Package semver parses and orders client versions of the form
// major.minor.patch with an optional alpha, beta or rc pre-release counter.
package semver

import (
	"fmt"
	"regexp"
	"strconv"
)

// PreRelease identifies the pre-release channel of a version
type PreRelease int

const (
	// Release marks a version without a pre-release qualifier
	Release PreRelease = iota
	Alpha
	Beta
	RC
)

// String returns the label used in version strings
func (p PreRelease) String() string {
	switch p {
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case RC:
		return "rc"
	default:
		return ""
	}
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-(alpha|beta|rc)\.(\d+))?$`)

// Version is an immutable parsed version
type Version struct {
	major, minor, patch int
	pre                 PreRelease
	preNumber           int
}

// Parse parses a version string. Any shape other than
// major.minor.patch[-(alpha|beta|rc).N] is rejected.
func Parse(s string) (*Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}

	nums := make([]int, 0, 4)
	for _, part := range []string{m[1], m[2], m[3], m[5]} {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid version format: %q: %w", s, err)
		}
		nums = append(nums, n)
	}

	v := &Version{major: nums[0], minor: nums[1], patch: nums[2]}
	switch m[4] {
	case "alpha":
		v.pre = Alpha
	case "beta":
		v.pre = Beta
	case "rc":
		v.pre = RC
	}
	if v.pre != Release {
		v.preNumber = nums[3]
	}

	return v, nil
}

// MustParse is like Parse but panics on invalid input
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component
func (v *Version) Major() int { return v.major }

// Minor returns the minor component
func (v *Version) Minor() int { return v.minor }

// Patch returns the patch component
func (v *Version) Patch() int { return v.patch }

// PreRelease returns the pre-release channel and its counter.
// The counter is zero for release versions.
func (v *Version) PreRelease() (PreRelease, int) { return v.pre, v.preNumber }

// Compare returns -1, 0 or 1 when v is lower than, equal to or greater
// than other. A release sorts above every pre-release of the same triple.
func (v *Version) Compare(other *Version) int {
	if c := compareInt(v.major, other.major); c != 0 {
		return c
	}
	if c := compareInt(v.minor, other.minor); c != 0 {
		return c
	}
	if c := compareInt(v.patch, other.patch); c != 0 {
		return c
	}

	switch {
	case v.pre == Release && other.pre == Release:
		return 0
	case v.pre == Release:
		return 1
	case other.pre == Release:
		return -1
	}

	if c := compareInt(int(v.pre), int(other.pre)); c != 0 {
		return c
	}
	return compareInt(v.preNumber, other.preNumber)
}

// Eq reports whether v equals other
func (v *Version) Eq(other *Version) bool { return v.Compare(other) == 0 }

// Gt reports whether v is greater than other
func (v *Version) Gt(other *Version) bool { return v.Compare(other) > 0 }

// Gte reports whether v is greater than or equal to other
func (v *Version) Gte(other *Version) bool { return v.Compare(other) >= 0 }

// Lt reports whether v is lower than other
func (v *Version) Lt(other *Version) bool { return v.Compare(other) < 0 }

// Lte reports whether v is lower than or equal to other
func (v *Version) Lte(other *Version) bool { return v.Compare(other) <= 0 }

// String formats the version in its canonical form
func (v *Version) String() string {
	if v.pre == Release {
		return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
	}
	return fmt.Sprintf("%d.%d.%d-%s.%d", v.major, v.minor, v.patch, v.pre, v.preNumber)
}

func compareInt(a, b int) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}
