// Package useragent extracts the sing-box client version from a User-Agent
// header.
package useragent

import (
	"fmt"
	"regexp"

	"github.com/conneroisu/boxrender/internal/semver"
)

var (
	fullPattern = regexp.MustCompile(`(?i)sing-box/(\d+\.\d+\.\d+(?:-(?:alpha|beta|rc)\.\d+)?)`)
	anyPattern  = regexp.MustCompile(`(?i)sing-box/(\d+)\.(\d+)\.(\d+)-any\.\d+`)
)

// ParseSingBoxVersion returns the client version advertised in userAgent,
// or nil when none can be found. Builds tagged "-any.N" are reported as
// their plain major.minor.patch.
func ParseSingBoxVersion(userAgent string) *semver.Version {
	if userAgent == "" {
		return nil
	}

	if m := fullPattern.FindStringSubmatch(userAgent); m != nil {
		if v, err := semver.Parse(m[1]); err == nil {
			return v
		}
	}

	m := anyPattern.FindStringSubmatch(userAgent)
	if m == nil {
		return nil
	}
	v, err := semver.Parse(fmt.Sprintf("%s.%s.%s", m[1], m[2], m[3]))
	if err != nil {
		return nil
	}
	return v
}
