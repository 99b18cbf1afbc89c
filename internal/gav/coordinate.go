// Package gav models the Maven group/artifact/version coordinate and
// its validity rules (spec §3).
package gav

import (
	"regexp"
	"strings"
)

var (
	groupArtifactRe = regexp.MustCompile(`^[a-z0-9_.-]+$`)
	versionRe       = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+$`)
)

// Coordinate identifies a Maven artifact.
type Coordinate struct {
	Group    string
	Artifact string
	Version  string
}

// GroupPath is the group name as a slash path, e.g. "com.example" ->
// "com/example".
func (c Coordinate) GroupPath() string {
	return strings.ReplaceAll(c.Group, ".", "/")
}

// IsSnapshot reports whether Version is a snapshot version.
func (c Coordinate) IsSnapshot() bool {
	return strings.HasSuffix(c.Version, "-SNAPSHOT")
}

// Valid checks the GAV character rules from spec §3. An empty field is
// always invalid (callers decide separately whether a field is
// optional for their purpose).
func (c Coordinate) Valid() bool {
	return groupArtifactRe.MatchString(c.Group) &&
		groupArtifactRe.MatchString(c.Artifact) &&
		versionRe.MatchString(c.Version)
}

// snapshotVersionRe matches a Maven snapshot timestamp-version
// filename, e.g. "mylib-1.0-20240101.010101-3.jar".
var snapshotVersionRe = regexp.MustCompile(`^(.+)-(\d{8}\.\d{6})-(\d+)(\.[^.]+)?$`)

// TimestampVersion extracts the expanded snapshot timestamp-version
// (e.g. "20240101.010101-3") from a filename of the form
// "artifact-base-yyyyMMdd.HHmmss-build.ext", per spec §4.4. ok is false
// if filename does not match that shape.
func TimestampVersion(filename string) (timestampVersion string, ok bool) {
	m := snapshotVersionRe.FindStringSubmatch(filename)
	if m == nil {
		return "", false
	}
	return m[2] + "-" + m[3], true
}
