// Package metadata parses maven-metadata.xml, adapted from the
// teacher's internal/storage/maven_handler.go MavenMetadata family and
// trimmed to what the finalizer needs (spec §4.6 step 3): parse the
// client-supplied file for a sanity check. Regenerating its checksum
// sidecars (step 4) is done by the deploy package's finalizer, not here.
package metadata

import (
	"encoding/xml"
	"fmt"
)

// Metadata is the parsed subset of maven-metadata.xml relevant to
// deploy ingestion: just enough structure to confirm the file isn't
// corrupt (spec §4.6 step 3's rationale — sidecars arrive after this
// file, so transport-level corruption can otherwise slip past
// checksum validation).
type Metadata struct {
	XMLName    xml.Name    `xml:"metadata"`
	GroupID    string      `xml:"groupId"`
	ArtifactID string      `xml:"artifactId"`
	Versioning *Versioning `xml:"versioning"`
}

// Versioning carries the release/version listing and snapshot block.
type Versioning struct {
	Latest   string    `xml:"latest"`
	Release  string    `xml:"release"`
	Versions *Versions `xml:"versions"`
	Snapshot *Snapshot `xml:"snapshot"`
}

// Versions lists the known versions for a group/artifact.
type Versions struct {
	Version []string `xml:"version"`
}

// Snapshot carries the timestamp/build-number pair for expanded
// snapshot filenames.
type Snapshot struct {
	Timestamp   string `xml:"timestamp"`
	BuildNumber int    `xml:"buildNumber"`
}

// Parse parses a maven-metadata.xml file's raw bytes. Spec §4.6 step
// 3: on parse failure the finalizer reports invalid-maven-metadata-file.
func Parse(data []byte) (*Metadata, error) {
	var m Metadata
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse maven-metadata.xml: %w", err)
	}
	if m.ArtifactID == "" {
		return nil, fmt.Errorf("maven-metadata.xml missing artifactId")
	}
	return &m, nil
}
