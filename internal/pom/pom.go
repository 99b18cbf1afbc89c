// Package pom parses the Maven POM XML descriptor, adapted from the
// teacher's internal/storage/maven_handler.go POMProject family and
// trimmed to the fields the deploy pipeline actually consults (spec
// §3 "POM data", §4.3.2, §4.6).
package pom

import (
	"encoding/xml"
	"fmt"
)

// Project is the parsed subset of a POM relevant to deploy ingestion.
type Project struct {
	XMLName    xml.Name `xml:"project"`
	GroupID    string   `xml:"groupId"`
	ArtifactID string   `xml:"artifactId"`
	Version    string   `xml:"version"`
	Packaging  string   `xml:"packaging"`
	Parent     *Parent  `xml:"parent"`
}

// Parent carries the coordinates a POM may inherit group/version from.
type Parent struct {
	GroupID string `xml:"groupId"`
	Version string `xml:"version"`
}

// Group returns the effective groupId, falling back to the parent's.
func (p *Project) Group() string {
	if p.GroupID != "" {
		return p.GroupID
	}
	if p.Parent != nil {
		return p.Parent.GroupID
	}
	return ""
}

// EffectiveVersion returns the effective version, falling back to the
// parent's.
func (p *Project) EffectiveVersion() string {
	if p.Version != "" {
		return p.Version
	}
	if p.Parent != nil {
		return p.Parent.Version
	}
	return ""
}

// EffectivePackaging defaults packaging to "jar", matching Maven's own
// default when the element is absent.
func (p *Project) EffectivePackaging() string {
	if p.Packaging == "" {
		return "jar"
	}
	return p.Packaging
}

// Parse parses a POM file's raw bytes. Spec §4.6 step 2: on parse
// failure the finalizer reports invalid-pom-file.
func Parse(data []byte) (*Project, error) {
	var p Project
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse POM: %w", err)
	}
	if p.ArtifactID == "" {
		return nil, fmt.Errorf("POM missing artifactId")
	}
	if p.Group() == "" {
		return nil, fmt.Errorf("POM missing groupId")
	}
	if p.EffectiveVersion() == "" {
		return nil, fmt.Errorf("POM missing version")
	}
	return &p, nil
}
