// Package validation implements the deploy validator of spec §4.3:
// pure checks over a staging directory plus a parsed POM, run in a
// fixed order, failing on the first violation. Grounded on the
// teacher's internal/validation/artifact.go (plain functions,
// ordered checks, the stdlib errors package for simple cases) and on
// internal/storage/maven_handler.go for how the teacher already
// distinguishes POM/jar/checksum/signature files by suffix.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clojars/deploy-ingest/internal/deployerrors"
	"github.com/clojars/deploy-ingest/internal/fileutil"
	"github.com/clojars/deploy-ingest/internal/gav"
	"github.com/clojars/deploy-ingest/internal/pom"
)

// ReleaseChecker answers whether a non-snapshot release has already
// been published, for the non-snapshot re-deploy check (spec §4.3.3).
type ReleaseChecker interface {
	Exists(group, artifact, version string) (bool, error)
}

// ShadowChecker answers whether a coordinate shadows an upstream
// Maven Central release (spec §4.3.4).
type ShadowChecker interface {
	Shadowed(ctx context.Context, group, artifact string) (bool, error)
}

// Validator runs validate-deploy (spec §4.3) against its collaborators.
type Validator struct {
	Releases ReleaseChecker
	Shadow   ShadowChecker
}

// New builds a Validator.
func New(releases ReleaseChecker, shadow ShadowChecker) *Validator {
	return &Validator{Releases: releases, Shadow: shadow}
}

// ValidateDeploy runs the seven ordered checks of spec §4.3 against
// dir (the staging directory), the parsed POM, and the coordinate
// derived from the upload path. It returns the first violation found,
// as a *deployerrors.DeployError.
func (v *Validator) ValidateDeploy(ctx context.Context, dir string, p *pom.Project, coord gav.Coordinate) error {
	if err := checkGAV(coord); err != nil {
		return err
	}
	if err := checkPOMConsistency(p, coord); err != nil {
		return err
	}
	if err := v.checkNonSnapshotRedeploy(coord); err != nil {
		return err
	}
	if err := v.checkCentralShadow(ctx, coord); err != nil {
		return err
	}
	artifacts, err := listArtifacts(dir)
	if err != nil {
		return deployerrors.Forbidden("list staged artifacts: %v", err)
	}
	if err := checkJarPresence(p, artifacts); err != nil {
		return err
	}
	if err := checkChecksums(artifacts); err != nil {
		return err
	}
	if err := checkSignatures(artifacts); err != nil {
		return err
	}
	return nil
}

// 1. GAV regex (spec §3, §4.3.1).
func checkGAV(coord gav.Coordinate) error {
	if !coord.Valid() {
		return deployerrors.New(deployerrors.KindRegexValidationFailed,
			"coordinate %s:%s:%s fails GAV character rules", coord.Group, coord.Artifact, coord.Version)
	}
	return nil
}

// 2. POM consistency (spec §4.3.2).
func checkPOMConsistency(p *pom.Project, coord gav.Coordinate) error {
	if p.Group() != coord.Group || p.ArtifactID != coord.Artifact || p.EffectiveVersion() != coord.Version {
		return deployerrors.New(deployerrors.KindPOMEntryMismatch,
			"POM declares %s:%s:%s but upload path is %s:%s:%s",
			p.Group(), p.ArtifactID, p.EffectiveVersion(), coord.Group, coord.Artifact, coord.Version)
	}
	return nil
}

// 3. Non-snapshot re-deploy (spec §4.3.3).
func (v *Validator) checkNonSnapshotRedeploy(coord gav.Coordinate) error {
	if coord.IsSnapshot() {
		return nil
	}
	exists, err := v.Releases.Exists(coord.Group, coord.Artifact, coord.Version)
	if err != nil {
		return deployerrors.Forbidden("check existing release for %s:%s:%s: %v", coord.Group, coord.Artifact, coord.Version, err)
	}
	if exists {
		return deployerrors.New(deployerrors.KindNonSnapshotRedeploy,
			"release %s:%s:%s already exists", coord.Group, coord.Artifact, coord.Version)
	}
	return nil
}

// 4. Central-shadow (spec §4.3.4).
func (v *Validator) checkCentralShadow(ctx context.Context, coord gav.Coordinate) error {
	shadowed, err := v.Shadow.Shadowed(ctx, coord.Group, coord.Artifact)
	if err != nil {
		de := deployerrors.New(deployerrors.KindCentralShadowCheckFailed,
			"could not reach Maven Central to check %s:%s: %v", coord.Group, coord.Artifact, err)
		de.Status = 503
		return de
	}
	if shadowed {
		return deployerrors.New(deployerrors.KindCentralShadow,
			"%s:%s already exists on Maven Central", coord.Group, coord.Artifact)
	}
	return nil
}

// 5. Jar presence (spec §4.3.5).
func checkJarPresence(p *pom.Project, artifacts []string) error {
	if p.EffectivePackaging() != "jar" {
		return nil
	}
	for _, a := range artifacts {
		if strings.HasSuffix(a, ".jar") {
			return nil
		}
	}
	return deployerrors.New(deployerrors.KindMissingJarFile,
		"packaging is jar but no *.jar was staged")
}

// isSidecar reports whether name is a checksum sidecar (.sha1 or .md5),
// excluded from the "staged artifact" set proper. The staging metadata
// record is excluded separately by its callers.
func isSidecar(name string) bool {
	return strings.HasSuffix(name, ".sha1") || strings.HasSuffix(name, ".md5")
}

// 6. Checksums (spec §4.3.6).
func checkChecksums(artifacts []string) error {
	for _, a := range artifacts {
		if isSidecar(a) || filepath.Base(a) == "_metadata.edn" {
			continue
		}

		md5OK, err := fileutil.ValidChecksumFile(a, fileutil.MD5)
		if err != nil {
			return deployerrors.Forbidden("check md5 sidecar for %s: %v", a, err)
		}
		sha1OK, err := fileutil.ValidChecksumFile(a, fileutil.SHA1)
		if err != nil {
			return deployerrors.Forbidden("check sha1 sidecar for %s: %v", a, err)
		}

		md5Present := fileExists(fileutil.ChecksumFile(a, fileutil.MD5))
		sha1Present := fileExists(fileutil.ChecksumFile(a, fileutil.SHA1))

		if !md5Present && !sha1Present {
			return deployerrors.New(deployerrors.KindFileMissingChecksum,
				"%s has no md5 or sha1 checksum sidecar", filepath.Base(a))
		}
		if (md5Present && !md5OK) || (sha1Present && !sha1OK) {
			return deployerrors.New(deployerrors.KindFileInvalidChecksum,
				"checksum sidecar for %s does not match its content", filepath.Base(a))
		}
	}
	return nil
}

// 7. Signatures (spec §4.3.7).
func checkSignatures(artifacts []string) error {
	hasASC := false
	for _, a := range artifacts {
		if strings.HasSuffix(a, ".asc") && filepath.Base(a) != "maven-metadata.xml.asc" {
			hasASC = true
			break
		}
	}
	if !hasASC {
		return nil
	}

	for _, a := range artifacts {
		if strings.HasSuffix(a, ".asc") || isSidecar(a) || filepath.Base(a) == "_metadata.edn" {
			continue
		}
		if filepath.Base(a) == "maven-metadata.xml" {
			continue
		}
		if !fileExists(a + ".asc") {
			return deployerrors.New(deployerrors.KindFileMissingSignature,
				"%s has no matching .asc signature", filepath.Base(a))
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// listArtifacts walks dir and returns every regular file's absolute
// path, excluding the staging sidecar and finalization sentinel.
func listArtifacts(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base == "_metadata.edn" || base == ".finalized" {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return out, nil
}
