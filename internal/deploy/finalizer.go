// Package deploy implements the upload session, upload handler,
// finalizer, and HTTP routing surface of spec §4.4–§4.7 — the
// orchestration layer tying the file-utility, staging, validation,
// auth, database, blob-store and search packages together into one
// deploy transaction. Grounded throughout on the teacher's
// internal/handlers/maven_proxy_handler.go handler-struct-plus-mux
// style.
package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clojars/deploy-ingest/internal/audit"
	"github.com/clojars/deploy-ingest/internal/auth"
	"github.com/clojars/deploy-ingest/internal/database"
	"github.com/clojars/deploy-ingest/internal/deployerrors"
	"github.com/clojars/deploy-ingest/internal/fileutil"
	"github.com/clojars/deploy-ingest/internal/gav"
	"github.com/clojars/deploy-ingest/internal/metadata"
	"github.com/clojars/deploy-ingest/internal/pom"
	"github.com/clojars/deploy-ingest/internal/search"
	"github.com/clojars/deploy-ingest/internal/signature"
	"github.com/clojars/deploy-ingest/internal/staging"
	"github.com/clojars/deploy-ingest/internal/storage"
	"github.com/clojars/deploy-ingest/internal/validation"
)

// JarStore is the subset of *database.DB the finalizer needs: claiming
// a deploying account's group membership on first use, and recording
// a published jar (spec §4.6 steps 6 and 8). Narrowed to an interface
// so Finalize can be exercised against a fake in tests without a real
// Postgres connection.
type JarStore interface {
	CheckAndAdd(user, group string) error
	AddJar(jar database.Jar) error
}

// SearchEnqueuer is the subset of *search.Indexer the finalizer needs:
// durably queuing an indexing job (spec §4.6 step 9). Narrowed to an
// interface for the same reason as JarStore.
type SearchEnqueuer interface {
	Enqueue(ctx context.Context, group, name, version string, at time.Time) error
}

// Finalizer commits a staging directory to durable storage, the
// metadata DB, and the search index (spec §4.6).
type Finalizer struct {
	Staging   *staging.Store
	Validator *validation.Validator
	DB        JarStore
	Blob      *storage.BlobStorage
	Search    SearchEnqueuer
	Audit     *audit.Logger
	Log       *logrus.Logger

	// dirLocks serializes finalization per staging directory,
	// resolving spec §9's second open question: "a stricter
	// implementation should serialize finalization per staging
	// directory with a lock."
	dirLocks sync.Map // map[string]*sync.Mutex
}

func (f *Finalizer) lockFor(dir string) *sync.Mutex {
	v, _ := f.dirLocks.LoadOrStore(dir, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Finalize runs the ten-step commit sequence of spec §4.6 against dir,
// on behalf of account.
func (f *Finalizer) Finalize(ctx context.Context, dir string, account auth.Account) error {
	lock := f.lockFor(dir)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a sibling PUT may have finalized this
	// directory while we were waiting.
	if f.Staging.IsFinalized(dir) {
		return nil
	}

	// Step 1-2: locate and parse the POM.
	pomPath, err := findPOM(dir)
	if err != nil {
		return deployerrors.New(deployerrors.KindMissingPOMFile, "no *.pom found in staging directory")
	}
	pomData, err := os.ReadFile(pomPath)
	if err != nil {
		return deployerrors.Forbidden("read staged POM: %v", err)
	}
	project, err := pom.Parse(pomData)
	if err != nil {
		return deployerrors.New(deployerrors.KindInvalidPOMFile, "%v", err)
	}

	sidecar, err := f.Staging.ReadMetadata(dir)
	if err != nil {
		return deployerrors.Forbidden("read staging sidecar: %v", err)
	}
	groupPath := derefOr(sidecar.GroupPath, project.Group())
	name := derefOr(sidecar.Name, project.ArtifactID)

	// Step 3: parse the staged maven-metadata.xml.
	metaPath := filepath.Join(dir, groupPath, name, "maven-metadata.xml")
	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		return deployerrors.New(deployerrors.KindInvalidMavenMetadataFile, "maven-metadata.xml missing: %v", err)
	}
	if _, err := metadata.Parse(metaData); err != nil {
		return deployerrors.New(deployerrors.KindInvalidMavenMetadataFile, "%v", err)
	}

	// Step 4: regenerate metadata checksum sidecars; the client's own
	// sums for this file are never trusted (spec §4.6 "Metadata-file
	// checksum sidecars sent by the client are ignored").
	if err := regenerateChecksums(metaPath); err != nil {
		return deployerrors.Forbidden("regenerate maven-metadata.xml checksums: %v", err)
	}

	// coord is derived from the upload path (the staging sidecar),
	// falling back to the POM's own declared coordinate only when the
	// sidecar lacks a value. This is the coordinate under which the
	// deploy is registered and published; checkPOMConsistency below
	// cross-checks the POM's self-declared identity against it (spec
	// §4.3.2) rather than against itself.
	coord := gav.Coordinate{
		Group:    derefOr(sidecar.Group, project.Group()),
		Artifact: derefOr(sidecar.Name, project.ArtifactID),
		Version:  derefOr(sidecar.Version, project.EffectiveVersion()),
	}

	// Step 5: full validation.
	if err := f.Validator.ValidateDeploy(ctx, dir, project, coord); err != nil {
		return err
	}

	// Step 6: claim the group on first use.
	if err := f.DB.CheckAndAdd(account.Username, coord.Group); err != nil {
		return deployerrors.Forbidden("claim group %s: %v", coord.Group, err)
	}
	f.Audit.GroupClaimed(account.Username, coord.Group)

	// Step 7: publish every staged file to the blob store. Each write
	// must be durable before the next (spec §4.6 step 7).
	files, err := stagedFiles(dir)
	if err != nil {
		return deployerrors.Forbidden("enumerate staged files: %v", err)
	}
	for _, file := range files {
		key := fileutil.Subpath(dir, file)
		content, err := os.ReadFile(file)
		if err != nil {
			return deployerrors.Forbidden("read staged file %s: %v", key, err)
		}
		if strings.HasSuffix(file, ".asc") {
			f.inspectSignature(key, content)
		}
		if err := f.Blob.WriteArtifact(key, content); err != nil {
			return deployerrors.Forbidden("publish %s to blob store: %v", key, err)
		}
	}

	// Step 8: record the jar in the DB.
	jarSHA1, err := fileutil.Checksum(pomPath, fileutil.SHA1)
	if err != nil {
		return deployerrors.Forbidden("checksum POM for jar record: %v", err)
	}
	if err := f.DB.AddJar(database.Jar{
		Group:        coord.Group,
		Name:         coord.Artifact,
		Version:      coord.Version,
		DeployedBy:   account.Username,
		DeployedAt:   time.Now(),
		SHA1Checksum: jarSHA1,
		IsSnapshot:   coord.IsSnapshot(),
	}); err != nil {
		return deployerrors.Forbidden("record jar %s:%s:%s: %v", coord.Group, coord.Artifact, coord.Version, err)
	}

	// Step 9: fire-and-forget search indexing — durably queued, but
	// its failure must not fail the request (spec §4.6 step 9, §9).
	// The POM's own mtime is carried as the job's lastModified value.
	pomInfo, err := os.Stat(pomPath)
	if err != nil {
		return deployerrors.Forbidden("stat staged POM for index job: %v", err)
	}
	if err := f.Search.Enqueue(ctx, coord.Group, coord.Artifact, coord.Version, pomInfo.ModTime()); err != nil {
		f.Log.WithError(err).Warn("failed to enqueue search index job; deploy still succeeds")
	}

	// Step 10: mark finalized.
	if err := f.Staging.MarkFinalized(dir); err != nil {
		return deployerrors.Forbidden("mark staging directory finalized: %v", err)
	}
	return nil
}

// inspectSignature logs whether a staged .asc sidecar parses as a
// well-formed PGP signature packet, alongside its sha256 digest for
// the audit trail. Completeness (checkSignatures in validator.go) is
// the hard gate; this is diagnostic only and never fails the deploy
// (spec §9's "best-effort, non-blocking enrichment").
func (f *Finalizer) inspectSignature(key string, content []byte) {
	wellFormed, reason := signature.InspectASCIIArmor(content)
	fields := logrus.Fields{"file": key, "well_formed": wellFormed}
	if digest, err := signature.Digest(bytes.NewReader(content)); err == nil {
		fields["digest"] = digest
	}
	if !wellFormed {
		fields["reason"] = reason
		f.Log.WithFields(fields).Warn("staged signature sidecar did not parse as a PGP signature packet")
		return
	}
	f.Log.WithFields(fields).Debug("staged signature sidecar inspected")
}

func derefOr(p *string, fallback string) string {
	if p != nil && *p != "" {
		return *p
	}
	return fallback
}

func findPOM(dir string) (string, error) {
	var found string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".pom") && found == "" {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("no .pom file staged")
	}
	return found, nil
}

func stagedFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if base == staging.SidecarName || base == staging.FinalizedSentinel {
			return nil
		}
		out = append(out, path)
		return nil
	})
	return out, err
}

func regenerateChecksums(path string) error {
	for _, algo := range []fileutil.Algorithm{fileutil.MD5, fileutil.SHA1} {
		sum, err := fileutil.Checksum(path, algo)
		if err != nil {
			return err
		}
		if err := os.WriteFile(fileutil.ChecksumFile(path, algo), []byte(sum), 0o644); err != nil {
			return err
		}
	}
	return nil
}
