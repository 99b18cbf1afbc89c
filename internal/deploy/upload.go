package deploy

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/clojars/deploy-ingest/internal/auth"
	"github.com/clojars/deploy-ingest/internal/deployerrors"
	"github.com/clojars/deploy-ingest/internal/fileutil"
	"github.com/clojars/deploy-ingest/internal/gav"
	"github.com/clojars/deploy-ingest/internal/session"
	"github.com/clojars/deploy-ingest/internal/staging"
	"github.com/clojars/deploy-ingest/internal/storage"
)

// SessionManager resolves and pins staging directories across PUTs
// (spec §4.4 "upload-request").
type SessionManager struct {
	Staging *staging.Store
	Codec   *session.Codec
	Groups  auth.GroupMembership
}

// continuation is invoked once the staging directory for a request is
// resolved, performing the PUT-specific work (spec §4.4 step c).
type continuation func(account auth.Account, dir string) error

// UploadRequest implements spec §4.4's upload-request: authorize the
// account against groupname, resolve the staging directory, invoke
// fn, and return the updated session with dir pinned to the front.
func (sm *SessionManager) UploadRequest(
	account auth.Account,
	sess session.Session,
	groupname, artifact, version, timestampVersion string,
	fn continuation,
) (session.Session, string, error) {
	activeNames, err := sm.Groups.ActiveNames(groupname)
	if err != nil {
		return sess, "", deployerrors.Forbidden("look up group %s: %v", groupname, err)
	}
	if !auth.CheckGroup(activeNames, account.Username, groupname) {
		return sess, "", deployerrors.New(deployerrors.KindDeployForbidden,
			"%s is not a member of group %s", account.Username, groupname)
	}

	group, art, ver, tsv := &groupname, &artifact, &version, (*string)(nil)
	if timestampVersion != "" {
		tsv = &timestampVersion
	}
	if version == "" {
		ver = nil
	}
	if artifact == "" {
		art = nil
	}
	dir, err := sm.Staging.FindUploadDir(sess.UploadDirs, group, art, ver, tsv)
	if err != nil {
		return sess, "", deployerrors.Forbidden("resolve staging directory: %v", err)
	}

	if err := fn(account, dir); err != nil {
		return sess, dir, err
	}

	return sess.WithMostRecent(dir), dir, nil
}

// UploadHandler performs the per-PUT orchestration of spec §4.4: write
// the uploaded file, authorize token scope, and detect the
// finalization trigger. It is the shared engine behind both routing
// patterns of spec §4.7.
type UploadHandler struct {
	Sessions  *SessionManager
	Finalizer *Finalizer
	Blob      *storage.BlobStorage
}

// HandleVersionedUpload implements spec §4.4's handle-versioned-upload
// for a PUT under /<group>/<artifact>/<version>/<filename>.
func (h *UploadHandler) HandleVersionedUpload(
	ctx context.Context,
	account auth.Account,
	sess session.Session,
	slashGroup, artifact, version, filename string,
	body []byte,
) (session.Session, error) {
	groupname := strings.ReplaceAll(slashGroup, "/", ".")

	if !account.Allows(groupname, artifact) {
		return sess, deployerrors.New(deployerrors.KindDeployForbidden,
			"token scope does not cover %s:%s", groupname, artifact)
	}

	timestampVersion := ""
	if strings.HasSuffix(version, "-SNAPSHOT") {
		if tsv, ok := gav.TimestampVersion(filename); ok {
			timestampVersion = tsv
		}
	}

	relPath := filepath.Join(slashGroup, artifact, version, filename)

	updated, _, err := h.Sessions.UploadRequest(account, sess, groupname, artifact, version, timestampVersion,
		func(account auth.Account, dir string) error {
			if h.Sessions.Staging.IsFinalized(dir) {
				// Spec §4.4 step (iv) / §9 "Re-finalization vs. tail
				// files": once finalized, late sidecars stream
				// straight to the blob store at their coordinate path.
				key := filepath.ToSlash(relPath)
				return h.Blob.WriteArtifact(key, body)
			}

			group, name := slashGroup, artifact
			if err := h.Sessions.Staging.WriteMetadata(dir, staging.Metadata{
				Group:            &groupname,
				GroupPath:        &group,
				Name:             &name,
				Version:          &version,
				TimestampVersion: nilIfEmpty(timestampVersion),
			}); err != nil {
				return deployerrors.Forbidden("write staging sidecar: %v", err)
			}

			if _, err := h.Sessions.Staging.SaveFile(dir, relPath, body); err != nil {
				return deployerrors.Forbidden("save %s: %v", relPath, err)
			}
			return nil
		})
	if err != nil {
		return sess, err
	}
	return updated, nil
}

// HandleNonVersionedMetadataUpload implements spec §4.7's non-snapshot
// maven-metadata.xml branch: a non-versioned upload whose successful
// write is checked for the finalization trigger.
func (h *UploadHandler) HandleNonVersionedMetadataUpload(
	ctx context.Context,
	account auth.Account,
	sess session.Session,
	slashGroup, artifact string,
	body []byte,
) (session.Session, error) {
	groupname := strings.ReplaceAll(slashGroup, "/", ".")

	if !account.Allows(groupname, artifact) {
		return sess, deployerrors.New(deployerrors.KindDeployForbidden,
			"token scope does not cover %s:%s", groupname, artifact)
	}

	relPath := filepath.Join(slashGroup, artifact, "maven-metadata.xml")
	newSHA1, err := fileutil.ChecksumBytes(body, fileutil.SHA1)
	if err != nil {
		return sess, deployerrors.Forbidden("checksum uploaded metadata: %v", err)
	}

	var triggerDir string
	updated, _, err := h.Sessions.UploadRequest(account, sess, groupname, artifact, "", "",
		func(account auth.Account, dir string) error {
			if _, err := h.Sessions.Staging.SaveFile(dir, relPath, body); err != nil {
				return deployerrors.Forbidden("save %s: %v", relPath, err)
			}

			prior, _ := h.Sessions.Staging.ReadMetadata(dir)
			changed := prior.MetadataSHA1 == nil || *prior.MetadataSHA1 != newSHA1

			group, name := slashGroup, artifact
			if err := h.Sessions.Staging.WriteMetadata(dir, staging.Metadata{
				Group:        &groupname,
				GroupPath:    &group,
				Name:         &name,
				MetadataSHA1: &newSHA1,
			}); err != nil {
				return deployerrors.Forbidden("write staging sidecar: %v", err)
			}

			if changed && !h.Sessions.Staging.IsFinalized(dir) {
				triggerDir = dir
			}
			return nil
		})
	if err != nil {
		return sess, err
	}

	if triggerDir != "" {
		if err := h.Finalizer.Finalize(ctx, triggerDir, account); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
