package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/clojars/deploy-ingest/internal/auth"
	"github.com/clojars/deploy-ingest/internal/session"
	"github.com/clojars/deploy-ingest/internal/staging"
	"github.com/clojars/deploy-ingest/internal/storage"
)

type fakeGroups struct {
	active []string
	added  []string
}

func (f *fakeGroups) ActiveNames(group string) ([]string, error) {
	return f.active, nil
}

func (f *fakeGroups) CheckAndAdd(user, group string) error {
	f.added = append(f.added, user+"@"+group)
	return nil
}

func newTestSessionManager(t *testing.T) (*SessionManager, *fakeGroups) {
	t.Helper()
	store, err := staging.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	groups := &fakeGroups{}
	return &SessionManager{
		Staging: store,
		Codec:   session.NewCodec("test-secret", time.Hour),
		Groups:  groups,
	}, groups
}

func newTestBlob(t *testing.T) *storage.BlobStorage {
	t.Helper()
	bs, err := storage.New(storage.Config{BasePath: t.TempDir(), DataShards: 2, ParityShards: 1})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	return bs
}

func TestUploadRequest_PermitsUnclaimedGroup(t *testing.T) {
	sm, _ := newTestSessionManager(t)

	var seenDir string
	sess, dir, err := sm.UploadRequest(auth.Account{Username: "alice"}, session.Empty(), "com.example", "lib", "1.0", "",
		func(account auth.Account, dir string) error {
			seenDir = dir
			return nil
		})
	if err != nil {
		t.Fatalf("UploadRequest: %v", err)
	}
	if seenDir != dir {
		t.Fatal("continuation did not see the resolved staging directory")
	}
	if len(sess.UploadDirs) != 1 || sess.UploadDirs[0] != dir {
		t.Fatalf("session upload dirs = %v, want [%s]", sess.UploadDirs, dir)
	}
}

func TestUploadRequest_RejectsNonMember(t *testing.T) {
	sm, groups := newTestSessionManager(t)
	groups.active = []string{"bob"}

	_, _, err := sm.UploadRequest(auth.Account{Username: "alice"}, session.Empty(), "com.example", "lib", "1.0", "",
		func(account auth.Account, dir string) error { return nil })
	if err == nil {
		t.Fatal("expected rejection for a user who is not a member of a claimed group")
	}
}

func TestUploadRequest_ConvergesOnSameDirViaSession(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	group, name, version := "com.example", "lib", "1.0"
	writeSidecar := func(account auth.Account, dir string) error {
		return sm.Staging.WriteMetadata(dir, staging.Metadata{Group: &group, Name: &name, Version: &version})
	}

	sess, dir1, err := sm.UploadRequest(auth.Account{Username: "alice"}, session.Empty(), group, name, version, "", writeSidecar)
	if err != nil {
		t.Fatalf("first UploadRequest: %v", err)
	}

	_, dir2, err := sm.UploadRequest(auth.Account{Username: "alice"}, sess, group, name, version, "", writeSidecar)
	if err != nil {
		t.Fatalf("second UploadRequest: %v", err)
	}

	if dir1 != dir2 {
		t.Fatalf("expected both PUTs for the same coordinate to land in the same staging dir: %s != %s", dir1, dir2)
	}
}

func TestHandleVersionedUpload_RejectsOutOfScopeToken(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	h := &UploadHandler{Sessions: sm, Blob: newTestBlob(t)}

	scopedGroup := "com.other"
	account := auth.Account{
		Username:   "alice",
		Credential: auth.CredentialToken,
		Scope:      auth.TokenScope{Group: &scopedGroup},
	}

	_, err := h.HandleVersionedUpload(context.Background(), account, session.Empty(),
		"com/example", "lib", "1.0", "lib-1.0.jar", []byte("jar bytes"))
	if err == nil {
		t.Fatal("expected a token scoped to a different group to be rejected")
	}
}

func TestHandleVersionedUpload_SavesFileIntoStagingDir(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	h := &UploadHandler{Sessions: sm, Blob: newTestBlob(t)}

	account := auth.Account{Username: "alice"}
	sess, err := h.HandleVersionedUpload(context.Background(), account, session.Empty(),
		"com/example", "lib", "1.0", "lib-1.0.jar", []byte("jar bytes"))
	if err != nil {
		t.Fatalf("HandleVersionedUpload: %v", err)
	}
	if len(sess.UploadDirs) != 1 {
		t.Fatalf("expected one staging dir in the session, got %v", sess.UploadDirs)
	}
	staged := filepath.Join(sess.UploadDirs[0], "com", "example", "lib", "1.0", "lib-1.0.jar")
	if _, err := os.Stat(staged); err != nil {
		t.Fatalf("expected the jar to be saved at %s: %v", staged, err)
	}
}

func TestHandleVersionedUpload_TailFileAfterFinalizationGoesStraightToBlob(t *testing.T) {
	sm, _ := newTestSessionManager(t)
	blob := newTestBlob(t)
	h := &UploadHandler{Sessions: sm, Blob: blob}

	account := auth.Account{Username: "alice"}
	sess, err := h.HandleVersionedUpload(context.Background(), account, session.Empty(),
		"com/example", "lib", "1.0", "lib-1.0.jar", []byte("jar bytes"))
	if err != nil {
		t.Fatalf("HandleVersionedUpload: %v", err)
	}

	dir := sess.UploadDirs[0]
	if err := sm.Staging.MarkFinalized(dir); err != nil {
		t.Fatalf("MarkFinalized: %v", err)
	}

	if _, err := h.HandleVersionedUpload(context.Background(), account, sess,
		"com/example", "lib", "1.0", "lib-1.0.jar.sha1", []byte("deadbeef")); err != nil {
		t.Fatalf("HandleVersionedUpload tail file: %v", err)
	}

	key := "com/example/lib/1.0/lib-1.0.jar.sha1"
	if !blob.Exists(key) {
		t.Fatalf("expected tail file to be written straight to the blob store at %s", key)
	}
}
