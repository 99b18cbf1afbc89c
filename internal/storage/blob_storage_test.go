package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func newTestBlobStorage(t *testing.T) *BlobStorage {
	t.Helper()
	bs, err := New(Config{BasePath: t.TempDir(), DataShards: 4, ParityShards: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return bs
}

func TestBlobStorage_WriteThenRead(t *testing.T) {
	bs := newTestBlobStorage(t)
	key := "com/example/lib/1.0/lib-1.0.jar"
	content := []byte("jar contents go here, padded out a bit for multiple shards")

	if err := bs.WriteArtifact(key, content); err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}

	if !bs.Exists(key) {
		t.Fatalf("Exists(%s) = false, want true", key)
	}

	got, err := bs.ReadArtifact(key)
	if err != nil {
		t.Fatalf("ReadArtifact: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("ReadArtifact = %q, want %q", got, content)
	}
}

func TestBlobStorage_ExistsFalseForUnknownKey(t *testing.T) {
	bs := newTestBlobStorage(t)
	if bs.Exists("com/example/missing/1.0/missing-1.0.jar") {
		t.Error("Exists reported true for a key never written")
	}
}

func TestBlobStorage_KeysNestDirectories(t *testing.T) {
	bs := newTestBlobStorage(t)
	key := "com/example/lib/1.0-SNAPSHOT/lib-1.0-20260731.120000-1.jar"
	if err := bs.WriteArtifact(key, []byte("snapshot jar")); err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}

	want := filepath.Join(bs.basePath, "blobs", filepath.FromSlash(key), "metadata.json")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected metadata at %s: %v", want, err)
	}
}
