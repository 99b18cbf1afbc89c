package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/clojars/deploy-ingest/internal/fileutil"
	"github.com/clojars/deploy-ingest/internal/gav"
	"github.com/clojars/deploy-ingest/internal/pom"
)

type fakeReleases struct {
	exists bool
	err    error
}

func (f fakeReleases) Exists(group, artifact, version string) (bool, error) {
	return f.exists, f.err
}

type fakeShadow struct {
	shadowed bool
	err      error
}

func (f fakeShadow) Shadowed(ctx context.Context, group, artifact string) (bool, error) {
	return f.shadowed, f.err
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
}

func stageJarWithChecksums(t *testing.T, dir string) string {
	t.Helper()
	jarPath := filepath.Join(dir, "lib-1.0.jar")
	content := []byte("jar bytes")
	writeFile(t, jarPath, content)
	sha1, _ := fileutil.Checksum(jarPath, fileutil.SHA1)
	writeFile(t, jarPath+".sha1", []byte(sha1))
	return jarPath
}

func basicCoord() gav.Coordinate {
	return gav.Coordinate{Group: "com.example", Artifact: "lib", Version: "1.0"}
}

func basicPOM() *pom.Project {
	return &pom.Project{GroupID: "com.example", ArtifactID: "lib", Version: "1.0", Packaging: "jar"}
}

func TestValidateDeploy_HappyPath(t *testing.T) {
	dir := t.TempDir()
	stageJarWithChecksums(t, dir)

	v := New(fakeReleases{exists: false}, fakeShadow{shadowed: false})
	if err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord()); err != nil {
		t.Fatalf("ValidateDeploy: %v", err)
	}
}

func TestValidateDeploy_BadGAV(t *testing.T) {
	dir := t.TempDir()
	coord := gav.Coordinate{Group: "Com.Example", Artifact: "lib", Version: "1.0"}
	v := New(fakeReleases{}, fakeShadow{})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), coord)
	if err == nil {
		t.Fatal("expected GAV validation error")
	}
}

func TestValidateDeploy_POMMismatch(t *testing.T) {
	dir := t.TempDir()
	stageJarWithChecksums(t, dir)
	p := basicPOM()
	p.ArtifactID = "other"

	v := New(fakeReleases{exists: false}, fakeShadow{shadowed: false})
	err := v.ValidateDeploy(context.Background(), dir, p, basicCoord())
	if err == nil {
		t.Fatal("expected POM mismatch error")
	}
}

func TestValidateDeploy_NonSnapshotRedeploy(t *testing.T) {
	dir := t.TempDir()
	stageJarWithChecksums(t, dir)

	v := New(fakeReleases{exists: true}, fakeShadow{shadowed: false})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord())
	if err == nil {
		t.Fatal("expected non-snapshot-redeploy error")
	}
}

func TestValidateDeploy_SnapshotRedeployAllowed(t *testing.T) {
	dir := t.TempDir()
	stageJarWithChecksums(t, dir)

	coord := gav.Coordinate{Group: "com.example", Artifact: "lib", Version: "1.0-SNAPSHOT"}
	p := basicPOM()
	p.Version = "1.0-SNAPSHOT"

	v := New(fakeReleases{exists: true}, fakeShadow{shadowed: false})
	if err := v.ValidateDeploy(context.Background(), dir, p, coord); err != nil {
		t.Fatalf("snapshot redeploy should bypass release check: %v", err)
	}
}

func TestValidateDeploy_CentralShadow(t *testing.T) {
	dir := t.TempDir()
	stageJarWithChecksums(t, dir)

	v := New(fakeReleases{exists: false}, fakeShadow{shadowed: true})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord())
	if err == nil {
		t.Fatal("expected central-shadow error")
	}
}

func TestValidateDeploy_MissingJar(t *testing.T) {
	dir := t.TempDir()
	// Stage only the POM, no jar, while packaging=jar.
	pomPath := filepath.Join(dir, "lib-1.0.pom")
	writeFile(t, pomPath, []byte("<project/>"))
	sha1, _ := fileutil.Checksum(pomPath, fileutil.SHA1)
	writeFile(t, pomPath+".sha1", []byte(sha1))

	v := New(fakeReleases{exists: false}, fakeShadow{shadowed: false})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord())
	if err == nil {
		t.Fatal("expected missing-jar-file error")
	}
}

func TestValidateDeploy_MissingChecksum(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "lib-1.0.jar"), []byte("jar bytes"))

	v := New(fakeReleases{exists: false}, fakeShadow{shadowed: false})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord())
	if err == nil {
		t.Fatal("expected file-missing-checksum error")
	}
}

func TestValidateDeploy_InvalidChecksum(t *testing.T) {
	dir := t.TempDir()
	jarPath := filepath.Join(dir, "lib-1.0.jar")
	writeFile(t, jarPath, []byte("jar bytes"))
	writeFile(t, jarPath+".sha1", []byte("0000000000000000000000000000000000000000"))

	v := New(fakeReleases{exists: false}, fakeShadow{shadowed: false})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord())
	if err == nil {
		t.Fatal("expected file-invalid-checksum error")
	}
}

func TestValidateDeploy_PartialSignature(t *testing.T) {
	dir := t.TempDir()
	jarPath := stageJarWithChecksums(t, dir)
	writeFile(t, jarPath+".asc", []byte("-----BEGIN PGP SIGNATURE-----"))
	ascSHA1, _ := fileutil.Checksum(jarPath+".asc", fileutil.SHA1)
	writeFile(t, jarPath+".asc.sha1", []byte(ascSHA1))

	pomPath := filepath.Join(dir, "lib-1.0.pom")
	writeFile(t, pomPath, []byte("<project/>"))
	sha1, _ := fileutil.Checksum(pomPath, fileutil.SHA1)
	writeFile(t, pomPath+".sha1", []byte(sha1))

	v := New(fakeReleases{exists: false}, fakeShadow{shadowed: false})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord())
	if err == nil {
		t.Fatal("expected file-missing-signature error for pom without .asc")
	}
}

func TestValidateDeploy_CentralShadowCheckFailure(t *testing.T) {
	dir := t.TempDir()
	stageJarWithChecksums(t, dir)

	v := New(fakeReleases{exists: false}, fakeShadow{err: context.DeadlineExceeded})
	err := v.ValidateDeploy(context.Background(), dir, basicPOM(), basicCoord())
	if err == nil {
		t.Fatal("expected central-shadow-check-failure error")
	}
}
