package deploy

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clojars/deploy-ingest/internal/audit"
	"github.com/clojars/deploy-ingest/internal/auth"
	"github.com/clojars/deploy-ingest/internal/database"
	"github.com/clojars/deploy-ingest/internal/fileutil"
	"github.com/clojars/deploy-ingest/internal/staging"
	"github.com/clojars/deploy-ingest/internal/storage"
	"github.com/clojars/deploy-ingest/internal/validation"
)

type fakeJarStore struct {
	mu      sync.Mutex
	claimed []string
	jars    []database.Jar
}

func (f *fakeJarStore) CheckAndAdd(user, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, user+"@"+group)
	return nil
}

func (f *fakeJarStore) AddJar(jar database.Jar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jars = append(f.jars, jar)
	return nil
}

type fakeSearchEnqueuer struct {
	mu   sync.Mutex
	jobs []string
}

func (f *fakeSearchEnqueuer) Enqueue(ctx context.Context, group, name, version string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, group+":"+name+":"+version)
	return nil
}

type fakeReleaseChecker struct{}

func (fakeReleaseChecker) Exists(group, artifact, version string) (bool, error) { return false, nil }

type fakeShadowChecker struct{}

func (fakeShadowChecker) Shadowed(ctx context.Context, group, artifact string) (bool, error) {
	return false, nil
}

func newTestFinalizer(t *testing.T) (*Finalizer, *staging.Store, *fakeJarStore, *fakeSearchEnqueuer) {
	t.Helper()
	store, err := staging.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("staging.NewStore: %v", err)
	}
	blob, err := storage.New(storage.Config{BasePath: t.TempDir(), DataShards: 2, ParityShards: 1})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	jarStore := &fakeJarStore{}
	indexer := &fakeSearchEnqueuer{}
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &Finalizer{
		Staging:   store,
		Validator: validation.New(fakeReleaseChecker{}, fakeShadowChecker{}),
		DB:        jarStore,
		Blob:      blob,
		Search:    indexer,
		Audit:     audit.New(log),
		Log:       log,
	}
	return f, store, jarStore, indexer
}

// stageValidDeploy lays out a complete, validator-clean staging
// directory for com.example:lib:1.0 under store: a jar and pom with
// checksum sidecars, and a maven-metadata.xml (whose own sidecars are
// left for Finalize's own regeneration step to produce).
func stageValidDeploy(t *testing.T, store *staging.Store) string {
	t.Helper()
	dir, err := store.FindUploadDir(nil, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("FindUploadDir: %v", err)
	}

	group, groupPath, name, version := "com.example", "com/example", "lib", "1.0"
	if err := store.WriteMetadata(dir, staging.Metadata{
		Group:     &group,
		GroupPath: &groupPath,
		Name:      &name,
		Version:   &version,
	}); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	artifactDir := filepath.Join(dir, groupPath, name, version)
	writeFileWithChecksums(t, filepath.Join(artifactDir, "lib-1.0.pom"),
		[]byte(`<project><groupId>com.example</groupId><artifactId>lib</artifactId><version>1.0</version><packaging>jar</packaging></project>`))
	writeFileWithChecksums(t, filepath.Join(artifactDir, "lib-1.0.jar"), []byte("jar bytes"))

	metaDir := filepath.Join(dir, groupPath, name)
	writeFile(t, filepath.Join(metaDir, "maven-metadata.xml"),
		[]byte(`<metadata><groupId>com.example</groupId><artifactId>lib</artifactId></metadata>`))

	return dir
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

func writeFileWithChecksums(t *testing.T, path string, content []byte) {
	t.Helper()
	writeFile(t, path, content)
	sha1, err := fileutil.Checksum(path, fileutil.SHA1)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, fileutil.ChecksumFile(path, fileutil.SHA1), []byte(sha1))
}

func TestFinalize_HappyPath(t *testing.T) {
	f, store, jarStore, indexer := newTestFinalizer(t)
	dir := stageValidDeploy(t, store)

	if err := f.Finalize(context.Background(), dir, auth.Account{Username: "alice"}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if !store.IsFinalized(dir) {
		t.Error("expected staging directory to be marked finalized")
	}
	if len(jarStore.jars) != 1 {
		t.Fatalf("expected exactly one jar recorded, got %d", len(jarStore.jars))
	}
	jar := jarStore.jars[0]
	if jar.Group != "com.example" || jar.Name != "lib" || jar.Version != "1.0" || jar.DeployedBy != "alice" {
		t.Errorf("unexpected jar record: %+v", jar)
	}
	if len(indexer.jobs) != 1 || indexer.jobs[0] != "com.example:lib:1.0" {
		t.Fatalf("expected one search job for com.example:lib:1.0, got %v", indexer.jobs)
	}
	if len(jarStore.claimed) != 1 || jarStore.claimed[0] != "alice@com.example" {
		t.Errorf("expected alice to claim com.example, got %v", jarStore.claimed)
	}
	if !f.Blob.Exists("com/example/lib/1.0/lib-1.0.jar") {
		t.Error("expected the jar to be published to the blob store")
	}
	if !f.Blob.Exists("com/example/lib/1.0/lib-1.0.pom") {
		t.Error("expected the pom to be published to the blob store")
	}
}

func TestFinalize_AlreadyFinalizedIsNoOp(t *testing.T) {
	f, store, jarStore, indexer := newTestFinalizer(t)
	dir := stageValidDeploy(t, store)

	if err := f.Finalize(context.Background(), dir, auth.Account{Username: "alice"}); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if err := f.Finalize(context.Background(), dir, auth.Account{Username: "alice"}); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}

	if len(jarStore.jars) != 1 {
		t.Errorf("expected AddJar to run exactly once across both calls, got %d", len(jarStore.jars))
	}
	if len(indexer.jobs) != 1 {
		t.Errorf("expected a search job to be enqueued exactly once, got %d", len(indexer.jobs))
	}
}

func TestFinalize_ConcurrentPUTsCommitOnce(t *testing.T) {
	f, store, jarStore, _ := newTestFinalizer(t)
	dir := stageValidDeploy(t, store)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.Finalize(context.Background(), dir, auth.Account{Username: "alice"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: Finalize returned error: %v", i, err)
		}
	}
	if len(jarStore.jars) != 1 {
		t.Fatalf("expected exactly one commit despite %d concurrent PUTs, got %d", n, len(jarStore.jars))
	}
}
