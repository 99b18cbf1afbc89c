// Package staging implements the per-session staging directory store
// of spec §4.2: per-deploy temporary directories on local disk, each
// carrying a sidecar metadata record that lets stateless PUTs converge
// onto the same directory.
//
// Grounded on the teacher's internal/storage/blob_storage.go directory
// layout conventions (a base path with per-artifact subdirectories,
// guarded by a mutex) and internal/storage/erasure_coding.go's key
// naming, adapted here to the Maven staging-directory shape instead of
// sharded blob storage.
package staging

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// SidecarName is the metadata sidecar filename within a staging
// directory (spec §6 "Staging sidecar file").
const SidecarName = "_metadata.edn"

// FinalizedSentinel is the zero-byte file whose presence marks a
// staging directory as finalized (spec §6 "Finalization sentinel").
const FinalizedSentinel = ".finalized"

// Metadata is the staging directory's sidecar record (spec §3). Fields
// are pointers so a nil value can distinguish "not yet known" from
// "known to be empty" for the merge rule in Store.WriteMetadata.
type Metadata struct {
	Group            *string `json:"group,omitempty"`
	GroupPath        *string `json:"group_path,omitempty"`
	Name             *string `json:"name,omitempty"`
	Version          *string `json:"version,omitempty"`
	TimestampVersion *string `json:"timestamp_version,omitempty"`

	// MetadataSHA1 records the sha1 of the last maven-metadata.xml
	// written to this directory, used by the upload handler to detect
	// the finalization trigger of spec §4.6: "the resulting file's
	// sha1 differs from the previously stored one (or there was no
	// previous)".
	MetadataSHA1 *string `json:"metadata_sha1,omitempty"`
}

// matches implements the §4.2 matching rule: a query field of nil
// wildcards; a sidecar field of nil wildcards.
func (m Metadata) matches(group, name, version, timestampVersion *string) bool {
	fieldMatches := func(query, sidecar *string) bool {
		if query == nil || sidecar == nil {
			return true
		}
		return *query == *sidecar
	}
	return fieldMatches(group, m.Group) &&
		fieldMatches(name, m.Name) &&
		fieldMatches(version, m.Version) &&
		fieldMatches(timestampVersion, m.TimestampVersion)
}

// merge applies the §4.2 write-metadata merge rule: the existing value
// wins only when the new value is nil.
func (m Metadata) merge(patch Metadata) Metadata {
	pick := func(existing, incoming *string) *string {
		if incoming != nil {
			return incoming
		}
		return existing
	}
	return Metadata{
		Group:            pick(m.Group, patch.Group),
		GroupPath:        pick(m.GroupPath, patch.GroupPath),
		Name:             pick(m.Name, patch.Name),
		Version:          pick(m.Version, patch.Version),
		TimestampVersion: pick(m.TimestampVersion, patch.TimestampVersion),
		MetadataSHA1:     pick(m.MetadataSHA1, patch.MetadataSHA1),
	}
}

// Store manages staging directories rooted under Root.
type Store struct {
	Root string
	mu   sync.Mutex
}

// NewStore creates a Store rooted at root, creating the directory if
// needed. root is made absolute, so every staging directory the store
// hands out (and the session carries) is an absolute path.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("staging root is required")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{Root: root}, nil
}

// FindUploadDir implements spec §4.2's find-upload-dir: scan
// sessionDirs in order for the first whose sidecar matches on every
// supplied non-nil field; create a fresh "upload-<uuid>" directory
// under Root on no match.
func (s *Store) FindUploadDir(sessionDirs []string, group, name, version, timestampVersion *string) (string, error) {
	for _, dir := range sessionDirs {
		meta, err := s.readMetadata(dir)
		if err != nil {
			continue // missing/corrupt sidecar: not a candidate
		}
		if meta.matches(group, name, version, timestampVersion) {
			return dir, nil
		}
	}
	return s.createDir()
}

func (s *Store) createDir() (string, error) {
	dir := filepath.Join(s.Root, "upload-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// WriteMetadata merges fields onto dir's existing sidecar (existing
// value wins only when the incoming field is nil) and rewrites it.
func (s *Store) WriteMetadata(dir string, patch Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readMetadata(dir)
	if err != nil {
		existing = Metadata{}
	}
	merged := existing.merge(patch)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, SidecarName), data, 0o644)
}

// ReadMetadata returns dir's sidecar record.
func (s *Store) ReadMetadata(dir string) (Metadata, error) {
	return s.readMetadata(dir)
}

func (s *Store) readMetadata(dir string) (Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(dir, SidecarName))
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// IsFinalized reports whether dir carries the finalization sentinel.
func (s *Store) IsFinalized(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FinalizedSentinel))
	return err == nil
}

// MarkFinalized writes the zero-byte finalization sentinel.
func (s *Store) MarkFinalized(dir string) error {
	return os.WriteFile(filepath.Join(dir, FinalizedSentinel), nil, 0o644)
}

// SaveFile writes content to path relative to dir, creating parent
// directories as needed. Writes are atomic at the file level: on any
// error the partially-written destination is removed before the error
// propagates (spec §4.4 "Writes are atomic at the file level").
func (s *Store) SaveFile(dir, relPath string, content []byte) (string, error) {
	dest := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}
