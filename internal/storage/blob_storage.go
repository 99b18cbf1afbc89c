// Package storage provides the durable blob store the finalizer
// publishes staged artifacts to (spec §6 "Blob store": write-artifact
// (key, content)). Adapted from the teacher's
// internal/storage/blob_storage.go, which keys blobs by
// tenant/repository/artifact triples and shards each with
// erasure_coding.go's ErasureCoder; here a blob is keyed directly by
// the forward-slash path spec §6 specifies (e.g.
// "com/example/lib/1.0/lib-1.0.jar"), dropping the
// tenant/repository/replication plumbing that has no role in deploy
// ingestion (replication is an explicit Non-goal, spec §1).
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BlobStorage is a local, erasure-coded durable store. Each write is
// synchronous and must complete before the finalizer proceeds to the
// next file (spec §4.6 step 7: "each blob store write must be durable
// before the next step").
type BlobStorage struct {
	basePath     string
	erasureCoder *ErasureCoder
	mu           sync.Mutex
}

// Config configures a BlobStorage.
type Config struct {
	BasePath     string
	DataShards   int
	ParityShards int
}

// BlobMetadata records how a blob's shards were laid out, needed to
// reconstruct it later.
type BlobMetadata struct {
	Key            string         `json:"key"`
	OriginalSize   int            `json:"original_size"`
	DataShards     int            `json:"data_shards"`
	ParityShards   int            `json:"parity_shards"`
	Checksum       string         `json:"checksum"`
	UploadedAt     time.Time      `json:"uploaded_at"`
	ShardChecksums map[int]string `json:"shard_checksums"`
}

// New creates a BlobStorage rooted at cfg.BasePath.
func New(cfg Config) (*BlobStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	coder, err := NewErasureCoder(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("create erasure coder: %w", err)
	}

	return &BlobStorage{basePath: cfg.BasePath, erasureCoder: coder}, nil
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// blobDir is where a key's shards and metadata live, keeping the
// on-disk layout keyed identically to the artifact's published path.
func (bs *BlobStorage) blobDir(key string) string {
	return filepath.Join(bs.basePath, "blobs", filepath.FromSlash(key))
}

// WriteArtifact durably publishes content at key (spec §6). The write
// is synchronous: by the time this returns, every shard and the
// metadata file have been fsync'd to disk, so the finalizer's "durable
// before the next step" ordering holds.
func (bs *BlobStorage) WriteArtifact(key string, content []byte) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	writeSynced := func(path string, data []byte) error {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	shards, err := bs.erasureCoder.Encode(content)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	dir := bs.blobDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create blob directory for %s: %w", key, err)
	}

	shardChecksums := make(map[int]string, len(shards))
	for i, shard := range shards {
		shardChecksums[i] = sha256Hex(shard)
		path := filepath.Join(dir, fmt.Sprintf("shard-%d.bin", i))
		if err := writeSynced(path, shard); err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("write shard %d for %s: %w", i, key, err)
		}
	}

	meta := BlobMetadata{
		Key:            key,
		OriginalSize:   len(content),
		DataShards:     bs.erasureCoder.dataShards,
		ParityShards:   bs.erasureCoder.parityShards,
		Checksum:       sha256Hex(content),
		UploadedAt:     time.Now(),
		ShardChecksums: shardChecksums,
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("marshal metadata for %s: %w", key, err)
	}
	if err := writeSynced(filepath.Join(dir, "metadata.json"), metaJSON); err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("write metadata for %s: %w", key, err)
	}
	return nil
}

// ReadArtifact reconstructs the blob stored at key, for tests and
// integrity checks; the deploy path itself never reads artifacts back
// (serving downloads is a Non-goal, spec §1).
func (bs *BlobStorage) ReadArtifact(key string) ([]byte, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	dir := bs.blobDir(key)
	metaBytes, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("read metadata for %s: %w", key, err)
	}
	var meta BlobMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata for %s: %w", key, err)
	}

	total := meta.DataShards + meta.ParityShards
	shards := make([][]byte, total)
	for i := 0; i < total; i++ {
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("shard-%d.bin", i)))
		if err != nil {
			continue // erasure coding tolerates missing shards
		}
		if want, ok := meta.ShardChecksums[i]; ok && sha256Hex(data) != want {
			continue // treat a corrupt shard as missing
		}
		shards[i] = data
	}

	return bs.erasureCoder.Decode(shards, meta.OriginalSize)
}

// Exists reports whether key has already been published.
func (bs *BlobStorage) Exists(key string) bool {
	_, err := os.Stat(filepath.Join(bs.blobDir(key), "metadata.json"))
	return err == nil
}
