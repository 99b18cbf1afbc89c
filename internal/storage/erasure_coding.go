package storage

import (
	"bytes"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// ErasureCoder splits a published artifact's bytes into dataShards
// data shards plus parityShards parity shards, so up to parityShards
// of them can be lost without losing the artifact. Grounded on the
// teacher's internal/storage/erasure_coding.go, unchanged at this
// layer: the coding scheme itself has no tenant/repository concept to
// drop, only the key BlobStorage hands it does (a flat artifact path
// rather than a tenant/repository/artifact triple).
type ErasureCoder struct {
	dataShards   int
	parityShards int
	encoder      reedsolomon.Encoder
}

// NewErasureCoder builds a coder for the given shard counts.
func NewErasureCoder(dataShards, parityShards int) (*ErasureCoder, error) {
	encoder, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, fmt.Errorf("create erasure encoder: %w", err)
	}
	return &ErasureCoder{
		dataShards:   dataShards,
		parityShards: parityShards,
		encoder:      encoder,
	}, nil
}

// Encode splits an artifact's content into dataShards+parityShards
// shards.
func (ec *ErasureCoder) Encode(content []byte) ([][]byte, error) {
	shardSize := (len(content) + ec.dataShards - 1) / ec.dataShards
	shards := make([][]byte, ec.dataShards+ec.parityShards)

	for i := 0; i < ec.dataShards; i++ {
		start := i * shardSize
		end := start + shardSize
		switch {
		case start >= len(content):
			shards[i] = make([]byte, shardSize)
		case end > len(content):
			shards[i] = make([]byte, shardSize)
			copy(shards[i], content[start:])
		default:
			shards[i] = content[start:end]
		}
	}
	for i := ec.dataShards; i < ec.dataShards+ec.parityShards; i++ {
		shards[i] = make([]byte, shardSize)
	}

	if err := ec.encoder.Encode(shards); err != nil {
		return nil, fmt.Errorf("encode shards: %w", err)
	}
	return shards, nil
}

// Decode reconstructs an artifact's content from shards, tolerating up
// to parityShards missing (nil) entries, and trims the result back to
// originalSize (shards are padded to a common size by Encode).
func (ec *ErasureCoder) Decode(shards [][]byte, originalSize int) ([]byte, error) {
	if len(shards) != ec.dataShards+ec.parityShards {
		return nil, fmt.Errorf("expected %d shards, got %d", ec.dataShards+ec.parityShards, len(shards))
	}

	if err := ec.encoder.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("reconstruct shards: %w", err)
	}
	ok, err := ec.encoder.Verify(shards)
	if err != nil {
		return nil, fmt.Errorf("verify shards: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("shard verification failed after reconstruction")
	}

	var buf bytes.Buffer
	for i := 0; i < ec.dataShards; i++ {
		if shards[i] != nil {
			buf.Write(shards[i])
		}
	}

	data := buf.Bytes()
	if len(data) > originalSize {
		data = data[:originalSize]
	}
	return data, nil
}
