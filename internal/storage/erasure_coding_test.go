package storage

import (
	"bytes"
	"testing"
)

func TestErasureCoder_RoundTrip(t *testing.T) {
	k, m := 4, 2
	ec, err := NewErasureCoder(k, m)
	if err != nil {
		t.Fatalf("NewErasureCoder: %v", err)
	}

	content := []byte("jar contents standing in for a published artifact")
	shards, err := ec.Encode(content)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(shards) != k+m {
		t.Fatalf("len(shards) = %d, want %d", len(shards), k+m)
	}

	decoded, err := ec.Decode(shards, len(content))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded, content) {
		t.Errorf("Decode = %q, want %q", decoded, content)
	}
}

func TestErasureCoder_ToleratesParityLoss(t *testing.T) {
	k, m := 4, 2
	ec, err := NewErasureCoder(k, m)
	if err != nil {
		t.Fatalf("NewErasureCoder: %v", err)
	}

	content := []byte("jar contents standing in for a published artifact")
	shards, err := ec.Encode(content)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lossy := make([][]byte, len(shards))
	copy(lossy, shards)
	for i := k; i < k+m; i++ {
		lossy[i] = nil
	}

	decoded, err := ec.Decode(lossy, len(content))
	if err != nil {
		t.Fatalf("Decode with every parity shard missing: %v", err)
	}
	if !bytes.Equal(decoded, content) {
		t.Errorf("Decode = %q, want %q", decoded, content)
	}
}

func TestErasureCoder_ToleratesMixedLoss(t *testing.T) {
	k, m := 4, 2
	ec, err := NewErasureCoder(k, m)
	if err != nil {
		t.Fatalf("NewErasureCoder: %v", err)
	}

	content := []byte("jar contents standing in for a published artifact")
	shards, err := ec.Encode(content)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lossy := make([][]byte, len(shards))
	copy(lossy, shards)
	lossy[0] = nil // one data shard
	lossy[k] = nil // one parity shard

	decoded, err := ec.Decode(lossy, len(content))
	if err != nil {
		t.Fatalf("Decode with one data and one parity shard missing: %v", err)
	}
	if !bytes.Equal(decoded, content) {
		t.Errorf("Decode = %q, want %q", decoded, content)
	}
}

func TestErasureCoder_FailsBeyondParityTolerance(t *testing.T) {
	k, m := 4, 2
	ec, err := NewErasureCoder(k, m)
	if err != nil {
		t.Fatalf("NewErasureCoder: %v", err)
	}

	content := []byte("jar contents standing in for a published artifact")
	shards, err := ec.Encode(content)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	lossy := make([][]byte, len(shards))
	copy(lossy, shards)
	for i := 0; i < m+1; i++ {
		lossy[i] = nil
	}

	if _, err := ec.Decode(lossy, len(content)); err == nil {
		t.Error("expected Decode to fail losing one more shard than parity tolerates")
	}
}

func TestErasureCoder_DifferentShardCounts(t *testing.T) {
	cases := []struct {
		name string
		k, m int
	}{
		{"low redundancy", 2, 1},
		{"balanced", 4, 2},
		{"wide stripe", 10, 4},
	}

	content := []byte("artifact bytes for a shard-count sweep")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ec, err := NewErasureCoder(tc.k, tc.m)
			if err != nil {
				t.Fatalf("NewErasureCoder: %v", err)
			}

			shards, err := ec.Encode(content)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			lossy := make([][]byte, len(shards))
			copy(lossy, shards)
			for i := 0; i < tc.m; i++ {
				lossy[i] = nil
			}

			decoded, err := ec.Decode(lossy, len(content))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(decoded, content) {
				t.Errorf("k=%d m=%d: Decode = %q, want %q", tc.k, tc.m, decoded, content)
			}
		})
	}
}
