// Package manifest defines the per-dataset manifest artifact and the
// naming scheme shared by every artifact consumer.
package manifest

import (
	"fmt"
)

// Manifest describes one (dataset, variant) artifact family.
// Immutable once loaded; owned by the active session.
type Manifest struct {
	// VocabSize is the number of tokens in the dataset.
	VocabSize int `json:"vocabSize"`
	// ShardSize is the number of neighbor lists per shard (the last
	// shard may be shorter).
	ShardSize int `json:"shardSize"`
	// NumShards is the shard count; always ceil(VocabSize/ShardSize).
	NumShards int `json:"numShards"`
	// K is the number of neighbors per token.
	K int `json:"k"`
}

// Validate checks the manifest's internal consistency.
func (m *Manifest) Validate() error {
	if m.VocabSize < 0 {
		return fmt.Errorf("negative vocabSize: %d", m.VocabSize)
	}
	if m.ShardSize <= 0 {
		return fmt.Errorf("non-positive shardSize: %d", m.ShardSize)
	}
	if m.K < 0 {
		return fmt.Errorf("negative k: %d", m.K)
	}
	want := (m.VocabSize + m.ShardSize - 1) / m.ShardSize
	if m.NumShards != want {
		return fmt.Errorf("numShards %d does not match ceil(%d/%d) = %d",
			m.NumShards, m.VocabSize, m.ShardSize, want)
	}
	return nil
}

// ShardFor returns the shard index holding the neighbor list of token id.
// The caller is responsible for range-checking id.
func (m *Manifest) ShardFor(id int) int {
	return id / m.ShardSize
}

// ShardLen returns the number of neighbor lists in shard i.
func (m *Manifest) ShardLen(i int) int {
	if i < 0 || i >= m.NumShards {
		return 0
	}
	if i == m.NumShards-1 {
		if rem := m.VocabSize - i*m.ShardSize; rem < m.ShardSize {
			return rem
		}
	}
	return m.ShardSize
}

// InRange reports whether id is a valid token identifier.
func (m *Manifest) InRange(id int) bool {
	return id >= 0 && id < m.VocabSize
}

// Artifact names for a prefix P:
//
//	P-manifest.json        uncompressed JSON manifest
//	P-tokens.json.gz       gzipped JSON array of token strings
//	P-knn-{i}.json.gz      gzipped JSON shard i
//
// The producer writes gzip, but consumers must sniff the payload since
// hosting layers may decompress transparently (see codec.Decode).

// Name returns the manifest artifact name for a prefix.
func Name(prefix string) string {
	return prefix + "-manifest.json"
}

// TokensName returns the token table artifact name for a prefix.
func TokensName(prefix string) string {
	return prefix + "-tokens.json.gz"
}

// ShardName returns the artifact name of shard i for a prefix.
func ShardName(prefix string, i int) string {
	return fmt.Sprintf("%s-knn-%d.json.gz", prefix, i)
}
