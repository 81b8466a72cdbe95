package tokenscope

import (
	"encoding/json"
	"fmt"
)

// Neighbor is one entry of a token's precomputed neighbor list.
// On the wire it is the pair [neighborId, similarity].
type Neighbor struct {
	ID         int
	Similarity float64
}

// UnmarshalJSON decodes the wire pair form.
func (n *Neighbor) UnmarshalJSON(data []byte) error {
	var pair [2]json.Number
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	id, err := pair[0].Int64()
	if err != nil {
		return fmt.Errorf("neighbor id: %w", err)
	}
	sim, err := pair[1].Float64()
	if err != nil {
		return fmt.Errorf("neighbor similarity: %w", err)
	}
	n.ID = int(id)
	n.Similarity = sim
	return nil
}

// MarshalJSON encodes the wire pair form.
func (n Neighbor) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{n.ID, n.Similarity})
}

// NeighborList is a token's neighbors, rank-ordered by descending
// similarity by construction. The loader never re-sorts.
type NeighborList []Neighbor

// Shard holds the neighbor lists of one contiguous token range.
// Shard s entry i belongs to token s*shardSize + i.
type Shard []NeighborList

// Hit is one search result.
type Hit struct {
	ID   int
	Text string
}

// Token is a resolved token with its neighbor list.
type Token struct {
	ID        int
	Text      string
	Neighbors NeighborList
}

// Status reports the loading state of the active selection.
type Status struct {
	// TableLoading is true while the manifest/table load is in flight.
	TableLoading bool
	// TableErr holds the table load failure, if any. Queries are
	// unusable until a new Select succeeds.
	TableErr error
	// NeighborsLoading is true while a foreground shard fetch is
	// outstanding.
	NeighborsLoading bool
}

// Stats is a point-in-time snapshot of the active session.
type Stats struct {
	Generation   uint64
	VocabSize    int
	ShardSize    int
	NumShards    int
	K            int
	CachedShards int
}
