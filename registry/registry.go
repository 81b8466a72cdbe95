// Package registry maps dataset identifiers to their available
// embedding variants and artifact prefixes.
//
// The registry is supplied by configuration, never computed: a dataset
// with tied input/output embeddings simply lists a single variant.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Variant names one of possibly several parallel neighbor datasets for
// the same token set.
type Variant string

const (
	// VariantInput selects neighbors computed from the input embedding
	// matrix (embed_tokens).
	VariantInput Variant = "input"
	// VariantOutput selects neighbors computed from the output embedding
	// matrix (lm_head). Unavailable for tied-weight models.
	VariantOutput Variant = "output"
)

// Selector identifies which manifest/table/shard family is active.
type Selector struct {
	Dataset string  `json:"dataset"`
	Variant Variant `json:"variant"`
}

func (s Selector) String() string {
	return s.Dataset + "/" + string(s.Variant)
}

// ErrUnknownDataset indicates a dataset id with no registry entry.
type ErrUnknownDataset struct {
	Dataset string
}

func (e *ErrUnknownDataset) Error() string {
	return fmt.Sprintf("unknown dataset: %q", e.Dataset)
}

// ErrUnavailableVariant indicates a variant the dataset does not
// provide (e.g. "output" for a tied-weight model). This is a
// configuration error; no fetch is attempted.
type ErrUnavailableVariant struct {
	Dataset string
	Variant Variant
}

func (e *ErrUnavailableVariant) Error() string {
	return fmt.Sprintf("dataset %q has no %q variant", e.Dataset, e.Variant)
}

// Registry holds the dataset -> variant -> prefix mapping.
// Immutable after construction; safe for concurrent use.
type Registry struct {
	datasets map[string]map[Variant]string
}

// Static builds a registry from an in-code mapping of dataset id to
// variant prefixes.
func Static(datasets map[string]map[Variant]string) *Registry {
	copied := make(map[string]map[Variant]string, len(datasets))
	for id, variants := range datasets {
		vs := make(map[Variant]string, len(variants))
		for v, prefix := range variants {
			vs[v] = prefix
		}
		copied[id] = vs
	}
	return &Registry{datasets: copied}
}

// Parse builds a registry from its JSON representation:
//
//	{"qwen3-30b-a3b": {"input": "qwen3-30b-a3b-input", "output": "..."}}
func Parse(data []byte) (*Registry, error) {
	var raw map[string]map[Variant]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return Static(raw), nil
}

// LoadFile reads a registry from a JSON file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return Parse(data)
}

// Resolve maps a selector to its artifact prefix.
// Fails with ErrUnknownDataset or ErrUnavailableVariant; neither
// involves any network access.
func (r *Registry) Resolve(sel Selector) (string, error) {
	variants, ok := r.datasets[sel.Dataset]
	if !ok {
		return "", &ErrUnknownDataset{Dataset: sel.Dataset}
	}
	prefix, ok := variants[sel.Variant]
	if !ok {
		return "", &ErrUnavailableVariant{Dataset: sel.Dataset, Variant: sel.Variant}
	}
	return prefix, nil
}

// Datasets returns all dataset ids in sorted order.
func (r *Registry) Datasets() []string {
	ids := make([]string, 0, len(r.datasets))
	for id := range r.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Variants returns the available variants for a dataset in sorted
// order, or nil if the dataset is unknown.
func (r *Registry) Variants(dataset string) []Variant {
	variants, ok := r.datasets[dataset]
	if !ok {
		return nil
	}
	vs := make([]Variant, 0, len(variants))
	for v := range variants {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	return vs
}
