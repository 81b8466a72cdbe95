package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPStore fetches artifacts over HTTP(S) relative to a base URL.
//
// Note on content-encoding: the Go transport transparently decompresses
// responses served with `Content-Encoding: gzip`, but static hosts
// commonly serve `.gz` artifacts as opaque bytes. Callers must not
// assume either; the codec package sniffs the payload.
type HTTPStore struct {
	base   *url.URL
	client *http.Client
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// NewHTTPStore creates a store for the given base URL.
// If client is nil, http.DefaultClient is used.
func NewHTTPStore(baseURL string, client *http.Client) (*HTTPStore, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPStore{base: base, client: client}, nil
}

// Fetch retrieves base/name via GET.
func (s *HTTPStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	ref, err := url.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("parse artifact name %q: %w", name, err)
	}
	u := s.base.ResolveReference(ref).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
