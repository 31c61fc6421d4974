// Package metadata fetches Solidity metadata documents referenced by content
// hash from an IPFS gateway.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable indicates the gateway could not serve the document.
var ErrUnavailable = errors.New("metadata gateway unavailable")

// Resolver fetches metadata documents by CID.
type Resolver struct {
	gatewayURL string
	httpClient *http.Client
}

// NewResolver creates a resolver against an IPFS gateway base URL, e.g.
// "https://ipfs.io/ipfs/".
func NewResolver(gatewayURL string, timeout time.Duration) *Resolver {
	if !strings.HasSuffix(gatewayURL, "/") {
		gatewayURL += "/"
	}
	return &Resolver{
		gatewayURL: gatewayURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// maxMetadataSize caps a fetched document at 1 MiB; real metadata documents
// are a few kilobytes.
const maxMetadataSize = 1 << 20

// Fetch retrieves the metadata document for a content identifier.
func (r *Resolver) Fetch(ctx context.Context, cid string) ([]byte, error) {
	if cid == "" || strings.ContainsAny(cid, "/?#") {
		return nil, fmt.Errorf("invalid content identifier %q", cid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.gatewayURL+cid, nil)
	if err != nil {
		return nil, fmt.Errorf("building gateway request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return body, nil
}
