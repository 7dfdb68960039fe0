package cas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IPFSClient implements Store against the IPFS HTTP API (/api/v0).
type IPFSClient struct {
	apiURL     string
	gateway    string
	httpClient *http.Client
}

// NewIPFSClient creates a client for the IPFS node at apiURL. gateway is used
// for retrieval and may point at a public gateway.
func NewIPFSClient(apiURL, gateway string, timeout time.Duration) *IPFSClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &IPFSClient{
		apiURL:     strings.TrimRight(apiURL, "/"),
		gateway:    strings.TrimRight(gateway, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type addResponse struct {
	Hash string `json:"Hash"`
}

// Pin uploads data via /api/v0/add with pinning enabled and returns the CID.
func (c *IPFSClient) Pin(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "bundle.json")
	if err != nil {
		return "", fmt.Errorf("cas: build multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("cas: write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("cas: close multipart: %w", err)
	}

	endpoint := c.apiURL + "/api/v0/add?" + url.Values{"pin": {"true"}, "cid-version": {"1"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("cas: build add request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("cas: add: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("cas: read add response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cas: add: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed addResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("cas: decode add response: %w", err)
	}
	if parsed.Hash == "" {
		return "", fmt.Errorf("cas: add returned empty hash")
	}
	return parsed.Hash, nil
}

// Retrieve fetches a pinned blob through the configured gateway.
func (c *IPFSClient) Retrieve(ctx context.Context, cid string) ([]byte, error) {
	endpoint := c.gateway + "/" + url.PathEscape(cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("cas: build get request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cas: get %s: %w", cid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cas: get %s: status %d", cid, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("cas: read %s: %w", cid, err)
	}
	return data, nil
}

// Compile-time interface check.
var _ Store = (*IPFSClient)(nil)
