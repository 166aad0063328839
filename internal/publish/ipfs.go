package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/psinet-protocol/psinet/internal/canonical"
	"github.com/psinet-protocol/psinet/internal/ledger"
)

// IPFSPublisher adds context units to an IPFS node over its HTTP API
// (POST /api/v0/add). The returned reference is the CID.
type IPFSPublisher struct {
	apiURL string
	client *http.Client
}

// NewIPFSPublisher targets the IPFS HTTP API at apiURL, typically
// "http://127.0.0.1:5001".
func NewIPFSPublisher(apiURL string) *IPFSPublisher {
	return &IPFSPublisher{
		apiURL: apiURL,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Publisher.
func (p *IPFSPublisher) Name() string { return "ipfs" }

// Publish adds the unit's canonical JSON to IPFS and returns its CID.
func (p *IPFSPublisher) Publish(ctx context.Context, unit *ledger.ContextUnit) (string, error) {
	payload, err := canonical.Marshal(unit)
	if err != nil {
		return "", fmt.Errorf("encode unit: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", unit.ID+".json")
	if err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+"/api/v0/add?pin=true", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ipfs add: status %d: %s", resp.StatusCode, b)
	}

	var out struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ipfs response: %w", err)
	}
	if out.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty hash in response")
	}
	return out.Hash, nil
}
