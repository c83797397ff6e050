package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
)

// DefaultIPFSTimeout bounds a single add call.
const DefaultIPFSTimeout = 60 * time.Second

// IPFSConfig holds settings for an IPFS node HTTP API.
type IPFSConfig struct {
	// APIURL is the node's API base, e.g. "http://127.0.0.1:5001".
	APIURL  string
	Timeout time.Duration
}

// IPFSContentStore implements ContentStore by adding files through the IPFS
// HTTP API. Calls are not retried.
type IPFSContentStore struct {
	baseURL string
	client  *httpclient.Client
}

// ipfsAddEntry is one line of the /api/v0/add response stream.
type ipfsAddEntry struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// NewIPFSContentStore creates a client for the node described by cfg.
func NewIPFSContentStore(cfg IPFSConfig) *IPFSContentStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultIPFSTimeout
	}

	return &IPFSContentStore{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		client: httpclient.NewClient(
			httpclient.WithHTTPTimeout(timeout),
			httpclient.WithRetryCount(0),
		),
	}
}

// Put adds the file at localPath to IPFS, pinning it, and returns its CID.
// The heimdall client reads the whole request body before sending it, so
// the multipart body is built in memory; uploads are capped by the
// configured maximum file size.
func (s *IPFSContentStore) Put(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	if info, err := f.Stat(); err == nil {
		body.Grow(int(info.Size()) + 512)
	}

	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v0/add?pin=true", &body)
	if err != nil {
		return "", fmt.Errorf("build add request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ipfs add: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	return decodeAddResponse(resp.Body)
}

// decodeAddResponse returns the hash of the last entry in the add stream,
// which is the root of what was added.
func decodeAddResponse(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)

	var hash string
	for {
		var entry ipfsAddEntry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode ipfs add response: %w", err)
		}
		if entry.Hash != "" {
			hash = entry.Hash
		}
	}

	if hash == "" {
		return "", errors.New("no response from IPFS")
	}
	return hash, nil
}
