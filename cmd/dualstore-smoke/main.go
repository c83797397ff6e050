package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// getenv returns the value of the environment variable named by key or
// fallback if the variable is not present.
func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

const (
	ObjectName    = "example.txt"
	ObjectContent = "Hello from the dualstore smoke test!\n"
)

type uploadResponse struct {
	S3URL    string `json:"s3_url"`
	IPFSHash string `json:"ipfs_hash"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// UploadFile posts content as the "file" field of a multipart form.
func UploadFile(ctx context.Context, client *httpclient.Client, baseURL string, filename string, content []byte) (uploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return uploadResponse{}, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return uploadResponse{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/upload", &body)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token := os.Getenv("DUALSTORE_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("failed to upload %q: %w", filename, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return uploadResponse{}, fmt.Errorf("upload %q returned %d: %s", filename, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uploadResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	slog.Info("Uploaded file", "filename", out.Filename, "size", out.Size, "s3_url", out.S3URL, "ipfs_hash", out.IPFSHash)
	return out, nil
}

// StatObject checks that the object behind locator exists in the MinIO
// bucket. Locators are expected in path style: <endpoint>/<bucket>/<key>.
func StatObject(ctx context.Context, client *minio.Client, locator string) error {
	u, err := url.Parse(locator)
	if err != nil {
		return fmt.Errorf("failed to parse locator %q: %w", locator, err)
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !ok {
		return fmt.Errorf("locator %q has no object key", locator)
	}

	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to stat object %q in bucket %q: %w", key, bucket, err)
	}

	slog.Info("Object in bucket", "bucket", bucket, "key", info.Key, "size", info.Size)
	return nil
}

func Run(ctx context.Context, client *httpclient.Client, baseURL string, store *minio.Client) error {
	// 1. Upload the same bytes twice.
	first, err := UploadFile(ctx, client, baseURL, ObjectName, []byte(ObjectContent))
	if err != nil {
		return err
	}

	second, err := UploadFile(ctx, client, baseURL, ObjectName, []byte(ObjectContent))
	if err != nil {
		return err
	}

	// 2. Keys are unique per upload, addresses are derived from content.
	if first.S3URL == second.S3URL {
		return fmt.Errorf("expected distinct object locators, got %q twice", first.S3URL)
	}
	if first.IPFSHash != second.IPFSHash {
		return fmt.Errorf("expected identical content addresses, got %q and %q", first.IPFSHash, second.IPFSHash)
	}
	if first.Size != int64(len(ObjectContent)) {
		return fmt.Errorf("expected size %d, got %d", len(ObjectContent), first.Size)
	}

	// 3. Optionally confirm the objects landed in MinIO.
	if store == nil {
		return nil
	}

	return errors.Join(
		StatObject(ctx, store, first.S3URL),
		StatObject(ctx, store, second.S3URL),
	)
}

func main() {
	baseURL := strings.TrimRight(getenv("DUALSTORE_URL", "http://localhost:8080"), "/")

	client := httpclient.NewClient(httpclient.WithHTTPTimeout(30 * time.Second))

	var store *minio.Client
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		accessKey := getenv("MINIO_ACCESS_KEY", "minioadmin")
		secretKey := getenv("MINIO_SECRET_KEY", "minioadmin")

		var err error
		store, err = minio.New(endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
			Secure: false,
		})
		if err != nil {
			slog.Error("failed to create MinIO client", "err", err)
			os.Exit(1)
		}
	}

	if err := Run(context.Background(), client, baseURL, store); err != nil {
		slog.Error("error running smoke test", "err", err)
		os.Exit(1)
	}

	slog.Info("Smoke test passed")
}
