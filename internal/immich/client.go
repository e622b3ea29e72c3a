package immich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snapsync/internal/logging"
)

const userAgent = "snapsync/0.1.0"

// Outcome classifies one upload attempt.
type Outcome int

const (
	// OutcomeFailed means the asset was not accepted and the file must stay
	// in place for a retry next cycle.
	OutcomeFailed Outcome = iota
	// OutcomeUploaded means the remote store accepted a new asset.
	OutcomeUploaded
	// OutcomeDuplicate means the remote store recognized the asset as one it
	// already holds. Terminal success, same as uploaded.
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUploaded:
		return "uploaded"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

// CheckEntry is one asset in a bulk-upload-check request. ID is an opaque
// correlation token echoed back by the server; the checksum is hex SHA-1.
type CheckEntry struct {
	ID       string `json:"id"`
	Checksum string `json:"checksum"`
}

// CheckResult is the server's verdict for one CheckEntry.
type CheckResult struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

const (
	ActionAccept    = "accept"
	ActionReject    = "reject"
	ReasonDuplicate = "duplicate"
)

// Client talks to an Immich-compatible asset store. Credentials are supplied
// per call so one client serves every account.
type Client struct {
	baseURL       string
	deviceID      string
	uploadTimeout time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient constructs a store client. baseURL carries no trailing slash.
func NewClient(baseURL, deviceID string, uploadTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		deviceID:      deviceID,
		uploadTimeout: uploadTimeout,
		httpClient:    &http.Client{},
		logger:        logging.WithComponent(logger, "immich"),
	}
}

// Upload sends the file at path as a new asset. A non-2xx response or a
// transport error yields OutcomeFailed with a descriptive error; the caller
// leaves the file in place. The server reporting the asset as a duplicate of
// one it already holds is terminal success.
func (c *Client) Upload(ctx context.Context, apiKey, path string) (Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("stat upload source: %w", err)
	}
	file, err := os.Open(path)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("open upload source: %w", err)
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	pipeReader, pipeWriter := io.Pipe()
	form := multipart.NewWriter(pipeWriter)
	go func() {
		pipeWriter.CloseWithError(writeUploadForm(form, file, info, c.deviceID))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/assets", pipeReader)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("x-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OutcomeFailed, fmt.Errorf("upload %s: store returned %d: %s",
			filepath.Base(path), resp.StatusCode, excerpt(body))
	}

	var decoded struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.logger.Warn("upload response not decodable; treating as uploaded",
			logging.String(logging.FieldPath, path),
			logging.Error(err),
		)
		return OutcomeUploaded, nil
	}
	if strings.EqualFold(decoded.Status, "duplicate") {
		return OutcomeDuplicate, nil
	}
	return OutcomeUploaded, nil
}

// BulkCheck asks the store which checksums it already holds. The caller owns
// the request deadline.
func (c *Client) BulkCheck(ctx context.Context, apiKey string, entries []CheckEntry) ([]CheckResult, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(struct {
		Assets []CheckEntry `json:"assets"`
	}{Assets: entries})
	if err != nil {
		return nil, fmt.Errorf("encode bulk check: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/assets/bulk-upload-check", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build bulk check request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulk check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("bulk check: store returned %d: %s", resp.StatusCode, excerpt(body))
	}

	var decoded struct {
		Results []CheckResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode bulk check response: %w", err)
	}
	return decoded.Results, nil
}

// writeUploadForm emits the multipart body for one asset. The asset identity
// fields come from the file name and mtime so re-copies of the same file map
// to the same device asset.
func writeUploadForm(form *multipart.Writer, file *os.File, info os.FileInfo, deviceID string) error {
	modified := info.ModTime().UTC().Format(time.RFC3339)
	fields := map[string]string{
		"deviceAssetId":  fmt.Sprintf("%s-%d", info.Name(), info.ModTime().Unix()),
		"deviceId":       deviceID,
		"fileCreatedAt":  modified,
		"fileModifiedAt": modified,
		"isFavorite":     "false",
	}
	for key, value := range fields {
		if err := form.WriteField(key, value); err != nil {
			return fmt.Errorf("write form field %s: %w", key, err)
		}
	}

	part, err := form.CreateFormFile("assetData", info.Name())
	if err != nil {
		return fmt.Errorf("create asset part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("stream asset data: %w", err)
	}
	return form.Close()
}

func excerpt(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	if text == "" {
		text = "<empty body>"
	}
	return text
}
