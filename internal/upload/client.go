// Package upload posts trial records to the save endpoint.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/verte-zerg/seqrecall/internal/model"
)

// SavePath is the backend route that receives rows.
const SavePath = "/save-data"

// ErrRejected is returned when the backend answers without success.
var ErrRejected = errors.New("upload rejected")

// Client uploads records to a seqrecall backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for baseURL. client may be nil.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// Upload sends records as one JSON array of rows. A response whose status is
// not success is returned together with an error wrapping ErrRejected.
func (c *Client) Upload(ctx context.Context, records []model.TrialRecord) (model.UploadResponse, error) {
	rows := make([]model.Row, len(records))
	for i, r := range records {
		rows[i] = r.Row()
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return model.UploadResponse{}, fmt.Errorf("failed to encode rows: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SavePath, bytes.NewReader(body))
	if err != nil {
		return model.UploadResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.UploadResponse{}, fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.UploadResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	var out model.UploadResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return model.UploadResponse{}, fmt.Errorf("%w: status %d: invalid response body", ErrRejected, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 || out.Status != model.StatusSuccess {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return out, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
	}
	return out, nil
}

// MirrorFailed reports whether the backend saved the rows but could not
// deliver them to any configured mirror.
func MirrorFailed(resp model.UploadResponse) bool {
	return resp.Mirrored != nil && !*resp.Mirrored
}
