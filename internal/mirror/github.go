package mirror

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/verte-zerg/seqrecall/internal/model"
)

const defaultGitHubAPI = "https://api.github.com"

// GitHub writes files through the GitHub contents API.
type GitHub struct {
	cfg     model.GitHubConfig
	baseURL string
	client  *http.Client
}

// NewGitHub returns a contents API mirror. baseURL may be empty.
func NewGitHub(cfg model.GitHubConfig, baseURL string, client *http.Client) *GitHub {
	if baseURL == "" {
		baseURL = defaultGitHubAPI
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	return &GitHub{cfg: cfg, baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Name implements Mirror.
func (g *GitHub) Name() string {
	return "github"
}

type contentsFile struct {
	SHA string `json:"sha"`
}

type contentsPut struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type githubError struct {
	Message string `json:"message"`
}

// Mirror creates or updates filename under the configured directory.
func (g *GitHub) Mirror(ctx context.Context, filename string, content []byte) error {
	endpoint := g.contentsURL(filename)

	sha, err := g.existingSHA(ctx, endpoint)
	if err != nil {
		return err
	}

	body, err := json.Marshal(contentsPut{
		Message: "Add data: " + filename,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  g.cfg.Branch,
		SHA:     sha,
	})
	if err != nil {
		return fmt.Errorf("failed to encode contents request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	g.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to put contents: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github contents: %s: %s", resp.Status, readGitHubError(resp.Body))
	}
	return nil
}

// existingSHA returns the blob SHA when the file already exists.
func (g *GitHub) existingSHA(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?ref="+url.QueryEscape(g.cfg.Branch), nil)
	if err != nil {
		return "", err
	}
	g.setHeaders(req)
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to look up contents: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("github contents lookup: %s: %s", resp.Status, readGitHubError(resp.Body))
	}
	var file contentsFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", fmt.Errorf("failed to decode contents: %w", err)
	}
	return file.SHA, nil
}

func (g *GitHub) contentsURL(filename string) string {
	p := path.Join(g.cfg.Dir, filename)
	return fmt.Sprintf("%s/repos/%s/contents/%s", g.baseURL, g.cfg.Repo, p)
}

func (g *GitHub) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+g.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
}

func readGitHubError(r io.Reader) string {
	var ge githubError
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return err.Error()
	}
	if err := json.Unmarshal(data, &ge); err == nil && ge.Message != "" {
		return ge.Message
	}
	return strings.TrimSpace(string(data))
}
