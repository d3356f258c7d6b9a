package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/seqrecall/internal/mirror"
	"github.com/verte-zerg/seqrecall/internal/model"
)

type stubMirror struct {
	err   error
	calls atomic.Int32
}

func (m *stubMirror) Name() string { return "stub" }

func (m *stubMirror) Mirror(context.Context, string, []byte) error {
	m.calls.Add(1)
	return m.err
}

func testServer(t *testing.T, mirrors ...mirror.Mirror) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	return New(model.ServerConfig{DataDir: dir}, nil, mirrors), dir
}

func post(t *testing.T, s *Server, body string) (*httptest.ResponseRecorder, model.UploadResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/save-data", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp model.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

const mixedRows = `[
	{"participant_number":"7","netid":"ABC123","sequence":"ABABABC","recall":"ABABABX","correct_count":6,"total_letters":7,"accuracy":0.857,"compressibility":3,"pattern_type":"REPEAT","rt_seconds":3.2},
	{"participant_number":"7","netid":"ABC123","trial_type":"instructions"},
	{"participant_number":"7","netid":"ABC123","sequence":"QWERTYU","recall":"","correct_count":0,"total_letters":7,"accuracy":0,"compressibility":0,"pattern_type":"RANDOM","rt_seconds":10}
]`

func TestSaveDataWritesRecallRows(t *testing.T) {
	s, dir := testServer(t)
	rec, resp := post(t, s, mixedRows)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.Equal(t, "p7_abc123_memory.csv", resp.Filename)
	assert.Equal(t, 2, resp.Trials)
	assert.True(t, resp.Saved)
	assert.Nil(t, resp.Mirrored)

	data, err := os.ReadFile(filepath.Join(dir, resp.Filename))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "participant_number,netid,sequence,recall,correct_count,total_letters,accuracy,compressibility,pattern_type,rt_seconds", lines[0])
	assert.Equal(t, "7,ABC123,ABABABC,ABABABX,6,7,0.857,3,REPEAT,3.2", lines[1])
	assert.Equal(t, "7,ABC123,QWERTYU,,0,7,0,0,RANDOM,10", lines[2])
}

func TestSaveDataAllColumns(t *testing.T) {
	dir := t.TempDir()
	s := New(model.ServerConfig{DataDir: dir, Columns: "all"}, nil, nil)
	_, resp := post(t, s, `[{"sequence":"ABCDEFG","recall":"ABC","zeta":1,"netid":"x","participant_number":1}]`)

	data, err := os.ReadFile(filepath.Join(dir, resp.Filename))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "netid,participant_number,recall,sequence,zeta\n"))
}

func TestSaveDataRejectsBadBodies(t *testing.T) {
	s, _ := testServer(t)
	for _, body := range []string{"", "   ", "{}", "[]", "not json"} {
		rec, resp := post(t, s, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Equal(t, model.StatusError, resp.Status)
		assert.NotEmpty(t, resp.Error)
	}
}

func TestSaveDataBodyLimit(t *testing.T) {
	s, _ := testServer(t)
	big := `[{"sequence":"` + strings.Repeat("A", MaxBodyBytes) + `","recall":""}]`
	rec, _ := post(t, s, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSaveDataMirrorFailureStillSucceeds(t *testing.T) {
	m := &stubMirror{err: errors.New("github down")}
	s, _ := testServer(t, m)
	rec, resp := post(t, s, mixedRows)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.True(t, resp.Saved)
	require.NotNil(t, resp.Mirrored)
	assert.False(t, *resp.Mirrored)
	assert.EqualValues(t, 1, m.calls.Load())
}

func TestSaveDataMirrorSucceeds(t *testing.T) {
	m := &stubMirror{}
	s, _ := testServer(t, m)
	_, resp := post(t, s, mixedRows)
	require.NotNil(t, resp.Mirrored)
	assert.True(t, *resp.Mirrored)
}

func TestSaveDataLocalFailureFallsBackToMirror(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	s := New(model.ServerConfig{DataDir: filepath.Join(blocker, "data")}, nil, []mirror.Mirror{&stubMirror{}})

	rec, resp := post(t, s, mixedRows)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Saved)
	require.NotNil(t, resp.Mirrored)
	assert.True(t, *resp.Mirrored)
}

func TestSaveDataEverythingFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	s := New(model.ServerConfig{DataDir: filepath.Join(blocker, "data")}, nil, []mirror.Mirror{&stubMirror{err: errors.New("down")}})

	rec, resp := post(t, s, mixedRows)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, model.StatusError, resp.Status)
	assert.False(t, resp.Saved)
}

func TestSaveDataAnyMirrorCoversLocalFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	mirrors := []mirror.Mirror{&stubMirror{}, &stubMirror{err: errors.New("relay down")}}
	s := New(model.ServerConfig{DataDir: filepath.Join(blocker, "data")}, nil, mirrors)

	rec, resp := post(t, s, mixedRows)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.False(t, resp.Saved)
	require.NotNil(t, resp.Mirrored)
	assert.False(t, *resp.Mirrored)
}

func TestSaveDataReportsZeroTrials(t *testing.T) {
	s, _ := testServer(t)
	rec, resp := post(t, s, `[{"participant_number":"7","netid":"ABC123","trial_type":"instructions"}]`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, resp.Trials)
	assert.Contains(t, rec.Body.String(), `"trials":0`)
}

func TestHealthAndCORS(t *testing.T) {
	s, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://lab.example.com")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/save-data", nil)
	req.Header.Set("Origin", "http://lab.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodPost, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRequestsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := New(model.ServerConfig{DataDir: t.TempDir()}, logger, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), "/health")
}

func TestStaticDir(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>hi</h1>"), 0o644))
	s := New(model.ServerConfig{DataDir: t.TempDir(), StaticDir: static}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>hi</h1>")
}

func TestMirrorsFromConfig(t *testing.T) {
	assert.Empty(t, Mirrors(model.ServerConfig{}))
	cfg := model.ServerConfig{
		GitHub: model.GitHubConfig{Token: "t", Repo: "lab/data"},
		SMTP:   model.SMTPConfig{Host: "smtp.example.com", From: "a@example.com", To: []string{"b@example.com"}},
	}
	mirrors := Mirrors(cfg)
	require.Len(t, mirrors, 2)
	assert.Equal(t, "github", mirrors[0].Name())
	assert.Equal(t, "email", mirrors[1].Name())
}

func TestRunStopsOnCancel(t *testing.T) {
	s := New(model.ServerConfig{Addr: "127.0.0.1:0", DataDir: t.TempDir()}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}
