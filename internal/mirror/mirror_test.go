package mirror

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/verte-zerg/seqrecall/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMirror struct {
	name string
	err  error
	got  []byte
}

func (f *fakeMirror) Name() string { return f.name }

func (f *fakeMirror) Mirror(_ context.Context, _ string, content []byte) error {
	f.got = content
	return f.err
}

func TestFanoutCollectsFailures(t *testing.T) {
	ok := &fakeMirror{name: "ok"}
	bad := &fakeMirror{name: "bad", err: errors.New("boom")}

	res := Fanout(context.Background(), discardLogger(), []Mirror{ok, bad}, "f.csv", []byte("x"))
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, []string{"bad"}, res.Failed)
	assert.False(t, res.OK())
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, []byte("x"), ok.got)
	assert.Equal(t, []byte("x"), bad.got)
}

type stalledMirror struct{ release chan struct{} }

func (m stalledMirror) Name() string { return "stalled" }

func (m stalledMirror) Mirror(context.Context, string, []byte) error {
	<-m.release
	return nil
}

func TestFanoutAbandonsStalledMirror(t *testing.T) {
	stalled := stalledMirror{release: make(chan struct{})}
	defer close(stalled.release)
	ok := &fakeMirror{name: "ok"}

	start := time.Now()
	res := fanout(context.Background(), 100*time.Millisecond, discardLogger(), []Mirror{stalled, ok}, "f.csv", []byte("x"))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"stalled"}, res.Failed)
	assert.Equal(t, 1, res.Succeeded)
}

func TestFanoutHonorsCallerDeadline(t *testing.T) {
	stalled := stalledMirror{release: make(chan struct{})}
	defer close(stalled.release)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := Fanout(ctx, discardLogger(), []Mirror{stalled}, "f.csv", nil)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, res.OK())
	assert.Zero(t, res.Succeeded)
}

func TestFanoutNoMirrors(t *testing.T) {
	res := Fanout(context.Background(), discardLogger(), nil, "f.csv", nil)
	assert.Equal(t, 0, res.Attempted)
	assert.False(t, res.OK())
}

func TestGitHubCreatesNewFile(t *testing.T) {
	var put contentsPut
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/owner/repo/contents/data/p1_a_memory.csv", r.URL.Path)
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&put))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	gh := NewGitHub(model.GitHubConfig{Token: "secret", Repo: "owner/repo", Dir: "data"}, srv.URL, srv.Client())
	require.NoError(t, gh.Mirror(context.Background(), "p1_a_memory.csv", []byte("a,b\n")))

	assert.Equal(t, "Add data: p1_a_memory.csv", put.Message)
	assert.Equal(t, "main", put.Branch)
	assert.Empty(t, put.SHA)
	decoded, err := base64.StdEncoding.DecodeString(put.Content)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(decoded))
}

func TestGitHubUpdatesExistingFile(t *testing.T) {
	var put contentsPut
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"sha":"abc123"}`))
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&put))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	gh := NewGitHub(model.GitHubConfig{Token: "t", Repo: "o/r", Branch: "data"}, srv.URL, srv.Client())
	require.NoError(t, gh.Mirror(context.Background(), "f.csv", []byte("x")))
	assert.Equal(t, "abc123", put.SHA)
	assert.Equal(t, "data", put.Branch)
}

func TestGitHubReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Invalid request"}`))
	}))
	defer srv.Close()

	gh := NewGitHub(model.GitHubConfig{Token: "t", Repo: "o/r"}, srv.URL, srv.Client())
	err := gh.Mirror(context.Background(), "f.csv", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid request")
}

func TestEmailBuildsAttachment(t *testing.T) {
	var got *mail.Msg
	send := func(_ context.Context, msg *mail.Msg) error {
		got = msg
		return nil
	}
	cfg := model.SMTPConfig{Host: "mail.example.com", From: "lab@example.com", To: []string{"pi@example.com"}}
	em := NewEmail(cfg, send)
	require.NoError(t, em.Mirror(context.Background(), "p1_a_memory.csv", []byte("h\nrow\n")))
	assert.Equal(t, 587, em.cfg.Port)

	require.NotNil(t, got)
	rcpts, err := got.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"pi@example.com"}, rcpts)
	assert.Equal(t, []string{"Experiment data p1_a_memory.csv"}, got.GetGenHeader(mail.HeaderSubject))
	atts := got.GetAttachments()
	require.Len(t, atts, 1)
	assert.Equal(t, "p1_a_memory.csv", atts[0].Name)

	var raw bytes.Buffer
	_, err = got.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "aApyb3cK")
}

func TestEmailRejectsBadSender(t *testing.T) {
	em := NewEmail(model.SMTPConfig{Host: "h", From: "not an address", To: []string{"pi@example.com"}}, func(context.Context, *mail.Msg) error {
		t.Error("send must not run")
		return nil
	})
	require.Error(t, em.Mirror(context.Background(), "f.csv", []byte("x")))
}

func TestEmailHonorsCanceledContext(t *testing.T) {
	called := false
	em := NewEmail(model.SMTPConfig{Host: "h", From: "lab@example.com", To: []string{"pi@example.com"}}, func(context.Context, *mail.Msg) error {
		called = true
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, em.Mirror(ctx, "f.csv", nil))
	assert.False(t, called)
}

func TestEmailStopsWithSlowRelay(t *testing.T) {
	em := NewEmail(model.SMTPConfig{Host: "h", From: "lab@example.com", To: []string{"pi@example.com"}}, func(ctx context.Context, _ *mail.Msg) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := em.Mirror(ctx, "f.csv", []byte("x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
