package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetpipe/internal/notify"
)

// readUntil reads SSE lines until one contains want or the deadline passes.
func readUntil(t *testing.T, lines <-chan string, want string, timeout time.Duration) string {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before %q", want)
			}
			if strings.Contains(line, want) {
				return line
			}
		case <-deadline:
			t.Fatalf("did not receive %q", want)
		}
	}
}

// connect opens an SSE stream and returns its lines.
func connect(t *testing.T, url string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			lines <- line
		}
	}()
	return lines
}

func TestLiveReload_InitialConnectReceivesBaseline(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	hub.Broadcast("abc123")

	srv := httptest.NewServer(hub)
	defer srv.Close()

	reader := connect(t, srv.URL)
	readUntil(t, reader, `"hash":"abc123"`, time.Second)
}

func TestLiveReload_BroadcastSendsEvent(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	defer hub.Shutdown()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	reader := connect(t, srv.URL)
	readUntil(t, reader, `"hash"`, time.Second)

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	hub.Broadcast("newhash")
	readUntil(t, reader, `"hash":"newhash"`, time.Second)

	hub.BroadcastError("Compile error: boom", "src/css/index.scss:1:2")
	line := readUntil(t, reader, `"error"`, time.Second)
	assert.Contains(t, line, `"error":"Compile error: boom"`)
	assert.Contains(t, line, `"file":"src/css/index.scss:1:2"`)
	assert.Contains(t, line, `"hash":"error:`)
}

// brokenStream accepts headers but fails every body write.
type brokenStream struct {
	header http.Header
}

func (b *brokenStream) Header() http.Header       { return b.header }
func (b *brokenStream) WriteHeader(int)           {}
func (b *brokenStream) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }
func (b *brokenStream) Flush()                    {}

func TestLiveReload_FailedHandshakeRemovesClient(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	req := httptest.NewRequest(http.MethodGet, "/livereload", http.NoBody)

	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(&brokenStream{header: http.Header{}}, req)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("handler kept a dead stream open")
	}
	assert.Zero(t, hub.Clients())
}

func TestLiveReload_ShutdownRejectsClients(t *testing.T) {
	hub := NewLiveReloadHub(nil)
	hub.Shutdown()
	hub.Shutdown()

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livereload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	hub.Broadcast("ignored")
}

func TestInjectLiveReloadScript(t *testing.T) {
	html := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<html><body><p>hi</p></body></html>")
	})
	css := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{}")
	})

	rec := httptest.NewRecorder()
	injectLiveReloadScript(html).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, `<html><body><p>hi</p>`+liveReloadTag+`</body></html>`, rec.Body.String())

	rec = httptest.NewRecorder()
	injectLiveReloadScript(css).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/css/index.css", nil))
	assert.Equal(t, "body{}", rec.Body.String())

	rec = httptest.NewRecorder()
	injectLiveReloadScript(css).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page.html", nil))
	assert.Equal(t, "body{}", rec.Body.String(), "non-HTML content types pass through")
}

func TestInjectLiveReloadScript_LargeBodyPassesThrough(t *testing.T) {
	big := strings.Repeat("a", 600*1024) + "</body>"
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, big[:300*1024])
		_, _ = io.WriteString(w, big[300*1024:])
	})
	rec := httptest.NewRecorder()
	injectLiveReloadScript(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, big, rec.Body.String())
}

func TestServer_ServesAndReloads(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body>x</body></html>"), 0o600))

	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "assetpipe_metrics 1\n")
	})
	s := New(Options{
		Root:       root,
		Host:       "127.0.0.1",
		LiveReload: true,
		Metrics:    metricsHandler,
		Debounce:   20 * time.Millisecond,
	})
	require.NoError(t, s.Start(t.Context()))
	defer func() { _ = s.Close() }()

	base := "http://" + s.Addr()
	assert.True(t, strings.HasPrefix(s.URL(), "http://127.0.0.1:"))

	body := get(t, base+"/")
	assert.Contains(t, body, liveReloadTag)

	assert.Contains(t, get(t, base+"/livereload.js"), "EventSource('/livereload')")
	assert.Contains(t, get(t, base+"/metrics"), "assetpipe_metrics 1")

	reader := connect(t, base+"/livereload")
	readUntil(t, reader, `"hash"`, time.Second)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "css"), 0o755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "css", "index.css"), []byte("a{}"), 0o600))
	readUntil(t, reader, `"hash"`, 5*time.Second)

	require.NoError(t, s.Notify(t.Context(), notify.Notification{
		Level: notify.LevelError, Title: "Compile error", Message: "boom", File: "a.scss", Line: 1,
	}))
	readUntil(t, reader, `"error":"Compile error: boom"`, time.Second)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestServer_WithoutLiveReload(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html><body>x</body></html>"), 0o600))

	s := New(Options{Root: root, Host: "127.0.0.1"})
	require.NoError(t, s.Start(t.Context()))
	defer func() { _ = s.Close() }()

	body := get(t, "http://"+s.Addr()+"/")
	assert.NotContains(t, body, liveReloadTag)
	require.NoError(t, s.Notify(t.Context(), notify.Notification{Level: notify.LevelError}))
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestRequestLogging_RecoversPanics(t *testing.T) {
	h := withRequestLogging(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broken", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLogging_KeepsFlusher(t *testing.T) {
	var flushable bool
	h := withRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, flushable = w.(http.Flusher)
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, flushable)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
