// Package server serves the build output in development mode and reloads
// connected browsers when the output changes.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/metrics"
	"git.home.luguber.info/inful/assetpipe/internal/notify"
	"git.home.luguber.info/inful/assetpipe/internal/watch"
)

// Options configures the development server.
type Options struct {
	Root       string
	Host       string
	Port       int // 0 picks a free port
	LiveReload bool
	// Metrics is mounted at /metrics when set.
	Metrics  http.Handler
	Recorder metrics.Recorder
	Debounce time.Duration
}

// Server is a static file server with live reload.
type Server struct {
	opts    Options
	hub     *LiveReloadHub
	srv     *http.Server
	ln      net.Listener
	watcher *watch.Watcher

	closeOnce sync.Once
	closeErr  error
}

// New creates a server. Nothing is bound until Start.
func New(opts Options) *Server {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	s := &Server{opts: opts, hub: NewLiveReloadHub(opts.Recorder)}
	// No write timeout: SSE connections are long-lived.
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       300 * time.Second,
	}
	return s
}

// Hub returns the live-reload hub.
func (s *Server) Hub() *LiveReloadHub { return s.hub }

// Handler builds the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	var files http.Handler = http.FileServer(http.Dir(s.opts.Root))
	files = noCache(files)
	if s.opts.LiveReload {
		files = injectLiveReloadScript(files)
		mux.Handle("/livereload", s.hub)
		mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
			if _, err := w.Write([]byte(LiveReloadScript)); err != nil {
				slog.Error("failed to write livereload script", logfields.Error(err))
			}
		})
	}
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	mux.Handle("/", files)
	return withRequestLogging(mux)
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// Start binds the listener, serves in the background and, with live reload
// enabled, watches the output tree.
func (s *Server) Start(_ context.Context) error {
	if err := os.MkdirAll(s.opts.Root, 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create output directory").
			WithContext("path", s.opts.Root).Build()
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "failed to bind dev server").
			WithContext("addr", addr).Build()
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("Dev server stopped", logfields.Error(err))
		}
	}()

	if s.opts.LiveReload {
		pattern := filepath.ToSlash(filepath.Clean(s.opts.Root)) + "/**"
		w, err := watch.New([]watch.Binding{{Pattern: pattern, Task: "reload"}}, s.opts.Debounce,
			func(string, []string) { s.hub.BroadcastReload() })
		if err != nil {
			_ = s.srv.Close()
			return err
		}
		s.watcher = w
	}

	slog.Info("Dev server listening", logfields.Addr(s.Addr()), slog.String("url", s.URL()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// URL returns the browsable address.
func (s *Server) URL() string {
	host := s.opts.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	port := s.opts.Port
	if tcp, ok := s.lnAddr(); ok {
		port = tcp.Port
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))
}

func (s *Server) lnAddr() (*net.TCPAddr, bool) {
	if s.ln == nil {
		return nil, false
	}
	tcp, ok := s.ln.Addr().(*net.TCPAddr)
	return tcp, ok
}

// Notify shows a notification in connected browsers. Only errors and warnings
// are forwarded.
func (s *Server) Notify(_ context.Context, n notify.Notification) error {
	if !s.opts.LiveReload || n.Level == notify.LevelInfo {
		return nil
	}
	s.hub.BroadcastError(n.Title+": "+n.Message, n.Where())
	return nil
}

// Close stops the watcher, disconnects browsers and shuts the server down.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		slog.Info("Shutting down dev server")
		if s.watcher != nil {
			if err := s.watcher.Close(); err != nil {
				slog.Warn("Output watcher close error", logfields.Error(err))
			}
		}
		// Disconnect SSE clients first; Shutdown waits for active handlers.
		s.hub.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(ctx); err != nil {
			s.closeErr = errors.WrapError(err, errors.CategoryRuntime, "dev server shutdown failed").Build()
		}
	})
	return s.closeErr
}
