package server

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetpipe/internal/metrics"
)

// reloadMessage is the SSE payload. Browsers reload when Hash changes and
// Error is empty; an Error is only printed to the console.
type reloadMessage struct {
	Hash  string `json:"hash"`
	Error string `json:"error,omitempty"`
	File  string `json:"file,omitempty"`
}

// LiveReloadHub manages SSE clients for hash-change broadcasts.
type LiveReloadHub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*lrClient
	recorder metrics.Recorder
	closed   bool
	lastHash string
}

type lrClient struct {
	id   int
	ch   chan []byte
	done chan struct{}
}

func NewLiveReloadHub(rec metrics.Recorder) *LiveReloadHub {
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	// Seeding the hash guarantees every client gets a baseline on connect.
	return &LiveReloadHub{
		clients:  map[int]*lrClient{},
		recorder: rec,
		lastHash: strconv.FormatInt(time.Now().UnixNano(), 10),
	}
}

// ServeHTTP implements the SSE endpoint at /livereload
func (h *LiveReloadHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &lrClient{ch: make(chan []byte, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastHash
	count := len(h.clients)
	h.mu.Unlock()
	h.recorder.SetLiveReloadClients(count)
	defer h.removeClient(client.id)

	// The first event carries the current hash so the client has a baseline.
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		slog.Debug("livereload write", "error", err)
		return
	}
	if current != "" {
		if err := writeEvent(bw, encode(reloadMessage{Hash: current})); err != nil {
			slog.Debug("livereload write", "error", err)
			return
		}
	}
	if err := bw.Flush(); err != nil {
		slog.Debug("livereload write", "error", err)
		return
	}
	flusher.Flush()

	hb := time.NewTicker(30 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			} else {
				slog.Debug("livereload ping write", "error", err)
			}
		case msg := <-client.ch:
			if err := writeEvent(bw, msg); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			} else {
				slog.Debug("livereload broadcast write", "error", err)
			}
		}
	}
}

func writeEvent(bw *bufio.Writer, payload []byte) error {
	if _, err := bw.WriteString("data: "); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	_, err := bw.WriteString("\n\n")
	return err
}

func encode(m reloadMessage) []byte {
	data, _ := json.Marshal(m)
	return data
}

func (h *LiveReloadHub) removeClient(id int) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c.done)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.recorder.SetLiveReloadClients(count)
	}
}

// Clients returns the number of connected browsers.
func (h *LiveReloadHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast new hash to all clients (drops clients whose channels are full / closed).
func (h *LiveReloadHub) Broadcast(hash string) {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.lastHash {
		h.mu.Unlock()
		return
	}
	h.lastHash = hash
	h.mu.Unlock()
	h.send(encode(reloadMessage{Hash: hash}), "reload")
}

// BroadcastReload announces a change using the current time as hash.
func (h *LiveReloadHub) BroadcastReload() {
	h.Broadcast(strconv.FormatInt(time.Now().UnixNano(), 10))
}

// BroadcastError shows a build error in every connected browser console
// without reloading.
func (h *LiveReloadHub) BroadcastError(message, file string) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return
	}
	hash := "error:" + strconv.FormatInt(time.Now().UnixNano(), 10)
	h.send(encode(reloadMessage{Hash: hash, Error: message, File: file}), "error")
}

func (h *LiveReloadHub) send(payload []byte, kind string) {
	h.mu.RLock()
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- payload:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.recorder.IncLiveReloadBroadcast(kind)
	slog.Debug("livereload broadcast", "kind", kind, "clients", len(snapshot), "dropped", dropped)
}

// Shutdown closes all clients and prevents future broadcasts.
func (h *LiveReloadHub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
	h.recorder.SetLiveReloadClients(0)
}

// LiveReloadScript is served at /livereload.js.
const LiveReloadScript = `(() => {
  if (window.__ASSETPIPE_LR__) return;
  window.__ASSETPIPE_LR__ = true;
  function connect() {
    const es = new EventSource('/livereload');
    let current = null;
    es.onmessage = (e) => {
      try {
        const p = JSON.parse(e.data);
        if (p.error) { console.error('[assetpipe] ' + (p.file ? p.file + ': ' : '') + p.error); return; }
        if (current === null) { current = p.hash; return; }
        if (p.hash && p.hash !== current) { console.log('[assetpipe] change detected, reloading'); location.reload(); }
      } catch (_) {}
    };
    es.onerror = () => { console.warn('[assetpipe] livereload error - retrying'); es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();
`
